package filesystem

import (
	"github.com/pkg/errors"
)

// FileNode is the variant of Node representing an existing, readable file.
type FileNode struct {
	ref    *Ref
	length int64
}

func (f *FileNode) sealed() {}

// Ref returns the Ref that this node was resolved from.
func (f *FileNode) Ref() *Ref {
	return f.ref
}

// Length returns the file's length in bytes, as observed at resolve time.
func (f *FileNode) Length() int64 {
	return f.length
}

// Read returns the file's contents starting at the given byte offset.
func (f *FileNode) Read(offset int64) ([]byte, error) {
	data, err := f.ref.tree.backend.readAt(f.ref.path, offset)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read file")
	}
	return data, nil
}

// Write persists data to the file. Writing an empty payload with
// append=false deletes the file (see the package-level write semantics).
func (f *FileNode) Write(data []byte, append bool) error {
	return f.ref.write(data, append)
}

// Delete removes the file.
func (f *FileNode) Delete() error {
	if err := f.ref.tree.backend.remove(f.ref.path); err != nil {
		return errors.Wrap(err, "unable to delete file")
	}
	return nil
}
