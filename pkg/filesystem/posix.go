package filesystem

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/decsyncerr"
)

// PosixBackend is a Backend rooted at a real directory on a POSIX-ish
// filesystem (this also works fine on Windows, modulo path separators,
// which filepath.Join/Clean handle for us).
type PosixBackend struct {
	root string
}

// NewPosixBackend creates a Backend rooted at root. The root directory
// itself is created if it does not already exist.
func NewPosixBackend(root string) (*PosixBackend, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, wrapIoError(root, errors.Wrap(err, "unable to create root directory"))
	}
	return &PosixBackend{root: root}, nil
}

// wrapIoError classifies a failed POSIX operation at path: a permission
// denial becomes an InsufficientAccessError, so callers can distinguish
// "fix your permissions" from any other failure via errors.As; anything
// else becomes an IoError.
func wrapIoError(path string, err error) error {
	if os.IsPermission(err) {
		return &decsyncerr.InsufficientAccessError{Path: path, Cause: err}
	}
	return &decsyncerr.IoError{Cause: err}
}

// absolute converts a tree-relative path (using "/" separators) into an
// absolute, OS-native filesystem path.
func (b *PosixBackend) absolute(path string) string {
	if path == "" {
		return b.root
	}
	return filepath.Join(b.root, filepath.FromSlash(path))
}

func (b *PosixBackend) stat(path string) (entryKind, int64, error) {
	absolute := b.absolute(path)
	info, err := os.Stat(absolute)
	if err != nil {
		if os.IsNotExist(err) {
			return entryKindAbsent, 0, nil
		}
		return entryKindAbsent, 0, wrapIoError(absolute, errors.Wrap(err, "unable to stat path"))
	}
	if info.IsDir() {
		return entryKindDirectory, 0, nil
	}
	return entryKindFile, info.Size(), nil
}

func (b *PosixBackend) readAt(path string, offset int64) ([]byte, error) {
	absolute := b.absolute(path)
	file, err := os.Open(absolute)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIoError(absolute, errors.Wrap(err, "unable to open file"))
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, wrapIoError(absolute, errors.Wrap(err, "unable to seek in file"))
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, wrapIoError(absolute, errors.Wrap(err, "unable to read file contents"))
	}
	return data, nil
}

func (b *PosixBackend) writeFile(path string, data []byte, appendData bool) error {
	absolute := b.absolute(path)

	if err := os.MkdirAll(filepath.Dir(absolute), 0700); err != nil {
		return wrapIoError(absolute, errors.Wrap(err, "unable to create parent directories"))
	}

	if appendData {
		file, err := os.OpenFile(absolute, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return wrapIoError(absolute, errors.Wrap(err, "unable to open file for append"))
		}
		defer file.Close()
		if _, err := file.Write(data); err != nil {
			return wrapIoError(absolute, errors.Wrap(err, "unable to append to file"))
		}
		return nil
	}

	// Non-append writes are performed atomically via a temporary sibling
	// file followed by a rename, so that a concurrent reader never observes
	// a partially-written file.
	return writeFileAtomic(absolute, data, 0600)
}

func (b *PosixBackend) remove(path string) error {
	absolute := b.absolute(path)
	err := os.Remove(absolute)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return wrapIoError(absolute, errors.Wrap(err, "unable to remove entry"))
	}
	return nil
}

func (b *PosixBackend) list(path string) ([]string, error) {
	absolute := b.absolute(path)
	entries, err := os.ReadDir(absolute)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIoError(absolute, errors.Wrap(err, "unable to read directory"))
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	sort.Strings(names)
	return names, nil
}

// writeFileAtomic writes data to a temporary file alongside path and then
// renames it into place. The temporary file is always created in path's own
// directory, so the rename is always same-device and cannot fail with
// EXDEV.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	directory := filepath.Dir(path)
	temporary, err := os.CreateTemp(directory, ".decsync-tmp-*")
	if err != nil {
		return wrapIoError(path, errors.Wrap(err, "unable to create temporary file"))
	}
	temporaryPath := temporary.Name()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return wrapIoError(path, errors.Wrap(err, "unable to write temporary file"))
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return wrapIoError(path, errors.Wrap(err, "unable to close temporary file"))
	}
	if err := os.Chmod(temporaryPath, mode); err != nil {
		os.Remove(temporaryPath)
		return wrapIoError(path, errors.Wrap(err, "unable to set temporary file permissions"))
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return wrapIoError(path, errors.Wrap(err, "unable to rename temporary file into place"))
	}
	return nil
}
