// Package filesystem provides the abstract file tree that the DecSync
// engine operates on. The engine never touches a real filesystem (or SAF
// tree, or anything else) directly — it only ever holds a *Ref and resolves
// it to one of three mutually exclusive variants (file, directory, or
// absent) before acting. This indirection is what lets the engine run
// unmodified against a real POSIX directory (Backend in posix.go) or an
// in-memory tree (Backend in mock.go) in tests.
package filesystem

import (
	"github.com/pkg/errors"
)

// entryKind identifies which of the three variants an entry currently is.
// It is an implementation detail of Backend/Ref.Resolve and is never
// exposed outside this package; callers pattern-match on the Node values
// (FileNode, DirectoryNode, AbsentNode) instead.
type entryKind int

const (
	entryKindAbsent entryKind = iota
	entryKindFile
	entryKindDirectory
)

// Backend is the external storage collaborator that a Tree operates atop.
// Paths are "/"-joined relative paths using the segment names produced by
// the caller (already name-codec-encoded by the time they reach here); the
// root is the empty string. Backends never see a zero-length, non-append
// write: the Ref write path turns it into a delete before calling the
// backend, so the engine's "empty-content files must not exist" invariant
// holds regardless of which backend is in play.
type Backend interface {
	// stat returns the kind of entry at path and, for files, its length in
	// bytes.
	stat(path string) (entryKind, int64, error)
	// readAt reads the full contents of the file at path starting at the
	// given byte offset. It returns an empty slice (not an error) if path
	// does not exist.
	readAt(path string, offset int64) ([]byte, error)
	// writeFile persists data at path, creating any missing parent
	// directories first. It does not special-case empty data; callers
	// delete instead of writing an empty non-append payload. If append is
	// true, data is appended to any existing content.
	writeFile(path string, data []byte, append bool) error
	// remove deletes the file or empty directory at path. It is a no-op if
	// nothing exists at path.
	remove(path string) error
	// list returns every direct child name at path (hidden-file filtering is
	// a DecsyncFile-level concern, not a filesystem-level one); the ordering
	// is unspecified.
	list(path string) ([]string, error)
}

// Tree is a resolved view over a Backend, providing directory-listing
// caching (per the sequence-skipping traversal's performance needs) and
// cache invalidation.
type Tree struct {
	backend Backend
	cache   *dirCache
}

// NewTree creates a new Tree rooted at the given backend.
func NewTree(backend Backend) *Tree {
	return &Tree{
		backend: backend,
		cache:   newDirCache(),
	}
}

// Root returns a Ref addressing the root of the tree.
func (t *Tree) Root() *Ref {
	return &Ref{tree: t, path: "", name: ""}
}

// ResetCache invalidates every cached directory listing. It must be called
// before any traversal that needs to observe filesystem changes made by
// another process (e.g. a peer appending to its own-app directories via an
// external sync tool).
func (t *Tree) ResetCache() {
	t.cache.reset()
}

// Ref addresses a location in the tree. Addressing is pure: constructing or
// deriving a Ref never touches the backend. Call Resolve to find out what,
// if anything, currently lives there.
type Ref struct {
	tree *Tree
	path string
	name string
}

// Child derives a Ref for a direct child of r, without performing any I/O.
func (r *Ref) Child(name string) *Ref {
	path := name
	if r.path != "" {
		path = r.path + "/" + name
	}
	return &Ref{tree: r.tree, path: path, name: name}
}

// Path returns the "/"-joined relative path this ref addresses (empty for
// the root).
func (r *Ref) Path() string {
	return r.path
}

// Name returns the final path component this ref addresses (empty for the
// root).
func (r *Ref) Name() string {
	return r.name
}

// Tree returns the tree that this ref belongs to.
func (r *Ref) Tree() *Tree {
	return r.tree
}

// Resolve stats the backend and returns the concrete variant currently
// found at r: a *FileNode, a *DirectoryNode, or an *AbsentNode.
func (r *Ref) Resolve() (Node, error) {
	kind, length, err := r.tree.backend.stat(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to stat entry")
	}
	switch kind {
	case entryKindFile:
		return &FileNode{ref: r, length: length}, nil
	case entryKindDirectory:
		return &DirectoryNode{ref: r}, nil
	default:
		return &AbsentNode{ref: r}, nil
	}
}

// write implements the common write(bytes, append?) semantics shared by
// FileNode and AbsentNode: empty + non-append deletes, anything else
// materializes parents and persists.
func (r *Ref) write(data []byte, append bool) error {
	if len(data) == 0 && !append {
		if err := r.tree.backend.remove(r.path); err != nil {
			return errors.Wrap(err, "unable to remove entry for empty write")
		}
		return nil
	}
	if err := r.tree.backend.writeFile(r.path, data, append); err != nil {
		return errors.Wrap(err, "unable to write entry")
	}
	return nil
}

// Write resolves r and writes data to it, regardless of whether r
// currently addresses a file or nothing at all. Writing an empty payload
// with append=false deletes the entry. It is an error to write to a ref
// that currently addresses a directory.
func (r *Ref) Write(data []byte, append bool) error {
	node, err := r.Resolve()
	if err != nil {
		return err
	}
	if _, ok := node.(*DirectoryNode); ok {
		return errors.New("cannot write to a directory")
	}
	return r.write(data, append)
}

// Read resolves r and returns its contents starting at offset. A ref
// addressing nothing yields an empty, non-error result (matching the
// variant contract that reading an AbsentNode yields empty). It is an
// error to read from a ref that currently addresses a directory.
func (r *Ref) Read(offset int64) ([]byte, error) {
	node, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *FileNode:
		return n.Read(offset)
	case *AbsentNode:
		return nil, nil
	default:
		return nil, errors.New("cannot read from a directory")
	}
}

// Delete removes whatever currently exists at r (a no-op if r is already
// absent, and a recursive delete if r is a directory).
func (r *Ref) Delete() error {
	node, err := r.Resolve()
	if err != nil {
		return err
	}
	switch n := node.(type) {
	case *FileNode:
		return n.Delete()
	case *DirectoryNode:
		return n.DeleteRecursive()
	default:
		return nil
	}
}

// Length resolves r and returns its length in bytes (0 for an absent or
// directory ref).
func (r *Ref) Length() (int64, error) {
	node, err := r.Resolve()
	if err != nil {
		return 0, err
	}
	if file, ok := node.(*FileNode); ok {
		return file.Length(), nil
	}
	return 0, nil
}
