package filesystem

import (
	"sync"

	"github.com/pkg/errors"
)

// DirectoryNode is the variant of Node representing an existing directory.
type DirectoryNode struct {
	ref *Ref
}

func (d *DirectoryNode) sealed() {}

// Ref returns the Ref that this node was resolved from.
func (d *DirectoryNode) Ref() *Ref {
	return d.ref
}

// Child derives a Ref addressing a (possibly nonexistent) child of this
// directory. Like all addressing, this performs no I/O.
func (d *DirectoryNode) Child(name string) *Ref {
	return d.ref.Child(name)
}

// Children enumerates the directory's direct children, consulting (and
// populating) the tree's directory-listing cache. The enumeration order is
// unspecified.
func (d *DirectoryNode) Children() ([]*Ref, error) {
	names, err := d.ref.tree.cache.list(d.ref.tree.backend, d.ref.path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list directory contents")
	}
	refs := make([]*Ref, len(names))
	for i, name := range names {
		refs[i] = d.ref.Child(name)
	}
	return refs, nil
}

// DeleteRecursive removes the directory and everything beneath it,
// deleting children before their parents (post-order).
func (d *DirectoryNode) DeleteRecursive() error {
	return deleteRecursive(d.ref)
}

// deleteRecursive implements post-order recursive deletion for an arbitrary
// ref, used both by DirectoryNode.DeleteRecursive and by callers that want
// to delete a subtree that may or may not currently be a directory.
func deleteRecursive(ref *Ref) error {
	node, err := ref.Resolve()
	if err != nil {
		return errors.Wrap(err, "unable to resolve entry for deletion")
	}
	switch n := node.(type) {
	case *AbsentNode:
		return nil
	case *FileNode:
		return n.Delete()
	case *DirectoryNode:
		children, err := n.Children()
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := deleteRecursive(child); err != nil {
				return err
			}
		}
		if err := ref.tree.backend.remove(ref.path); err != nil {
			return errors.Wrap(err, "unable to remove directory")
		}
		ref.tree.cache.forget(ref.path)
		return nil
	default:
		return errors.New("unreachable: unknown node variant")
	}
}

// dirCache caches directory listings keyed by path so that repeated
// traversals within one pass don't repeatedly hit the backend. It must be
// explicitly invalidated (ResetCache) before a fresh traversal that needs
// to observe externally-made changes.
type dirCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newDirCache() *dirCache {
	return &dirCache{entries: make(map[string][]string)}
}

func (c *dirCache) list(backend Backend, path string) ([]string, error) {
	c.mu.Lock()
	if names, ok := c.entries[path]; ok {
		c.mu.Unlock()
		return names, nil
	}
	c.mu.Unlock()

	names, err := backend.list(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = names
	c.mu.Unlock()
	return names, nil
}

func (c *dirCache) forget(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

func (c *dirCache) reset() {
	c.mu.Lock()
	c.entries = make(map[string][]string)
	c.mu.Unlock()
}
