package filesystem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbsentThenWriteBecomesFile(t *testing.T) {
	tree := NewTree(NewMockBackend())
	ref := tree.Root().Child("a").Child("b")

	node, err := ref.Resolve()
	require.NoError(t, err)
	absent, ok := node.(*AbsentNode)
	require.True(t, ok)

	require.NoError(t, absent.Write([]byte("hello"), false))

	node, err = ref.Resolve()
	require.NoError(t, err)
	file, ok := node.(*FileNode)
	require.True(t, ok)
	require.EqualValues(t, 5, file.Length())

	data, err := file.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestEmptyWriteDeletesFile(t *testing.T) {
	tree := NewTree(NewMockBackend())
	ref := tree.Root().Child("f")

	node, err := ref.Resolve()
	require.NoError(t, err)
	require.NoError(t, node.(*AbsentNode).Write([]byte("x"), false))

	node, err = ref.Resolve()
	require.NoError(t, err)
	file := node.(*FileNode)
	require.NoError(t, file.Write(nil, false))

	node, err = ref.Resolve()
	require.NoError(t, err)
	_, ok := node.(*AbsentNode)
	require.True(t, ok, "file should have been deleted by empty write")
}

func TestDirectoryChildrenAndDelete(t *testing.T) {
	tree := NewTree(NewMockBackend())
	root := tree.Root()

	for _, name := range []string{"a", "b", "c"} {
		leaf := root.Child(name).Child("leaf")
		node, err := leaf.Resolve()
		require.NoError(t, err)
		require.NoError(t, node.(*AbsentNode).Write([]byte("v"), false))
	}

	node, err := root.Resolve()
	require.NoError(t, err)
	dir, ok := node.(*DirectoryNode)
	require.True(t, ok)

	children, err := dir.Children()
	require.NoError(t, err)
	require.Len(t, children, 3)

	require.NoError(t, dir.DeleteRecursive())

	node, err = root.Resolve()
	require.NoError(t, err)
	_, ok = node.(*AbsentNode)
	require.True(t, ok)
}

func TestResetCacheObservesExternalChange(t *testing.T) {
	backend := NewMockBackend()
	tree := NewTree(backend)
	dirRef := tree.Root().Child("dir")

	leaf := dirRef.Child("leaf")
	node, err := leaf.Resolve()
	require.NoError(t, err)
	require.NoError(t, node.(*AbsentNode).Write([]byte("v"), false))

	node, _ = dirRef.Resolve()
	dir := node.(*DirectoryNode)
	children, err := dir.Children()
	require.NoError(t, err)
	require.Len(t, children, 1)

	// Simulate an external writer adding a file without going through this
	// tree's cache.
	require.NoError(t, backend.writeFile("dir/leaf2", []byte("v2"), false))

	children, err = dir.Children()
	require.NoError(t, err)
	require.Len(t, children, 1, "cache should still report stale listing")

	tree.ResetCache()
	children, err = dir.Children()
	require.NoError(t, err)
	require.Len(t, children, 2)
}
