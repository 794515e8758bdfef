package filesystem

// Node is the closed sum type over the three mutually exclusive variants a
// Ref can resolve to. It is sealed: the only implementations are FileNode,
// DirectoryNode, and AbsentNode, all defined in this package. Callers are
// expected to type-switch on the result of Ref.Resolve, mirroring a
// pattern match over a sealed class:
//
//	switch n := node.(type) {
//	case *filesystem.FileNode:
//	    ...
//	case *filesystem.DirectoryNode:
//	    ...
//	case *filesystem.AbsentNode:
//	    ...
//	}
type Node interface {
	// Ref returns the Ref that this node was resolved from.
	Ref() *Ref

	// sealed prevents Node from being implemented outside this package.
	sealed()
}
