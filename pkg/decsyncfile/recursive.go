package decsyncfile

import (
	"github.com/decsync-io/decsync/pkg/filesystem"
	"github.com/decsync-io/decsync/pkg/namecodec"
)

// PathPredicate decides whether a leaf file's relative path should be
// passed to a ListFilesRecursiveRelative action.
type PathPredicate func(path []string) bool

// LeafAction processes one leaf file, returning whether it was handled
// successfully. A false return prevents the sequence-skip cache from
// being updated for every ancestor directory of this file, so that a
// failed file is retried on the next pass instead of being skipped.
type LeafAction func(path []string) (bool, error)

// AllPaths is a PathPredicate that accepts every path.
func AllPaths(path []string) bool {
	return true
}

// ListFilesRecursiveRelative walks dir's subtree and invokes action for
// every leaf file whose relative path (relative to dir) satisfies pred.
// Hidden children (name starts with '.') are never descended into or
// passed to action.
//
// If readBytesSrc is non-nil, it is consulted and updated as a mirror of
// dir's own decsync-sequence counters: before descending into
// a subdirectory, if its local decsync-sequence matches the corresponding
// counter already recorded under readBytesSrc, the entire subtree is
// skipped. After a subtree is walked with every leaf action in it
// succeeding, the observed sequence is copied into readBytesSrc so the
// next pass can skip it too.
func ListFilesRecursiveRelative(dir *DecsyncFile, readBytesSrc *DecsyncFile, pred PathPredicate, action LeafAction) error {
	_, err := walkRecursive(dir, readBytesSrc, nil, pred, action)
	return err
}

// walkRecursive performs one level of the traversal and returns whether
// every leaf action encountered in this subtree (at this level and below)
// reported success.
func walkRecursive(dir *DecsyncFile, readBytesSrc *DecsyncFile, prefix []string, pred PathPredicate, action LeafAction) (bool, error) {
	node, err := dir.Ref().Resolve()
	if err != nil {
		return true, err
	}
	directory, ok := node.(*filesystem.DirectoryNode)
	if !ok {
		// Nothing here (or, anomalously, a file where a directory was
		// expected) — there is nothing to traverse.
		return true, nil
	}

	if readBytesSrc != nil {
		localText, localOk, err := dir.HiddenChild(SequenceFileName).ReadText()
		if err != nil {
			return true, err
		}
		if localOk {
			mirrorText, mirrorOk, err := readBytesSrc.HiddenChild(SequenceFileName).ReadText()
			if err != nil {
				return true, err
			}
			if mirrorOk && mirrorText == localText {
				// Unchanged since the last successful pass: skip entirely.
				return true, nil
			}
		}
	}

	children, err := directory.Children()
	if err != nil {
		return true, err
	}

	allSucceeded := true
	for _, childRef := range children {
		encodedName := childRef.Name()
		if isHiddenEncodedName(encodedName) {
			continue
		}
		decodedName, ok := namecodec.Decode(encodedName)
		if !ok {
			// A name we can't decode wasn't produced by this codec; skip it
			// defensively rather than failing the whole traversal.
			continue
		}

		childPath := make([]string, len(prefix)+1)
		copy(childPath, prefix)
		childPath[len(prefix)] = decodedName

		childNode, err := childRef.Resolve()
		if err != nil {
			return true, err
		}

		switch childNode.(type) {
		case *filesystem.DirectoryNode:
			var childReadBytesSrc *DecsyncFile
			if readBytesSrc != nil {
				childReadBytesSrc = readBytesSrc.Child(decodedName)
			}
			succeeded, err := walkRecursive(New(childRef), childReadBytesSrc, childPath, pred, action)
			if err != nil {
				return true, err
			}
			if !succeeded {
				allSucceeded = false
			}
		case *filesystem.FileNode:
			if !pred(childPath) {
				continue
			}
			succeeded, err := action(childPath)
			if err != nil {
				return true, err
			}
			if !succeeded {
				allSucceeded = false
			}
		default:
			// Absent: a listing raced with an external delete. Nothing to
			// do for this child.
		}
	}

	if allSucceeded && readBytesSrc != nil {
		localText, localOk, err := dir.HiddenChild(SequenceFileName).ReadText()
		if err != nil {
			return allSucceeded, err
		}
		if localOk {
			if err := readBytesSrc.HiddenChild(SequenceFileName).WriteText(localText); err != nil {
				return allSucceeded, err
			}
		}
	}

	return allSucceeded, nil
}
