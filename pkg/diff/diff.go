// Package diff implements the sorted-merge diff utility: given
// two sequences of items sorted by the same comparator, it emits
// insertions, deletions, and changes in O(|old|+|new|) without ever
// building a full index of either side.
package diff

// Kind identifies the kind of change a Change value represents.
type Kind int

const (
	// Inserted means the item is present only in the new sequence.
	Inserted Kind = iota
	// Deleted means the item is present only in the old sequence.
	Deleted
	// Changed means the item is present in both sequences (its identity
	// compares equal) but its full value differs.
	Changed
)

// String returns a human-readable name for the change kind.
func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Change describes one difference between two sequences. Old is the nil for
// an Inserted change; New is nil for a Deleted change.
type Change[T any] struct {
	Kind Kind
	Old  *T
	New  *T
}

// Diff performs a sorted-merge comparison of old and new, both of which
// must already be sorted according to compare. compare orders two items by
// identity (e.g. a (path, key) pair) and must return <0, 0, or >0 the way
// strings.Compare does; equal additionally reports whether two
// identity-equal items have the same full value. Items with compare==0 and
// equal==true are considered unchanged and are not reported.
func Diff[T any](old, new []T, compare func(a, b T) int, equal func(a, b T) bool) []Change[T] {
	var changes []Change[T]

	i, j := 0, 0
	for i < len(old) && j < len(new) {
		o, n := old[i], new[j]
		switch c := compare(o, n); {
		case c < 0:
			oCopy := o
			changes = append(changes, Change[T]{Kind: Deleted, Old: &oCopy})
			i++
		case c > 0:
			nCopy := n
			changes = append(changes, Change[T]{Kind: Inserted, New: &nCopy})
			j++
		default:
			if !equal(o, n) {
				oCopy, nCopy := o, n
				changes = append(changes, Change[T]{Kind: Changed, Old: &oCopy, New: &nCopy})
			}
			i++
			j++
		}
	}
	for ; i < len(old); i++ {
		oCopy := old[i]
		changes = append(changes, Change[T]{Kind: Deleted, Old: &oCopy})
	}
	for ; j < len(new); j++ {
		nCopy := new[j]
		changes = append(changes, Change[T]{Kind: Inserted, New: &nCopy})
	}

	return changes
}
