package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	key   string
	value string
}

func compareKey(a, b item) int {
	return strings.Compare(a.key, b.key)
}

func equalValue(a, b item) bool {
	return a.value == b.value
}

func TestDiffInsertDeleteChange(t *testing.T) {
	old := []item{{"a", "1"}, {"b", "2"}, {"d", "4"}}
	new := []item{{"a", "1"}, {"c", "3"}, {"d", "5"}}

	changes := Diff(old, new, compareKey, equalValue)

	require.Len(t, changes, 3)

	require.Equal(t, Deleted, changes[0].Kind)
	require.Equal(t, "b", changes[0].Old.key)

	require.Equal(t, Inserted, changes[1].Kind)
	require.Equal(t, "c", changes[1].New.key)

	require.Equal(t, Changed, changes[2].Kind)
	require.Equal(t, "4", changes[2].Old.value)
	require.Equal(t, "5", changes[2].New.value)
}

func TestDiffIdenticalYieldsNothing(t *testing.T) {
	old := []item{{"a", "1"}, {"b", "2"}}
	new := []item{{"a", "1"}, {"b", "2"}}

	require.Empty(t, Diff(old, new, compareKey, equalValue))
}

func TestDiffEmptyOld(t *testing.T) {
	new := []item{{"a", "1"}}
	changes := Diff[item](nil, new, compareKey, equalValue)
	require.Len(t, changes, 1)
	require.Equal(t, Inserted, changes[0].Kind)
}

func TestDiffEmptyNew(t *testing.T) {
	old := []item{{"a", "1"}}
	changes := Diff[item](old, nil, compareKey, equalValue)
	require.Len(t, changes, 1)
	require.Equal(t, Deleted, changes[0].Kind)
}
