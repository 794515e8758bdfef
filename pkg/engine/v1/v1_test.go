package v1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decsync-io/decsync/pkg/decsyncfile"
	"github.com/decsync-io/decsync/pkg/entry"
	"github.com/decsync-io/decsync/pkg/filesystem"
)

func newShared() *decsyncfile.DecsyncFile {
	tree := filesystem.NewTree(filesystem.NewMockBackend())
	return decsyncfile.New(tree.Root())
}

func raw(s string) entry.RawValue {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return data
}

func rawInt(i int) entry.RawValue {
	data, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return data
}

func entryAt(datetime, key, value string) entry.EntryWithPath {
	return entry.EntryWithPath{
		Path:  []string{"contacts", "1"},
		Entry: entry.Entry{DateTime: datetime, Key: raw(key), Value: raw(value)},
	}
}

func TestSetEntriesAndExecuteAllNewEntries(t *testing.T) {
	root := newShared()

	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))

	var delivered []entry.Entry
	var deliveredPath []string
	err := appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		deliveredPath = path
		delivered = entries
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"contacts", "1"}, deliveredPath)
	require.Len(t, delivered, 1)
	require.Equal(t, raw("Alice"), delivered[0].Value)

	// Own stored snapshot on the B side must now reflect the merged entry.
	var replayed []entry.Entry
	require.NoError(t, appB.ExecuteStoredEntriesForPathExact([]string{"contacts", "1"}, nil, func(path []string, entries []entry.Entry) bool {
		replayed = entries
		return true
	}))
	require.Len(t, replayed, 1)
	require.Equal(t, raw("Alice"), replayed[0].Value)
}

func TestExecuteAllNewEntriesSkipsOwnAppID(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))

	calls := 0
	require.NoError(t, appA.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		calls++
		return true
	}))
	require.Zero(t, calls, "an app must never deliver its own writes back to itself")
}

func TestAsyncConflictResolutionNewerDateTimeWins(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))
	require.NoError(t, appB.SetEntries([]entry.EntryWithPath{
		entryAt("2020-06-01T00:00:00", "name", "Alicia"),
	}))

	var fromA []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		fromA = entries
		return true
	}))
	// B already had the newer value locally; A's older write must not
	// survive the merge, so nothing new is delivered.
	require.Empty(t, fromA)

	var replayed []entry.Entry
	require.NoError(t, appB.ExecuteStoredEntriesForPathExact([]string{"contacts", "1"}, nil, func(path []string, entries []entry.Entry) bool {
		replayed = entries
		return true
	}))
	require.Len(t, replayed, 1)
	require.Equal(t, raw("Alicia"), replayed[0].Value)
}

func TestIdempotentDuplicateWriteIsANoOp(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)

	write := []entry.EntryWithPath{entryAt("2020-01-01T00:00:00", "name", "Alice")}
	require.NoError(t, appA.SetEntries(write))

	before, err := appA.ownNewEntries().ChildPath([]string{"contacts", "1"}).Ref().Length()
	require.NoError(t, err)

	require.NoError(t, appA.SetEntries(write))

	after, err := appA.ownNewEntries().ChildPath([]string{"contacts", "1"}).Ref().Length()
	require.NoError(t, err)
	require.Equal(t, before, after, "an identical re-write must not append a redundant log entry")
}

func TestCursorMonotonicity(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))

	var firstPass []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		firstPass = append(firstPass, entries...)
		return true
	}))
	require.Len(t, firstPass, 1)

	// Nothing new: a second pass must deliver nothing.
	var secondPass []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		secondPass = append(secondPass, entries...)
		return true
	}))
	require.Empty(t, secondPass)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-02-01T00:00:00", "phone", "555-1234"),
	}))

	var thirdPass []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		thirdPass = append(thirdPass, entries...)
		return true
	}))
	require.Len(t, thirdPass, 1, "only the newly-appended entry should be redelivered")
	require.Equal(t, raw("phone"), thirdPass[0].Key)
}

func TestFailedDeliveryIsRetried(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))

	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		return false
	}))

	var delivered []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		delivered = entries
		return true
	}))
	require.Len(t, delivered, 1, "a failed delivery must be retried on the next pass")
}

func TestSequenceSkipAvoidsRescanningUnchangedPeers(t *testing.T) {
	root := decsyncfile.New(filesystem.NewTree(filesystem.NewMockBackend()).Root())
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)
	appC := New(root, "appC", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool { return true }))

	// A second, unrelated app writing has no bearing on app A's already-
	// fully-read subtree; re-running B's scan must not re-open A's leaf.
	require.NoError(t, appC.SetEntries([]entry.EntryWithPath{
		{Path: []string{"contacts", "2"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("name"), Value: raw("Carol")}},
	}))

	var delivered []entry.Entry
	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		delivered = append(delivered, entries...)
		return true
	}))
	require.Len(t, delivered, 1)
	require.Equal(t, raw("Carol"), delivered[0].Value)
}

func TestLatestAppIDFavorsOwnOnTie(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		entryAt("2020-01-01T00:00:00", "name", "Alice"),
	}))

	latest, err := appA.LatestAppID()
	require.NoError(t, err)
	require.Equal(t, "appA", latest)

	require.NoError(t, appB.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool { return true }))
	latest, err = appB.LatestAppID()
	require.NoError(t, err)
	require.Equal(t, "appB", latest, "A's entry merged into B records the same datetime under B, so the tie goes to B itself")
}

func TestExecuteStoredEntriesForPathPrefix(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		{Path: []string{"contacts", "1"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("name"), Value: raw("Alice")}},
		{Path: []string{"contacts", "2"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("name"), Value: raw("Bob")}},
		{Path: []string{"settings"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("theme"), Value: raw("dark")}},
	}))

	var paths [][]string
	require.NoError(t, appA.ExecuteStoredEntriesForPathPrefix([]string{"contacts"}, nil, func(path []string, entries []entry.Entry) bool {
		paths = append(paths, path)
		return true
	}))
	require.Len(t, paths, 2)
}

func TestStaticInfoMergesAcrossApps(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)
	appB := New(root, "appB", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		{Path: []string{"info"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("name"), Value: raw("contacts")}},
	}))
	require.NoError(t, appB.SetEntries([]entry.EntryWithPath{
		{Path: []string{"info"}, Entry: entry.Entry{DateTime: "2020-01-02T00:00:00", Key: raw("color"), Value: raw("#ff0000")}},
	}))

	info, err := StaticInfo(root)
	require.NoError(t, err)
	require.Equal(t, raw("contacts"), info["name"])
	require.Equal(t, raw("#ff0000"), info["color"])
}

func TestActiveAppsDerivesFromInfoKeys(t *testing.T) {
	root := newShared()
	appA := New(root, "appA", nil)

	require.NoError(t, appA.SetEntries([]entry.EntryWithPath{
		{Path: []string{"info"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("last-active-appA"), Value: raw("2020-01-01")}},
		{Path: []string{"info"}, Entry: entry.Entry{DateTime: "2020-01-01T00:00:00", Key: raw("supported-version-appA"), Value: rawInt(2)}},
	}))

	apps, err := ActiveApps(root)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "appA", apps[0].AppID)
	require.Equal(t, "2020-01-01", apps[0].LastActive)
	require.Equal(t, 2, apps[0].Version)
}
