package decsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decsync-io/decsync/pkg/decsyncinfo"
	"github.com/decsync-io/decsync/pkg/entry"
	"github.com/decsync-io/decsync/pkg/filesystem"
)

func newRoot() *filesystem.Ref {
	return filesystem.NewTree(filesystem.NewMockBackend()).Root()
}

func raw(s string) entry.RawValue {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return data
}

func TestVersionSelectionDefaultsToV1WhenInfoAbsent(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, 1, d.Version())
}

func TestVersionSelectionFollowsGlobalDecsyncInfo(t *testing.T) {
	root := newRoot()
	require.NoError(t, decsyncinfo.SetGlobalVersion(root.Child(".decsync-info"), 2))

	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, 2, d.Version())
}

func TestVersionSelectionDetectsExistingV1Layout(t *testing.T) {
	root := newRoot()
	bootstrap, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	require.NoError(t, bootstrap.SetEntry([]string{"p"}, raw("k"), raw("v")))

	// A fresh local state for the same app, with no local info, detects that
	// app's own stored-entries directory on disk.
	fresh, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.Version())
}

func TestListenerMatchingStripsSubpathExceptInV2(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	var deliveredPath []string
	d.AddListener([]string{"contacts"}, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		deliveredPath = path
		return true
	})

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, d.ExecuteStoredEntriesForPathExact([]string{"contacts", "1"}, nil))
	require.Equal(t, []string{"1"}, deliveredPath, "the matched subpath prefix must be stripped under V1")
}

func TestListenerMatchingFirstRegisteredWins(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	var firstCalled, secondCalled bool
	d.AddListener([]string{"contacts"}, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		firstCalled = true
		return true
	})
	d.AddListener(nil, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		secondCalled = true
		return true
	})

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, d.ExecuteStoredEntriesForPathExact([]string{"contacts", "1"}, nil))
	require.True(t, firstCalled)
	require.False(t, secondCalled)
}

func TestInternalInfoKeysAreFilteredFromListeners(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	var delivered []entry.Entry
	d.AddListener([]string{"info"}, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		delivered = append(delivered, entries...)
		return true
	})

	require.NoError(t, d.SetEntries([]entry.EntryWithPath{
		{Path: []string{"info"}, Entry: entry.Entry{Key: raw("last-active-appA"), Value: raw("2020-01-01")}},
		{Path: []string{"info"}, Entry: entry.Entry{Key: raw("name"), Value: raw("contacts")}},
	}))
	require.NoError(t, d.ExecuteStoredEntriesForPathExact([]string{"info"}, nil))

	require.Len(t, delivered, 1)
	require.Equal(t, raw("name"), delivered[0].Key)
}

func TestInitStoredEntriesUsesNoExtraMarker(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	var gotExtra ExtraOption
	d.AddListener(nil, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		gotExtra = extra
		return true
	})

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, d.InitStoredEntries())

	_, ok := gotExtra.Get()
	require.False(t, ok, "replay delivery must carry the NoExtra marker")
}

func TestExecuteAllNewEntriesUsesWithExtraMarker(t *testing.T) {
	root := newRoot()
	appA, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	appB, err := New(root, newRoot(), "contacts", "", "appB", nil)
	require.NoError(t, err)

	var gotExtra ExtraOption
	appB.AddListener(nil, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		gotExtra = extra
		return true
	})

	require.NoError(t, appA.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, appB.ExecuteAllNewEntries("session-1", false))

	value, ok := gotExtra.Get()
	require.True(t, ok)
	require.Equal(t, "session-1", value)
}

func TestReentrantCallDuringInitIsRejected(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	var reentrantErr error
	d.AddListener(nil, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		reentrantErr = d.SetEntry([]string{"other"}, raw("k"), raw("v"))
		return true
	})

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, d.InitStoredEntries())
	require.ErrorIs(t, reentrantErr, ErrReentrant)
}

func TestExecuteStoredEntrySinglePointLookup(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))

	value, found, err := d.ExecuteStoredEntry([]string{"contacts", "1"}, raw("name"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, raw("Alice"), value)

	_, found, err = d.ExecuteStoredEntry([]string{"contacts", "1"}, raw("missing"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestMaintenancePublishesLastActiveAndSupportedVersion(t *testing.T) {
	root := newRoot()
	appA, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	appB, err := New(root, newRoot(), "contacts", "", "appB", nil)
	require.NoError(t, err)

	require.NoError(t, appA.ExecuteAllNewEntries(nil, false))

	apps, err := GetActiveApps(root, "contacts", "")
	require.NoError(t, err)
	found := false
	for _, app := range apps {
		if app.AppID == "appA" {
			found = true
			require.NotEmpty(t, app.LastActive)
			require.Equal(t, SupportedVersion, app.Version)
		}
	}
	require.True(t, found)

	require.NoError(t, appB.ExecuteAllNewEntries(nil, false))
}

func TestExecuteAllNewEntriesDisableMaintenanceSuppressesHeartbeats(t *testing.T) {
	root := newRoot()
	appA, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	appB, err := New(root, newRoot(), "contacts", "", "appB", nil)
	require.NoError(t, err)

	require.NoError(t, appA.ExecuteAllNewEntries(nil, true))

	apps, err := GetActiveApps(root, "contacts", "")
	require.NoError(t, err)
	for _, app := range apps {
		require.NotEqual(t, "appA", app.AppID, "disableMaintenance must suppress the last-active heartbeat")
	}

	require.NoError(t, appB.ExecuteAllNewEntries(nil, false))
}

func TestExecuteStoredEntriesReplaysAcrossDistinctPaths(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)

	require.NoError(t, d.SetEntry([]string{"contacts", "1"}, raw("name"), raw("Alice")))
	require.NoError(t, d.SetEntry([]string{"contacts", "2"}, raw("name"), raw("Bob")))

	var delivered []string
	d.AddListener(nil, func(path []string, entries []entry.Entry, extra ExtraOption) bool {
		for _, e := range entries {
			delivered = append(delivered, string(e.Value))
		}
		return true
	})

	err = d.ExecuteStoredEntries([]entry.StoredEntry{
		{Path: []string{"contacts", "1"}, Key: raw("name")},
		{Path: []string{"contacts", "2"}, Key: raw("name")},
		{Path: []string{"contacts", "1"}, Key: raw("missing")},
	}, "batch-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{`"Alice"`, `"Bob"`}, delivered)
}

func TestUpgradeFromV1ToV2RetainsValues(t *testing.T) {
	root := newRoot()
	a, err := New(root, newRoot(), "contacts", "", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, 1, a.Version())

	require.NoError(t, a.SetEntry([]string{"p"}, raw("k"), raw("v1")))

	// Flip the global marker, simulating another peer bumping the shared
	// format version; A's own next maintenance pass notices the bump and
	// migrates its stored snapshot into the v2 layout.
	require.NoError(t, decsyncinfo.SetGlobalVersion(root.Child(".decsync-info"), 2))
	require.NoError(t, a.ExecuteAllNewEntries(nil, false))
	require.Equal(t, 2, a.Version())

	// A fresh install now detects the v2 layout directly and observes the
	// migrated value.
	b, err := New(root, newRoot(), "contacts", "", "appB", nil)
	require.NoError(t, err)
	require.Equal(t, 2, b.Version())

	require.NoError(t, b.InitStoredEntries())
	value, found, err := b.ExecuteStoredEntry([]string{"p"}, raw("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, raw("v1"), value)
}

func TestCheckDecsyncInfoRejectsMissingFile(t *testing.T) {
	root := newRoot()
	err := CheckDecsyncInfo(root)
	require.Error(t, err)
}

func TestCheckDecsyncInfoAcceptsValidFile(t *testing.T) {
	root := newRoot()
	require.NoError(t, decsyncinfo.SetGlobalVersion(root.Child(".decsync-info"), 1))
	require.NoError(t, CheckDecsyncInfo(root))
}

func TestListCollectionsEnumeratesSubdirectories(t *testing.T) {
	root := newRoot()
	d, err := New(root, newRoot(), "contacts", "personal", "appA", nil)
	require.NoError(t, err)
	require.NoError(t, d.SetEntry([]string{"p"}, raw("k"), raw("v")))

	collections, err := ListCollections(root, "contacts")
	require.NoError(t, err)
	require.Contains(t, collections, "personal")
}
