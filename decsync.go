// Package decsync implements the dispatcher (component G): the public
// entry point that selects an on-disk format engine (pkg/engine/v1 or
// pkg/engine/v2), owns listener registration and matching, filters
// informational bookkeeping entries from user-visible delivery, and runs
// the per-pass maintenance routine (liveness heartbeat, supported-version
// heartbeat, triggered upgrade).
package decsync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/decsyncerr"
	"github.com/decsync-io/decsync/pkg/decsyncfile"
	"github.com/decsync-io/decsync/pkg/decsyncinfo"
	"github.com/decsync-io/decsync/pkg/engine"
	v1engine "github.com/decsync-io/decsync/pkg/engine/v1"
	v2engine "github.com/decsync-io/decsync/pkg/engine/v2"
	"github.com/decsync-io/decsync/pkg/entry"
	"github.com/decsync-io/decsync/pkg/filesystem"
	"github.com/decsync-io/decsync/pkg/logging"
)

// SupportedVersion is the highest on-disk format version this
// implementation understands.
const SupportedVersion = decsyncinfo.SupportedVersion

const dateTimeLayout = "2006-01-02T15:04:05"
const dateLayout = "2006-01-02"

// nowDateTime and nowDate are the only two places the current time enters
// the engine; every stored datetime flows from here.
var nowDateTime = func() string { return time.Now().UTC().Format(dateTimeLayout) }
var nowDate = func() string { return time.Now().UTC().Format(dateLayout) }

// ErrReentrant is returned by any Decsync method invoked (directly or from
// a listener callback) while initStoredEntries is running on the same
// instance.
var ErrReentrant = errors.New("decsync: reentrant call during initStoredEntries")

// ExtraOption is the replay/live marker delivered to listeners: NoExtra
// during any stored-entries replay (the engine has no live cursor to speak
// of there), WithExtra(value) when entries were received live via
// ExecuteAllNewEntries.
type ExtraOption struct {
	ok    bool
	value any
}

// NoExtra is the marker used for stored-entries replay.
func NoExtra() ExtraOption { return ExtraOption{} }

// WithExtra wraps a caller-supplied value as the marker used for live
// delivery.
func WithExtra(value any) ExtraOption { return ExtraOption{ok: true, value: value} }

// Get returns the wrapped value and whether one was present.
func (o ExtraOption) Get() (any, bool) { return o.value, o.ok }

// Listener receives a batch of entries found at path, and reports whether
// it was able to process them; under V1 a false return causes the engine to
// retry this batch on the next live pass, while V2 does not redeliver it.
// Replay deliveries
// ignore the return value, since there is no cursor to retry against.
type Listener func(path []string, entries []entry.Entry, extra ExtraOption) bool

type listenerEntry struct {
	subpath  []string
	callback Listener
}

// Decsync is one running instance: a (decsyncDir, syncType, collection,
// ownAppId) tuple bound to a selected on-disk format version.
type Decsync struct {
	root       *decsyncfile.DecsyncFile // decsyncDir
	subdirFile *decsyncfile.DecsyncFile // decsyncDir/syncType[/collection]
	localDir   *decsyncfile.DecsyncFile // instance-private, unsynced bookkeeping
	ownAppID   string
	logger     *logging.Logger

	version int
	eng     engine.Engine

	listeners []listenerEntry
	isInInit  bool
}

// New constructs a Decsync instance. decsyncRoot is the root of the shared,
// externally-synced tree; localRoot is a private, per-instance tree that is
// never synced (it holds the local info file and, for V2, the peer read-
// sequence bookkeeping). If logger is nil, logging.RootLogger is used.
func New(decsyncRoot, localRoot *filesystem.Ref, syncType, collection, ownAppID string, logger *logging.Logger) (*Decsync, error) {
	if logger == nil {
		logger = logging.RootLogger
	}

	root := decsyncfile.New(decsyncRoot)
	subdirFile := root.Child(syncType)
	if collection != "" {
		subdirFile = subdirFile.Child(collection)
	}

	d := &Decsync{
		root:       root,
		subdirFile: subdirFile,
		localDir:   decsyncfile.New(localRoot),
		ownAppID:   ownAppID,
		logger:     logger,
	}

	if err := d.selectVersion(); err != nil {
		return nil, err
	}
	return d, nil
}

// Version reports the on-disk format version this instance is currently
// using.
func (d *Decsync) Version() int { return d.version }

func (d *Decsync) localInfoFile() *decsyncfile.DecsyncFile { return d.localDir.Child("local-info") }

func (d *Decsync) globalInfoRef() *filesystem.Ref { return d.root.Ref().Child(".decsync-info") }

// selectVersion picks the on-disk format version for this instance and
// instantiates the matching engine.
func (d *Decsync) selectVersion() error {
	local, ok, err := decsyncinfo.ReadLocal(d.localInfoFile().Ref())
	if err != nil {
		return err
	}
	if ok && local.Version != 0 {
		d.version = local.Version
		return d.instantiateEngine()
	}

	version, err := d.detectVersionFromDisk()
	if err != nil {
		return err
	}
	d.version = version
	if err := d.persistLocalVersion(version); err != nil {
		return err
	}
	return d.instantiateEngine()
}

func (d *Decsync) detectVersionFromDisk() (int, error) {
	if isDirectory, err := d.isDirectory(d.subdirFile.Child("v2")); err != nil {
		return 0, err
	} else if isDirectory {
		return 2, nil
	}

	ownStored := d.subdirFile.Child("stored-entries").Child(d.ownAppID)
	if isDirectory, err := d.isDirectory(ownStored); err != nil {
		return 0, err
	} else if isDirectory {
		return 1, nil
	}

	global, err := decsyncinfo.ReadOrCreateGlobal(d.globalInfoRef())
	if err != nil {
		return 0, err
	}
	return global.Version, nil
}

func (d *Decsync) isDirectory(f *decsyncfile.DecsyncFile) (bool, error) {
	node, err := f.Ref().Resolve()
	if err != nil {
		return false, err
	}
	_, ok := node.(*filesystem.DirectoryNode)
	return ok, nil
}

func (d *Decsync) persistLocalVersion(version int) error {
	local, ok, err := decsyncinfo.ReadLocal(d.localInfoFile().Ref())
	if err != nil {
		return err
	}
	if !ok {
		local = &decsyncinfo.LocalInfo{}
	}
	local.Version = version
	return decsyncinfo.WriteLocal(d.localInfoFile().Ref(), local)
}

func (d *Decsync) instantiateEngine() error {
	switch d.version {
	case 1:
		d.eng = v1engine.New(d.subdirFile, d.ownAppID, d.logger)
	case 2:
		d.eng = v2engine.New(d.subdirFile, d.localDir, d.ownAppID, d.logger)
	default:
		return &decsyncerr.UnsupportedVersionError{Found: d.version, Supported: decsyncinfo.SupportedVersion}
	}
	return nil
}

func (d *Decsync) checkNotInInit() error {
	if d.isInInit {
		return ErrReentrant
	}
	return nil
}

// AddListener registers callback to receive every delivered batch whose
// path has subpath as a prefix. The first registered matching listener (in
// registration order) wins; subpath is stripped from the delivered path
// unless this is a V2 instance, where paths are always delivered verbatim.
func (d *Decsync) AddListener(subpath []string, callback Listener) {
	d.listeners = append(d.listeners, listenerEntry{subpath: append([]string{}, subpath...), callback: callback})
}

func hasPathPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, segment := range prefix {
		if path[i] != segment {
			return false
		}
	}
	return true
}

func (d *Decsync) matchListener(path []string) (listenerEntry, []string, bool) {
	for _, l := range d.listeners {
		if !hasPathPrefix(path, l.subpath) {
			continue
		}
		delivered := path
		if d.version != 2 && len(l.subpath) > 0 {
			delivered = path[len(l.subpath):]
		}
		return l, delivered, true
	}
	return listenerEntry{}, nil, false
}

const (
	lastActiveKeyPrefix       = "last-active-"
	supportedVersionKeyPrefix = "supported-version-"
)

// isInternalInfoKey reports whether a ["info"] entry's key is one of the
// engine's own peer-visibility keys, which user listeners never see.
func isInternalInfoKey(key entry.RawValue) bool {
	var s string
	if err := json.Unmarshal(key, &s); err != nil {
		return false
	}
	return strings.HasPrefix(s, lastActiveKeyPrefix) || strings.HasPrefix(s, supportedVersionKeyPrefix)
}

func filterInternalInfo(path []string, entries []entry.Entry) []entry.Entry {
	if len(path) != 1 || path[0] != "info" {
		return entries
	}
	filtered := make([]entry.Entry, 0, len(entries))
	for _, e := range entries {
		if !isInternalInfoKey(e.Key) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// deliver filters, matches, and invokes the listener for one batch. A
// batch with no matching listener, or left empty after filtering, is
// treated as successfully handled.
func (d *Decsync) deliver(path []string, entries []entry.Entry, extra ExtraOption) bool {
	filtered := filterInternalInfo(path, entries)
	if len(filtered) == 0 {
		return true
	}
	l, delivered, ok := d.matchListener(path)
	if !ok {
		return true
	}
	return l.callback(delivered, filtered, extra)
}

// SetEntry writes a single (path, key, value) entry, stamped with the
// current datetime.
func (d *Decsync) SetEntry(path []string, key, value entry.RawValue) error {
	return d.SetEntriesForPath(path, []entry.Entry{{Key: key, Value: value}})
}

// SetEntriesForPath writes several entries rooted at the same path, all
// stamped with the current datetime.
func (d *Decsync) SetEntriesForPath(path []string, entries []entry.Entry) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	now := nowDateTime()
	withPaths := make([]entry.EntryWithPath, len(entries))
	for i, e := range entries {
		e.DateTime = now
		withPaths[i] = entry.EntryWithPath{Path: path, Entry: e}
	}
	return d.eng.SetEntries(withPaths)
}

// SetEntries writes entries at arbitrary paths, all stamped with the
// current datetime.
func (d *Decsync) SetEntries(entries []entry.EntryWithPath) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	now := nowDateTime()
	stamped := make([]entry.EntryWithPath, len(entries))
	for i, e := range entries {
		e.Entry.DateTime = now
		stamped[i] = e
	}
	return d.eng.SetEntries(stamped)
}

// ExecuteAllNewEntries reads every peer's unread entries, delivers them
// live (tagged WithExtra(extra)), and then runs maintenance (the liveness
// and supported-version heartbeats, and a triggered v1-to-v2 upgrade),
// unless disableMaintenance is true. Callers that just want a read pass
// without publishing heartbeats pass disableMaintenance=true.
func (d *Decsync) ExecuteAllNewEntries(extra any, disableMaintenance bool) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	if err := d.eng.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
		return d.deliver(path, entries, WithExtra(extra))
	}); err != nil {
		return err
	}
	if disableMaintenance {
		return nil
	}
	return d.runMaintenance()
}

// ExecuteStoredEntries replays a caller-chosen set of (path, key) pairs —
// which need not share a path — through listener matching, tagged
// WithExtra(extra). Pairs are grouped by path so that each distinct path is
// replayed with a single engine call; a path with nothing stored is simply
// skipped.
func (d *Decsync) ExecuteStoredEntries(storedEntries []entry.StoredEntry, extra any) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}

	var paths [][]string
	keysByPath := make(map[string][]entry.RawValue)
	for _, stored := range storedEntries {
		id := entry.PathIdentity(stored.Path)
		if _, seen := keysByPath[id]; !seen {
			paths = append(paths, stored.Path)
		}
		keysByPath[id] = append(keysByPath[id], stored.Key)
	}

	for _, path := range paths {
		keys := keysByPath[entry.PathIdentity(path)]
		err := d.eng.ExecuteStoredEntriesForPathExact(path, keys, func(p []string, entries []entry.Entry) bool {
			return d.deliver(p, entries, WithExtra(extra))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ExecuteStoredEntry reads a single stored (path, key) value directly,
// without going through listener matching or accepting an extra marker. It
// diverges intentionally from the general stored-entry replay surface:
// callers after a single point lookup (such as the CLI's "get") want the
// value back directly rather than via a listener callback. Use
// ExecuteStoredEntries for the general replay-through-listeners form. It
// returns (nil, false, nil) if nothing is stored there.
func (d *Decsync) ExecuteStoredEntry(path []string, key entry.RawValue) (entry.RawValue, bool, error) {
	if err := d.checkNotInInit(); err != nil {
		return nil, false, err
	}
	var value entry.RawValue
	found := false
	err := d.eng.ExecuteStoredEntriesForPathExact(path, []entry.RawValue{key}, func(_ []string, entries []entry.Entry) bool {
		for _, e := range entries {
			if string(e.Key) == string(key) {
				value, found = e.Value, true
			}
		}
		return true
	})
	return value, found, err
}

// ExecuteStoredEntriesForPathExact replays every stored entry at path
// through listener matching, tagged NoExtra.
func (d *Decsync) ExecuteStoredEntriesForPathExact(path []string, keys []entry.RawValue) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	return d.eng.ExecuteStoredEntriesForPathExact(path, keys, func(p []string, entries []entry.Entry) bool {
		return d.deliver(p, entries, NoExtra())
	})
}

// ExecuteStoredEntriesForPathPrefix replays every stored entry whose path
// has prefix through listener matching, tagged NoExtra.
func (d *Decsync) ExecuteStoredEntriesForPathPrefix(prefix []string, keys []entry.RawValue) error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	return d.eng.ExecuteStoredEntriesForPathPrefix(prefix, keys, func(p []string, entries []entry.Entry) bool {
		return d.deliver(p, entries, NoExtra())
	})
}

// InitStoredEntries replays the complete own stored snapshot through
// listener matching, tagged NoExtra, with live delivery suppressed for the
// duration.
func (d *Decsync) InitStoredEntries() error {
	if err := d.checkNotInInit(); err != nil {
		return err
	}
	d.isInInit = true
	defer func() { d.isInInit = false }()

	return d.eng.ExecuteStoredEntriesForPathPrefix(nil, nil, func(p []string, entries []entry.Entry) bool {
		return d.deliver(p, entries, NoExtra())
	})
}

// LatestAppID returns the appId whose most recently observed entry has the
// greatest datetime, ties broken in favor of this instance's own appId.
func (d *Decsync) LatestAppID() (string, error) {
	return d.eng.LatestAppID()
}

// runMaintenance runs the upgrade check and publishes liveness/supported-
// version heartbeats.
func (d *Decsync) runMaintenance() error {
	upgraded, err := d.maybeUpgrade()
	if err != nil {
		return err
	}
	if upgraded {
		if err := d.eng.ExecuteAllNewEntries(func(path []string, entries []entry.Entry) bool {
			return d.deliver(path, entries, WithExtra(nil))
		}); err != nil {
			return err
		}
	}

	local, ok, err := decsyncinfo.ReadLocal(d.localInfoFile().Ref())
	if err != nil {
		return err
	}
	if !ok {
		local = &decsyncinfo.LocalInfo{Version: d.version}
	}

	if today := nowDate(); today > local.LastActive {
		local.LastActive = today
		if err := decsyncinfo.WriteLocal(d.localInfoFile().Ref(), local); err != nil {
			return err
		}
		dateJSON, err := json.Marshal(today)
		if err != nil {
			return errors.Wrap(err, "unable to marshal date")
		}
		if err := d.publishInfo(lastActiveKeyPrefix+d.ownAppID, dateJSON); err != nil {
			return err
		}
	}

	if decsyncinfo.SupportedVersion > local.SupportedVersion {
		local.SupportedVersion = decsyncinfo.SupportedVersion
		if err := decsyncinfo.WriteLocal(d.localInfoFile().Ref(), local); err != nil {
			return err
		}
		versionJSON, err := json.Marshal(decsyncinfo.SupportedVersion)
		if err != nil {
			return errors.Wrap(err, "unable to marshal version")
		}
		if err := d.publishInfo(supportedVersionKeyPrefix+d.ownAppID, versionJSON); err != nil {
			return err
		}
	}

	return nil
}

func (d *Decsync) publishInfo(key string, value entry.RawValue) error {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return errors.Wrap(err, "unable to marshal key")
	}
	now := nowDateTime()
	return d.eng.SetEntries([]entry.EntryWithPath{
		{Path: []string{"info"}, Entry: entry.Entry{DateTime: now, Key: keyJSON, Value: value}},
	})
}

// maybeUpgrade migrates this instance from v1 to v2 when the shared
// .decsync-info names a version above the one this instance is currently
// using.
func (d *Decsync) maybeUpgrade() (bool, error) {
	global, err := decsyncinfo.ReadOrCreateGlobal(d.globalInfoRef())
	if err != nil {
		return false, err
	}
	if global.Version <= d.version {
		return false, nil
	}
	if err := d.upgrade(global.Version); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Decsync) upgrade(newVersion int) error {
	if d.version != 1 || newVersion != 2 {
		return &decsyncerr.UnsupportedVersionError{Found: newVersion, Supported: decsyncinfo.SupportedVersion}
	}

	oldEngine := v1engine.New(d.subdirFile, d.ownAppID, d.logger)

	var collected []entry.EntryWithPath
	err := oldEngine.ExecuteStoredEntriesForPathPrefix(nil, nil, func(path []string, entries []entry.Entry) bool {
		for _, e := range entries {
			collected = append(collected, entry.EntryWithPath{Path: path, Entry: e})
		}
		return true
	})
	if err != nil {
		return err
	}

	newEngine := v2engine.New(d.subdirFile, d.localDir, d.ownAppID, d.logger)
	if len(collected) > 0 {
		if err := newEngine.SetEntries(collected); err != nil {
			return err
		}
	}

	d.version = 2
	d.eng = newEngine
	if err := d.persistLocalVersion(2); err != nil {
		return err
	}

	d.cleanupV1Own()
	return nil
}

// cleanupV1Own deletes this instance's own V1 subdirectories after a
// successful upgrade. Failure is logged, not propagated: the data has
// already been migrated, and a leftover V1 directory is harmless clutter
// rather than a correctness problem.
func (d *Decsync) cleanupV1Own() {
	dirs := []*decsyncfile.DecsyncFile{
		d.subdirFile.Child("info").Child(d.ownAppID),
		d.subdirFile.Child("new-entries").Child(d.ownAppID),
		d.subdirFile.Child("read-bytes").Child(d.ownAppID),
		d.subdirFile.Child("stored-entries").Child(d.ownAppID),
	}
	for _, dir := range dirs {
		if err := dir.Ref().Delete(); err != nil && d.logger != nil {
			d.logger.Warn(errors.Wrap(err, "non-fatal: unable to clean up v1 directory after upgrade"))
		}
	}
}

// resolveSubdir locates decsyncDir/syncType[/collection] and detects which
// engine format is in play there, without constructing a full instance
// (used by the static, instance-free operations below).
func resolveSubdir(decsyncRoot *filesystem.Ref, syncType, collection string) (*decsyncfile.DecsyncFile, int, error) {
	root := decsyncfile.New(decsyncRoot)
	subdir := root.Child(syncType)
	if collection != "" {
		subdir = subdir.Child(collection)
	}

	node, err := subdir.Child("v2").Ref().Resolve()
	if err != nil {
		return nil, 0, err
	}
	if _, ok := node.(*filesystem.DirectoryNode); ok {
		return subdir, 2, nil
	}
	return subdir, 1, nil
}

// GetStaticInfo reads the merged ["info"] entries for one sync type and
// optional collection directly from disk, without requiring a live
// instance.
func GetStaticInfo(decsyncRoot *filesystem.Ref, syncType, collection string) (map[string]entry.RawValue, error) {
	subdir, version, err := resolveSubdir(decsyncRoot, syncType, collection)
	if err != nil {
		return nil, err
	}
	if version == 2 {
		return v2engine.StaticInfo(subdir)
	}
	return v1engine.StaticInfo(subdir)
}

// GetActiveApps derives AppData for every appId advertised via
// informational heartbeat keys, without requiring a live instance.
func GetActiveApps(decsyncRoot *filesystem.Ref, syncType, collection string) ([]entry.AppData, error) {
	subdir, version, err := resolveSubdir(decsyncRoot, syncType, collection)
	if err != nil {
		return nil, err
	}
	if version == 2 {
		return v2engine.ActiveApps(subdir)
	}
	return v1engine.ActiveApps(subdir)
}

// ListCollections lists the collections present under one sync type.
func ListCollections(decsyncRoot *filesystem.Ref, syncType string) ([]string, error) {
	root := decsyncfile.New(decsyncRoot)
	return root.Child(syncType).Children()
}

// CheckDecsyncInfo validates that decsyncDir's global `.decsync-info`
// exists and names a supported version, without creating or modifying it.
func CheckDecsyncInfo(decsyncRoot *filesystem.Ref) error {
	ref := decsyncRoot.Child(".decsync-info")
	data, err := ref.Read(0)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return &decsyncerr.InvalidInfoError{Cause: errors.New(".decsync-info does not exist")}
	}
	_, err = decsyncinfo.ReadOrCreateGlobal(ref)
	return err
}
