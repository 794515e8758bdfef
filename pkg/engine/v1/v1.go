// Package v1 implements the original DecSync on-disk layout (component E):
// per-path log files under four appId-partitioned directories,
// with a per-directory decsync-sequence counter driving the sequence-skip
// traversal optimization in pkg/decsyncfile.
package v1

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/decsyncfile"
	"github.com/decsync-io/decsync/pkg/engine"
	"github.com/decsync-io/decsync/pkg/entry"
	"github.com/decsync-io/decsync/pkg/filesystem"
	"github.com/decsync-io/decsync/pkg/logging"
)

// Engine is the V1 on-disk format implementation of engine.Engine.
type Engine struct {
	root     *decsyncfile.DecsyncFile
	ownAppID string
	logger   *logging.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New constructs a V1 engine rooted at subdir, the instance's
// syncType[/collection] directory.
func New(root *decsyncfile.DecsyncFile, ownAppID string, logger *logging.Logger) *Engine {
	return &Engine{root: root, ownAppID: ownAppID, logger: logger}
}

func (e *Engine) infoDir() *decsyncfile.DecsyncFile          { return e.root.Child("info") }
func (e *Engine) newEntriesDir() *decsyncfile.DecsyncFile    { return e.root.Child("new-entries") }
func (e *Engine) readBytesDir() *decsyncfile.DecsyncFile     { return e.root.Child("read-bytes") }
func (e *Engine) storedEntriesDir() *decsyncfile.DecsyncFile { return e.root.Child("stored-entries") }

func (e *Engine) ownNewEntries() *decsyncfile.DecsyncFile    { return e.newEntriesDir().Child(e.ownAppID) }
func (e *Engine) ownStoredEntries() *decsyncfile.DecsyncFile { return e.storedEntriesDir().Child(e.ownAppID) }

func (e *Engine) latestStoredEntryFile(appID string) *decsyncfile.DecsyncFile {
	return e.infoDir().Child(appID).Child("latest-stored-entry")
}

// pathGroup is one path's batch of incoming entries, used by SetEntries to
// process writes one path at a time.
type pathGroup struct {
	path    []string
	entries []entry.Entry
}

func groupByPath(entries []entry.EntryWithPath) []pathGroup {
	index := make(map[string]int)
	var groups []pathGroup
	for _, withPath := range entries {
		id := entry.PathIdentity(withPath.Path)
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, pathGroup{path: withPath.Path})
		}
		groups[i].entries = append(groups[i].entries, withPath.Entry)
	}
	sort.Slice(groups, func(i, j int) bool {
		return entry.PathIdentity(groups[i].path) < entry.PathIdentity(groups[j].path)
	})
	return groups
}

// SetEntries implements engine.Engine.
func (e *Engine) SetEntries(entries []entry.EntryWithPath) error {
	for _, group := range groupByPath(entries) {
		if err := e.setEntriesForPath(group.path, group.entries); err != nil {
			return err
		}
	}
	return nil
}

// setEntriesForPath applies one path's incoming batch against the own
// stored snapshot, appends surviving entries to the own new-entries log,
// and bumps the decsync-sequence counter of every ancestor directory of
// that log file.
func (e *Engine) setEntriesForPath(path []string, incoming []entry.Entry) error {
	if len(incoming) == 0 {
		return nil
	}

	dedup, order := dedupeEntries(incoming)

	storedFile := e.ownStoredEntries().ChildPath(path)
	storedMap, storedOrder, err := e.readEntryMap(storedFile)
	if err != nil {
		return err
	}

	survivors, changed := mergeSurvivors(dedup, order, storedMap, &storedOrder)
	if !changed {
		return nil
	}

	if err := e.writeEntryMap(storedFile, storedMap, storedOrder); err != nil {
		return err
	}
	if err := e.latestStoredEntryFile(e.ownAppID).WriteText(maxDateTime(survivors)); err != nil {
		return err
	}

	lines := make([]string, len(survivors))
	for i, s := range survivors {
		data, err := json.Marshal(s)
		if err != nil {
			return errors.Wrap(err, "unable to marshal entry")
		}
		lines[i] = string(data)
	}
	if err := e.ownNewEntries().ChildPath(path).WriteLines(lines, true); err != nil {
		return err
	}

	for i := 0; i < len(path); i++ {
		if err := decsyncfile.IncrementSequence(e.ownNewEntries().ChildPath(path[:i])); err != nil {
			return err
		}
	}
	return nil
}

// dedupeEntries keeps, per key, only the newest of possibly-several
// entries for that key within a single incoming batch, preserving first-
// seen key order.
func dedupeEntries(incoming []entry.Entry) (map[string]entry.Entry, []string) {
	dedup := make(map[string]entry.Entry, len(incoming))
	order := make([]string, 0, len(incoming))
	for _, e := range incoming {
		k := string(e.Key)
		existing, ok := dedup[k]
		if !ok {
			dedup[k] = e
			order = append(order, k)
			continue
		}
		if entry.Newer(e, existing) {
			dedup[k] = e
		}
	}
	return dedup, order
}

// mergeSurvivors applies the supersede rule between a deduped incoming
// batch and an existing stored map, mutating stored in place and appending
// newly-seen keys to *storedOrder. It returns the entries that survived
// (i.e. actually changed the stored snapshot) in incoming order.
func mergeSurvivors(dedup map[string]entry.Entry, order []string, stored map[string]entry.Entry, storedOrder *[]string) ([]entry.Entry, bool) {
	var survivors []entry.Entry
	changed := false
	for _, k := range order {
		candidate := dedup[k]
		if existing, ok := stored[k]; ok && !entry.Newer(candidate, existing) {
			continue
		}
		if _, existed := stored[k]; !existed {
			*storedOrder = append(*storedOrder, k)
		}
		stored[k] = candidate
		survivors = append(survivors, candidate)
		changed = true
	}
	return survivors, changed
}

func maxDateTime(entries []entry.Entry) string {
	max := entries[0].DateTime
	for _, e := range entries[1:] {
		if e.DateTime > max {
			max = e.DateTime
		}
	}
	return max
}

// readEntryMap reads a stored-entries leaf file into a key->Entry map,
// skipping and logging any malformed line, and returns the keys in
// first-seen order.
func (e *Engine) readEntryMap(f *decsyncfile.DecsyncFile) (map[string]entry.Entry, []string, error) {
	lines, err := f.ReadLines(0)
	if err != nil {
		return nil, nil, err
	}
	m := make(map[string]entry.Entry, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		var parsed entry.Entry
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			if e.logger != nil {
				e.logger.Warn(errors.Wrap(err, "skipping malformed stored entry line"))
			}
			continue
		}
		k := string(parsed.Key)
		existing, ok := m[k]
		if !ok {
			order = append(order, k)
			m[k] = parsed
		} else if entry.Newer(parsed, existing) {
			m[k] = parsed
		}
	}
	return m, order, nil
}

func (e *Engine) writeEntryMap(f *decsyncfile.DecsyncFile, m map[string]entry.Entry, order []string) error {
	lines := make([]string, 0, len(order))
	for _, k := range order {
		parsed, ok := m[k]
		if !ok {
			continue
		}
		data, err := json.Marshal(parsed)
		if err != nil {
			return errors.Wrap(err, "unable to marshal entry")
		}
		lines = append(lines, string(data))
	}
	return f.WriteLines(lines, false)
}

// ExecuteAllNewEntries implements engine.Engine.
func (e *Engine) ExecuteAllNewEntries(deliver engine.DeliverLive) error {
	e.root.Ref().Tree().ResetCache()

	peerAppIDs, err := e.newEntriesDir().Children()
	if err != nil {
		return err
	}

	for _, peerAppID := range peerAppIDs {
		if peerAppID == e.ownAppID {
			continue
		}
		if err := e.executeNewEntriesFromPeer(peerAppID, deliver); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeNewEntriesFromPeer(peerAppID string, deliver engine.DeliverLive) error {
	peerLog := e.newEntriesDir().Child(peerAppID)
	cursorDir := e.readBytesDir().Child(e.ownAppID).Child(peerAppID)

	action := func(path []string) (bool, error) {
		return e.executeNewEntriesForPath(peerAppID, path, deliver)
	}

	return decsyncfile.ListFilesRecursiveRelative(peerLog, cursorDir, decsyncfile.AllPaths, action)
}

// executeNewEntriesForPath reads a single peer log file from its current
// cursor, merges any newly-visible entries into the own stored snapshot,
// delivers survivors, and advances the cursor only if delivery succeeded.
func (e *Engine) executeNewEntriesForPath(peerAppID string, path []string, deliver engine.DeliverLive) (bool, error) {
	logFile := e.newEntriesDir().Child(peerAppID).ChildPath(path)
	cursorFile := e.readBytesDir().Child(e.ownAppID).Child(peerAppID).ChildPath(path)

	cursor, err := readCursor(cursorFile)
	if err != nil {
		return false, err
	}

	length, err := logFile.Ref().Length()
	if err != nil {
		return false, err
	}
	if cursor >= length {
		return true, nil
	}

	raw, err := logFile.Ref().Read(cursor)
	if err != nil {
		return false, err
	}

	newCursor := cursor + int64(len(raw))
	batch, order := dedupeEntries(parseEntryLines(e.logger, decsyncfile.SplitNonBlankLines(raw)))
	if len(batch) == 0 {
		return true, cursorFile.WriteText(strconv.FormatInt(newCursor, 10))
	}

	storedFile := e.ownStoredEntries().ChildPath(path)
	storedMap, storedOrder, err := e.readEntryMap(storedFile)
	if err != nil {
		return false, err
	}

	survivors, changed := mergeSurvivors(batch, order, storedMap, &storedOrder)
	if len(survivors) > 0 && !deliver(path, survivors) {
		return false, nil
	}

	if changed {
		if err := e.writeEntryMap(storedFile, storedMap, storedOrder); err != nil {
			return false, err
		}
		if err := e.latestStoredEntryFile(e.ownAppID).WriteText(maxDateTime(survivors)); err != nil {
			return false, err
		}
	}

	return true, cursorFile.WriteText(strconv.FormatInt(newCursor, 10))
}

func readCursor(f *decsyncfile.DecsyncFile) (int64, error) {
	text, ok, err := f.ReadText()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, nil
	}
	return value, nil
}

func parseEntryLines(logger *logging.Logger, lines []string) []entry.Entry {
	entries := make([]entry.Entry, 0, len(lines))
	for _, line := range lines {
		var parsed entry.Entry
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			if logger != nil {
				logger.Warn(errors.Wrap(err, "skipping malformed new-entries line"))
			}
			continue
		}
		entries = append(entries, parsed)
	}
	return entries
}

// ExecuteStoredEntriesForPathPrefix implements engine.Engine.
func (e *Engine) ExecuteStoredEntriesForPathPrefix(prefix []string, keys []entry.RawValue, deliver engine.DeliverReplay) error {
	dir := e.ownStoredEntries().ChildPath(prefix)
	action := func(relPath []string) (bool, error) {
		fullPath := append(append([]string{}, prefix...), relPath...)
		return e.replayStoredPath(fullPath, keys, deliver)
	}
	return decsyncfile.ListFilesRecursiveRelative(dir, nil, decsyncfile.AllPaths, action)
}

// ExecuteStoredEntriesForPathExact implements engine.Engine.
func (e *Engine) ExecuteStoredEntriesForPathExact(path []string, keys []entry.RawValue, deliver engine.DeliverReplay) error {
	storedFile := e.ownStoredEntries().ChildPath(path)
	node, err := storedFile.Ref().Resolve()
	if err != nil {
		return err
	}
	if _, ok := node.(*filesystem.FileNode); !ok {
		return nil
	}
	_, err = e.replayStoredPath(path, keys, deliver)
	return err
}

func (e *Engine) replayStoredPath(path []string, keys []entry.RawValue, deliver engine.DeliverReplay) (bool, error) {
	storedMap, _, err := e.readEntryMap(e.ownStoredEntries().ChildPath(path))
	if err != nil {
		return false, err
	}
	entries := filterByKeys(storedMap, keys)
	if len(entries) == 0 {
		return true, nil
	}
	return deliver(path, entries), nil
}

func filterByKeys(m map[string]entry.Entry, keys []entry.RawValue) []entry.Entry {
	var result []entry.Entry
	if len(keys) == 0 {
		result = make([]entry.Entry, 0, len(m))
		for _, e := range m {
			result = append(result, e)
		}
	} else {
		allowed := make(map[string]bool, len(keys))
		for _, k := range keys {
			allowed[string(k)] = true
		}
		for k, e := range m {
			if allowed[k] {
				result = append(result, e)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return string(result[i].Key) < string(result[j].Key)
	})
	return result
}

// LatestAppID implements engine.Engine.
func (e *Engine) LatestAppID() (string, error) {
	appIDs, err := e.infoDir().Children()
	if err != nil {
		return "", err
	}

	best, bestDateTime := "", ""
	for _, appID := range appIDs {
		text, ok, err := e.latestStoredEntryFile(appID).ReadText()
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if best == "" || text > bestDateTime || (text == bestDateTime && appID == e.ownAppID) {
			best, bestDateTime = appID, text
		}
	}
	if best == "" {
		return e.ownAppID, nil
	}
	return best, nil
}

// StaticInfo reads every known app's own informational entries directly
// from its new-entries log — without requiring a live instance for any of
// them — and merges them by the supersede rule, keyed by entry key.
func StaticInfo(root *decsyncfile.DecsyncFile) (map[string]entry.RawValue, error) {
	newEntriesDir := root.Child("new-entries")
	appIDs, err := newEntriesDir.Children()
	if err != nil {
		return nil, err
	}

	best := make(map[string]entry.Entry)
	for _, appID := range appIDs {
		lines, err := newEntriesDir.Child(appID).Child("info").ReadLines(0)
		if err != nil {
			return nil, err
		}
		for _, e := range parseEntryLines(nil, lines) {
			k := string(e.Key)
			if existing, ok := best[k]; !ok || entry.Newer(e, existing) {
				best[k] = e
			}
		}
	}

	result := make(map[string]entry.RawValue, len(best))
	for _, e := range best {
		var key string
		if err := json.Unmarshal(e.Key, &key); err != nil {
			continue
		}
		result[key] = e.Value
	}
	return result, nil
}

const (
	lastActiveKeyPrefix       = "last-active-"
	supportedVersionKeyPrefix = "supported-version-"
)

// ActiveApps derives AppData for every appId advertised via last-active-*
// and supported-version-* informational keys.
func ActiveApps(root *decsyncfile.DecsyncFile) ([]entry.AppData, error) {
	info, err := StaticInfo(root)
	if err != nil {
		return nil, err
	}

	apps := make(map[string]*entry.AppData)
	get := func(appID string) *entry.AppData {
		if a, ok := apps[appID]; ok {
			return a
		}
		a := &entry.AppData{AppID: appID}
		apps[appID] = a
		return a
	}

	for key, value := range info {
		switch {
		case strings.HasPrefix(key, lastActiveKeyPrefix):
			var date string
			if err := json.Unmarshal(value, &date); err == nil {
				get(strings.TrimPrefix(key, lastActiveKeyPrefix)).LastActive = date
			}
		case strings.HasPrefix(key, supportedVersionKeyPrefix):
			var version int
			if err := json.Unmarshal(value, &version); err == nil {
				get(strings.TrimPrefix(key, supportedVersionKeyPrefix)).Version = version
			}
		}
	}

	result := make([]entry.AppData, 0, len(apps))
	for _, a := range apps {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppID < result[j].AppID })
	return result, nil
}
