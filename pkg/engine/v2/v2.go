// Package v2 implements the hash-bucketed DecSync on-disk layout (component
// F): entries for every path are partitioned across 256 hash
// buckets (plus a reserved "info" bucket), each bucket holding its own
// EntryWithPath log. Unlike V1, a bucket's log doubles as its own snapshot
// (it is rewritten in full on every write), and peers discover changes via
// a monotonic per-bucket sequence counter rather than a byte cursor.
package v2

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/decsyncfile"
	"github.com/decsync-io/decsync/pkg/engine"
	"github.com/decsync-io/decsync/pkg/entry"
	"github.com/decsync-io/decsync/pkg/logging"
)

// infoBucket is the reserved bucket name for path == ["info"], keeping
// global info writes from ever competing with hashed writes for a bucket.
const infoBucket = "info"

const sequencesFileName = "sequences"

// Engine is the V2 on-disk format implementation of engine.Engine.
type Engine struct {
	v2Dir    *decsyncfile.DecsyncFile // subdir/v2
	localDir *decsyncfile.DecsyncFile // instance-private cursor store, not part of the synced tree
	ownAppID string
	logger   *logging.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New constructs a V2 engine. subdir is the instance's syncType[/collection]
// directory; localDir is the dispatcher's private per-instance directory
// where the peer read-sequence bookkeeping is kept.
func New(subdir, localDir *decsyncfile.DecsyncFile, ownAppID string, logger *logging.Logger) *Engine {
	return &Engine{v2Dir: subdir.Child("v2"), localDir: localDir, ownAppID: ownAppID, logger: logger}
}

func (e *Engine) ownDir() *decsyncfile.DecsyncFile { return e.v2Dir.Child(e.ownAppID) }

// bucketFor computes the bucket a path is written into: the reserved
// "info" bucket for path == ["info"], otherwise a rolling polynomial hash
// of each segment combined across segments.
func bucketFor(path []string) string {
	if len(path) == 1 && path[0] == "info" {
		return infoBucket
	}
	combined := 0
	for _, segment := range path {
		h := 0
		for i := 0; i < len(segment); i++ {
			h = (h*19 + int(segment[i])) % 256
		}
		combined = (combined*199 + h) % 256
	}
	return fmt.Sprintf("%02x", combined)
}

type bucketGroup struct {
	bucket  string
	entries []entry.EntryWithPath
}

func groupByBucket(entries []entry.EntryWithPath) []bucketGroup {
	index := make(map[string]int)
	var groups []bucketGroup
	for _, withPath := range entries {
		bucket := bucketFor(withPath.Path)
		i, ok := index[bucket]
		if !ok {
			i = len(groups)
			index[bucket] = i
			groups = append(groups, bucketGroup{bucket: bucket})
		}
		groups[i].entries = append(groups[i].entries, withPath)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].bucket < groups[j].bucket })
	return groups
}

// SetEntries implements engine.Engine.
func (e *Engine) SetEntries(entries []entry.EntryWithPath) error {
	for _, group := range groupByBucket(entries) {
		if err := e.setEntriesForBucket(group.bucket, group.entries); err != nil {
			return err
		}
	}
	return nil
}

// setEntriesForBucket merges incoming entries into own bucket's current
// content, rewrites it in full if anything changed, and bumps that
// bucket's sequence counter.
func (e *Engine) setEntriesForBucket(bucket string, incoming []entry.EntryWithPath) error {
	if len(incoming) == 0 {
		return nil
	}

	bucketFile := e.ownDir().Child(bucket)
	stored, order, err := e.readBucketMap(bucketFile)
	if err != nil {
		return err
	}

	dedup, dedupOrder := dedupeByKeyIdentity(incoming)

	changed := false
	for _, k := range dedupOrder {
		candidate := dedup[k]
		if existing, ok := stored[k]; ok && !entry.Newer(candidate.Entry, existing.Entry) {
			continue
		}
		if _, existed := stored[k]; !existed {
			order = append(order, k)
		}
		stored[k] = candidate
		changed = true
	}
	if !changed {
		return nil
	}

	if err := e.writeBucketMap(bucketFile, stored, order); err != nil {
		return err
	}
	return e.bumpOwnSequence(bucket)
}

func dedupeByKeyIdentity(incoming []entry.EntryWithPath) (map[string]entry.EntryWithPath, []string) {
	dedup := make(map[string]entry.EntryWithPath, len(incoming))
	order := make([]string, 0, len(incoming))
	for _, withPath := range incoming {
		k := entry.KeyIdentity(withPath.Path, withPath.Entry.Key)
		existing, ok := dedup[k]
		if !ok {
			dedup[k] = withPath
			order = append(order, k)
			continue
		}
		if entry.Newer(withPath.Entry, existing.Entry) {
			dedup[k] = withPath
		}
	}
	return dedup, order
}

func (e *Engine) readBucketMap(f *decsyncfile.DecsyncFile) (map[string]entry.EntryWithPath, []string, error) {
	lines, err := f.ReadLines(0)
	if err != nil {
		return nil, nil, err
	}
	m := make(map[string]entry.EntryWithPath, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		var parsed entry.EntryWithPath
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			if e.logger != nil {
				e.logger.Warn(errors.Wrap(err, "skipping malformed bucket line"))
			}
			continue
		}
		k := entry.KeyIdentity(parsed.Path, parsed.Entry.Key)
		existing, ok := m[k]
		if !ok {
			order = append(order, k)
			m[k] = parsed
		} else if entry.Newer(parsed.Entry, existing.Entry) {
			m[k] = parsed
		}
	}
	return m, order, nil
}

func (e *Engine) writeBucketMap(f *decsyncfile.DecsyncFile, m map[string]entry.EntryWithPath, order []string) error {
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

func (e *Engine) bumpOwnSequence(bucket string) error {
	sequences, err := readSequencesFile(e.ownDir().Child(sequencesFileName))
	if err != nil {
		return err
	}
	sequences[bucket]++
	return writeSequencesFile(e.ownDir().Child(sequencesFileName), sequences)
}

// readSequencesFile reads a {bucket: int} JSON object, treating an absent
// or corrupt file as empty (a corrupt sequences file
// forces a full re-read on the next pass rather than failing).
func readSequencesFile(f *decsyncfile.DecsyncFile) (map[string]int, error) {
	text, ok, err := f.ReadText()
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[string]int), nil
	}
	var result map[string]int
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return make(map[string]int), nil
	}
	return result, nil
}

func writeSequencesFile(f *decsyncfile.DecsyncFile, sequences map[string]int) error {
	data, err := json.Marshal(sequences)
	if err != nil {
		return errors.Wrap(err, "unable to marshal sequences")
	}
	return f.WriteText(string(data))
}

func (e *Engine) readLocalSequences() (map[string]map[string]int, error) {
	text, ok, err := e.localDir.Child(sequencesFileName).ReadText()
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[string]map[string]int), nil
	}
	var result map[string]map[string]int
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return make(map[string]map[string]int), nil
	}
	return result, nil
}

func (e *Engine) writeLocalSequences(all map[string]map[string]int) error {
	data, err := json.Marshal(all)
	if err != nil {
		return errors.Wrap(err, "unable to marshal local sequences")
	}
	return e.localDir.Child(sequencesFileName).WriteText(string(data))
}

// ExecuteAllNewEntries implements engine.Engine.
func (e *Engine) ExecuteAllNewEntries(deliver engine.DeliverLive) error {
	e.v2Dir.Ref().Tree().ResetCache()

	peerAppIDs, err := e.v2Dir.Children()
	if err != nil {
		return err
	}

	local, err := e.readLocalSequences()
	if err != nil {
		return err
	}

	for _, peerAppID := range peerAppIDs {
		if peerAppID == e.ownAppID {
			continue
		}

		peerSequences, err := readSequencesFile(e.v2Dir.Child(peerAppID).Child(sequencesFileName))
		if err != nil {
			return err
		}

		recorded := local[peerAppID]
		if recorded == nil {
			recorded = make(map[string]int)
		}

		for bucket, seq := range peerSequences {
			if recorded[bucket] == seq {
				continue
			}
			if err := e.mergePeerBucket(peerAppID, bucket, deliver); err != nil {
				return err
			}
			recorded[bucket] = seq
		}
		local[peerAppID] = recorded
	}

	return e.writeLocalSequences(local)
}

// mergePeerBucket reads one peer bucket file in full, merges it into the
// corresponding own bucket, and delivers survivors grouped by path. Unlike
// V1, delivery success does not gate anything
// here: the read cursor is the bucket-level sequence number recorded by
// the caller, and a failed delivery is not independently retried — the
// bucket will simply be re-read in full again the next time its sequence
// changes.
func (e *Engine) mergePeerBucket(peerAppID, bucket string, deliver engine.DeliverLive) error {
	lines, err := e.v2Dir.Child(peerAppID).Child(bucket).ReadLines(0)
	if err != nil {
		return err
	}

	var incoming []entry.EntryWithPath
	for _, line := range lines {
		var parsed entry.EntryWithPath
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			if e.logger != nil {
				e.logger.Warn(errors.Wrap(err, "skipping malformed bucket line"))
			}
			continue
		}
		incoming = append(incoming, parsed)
	}

	ownBucketFile := e.ownDir().Child(bucket)
	stored, storedOrder, err := e.readBucketMap(ownBucketFile)
	if err != nil {
		return err
	}

	dedup, dedupOrder := dedupeByKeyIdentity(incoming)

	type survivorGroup struct {
		path    []string
		entries []entry.Entry
	}
	groups := make(map[string]*survivorGroup)
	var pathOrder []string
	changed := false

	for _, k := range dedupOrder {
		candidate := dedup[k]
		if existing, ok := stored[k]; ok && !entry.Newer(candidate.Entry, existing.Entry) {
			continue
		}
		if _, existed := stored[k]; !existed {
			storedOrder = append(storedOrder, k)
		}
		stored[k] = candidate
		changed = true

		pathID := entry.PathIdentity(candidate.Path)
		g, ok := groups[pathID]
		if !ok {
			g = &survivorGroup{path: candidate.Path}
			groups[pathID] = g
			pathOrder = append(pathOrder, pathID)
		}
		g.entries = append(g.entries, candidate.Entry)
	}

	if changed {
		if err := e.writeBucketMap(ownBucketFile, stored, storedOrder); err != nil {
			return err
		}
	}

	for _, pathID := range pathOrder {
		g := groups[pathID]
		deliver(g.path, g.entries)
	}
	return nil
}

type pathEntries struct {
	path    []string
	entries []entry.Entry
}

// collectStored scans every own bucket (a full scan is unavoidable: paths
// are scattered across buckets by hash, not hierarchy) and groups matching
// entries by path.
func (e *Engine) collectStored(matches func(path []string) bool, keys []entry.RawValue) (map[string]*pathEntries, []string, error) {
	buckets, err := e.ownDir().Children()
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string]*pathEntries)
	var order []string
	for _, bucket := range buckets {
		if bucket == sequencesFileName {
			continue
		}
		stored, _, err := e.readBucketMap(e.ownDir().Child(bucket))
		if err != nil {
			return nil, nil, err
		}
		for _, withPath := range stored {
			if !matches(withPath.Path) || !keyAllowed(withPath.Entry.Key, keys) {
				continue
			}
			id := entry.PathIdentity(withPath.Path)
			g, ok := groups[id]
			if !ok {
				g = &pathEntries{path: withPath.Path}
				groups[id] = g
				order = append(order, id)
			}
			g.entries = append(g.entries, withPath.Entry)
		}
	}
	return groups, order, nil
}

func hasPrefix(path, prefix []string) bool {
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

func keyAllowed(key entry.RawValue, keys []entry.RawValue) bool {
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if string(k) == string(key) {
			return true
		}
	}
	return false
}

// ExecuteStoredEntriesForPathPrefix implements engine.Engine.
func (e *Engine) ExecuteStoredEntriesForPathPrefix(prefix []string, keys []entry.RawValue, deliver engine.DeliverReplay) error {
	groups, order, err := e.collectStored(func(path []string) bool { return hasPrefix(path, prefix) }, keys)
	if err != nil {
		return err
	}
	for _, id := range order {
		g := groups[id]
		deliver(g.path, g.entries)
	}
	return nil
}

// ExecuteStoredEntriesForPathExact implements engine.Engine.
func (e *Engine) ExecuteStoredEntriesForPathExact(path []string, keys []entry.RawValue, deliver engine.DeliverReplay) error {
	target := entry.PathIdentity(path)
	groups, order, err := e.collectStored(func(p []string) bool { return entry.PathIdentity(p) == target }, keys)
	if err != nil {
		return err
	}
	for _, id := range order {
		g := groups[id]
		deliver(g.path, g.entries)
	}
	return nil
}

// LatestAppID implements engine.Engine: max datetime across every entry in
// every bucket of every appId, ties broken in favor of ownAppID.
func (e *Engine) LatestAppID() (string, error) {
	appIDs, err := e.v2Dir.Children()
	if err != nil {
		return "", err
	}

	best, bestDateTime := "", ""
	for _, appID := range appIDs {
		buckets, err := e.v2Dir.Child(appID).Children()
		if err != nil {
			return "", err
		}
		for _, bucket := range buckets {
			if bucket == sequencesFileName {
				continue
			}
			lines, err := e.v2Dir.Child(appID).Child(bucket).ReadLines(0)
			if err != nil {
				return "", err
			}
			for _, line := range lines {
				var parsed entry.EntryWithPath
				if err := json.Unmarshal([]byte(line), &parsed); err != nil {
					continue
				}
				dt := parsed.Entry.DateTime
				if best == "" || dt > bestDateTime || (dt == bestDateTime && appID == e.ownAppID) {
					best, bestDateTime = appID, dt
				}
			}
		}
	}
	if best == "" {
		return e.ownAppID, nil
	}
	return best, nil
}

// StaticInfo reads every app's reserved "info" bucket directly — without
// requiring a live instance for any of them — and merges entries by the
// supersede rule, keyed by entry key. subdir is
// the instance's syncType[/collection] directory (StaticInfo appends "v2"
// itself).
func StaticInfo(subdir *decsyncfile.DecsyncFile) (map[string]entry.RawValue, error) {
	v2Dir := subdir.Child("v2")
	appIDs, err := v2Dir.Children()
	if err != nil {
		return nil, err
	}

	best := make(map[string]entry.Entry)
	for _, appID := range appIDs {
		lines, err := v2Dir.Child(appID).Child(infoBucket).ReadLines(0)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			var parsed entry.EntryWithPath
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				continue
			}
			if len(parsed.Path) != 1 || parsed.Path[0] != "info" {
				continue
			}
			k := string(parsed.Entry.Key)
			if existing, ok := best[k]; !ok || entry.Newer(parsed.Entry, existing) {
				best[k] = parsed.Entry
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
func ActiveApps(subdir *decsyncfile.DecsyncFile) ([]entry.AppData, error) {
	info, err := StaticInfo(subdir)
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
