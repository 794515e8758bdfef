// Package engine declares the contract both on-disk format engines
// (pkg/engine/v1 and pkg/engine/v2) implement, so that the dispatcher
// (component G, the root decsync package) can drive either one
// interchangeably once it has decided which format is active.
package engine

import (
	"github.com/decsync-io/decsync/pkg/entry"
)

// DeliverLive is invoked once per path with the batch of newly-observed
// entries found there during ExecuteAllNewEntries. Its return value
// indicates whether delivery succeeded. The V1 engine only advances that
// path's read cursor (and the ancestor sequence-skip cache covering it) if
// it did, so a failed delivery is retried on the next pass; the V2 engine
// ignores the return value and does not redeliver a failed batch.
type DeliverLive func(path []string, entries []entry.Entry) bool

// DeliverReplay is invoked once per path with its full current entry batch
// during a stored-entries replay (no cursor is involved, so there is
// nothing to retry; a false return is only useful for the caller's own
// bookkeeping).
type DeliverReplay func(path []string, entries []entry.Entry) bool

// Engine is the interface satisfied by both the V1 and V2 on-disk format
// implementations.
type Engine interface {
	// SetEntries writes own-app entries, applying the supersede rule
	// against the current own snapshot and appending only real changes to
	// the new-entries log.
	SetEntries(entries []entry.EntryWithPath) error

	// ExecuteAllNewEntries scans every peer's unread log entries and
	// delivers them. V1 advances the read cursor of every path whose
	// delivery succeeded; V2 records each changed peer bucket's sequence
	// whether or not its delivery succeeded.
	ExecuteAllNewEntries(deliver DeliverLive) error

	// ExecuteStoredEntriesForPathPrefix replays every own stored entry
	// whose path has the given prefix (or every stored entry, if prefix is
	// empty). If keys is non-empty, only entries whose key is one of keys
	// are delivered.
	ExecuteStoredEntriesForPathPrefix(prefix []string, keys []entry.RawValue, deliver DeliverReplay) error

	// ExecuteStoredEntriesForPathExact is like
	// ExecuteStoredEntriesForPathPrefix, but matches only the exact path
	// and never calls deliver if nothing is stored there.
	ExecuteStoredEntriesForPathExact(path []string, keys []entry.RawValue, deliver DeliverReplay) error

	// LatestAppID returns the appId (among every appId this engine has any
	// record of, including ownAppID) whose most recently observed entry
	// has the greatest datetime, ties broken in favor of ownAppID.
	LatestAppID() (string, error)
}
