// Package entry defines DecSync's core data model: the
// immutable Entry triple, EntryWithPath, StoredEntry, and the
// conflict-resolution comparison ("supersede rule") shared by both engine
// versions' write and read paths.
package entry

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// RawValue is an already-serialized JSON value (a key or a value).
// Keeping it as raw bytes rather than decoding into Go values
// preserves exact byte-for-byte serialization, which both the supersede
// rule's lexicographic tiebreak and (path,key) identity comparisons depend
// on.
type RawValue = json.RawMessage

// nullValue is substituted for a nil RawValue so that an Entry with a zero
// Key or Value still marshals to valid JSON "null" rather than an empty
// token.
var nullValue = RawValue("null")

// Entry is an immutable (datetime, key, value) triple. DateTime
// is an ISO-8601 local string ("YYYY-MM-DDThh:mm:ss") that also serves as
// the causality token: it is compared lexicographically, which works
// because the format is fixed-width and zero-padded.
type Entry struct {
	DateTime string
	Key      RawValue
	Value    RawValue
}

// MarshalJSON encodes the entry as the wire array [datetime, key, value].
func (e Entry) MarshalJSON() ([]byte, error) {
	datetime, err := json.Marshal(e.DateTime)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal datetime")
	}
	key := e.Key
	if key == nil {
		key = nullValue
	}
	value := e.Value
	if value == nil {
		value = nullValue
	}
	return json.Marshal([3]json.RawMessage{datetime, key, value})
}

// UnmarshalJSON decodes an entry from the wire array [datetime, key,
// value].
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to unmarshal entry array")
	}
	if len(raw) != 3 {
		return errors.Errorf("entry: expected array of length 3, found %d", len(raw))
	}
	var datetime string
	if err := json.Unmarshal(raw[0], &datetime); err != nil {
		return errors.Wrap(err, "unable to unmarshal datetime")
	}
	e.DateTime = datetime
	e.Key = cloneRaw(raw[1])
	e.Value = cloneRaw(raw[2])
	return nil
}

func cloneRaw(raw json.RawMessage) RawValue {
	clone := make(RawValue, len(raw))
	copy(clone, raw)
	return clone
}

// Newer reports whether a should supersede b as the stored entry for the
// same (path, key): a strictly later datetime wins outright (even if its
// value is identical to b's — the advancing datetime is itself the
// novelty, e.g. for last-active heartbeats); on equal datetimes, the
// lexicographically greater serialized value wins, which is the documented,
// deterministic tiebreak this implementation uses for simultaneous writes
// from different apps.
func Newer(a, b Entry) bool {
	if a.DateTime != b.DateTime {
		return a.DateTime > b.DateTime
	}
	return string(a.Value) > string(b.Value)
}

// EntryWithPath pairs an Entry with the hierarchical path of the map it
// belongs to. It is the wire record for the V2 engine's
// per-bucket logs.
type EntryWithPath struct {
	Path  []string
	Entry Entry
}

// MarshalJSON encodes the record as the wire array
// [[pathSegments...], datetime, key, value].
func (e EntryWithPath) MarshalJSON() ([]byte, error) {
	path := e.Path
	if path == nil {
		path = []string{}
	}
	pathJSON, err := json.Marshal(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal path")
	}
	datetime, err := json.Marshal(e.Entry.DateTime)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal datetime")
	}
	key := e.Entry.Key
	if key == nil {
		key = nullValue
	}
	value := e.Entry.Value
	if value == nil {
		value = nullValue
	}
	return json.Marshal([4]json.RawMessage{pathJSON, datetime, key, value})
}

// UnmarshalJSON decodes a record from the wire array
// [[pathSegments...], datetime, key, value].
func (e *EntryWithPath) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to unmarshal entry-with-path array")
	}
	if len(raw) != 4 {
		return errors.Errorf("entry-with-path: expected array of length 4, found %d", len(raw))
	}
	var path []string
	if err := json.Unmarshal(raw[0], &path); err != nil {
		return errors.Wrap(err, "unable to unmarshal path")
	}
	var datetime string
	if err := json.Unmarshal(raw[1], &datetime); err != nil {
		return errors.Wrap(err, "unable to unmarshal datetime")
	}
	e.Path = path
	e.Entry = Entry{
		DateTime: datetime,
		Key:      cloneRaw(raw[2]),
		Value:    cloneRaw(raw[3]),
	}
	return nil
}

// StoredEntry identifies an entry without its value: the (path, key) pair
// that is unique within one app's stored snapshot.
type StoredEntry struct {
	Path []string
	Key  RawValue
}

// AppData summarizes one peer application.
type AppData struct {
	AppID      string
	LastActive string // "YYYY-MM-DD", empty if never observed
	Version    int
}

// PathIdentity returns a string that uniquely and unambiguously identifies
// a path, suitable for use as a map key. JSON array encoding is used rather
// than a naive separator join because path segments may contain any
// character, including whatever separator a join would pick.
func PathIdentity(path []string) string {
	encoded, err := json.Marshal(path)
	if err != nil {
		// json.Marshal only fails on unsupported types; []string is always
		// supported, so this is unreachable.
		panic(errors.Wrap(err, "unable to marshal path"))
	}
	return string(encoded)
}

// KeyIdentity returns a string that uniquely identifies a (path, key) pair
// within one app's stored snapshot, for use as a map key.
func KeyIdentity(path []string, key RawValue) string {
	return PathIdentity(path) + "\x00" + string(key)
}
