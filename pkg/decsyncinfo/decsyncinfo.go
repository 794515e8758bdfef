// Package decsyncinfo implements component D: reading and writing
// `.decsync-info` (the global per-decsyncDir version marker) and the
// per-instance local info file.
package decsyncinfo

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/decsyncerr"
	"github.com/decsync-io/decsync/pkg/filesystem"
)

// SupportedVersion is the highest on-disk format version this
// implementation understands.
const SupportedVersion = 2

// DefaultVersion is the version written to a freshly-created
// .decsync-info file.
const DefaultVersion = 1

// GlobalInfo is the parsed content of `.decsync-info`.
type GlobalInfo struct {
	Version int
}

type globalInfoWire struct {
	Version *int `json:"version"`
}

// ReadOrCreateGlobal reads the `.decsync-info` file addressed by ref. If it
// does not exist, it is created with the default {"version":1}. It returns
// *decsyncerr.InvalidInfoError if the file exists but is malformed, and
// *decsyncerr.UnsupportedVersionError if it names a version this
// implementation does not support.
func ReadOrCreateGlobal(ref *filesystem.Ref) (*GlobalInfo, error) {
	data, err := ref.Read(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read .decsync-info")
	}

	if len(data) == 0 {
		info := &GlobalInfo{Version: DefaultVersion}
		if err := writeGlobal(ref, info); err != nil {
			return nil, err
		}
		return info, nil
	}

	var wire globalInfoWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &decsyncerr.InvalidInfoError{Cause: err}
	}
	if wire.Version == nil {
		return nil, &decsyncerr.InvalidInfoError{Cause: errors.New("missing \"version\" field")}
	}

	version := *wire.Version
	if version != 1 && version != 2 {
		return nil, &decsyncerr.UnsupportedVersionError{Found: version, Supported: SupportedVersion}
	}

	return &GlobalInfo{Version: version}, nil
}

func writeGlobal(ref *filesystem.Ref, info *GlobalInfo) error {
	data, err := json.Marshal(globalInfoWire{Version: &info.Version})
	if err != nil {
		return errors.Wrap(err, "unable to marshal .decsync-info")
	}
	if err := ref.Write(data, false); err != nil {
		return errors.Wrap(err, "unable to write .decsync-info")
	}
	return nil
}

// SetGlobalVersion overwrites the `.decsync-info` version field, for
// callers such as tests that want to force a version bump. The upgrade
// procedure does not call it.
func SetGlobalVersion(ref *filesystem.Ref, version int) error {
	return writeGlobal(ref, &GlobalInfo{Version: version})
}

// LocalInfo is the parsed content of an instance's local info file: the
// version it has committed to using, the last date on which it
// published a liveness heartbeat, and the highest protocol version it is
// prepared to understand.
type LocalInfo struct {
	Version          int
	LastActive       string
	SupportedVersion int
}

type localInfoWire struct {
	Version          *int    `json:"version"`
	LastActive       *string `json:"last-active"`
	SupportedVersion *int    `json:"supported-version"`
}

// ReadLocal reads the local info file addressed by ref. It returns
// (nil, false, nil) if the file does not exist.
func ReadLocal(ref *filesystem.Ref) (*LocalInfo, bool, error) {
	data, err := ref.Read(0)
	if err != nil {
		return nil, false, errors.Wrap(err, "unable to read local info")
	}
	if len(data) == 0 {
		return nil, false, nil
	}

	var wire localInfoWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, false, errors.Wrap(err, "unable to unmarshal local info")
	}

	info := &LocalInfo{}
	if wire.Version != nil {
		info.Version = *wire.Version
	}
	if wire.LastActive != nil {
		info.LastActive = *wire.LastActive
	}
	if wire.SupportedVersion != nil {
		info.SupportedVersion = *wire.SupportedVersion
	}
	return info, true, nil
}

// WriteLocal overwrites the local info file addressed by ref.
func WriteLocal(ref *filesystem.Ref, info *LocalInfo) error {
	wire := localInfoWire{
		Version:          &info.Version,
		LastActive:       &info.LastActive,
		SupportedVersion: &info.SupportedVersion,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return errors.Wrap(err, "unable to marshal local info")
	}
	if err := ref.Write(data, false); err != nil {
		return errors.Wrap(err, "unable to write local info")
	}
	return nil
}
