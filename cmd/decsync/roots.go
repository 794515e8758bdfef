package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/filesystem"
)

// localDataDirectoryName is the subdirectory of the user's home directory
// holding this CLI's private, unsynced instance state (the local info file
// and, for V2 instances, the peer read-sequence bookkeeping).
const localDataDirectoryName = ".decsync"

// openTree opens a PosixBackend-rooted Tree at path, creating path if it
// does not already exist, and returns a Ref to its root.
func openTree(path string) (*filesystem.Ref, error) {
	backend, err := filesystem.NewPosixBackend(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open directory %q", path)
	}
	return filesystem.NewTree(backend).Root(), nil
}

// openDecsyncRoot opens the shared, externally-synced tree at decsyncDir.
func openDecsyncRoot(decsyncDir string) (*filesystem.Ref, error) {
	return openTree(decsyncDir)
}

// openLocalRoot opens this CLI's private per-instance state tree, scoped by
// syncType/collection/ownAppId so that distinct instances never collide.
func openLocalRoot(syncType, collection, ownAppID string) (*filesystem.Ref, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine home directory")
	}
	segments := []string{home, localDataDirectoryName, syncType}
	if collection != "" {
		segments = append(segments, collection)
	}
	segments = append(segments, ownAppID)
	return openTree(filepath.Join(segments...))
}
