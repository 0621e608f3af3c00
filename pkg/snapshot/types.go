package snapshot

import (
	"errors"
	"time"
)

// Errors returned by the snapshot package.
var (
	// ErrInvalidSnapshot indicates the snapshot file is malformed.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrUnsupportedVersion indicates the snapshot version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrMissingManifest indicates the manifest entry is missing.
	ErrMissingManifest = errors.New("missing snapshot manifest")

	// ErrMissingState indicates the state entry is missing.
	ErrMissingState = errors.New("missing snapshot state")

	// ErrHashMismatch indicates the loaded world does not hash to the recorded value.
	ErrHashMismatch = errors.New("snapshot hash mismatch")

	// ErrSnapshotNotFound indicates no snapshot was found at the path.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrDecompressionFailed indicates zstd decompression failed.
	ErrDecompressionFailed = errors.New("decompression failed")
)

// Version is the archive layout written by this package.
const Version = 1

// Archive entry names.
const (
	manifestEntry = "manifest.json"
	stateEntry    = "state.json"
)

// SnapshotInfo contains metadata about a discovered snapshot.
type SnapshotInfo struct {
	// Path is the full path to the snapshot file.
	Path string

	// Sequence orders the snapshots of a directory.
	Sequence uint64

	// Hash is the truncated state hash from the filename.
	Hash string

	// IsCompressed indicates if the snapshot is zstd compressed.
	IsCompressed bool

	// Size is the file size in bytes.
	Size int64
}

// Manifest describes the world held by a snapshot.
type Manifest struct {
	Version  int    `json:"version"`
	Scenario string `json:"scenario"`
	Sequence uint64 `json:"sequence"`

	// StateHash is the hex world hash at dump time.
	StateHash string `json:"stateHash"`

	Accounts int       `json:"accounts"`
	Created  time.Time `json:"created"`
}
