// Package snapshot archives world dumps as tar files, optionally zstd
// compressed, and loads them back.
package snapshot

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/X1-Scenario/pkg/scenario"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// Snapshot filename pattern: state-SEQ-HASH.tar.zst or state-SEQ-HASH.tar
var snapshotPattern = regexp.MustCompile(`^state-(\d+)-([0-9a-f]+)\.(tar\.zst|tar)$`)

// hashPrefixLen is the number of hex digits of the state hash kept in filenames.
const hashPrefixLen = 16

// maxEntrySize bounds a single archive entry.
const maxEntrySize = 1 << 30

// FindSnapshots discovers available snapshots in a directory.
// Returns snapshots sorted by sequence (newest first).
func FindSnapshots(dir string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseName(dir, entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info.Size = fi.Size()
		snapshots = append(snapshots, info)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Sequence > snapshots[j].Sequence
	})
	return snapshots, nil
}

// FindLatestSnapshot finds the most recent snapshot in a directory.
func FindLatestSnapshot(dir string) (*SnapshotInfo, error) {
	snapshots, err := FindSnapshots(dir)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snapshots[0], nil
}

// GetSnapshotInfo describes the snapshot at path without reading it.
func GetSnapshotInfo(path string) (*SnapshotInfo, error) {
	info, ok := parseName(filepath.Dir(path), filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized filename format", ErrInvalidSnapshot)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	info.Size = fi.Size()
	return &info, nil
}

func parseName(dir, name string) (SnapshotInfo, bool) {
	m := snapshotPattern.FindStringSubmatch(name)
	if m == nil {
		return SnapshotInfo{}, false
	}
	seq, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return SnapshotInfo{}, false
	}
	return SnapshotInfo{
		Path:         filepath.Join(dir, name),
		Sequence:     seq,
		Hash:         m[2],
		IsCompressed: strings.HasSuffix(name, ".zst"),
	}, true
}

// Config configures a Writer.
type Config struct {
	// Dir receives the snapshot files. It is created if missing.
	Dir string

	// Compress enables zstd compression.
	Compress bool

	// Level is the zstd encoder level. Defaults to zstd.SpeedDefault.
	Level zstd.EncoderLevel

	// Now stamps manifests. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a compressed configuration writing to ./snapshots.
func DefaultConfig() Config {
	return Config{
		Dir:      "snapshots",
		Compress: true,
		Level:    zstd.SpeedDefault,
		Now:      time.Now,
	}
}

// Writer numbers and writes snapshots into one directory. It is safe for
// concurrent use.
type Writer struct {
	cfg  Config
	mu   sync.Mutex
	next uint64
}

// NewWriter creates the directory and continues the sequence of the
// snapshots already in it.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Level == 0 {
		cfg.Level = zstd.SpeedDefault
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	existing, err := FindSnapshots(cfg.Dir)
	if err != nil {
		return nil, err
	}
	w := &Writer{cfg: cfg, next: 1}
	if len(existing) > 0 {
		w.next = existing[0].Sequence + 1
	}
	return w, nil
}

// Dump writes state as the next snapshot. It fits scenario.Config.OnDump.
func (w *Writer) Dump(name string, state *world.State) error {
	_, err := w.Write(name, state)
	return err
}

// Write archives state and returns where it went.
func (w *Writer) Write(name string, state *world.State) (*SnapshotInfo, error) {
	w.mu.Lock()
	seq := w.next
	w.next++
	w.mu.Unlock()

	data, err := scenario.MarshalState(name, state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	hash := world.ComputeStateHash(state).Hex()
	m := Manifest{
		Version:   Version,
		Scenario:  name,
		Sequence:  seq,
		StateHash: hash,
		Accounts:  state.Len(),
		Created:   w.cfg.Now().UTC(),
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	ext := ".tar"
	if w.cfg.Compress {
		ext = ".tar.zst"
	}
	path := filepath.Join(w.cfg.Dir, fmt.Sprintf("state-%d-%s%s", seq, hash[:hashPrefixLen], ext))

	tmp, err := os.CreateTemp(w.cfg.Dir, ".state-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := w.writeArchive(tmp, m.Created, manifest, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rename snapshot: %w", err)
	}
	return GetSnapshotInfo(path)
}

func (w *Writer) writeArchive(out io.Writer, modTime time.Time, manifest, state []byte) error {
	var enc *zstd.Encoder
	if w.cfg.Compress {
		var err error
		enc, err = zstd.NewWriter(out, zstd.WithEncoderLevel(w.cfg.Level))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		out = enc
	}

	tw := tar.NewWriter(out)
	for _, e := range []struct {
		name string
		data []byte
	}{{manifestEntry, manifest}, {stateEntry, state}} {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0o644,
			Size:    int64(len(e.data)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write %s header: %w", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd encoder: %w", err)
		}
	}
	return nil
}

// Snapshot is a loaded archive.
type Snapshot struct {
	Manifest Manifest
	State    *world.State
}

// Load reads the snapshot at path and checks the world against the
// recorded hash.
func Load(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
		}
		defer dec.Close()
		reader = dec
	}

	var manifest, state []byte
	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		if header.Size > maxEntrySize {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrInvalidSnapshot, header.Name, header.Size)
		}
		switch header.Name {
		case manifestEntry, stateEntry:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", header.Name, err)
			}
			if header.Name == manifestEntry {
				manifest = data
			} else {
				state = data
			}
		}
	}
	if manifest == nil {
		return nil, ErrMissingManifest
	}
	if state == nil {
		return nil, ErrMissingState
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(manifest, &snap.Manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrInvalidSnapshot, err)
	}
	if snap.Manifest.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Manifest.Version)
	}
	if snap.State, err = scenario.LoadState(state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if got := world.ComputeStateHash(snap.State).Hex(); got != snap.Manifest.StateHash {
		return nil, fmt.Errorf("%w: have %s, manifest %s", ErrHashMismatch, got, snap.Manifest.StateHash)
	}
	return snap, nil
}
