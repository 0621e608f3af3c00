package snapshot

import (
	"archive/tar"
	"bytes"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

func testAddress(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func testState(t *testing.T) *world.State {
	t.Helper()
	state := world.NewState()
	acc := world.NewAccount(testAddress('a'))
	acc.Nonce = 3
	acc.Balance = big.NewInt(1_000_000)
	acc.SetStorage([]byte("key"), []byte("value"))
	acc.TokenDataMut("TOK-123456").Add(0, big.NewInt(42), nil)
	if err := state.SetAccount(acc); err != nil {
		t.Fatalf("set account: %v", err)
	}
	state.CurrentBlock.Timestamp = 1234
	return state
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

// TestWriteLoadRoundTrip writes compressed and plain archives and reloads them.
func TestWriteLoadRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		dir := t.TempDir()
		w, err := NewWriter(Config{Dir: dir, Compress: compress, Now: fixedNow})
		if err != nil {
			t.Fatalf("new writer: %v", err)
		}

		state := testState(t)
		info, err := w.Write("dump", state)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		if info.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", info.Sequence)
		}
		if info.IsCompressed != compress {
			t.Errorf("expected compressed=%v", compress)
		}
		want := world.ComputeStateHash(state).Hex()
		if info.Hash != want[:hashPrefixLen] {
			t.Errorf("expected hash prefix %s, got %s", want[:hashPrefixLen], info.Hash)
		}

		snap, err := Load(info.Path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if snap.Manifest.Scenario != "dump" {
			t.Errorf("expected scenario dump, got %q", snap.Manifest.Scenario)
		}
		if !snap.Manifest.Created.Equal(fixedNow()) {
			t.Errorf("unexpected created time %v", snap.Manifest.Created)
		}
		if got := world.ComputeStateHash(snap.State).Hex(); got != want {
			t.Errorf("state hash mismatch: %s != %s", got, want)
		}
		if snap.State.CurrentBlock.Timestamp != 1234 {
			t.Errorf("expected timestamp 1234, got %d", snap.State.CurrentBlock.Timestamp)
		}
	}
}

// TestWriterSequence checks numbering continues across writers.
func TestWriterSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, Compress: true})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Dump("a", testState(t)); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if err := w.Dump("b", world.NewState()); err != nil {
		t.Fatalf("dump: %v", err)
	}

	w2, err := NewWriter(Config{Dir: dir})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	info, err := w2.Write("c", world.NewState())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if info.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", info.Sequence)
	}

	snapshots, err := FindSnapshots(dir)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	for i, want := range []uint64{3, 2, 1} {
		if snapshots[i].Sequence != want {
			t.Errorf("snapshot %d: expected sequence %d, got %d", i, want, snapshots[i].Sequence)
		}
	}

	latest, err := FindLatestSnapshot(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Path != info.Path {
		t.Errorf("expected latest %s, got %s", info.Path, latest.Path)
	}
}

func TestFindSnapshotsIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "state-x-abc.tar", "state-1-ABC.tar", ".state-1.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	snapshots, err := FindSnapshots(dir)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected no snapshots, got %v", snapshots)
	}

	if _, err := FindLatestSnapshot(dir); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
	if snapshots, err := FindSnapshots(filepath.Join(dir, "missing")); err != nil || snapshots != nil {
		t.Errorf("expected nothing for a missing dir, got %v, %v", snapshots, err)
	}
}

func writeTar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	const emptyState = `{"steps": [{"step": "setState"}]}`
	emptyHash := world.ComputeStateHash(world.NewState()).Hex()

	tests := []struct {
		name    string
		entries map[string]string
		err     error
	}{
		{"no manifest", map[string]string{stateEntry: emptyState}, ErrMissingManifest},
		{"no state", map[string]string{manifestEntry: `{"version": 1}`}, ErrMissingState},
		{"version", map[string]string{manifestEntry: `{"version": 9}`, stateEntry: emptyState}, ErrUnsupportedVersion},
		{"hash", map[string]string{manifestEntry: `{"version": 1, "stateHash": "00"}`, stateEntry: emptyState}, ErrHashMismatch},
		{"bad state", map[string]string{manifestEntry: `{"version": 1}`, stateEntry: `{"steps": [{"step": "dumpState"}]}`}, ErrInvalidSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "state-1-00.tar")
			writeTar(t, path, tt.entries)
			if _, err := Load(path); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}

	path := filepath.Join(dir, "state-2-00.tar")
	writeTar(t, path, map[string]string{
		manifestEntry: `{"version": 1, "stateHash": "` + emptyHash + `"}`,
		stateEntry:    emptyState,
	})
	if _, err := Load(path); err != nil {
		t.Errorf("expected empty world to load, got %v", err)
	}

	if _, err := Load(filepath.Join(dir, "state-3-00.tar")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestGetSnapshotInfo(t *testing.T) {
	dir := t.TempDir()
	if _, err := GetSnapshotInfo(filepath.Join(dir, "other.tar")); !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("expected ErrInvalidSnapshot, got %v", err)
	}
	if _, err := GetSnapshotInfo(filepath.Join(dir, "state-1-ab.tar.zst")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

// TestWriterDefaultLevel checks a compressed writer works without an explicit level.
func TestWriterDefaultLevel(t *testing.T) {
	w, err := NewWriter(Config{Dir: t.TempDir(), Compress: true})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	info, err := w.Write("default-level", testState(t))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !info.IsCompressed {
		t.Errorf("expected a compressed snapshot, got %s", info.Path)
	}
	if _, err := Load(info.Path); err != nil {
		t.Fatalf("load: %v", err)
	}
}
