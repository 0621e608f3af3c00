// Package tracestore keeps the step records of scenario runs in a bbolt
// database so failed runs can be inspected later.
package tracestore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Scenario/pkg/scenario"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrStepNotFound is returned when a step doesn't exist.
	ErrStepNotFound = errors.New("step not found")

	// ErrRunFinished is returned when recording into a finished run.
	ErrRunFinished = errors.New("run already finished")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("trace store closed")
)

// Bucket names.
var (
	// bucketRuns stores run records keyed by run id.
	bucketRuns = []byte("runs")

	// bucketSteps holds one nested bucket per run, keyed by step sequence.
	bucketSteps = []byte("steps")

	// bucketStepIDs holds one nested bucket per run mapping step id to sequence.
	bucketStepIDs = []byte("step_ids")

	// bucketMetadata stores counters.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyRunCount  = []byte("run_count")
	keyStepCount = []byte("step_count")
)

// Config holds trace store options.
type Config struct {
	// Path is the database file.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// RetainRuns prunes the oldest runs when a new one starts. Zero keeps all.
	RetainRuns int

	// Timeout bounds waiting for the file lock.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		RetainRuns: 100,
		Timeout:    5 * time.Second,
	}
}

// BoltStore stores runs in BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	mu        sync.RWMutex
	runCount  uint64
	stepCount uint64
	closed    bool
}

// Open creates or opens a trace store.
func Open(config Config) (*BoltStore, error) {
	if !config.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  config.Timeout,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &BoltStore{db: db, config: config}
	if !config.ReadOnly {
		if err := store.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	if err := store.loadCounters(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load counters: %w", err)
	}
	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketSteps, bucketStepIDs, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) loadCounters() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil
		}
		s.runCount = decodeUint(meta.Get(keyRunCount))
		s.stepCount = decodeUint(meta.Get(keyStepCount))
		return nil
	})
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (s *BoltStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// BeginRun records the start of a run of the named scenario and returns a
// recorder for its steps.
func (s *BoltStore) BeginRun(scenarioName string) (*Recorder, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	run := Run{ID: uuid.New(), Scenario: scenarioName, Started: time.Now().UTC()}
	err := s.db.Update(func(tx *bolt.Tx) error {
		s.mu.Lock()
		s.runCount++
		run.Seq = s.runCount
		s.mu.Unlock()
		if err := putRun(tx, &run); err != nil {
			return err
		}
		if _, err := tx.Bucket(bucketSteps).CreateBucket(run.ID[:]); err != nil {
			return fmt.Errorf("create step bucket: %w", err)
		}
		if _, err := tx.Bucket(bucketStepIDs).CreateBucket(run.ID[:]); err != nil {
			return fmt.Errorf("create step id bucket: %w", err)
		}
		return tx.Bucket(bucketMetadata).Put(keyRunCount, encodeUint(run.Seq))
	})
	if err != nil {
		return nil, err
	}
	if s.config.RetainRuns > 0 {
		if _, err := s.Prune(s.config.RetainRuns); err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
	}
	return &Recorder{store: s, run: run}, nil
}

func putRun(tx *bolt.Tx, run *Run) error {
	data, err := encode(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return tx.Bucket(bucketRuns).Put(run.ID[:], data)
}

func (s *BoltStore) putStep(id uuid.UUID, st *Step) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		steps := tx.Bucket(bucketSteps).Bucket(id[:])
		if steps == nil {
			return ErrRunNotFound
		}
		seq, err := steps.NextSequence()
		if err != nil {
			return err
		}
		st.Seq = seq
		data, err := encode(st)
		if err != nil {
			return fmt.Errorf("encode step: %w", err)
		}
		if err := steps.Put(encodeUint(seq), data); err != nil {
			return err
		}
		if st.ID != "" {
			if err := tx.Bucket(bucketStepIDs).Bucket(id[:]).Put([]byte(st.ID), encodeUint(seq)); err != nil {
				return err
			}
		}
		s.mu.Lock()
		s.stepCount++
		count := s.stepCount
		s.mu.Unlock()
		return tx.Bucket(bucketMetadata).Put(keyStepCount, encodeUint(count))
	})
}

// GetRun returns a run by id.
func (s *BoltStore) GetRun(id uuid.UUID) (*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get(id[:])
		if data == nil {
			return ErrRunNotFound
		}
		return decode(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs returns every stored run, oldest first.
func (s *BoltStore) Runs() ([]Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var run Run
			if err := decode(v, &run); err != nil {
				return fmt.Errorf("decode run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Seq < runs[j].Seq
	})
	return runs, nil
}

// Steps returns the steps of a run in execution order.
func (s *BoltStore) Steps(id uuid.UUID) ([]Step, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var steps []Step
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSteps).Bucket(id[:])
		if b == nil {
			return ErrRunNotFound
		}
		return b.ForEach(func(_, v []byte) error {
			var st Step
			if err := decode(v, &st); err != nil {
				return fmt.Errorf("decode step: %w", err)
			}
			steps = append(steps, st)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// Step returns the last step of a run carrying the given step id.
func (s *BoltStore) Step(id uuid.UUID, stepID string) (*Step, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var st Step
	err := s.db.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketStepIDs).Bucket(id[:])
		if ids == nil {
			return ErrRunNotFound
		}
		seq := ids.Get([]byte(stepID))
		if seq == nil {
			return ErrStepNotFound
		}
		data := tx.Bucket(bucketSteps).Bucket(id[:]).Get(seq)
		if data == nil {
			return ErrStepNotFound
		}
		return decode(data, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteRun removes a run and its steps.
func (s *BoltStore) DeleteRun(id uuid.UUID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteRun(tx, id)
	})
}

func deleteRun(tx *bolt.Tx, id uuid.UUID) error {
	runs := tx.Bucket(bucketRuns)
	if runs.Get(id[:]) == nil {
		return ErrRunNotFound
	}
	if err := runs.Delete(id[:]); err != nil {
		return err
	}
	for _, name := range [][]byte{bucketSteps, bucketStepIDs} {
		if err := tx.Bucket(name).DeleteBucket(id[:]); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
	}
	return nil
}

// Prune keeps the newest keep runs and returns how many were removed.
func (s *BoltStore) Prune(keep int) (int, error) {
	runs, err := s.Runs()
	if err != nil {
		return 0, err
	}
	if len(runs) <= keep {
		return 0, nil
	}
	stale := runs[:len(runs)-keep]
	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, run := range stale {
			if err := deleteRun(tx, run.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// GetStats returns store statistics. The counters include pruned runs.
func (s *BoltStore) GetStats() (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stats := &Stats{RunCount: s.runCount, StepCount: s.stepCount}
	s.mu.RUnlock()
	if info, err := os.Stat(s.config.Path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// Close closes the store.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// Recorder writes the steps of one run. It implements scenario.Tracer.
type Recorder struct {
	store *BoltStore
	run   Run
}

var _ scenario.Tracer = (*Recorder)(nil)

// ID returns the run id.
func (r *Recorder) ID() uuid.UUID {
	return r.run.ID
}

// TraceStep implements scenario.Tracer.
func (r *Recorder) TraceStep(rec scenario.StepRecord) error {
	if r.run.Done() {
		return ErrRunFinished
	}
	st := stepOf(rec)
	if err := r.store.putStep(r.run.ID, &st); err != nil {
		return err
	}
	r.run.Steps++
	return nil
}

// Finish closes the run, recording runErr when it is not nil.
func (r *Recorder) Finish(runErr error) error {
	if r.run.Done() {
		return ErrRunFinished
	}
	if err := r.store.checkOpen(); err != nil {
		return err
	}
	r.run.Finished = time.Now().UTC()
	if runErr != nil {
		r.run.Failed = true
		r.run.Error = runErr.Error()
	}
	return r.store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRuns).Get(r.run.ID[:]) == nil {
			return ErrRunNotFound
		}
		return putRun(tx, &r.run)
	})
}
