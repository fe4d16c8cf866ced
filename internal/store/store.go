// Package store persists run trajectories in LevelDB so completed runs can be
// listed and replayed. The controller is the sole writer; the replay command
// and the REPL query it read-only.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// LevelDB key prefix scheme, "|" separated (run IDs are UUIDs, so the
// separator stays unambiguous).
//
//	r|<runID>            → RunMeta JSON      (one per run)
//	s|<runID>|<seq %08d> → StepRecord JSON   (one per simulation step)
//	t|<runID>|<seq %04d> → TaskRecord JSON   (one per task primitive)
const (
	prefixRun  = "r|"
	prefixStep = "s|"
	prefixTask = "t|"
)

// stepCacheSize bounds the number of decoded runs the replay cache holds.
const stepCacheSize = 8

// RunMeta summarises one run.
type RunMeta struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	Scenario   string `json:"scenario,omitempty"`
	Status     string `json:"status"`
	TotalSteps int    `json:"total_steps"`
	Tasks      int    `json:"tasks"`
}

// StepRecord is the stored avatar state after one simulation step.
type StepRecord struct {
	Seq       int       `json:"seq"`
	Frame     int64     `json:"frame"`
	Task      string    `json:"task,omitempty"`
	Position  geom.Vec3 `json:"position"`
	Heading   float64   `json:"heading"`
	Collision string    `json:"collision,omitempty"`
}

// TaskRecord is the stored outcome of one task primitive.
type TaskRecord struct {
	Seq      int    `json:"seq"`
	Task     string `json:"task"`
	Arm      string `json:"arm,omitempty"`
	Target   string `json:"target,omitempty"`
	Status   string `json:"status"`
	Steps    int    `json:"steps"`
	StartSeq int    `json:"start_seq"`
}

// stepWrite is one queued step persistence.
type stepWrite struct {
	runID string
	rec   StepRecord
}

// Store is the LevelDB-backed trajectory store.
// RecordStep is async (fire-and-forget channel); all reads are synchronous.
type Store struct {
	db      *leveldb.DB
	writeCh chan stepWrite                   // async write queue; buffered to avoid blocking the step loop
	cache   *lru.Cache[string, []StepRecord] // runID → decoded steps, replay read path
}

// Open opens (or creates) the LevelDB database at dir.
// LevelDB is single-writer: a second process holding the same directory makes
// Open fail.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s (another controller may hold the lock): %w", dir, err)
	}
	cache, err := lru.New[string, []StepRecord](stepCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: cache: %w", err)
	}
	return &Store{
		db:      db,
		writeCh: make(chan stepWrite, 1024),
		cache:   cache,
	}, nil
}

// Run processes the async step write queue.
// Drains all pending writes and closes the DB when ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drainWriteQueue()
			if err := s.db.Close(); err != nil {
				slog.Warn("[STORE] DB close error", "error", err)
			}
			return
		case w := <-s.writeCh:
			s.persistStep(w)
		}
	}
}

// Close closes the database. Read-only openers (the replay command) call
// this; a controller session instead cancels Run, whose drain path closes.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStep enqueues a step record for async non-blocking persistence.
// Drops the record with a warning if the write queue is full (back-pressure).
//
// Expectations:
//   - Non-blocking: never blocks the step loop
//   - Invalidates the replay cache entry for the run
//   - Does not guarantee persistence before returning
func (s *Store) RecordStep(runID string, rec StepRecord) {
	s.cache.Remove(runID)
	select {
	case s.writeCh <- stepWrite{runID: runID, rec: rec}:
	default:
		slog.Warn("[STORE] write queue full, dropping step", "run", runID, "seq", rec.Seq)
	}
}

// PutRun writes (or overwrites) the run's metadata record.
func (s *Store) PutRun(meta RunMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: marshal run %s: %w", meta.ID, err)
	}
	if err := s.db.Put([]byte(prefixRun+meta.ID), data, nil); err != nil {
		return fmt.Errorf("store: put run %s: %w", meta.ID, err)
	}
	return nil
}

// PutTask writes one task outcome record.
// Task ends are rare relative to steps, so this writes synchronously.
func (s *Store) PutTask(runID string, rec TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal task: %w", err)
	}
	if err := s.db.Put([]byte(taskKey(runID, rec.Seq)), data, nil); err != nil {
		return fmt.Errorf("store: put task: %w", err)
	}
	return nil
}

// Runs returns all run metadata records, oldest first.
//
// Expectations:
//   - Returns runs sorted by StartedAt ascending
//   - Returns empty slice (not error) when the store is empty
//   - Skips records that fail to decode
func (s *Store) Runs() ([]RunMeta, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixRun)), nil)
	defer iter.Release()

	var runs []RunMeta
	for iter.Next() {
		var m RunMeta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		runs = append(runs, m)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: scan runs: %w", err)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt < runs[j].StartedAt })
	return runs, nil
}

// RunByID returns the metadata record for one run.
func (s *Store) RunByID(runID string) (RunMeta, error) {
	data, err := s.db.Get([]byte(prefixRun+runID), nil)
	if err != nil {
		return RunMeta{}, fmt.Errorf("store: run %s: %w", runID, err)
	}
	var m RunMeta
	return m, json.Unmarshal(data, &m)
}

// Steps returns all step records of a run in sequence order.
// Decoded runs are held in a small LRU cache so replaying the same run twice
// skips the LevelDB scan.
//
// Expectations:
//   - Returns steps sorted by Seq (zero-padded key order guarantees this)
//   - Returns empty slice (not error) for a run with no steps
//   - Second call for the same run hits the cache
func (s *Store) Steps(runID string) ([]StepRecord, error) {
	if steps, ok := s.cache.Get(runID); ok {
		return steps, nil
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixStep+runID+"|")), nil)
	defer iter.Release()

	var steps []StepRecord
	for iter.Next() {
		var rec StepRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		steps = append(steps, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: scan steps %s: %w", runID, err)
	}
	s.cache.Add(runID, steps)
	return steps, nil
}

// Tasks returns all task records of a run in sequence order.
func (s *Store) Tasks(runID string) ([]TaskRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixTask+runID+"|")), nil)
	defer iter.Release()

	var tasks []TaskRecord
	for iter.Next() {
		var rec TaskRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		tasks = append(tasks, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: scan tasks %s: %w", runID, err)
	}
	return tasks, nil
}

// DeleteRun removes a run and all of its step and task records in one batch.
func (s *Store) DeleteRun(runID string) error {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefixRun + runID))
	for _, prefix := range []string{prefixStep + runID + "|", prefixTask + runID + "|"} {
		iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			batch.Delete(key)
		}
		iter.Release()
	}
	s.cache.Remove(runID)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: delete run %s: %w", runID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal write path.
// ---------------------------------------------------------------------------

func (s *Store) persistStep(w stepWrite) {
	data, err := json.Marshal(w.rec)
	if err != nil {
		slog.Error("[STORE] marshal step failed", "run", w.runID, "seq", w.rec.Seq, "error", err)
		return
	}
	if err := s.db.Put([]byte(stepKey(w.runID, w.rec.Seq)), data, nil); err != nil {
		slog.Error("[STORE] persist step failed", "run", w.runID, "seq", w.rec.Seq, "error", err)
	}
}

func (s *Store) drainWriteQueue() {
	for {
		select {
		case w := <-s.writeCh:
			s.persistStep(w)
		default:
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Key helpers
// ---------------------------------------------------------------------------

// stepKey zero-pads the sequence number so LevelDB key order is replay order.
func stepKey(runID string, seq int) string {
	return fmt.Sprintf("%s%s|%08d", prefixStep, runID, seq)
}

func taskKey(runID string, seq int) string {
	return fmt.Sprintf("%s%s|%04d", prefixTask, runID, seq)
}
