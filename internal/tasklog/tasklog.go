// Package tasklog provides per-run structured logging for the avatar
// controller.
//
// Each run gets one JSONL file in a configurable directory. Events capture
// every key stage: task begin/end with the terminal status, each simulation
// step with the avatar's pose, collision facts, and standing-goal
// transitions. The log is the raw substrate for replay and post-hoc failure
// analysis.
//
// Design constraints:
//   - All RunLog methods are nil-safe (no-op on nil receiver) so the
//     controller never needs nil checks before a log call.
//   - Registry is the sole owner of JSONL persistence; nothing else opens
//     log files.
package tasklog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// EventKind labels a single structured event in the run log.
type EventKind string

const (
	KindRunBegin     EventKind = "run_begin"
	KindRunEnd       EventKind = "run_end"
	KindTaskBegin    EventKind = "task_begin"
	KindTaskEnd      EventKind = "task_end"
	KindStep         EventKind = "step"
	KindCollision    EventKind = "collision"
	KindGoalDetached EventKind = "goal_detached"
	KindGoalResolved EventKind = "goal_resolved"
)

// Event is one JSONL line in the run log.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	// run_begin / run_end
	RunID      string         `json:"run_id,omitempty"`
	Scenario   string         `json:"scenario,omitempty"`
	Status     string         `json:"status,omitempty"`
	ElapsedMs  int64          `json:"elapsed_ms,omitempty"`
	TotalSteps int            `json:"total_steps,omitempty"`  // run_end only
	TaskCounts map[string]int `json:"task_counts,omitempty"`  // run_end only: status -> count
	Collisions int            `json:"collisions,omitempty"`   // run_end only

	// task_begin / task_end
	Task   string `json:"task,omitempty"`
	Arm    string `json:"arm,omitempty"`
	Target string `json:"target,omitempty"`
	Steps  int    `json:"steps,omitempty"` // task_end only

	// step
	Frame    int64      `json:"frame,omitempty"`
	Step     int        `json:"step,omitempty"`
	Position *geom.Vec3 `json:"position,omitempty"`
	Heading  float64    `json:"heading,omitempty"`
	Commands []string   `json:"commands,omitempty"`

	// collision
	CollisionKind string `json:"collision_kind,omitempty"`
	BodyPart      int64  `json:"body_part,omitempty"`
	ObjectID      int64  `json:"object_id,omitempty"`

	// goal_detached / goal_resolved
	Outcome string `json:"outcome,omitempty"`
}

// RunStats aggregates the totals for a completed run.
//
// Expectations:
//   - TotalSteps equals the number of Step invocations
//   - TaskCounts maps each terminal status to the number of tasks ending in it
//   - Collisions equals the number of Collision invocations
type RunStats struct {
	TotalSteps int            `json:"total_steps"`
	TaskCounts map[string]int `json:"task_counts"`
	Collisions int            `json:"collisions"`
}

// RunLog is a handle for writing structured events for one run.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *RunLog)
//   - Concurrent writes are safe (mutex-protected)
type RunLog struct {
	runID      string
	started    time.Time
	mu         sync.Mutex
	f          *os.File
	totalSteps int
	taskCounts map[string]int
	collisions int
}

// Registry maps run IDs to open RunLogs.
// It is the sole authority for creating and closing run log files.
//
// Expectations:
//   - Open creates the log directory if absent
//   - Open writes a run_begin event as the first JSONL line
//   - Open returns the existing log without re-opening when called twice
//   - Get returns nil for unknown run IDs
//   - Close writes run_end with status, elapsed_ms, and the run totals
//   - Close removes the runID so subsequent Get returns nil
//   - Close no-ops gracefully on an unknown runID
type Registry struct {
	dir  string
	mu   sync.Mutex
	logs map[string]*RunLog
}

// NewRegistry creates a Registry that writes one JSONL file per run under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, logs: make(map[string]*RunLog)}
}

// Open creates a new RunLog for runID, writes a run_begin event, and
// registers it. If a log for runID is already open, it returns the existing
// log.
func (r *Registry) Open(runID, scenario string) *RunLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rl, ok := r.logs[runID]; ok {
		return rl
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		slog.Error("[TASKLOG] could not create dir", "dir", r.dir, "error", err)
		return nil
	}
	path := filepath.Join(r.dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("[TASKLOG] could not open log file", "path", path, "error", err)
		return nil
	}

	rl := &RunLog{runID: runID, started: time.Now(), f: f, taskCounts: make(map[string]int)}
	r.logs[runID] = rl
	rl.write(Event{
		Kind:     KindRunBegin,
		RunID:    runID,
		Scenario: scenario,
	})
	return rl
}

// Get returns the RunLog for runID, or nil if not found.
// Nil is safe to pass to all RunLog methods.
func (r *Registry) Get(runID string) *RunLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[runID]
}

// Close writes a run_end event, flushes and closes the file, and removes the
// entry from the registry. Safe to call on a nil *Registry or unknown runID.
func (r *Registry) Close(runID, status string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	rl, ok := r.logs[runID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.logs, runID)
	r.mu.Unlock()

	stats := rl.Stats()
	rl.mu.Lock()
	elapsed := time.Since(rl.started).Milliseconds()
	rl.mu.Unlock()

	rl.write(Event{
		Kind:       KindRunEnd,
		RunID:      runID,
		Status:     status,
		ElapsedMs:  elapsed,
		TotalSteps: stats.TotalSteps,
		TaskCounts: stats.TaskCounts,
		Collisions: stats.Collisions,
	})

	rl.mu.Lock()
	if rl.f != nil {
		_ = rl.f.Close()
		rl.f = nil
	}
	rl.mu.Unlock()
}

// TaskBegin writes a task_begin event.
func (rl *RunLog) TaskBegin(task, arm, target string) {
	if rl == nil {
		return
	}
	rl.write(Event{
		Kind:   KindTaskBegin,
		Task:   task,
		Arm:    arm,
		Target: target,
	})
}

// TaskEnd writes a task_end event with the terminal status and step count.
func (rl *RunLog) TaskEnd(task, status string, steps int) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.taskCounts[status]++
	rl.mu.Unlock()
	rl.write(Event{
		Kind:   KindTaskEnd,
		Task:   task,
		Status: status,
		Steps:  steps,
	})
}

// Step writes a step event with the avatar's pose after the frame.
// commands lists the command names sent this step.
func (rl *RunLog) Step(task string, frame int64, step int, position geom.Vec3, heading float64, commands []string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.totalSteps++
	rl.mu.Unlock()
	pos := position
	rl.write(Event{
		Kind:     KindStep,
		Task:     task,
		Frame:    frame,
		Step:     step,
		Position: &pos,
		Heading:  heading,
		Commands: commands,
	})
}

// Collision writes a collision event.
//
// Expectations:
//   - Collisions total increments by 1 per invocation
//   - No-op on nil receiver
func (rl *RunLog) Collision(task, kind string, bodyPart, objectID int64) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.collisions++
	rl.mu.Unlock()
	rl.write(Event{
		Kind:          KindCollision,
		Task:          task,
		CollisionKind: kind,
		BodyPart:      bodyPart,
		ObjectID:      objectID,
	})
}

// GoalDetached writes a goal_detached event when a detached task leaves a
// standing arm goal behind.
func (rl *RunLog) GoalDetached(task, arm string) {
	if rl == nil {
		return
	}
	rl.write(Event{
		Kind: KindGoalDetached,
		Task: task,
		Arm:  arm,
	})
}

// GoalResolved writes a goal_resolved event when a standing goal completes
// in the background.
func (rl *RunLog) GoalResolved(task, arm, outcome string) {
	if rl == nil {
		return
	}
	rl.write(Event{
		Kind:    KindGoalResolved,
		Task:    task,
		Arm:     arm,
		Outcome: outcome,
	})
}

// Stats returns a snapshot of the run totals so far.
//
// Expectations:
//   - Returns nil on nil receiver
//   - TaskCounts is a copy; mutating it does not affect the log
func (rl *RunLog) Stats() *RunStats {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	counts := make(map[string]int, len(rl.taskCounts))
	for k, v := range rl.taskCounts {
		counts[k] = v
	}
	return &RunStats{
		TotalSteps: rl.totalSteps,
		TaskCounts: counts,
		Collisions: rl.collisions,
	}
}

// write appends one JSON line to the run log file. Adds timestamp, mutex-protected.
func (rl *RunLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("[TASKLOG] marshal event", "error", err)
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.f == nil {
		return
	}
	if _, err = fmt.Fprintf(rl.f, "%s\n", data); err != nil {
		slog.Error("[TASKLOG] write event", "error", err)
	}
}
