// Package monitor taps the event bus read-only and writes structured anomaly
// events to a JSONL file. It detects collision streaks, stalled tasks,
// failure streaks and leaked standing goals.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
)

// Anomaly thresholds.
const (
	collisionStreakThreshold = 5   // collisions within one task
	stallThreshold           = 150 // steps within one task without a terminal status
	failureStreakThreshold   = 3   // consecutive non-success task ends
)

// Event is one monitor JSONL line.
type Event struct {
	EventID   string  `json:"event_id"`
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Task      string  `json:"task,omitempty"`
	Anomaly   string  `json:"anomaly"`
	Detail    *string `json:"detail,omitempty"`
}

// Monitor consumes a bus tap and appends Events to logPath.
// Step events are recorded only when anomalous; the run log already carries
// every step.
type Monitor struct {
	tap     <-chan bus.Event
	logPath string
	mu      sync.Mutex
	logFile *os.File

	task             string // current task name
	stepsInTask      int
	collisionsInTask int
	failureStreak    int
	outstandingGoals int // detached standing goals not yet resolved
}

// New creates a Monitor reading from tap and writing to logPath.
func New(tap <-chan bus.Event, logPath string) *Monitor {
	return &Monitor{tap: tap, logPath: logPath}
}

// Run starts the monitor loop. It blocks until ctx is cancelled or the tap closes.
func (m *Monitor) Run(ctx context.Context) {
	if err := m.open(); err != nil {
		slog.Error("[MONITOR] open log file", "error", err)
		return
	}
	defer m.logFile.Close()

	slog.Info("[MONITOR] started", "path", m.logPath)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.tap:
			if !ok {
				return
			}
			m.process(ev)
		}
	}
}

func (m *Monitor) open() error {
	if err := os.MkdirAll(filepath.Dir(m.logPath), 0o755); err != nil {
		return fmt.Errorf("monitor: create log dir: %w", err)
	}
	f, err := os.OpenFile(m.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("monitor: open log file: %w", err)
	}
	m.logFile = f
	return nil
}

func (m *Monitor) process(ev bus.Event) {
	anomaly := "none"
	var detail *string

	switch ev.Type {
	case bus.EventTaskBegin:
		if p, ok := ev.Payload.(bus.TaskPayload); ok {
			m.task = p.Task
		}
		m.stepsInTask = 0
		m.collisionsInTask = 0

	case bus.EventStep:
		m.stepsInTask++
		if m.stepsInTask == stallThreshold {
			anomaly = "stall"
			d := fmt.Sprintf("task %s still running after %d steps", m.task, m.stepsInTask)
			detail = &d
			slog.Warn("[MONITOR] STALL", "task", m.task, "steps", m.stepsInTask)
		}

	case bus.EventCollision:
		m.collisionsInTask++
		if m.collisionsInTask == collisionStreakThreshold {
			anomaly = "collision_streak"
			d := fmt.Sprintf("task %s hit %d collisions", m.task, m.collisionsInTask)
			detail = &d
			slog.Warn("[MONITOR] COLLISION STREAK", "task", m.task, "collisions", m.collisionsInTask)
		}

	case bus.EventTaskEnd:
		if p, ok := ev.Payload.(bus.TaskPayload); ok {
			switch p.Status {
			case "success", "detached":
				m.failureStreak = 0
			default:
				m.failureStreak++
			}
			if m.failureStreak == failureStreakThreshold {
				anomaly = "failure_streak"
				d := fmt.Sprintf("%d consecutive task failures, latest %s → %s", m.failureStreak, p.Task, p.Status)
				detail = &d
				slog.Warn("[MONITOR] FAILURE STREAK", "count", m.failureStreak, "task", p.Task, "status", p.Status)
			}
		}

	case bus.EventGoalDetached:
		m.outstandingGoals++
		if m.outstandingGoals > 2 {
			anomaly = "goal_leak"
			d := fmt.Sprintf("%d detached goals outstanding (avatar has two arms)", m.outstandingGoals)
			detail = &d
			slog.Warn("[MONITOR] GOAL LEAK", "outstanding", m.outstandingGoals)
		}

	case bus.EventGoalResolved:
		if m.outstandingGoals > 0 {
			m.outstandingGoals--
		}
	}

	// Steps are too frequent to archive unconditionally.
	if ev.Type == bus.EventStep && anomaly == "none" {
		return
	}

	m.writeEvent(Event{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      string(ev.Type),
		Task:      m.task,
		Anomaly:   anomaly,
		Detail:    detail,
	})
}

func (m *Monitor) writeEvent(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("[MONITOR] marshal event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(m.logFile, "%s\n", data); err != nil {
		slog.Error("[MONITOR] write event", "error", err)
	}
}
