// Package bus is the observable event stream of a controller run. Every
// simulation step and task transition is published here; the monitor and the
// terminal display consume read-only taps.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

const (
	subscriberBufSize = 64
	tapBufSize        = 256
)

// EventType identifies the payload type of a bus event.
type EventType string

const (
	EventStep         EventType = "Step"         // one simulation step completed
	EventTaskBegin    EventType = "TaskBegin"    // a task primitive started
	EventTaskEnd      EventType = "TaskEnd"      // a task primitive reached a terminal status
	EventCollision    EventType = "Collision"    // a collision fact observed this step
	EventGoalDetached EventType = "GoalDetached" // a detached goal left standing
	EventGoalResolved EventType = "GoalResolved" // a standing goal resolved in the background
)

// Event is the envelope for everything published on the bus.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
}

// StepPayload describes one completed simulation step.
type StepPayload struct {
	Frame    int64     `json:"frame"`
	Task     string    `json:"task,omitempty"`
	Step     int       `json:"step"` // 1-based step index within the task
	Commands int       `json:"commands"`
	Position geom.Vec3 `json:"position"`
	Heading  float64   `json:"heading"`
}

// TaskPayload describes a task begin or end.
type TaskPayload struct {
	Task   string `json:"task"`
	Arm    string `json:"arm,omitempty"`
	Target string `json:"target,omitempty"`
	Status string `json:"status,omitempty"` // TaskEnd only
	Steps  int    `json:"steps,omitempty"`  // TaskEnd only
}

// CollisionPayload describes one collision fact.
type CollisionPayload struct {
	Kind     string `json:"kind"` // "heavy" | "environment"
	BodyPart int64  `json:"body_part"`
	ObjectID int64  `json:"object_id,omitempty"`
	Task     string `json:"task,omitempty"`
}

// GoalPayload describes a standing arm goal transition.
type GoalPayload struct {
	Arm     string `json:"arm"`
	Task    string `json:"task"`
	Outcome string `json:"outcome,omitempty"` // GoalResolved only
}

// Bus fans events out to per-type subscribers and to tap channels that see
// every event in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	taps        []chan Event
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Publish fans out ev to all subscribers of ev.Type and to the tap channel.
// Non-blocking: a full subscriber channel drops the event with a warning, so
// a stalled consumer can never stall the step loop.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := b.subscribers[ev.Type]
	taps := b.taps
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("[BUS] subscriber channel full, event dropped", "type", ev.Type)
		}
	}

	for _, ch := range taps {
		select {
		case ch <- ev:
		default:
			slog.Warn("[BUS] tap channel full, event dropped", "type", ev.Type)
		}
	}
}

// Subscribe returns a receive-only channel that delivers events of type t.
// Each call creates a new independent subscriber channel.
func (b *Bus) Subscribe(t EventType) <-chan Event {
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], ch)
	b.mu.Unlock()
	return ch
}

// Tap returns a receive-only channel carrying every event published after
// the call, in publish order. Each call creates an independent tap, so the
// monitor and the display each get their own complete stream.
func (b *Bus) Tap() <-chan Event {
	ch := make(chan Event, tapBufSize)
	b.mu.Lock()
	b.taps = append(b.taps, ch)
	b.mu.Unlock()
	return ch
}
