package tasklog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// readEvents parses all JSONL lines from a file into a slice of Events.
func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	var events []Event
	for _, line := range splitLines(string(data)) {
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("readEvents: unmarshal %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// --- Registry.Open ---

func TestRegistry_Open_WritesRunBegin(t *testing.T) {
	// Open creates the log directory and writes a run_begin event as the first line
	dir := t.TempDir()
	r := NewRegistry(filepath.Join(dir, "runs"))
	rl := r.Open("run1", "warehouse")
	if rl == nil {
		t.Fatal("expected non-nil RunLog")
	}
	r.Close("run1", "completed")

	events := readEvents(t, filepath.Join(dir, "runs", "run1.jsonl"))
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	if events[0].Kind != KindRunBegin {
		t.Errorf("first event kind = %q, want %q", events[0].Kind, KindRunBegin)
	}
	if events[0].RunID != "run1" {
		t.Errorf("run_id = %q, want %q", events[0].RunID, "run1")
	}
	if events[0].Scenario != "warehouse" {
		t.Errorf("scenario = %q, want %q", events[0].Scenario, "warehouse")
	}
}

func TestRegistry_Open_ReturnsExistingOnDuplicate(t *testing.T) {
	// Open returns the existing log without re-opening for the same runID
	dir := t.TempDir()
	r := NewRegistry(filepath.Join(dir, "runs"))
	rl1 := r.Open("run1", "a")
	rl2 := r.Open("run1", "b")
	if rl1 != rl2 {
		t.Error("expected same *RunLog pointer on second Open")
	}
	r.Close("run1", "completed")

	events := readEvents(t, filepath.Join(dir, "runs", "run1.jsonl"))
	beginCount := 0
	for _, e := range events {
		if e.Kind == KindRunBegin {
			beginCount++
		}
	}
	if beginCount != 1 {
		t.Errorf("expected 1 run_begin, got %d", beginCount)
	}
}

// --- Registry.Close ---

func TestRegistry_Close_WritesRunEndWithTotals(t *testing.T) {
	// Close writes run_end carrying total steps, per-status task counts, and collisions
	dir := t.TempDir()
	r := NewRegistry(filepath.Join(dir, "runs"))
	rl := r.Open("run1", "")

	rl.TaskBegin("turn_to", "", "object 55")
	rl.Step("turn_to", 1, 1, geom.Vec3{X: 1, Z: 2}, 30, []string{"turn_avatar_by"})
	rl.Step("turn_to", 2, 2, geom.Vec3{X: 1, Z: 2}, 15, []string{"turn_avatar_by"})
	rl.Collision("turn_to", "environment", 901, 0)
	rl.TaskEnd("turn_to", "success", 2)
	rl.TaskEnd("go_to", "too_long", 200)

	r.Close("run1", "completed")

	events := readEvents(t, filepath.Join(dir, "runs", "run1.jsonl"))
	last := events[len(events)-1]
	if last.Kind != KindRunEnd {
		t.Fatalf("last event kind = %q, want run_end", last.Kind)
	}
	if last.Status != "completed" {
		t.Errorf("status = %q, want completed", last.Status)
	}
	if last.TotalSteps != 2 {
		t.Errorf("total_steps = %d, want 2", last.TotalSteps)
	}
	if last.TaskCounts["success"] != 1 || last.TaskCounts["too_long"] != 1 {
		t.Errorf("task_counts = %v", last.TaskCounts)
	}
	if last.Collisions != 1 {
		t.Errorf("collisions = %d, want 1", last.Collisions)
	}
	if got := r.Get("run1"); got != nil {
		t.Errorf("expected nil after Close, got %v", got)
	}
}

func TestRegistry_Close_NoopsForUnknown(t *testing.T) {
	// Close no-ops gracefully when runID is not registered
	dir := t.TempDir()
	r := NewRegistry(dir)
	r.Close("nonexistent", "completed")
}

// --- nil RunLog safety ---

func TestRunLog_NilReceiverNoops(t *testing.T) {
	// All RunLog methods are no-ops when called on nil *RunLog
	var rl *RunLog
	rl.TaskBegin("reach_for_target", "left", "point")
	rl.TaskEnd("reach_for_target", "success", 12)
	rl.Step("reach_for_target", 1, 1, geom.Vec3{}, 0, nil)
	rl.Collision("go_to", "heavy", 901, 55)
	rl.GoalDetached("grasp_object", "right")
	rl.GoalResolved("grasp_object", "right", "held")
	if rl.Stats() != nil {
		t.Error("Stats on nil = non-nil, want nil")
	}
}

// --- step event shape ---

func TestRunLog_Step_SerialisesPose(t *testing.T) {
	// A step event carries frame, 1-based step index, position, and heading
	dir := t.TempDir()
	r := NewRegistry(filepath.Join(dir, "runs"))
	rl := r.Open("run1", "")
	rl.Step("go_to", 7, 3, geom.Vec3{X: 1.5, Y: 0, Z: -2}, 90, []string{"move_avatar_forward_by"})
	r.Close("run1", "completed")

	events := readEvents(t, filepath.Join(dir, "runs", "run1.jsonl"))
	for _, e := range events {
		if e.Kind != KindStep {
			continue
		}
		if e.Frame != 7 || e.Step != 3 {
			t.Errorf("frame/step = %d/%d, want 7/3", e.Frame, e.Step)
		}
		if e.Position == nil || e.Position.X != 1.5 || e.Position.Z != -2 {
			t.Errorf("position = %+v", e.Position)
		}
		if e.Heading != 90 {
			t.Errorf("heading = %v, want 90", e.Heading)
		}
		if len(e.Commands) != 1 || e.Commands[0] != "move_avatar_forward_by" {
			t.Errorf("commands = %v", e.Commands)
		}
		return
	}
	t.Fatal("no step event found")
}
