package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
	"github.com/rainbow979/sticky-mitten-avatar/sma"
)

// stubController records dispatched ops and returns scripted statuses.
type stubController struct {
	calls    []string
	statuses map[string]sma.TaskStatus // op → status, default success
	errOn    string                    // op that fails with a transport error
	objects  map[string]int64

	graspedID int64
	lastReach sma.ReachOptions
}

func (s *stubController) status(op string) sma.TaskStatus {
	if st, ok := s.statuses[op]; ok {
		return st
	}
	return sma.StatusSuccess
}

func (s *stubController) call(op string) error {
	s.calls = append(s.calls, op)
	if s.errOn == op {
		return errors.New("connection reset")
	}
	return nil
}

func (s *stubController) ReachForTarget(_ context.Context, _ sma.Arm, _ geom.Vec3, opts sma.ReachOptions) (sma.TaskStatus, error) {
	s.lastReach = opts
	if err := s.call(OpReachForTarget); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpReachForTarget), nil
}

func (s *stubController) GraspObject(_ context.Context, objectID int64, _ sma.GraspOptions) (sma.Arm, sma.TaskStatus, error) {
	s.graspedID = objectID
	if err := s.call(OpGraspObject); err != nil {
		return "", sma.StatusOngoing, err
	}
	return sma.ArmRight, s.status(OpGraspObject), nil
}

func (s *stubController) Drop(_ context.Context, _ sma.DropOptions) (sma.TaskStatus, error) {
	if err := s.call(OpDrop); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpDrop), nil
}

func (s *stubController) ResetArms(_ context.Context, _ sma.ResetOptions) (sma.TaskStatus, error) {
	if err := s.call(OpResetArms); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpResetArms), nil
}

func (s *stubController) TurnTo(_ context.Context, _ sma.Target, _ sma.TurnOptions) (sma.TaskStatus, error) {
	if err := s.call(OpTurnTo); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpTurnTo), nil
}

func (s *stubController) TurnBy(_ context.Context, _ float64, _ sma.TurnOptions) (sma.TaskStatus, error) {
	if err := s.call(OpTurnBy); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpTurnBy), nil
}

func (s *stubController) MoveForwardBy(_ context.Context, _ float64, _ sma.MoveOptions) (sma.TaskStatus, error) {
	if err := s.call(OpMoveForwardBy); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpMoveForwardBy), nil
}

func (s *stubController) GoTo(_ context.Context, _ sma.Target, _ sma.GoToOptions) (sma.TaskStatus, error) {
	if err := s.call(OpGoTo); err != nil {
		return sma.StatusOngoing, err
	}
	return s.status(OpGoTo), nil
}

func (s *stubController) Shake(_ context.Context, _ sma.ShakeOptions) error {
	return s.call(OpShake)
}

func (s *stubController) RotateCameraBy(_ context.Context, _ string, _ float64) error {
	return s.call(OpRotateCameraBy)
}

func (s *stubController) ResetCameraRotation(_ context.Context) error {
	return s.call(OpResetCameraRotation)
}

func (s *stubController) StepFrames(_ context.Context, _ int) error {
	return s.call(OpStepFrames)
}

func (s *stubController) ObjectIDByName(name string) (int64, bool) {
	id, ok := s.objects[name]
	return id, ok
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- Load ---

func TestLoad_ParsesFullScript(t *testing.T) {
	// A complete script round-trips: ops, targets, options, expectations.
	path := writeScript(t, `
name: fetch-jug
description: grasp the jug and carry it back
on_mismatch: continue
tasks:
  - op: turn_to
    object: jug_small
    expect: success
  - op: go_to
    object: jug_small
    threshold: 0.7
  - op: grasp_object
    object: jug_small
    max_steps: 150
  - op: reach_for_target
    arm: right
    point: {x: 0.1, y: 0.4, z: 0.5}
    detach: true
    expect: detached
  - op: step_frames
    frames: 20
  - op: drop
    skip_reset: true
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "fetch-jug" || s.OnMismatch != OnMismatchContinue {
		t.Errorf("header = %q/%q", s.Name, s.OnMismatch)
	}
	if len(s.Tasks) != 6 {
		t.Fatalf("got %d tasks, want 6", len(s.Tasks))
	}
	reach := s.Tasks[3]
	if reach.Point == nil || reach.Point.Y != 0.4 {
		t.Errorf("reach point = %+v", reach.Point)
	}
	if !reach.Detach || reach.Expect != "detached" {
		t.Errorf("reach task = %+v", reach)
	}
	if s.Tasks[2].MaxSteps != 150 {
		t.Errorf("grasp max_steps = %d", s.Tasks[2].MaxSteps)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	// Typos in task keys fail the parse instead of being silently dropped.
	path := writeScript(t, `
name: typo
tasks:
  - op: turn_by
    anlge: 90
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// --- Validate ---

func TestValidate_RejectsBadScripts(t *testing.T) {
	// Each structurally broken script names its problem.
	cases := []struct {
		name   string
		script Script
		want   string
	}{
		{"no name", Script{Tasks: []Task{{Op: OpDrop}}}, "no name"},
		{"no tasks", Script{Name: "x"}, "no tasks"},
		{"bad policy", Script{Name: "x", OnMismatch: "retry", Tasks: []Task{{Op: OpDrop}}}, "on_mismatch"},
		{"unknown op", Script{Name: "x", Tasks: []Task{{Op: "jump"}}}, "unknown op"},
		{"reach no point", Script{Name: "x", Tasks: []Task{{Op: OpReachForTarget, Arm: "right"}}}, "point"},
		{"reach bad arm", Script{Name: "x", Tasks: []Task{{Op: OpReachForTarget, Arm: "middle", Point: &geom.Vec3{}}}}, "arm"},
		{"grasp no object", Script{Name: "x", Tasks: []Task{{Op: OpGraspObject}}}, "object"},
		{"turn_to no target", Script{Name: "x", Tasks: []Task{{Op: OpTurnTo}}}, "point, object"},
		{"turn_by zero", Script{Name: "x", Tasks: []Task{{Op: OpTurnBy}}}, "angle"},
		{"move zero", Script{Name: "x", Tasks: []Task{{Op: OpMoveForwardBy}}}, "distance"},
		{"frames zero", Script{Name: "x", Tasks: []Task{{Op: OpStepFrames}}}, "frames"},
		{"camera no axis", Script{Name: "x", Tasks: []Task{{Op: OpRotateCameraBy, Angle: 30}}}, "axis"},
		{"bad expect", Script{Name: "x", Tasks: []Task{{Op: OpDrop, Expect: "maybe"}}}, "expect"},
	}
	for _, tc := range cases {
		err := tc.script.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

// --- Run ---

func TestRun_DispatchesTasksInOrder(t *testing.T) {
	ctrl := &stubController{objects: map[string]int64{"jug_small": 312}}
	script := &Script{Name: "order", Tasks: []Task{
		{Op: OpTurnTo, Object: "jug_small"},
		{Op: OpGoTo, Object: "jug_small"},
		{Op: OpGraspObject, Object: "jug_small"},
		{Op: OpShake},
		{Op: OpDrop},
	}}

	results, err := NewRunner(ctrl).Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{OpTurnTo, OpGoTo, OpGraspObject, OpShake, OpDrop}
	if len(ctrl.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ctrl.calls, want)
	}
	for i := range want {
		if ctrl.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, ctrl.calls[i], want[i])
		}
	}
	if len(results) != 5 || len(Mismatched(results)) != 0 {
		t.Errorf("results = %+v", results)
	}
}

func TestRun_MismatchStopsByDefault(t *testing.T) {
	// A diverging status ends the run after the diverging task; later tasks
	// never execute. The divergence is not a Go error.
	ctrl := &stubController{statuses: map[string]sma.TaskStatus{OpTurnBy: sma.StatusTurned360}}
	script := &Script{Name: "stop", Tasks: []Task{
		{Op: OpTurnBy, Angle: 90, Expect: "success"},
		{Op: OpDrop},
	}}

	results, err := NewRunner(ctrl).Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want 1 entry", results)
	}
	if results[0].Matched() {
		t.Error("diverging result reported as matched")
	}
	if len(ctrl.calls) != 1 {
		t.Errorf("calls = %v, want only turn_by", ctrl.calls)
	}
}

func TestRun_MismatchContinuesWhenConfigured(t *testing.T) {
	ctrl := &stubController{statuses: map[string]sma.TaskStatus{OpTurnBy: sma.StatusTurned360}}
	script := &Script{Name: "keep-going", OnMismatch: OnMismatchContinue, Tasks: []Task{
		{Op: OpTurnBy, Angle: 90, Expect: "success"},
		{Op: OpDrop},
	}}

	results, err := NewRunner(ctrl).Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2 entries", results)
	}
	if got := Mismatched(results); len(got) != 1 || got[0].Op != OpTurnBy {
		t.Errorf("mismatched = %+v", got)
	}
}

func TestRun_ResolvesObjectNames(t *testing.T) {
	// grasp_object with a model name resolves through the scene index.
	ctrl := &stubController{objects: map[string]int64{"jug_small": 312}}
	script := &Script{Name: "resolve", Tasks: []Task{{Op: OpGraspObject, Object: "jug_small"}}}

	if _, err := NewRunner(ctrl).Run(context.Background(), script); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctrl.graspedID != 312 {
		t.Errorf("grasped object %d, want 312", ctrl.graspedID)
	}
}

func TestRun_UnknownObjectFails(t *testing.T) {
	ctrl := &stubController{objects: map[string]int64{}}
	script := &Script{Name: "missing", Tasks: []Task{{Op: OpGraspObject, Object: "ghost"}}}

	_, err := NewRunner(ctrl).Run(context.Background(), script)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("err = %v, want unknown object error", err)
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("calls = %v, want none", ctrl.calls)
	}
}

func TestRun_TransportErrorAborts(t *testing.T) {
	ctrl := &stubController{errOn: OpGoTo, objects: map[string]int64{"jug_small": 312}}
	script := &Script{Name: "dead-link", Tasks: []Task{
		{Op: OpTurnBy, Angle: 45},
		{Op: OpGoTo, Object: "jug_small"},
		{Op: OpDrop},
	}}

	results, err := NewRunner(ctrl).Run(context.Background(), script)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v, want transport error", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %+v, want the turn only", results)
	}
	if len(ctrl.calls) != 2 {
		t.Errorf("calls = %v, want turn_by then go_to", ctrl.calls)
	}
}

func TestRun_PassesOptionsThrough(t *testing.T) {
	// YAML option fields land in the primitive's option struct unchanged.
	ctrl := &stubController{}
	script := &Script{Name: "opts", Tasks: []Task{{
		Op: OpReachForTarget, Arm: "left", Point: &geom.Vec3{X: 0.1, Y: 0.4, Z: 0.5},
		MaxSteps: 7, Threshold: 0.2, Detach: true, SkipCheck: true, IgnoreCollisions: true,
	}}}

	if _, err := NewRunner(ctrl).Run(context.Background(), script); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := ctrl.lastReach
	if got.MaxSteps != 7 || got.Threshold != 0.2 || !got.Detach || !got.SkipCheck || !got.IgnoreCollisions {
		t.Errorf("reach options = %+v", got)
	}
}
