// Package scenario loads scripted task sequences from YAML and plays them
// against a controller. A script is an ordered list of task primitives with
// optional expected outcomes; divergence from an expectation stops the run
// unless the script opts into continuing.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
	"github.com/rainbow979/sticky-mitten-avatar/sma"
)

// Task ops.
const (
	OpReachForTarget      = "reach_for_target"
	OpGraspObject         = "grasp_object"
	OpDrop                = "drop"
	OpResetArms           = "reset_arms"
	OpTurnTo              = "turn_to"
	OpTurnBy              = "turn_by"
	OpMoveForwardBy       = "move_forward_by"
	OpGoTo                = "go_to"
	OpShake               = "shake"
	OpRotateCameraBy      = "rotate_camera_by"
	OpResetCameraRotation = "reset_camera_rotation"
	OpStepFrames          = "step_frames"
)

// Mismatch policies.
const (
	OnMismatchAbort    = "abort"
	OnMismatchContinue = "continue"
)

// Script is one YAML scenario file.
type Script struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// OnMismatch decides what happens when a task's status diverges from its
	// expectation: "abort" (default) stops the run, "continue" keeps going.
	OnMismatch string `yaml:"on_mismatch,omitempty"`
	Tasks      []Task `yaml:"tasks"`
}

// Task is one scripted primitive invocation. Which fields apply depends on
// op; zero-valued options fall back to the controller defaults.
type Task struct {
	Op string `yaml:"op"`

	Arm      string     `yaml:"arm,omitempty"`       // reach_for_target
	Point    *geom.Vec3 `yaml:"point,omitempty"`     // world position target
	Object   string     `yaml:"object,omitempty"`    // scene object by model name
	ObjectID int64      `yaml:"object_id,omitempty"` // scene object by ID
	Angle    float64    `yaml:"angle,omitempty"`     // turn_by, rotate_camera_by
	Distance float64    `yaml:"distance,omitempty"`  // move_forward_by
	Frames   int        `yaml:"frames,omitempty"`    // step_frames
	Joint    string     `yaml:"joint,omitempty"`     // shake
	Axis     string     `yaml:"axis,omitempty"`      // shake, rotate_camera_by

	// MaxSteps bounds the task in simulation steps; -1 forces an immediate
	// too_long, 0 uses the controller default.
	MaxSteps         int     `yaml:"max_steps,omitempty"`
	Threshold        float64 `yaml:"threshold,omitempty"`
	Force            float64 `yaml:"force,omitempty"`
	Overshoot        float64 `yaml:"overshoot,omitempty"`
	Detach           bool    `yaml:"detach,omitempty"`
	SkipCheck        bool    `yaml:"skip_check,omitempty"`
	SkipReset        bool    `yaml:"skip_reset,omitempty"`
	IgnoreCollisions bool    `yaml:"ignore_collisions,omitempty"`

	// Expect is the terminal status this task should produce. Empty accepts
	// any outcome.
	Expect string `yaml:"expect,omitempty"`
}

// terminalStatuses is the closed vocabulary an expect field may name.
var terminalStatuses = []sma.TaskStatus{
	sma.StatusSuccess,
	sma.StatusTooCloseToReach,
	sma.StatusTooFarToReach,
	sma.StatusBehindAvatar,
	sma.StatusNoLongerBending,
	sma.StatusFailedToPickUp,
	sma.StatusBadRaycast,
	sma.StatusTurned360,
	sma.StatusTooLong,
	sma.StatusOvershot,
	sma.StatusCollidedWithHeavy,
	sma.StatusCollidedWithEnvironment,
	sma.StatusDetached,
}

func knownStatus(s string) bool {
	for _, st := range terminalStatuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

// Load reads, parses, and validates one scenario file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scenario: parse %s: %w", filepath.Base(path), err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// Validate checks the script shape and each task's op-specific requirements.
func (s *Script) Validate() error {
	if s.Name == "" {
		return errors.New("script has no name")
	}
	switch s.OnMismatch {
	case "", OnMismatchAbort, OnMismatchContinue:
	default:
		return fmt.Errorf("unknown on_mismatch %q", s.OnMismatch)
	}
	if len(s.Tasks) == 0 {
		return errors.New("script has no tasks")
	}
	for i := range s.Tasks {
		if err := s.Tasks[i].validate(); err != nil {
			return fmt.Errorf("task %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *Task) validate() error {
	switch t.Op {
	case OpReachForTarget:
		if t.Arm != string(sma.ArmLeft) && t.Arm != string(sma.ArmRight) {
			return fmt.Errorf("reach_for_target needs arm %q or %q", sma.ArmLeft, sma.ArmRight)
		}
		if t.Point == nil {
			return errors.New("reach_for_target needs a point")
		}
	case OpGraspObject:
		if t.Object == "" && t.ObjectID == 0 {
			return errors.New("grasp_object needs an object or object_id")
		}
	case OpTurnTo, OpGoTo:
		if t.Point == nil && t.Object == "" && t.ObjectID == 0 {
			return fmt.Errorf("%s needs a point, object, or object_id", t.Op)
		}
	case OpTurnBy:
		if t.Angle == 0 {
			return errors.New("turn_by needs a non-zero angle")
		}
	case OpMoveForwardBy:
		if t.Distance == 0 {
			return errors.New("move_forward_by needs a non-zero distance")
		}
	case OpRotateCameraBy:
		if t.Axis == "" {
			return errors.New("rotate_camera_by needs an axis")
		}
	case OpStepFrames:
		if t.Frames <= 0 {
			return errors.New("step_frames needs frames > 0")
		}
	case OpDrop, OpResetArms, OpShake, OpResetCameraRotation:
	default:
		return fmt.Errorf("unknown op %q", t.Op)
	}
	if t.Expect != "" && !knownStatus(t.Expect) {
		return fmt.Errorf("unknown expect status %q", t.Expect)
	}
	return nil
}

// Controller is the task surface a script drives. *sma.Controller implements
// it; tests substitute a stub.
type Controller interface {
	ReachForTarget(ctx context.Context, arm sma.Arm, target geom.Vec3, opts sma.ReachOptions) (sma.TaskStatus, error)
	GraspObject(ctx context.Context, objectID int64, opts sma.GraspOptions) (sma.Arm, sma.TaskStatus, error)
	Drop(ctx context.Context, opts sma.DropOptions) (sma.TaskStatus, error)
	ResetArms(ctx context.Context, opts sma.ResetOptions) (sma.TaskStatus, error)
	TurnTo(ctx context.Context, target sma.Target, opts sma.TurnOptions) (sma.TaskStatus, error)
	TurnBy(ctx context.Context, angle float64, opts sma.TurnOptions) (sma.TaskStatus, error)
	MoveForwardBy(ctx context.Context, distance float64, opts sma.MoveOptions) (sma.TaskStatus, error)
	GoTo(ctx context.Context, target sma.Target, opts sma.GoToOptions) (sma.TaskStatus, error)
	Shake(ctx context.Context, opts sma.ShakeOptions) error
	RotateCameraBy(ctx context.Context, axis string, angle float64) error
	ResetCameraRotation(ctx context.Context) error
	StepFrames(ctx context.Context, n int) error
	ObjectIDByName(name string) (int64, bool)
}

// Result records one executed task.
type Result struct {
	Index  int
	Op     string
	Status sma.TaskStatus
	Expect string
}

// Matched reports whether the task met its expectation. Tasks without an
// expectation always match.
func (r Result) Matched() bool {
	return r.Expect == "" || string(r.Status) == r.Expect
}

// Mismatched filters results down to the ones that diverged from their
// expectation.
func Mismatched(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Matched() {
			out = append(out, r)
		}
	}
	return out
}

// Runner plays scripts against one controller.
type Runner struct {
	ctrl Controller
}

// NewRunner creates a Runner driving ctrl.
func NewRunner(ctrl Controller) *Runner {
	return &Runner{ctrl: ctrl}
}

// Run executes the script's tasks in order. A transport error aborts the run
// and is returned; a status mismatch stops it without an error unless the
// script's on_mismatch is "continue". The returned results cover every task
// that executed.
func (r *Runner) Run(ctx context.Context, script *Script) ([]Result, error) {
	slog.Info("[SCENARIO] run begin", "name", script.Name, "tasks", len(script.Tasks))
	var results []Result
	for i, task := range script.Tasks {
		status, err := r.dispatch(ctx, task)
		if err != nil {
			return results, fmt.Errorf("scenario %q: task %d (%s): %w", script.Name, i+1, task.Op, err)
		}
		res := Result{Index: i + 1, Op: task.Op, Status: status, Expect: task.Expect}
		results = append(results, res)
		if !res.Matched() {
			slog.Warn("[SCENARIO] status mismatch",
				"name", script.Name, "task", i+1, "op", task.Op, "status", status, "expect", task.Expect)
			if script.OnMismatch != OnMismatchContinue {
				return results, nil
			}
			continue
		}
		slog.Info("[SCENARIO] task done", "name", script.Name, "task", i+1, "op", task.Op, "status", status)
	}
	return results, nil
}

func (r *Runner) dispatch(ctx context.Context, t Task) (sma.TaskStatus, error) {
	switch t.Op {
	case OpReachForTarget:
		return r.ctrl.ReachForTarget(ctx, sma.Arm(t.Arm), *t.Point, sma.ReachOptions{
			MaxSteps: t.MaxSteps, Threshold: t.Threshold,
			SkipCheck: t.SkipCheck, Detach: t.Detach, IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpGraspObject:
		id, err := r.objectID(t)
		if err != nil {
			return "", err
		}
		_, status, err := r.ctrl.GraspObject(ctx, id, sma.GraspOptions{
			MaxSteps: t.MaxSteps, Threshold: t.Threshold,
			SkipCheck: t.SkipCheck, Detach: t.Detach, IgnoreCollisions: t.IgnoreCollisions,
		})
		return status, err

	case OpDrop:
		return r.ctrl.Drop(ctx, sma.DropOptions{
			MaxSteps: t.MaxSteps, SkipReset: t.SkipReset,
			Detach: t.Detach, IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpResetArms:
		return r.ctrl.ResetArms(ctx, sma.ResetOptions{
			MaxSteps: t.MaxSteps, Detach: t.Detach, IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpTurnTo:
		target, err := r.target(t)
		if err != nil {
			return "", err
		}
		return r.ctrl.TurnTo(ctx, target, sma.TurnOptions{
			MaxSteps: t.MaxSteps, Force: t.Force, Threshold: t.Threshold,
			IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpTurnBy:
		return r.ctrl.TurnBy(ctx, t.Angle, sma.TurnOptions{
			MaxSteps: t.MaxSteps, Force: t.Force, Threshold: t.Threshold,
			IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpMoveForwardBy:
		return r.ctrl.MoveForwardBy(ctx, t.Distance, sma.MoveOptions{
			MaxSteps: t.MaxSteps, Force: t.Force, Threshold: t.Threshold,
			OvershootBound: t.Overshoot, IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpGoTo:
		target, err := r.target(t)
		if err != nil {
			return "", err
		}
		return r.ctrl.GoTo(ctx, target, sma.GoToOptions{
			MaxSteps: t.MaxSteps, Force: t.Force, Threshold: t.Threshold,
			OvershootBound: t.Overshoot, IgnoreCollisions: t.IgnoreCollisions,
		})

	case OpShake:
		err := r.ctrl.Shake(ctx, sma.ShakeOptions{
			Joint: t.Joint, Axis: t.Axis, MaxSteps: t.MaxSteps,
		})
		return sma.StatusSuccess, err

	case OpRotateCameraBy:
		return sma.StatusSuccess, r.ctrl.RotateCameraBy(ctx, t.Axis, t.Angle)

	case OpResetCameraRotation:
		return sma.StatusSuccess, r.ctrl.ResetCameraRotation(ctx)

	case OpStepFrames:
		return sma.StatusSuccess, r.ctrl.StepFrames(ctx, t.Frames)
	}
	return "", fmt.Errorf("unknown op %q", t.Op)
}

// objectID resolves grasp_object's target object.
func (r *Runner) objectID(t Task) (int64, error) {
	if t.ObjectID != 0 {
		return t.ObjectID, nil
	}
	id, ok := r.ctrl.ObjectIDByName(t.Object)
	if !ok {
		return 0, fmt.Errorf("no object named %q in the scene", t.Object)
	}
	return id, nil
}

// target resolves a turn_to/go_to destination, preferring the explicit ID.
func (r *Runner) target(t Task) (sma.Target, error) {
	switch {
	case t.ObjectID != 0:
		return sma.ObjectTarget(t.ObjectID), nil
	case t.Object != "":
		id, ok := r.ctrl.ObjectIDByName(t.Object)
		if !ok {
			return nil, fmt.Errorf("no object named %q in the scene", t.Object)
		}
		return sma.ObjectTarget(id), nil
	default:
		return sma.PointTarget(*t.Point), nil
	}
}
