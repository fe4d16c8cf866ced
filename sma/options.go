package sma

import "github.com/rainbow979/sticky-mitten-avatar/internal/geom"

// Default thresholds and forces, recovered from the avatar's tuning. Option
// structs treat the zero value as "use the default".
const (
	defaultMassCutoff = 90.0
	defaultMaxSteps   = 200

	defaultReachThreshold = 0.1
	defaultNearBound      = 0.25
	defaultReachBound     = 0.52

	defaultTurnForce     = 1000.0
	defaultTurnThreshold = 0.15

	defaultMoveForce     = 80.0
	defaultMoveThreshold = 0.35

	defaultIdleSteps = 5
)

// ZeroBudget requests a duration bound of zero steps: the task returns
// too_long on its very first evaluation. MaxSteps 0 means "use the default",
// so the explicit floor needs a sentinel.
const ZeroBudget = -1

// stepBudget resolves a MaxSteps option against a default bound.
func stepBudget(v, def int) int {
	if v == 0 {
		return def
	}
	if v < 0 {
		return 0
	}
	return v
}

// ReachOptions configure ReachForTarget.
type ReachOptions struct {
	// MaxSteps bounds the task in simulation steps. 0 = controller default,
	// ZeroBudget = fail immediately with too_long.
	MaxSteps int
	// Threshold is the mitten-at-target stop distance. 0 = 0.1.
	Threshold float64
	// NearBound and ReachBound are the feasibility gate's limits.
	// 0 = 0.25 and 0.52.
	NearBound  float64
	ReachBound float64
	// TargetOrientation is an optional IK orientation hint for the engine.
	TargetOrientation *geom.Vec3
	// SkipCheck bypasses the feasibility gate.
	SkipCheck bool
	// Detach issues the first step's commands and returns detached, leaving
	// a standing goal serviced by later steps.
	Detach bool
	// IgnoreCollisions disables the stop-on-collision rule.
	IgnoreCollisions bool
}

func (o ReachOptions) withDefaults(cfg Config) ReachOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	if o.Threshold == 0 {
		o.Threshold = defaultReachThreshold
	}
	if o.NearBound == 0 {
		o.NearBound = defaultNearBound
	}
	if o.ReachBound == 0 {
		o.ReachBound = defaultReachBound
	}
	return o
}

// GraspOptions configure GraspObject. The arm is not an option: the mitten
// nearest the object does the work.
type GraspOptions struct {
	MaxSteps         int
	Threshold        float64
	NearBound        float64
	ReachBound       float64
	SkipCheck        bool
	Detach           bool
	IgnoreCollisions bool
}

func (o GraspOptions) withDefaults(cfg Config) GraspOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	if o.Threshold == 0 {
		o.Threshold = defaultReachThreshold
	}
	if o.NearBound == 0 {
		o.NearBound = defaultNearBound
	}
	if o.ReachBound == 0 {
		o.ReachBound = defaultReachBound
	}
	return o
}

// DropOptions configure Drop.
type DropOptions struct {
	MaxSteps int
	// SkipReset releases the mittens without bending the arms back to
	// neutral.
	SkipReset        bool
	Detach           bool
	IgnoreCollisions bool
}

func (o DropOptions) withDefaults(cfg Config) DropOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	return o
}

// ResetOptions configure ResetArms.
type ResetOptions struct {
	MaxSteps         int
	Detach           bool
	IgnoreCollisions bool
}

func (o ResetOptions) withDefaults(cfg Config) ResetOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	return o
}

// TurnOptions configure TurnTo and TurnBy.
type TurnOptions struct {
	MaxSteps int
	// Force is the turn torque magnitude. 0 = 1000.
	Force float64
	// Threshold is the remaining angle, in degrees, at which the turn
	// converges. 0 = 0.15.
	Threshold        float64
	IgnoreCollisions bool
}

func (o TurnOptions) withDefaults(cfg Config) TurnOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	if o.Force == 0 {
		o.Force = defaultTurnForce
	}
	if o.Threshold == 0 {
		o.Threshold = defaultTurnThreshold
	}
	return o
}

// MoveOptions configure MoveForwardBy.
type MoveOptions struct {
	MaxSteps int
	// Force is the forward drive magnitude. 0 = 80.
	Force float64
	// Threshold is the remaining distance at which the move converges.
	// 0 = 0.35.
	Threshold float64
	// OvershootBound is how far past the target the avatar may travel before
	// the task fails as overshot. 0 = Threshold.
	OvershootBound   float64
	IgnoreCollisions bool
}

func (o MoveOptions) withDefaults(cfg Config) MoveOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	if o.Force == 0 {
		o.Force = defaultMoveForce
	}
	if o.Threshold == 0 {
		o.Threshold = defaultMoveThreshold
	}
	if o.OvershootBound == 0 {
		o.OvershootBound = o.Threshold
	}
	return o
}

// GoToOptions configure GoTo: a turn phase toward the target, then a forward
// drive until the remaining distance is within Threshold.
type GoToOptions struct {
	MaxSteps         int
	TurnForce        float64
	TurnThreshold    float64
	Force            float64
	Threshold        float64
	OvershootBound   float64
	IgnoreCollisions bool
}

func (o GoToOptions) withDefaults(cfg Config) GoToOptions {
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	if o.TurnForce == 0 {
		o.TurnForce = defaultTurnForce
	}
	if o.TurnThreshold == 0 {
		o.TurnThreshold = defaultTurnThreshold
	}
	if o.Force == 0 {
		o.Force = defaultMoveForce
	}
	if o.Threshold == 0 {
		o.Threshold = defaultMoveThreshold
	}
	if o.OvershootBound == 0 {
		o.OvershootBound = o.Threshold
	}
	return o
}

// ShakeOptions configure Shake. The angle, oscillation count, and force are
// drawn uniformly from their ranges with the controller's random source, in
// that order.
type ShakeOptions struct {
	// Joint and Axis name the joint to oscillate. Defaults: elbow_left pitch.
	Joint string
	Axis  string
	// AngleRange is the bend-out angle in degrees. Zero value = {20, 30}.
	AngleRange [2]float64
	// ShakeRange is the oscillation count. Zero value = {3, 5}.
	ShakeRange [2]int
	// ForceRange is the extra joint force for the oscillation.
	// Zero value = {900, 1000}.
	ForceRange [2]float64
	// IdleSteps is how many consecutive settled reads end a phase. 0 = 5.
	IdleSteps int
	// MaxSteps bounds each oscillation phase. 0 = controller default.
	MaxSteps int
}

func (o ShakeOptions) withDefaults(cfg Config) ShakeOptions {
	if o.Joint == "" {
		o.Joint = "elbow_left"
	}
	if o.Axis == "" {
		o.Axis = "pitch"
	}
	if o.AngleRange == [2]float64{} {
		o.AngleRange = [2]float64{20, 30}
	}
	if o.ShakeRange == [2]int{} {
		o.ShakeRange = [2]int{3, 5}
	}
	if o.ForceRange == [2]float64{} {
		o.ForceRange = [2]float64{900, 1000}
	}
	if o.AngleRange[1] < o.AngleRange[0] {
		o.AngleRange[1] = o.AngleRange[0]
	}
	if o.ShakeRange[1] < o.ShakeRange[0] {
		o.ShakeRange[1] = o.ShakeRange[0]
	}
	if o.ForceRange[1] < o.ForceRange[0] {
		o.ForceRange[1] = o.ForceRange[0]
	}
	if o.IdleSteps == 0 {
		o.IdleSteps = defaultIdleSteps
	}
	o.MaxSteps = stepBudget(o.MaxSteps, cfg.MaxSteps)
	return o
}
