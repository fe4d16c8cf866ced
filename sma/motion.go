package sma

import (
	"context"
	"fmt"
	"math"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// Avatar drag tuning: released while a motion task drives, raised to brake
// at its terminal transition so a finished task leaves no residual drive.
const (
	driveDrag        = 0.125
	driveAngularDrag = 3.0
	brakeDrag        = 1000.0
	brakeAngularDrag = 1000.0
)

func (c *Controller) releaseDragCommand() build.Command {
	return build.SetAvatarDrag{AvatarID: c.driver.AvatarID(), Drag: driveDrag, AngularDrag: driveAngularDrag}
}

func (c *Controller) brakeCommand() build.Command {
	return build.SetAvatarDrag{AvatarID: c.driver.AvatarID(), Drag: brakeDrag, AngularDrag: brakeAngularDrag}
}

// torqueCommand turns toward a signed remaining angle, positive clockwise.
func (c *Controller) torqueCommand(remaining, force float64) build.Command {
	if remaining < 0 {
		force = -force
	}
	return build.TurnAvatarBy{AvatarID: c.driver.AvatarID(), Torque: force}
}

// driveCommand pushes the avatar along its facing, backward when the target
// offset points behind it.
func (c *Controller) driveCommand(to geom.Vec3, force float64) build.Command {
	if geom.DotXZ(to, c.avatar.Forward) < 0 {
		force = -force
	}
	return build.MoveAvatarForwardBy{AvatarID: c.driver.AvatarID(), Magnitude: force}
}

// TurnTo rotates the avatar in place until it faces target.
//
// Expectations:
//   - Remaining angle within Threshold → success, brake queued
//   - Accumulated rotation past 360° → turned_360
//   - Torque is signed by the shortest remaining rotation, re-aimed every
//     step, so a moving object target stays tracked
func (c *Controller) TurnTo(ctx context.Context, target Target, opts TurnOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{name: "turn_to", target: target.String()}
	remaining := func() (float64, error) {
		tpos, err := target.resolve(c.frame)
		if err != nil {
			return 0, err
		}
		dir := tpos.Sub(c.avatar.Position)
		if dir.NormXZ() == 0 {
			return 0, nil
		}
		return geom.NormalizeAngle(geom.AngleBetween(geom.Forward, dir) - c.Heading()), nil
	}
	return c.runTurn(ctx, spec, opts, remaining)
}

// TurnBy rotates the avatar by a signed angle in degrees. Positive angles
// turn clockwise as seen from above. The goal heading is fixed at call time.
func (c *Controller) TurnBy(ctx context.Context, angle float64, opts TurnOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{name: "turn_by", target: fmt.Sprintf("%+.1f deg", angle)}
	goal := c.Heading() + angle
	remaining := func() (float64, error) {
		return geom.NormalizeAngle(goal - c.Heading()), nil
	}
	return c.runTurn(ctx, spec, opts, remaining)
}

// runTurn rotates the avatar until the signed remaining angle, positive
// meaning clockwise, is within the threshold.
func (c *Controller) runTurn(ctx context.Context, spec taskSpec, opts TurnOptions, remaining func() (float64, error)) (TaskStatus, error) {
	spec.maxSteps = opts.MaxSteps
	spec.rotation = true
	spec.stopOnCollision = !opts.IgnoreCollisions
	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		rem, err := remaining()
		if err != nil {
			t.err = err
			return nil
		}
		var cmds []build.Command
		if t.steps == 0 {
			cmds = append(cmds, c.releaseDragCommand())
		}
		if math.Abs(rem) > opts.Threshold {
			cmds = append(cmds, c.torqueCommand(rem, opts.Force))
		}
		return cmds
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		rem, err := remaining()
		if err != nil {
			t.err = err
			return StatusOngoing
		}
		if math.Abs(rem) <= opts.Threshold {
			return StatusSuccess
		}
		return StatusOngoing
	}
	spec.onTerminal = func(c *Controller, t *taskRun, s TaskStatus) []build.Command {
		return []build.Command{c.brakeCommand()}
	}
	return c.runTask(ctx, spec)
}

// MoveForwardBy drives the avatar by a signed distance along its facing at
// call time. Negative distances back up.
func (c *Controller) MoveForwardBy(ctx context.Context, distance float64, opts MoveOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	target := c.avatar.Position.Add(c.avatar.Forward.Normalized().Scale(distance))
	spec := taskSpec{name: "move_forward_by", target: fmt.Sprintf("%+.2f", distance)}
	return c.runMove(ctx, spec, PointTarget(target), opts)
}

// runMove drives the avatar toward target until the remaining XZ distance is
// within the threshold. The overshoot metric is the remaining travel
// projected on the initial approach direction: crossing past the target
// beyond OvershootBound while still receding fails as overshot.
func (c *Controller) runMove(ctx context.Context, spec taskSpec, target Target, opts MoveOptions) (TaskStatus, error) {
	spec.maxSteps = opts.MaxSteps
	spec.stopOnCollision = !opts.IgnoreCollisions

	tpos, err := target.resolve(c.frame)
	if err != nil {
		return StatusOngoing, err
	}
	approach := approachXZ(tpos.Sub(c.avatar.Position))
	tracker := newProgressTracker(geom.DotXZ(tpos.Sub(c.avatar.Position), approach), opts.OvershootBound)

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		tpos, err := target.resolve(c.frame)
		if err != nil {
			t.err = err
			return nil
		}
		to := tpos.Sub(c.avatar.Position)
		var cmds []build.Command
		if t.steps == 0 {
			cmds = append(cmds, c.releaseDragCommand())
		}
		if to.NormXZ() > opts.Threshold {
			cmds = append(cmds, c.driveCommand(to, opts.Force))
		}
		return cmds
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		tpos, err := target.resolve(c.frame)
		if err != nil {
			t.err = err
			return StatusOngoing
		}
		to := tpos.Sub(c.avatar.Position)
		if tracker.overshot(geom.DotXZ(to, approach)) {
			return StatusOvershot
		}
		if to.NormXZ() <= opts.Threshold {
			return StatusSuccess
		}
		return StatusOngoing
	}
	spec.onTerminal = func(c *Controller, t *taskRun, s TaskStatus) []build.Command {
		return []build.Command{c.brakeCommand()}
	}
	return c.runTask(ctx, spec)
}

// GoTo turns the avatar toward target, then drives forward until the
// remaining distance is within Threshold. Both phases run inside one task:
// a divergence in either phase fails the whole invocation.
//
// Expectations:
//   - Heavy or environment collisions pre-empt all progress checks
//   - Spin-out applies to the turn phase, overshoot to the drive phase
//   - The brake rides the next batch after the terminal transition
func (c *Controller) GoTo(ctx context.Context, target Target, opts GoToOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{
		name:            "go_to",
		target:          target.String(),
		maxSteps:        opts.MaxSteps,
		rotation:        true,
		stopOnCollision: !opts.IgnoreCollisions,
	}

	driving := false
	var approach geom.Vec3
	var tracker *progressTracker

	headingRemaining := func() (float64, error) {
		tpos, err := target.resolve(c.frame)
		if err != nil {
			return 0, err
		}
		dir := tpos.Sub(c.avatar.Position)
		if dir.NormXZ() == 0 {
			return 0, nil
		}
		return geom.NormalizeAngle(geom.AngleBetween(geom.Forward, dir) - c.Heading()), nil
	}
	beginDrive := func() error {
		tpos, err := target.resolve(c.frame)
		if err != nil {
			return err
		}
		to := tpos.Sub(c.avatar.Position)
		approach = approachXZ(to)
		tracker = newProgressTracker(geom.DotXZ(to, approach), opts.OvershootBound)
		driving = true
		return nil
	}

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		var cmds []build.Command
		if t.steps == 0 {
			cmds = append(cmds, c.releaseDragCommand())
		}
		if !driving {
			rem, err := headingRemaining()
			if err != nil {
				t.err = err
				return nil
			}
			if math.Abs(rem) > opts.TurnThreshold {
				return append(cmds, c.torqueCommand(rem, opts.TurnForce))
			}
			if err := beginDrive(); err != nil {
				t.err = err
				return nil
			}
		}
		tpos, err := target.resolve(c.frame)
		if err != nil {
			t.err = err
			return nil
		}
		to := tpos.Sub(c.avatar.Position)
		if to.NormXZ() > opts.Threshold {
			cmds = append(cmds, c.driveCommand(to, opts.Force))
		}
		return cmds
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		if !driving {
			return StatusOngoing
		}
		tpos, err := target.resolve(c.frame)
		if err != nil {
			t.err = err
			return StatusOngoing
		}
		to := tpos.Sub(c.avatar.Position)
		if tracker.overshot(geom.DotXZ(to, approach)) {
			return StatusOvershot
		}
		if to.NormXZ() <= opts.Threshold {
			return StatusSuccess
		}
		return StatusOngoing
	}
	spec.onTerminal = func(c *Controller, t *taskRun, s TaskStatus) []build.Command {
		return []build.Command{c.brakeCommand()}
	}
	return c.runTask(ctx, spec)
}

// approachXZ returns v normalized in the XZ plane, Y dropped.
func approachXZ(v geom.Vec3) geom.Vec3 {
	n := v.NormXZ()
	if n == 0 {
		return geom.Vec3{}
	}
	return geom.Vec3{X: v.X / n, Z: v.Z / n}
}
