package sma

import (
	"context"
	"fmt"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// ReachForTarget bends arm until its mitten reaches a target given in the
// avatar's local frame.
//
// Expectations:
//   - Infeasible targets (too close, too far from the shoulder, behind the
//     avatar, checked in that order) return without consuming a step
//   - Mitten within Threshold of the goal → success, arm frozen
//   - Joints settling short of the goal → no_longer_bending
//   - Detach returns detached after the first step; the standing goal
//     resolves in the background
func (c *Controller) ReachForTarget(ctx context.Context, arm Arm, target geom.Vec3, opts ReachOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{
		name:            "reach_for_target",
		arm:             arm,
		target:          fmt.Sprintf("(%.2f, %.2f, %.2f)", target.X, target.Y, target.Z),
		maxSteps:        opts.MaxSteps,
		stopOnCollision: !opts.IgnoreCollisions,
	}
	if !opts.SkipCheck {
		if s := checkBend(target, arm, opts.NearBound, opts.ReachBound); s != StatusOngoing {
			return c.finishWithoutStepping(spec, s), nil
		}
	}
	world := c.worldFromLocal(target)
	goal := &armGoal{task: spec.name, target: &world, threshold: opts.Threshold, detached: opts.Detach}
	bend := c.bendArmCommands(arm, target, opts.TargetOrientation)

	if opts.Detach {
		return c.runDetached(ctx, spec, func() { c.setGoal(arm, goal) }, bend)
	}

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		if t.steps == 0 {
			c.setGoal(arm, goal)
			return bend
		}
		return nil
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		if c.goals[arm] != nil {
			return StatusOngoing
		}
		if c.lastOutcome[arm] == outcomeAtTarget {
			return StatusSuccess
		}
		return StatusNoLongerBending
	}
	return c.runTask(ctx, spec)
}

// GraspObject tries to pick up a scene object. A raycast probe aims from the
// nearest mitten at the closest point on the object's bounds; if it confirms
// the object, the arm bends toward the bounds center with the sticky mitten
// active until the object attaches or the arm gives up.
//
// Expectations:
//   - A probe miss, or a hit on a different object, → bad_raycast after the
//     single probe step
//   - The feasibility gate applies to the bounds center in the avatar's
//     local frame unless SkipCheck
//   - The mitten nearest the bounds center does the work
//   - Goal resolved without attachment → failed_to_pick_up
func (c *Controller) GraspObject(ctx context.Context, objectID int64, opts GraspOptions) (Arm, TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	bounds, ok := c.frame.Bounds[objectID]
	if !ok {
		return ArmLeft, StatusOngoing, fmt.Errorf("sma: object %d has no bounds in frame %d", objectID, c.frame.FrameCount)
	}
	center := bounds.Center

	arm := ArmLeft
	mitten := c.avatar.MittenLeft
	if c.avatar.MittenRight.Dist(center) < mitten.Dist(center) {
		arm = ArmRight
		mitten = c.avatar.MittenRight
	}
	spec := taskSpec{
		name:            "grasp_object",
		arm:             arm,
		target:          fmt.Sprintf("object %d", objectID),
		maxSteps:        opts.MaxSteps,
		stopOnCollision: !opts.IgnoreCollisions,
	}
	local := c.localFromWorld(center)
	if !opts.SkipCheck {
		if s := checkBend(local, arm, opts.NearBound, opts.ReachBound); s != StatusOngoing {
			return arm, c.finishWithoutStepping(spec, s), nil
		}
	}

	probeID := c.nextRaycastID()
	probeDest := bounds.ClosestPoint(mitten)
	orientation := mitten.Sub(center).Normalized()
	goalTarget := center

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		switch t.steps {
		case 0:
			return []build.Command{build.SendRaycast{RaycastID: probeID, Origin: mitten, Destination: probeDest}}
		case 1:
			c.setGoal(arm, &armGoal{
				task:      spec.name,
				target:    &goalTarget,
				pickUpID:  objectID,
				threshold: opts.Threshold,
				detached:  opts.Detach,
			})
			return c.bendArmCommands(arm, local, &orientation)
		default:
			return nil
		}
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		if t.steps == 1 {
			ray, ok := c.frame.Raycast(probeID)
			if !ok || !ray.Hit || ray.ObjectID != objectID {
				return StatusBadRaycast
			}
			return StatusOngoing
		}
		if opts.Detach && t.steps == 2 {
			return StatusDetached
		}
		if c.goals[arm] != nil {
			return StatusOngoing
		}
		if _, held := c.IsHolding(objectID); held {
			return StatusSuccess
		}
		return StatusFailedToPickUp
	}
	status, err := c.runTask(ctx, spec)
	return arm, status, err
}

// Drop releases everything held by both mittens and, unless SkipReset, bends
// the arms back to neutral until the joints settle.
//
// Expectations:
//   - Nothing held → success without consuming a step, held set unchanged
//   - The reset runs through dummy goals: success once both arms settle
func (c *Controller) Drop(ctx context.Context, opts DropOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{
		name:            "drop",
		maxSteps:        opts.MaxSteps,
		stopOnCollision: !opts.IgnoreCollisions,
	}
	if len(c.HeldObjects()) == 0 {
		return c.finishWithoutStepping(spec, StatusSuccess), nil
	}
	id := c.driver.AvatarID()
	first := []build.Command{
		build.PutDown{AvatarID: id, IsLeft: true},
		build.PutDown{AvatarID: id, IsLeft: false},
	}
	if !opts.SkipReset {
		first = append(first, c.resetArmCommands()...)
	}

	if opts.Detach {
		install := func() {
			if !opts.SkipReset {
				c.setDummyGoals(spec.name, true)
			}
		}
		return c.runDetached(ctx, spec, install, first)
	}

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		if t.steps == 0 {
			if !opts.SkipReset {
				c.setDummyGoals(spec.name, false)
			}
			return first
		}
		return nil
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		if !c.ArmsIdle() {
			return StatusOngoing
		}
		return StatusSuccess
	}
	return c.runTask(ctx, spec)
}

// ResetArms bends both arms back to their neutral pose and waits for the
// joints to settle.
//
// Expectations:
//   - No force or damper adjustment: the reset rides the default motors
//   - Detach leaves dummy goals standing and returns after one step
func (c *Controller) ResetArms(ctx context.Context, opts ResetOptions) (TaskStatus, error) {
	opts = opts.withDefaults(c.cfg)
	spec := taskSpec{
		name:            "reset_arms",
		maxSteps:        opts.MaxSteps,
		stopOnCollision: !opts.IgnoreCollisions,
	}
	first := c.resetArmCommands()

	if opts.Detach {
		return c.runDetached(ctx, spec, func() { c.setDummyGoals(spec.name, true) }, first)
	}

	spec.emit = func(c *Controller, t *taskRun) []build.Command {
		if t.steps == 0 {
			c.setDummyGoals(spec.name, false)
			return first
		}
		return nil
	}
	spec.evaluate = func(c *Controller, t *taskRun) TaskStatus {
		if !c.ArmsIdle() {
			return StatusOngoing
		}
		return StatusSuccess
	}
	return c.runTask(ctx, spec)
}

// setDummyGoals installs target-less goals on both arms: the arms keep
// bending until their joints settle.
func (c *Controller) setDummyGoals(task string, detached bool) {
	for _, arm := range arms {
		c.setGoal(arm, &armGoal{task: task, detached: detached})
	}
}
