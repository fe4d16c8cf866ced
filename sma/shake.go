package sma

import (
	"context"
	"fmt"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
)

// Shake oscillates one arm joint back and forth. The bend angle, oscillation
// count, and extra joint force are drawn from the controller's random source,
// so a seeded source reproduces the exact motion. There is no convergence
// notion: the call runs to completion and only a transport failure is an
// error.
//
// Expectations:
//   - The joint's force is raised before the first oscillation; the restore
//     rides the next batch after the last
//   - Each oscillation bends out to the drawn angle, waits for the joints to
//     settle, bends back to zero, and waits again
//   - A settle wait ends after IdleSteps consecutive still reads; transient
//     still reads mid-swing reset the count. MaxSteps bounds each wait.
func (c *Controller) Shake(ctx context.Context, opts ShakeOptions) (err error) {
	opts = opts.withDefaults(c.cfg)
	angle := c.drawFloat(opts.AngleRange)
	count := c.drawInt(opts.ShakeRange)
	force := c.drawFloat(opts.ForceRange)

	spec := taskSpec{name: "shake", target: fmt.Sprintf("%s %s x%d", opts.Joint, opts.Axis, count)}
	t := &taskRun{spec: spec}
	c.beginTask(spec)
	defer func() { c.endTask(spec, t, StatusSuccess, err) }()

	id := c.driver.AvatarID()
	first := []build.Command{
		build.AdjustJointForceBy{AvatarID: id, Joint: opts.Joint, Axis: opts.Axis, Delta: force},
	}
	for i := 0; i < count; i++ {
		out := append(first, build.BendArmJointTo{AvatarID: id, Joint: opts.Joint, Axis: opts.Axis, Angle: angle})
		first = nil
		if err = c.shakePhase(ctx, t, opts, out); err != nil {
			return err
		}
		back := []build.Command{build.BendArmJointTo{AvatarID: id, Joint: opts.Joint, Axis: opts.Axis, Angle: 0}}
		if err = c.shakePhase(ctx, t, opts, back); err != nil {
			return err
		}
	}
	c.pending = append(c.pending,
		build.AdjustJointForceBy{AvatarID: id, Joint: opts.Joint, Axis: opts.Axis, Delta: -force})
	return nil
}

// shakePhase issues the phase's commands on its first step, then steps with
// empty batches until the arms have been still for IdleSteps consecutive
// reads or the phase cap is hit.
func (c *Controller) shakePhase(ctx context.Context, t *taskRun, opts ShakeOptions, cmds []build.Command) error {
	idle := 0
	for steps := 0; steps < opts.MaxSteps; steps++ {
		old := c.avatar
		if err := c.step(ctx, cmds); err != nil {
			return err
		}
		cmds = nil
		t.steps++
		if old == nil || c.avatar == nil {
			continue
		}
		if armMoving(old, c.avatar, ArmLeft) || armMoving(old, c.avatar, ArmRight) {
			idle = 0
			continue
		}
		idle++
		if idle >= opts.IdleSteps {
			return nil
		}
	}
	return nil
}

// drawFloat draws uniformly from the closed range r.
func (c *Controller) drawFloat(r [2]float64) float64 {
	return r[0] + (r[1]-r[0])*c.rng.Float64()
}

// drawInt draws uniformly from the closed range r.
func (c *Controller) drawInt(r [2]int) int {
	return r[0] + c.rng.Intn(r[1]-r[0]+1)
}
