package sma

import "math"

// evaluate applies the terminal rules for one completed step, first match
// wins: collision, duration, spin-out, then the task's own overshoot,
// convergence, and terminal-action rules. Safety pre-empts progress;
// bounded duration pre-empts convergence.
func (t *taskRun) evaluate(c *Controller) TaskStatus {
	if t.spec.stopOnCollision {
		for _, f := range c.collisions {
			if f.kind == collisionHeavy {
				return StatusCollidedWithHeavy
			}
		}
		for _, f := range c.collisions {
			if f.kind == collisionEnvironment {
				return StatusCollidedWithEnvironment
			}
		}
	}
	if t.steps > t.spec.maxSteps {
		return StatusTooLong
	}
	if t.spec.rotation && math.Abs(t.spun) > 360 {
		return StatusTurned360
	}
	if t.spec.evaluate == nil {
		return StatusOngoing
	}
	return t.spec.evaluate(c, t)
}

// progressTracker watches a signed remaining metric along a task's initial
// approach direction. The metric starts positive; crossing below the
// negative overshoot bound while still falling means the avatar flew past
// the target and is moving away.
type progressTracker struct {
	prev  float64
	bound float64
}

// newProgressTracker seeds the tracker with the remaining metric at task
// start.
func newProgressTracker(initial, bound float64) *progressTracker {
	return &progressTracker{prev: initial, bound: bound}
}

// overshot records the step's remaining metric and reports the overshoot
// verdict.
func (p *progressTracker) overshot(cur float64) bool {
	over := cur < -p.bound && cur < p.prev
	p.prev = cur
	return over
}
