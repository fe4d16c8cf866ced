package sma

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
	"github.com/rainbow979/sticky-mitten-avatar/internal/store"
)

// taskSpec configures one run of the shared task loop. Each primitive is a
// configuration value over the same skeleton.
type taskSpec struct {
	name            string
	arm             Arm    // arm tasks only
	target          string // human-readable target label for events
	maxSteps        int
	stopOnCollision bool
	rotation        bool // enables the spin-out rule

	// emit builds the commands for the next step. Standing-goal upkeep is
	// merged in by the step itself.
	emit func(c *Controller, t *taskRun) []build.Command
	// evaluate applies the task's overshoot, convergence, and
	// terminal-action rules, after the shared collision/duration/spin rules.
	evaluate func(c *Controller, t *taskRun) TaskStatus
	// onTerminal builds cleanup commands; they ride the next step's batch
	// instead of consuming a step here.
	onTerminal func(c *Controller, t *taskRun, s TaskStatus) []build.Command
}

// taskRun is the mutable loop state of one task invocation.
type taskRun struct {
	spec        taskSpec
	steps       int     // simulation steps consumed
	spun        float64 // accumulated signed rotation since task start
	prevHeading float64
	err         error // fatal error raised inside emit/evaluate
}

// runTask drives one task through the shared Stepping loop: emit the batch,
// advance one step, evaluate, repeat until a terminal status.
func (c *Controller) runTask(ctx context.Context, spec taskSpec) (status TaskStatus, err error) {
	t := &taskRun{spec: spec, prevHeading: c.Heading()}
	c.beginTask(spec)
	defer func() { c.endTask(spec, t, status, err) }()

	for {
		cmds := spec.emit(c, t)
		if t.err != nil {
			return StatusOngoing, t.err
		}
		if stepErr := c.step(ctx, cmds); stepErr != nil {
			return StatusOngoing, stepErr
		}
		t.steps++
		h := c.Heading()
		t.spun += geom.NormalizeAngle(h - t.prevHeading)
		t.prevHeading = h

		status = t.evaluate(c)
		if t.err != nil {
			return StatusOngoing, t.err
		}
		if status.Terminal() {
			if spec.onTerminal != nil {
				if extra := spec.onTerminal(c, t, status); len(extra) > 0 {
					c.pending = append(c.pending, extra...)
				}
			}
			return status, nil
		}
	}
}

// runDetached begins the task, installs its standing goals, sends the first
// batch in a single step, and returns detached. The goals resolve in the
// background as later steps service them.
func (c *Controller) runDetached(ctx context.Context, spec taskSpec, install func(), cmds []build.Command) (status TaskStatus, err error) {
	t := &taskRun{spec: spec}
	c.beginTask(spec)
	defer func() { c.endTask(spec, t, status, err) }()
	if install != nil {
		install()
	}
	if stepErr := c.step(ctx, cmds); stepErr != nil {
		return StatusOngoing, stepErr
	}
	t.steps++
	return StatusDetached, nil
}

// finishWithoutStepping records a task that terminated before consuming any
// simulation step: feasibility rejections and no-op drops.
func (c *Controller) finishWithoutStepping(spec taskSpec, status TaskStatus) TaskStatus {
	t := &taskRun{spec: spec}
	c.beginTask(spec)
	c.endTask(spec, t, status, nil)
	return status
}

func (c *Controller) beginTask(spec taskSpec) {
	c.task = spec.name
	c.taskStep = 0
	slog.Debug("[SMA] task begin", "task", spec.name, "arm", spec.arm, "target", spec.target)
	c.obs.publish(bus.EventTaskBegin, bus.TaskPayload{
		Task: spec.name, Arm: string(spec.arm), Target: spec.target,
	})
	c.obs.Log.TaskBegin(spec.name, string(spec.arm), spec.target)
	c.obs.Metrics.IncActiveTasks()
}

// endTask fans the terminal transition out to the observer sinks. A task cut
// short by a transport error is recorded as "aborted" rather than with a
// TaskStatus it never produced.
func (c *Controller) endTask(spec taskSpec, t *taskRun, status TaskStatus, err error) {
	outcome := string(status)
	if err != nil {
		outcome = "aborted"
	}
	slog.Info("[SMA] task end", "task", spec.name, "status", outcome, "steps", t.steps)
	c.obs.publish(bus.EventTaskEnd, bus.TaskPayload{
		Task: spec.name, Arm: string(spec.arm), Target: spec.target,
		Status: outcome, Steps: t.steps,
	})
	c.obs.Log.TaskEnd(spec.name, outcome, t.steps)
	c.obs.Metrics.ObserveTaskSteps(spec.name, t.steps)
	c.obs.Metrics.IncTaskOutcome(spec.name, outcome)
	c.obs.Metrics.DecActiveTasks()
	c.obs.putTask(store.TaskRecord{
		Seq:      c.taskSeq,
		Task:     spec.name,
		Arm:      string(spec.arm),
		Target:   spec.target,
		Status:   outcome,
		Steps:    t.steps,
		StartSeq: c.seq - t.steps + 1,
	})
	c.taskSeq++
	c.task = ""
	c.taskStep = 0
}

// step advances the simulation one step. Queued upkeep and cleanup commands
// ride in front of the task batch; the returned frame updates the controller
// state and fans out to the observer sinks.
func (c *Controller) step(ctx context.Context, cmds []build.Command) error {
	batch := append(c.pending, cmds...)
	c.pending = nil
	start := time.Now()
	f, err := c.driver.Step(ctx, batch)
	if err != nil {
		return fmt.Errorf("sma: step %d: %w", c.seq+1, err)
	}
	c.obs.Metrics.ObserveStepDuration(time.Since(start))
	c.applyFrame(f, batch)
	return nil
}

// applyFrame folds one frame into the controller: collision facts, standing
// goal upkeep, the latest pose, and the per-step observer records.
func (c *Controller) applyFrame(f *build.Frame, batch []build.Command) {
	c.collisions = c.classifyCollisions(f)
	if upkeep := c.serviceGoals(f); len(upkeep) > 0 {
		c.pending = append(c.pending, upkeep...)
	}
	c.frame = f
	if f.Avatar != nil {
		c.avatar = f.Avatar
	}
	c.seq++
	c.taskStep++

	pos, heading := c.avatar.Position, c.Heading()
	c.obs.publish(bus.EventStep, bus.StepPayload{
		Frame: f.FrameCount, Task: c.task, Step: c.taskStep,
		Commands: len(batch), Position: pos, Heading: heading,
	})
	names := make([]string, len(batch))
	for i, cmd := range batch {
		names[i] = build.CommandName(cmd)
	}
	c.obs.Log.Step(c.task, f.FrameCount, c.taskStep, pos, heading, names)
	collision := ""
	if len(c.collisions) > 0 {
		collision = c.collisions[0].kind
	}
	c.obs.recordStep(store.StepRecord{
		Seq: c.seq, Frame: f.FrameCount, Task: c.task,
		Position: pos, Heading: heading, Collision: collision,
	})
	for _, fact := range c.collisions {
		slog.Debug("[SMA] collision",
			"kind", fact.kind, "body_part", fact.bodyPart, "object", fact.objectID, "task", c.task)
		c.obs.publish(bus.EventCollision, bus.CollisionPayload{
			Kind: fact.kind, BodyPart: fact.bodyPart, ObjectID: fact.objectID, Task: c.task,
		})
		c.obs.Log.Collision(c.task, fact.kind, fact.bodyPart, fact.objectID)
		c.obs.Metrics.IncCollision(fact.kind)
	}
}
