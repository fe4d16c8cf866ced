package sma

import (
	"math"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// Arm names one of the avatar's two arms.
type Arm string

const (
	ArmLeft  Arm = "left"
	ArmRight Arm = "right"
)

// arms in a fixed iteration order (map iteration is randomized).
var arms = []Arm{ArmLeft, ArmRight}

// Joint identifies one bendable joint axis.
type Joint struct {
	Part string // "shoulder" | "elbow" | "wrist"
	Arm  Arm
	Axis string // "pitch" | "yaw" | "roll"
}

// Name returns the joint's wire name, e.g. "shoulder_left".
func (j Joint) Name() string { return j.Part + "_" + string(j.Arm) }

// joints lists the twelve joint axes in the frame's angle order: the six
// left-arm entries first, then the six right-arm entries.
var joints = []Joint{
	{Part: "shoulder", Arm: ArmLeft, Axis: "pitch"},
	{Part: "shoulder", Arm: ArmLeft, Axis: "yaw"},
	{Part: "shoulder", Arm: ArmLeft, Axis: "roll"},
	{Part: "elbow", Arm: ArmLeft, Axis: "pitch"},
	{Part: "wrist", Arm: ArmLeft, Axis: "roll"},
	{Part: "wrist", Arm: ArmLeft, Axis: "pitch"},
	{Part: "shoulder", Arm: ArmRight, Axis: "pitch"},
	{Part: "shoulder", Arm: ArmRight, Axis: "yaw"},
	{Part: "shoulder", Arm: ArmRight, Axis: "roll"},
	{Part: "elbow", Arm: ArmRight, Axis: "pitch"},
	{Part: "wrist", Arm: ArmRight, Axis: "roll"},
	{Part: "wrist", Arm: ArmRight, Axis: "pitch"},
}

// armJoints returns the six joint entries of one arm.
func armJoints(a Arm) []Joint {
	if a == ArmLeft {
		return joints[:6]
	}
	return joints[6:]
}

// Shoulder pivots in the avatar's local frame, used by the feasibility gate.
var (
	shoulderLeft  = geom.Vec3{X: -0.225, Y: 0.565, Z: 0.075}
	shoulderRight = geom.Vec3{X: 0.225, Y: 0.565, Z: 0.075}
)

// Arm-bending tuning.
const (
	bendForce        = 80.0
	bendDamper       = -300.0
	jointSettleDelta = 0.03

	pickUpDistance = 0.15
	pickUpRadius   = 0.1
	pickUpGrip     = 1000.0
)

// Standing-goal outcomes.
const (
	outcomeAtTarget = "at_target"
	outcomeHeld     = "held"
	outcomeSettled  = "settled"
)

// armGoal is a standing per-arm bending goal, serviced on every step until
// it resolves. A nil target is a dummy goal: no position check, the goal
// clears once the joints settle.
type armGoal struct {
	task      string
	target    *geom.Vec3 // world-space mitten destination
	pickUpID  int64      // nonzero: keep trying to pick up this object
	threshold float64    // mitten-at-target stop distance
	detached  bool       // left standing by a Detach call
}

// Collision fact kinds.
const (
	collisionHeavy       = "heavy"
	collisionEnvironment = "environment"
)

// collisionFact is one classified collision from the latest frame.
type collisionFact struct {
	kind     string
	bodyPart int64
	objectID int64 // zero for environment contacts
}

// classifyCollisions extracts the collision facts the evaluator cares about:
// a body part touching a heavy scene object, or a body part touching static
// environment geometry other than the floor.
//
// Expectations:
//   - Body-part/body-part contacts are ignored (arms brush the torso)
//   - Contacts with objects the avatar holds are ignored
//   - "exit" contacts are ignored
//   - Objects lighter than the mass cutoff are ignored
//   - Floor contacts are ignored (the avatar always touches the floor)
func (c *Controller) classifyCollisions(f *build.Frame) []collisionFact {
	av := f.Avatar
	if av == nil {
		av = c.avatar
	}
	var facts []collisionFact
	for _, col := range f.Collisions {
		if col.State == "exit" {
			continue
		}
		var part, object int64
		_, colliderIsPart := c.bodyParts[col.ColliderID]
		_, collideeIsPart := c.bodyParts[col.CollideeID]
		switch {
		case colliderIsPart && collideeIsPart:
			continue
		case colliderIsPart:
			part, object = col.ColliderID, col.CollideeID
		case collideeIsPart:
			part, object = col.CollideeID, col.ColliderID
		default:
			continue
		}
		if av != nil && av.Held(object) {
			continue
		}
		obj, ok := c.objects[object]
		if !ok || obj.Mass < c.cfg.MassCutoff {
			continue
		}
		facts = append(facts, collisionFact{kind: collisionHeavy, bodyPart: part, objectID: object})
	}
	for _, col := range f.EnvCollisions {
		if col.State == "exit" || col.Floor {
			continue
		}
		if _, ok := c.bodyParts[col.ObjectID]; !ok {
			continue
		}
		facts = append(facts, collisionFact{kind: collisionEnvironment, bodyPart: col.ObjectID})
	}
	return facts
}

// serviceGoals runs the standing-goal bookkeeping against the new frame and
// returns upkeep commands to ride the next step's batch.
//
// Expectations, per arm with a goal, in order:
//   - Mitten within the goal threshold → freeze the arm, clear (at_target)
//   - Pick-up goal already holding its object → freeze the arm, clear (held)
//   - Pick-up goal still unheld → re-issue the pick-up commands, keep
//   - Every joint angle within the settle delta of the previous frame →
//     clear without freezing (settled); dummy goals only ever clear here
func (c *Controller) serviceGoals(f *build.Frame) []build.Command {
	old, cur := c.avatar, f.Avatar
	if cur == nil {
		return nil
	}
	stopFrame := old
	if stopFrame == nil {
		stopFrame = cur
	}
	var cmds []build.Command
	for _, arm := range arms {
		g := c.goals[arm]
		if g == nil {
			continue
		}
		if g.target != nil {
			mitten := cur.MittenLeft
			if arm == ArmRight {
				mitten = cur.MittenRight
			}
			if mitten.Dist(*g.target) < g.threshold {
				cmds = append(cmds, c.stopArmCommands(arm, stopFrame)...)
				c.clearGoal(arm, outcomeAtTarget)
				continue
			}
			if g.pickUpID != 0 {
				if cur.Held(g.pickUpID) {
					cmds = append(cmds, c.stopArmCommands(arm, stopFrame)...)
					c.clearGoal(arm, outcomeHeld)
					continue
				}
				cmds = append(cmds, c.pickUpCommands(arm, g.pickUpID)...)
			}
		}
		if old != nil && !armMoving(old, cur, arm) {
			c.clearGoal(arm, outcomeSettled)
		}
	}
	return cmds
}

// armMoving reports whether any joint of arm moved more than the settle
// delta between two frames.
func armMoving(old, cur *build.AvatarFrame, arm Arm) bool {
	a0, a1 := old.AnglesLeft, cur.AnglesLeft
	if arm == ArmRight {
		a0, a1 = old.AnglesRight, cur.AnglesRight
	}
	for i := range a1 {
		if i >= len(a0) {
			break
		}
		if math.Abs(a1[i]-a0[i]) > jointSettleDelta {
			return true
		}
	}
	return false
}

// setGoal installs a standing goal on arm, replacing any previous goal.
func (c *Controller) setGoal(arm Arm, g *armGoal) {
	c.goals[arm] = g
	if g != nil && g.detached {
		c.obs.publish(bus.EventGoalDetached, bus.GoalPayload{Arm: string(arm), Task: g.task})
		c.obs.Log.GoalDetached(g.task, string(arm))
	}
}

// clearGoal removes arm's goal and records the outcome. Detached goals also
// publish their background resolution.
func (c *Controller) clearGoal(arm Arm, outcome string) {
	g := c.goals[arm]
	if g == nil {
		return
	}
	c.goals[arm] = nil
	c.lastOutcome[arm] = outcome
	if g.detached {
		c.obs.publish(bus.EventGoalResolved, bus.GoalPayload{Arm: string(arm), Task: g.task, Outcome: outcome})
		c.obs.Log.GoalResolved(g.task, string(arm), outcome)
	}
}

// bendArmCommands starts bending arm toward a mitten target in the avatar's
// local frame and strengthens the arm's joints for the motion. The engine
// solves the joint angles itself.
func (c *Controller) bendArmCommands(arm Arm, local geom.Vec3, orientation *geom.Vec3) []build.Command {
	id := c.driver.AvatarID()
	cmds := []build.Command{
		build.BendArmTo{AvatarID: id, Arm: string(arm), Target: local, TargetOrientation: orientation},
	}
	for _, j := range armJoints(arm) {
		cmds = append(cmds,
			build.AdjustJointForceBy{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Delta: bendForce},
			build.AdjustJointDamperBy{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Delta: bendDamper})
	}
	return cmds
}

// stopArmCommands freezes arm: every joint is re-bent to its current angle
// and the bend force and damper deltas are restored. Angles above 90° are
// reflected, matching the engine's reported-angle convention.
func (c *Controller) stopArmCommands(arm Arm, av *build.AvatarFrame) []build.Command {
	if av == nil {
		return nil
	}
	angles := av.AnglesLeft
	if arm == ArmRight {
		angles = av.AnglesRight
	}
	id := c.driver.AvatarID()
	var cmds []build.Command
	for i, j := range armJoints(arm) {
		if i >= len(angles) {
			break
		}
		theta := angles[i]
		if theta > 90 {
			theta = 180 - theta
		}
		cmds = append(cmds,
			build.BendArmJointTo{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Angle: theta},
			build.AdjustJointForceBy{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Delta: -bendForce},
			build.AdjustJointDamperBy{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Delta: -bendDamper})
	}
	return cmds
}

// pickUpCommands makes arm's mitten sticky toward objectID.
func (c *Controller) pickUpCommands(arm Arm, objectID int64) []build.Command {
	id := c.driver.AvatarID()
	isLeft := arm == ArmLeft
	return []build.Command{
		build.PickUpProximity{
			AvatarID: id, IsLeft: isLeft,
			Distance: pickUpDistance, Radius: pickUpRadius, Grip: pickUpGrip,
			ObjectIDs: []int64{objectID},
		},
		build.PickUp{AvatarID: id, IsLeft: isLeft, Grip: pickUpGrip, ObjectIDs: []int64{objectID}},
	}
}

// resetArmCommands bends every joint back to angle zero. No force
// adjustment: the reset rides on the default motor strength.
func (c *Controller) resetArmCommands() []build.Command {
	id := c.driver.AvatarID()
	cmds := make([]build.Command, 0, len(joints))
	for _, j := range joints {
		cmds = append(cmds, build.BendArmJointTo{AvatarID: id, Joint: j.Name(), Axis: j.Axis, Angle: 0})
	}
	return cmds
}
