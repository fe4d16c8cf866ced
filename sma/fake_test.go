package sma

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// fakeDriver is a scripted stand-in for the build implementing StepDriver.
// It models just enough motion for the task loop: mittens glide toward bend
// goals, joints slew toward per-joint targets, torque and forward force move
// the avatar at fixed rates, and sticky mittens attach objects within range.
// Mittens do not follow body motion; tests do not mix arm and body tasks.
//
// The scene: object 101 "small_jug" (mass 2) in front of the right mitten,
// object 501 "fridge" (mass 150) far away, body parts 2001/2002/2003.
type fakeDriver struct {
	avatarID string
	frame    int64
	steps    int // non-handshake Step calls

	pos     geom.Vec3
	heading float64 // degrees, clockwise from +Z

	armState map[Arm]*fakeArm
	objects  map[int64]*fakeObject

	// Failure knobs.
	stuckArm         float64 // >0: mittens stop approaching at this distance
	spinStuck        bool    // heading spins +150°/step regardless of torque
	overdrive        float64 // >0: every drive moves this far regardless of force
	raycastMiss      bool
	attachDisabled   bool
	collideAtStep    int   // 1-based step index, 0 = never
	collideObject    int64 // partner for collideAtStep
	envCollideAtStep int

	// Recorded traffic.
	batches     [][]build.Command
	forceDelta  map[string]float64 // "joint/axis" → net motor force delta
	damperDelta map[string]float64
	dragSets    []build.SetAvatarDrag
}

type fakeArm struct {
	mitten   geom.Vec3  // world space
	bendGoal *geom.Vec3 // world-space glide destination, nil = joint-driven
	angles   [6]float64
	targets  [6]float64
	sticky   map[int64]bool
	held     []int64
}

type fakeObject struct {
	name   string
	mass   float64
	pos    geom.Vec3
	heldBy Arm // "" = free
}

const (
	fakeTurnRate    = 8.0 // degrees per step at torque 1000
	fakeMoveRate    = 0.4 // distance per step at magnitude 80
	fakeGlide       = 0.7 // mitten distance multiplier per step
	fakeJointRate   = 5.0 // degrees per step toward a joint target
	fakeAttachRange = 0.2
)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		avatarID: "a",
		armState: map[Arm]*fakeArm{
			ArmLeft:  {mitten: geom.Vec3{X: -0.35, Y: 0.3, Z: 0.2}, sticky: make(map[int64]bool)},
			ArmRight: {mitten: geom.Vec3{X: 0.35, Y: 0.3, Z: 0.2}, sticky: make(map[int64]bool)},
		},
		objects: map[int64]*fakeObject{
			101: {name: "small_jug", mass: 2, pos: geom.Vec3{X: 0.2, Y: 0.3, Z: 0.4}},
			501: {name: "fridge", mass: 150, pos: geom.Vec3{X: 5, Y: 0, Z: 5}},
		},
		collideObject: 501,
		forceDelta:    make(map[string]float64),
		damperDelta:   make(map[string]float64),
	}
}

func (f *fakeDriver) AvatarID() string { return f.avatarID }

func (f *fakeDriver) Step(_ context.Context, cmds []build.Command) (*build.Frame, error) {
	if len(cmds) == 1 {
		if _, ok := cmds[0].(build.InitScene); ok {
			return f.buildFrame(true, nil), nil
		}
	}
	f.steps++
	f.frame++
	f.batches = append(f.batches, cmds)

	var rays []build.Raycast
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case build.BendArmTo:
			world := geom.RotatePointAround(c.Target, f.heading, geom.Vec3{}).Add(f.pos)
			f.armState[Arm(c.Arm)].bendGoal = &world
		case build.BendArmJointTo:
			a := f.armState[armOfJoint(c.Joint)]
			a.bendGoal = nil
			if i := jointIndex(c.Joint, c.Axis); i >= 0 {
				a.targets[i] = c.Angle
			}
		case build.AdjustJointForceBy:
			f.forceDelta[c.Joint+"/"+c.Axis] += c.Delta
		case build.AdjustJointDamperBy:
			f.damperDelta[c.Joint+"/"+c.Axis] += c.Delta
		case build.PickUpProximity:
			f.addSticky(c.IsLeft, c.ObjectIDs)
		case build.PickUp:
			f.addSticky(c.IsLeft, c.ObjectIDs)
		case build.PutDown:
			f.putDown(c.IsLeft)
		case build.TurnAvatarBy:
			if !f.spinStuck {
				f.heading += fakeTurnRate * c.Torque / 1000.0
			}
		case build.MoveAvatarForwardBy:
			dist := fakeMoveRate * c.Magnitude / 80.0
			if f.overdrive > 0 {
				dist = math.Copysign(f.overdrive, c.Magnitude)
			}
			f.pos = f.pos.Add(headingForward(f.heading).Scale(dist))
		case build.SetAvatarDrag:
			f.dragSets = append(f.dragSets, c)
		case build.SendRaycast:
			rays = append(rays, f.castRay(c))
		}
	}
	if f.spinStuck {
		f.heading += 150
	}

	for _, arm := range arms {
		f.updateArm(f.armState[arm])
	}
	f.attachPass()

	return f.buildFrame(false, rays), nil
}

// updateArm advances one arm: a bend goal glides the mitten, otherwise the
// joints slew toward their targets. Joint angles tick up while the mitten is
// in flight so settle detection sees motion.
func (f *fakeDriver) updateArm(a *fakeArm) {
	if a.bendGoal != nil {
		to := a.bendGoal.Sub(a.mitten)
		d := to.Norm()
		if d == 0 {
			return
		}
		nd := d * fakeGlide
		if f.stuckArm > 0 && nd < f.stuckArm {
			nd = f.stuckArm
		}
		if nd < d && d-nd > 1e-6 {
			a.mitten = a.bendGoal.Sub(to.Scale(nd / d))
			for i := range a.angles {
				a.angles[i] += 1.0
			}
		}
		return
	}
	for i := range a.angles {
		da := a.targets[i] - a.angles[i]
		if da > fakeJointRate {
			da = fakeJointRate
		}
		if da < -fakeJointRate {
			da = -fakeJointRate
		}
		a.angles[i] += da
	}
}

func (f *fakeDriver) addSticky(isLeft bool, ids []int64) {
	a := f.armState[armFromSide(isLeft)]
	for _, id := range ids {
		a.sticky[id] = true
	}
}

func (f *fakeDriver) putDown(isLeft bool) {
	arm := armFromSide(isLeft)
	a := f.armState[arm]
	for _, id := range a.held {
		f.objects[id].heldBy = ""
	}
	a.held = nil
	a.sticky = make(map[int64]bool)
}

// attachPass glues sticky objects within range to their mitten and keeps held
// objects tracking it.
func (f *fakeDriver) attachPass() {
	for _, arm := range arms {
		a := f.armState[arm]
		if !f.attachDisabled {
			for id := range a.sticky {
				o := f.objects[id]
				if o.heldBy == "" && a.mitten.Dist(o.pos) < fakeAttachRange {
					o.heldBy = arm
					a.held = append(a.held, id)
				}
			}
		}
		for _, id := range a.held {
			f.objects[id].pos = a.mitten
		}
	}
}

func (f *fakeDriver) castRay(c build.SendRaycast) build.Raycast {
	if f.raycastMiss {
		return build.Raycast{RaycastID: c.RaycastID}
	}
	var nearest int64
	best := math.MaxFloat64
	for id, o := range f.objects {
		if d := o.pos.Dist(c.Destination); d < best {
			best, nearest = d, id
		}
	}
	return build.Raycast{RaycastID: c.RaycastID, Hit: true, ObjectID: nearest, Point: c.Destination}
}

func (f *fakeDriver) buildFrame(includeStatic bool, rays []build.Raycast) *build.Frame {
	fr := &build.Frame{
		FrameCount: f.frame,
		Transforms: make(map[int64]build.Transform),
		Bounds:     make(map[int64]geom.Bounds),
		Raycasts:   rays,
	}
	for id, o := range f.objects {
		fr.Transforms[id] = build.Transform{ID: id, Position: o.pos}
		fr.Bounds[id] = fakeBounds(o.pos)
	}
	left, right := f.armState[ArmLeft], f.armState[ArmRight]
	fr.Avatar = &build.AvatarFrame{
		ID:          f.avatarID,
		Position:    f.pos,
		Forward:     headingForward(f.heading),
		AnglesLeft:  append([]float64(nil), left.angles[:]...),
		AnglesRight: append([]float64(nil), right.angles[:]...),
		MittenLeft:  left.mitten,
		MittenRight: right.mitten,
		HeldLeft:    append([]int64(nil), left.held...),
		HeldRight:   append([]int64(nil), right.held...),
	}
	if includeStatic {
		static := &build.SceneStatic{
			BodyParts: []build.BodyPartStatic{
				{ID: 2001, Name: "mitten_left"},
				{ID: 2002, Name: "mitten_right"},
				{ID: 2003, Name: "torso"},
			},
		}
		for id, o := range f.objects {
			static.Objects = append(static.Objects, build.ObjectStatic{ID: id, Name: o.name, Mass: o.mass})
		}
		fr.Static = static
	}
	if f.collideAtStep != 0 && f.steps == f.collideAtStep {
		fr.Collisions = append(fr.Collisions, build.Collision{
			ColliderID: 2001, CollideeID: f.collideObject, State: "enter",
		})
	}
	if f.envCollideAtStep != 0 && f.steps == f.envCollideAtStep {
		fr.EnvCollisions = append(fr.EnvCollisions, build.EnvCollision{ObjectID: 2001, State: "enter"})
	}
	return fr
}

func headingForward(deg float64) geom.Vec3 {
	r := deg * math.Pi / 180
	return geom.Vec3{X: math.Sin(r), Z: math.Cos(r)}
}

func fakeBounds(p geom.Vec3) geom.Bounds {
	return geom.Bounds{
		Center: p,
		Top:    geom.Vec3{X: p.X, Y: p.Y + 0.05, Z: p.Z},
		Bottom: geom.Vec3{X: p.X, Y: p.Y - 0.05, Z: p.Z},
		Left:   geom.Vec3{X: p.X - 0.05, Y: p.Y, Z: p.Z},
		Right:  geom.Vec3{X: p.X + 0.05, Y: p.Y, Z: p.Z},
		Front:  geom.Vec3{X: p.X, Y: p.Y, Z: p.Z + 0.05},
		Back:   geom.Vec3{X: p.X, Y: p.Y, Z: p.Z - 0.05},
	}
}

func armFromSide(isLeft bool) Arm {
	if isLeft {
		return ArmLeft
	}
	return ArmRight
}

func armOfJoint(joint string) Arm {
	if strings.HasSuffix(joint, "_left") {
		return ArmLeft
	}
	return ArmRight
}

// jointIndex maps a joint name and axis to its index within the arm's six
// angle slots, or -1.
func jointIndex(joint, axis string) int {
	for i, j := range armJoints(armOfJoint(joint)) {
		if j.Name() == joint && j.Axis == axis {
			return i
		}
	}
	return -1
}

func newTestController(t *testing.T, f *fakeDriver, cfg Config) *Controller {
	t.Helper()
	c, err := New(context.Background(), f, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// countCommands counts name occurrences across every recorded batch.
func countCommands(f *fakeDriver, name string) int {
	n := 0
	for _, batch := range f.batches {
		for _, cmd := range batch {
			if build.CommandName(cmd) == name {
				n++
			}
		}
	}
	return n
}
