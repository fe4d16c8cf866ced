// Package sma drives a sticky mitten avatar inside the build, one simulation
// step at a time. Task primitives (reach, grasp, turn, move, shake) share a
// single control loop: emit commands, advance a step, fold the returned
// frame into the controller, and classify the outcome into a closed
// TaskStatus vocabulary.
package sma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
	"github.com/rainbow979/sticky-mitten-avatar/internal/metrics"
	"github.com/rainbow979/sticky-mitten-avatar/internal/store"
	"github.com/rainbow979/sticky-mitten-avatar/internal/tasklog"
)

// StepDriver advances the simulation one step and returns the resulting
// frame. build.Client implements it over a persistent websocket; tests use a
// scripted fake. At most one Step call is in flight at a time.
type StepDriver interface {
	Step(ctx context.Context, cmds []build.Command) (*build.Frame, error)
	AvatarID() string
}

// Config tunes a Controller.
type Config struct {
	// MassCutoff is the object mass at and above which a collision counts as
	// heavy. 0 means the default of 90.
	MassCutoff float64
	// MaxSteps is the default per-task duration bound in simulation steps.
	// 0 means 200.
	MaxSteps int
	// Observer wires the optional observability sinks.
	Observer Observer
}

func (cfg Config) withDefaults() Config {
	if cfg.MassCutoff == 0 {
		cfg.MassCutoff = defaultMassCutoff
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return cfg
}

// Observer fans controller activity out to the run's observability sinks.
// The zero value observes nothing; every field is independent and optional.
type Observer struct {
	Bus     *bus.Bus
	Log     *tasklog.RunLog
	Store   *store.Store
	RunID   string
	Metrics *metrics.Metrics
}

func (o Observer) publish(t bus.EventType, payload any) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(bus.Event{RunID: o.RunID, Type: t, Payload: payload})
}

func (o Observer) recordStep(rec store.StepRecord) {
	if o.Store == nil || o.RunID == "" {
		return
	}
	o.Store.RecordStep(o.RunID, rec)
}

func (o Observer) putTask(rec store.TaskRecord) {
	if o.Store == nil || o.RunID == "" {
		return
	}
	if err := o.Store.PutTask(o.RunID, rec); err != nil {
		slog.Warn("[SMA] task record write failed", "task", rec.Task, "error", err)
	}
}

// Controller owns the avatar: the step loop, the standing per-arm goals, and
// the held-object bookkeeping.
//
// Expectations:
//   - Single-goroutine use; one task primitive runs at a time
//   - Exactly one terminal TaskStatus per task invocation
//   - Go errors occur only for transport loss; task failures are statuses
//   - Commands produced at a terminal transition (arm freeze, brake) ride
//     the next step's batch rather than consuming an extra step
type Controller struct {
	driver StepDriver
	cfg    Config
	obs    Observer
	rng    *rand.Rand

	objects   map[int64]build.ObjectStatic
	bodyParts map[int64]build.BodyPartStatic

	frame      *build.Frame
	avatar     *build.AvatarFrame
	collisions []collisionFact

	goals       map[Arm]*armGoal
	lastOutcome map[Arm]string
	pending     []build.Command

	seq        int    // simulation steps taken (handshake excluded)
	task       string // name of the running task, "" between tasks
	taskStep   int
	taskSeq    int
	raycastSeq int64
}

// New connects a controller to the build through driver: it performs the
// scene handshake (create the avatar, receive the static records) and
// returns a controller ready to run tasks.
func New(ctx context.Context, driver StepDriver, cfg Config) (*Controller, error) {
	c := &Controller{
		driver:      driver,
		cfg:         cfg.withDefaults(),
		obs:         cfg.Observer,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		objects:     make(map[int64]build.ObjectStatic),
		bodyParts:   make(map[int64]build.BodyPartStatic),
		goals:       map[Arm]*armGoal{ArmLeft: nil, ArmRight: nil},
		lastOutcome: make(map[Arm]string),
	}
	f, err := driver.Step(ctx, []build.Command{build.InitScene{AvatarID: driver.AvatarID()}})
	if err != nil {
		return nil, fmt.Errorf("sma: init scene: %w", err)
	}
	if f.Static == nil {
		return nil, errors.New("sma: init reply carried no static data")
	}
	if f.Avatar == nil {
		return nil, errors.New("sma: init reply carried no avatar state")
	}
	for _, o := range f.Static.Objects {
		c.objects[o.ID] = o
	}
	for _, b := range f.Static.BodyParts {
		c.bodyParts[b.ID] = b
	}
	c.frame = f
	c.avatar = f.Avatar
	slog.Info("[SMA] scene ready",
		"avatar", driver.AvatarID(), "objects", len(c.objects), "body_parts", len(c.bodyParts))
	return c, nil
}

// SetRand replaces the controller's random source. Tests seed it for
// deterministic shakes.
func (c *Controller) SetRand(r *rand.Rand) {
	if r != nil {
		c.rng = r
	}
}

// Pose is the avatar's position and orientation on the latest frame.
type Pose struct {
	Position geom.Vec3
	Forward  geom.Vec3
	Rotation [4]float64
}

// Pose returns the avatar's pose from the latest frame.
func (c *Controller) Pose() Pose {
	return Pose{Position: c.avatar.Position, Forward: c.avatar.Forward, Rotation: c.avatar.Rotation}
}

// Heading returns the avatar's heading in degrees: the clockwise angle from
// the global forward to the avatar's forward, in [0, 360).
func (c *Controller) Heading() float64 {
	return geom.AngleBetween(geom.Forward, c.avatar.Forward)
}

// HeldObjects returns the IDs of every object attached to either mitten.
func (c *Controller) HeldObjects() []int64 {
	held := make([]int64, 0, len(c.avatar.HeldLeft)+len(c.avatar.HeldRight))
	held = append(held, c.avatar.HeldLeft...)
	held = append(held, c.avatar.HeldRight...)
	return held
}

// IsHolding reports whether the avatar holds objectID, and with which arm.
func (c *Controller) IsHolding(objectID int64) (Arm, bool) {
	for _, id := range c.avatar.HeldLeft {
		if id == objectID {
			return ArmLeft, true
		}
	}
	for _, id := range c.avatar.HeldRight {
		if id == objectID {
			return ArmRight, true
		}
	}
	return ArmLeft, false
}

// ArmsIdle reports whether no standing arm goal remains.
func (c *Controller) ArmsIdle() bool {
	return c.goals[ArmLeft] == nil && c.goals[ArmRight] == nil
}

// Object returns the static record of one scene object.
func (c *Controller) Object(id int64) (build.ObjectStatic, bool) {
	o, ok := c.objects[id]
	return o, ok
}

// ObjectIDByName returns the ID of the scene object with the given model
// name. When several objects share the name, the lowest ID wins.
func (c *Controller) ObjectIDByName(name string) (int64, bool) {
	var best int64
	found := false
	for id, o := range c.objects {
		if o.Name != name {
			continue
		}
		if !found || id < best {
			best = id
			found = true
		}
	}
	return best, found
}

// Objects returns the static records of every scene object, ordered by ID.
func (c *Controller) Objects() []build.ObjectStatic {
	out := make([]build.ObjectStatic, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StepFrames advances the simulation n steps with no task commands. Standing
// goals keep being serviced, so a detached motion resolves here.
func (c *Controller) StepFrames(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := c.step(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

// RotateCameraBy rotates the avatar's camera by angle degrees around axis.
// Consumes one simulation step.
func (c *Controller) RotateCameraBy(ctx context.Context, axis string, angle float64) error {
	return c.step(ctx, []build.Command{
		build.RotateSensorContainerBy{AvatarID: c.driver.AvatarID(), Axis: axis, Angle: angle},
	})
}

// ResetCameraRotation restores the camera to its default rotation. Consumes
// one simulation step.
func (c *Controller) ResetCameraRotation(ctx context.Context) error {
	return c.step(ctx, []build.Command{
		build.ResetSensorContainerRotation{AvatarID: c.driver.AvatarID()},
	})
}

// worldFromLocal converts a point in the avatar's local frame to world
// space.
func (c *Controller) worldFromLocal(local geom.Vec3) geom.Vec3 {
	return geom.RotatePointAround(local, c.Heading(), geom.Vec3{}).Add(c.avatar.Position)
}

// localFromWorld converts a world point to the avatar's local frame.
func (c *Controller) localFromWorld(world geom.Vec3) geom.Vec3 {
	return geom.RotatePointAround(world.Sub(c.avatar.Position), -c.Heading(), geom.Vec3{})
}

// nextRaycastID returns a raycast ID unique within this controller.
func (c *Controller) nextRaycastID() int64 {
	c.raycastSeq++
	return c.raycastSeq
}
