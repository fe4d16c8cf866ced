package sma

import (
	"context"
	"testing"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// TestReachForTargetConverges bends the right arm to a reachable point and
// expects the mitten to stop within the threshold.
func TestReachForTargetConverges(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	target := geom.Vec3{Z: 1}
	status, err := c.ReachForTarget(context.Background(), ArmRight, target, ReachOptions{ReachBound: 3})
	if err != nil {
		t.Fatalf("ReachForTarget: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
	if f.steps > 10 {
		t.Errorf("took %d steps, want at most 10", f.steps)
	}
	if d := c.avatar.MittenRight.Dist(target); d > defaultReachThreshold {
		t.Errorf("mitten ended %.3f from target, want within %.2f", d, defaultReachThreshold)
	}
	if !c.ArmsIdle() {
		t.Error("goal still standing after success")
	}
}

// TestReachInfeasibleConsumesNoStep expects the feasibility gate to reject a
// behind-the-back target without talking to the build.
func TestReachInfeasibleConsumesNoStep(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	status, err := c.ReachForTarget(context.Background(), ArmLeft,
		geom.Vec3{X: -0.25, Y: 0.5, Z: -0.05}, ReachOptions{})
	if err != nil {
		t.Fatalf("ReachForTarget: %v", err)
	}
	if status != StatusBehindAvatar {
		t.Fatalf("status = %q, want %q", status, StatusBehindAvatar)
	}
	if f.steps != 0 {
		t.Errorf("consumed %d steps, want 0", f.steps)
	}
}

// TestReachSkipCheckBypassesGate expects SkipCheck to run a bend the gate
// would reject as too close.
func TestReachSkipCheckBypassesGate(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	status, err := c.ReachForTarget(context.Background(), ArmRight,
		geom.Vec3{Z: 0.1}, ReachOptions{SkipCheck: true})
	if err != nil {
		t.Fatalf("ReachForTarget: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
}

// TestReachStuckArm expects a settling arm short of the target to report
// no_longer_bending.
func TestReachStuckArm(t *testing.T) {
	f := newFakeDriver()
	f.stuckArm = 0.3
	c := newTestController(t, f, Config{})

	status, err := c.ReachForTarget(context.Background(), ArmRight,
		geom.Vec3{Z: 1}, ReachOptions{ReachBound: 3})
	if err != nil {
		t.Fatalf("ReachForTarget: %v", err)
	}
	if status != StatusNoLongerBending {
		t.Fatalf("status = %q, want %q", status, StatusNoLongerBending)
	}
	if !c.ArmsIdle() {
		t.Error("goal still standing after settle")
	}
}

// TestReachDetach expects a detached reach to return after one step and the
// standing goal to resolve during later frames.
func TestReachDetach(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	target := geom.Vec3{Z: 1}
	status, err := c.ReachForTarget(context.Background(), ArmRight, target,
		ReachOptions{ReachBound: 3, Detach: true})
	if err != nil {
		t.Fatalf("ReachForTarget: %v", err)
	}
	if status != StatusDetached {
		t.Fatalf("status = %q, want %q", status, StatusDetached)
	}
	if f.steps != 1 {
		t.Fatalf("detach consumed %d steps, want 1", f.steps)
	}
	if c.ArmsIdle() {
		t.Fatal("detach left no standing goal")
	}

	if err := c.StepFrames(context.Background(), 10); err != nil {
		t.Fatalf("StepFrames: %v", err)
	}
	if !c.ArmsIdle() {
		t.Error("standing goal never resolved")
	}
	if d := c.avatar.MittenRight.Dist(target); d > defaultReachThreshold {
		t.Errorf("mitten ended %.3f from target, want within %.2f", d, defaultReachThreshold)
	}
}

// TestReachRestoresJointTuning expects the force and damper deltas of a
// finished reach to cancel once the queued freeze commands go out.
func TestReachRestoresJointTuning(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	if status, err := c.ReachForTarget(context.Background(), ArmRight,
		geom.Vec3{Z: 1}, ReachOptions{ReachBound: 3}); err != nil || status != StatusSuccess {
		t.Fatalf("ReachForTarget = %q, %v", status, err)
	}
	if err := c.StepFrames(context.Background(), 1); err != nil {
		t.Fatalf("StepFrames: %v", err)
	}
	for key, delta := range f.forceDelta {
		if delta != 0 {
			t.Errorf("joint %s force delta = %v, want 0", key, delta)
		}
	}
	for key, delta := range f.damperDelta {
		if delta != 0 {
			t.Errorf("joint %s damper delta = %v, want 0", key, delta)
		}
	}
}

// TestGraspObjectNearestMitten expects the grasp to probe, bend the nearer
// arm, and attach the object.
func TestGraspObjectNearestMitten(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	arm, status, err := c.GraspObject(context.Background(), 101, GraspOptions{})
	if err != nil {
		t.Fatalf("GraspObject: %v", err)
	}
	if arm != ArmRight {
		t.Errorf("arm = %q, want %q", arm, ArmRight)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
	if got, ok := c.IsHolding(101); !ok || got != ArmRight {
		t.Errorf("IsHolding(101) = %q, %v; want %q, true", got, ok, ArmRight)
	}
	if held := c.HeldObjects(); len(held) != 1 || held[0] != 101 {
		t.Errorf("HeldObjects = %v, want [101]", held)
	}
	if f.steps > 6 {
		t.Errorf("took %d steps, want at most 6", f.steps)
	}
}

// TestGraspObjectBadRaycast expects a probe miss to fail after the single
// probe step.
func TestGraspObjectBadRaycast(t *testing.T) {
	f := newFakeDriver()
	f.raycastMiss = true
	c := newTestController(t, f, Config{})

	_, status, err := c.GraspObject(context.Background(), 101, GraspOptions{})
	if err != nil {
		t.Fatalf("GraspObject: %v", err)
	}
	if status != StatusBadRaycast {
		t.Fatalf("status = %q, want %q", status, StatusBadRaycast)
	}
	if f.steps != 1 {
		t.Errorf("consumed %d steps, want 1", f.steps)
	}
}

// TestGraspObjectAttachFailure expects a bend that never attaches to report
// failed_to_pick_up once the arm reaches the target.
func TestGraspObjectAttachFailure(t *testing.T) {
	f := newFakeDriver()
	f.attachDisabled = true
	c := newTestController(t, f, Config{})

	_, status, err := c.GraspObject(context.Background(), 101, GraspOptions{})
	if err != nil {
		t.Fatalf("GraspObject: %v", err)
	}
	if status != StatusFailedToPickUp {
		t.Fatalf("status = %q, want %q", status, StatusFailedToPickUp)
	}
	if _, ok := c.IsHolding(101); ok {
		t.Error("holding the object despite failed_to_pick_up")
	}
}

// TestGraspObjectUnknownObject expects a missing bounds record to surface as
// an error before any step.
func TestGraspObjectUnknownObject(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	if _, _, err := c.GraspObject(context.Background(), 999, GraspOptions{}); err == nil {
		t.Fatal("expected an error for an object with no bounds")
	}
	if f.steps != 0 {
		t.Errorf("consumed %d steps, want 0", f.steps)
	}
}

// TestGraspDetach expects a detached grasp to return after the probe and bend
// steps and to attach in the background.
func TestGraspDetach(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	_, status, err := c.GraspObject(context.Background(), 101, GraspOptions{Detach: true})
	if err != nil {
		t.Fatalf("GraspObject: %v", err)
	}
	if status != StatusDetached {
		t.Fatalf("status = %q, want %q", status, StatusDetached)
	}
	if f.steps != 2 {
		t.Fatalf("detach consumed %d steps, want 2", f.steps)
	}

	if err := c.StepFrames(context.Background(), 5); err != nil {
		t.Fatalf("StepFrames: %v", err)
	}
	if _, ok := c.IsHolding(101); !ok {
		t.Error("object never attached in the background")
	}
	if !c.ArmsIdle() {
		t.Error("standing goal never resolved")
	}
}

// TestDropNothingHeld expects drop with empty mittens to succeed without
// consuming a step.
func TestDropNothingHeld(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	status, err := c.Drop(context.Background(), DropOptions{})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
	if f.steps != 0 {
		t.Errorf("consumed %d steps, want 0", f.steps)
	}
}

// TestDropReleasesHeldObject expects drop to put everything down and reset
// the arms.
func TestDropReleasesHeldObject(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	if _, status, err := c.GraspObject(context.Background(), 101, GraspOptions{}); err != nil || status != StatusSuccess {
		t.Fatalf("GraspObject = %q, %v", status, err)
	}
	status, err := c.Drop(context.Background(), DropOptions{})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
	if held := c.HeldObjects(); len(held) != 0 {
		t.Errorf("HeldObjects = %v, want empty", held)
	}
	if n := countCommands(f, "put_down"); n != 2 {
		t.Errorf("put_down sent %d times, want 2", n)
	}
	if !c.ArmsIdle() {
		t.Error("goal still standing after drop")
	}
}

// TestResetArmsSettles expects reset to bend a used arm back and succeed once
// the joints stop moving.
func TestResetArmsSettles(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	if status, err := c.ReachForTarget(context.Background(), ArmRight,
		geom.Vec3{Z: 1}, ReachOptions{ReachBound: 3}); err != nil || status != StatusSuccess {
		t.Fatalf("ReachForTarget = %q, %v", status, err)
	}
	status, err := c.ResetArms(context.Background(), ResetOptions{})
	if err != nil {
		t.Fatalf("ResetArms: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %q, want %q", status, StatusSuccess)
	}
	if n := countCommands(f, "bend_arm_joint_to"); n < len(joints) {
		t.Errorf("bend_arm_joint_to sent %d times, want at least %d", n, len(joints))
	}
}

// TestResetArmsDetach expects a detached reset to return after one step and
// settle in the background.
func TestResetArmsDetach(t *testing.T) {
	f := newFakeDriver()
	c := newTestController(t, f, Config{})

	status, err := c.ResetArms(context.Background(), ResetOptions{Detach: true})
	if err != nil {
		t.Fatalf("ResetArms: %v", err)
	}
	if status != StatusDetached {
		t.Fatalf("status = %q, want %q", status, StatusDetached)
	}
	if f.steps != 1 {
		t.Fatalf("detach consumed %d steps, want 1", f.steps)
	}
	if err := c.StepFrames(context.Background(), 5); err != nil {
		t.Fatalf("StepFrames: %v", err)
	}
	if !c.ArmsIdle() {
		t.Error("standing goals never resolved")
	}
}
