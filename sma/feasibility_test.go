package sma

import (
	"testing"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// TestCheckBendVerdicts walks the feasibility rules in their check order.
func TestCheckBendVerdicts(t *testing.T) {
	tests := []struct {
		name  string
		local geom.Vec3
		arm   Arm
		want  TaskStatus
	}{
		{"feasible", geom.Vec3{X: -0.2, Y: 0.4, Z: 0.2}, ArmLeft, StatusOngoing},
		{"too close", geom.Vec3{Z: 0.1}, ArmRight, StatusTooCloseToReach},
		{"too far", geom.Vec3{Z: 5}, ArmRight, StatusTooFarToReach},
		{"behind", geom.Vec3{X: -0.25, Y: 0.5, Z: -0.05}, ArmLeft, StatusBehindAvatar},
		// Behind the avatar but outside the shoulder's reach: the far rule
		// wins because it runs first.
		{"behind and far", geom.Vec3{Z: -0.3}, ArmLeft, StatusTooFarToReach},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkBend(tt.local, tt.arm, defaultNearBound, defaultReachBound)
			if got != tt.want {
				t.Errorf("checkBend(%v, %s) = %q, want %q", tt.local, tt.arm, got, tt.want)
			}
		})
	}
}

// TestCheckBendCustomBounds verifies the caller's bounds replace the defaults.
func TestCheckBendCustomBounds(t *testing.T) {
	target := geom.Vec3{Z: 1}
	if got := checkBend(target, ArmRight, defaultNearBound, defaultReachBound); got != StatusTooFarToReach {
		t.Fatalf("default bounds: got %q, want %q", got, StatusTooFarToReach)
	}
	if got := checkBend(target, ArmRight, defaultNearBound, 3); got != StatusOngoing {
		t.Fatalf("widened reach bound: got %q, want %q", got, StatusOngoing)
	}
}
