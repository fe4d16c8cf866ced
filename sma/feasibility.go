package sma

import "github.com/rainbow979/sticky-mitten-avatar/internal/geom"

// checkBend decides whether a mitten can plausibly bend to a target given in
// the avatar's local frame. Pure geometry; no simulation step is consumed.
// Returns StatusOngoing when the bend is feasible.
//
// The rules run in order: a local XZ distance under the near bound rejects
// as too close; a distance from the arm's shoulder pivot beyond the reach
// bound rejects as too far; a negative local Z rejects as behind the avatar.
func checkBend(local geom.Vec3, arm Arm, nearBound, reachBound float64) TaskStatus {
	if local.NormXZ() < nearBound {
		return StatusTooCloseToReach
	}
	pivot := shoulderRight
	if arm == ArmLeft {
		pivot = shoulderLeft
	}
	if local.Dist(pivot) > reachBound {
		return StatusTooFarToReach
	}
	if local.Z < 0 {
		return StatusBehindAvatar
	}
	return StatusOngoing
}
