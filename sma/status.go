package sma

// TaskStatus is the closed outcome vocabulary of a task primitive. Every
// invocation produces exactly one terminal value; callers branch on it
// instead of on errors (errors are reserved for transport loss).
type TaskStatus string

const (
	// StatusOngoing is the internal "keep stepping" verdict. It is never
	// returned to a caller as a task outcome.
	StatusOngoing TaskStatus = "ongoing"

	// StatusSuccess means the task converged within its thresholds.
	StatusSuccess TaskStatus = "success"

	// Feasibility rejections, decided before any simulation step.
	StatusTooCloseToReach TaskStatus = "too_close_to_reach"
	StatusTooFarToReach   TaskStatus = "too_far_to_reach"
	StatusBehindAvatar    TaskStatus = "behind_avatar"

	// StatusNoLongerBending means the arm's joints settled before the mitten
	// reached its goal.
	StatusNoLongerBending TaskStatus = "no_longer_bending"

	// Grasp-specific terminal actions.
	StatusFailedToPickUp TaskStatus = "failed_to_pick_up"
	StatusBadRaycast     TaskStatus = "bad_raycast"

	// Divergence.
	StatusTurned360 TaskStatus = "turned_360"
	StatusTooLong   TaskStatus = "too_long"
	StatusOvershot  TaskStatus = "overshot"

	// Interruptions.
	StatusCollidedWithHeavy       TaskStatus = "collided_with_something_heavy"
	StatusCollidedWithEnvironment TaskStatus = "collided_with_environment"

	// StatusDetached is returned by a task started with Detach: the first
	// step's commands were issued and a standing goal was left on the
	// controller. Later steps resolve the goal in the background; its
	// eventual outcome is not reported back to the original caller.
	StatusDetached TaskStatus = "detached"
)

// Terminal reports whether s ends a task invocation.
func (s TaskStatus) Terminal() bool { return s != StatusOngoing }
