package sma

import (
	"fmt"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// Target is a task destination resolved against the latest frame. The set is
// closed: PointTarget for a fixed world position, ObjectTarget for a scene
// object tracked by ID. A resolution failure (the object vanished from the
// frame) is a Go error, not a task status.
type Target interface {
	resolve(f *build.Frame) (geom.Vec3, error)
	String() string
}

// PointTarget is a fixed position in world space.
type PointTarget geom.Vec3

func (p PointTarget) resolve(*build.Frame) (geom.Vec3, error) {
	return geom.Vec3(p), nil
}

func (p PointTarget) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// ObjectTarget tracks a scene object. Its position is re-resolved from every
// frame, so a moving object is followed, not chased at a stale position.
type ObjectTarget int64

func (o ObjectTarget) resolve(f *build.Frame) (geom.Vec3, error) {
	tr, ok := f.Transforms[int64(o)]
	if !ok {
		return geom.Vec3{}, fmt.Errorf("sma: object %d has no transform in frame %d", int64(o), f.FrameCount)
	}
	return tr.Position, nil
}

func (o ObjectTarget) String() string {
	return fmt.Sprintf("object %d", int64(o))
}
