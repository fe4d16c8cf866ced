// Package geom provides the plane geometry used to steer the avatar: XZ-plane
// angles, rotations around the vertical axis, and bounds lookups.
package geom

import "math"

// Forward is the global forward directional vector.
var Forward = Vec3{X: 0, Y: 0, Z: 1}

// Vec3 is a position or directional vector in build coordinates (Y up).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// NormXZ returns the length of v projected onto the XZ plane.
func (v Vec3) NormXZ() float64 {
	return math.Hypot(v.X, v.Z)
}

// Dist returns the Euclidean distance between v and w.
func (v Vec3) Dist(w Vec3) float64 {
	return v.Sub(w).Norm()
}

// DistXZ returns the distance between v and w in the XZ plane.
func (v Vec3) DistXZ(w Vec3) float64 {
	return v.Sub(w).NormXZ()
}

// DotXZ returns the dot product of v and w projected onto the XZ plane.
func DotXZ(v, w Vec3) float64 {
	return v.X*w.X + v.Z*w.Z
}

// Normalized returns v scaled to unit length. The zero vector is returned as-is.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Angle returns the signed angle in degrees between forward and the direction
// from origin to position, measured in the XZ plane. Range (-180, 180].
func Angle(forward, origin, position Vec3) float64 {
	d := position.Sub(origin)
	n := d.NormXZ()
	if n == 0 {
		return 0
	}
	dx, dz := d.X/n, d.Z/n
	dot := forward.X*dx + forward.Z*dz
	det := forward.X*dz - forward.Z*dx
	return math.Atan2(det, dot) * 180 / math.Pi
}

// AngleBetween returns the angle in degrees between two directional vectors in
// the XZ plane. Range [0, 360).
func AngleBetween(v1, v2 Vec3) float64 {
	a1 := math.Atan2(v1.Z, v1.X)
	a2 := math.Atan2(v2.Z, v2.X)
	deg := (a1 - a2) * 180 / math.Pi
	return math.Mod(math.Mod(deg, 360)+360, 360)
}

// RotatePointAround rotates point counterclockwise by angle degrees around
// origin in the XZ plane. Y is unchanged.
func RotatePointAround(point Vec3, angle float64, origin Vec3) Vec3 {
	rad := angle * math.Pi / 180
	ax := point.X - origin.X
	az := point.Z - origin.Z
	cos, sin := math.Cos(rad), math.Sin(rad)
	return Vec3{
		X: origin.X + cos*ax + sin*az,
		Y: point.Y,
		Z: origin.Z - sin*ax + cos*az,
	}
}

// NormalizeAngle wraps deg into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// Bounds holds the six extremity points and the center of an object's bounds.
type Bounds struct {
	Center Vec3 `json:"center"`
	Top    Vec3 `json:"top"`
	Bottom Vec3 `json:"bottom"`
	Left   Vec3 `json:"left"`
	Right  Vec3 `json:"right"`
	Front  Vec3 `json:"front"`
	Back   Vec3 `json:"back"`
}

// ClosestPoint returns the extremity point of b nearest to origin.
// The center is not a candidate.
func (b Bounds) ClosestPoint(origin Vec3) Vec3 {
	points := []Vec3{b.Top, b.Bottom, b.Left, b.Right, b.Front, b.Back}
	best := points[0]
	min := origin.Dist(best)
	for _, p := range points[1:] {
		if d := origin.Dist(p); d < min {
			min = d
			best = p
		}
	}
	return best
}
