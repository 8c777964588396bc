// Package geom holds the small geometric primitives shared across the host
// core: the fixed-point angle representation used by the pose/motion
// protocol, and the millimeter-scale vector math used by mapping, routing,
// and navigation.
package geom

import "github.com/chewxy/math32"

// Angle is a signed 32-bit fixed-point angle where a full turn equals 2^32,
// matching the MCU motion protocol's wire representation (§3 Pose).
type Angle int32

// FromDegrees converts a floating-point degree value to the fixed-point wire
// representation, wrapping at a full turn.
func FromDegrees(deg float64) Angle {
	turns := deg / 360.0
	return Angle(int64(turns * 4294967296.0))
}

// Degrees converts the fixed-point angle back to floating-point degrees in
// [-180, 180).
func (a Angle) Degrees() float64 {
	return float64(a) / 4294967296.0 * 360.0
}

// Radians converts to radians, used by trig helpers below.
func (a Angle) Radians() float32 {
	return float32(a.Degrees()) * (math32.Pi / 180.0)
}

// Add returns a+b; int32 overflow performs the wraparound required by the
// fixed-point representation (a full turn overflows cleanly).
func (a Angle) Add(b Angle) Angle {
	return Angle(int32(a) + int32(b))
}

// Sub returns the signed shortest-path difference a-b, in [-2^31, 2^31).
func (a Angle) Sub(b Angle) Angle {
	return Angle(int32(a) - int32(b))
}

// Scale multiplies the angle by a float factor, used for the damped/full/
// one-third pose correction scaling in §4.2.
func (a Angle) Scale(f float32) Angle {
	return Angle(int64(float32(int32(a)) * f))
}

// Cos and Sin provide the trig needed for projecting a pose-relative distance
// into world-frame millimeter deltas (look-ahead targets, creep steps).
func (a Angle) Cos() float32 { return math32.Cos(a.Radians()) }
func (a Angle) Sin() float32 { return math32.Sin(a.Radians()) }

// Point2 is a millimeter-scale 2D point/vector.
type Point2 struct {
	X, Y int32
}

// DistanceTo returns the Euclidean distance in millimeters between p and q.
func DistanceTo(p, q Point2) float32 {
	dx := float32(q.X - p.X)
	dy := float32(q.Y - p.Y)
	return math32.Sqrt(dx*dx + dy*dy)
}

// Project returns the point obtained by walking distMM millimeters from p
// along heading ang.
func Project(p Point2, ang Angle, distMM float32) Point2 {
	return Point2{
		X: p.X + int32(ang.Cos()*distMM),
		Y: p.Y + int32(ang.Sin()*distMM),
	}
}

// HeadingTo returns the fixed-point angle pointing from p toward q.
func HeadingTo(p, q Point2) Angle {
	dx := float32(q.X - p.X)
	dy := float32(q.Y - p.Y)
	rad := math32.Atan2(dy, dx)
	deg := float64(rad) * 180.0 / 3.14159265358979
	return FromDegrees(deg)
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampF is the float32 equivalent of Clamp.
func ClampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
