package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid placement: a translation and a unit quaternion rotation.
// The frame cache uses one as the per-scene reference pose that all sibling
// frames are positioned against.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() *Pose {
	return &Pose{Rotation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and rotation. The
// rotation is normalized.
func NewPose(t r3.Vector, r quat.Number) *Pose {
	return &Pose{Translation: t, Rotation: Normalize(r)}
}

// PoseAlmostEqual returns whether two poses are approximately the same
// placement.
func PoseAlmostEqual(a, b *Pose, tol float64) bool {
	if tol <= 0 {
		tol = 1e-8
	}
	return a.Translation.Sub(b.Translation).Norm() < tol &&
		QuaternionAlmostEqual(a.Rotation, b.Rotation, tol)
}
