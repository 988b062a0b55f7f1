// Package spatialmath defines the rotation and rigid-transform math shared by
// the frame cache: quaternion helpers, Euler angles with an explicit rotation
// order, and 4x4 homogeneous transforms between the sensor, vehicle-world and
// render frames.
package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// defaultAngleEpsilon is used when comparing quaternions for approximate equality.
const defaultAngleEpsilon = 1e-8

// Normalize returns the unit quaternion pointing in the same direction as q.
// The zero quaternion normalizes to the identity rotation.
func Normalize(q quat.Number) quat.Number {
	length := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if length == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Number{Real: q.Real / length, Imag: q.Imag / length, Jmag: q.Jmag / length, Kmag: q.Kmag / length}
}

// QuaternionAlmostEqual returns whether two quaternions represent approximately
// the same rotation, accounting for the double cover (q and -q are the same
// rotation).
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	if tol <= 0 {
		tol = defaultAngleEpsilon
	}
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return math.Abs(math.Abs(dot)-1) < tol
}
