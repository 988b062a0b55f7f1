package spatialmath

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// EulerOrder is the axis sequence an EulerAngles rotation is applied in.
// OrderXYZ matches the convention of the annotation frontend; OrderZYX is the
// usual vehicle yaw-pitch-roll convention.
type EulerOrder string

// The six proper Euler axis sequences.
const (
	OrderXYZ EulerOrder = "XYZ"
	OrderYXZ EulerOrder = "YXZ"
	OrderZXY EulerOrder = "ZXY"
	OrderZYX EulerOrder = "ZYX"
	OrderYZX EulerOrder = "YZX"
	OrderXZY EulerOrder = "XZY"
)

func (o EulerOrder) valid() bool {
	switch o {
	case OrderXYZ, OrderYXZ, OrderZXY, OrderZYX, OrderYZX, OrderXZY:
		return true
	default:
		return false
	}
}

// EulerAngles represents a rotation as three angles in radians about the
// X, Y and Z axes, applied in Order.
type EulerAngles struct {
	X, Y, Z float64
	Order   EulerOrder
}

// NewEulerAngles returns Euler angles in the default XYZ order.
func NewEulerAngles(x, y, z float64) *EulerAngles {
	return &EulerAngles{X: x, Y: y, Z: z, Order: OrderXYZ}
}

// Quaternion converts the Euler angles to a unit quaternion by composing the
// per-axis rotations in the declared order.
func (ea *EulerAngles) Quaternion() quat.Number {
	order := ea.Order
	if order == "" {
		order = OrderXYZ
	}
	q := quat.Number{Real: 1}
	angles := map[byte]float64{'X': ea.X, 'Y': ea.Y, 'Z': ea.Z}
	for i := 0; i < len(order); i++ {
		q = quat.Mul(q, axisQuat(order[i], angles[order[i]]))
	}
	return Normalize(q)
}

// WithQuaternion returns Euler angles in the same order representing q.
func (ea *EulerAngles) WithQuaternion(q quat.Number) (Rotation, error) {
	order := ea.Order
	if order == "" {
		order = OrderXYZ
	}
	out, err := eulerFromQuaternion(q, order)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func axisQuat(axis byte, angle float64) quat.Number {
	s, c := math.Sin(angle/2), math.Cos(angle/2)
	switch axis {
	case 'X':
		return quat.Number{Real: c, Imag: s}
	case 'Y':
		return quat.Number{Real: c, Jmag: s}
	default:
		return quat.Number{Real: c, Kmag: s}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// eulerFromQuaternion extracts the Euler angles of q for the given order by
// way of the rotation matrix, following the three.js convention the
// annotation frontend uses.
func eulerFromQuaternion(q quat.Number, order EulerOrder) (*EulerAngles, error) {
	if !order.valid() {
		return nil, errors.Errorf("euler order %q not recognized", string(order))
	}
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	m11 := 1 - 2*(y*y+z*z)
	m12 := 2 * (x*y - w*z)
	m13 := 2 * (x*z + w*y)
	m21 := 2 * (x*y + w*z)
	m22 := 1 - 2*(x*x+z*z)
	m23 := 2 * (y*z - w*x)
	m31 := 2 * (x*z - w*y)
	m32 := 2 * (y*z + w*x)
	m33 := 1 - 2*(x*x+y*y)

	ea := &EulerAngles{Order: order}
	switch order {
	case OrderXYZ:
		ea.Y = math.Asin(clamp(m13, -1, 1))
		if math.Abs(m13) < 1-1e-12 {
			ea.X = math.Atan2(-m23, m33)
			ea.Z = math.Atan2(-m12, m11)
		} else {
			ea.X = math.Atan2(m32, m22)
		}
	case OrderYXZ:
		ea.X = math.Asin(-clamp(m23, -1, 1))
		if math.Abs(m23) < 1-1e-12 {
			ea.Y = math.Atan2(m13, m33)
			ea.Z = math.Atan2(m21, m22)
		} else {
			ea.Y = math.Atan2(-m31, m11)
		}
	case OrderZXY:
		ea.X = math.Asin(clamp(m32, -1, 1))
		if math.Abs(m32) < 1-1e-12 {
			ea.Y = math.Atan2(-m31, m33)
			ea.Z = math.Atan2(-m12, m22)
		} else {
			ea.Z = math.Atan2(m21, m11)
		}
	case OrderZYX:
		ea.Y = math.Asin(-clamp(m31, -1, 1))
		if math.Abs(m31) < 1-1e-12 {
			ea.X = math.Atan2(m32, m33)
			ea.Z = math.Atan2(m21, m11)
		} else {
			ea.Z = math.Atan2(-m12, m22)
		}
	case OrderYZX:
		ea.Z = math.Asin(clamp(m21, -1, 1))
		if math.Abs(m21) < 1-1e-12 {
			ea.X = math.Atan2(-m23, m22)
			ea.Y = math.Atan2(-m31, m11)
		} else {
			ea.Y = math.Atan2(m13, m33)
		}
	case OrderXZY:
		ea.Z = math.Asin(-clamp(m12, -1, 1))
		if math.Abs(m12) < 1-1e-12 {
			ea.X = math.Atan2(m32, m22)
			ea.Y = math.Atan2(m13, m11)
		} else {
			ea.X = math.Atan2(-m23, m33)
		}
	}
	return ea, nil
}
