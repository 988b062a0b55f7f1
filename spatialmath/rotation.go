package spatialmath

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// Rotation is a parameterization of a 3D rotation. The concrete type records
// which representation the caller supplied so conversions can hand back the
// same form; Euler inputs keep their rotation order across a round trip.
type Rotation interface {
	// Quaternion returns the rotation as a unit quaternion.
	Quaternion() quat.Number

	// WithQuaternion returns a rotation of the same representation whose
	// value is q.
	WithQuaternion(q quat.Number) (Rotation, error)
}

// Quaternion is a rotation represented directly as quaternion components.
type Quaternion struct {
	X, Y, Z, W float64
}

// NewQuaternion returns the rotation for the given quaternion components.
func NewQuaternion(x, y, z, w float64) *Quaternion {
	return &Quaternion{X: x, Y: y, Z: z, W: w}
}

// Quaternion implements Rotation.
func (q *Quaternion) Quaternion() quat.Number {
	return Normalize(quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z})
}

// WithQuaternion implements Rotation.
func (q *Quaternion) WithQuaternion(n quat.Number) (Rotation, error) {
	n = Normalize(n)
	return &Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}, nil
}

type rawRotation struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Z     *float64 `json:"z,omitempty"`
	W     *float64 `json:"w,omitempty"`
	Order string   `json:"order,omitempty"`
}

// ParseRotation converts a loosely shaped JSON rotation into a Rotation. It
// accepts a 3-element array (Euler XYZ radians), a 4-element array (x, y, z, w
// quaternion), an object with x/y/z/w fields (quaternion), or an object with
// x/y/z and an optional order field (Euler angles). Any other shape is an
// error.
func ParseRotation(data json.RawMessage) (Rotation, error) {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		switch len(arr) {
		case 3:
			return NewEulerAngles(arr[0], arr[1], arr[2]), nil
		case 4:
			return NewQuaternion(arr[0], arr[1], arr[2], arr[3]), nil
		default:
			return nil, errors.Errorf("rotation array must have 3 or 4 elements, got %d", len(arr))
		}
	}

	var raw rawRotation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "rotation is neither an array nor an object")
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return nil, errors.New("rotation object requires x, y and z fields")
	}
	if raw.W != nil {
		if raw.Order != "" {
			return nil, errors.New("rotation object cannot carry both w and order")
		}
		return NewQuaternion(*raw.X, *raw.Y, *raw.Z, *raw.W), nil
	}
	order := EulerOrder(raw.Order)
	if order == "" {
		order = OrderXYZ
	}
	if !order.valid() {
		return nil, errors.Errorf("euler order %q not recognized", raw.Order)
	}
	return &EulerAngles{X: *raw.X, Y: *raw.Y, Z: *raw.Z, Order: order}, nil
}
