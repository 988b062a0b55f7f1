package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// TranslationMatrix returns the homogeneous transform that translates by v.
func TranslationMatrix(v r3.Vector) mgl64.Mat4 {
	return mgl64.Translate3D(v.X, v.Y, v.Z)
}

// PoseMatrix returns the homogeneous transform that rotates by p.Rotation and
// then translates by p.Translation.
func PoseMatrix(p *Pose) mgl64.Mat4 {
	rot := mgl64.Quat{
		W: p.Rotation.Real,
		V: mgl64.Vec3{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag},
	}.Normalize()
	return TranslationMatrix(p.Translation).Mul4(rot.Mat4())
}

// TransformPoint applies the homogeneous transform m to the point p.
func TransformPoint(m mgl64.Mat4, p r3.Vector) r3.Vector {
	out := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: out.X(), Y: out.Y(), Z: out.Z()}
}

// MatrixQuaternion extracts the rotation component of a rigid homogeneous
// transform as a unit quaternion.
func MatrixQuaternion(m mgl64.Mat4) quat.Number {
	q := mgl64.Mat4ToQuat(m)
	return Normalize(quat.Number{Real: q.W, Imag: q.X(), Jmag: q.Y(), Kmag: q.Z()})
}
