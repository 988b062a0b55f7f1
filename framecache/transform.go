package framecache

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/windzu/NextPoints/scene"
	"github.com/windzu/NextPoints/spatialmath"
)

// errNotPreloaded guards every conversion helper: transforms exist only
// after all four facet loads have settled.
var errNotPreloaded = errors.New("world is not preloaded; transforms not computed yet")

// FrameTransforms are a world's cached homogeneous transforms relating the
// sensor frame (raw point coordinates), the vehicle-world frame (continuous
// across a scene's frames) and the render frame (where geometry is drawn).
// They are immutable snapshots: recomputed wholesale per preload cycle,
// never mutated in place. The inverses are exact matrix inverses of their
// counterparts to avoid round-trip drift.
type FrameTransforms struct {
	SensorToRender mgl64.Mat4
	RenderToSensor mgl64.Mat4
	SensorToWorld  mgl64.Mat4
	WorldToSensor  mgl64.Mat4
}

// computeFrameTransforms builds a world's transforms from its pose record,
// the scene's reference pose, its offset translation and the coordinate
// mode. The sensor is pre-aligned to the vehicle body in this data, so the
// sensor-to-world component reduces to the pose's rotation plus its
// translation relative to the reference pose; without a pose it degrades to
// identity and placement is offset-only.
func computeFrameTransforms(pose *scene.Pose, ref *spatialmath.Pose, offset r3.Vector, mode CoordinateMode) *FrameTransforms {
	sensorToWorld := mgl64.Ident4()
	if pose != nil && ref != nil {
		delta := pose.Translation.Vec().Sub(ref.Translation)
		sensorToWorld = spatialmath.PoseMatrix(spatialmath.NewPose(delta, pose.Rotation.Quat()))
	}

	sensorToRender := spatialmath.TranslationMatrix(offset)
	if mode == ModeContinuous {
		sensorToRender = sensorToRender.Mul4(sensorToWorld)
	}

	return &FrameTransforms{
		SensorToRender: sensorToRender,
		RenderToSensor: sensorToRender.Inv(),
		SensorToWorld:  sensorToWorld,
		WorldToSensor:  sensorToWorld.Inv(),
	}
}

// Transforms returns the world's cached transforms, or an error if the world
// has not preloaded.
func (w *World) Transforms() (*FrameTransforms, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.transforms == nil {
		return nil, errNotPreloaded
	}
	return w.transforms, nil
}

func (w *World) transformPoint(p r3.Vector, pick func(*FrameTransforms) mgl64.Mat4) (r3.Vector, error) {
	t, err := w.Transforms()
	if err != nil {
		return r3.Vector{}, err
	}
	return spatialmath.TransformPoint(pick(t), p), nil
}

// SensorToRender converts a point from the sensor frame to the render frame.
func (w *World) SensorToRender(p r3.Vector) (r3.Vector, error) {
	return w.transformPoint(p, func(t *FrameTransforms) mgl64.Mat4 { return t.SensorToRender })
}

// RenderToSensor converts a point from the render frame to the sensor frame.
func (w *World) RenderToSensor(p r3.Vector) (r3.Vector, error) {
	return w.transformPoint(p, func(t *FrameTransforms) mgl64.Mat4 { return t.RenderToSensor })
}

// SensorToWorld converts a point from the sensor frame to the vehicle-world
// frame.
func (w *World) SensorToWorld(p r3.Vector) (r3.Vector, error) {
	return w.transformPoint(p, func(t *FrameTransforms) mgl64.Mat4 { return t.SensorToWorld })
}

// WorldToSensor converts a point from the vehicle-world frame to the sensor
// frame.
func (w *World) WorldToSensor(p r3.Vector) (r3.Vector, error) {
	return w.transformPoint(p, func(t *FrameTransforms) mgl64.Mat4 { return t.WorldToSensor })
}

// convertRotation composes the caller's local rotation with the rotation of
// the chosen frame transform, in that order for every direction, and hands
// back the result in the caller's representation.
func (w *World) convertRotation(r spatialmath.Rotation, pick func(*FrameTransforms) mgl64.Mat4) (spatialmath.Rotation, error) {
	t, err := w.Transforms()
	if err != nil {
		return nil, err
	}
	parent := spatialmath.MatrixQuaternion(pick(t))
	composed := spatialmath.Normalize(quat.Mul(parent, r.Quaternion()))
	return r.WithQuaternion(composed)
}

// RotationSensorToRender converts a rotation from the sensor frame to the
// render frame.
func (w *World) RotationSensorToRender(r spatialmath.Rotation) (spatialmath.Rotation, error) {
	return w.convertRotation(r, func(t *FrameTransforms) mgl64.Mat4 { return t.SensorToRender })
}

// RotationRenderToSensor converts a rotation from the render frame to the
// sensor frame.
func (w *World) RotationRenderToSensor(r spatialmath.Rotation) (spatialmath.Rotation, error) {
	return w.convertRotation(r, func(t *FrameTransforms) mgl64.Mat4 { return t.RenderToSensor })
}

// RotationSensorToWorld converts a rotation from the sensor frame to the
// vehicle-world frame.
func (w *World) RotationSensorToWorld(r spatialmath.Rotation) (spatialmath.Rotation, error) {
	return w.convertRotation(r, func(t *FrameTransforms) mgl64.Mat4 { return t.SensorToWorld })
}

// RotationWorldToSensor converts a rotation from the vehicle-world frame to
// the sensor frame.
func (w *World) RotationWorldToSensor(r spatialmath.Rotation) (spatialmath.Rotation, error) {
	return w.convertRotation(r, func(t *FrameTransforms) mgl64.Mat4 { return t.WorldToSensor })
}
