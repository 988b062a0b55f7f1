// Package scene models the per-scene metadata the annotation backend serves:
// the ordered frame list, per-frame asset locations, vehicle poses and raw
// annotations, plus read-only frame descriptors derived from it.
package scene

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// AnnotationFormat names the raw annotation convention a scene was captured
// with.
type AnnotationFormat string

// Scenes either carry canonical position/scale/rotation boxes or raw
// 8-corner cuboids that need conversion on load.
const (
	FormatPSR     AnnotationFormat = "psr"
	FormatCorners AnnotationFormat = "corners"
)

// Vector3 is a JSON-friendly 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec returns the vector as an r3.Vector.
func (v Vector3) Vec() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Quaternion4 is a JSON-friendly quaternion in x, y, z, w component form.
type Quaternion4 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Quat returns the quaternion in gonum form.
func (q Quaternion4) Quat() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Pose is a vehicle pose record: where the sensor was in the continuous
// world frame when the frame was captured.
type Pose struct {
	Translation Vector3     `json:"translation"`
	Rotation    Quaternion4 `json:"rotation"`
}

// PSR is the canonical box representation: center position, per-axis extents
// and a rotation.
type PSR struct {
	Position Vector3     `json:"position"`
	Scale    Vector3     `json:"scale"`
	Rotation Quaternion4 `json:"rotation"`
}

// AnnotationItem is one labeled box in a frame.
type AnnotationItem struct {
	ObjID   string `json:"obj_id"`
	ObjType string `json:"obj_type"`
	ObjAttr string `json:"obj_attr,omitempty"`
	NumPts  *int   `json:"num_pts,omitempty"`
	PSR     PSR    `json:"psr"`
}

// RawAnnotation is an annotation as stored in scene metadata. Exactly one of
// PSR or Corners is populated, depending on the scene's annotation format.
type RawAnnotation struct {
	ObjID   string    `json:"obj_id"`
	ObjType string    `json:"obj_type"`
	ObjAttr string    `json:"obj_attr,omitempty"`
	PSR     *PSR      `json:"psr,omitempty"`
	Corners []Vector3 `json:"corners,omitempty"`
}

// FrameDetail holds the per-frame facts recorded in scene metadata.
type FrameDetail struct {
	PointCloudURL string            `json:"pointcloud_url"`
	ImageURLs     map[string]string `json:"images,omitempty"`
	Pose          *Pose             `json:"pose,omitempty"`
	Annotations   []RawAnnotation   `json:"annotation,omitempty"`
}

// SceneMetadata identifies a scene and its ordered frames. It is immutable
// once fetched; the metadata service caches one per scene for the process
// lifetime.
type SceneMetadata struct {
	Scene            string                  `json:"scene"`
	Frames           []string                `json:"frames"`
	AnnotationFormat AnnotationFormat        `json:"annotation_format,omitempty"`
	Details          map[string]*FrameDetail `json:"details,omitempty"`
}

// FrameIndex returns the position of frameID within the scene's frame
// ordering, or -1 if the frame is unknown.
func (meta *SceneMetadata) FrameIndex(frameID string) int {
	for i, f := range meta.Frames {
		if f == frameID {
			return i
		}
	}
	return -1
}

// Detail returns the per-frame record for frameID, which may be nil for
// frames with no recorded assets.
func (meta *SceneMetadata) Detail(frameID string) *FrameDetail {
	return meta.Details[frameID]
}

// CanonicalAnnotations converts raw annotations to canonical form, running
// the corner-cuboid conversion where the raw record requires it.
func CanonicalAnnotations(raws []RawAnnotation) ([]AnnotationItem, error) {
	items := make([]AnnotationItem, 0, len(raws))
	for _, raw := range raws {
		item := AnnotationItem{ObjID: raw.ObjID, ObjType: raw.ObjType, ObjAttr: raw.ObjAttr}
		switch {
		case raw.PSR != nil:
			item.PSR = *raw.PSR
		case len(raw.Corners) > 0:
			psr, err := BoxFromCorners(raw.Corners)
			if err != nil {
				return nil, errors.Wrapf(err, "annotation %q", raw.ObjID)
			}
			item.PSR = psr
		default:
			return nil, errors.Errorf("annotation %q has neither psr nor corners", raw.ObjID)
		}
		items = append(items, item)
	}
	return items, nil
}

// BoxFromCorners converts an 8-corner cuboid to the canonical
// center/extents/yaw form. Corners are expected bottom face first,
// counterclockwise, then the top face in the same winding, which is the
// layout the import tooling emits.
func BoxFromCorners(corners []Vector3) (PSR, error) {
	if len(corners) != 8 {
		return PSR{}, errors.Errorf("corner annotation requires 8 corners, got %d", len(corners))
	}
	var center r3.Vector
	for _, c := range corners {
		center = center.Add(c.Vec())
	}
	center = center.Mul(1.0 / 8.0)

	length := corners[1].Vec().Sub(corners[0].Vec())
	width := corners[3].Vec().Sub(corners[0].Vec())
	height := corners[4].Vec().Sub(corners[0].Vec())
	if length.Norm() == 0 || width.Norm() == 0 || height.Norm() == 0 {
		return PSR{}, errors.New("degenerate corner annotation")
	}

	yaw := math.Atan2(length.Y, length.X)
	return PSR{
		Position: Vector3{X: center.X, Y: center.Y, Z: center.Z},
		Scale:    Vector3{X: length.Norm(), Y: width.Norm(), Z: height.Norm()},
		Rotation: Quaternion4{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)},
	}, nil
}
