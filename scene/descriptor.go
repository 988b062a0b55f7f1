package scene

import (
	"github.com/pkg/errors"
)

// Descriptor is a read-only view over one (scene, frame) pair: its position
// within the scene's frame ordering and accessors for the frame's raw-data
// locations. Descriptors are cheap and safe to share.
type Descriptor struct {
	meta    *SceneMetadata
	frameID string
	index   int
}

// NewDescriptor builds a descriptor for frameID within the scene meta
// describes. The frame must be part of the scene's frame ordering.
func NewDescriptor(meta *SceneMetadata, frameID string) (*Descriptor, error) {
	index := meta.FrameIndex(frameID)
	if index < 0 {
		return nil, errors.Errorf("frame %q is not part of scene %q", frameID, meta.Scene)
	}
	return &Descriptor{meta: meta, frameID: frameID, index: index}, nil
}

// SceneName returns the owning scene's name.
func (d *Descriptor) SceneName() string {
	return d.meta.Scene
}

// FrameID returns the frame's identifier.
func (d *Descriptor) FrameID() string {
	return d.frameID
}

// FrameIndex returns the frame's position within the scene's frame ordering.
func (d *Descriptor) FrameIndex() int {
	return d.index
}

// Metadata returns the owning scene's metadata.
func (d *Descriptor) Metadata() *SceneMetadata {
	return d.meta
}

// PointCloudURL returns the location of the frame's point payload.
func (d *Descriptor) PointCloudURL() string {
	if detail := d.meta.Detail(d.frameID); detail != nil {
		return detail.PointCloudURL
	}
	return ""
}

// ImageURLs returns the frame's camera image locations keyed by camera name.
func (d *Descriptor) ImageURLs() map[string]string {
	if detail := d.meta.Detail(d.frameID); detail != nil {
		return detail.ImageURLs
	}
	return nil
}

// Pose returns the frame's recorded vehicle pose, or nil when the scene has
// no pose data for it.
func (d *Descriptor) Pose() *Pose {
	if detail := d.meta.Detail(d.frameID); detail != nil {
		return detail.Pose
	}
	return nil
}

// Annotations returns the frame's annotations in canonical form, converting
// raw corner cuboids when the scene uses the corner convention.
func (d *Descriptor) Annotations() ([]AnnotationItem, error) {
	detail := d.meta.Detail(d.frameID)
	if detail == nil {
		return nil, nil
	}
	items, err := CanonicalAnnotations(detail.Annotations)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %q", d.frameID)
	}
	return items, nil
}
