package framecache

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/windzu/NextPoints/pointcloud"
	"github.com/windzu/NextPoints/scene"
)

// PointCloudSource fetches a frame's point payload.
type PointCloudSource interface {
	FetchPointCloud(ctx context.Context, desc *scene.Descriptor) (pointcloud.PointCloud, error)
}

// AnnotationSource fetches a frame's annotations in canonical form.
type AnnotationSource interface {
	FetchAnnotations(ctx context.Context, desc *scene.Descriptor) ([]scene.AnnotationItem, error)
}

// PoseSource fetches a frame's vehicle pose. A (nil, nil) return means the
// frame simply has no pose; that is a tolerated degradation, not an error.
type PoseSource interface {
	FetchPose(ctx context.Context, desc *scene.Descriptor) (*scene.Pose, error)
}

// ImageSource fetches a frame's camera images keyed by camera name. Partial
// results are allowed: a non-empty map may be returned together with an
// error describing the cameras that failed.
type ImageSource interface {
	FetchImages(ctx context.Context, desc *scene.Descriptor) (map[string]image.Image, error)
}

// Sources bundles the collaborators a Cache loads frames from.
type Sources struct {
	Metadata    scene.MetadataFetcher
	PointClouds PointCloudSource
	Annotations AnnotationSource
	Poses       PoseSource
	Images      ImageSource
}

// Validate ensures every collaborator is present.
func (s *Sources) Validate() error {
	if s.Metadata == nil {
		return errors.New("metadata fetcher is required")
	}
	if s.PointClouds == nil {
		return errors.New("point cloud source is required")
	}
	if s.Annotations == nil {
		return errors.New("annotation source is required")
	}
	if s.Poses == nil {
		return errors.New("pose source is required")
	}
	if s.Images == nil {
		return errors.New("image source is required")
	}
	return nil
}

// RenderSpace is the shared display space worlds attach their geometry to.
// Implementations are expected to tolerate detaching a world that is not
// attached.
type RenderSpace interface {
	Attach(w *World) error
	Detach(w *World) error
}
