package framecache

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/url"

	// Registered for image.Decode; the backend serves JPEG and PNG camera
	// images.
	_ "image/jpeg"
	_ "image/png"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/windzu/NextPoints/pointcloud"
	"github.com/windzu/NextPoints/scene"
)

// HTTPSources implements every fetcher contract against the annotation
// backend's HTTP API: JSON scene metadata and annotations, .pcd point
// payloads and JPEG/PNG camera images.
type HTTPSources struct {
	base   *url.URL
	client *http.Client
	logger golog.Logger
}

// NewHTTPSources returns sources rooted at baseURL.
func NewHTTPSources(baseURL string, logger golog.Logger) (*HTTPSources, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	return &HTTPSources{base: base, client: http.DefaultClient, logger: logger}, nil
}

// Sources bundles the receiver into the contract set a Cache consumes.
func (h *HTTPSources) Sources() Sources {
	return Sources{
		Metadata:    h,
		PointClouds: h,
		Annotations: h,
		Poses:       h,
		Images:      h,
	}
}

func (h *HTTPSources) get(ctx context.Context, ref string) (*http.Response, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid resource url %q", ref)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base.ResolveReference(target).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		goutils.UncheckedErrorFunc(resp.Body.Close)
		return nil, errors.Errorf("fetching %q: status %d", ref, resp.StatusCode)
	}
	return resp, nil
}

// FetchSceneMetadata implements scene.MetadataFetcher.
func (h *HTTPSources) FetchSceneMetadata(ctx context.Context, sceneName string) (*scene.SceneMetadata, error) {
	resp, err := h.get(ctx, "/api/scenemeta?scene="+url.QueryEscape(sceneName))
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(resp.Body.Close)
	var meta scene.SceneMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, errors.Wrap(err, "decoding scene metadata")
	}
	return &meta, nil
}

// FetchPointCloud implements PointCloudSource.
func (h *HTTPSources) FetchPointCloud(ctx context.Context, desc *scene.Descriptor) (pointcloud.PointCloud, error) {
	ref := desc.PointCloudURL()
	if ref == "" {
		return nil, errors.Errorf("frame %q has no point cloud url", desc.FrameID())
	}
	resp, err := h.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(resp.Body.Close)
	return pointcloud.ReadPCD(resp.Body)
}

// FetchAnnotations implements AnnotationSource. Annotations embedded in the
// scene metadata are preferred; otherwise the per-frame annotation endpoint
// is queried.
func (h *HTTPSources) FetchAnnotations(ctx context.Context, desc *scene.Descriptor) ([]scene.AnnotationItem, error) {
	if detail := desc.Metadata().Detail(desc.FrameID()); detail != nil && len(detail.Annotations) > 0 {
		return desc.Annotations()
	}
	resp, err := h.get(ctx, "/api/annotation?scene="+url.QueryEscape(desc.SceneName())+
		"&frame="+url.QueryEscape(desc.FrameID()))
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(resp.Body.Close)
	var raws []scene.RawAnnotation
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, errors.Wrap(err, "decoding annotations")
	}
	return scene.CanonicalAnnotations(raws)
}

// FetchPose implements PoseSource. A frame with no recorded pose returns
// (nil, nil).
func (h *HTTPSources) FetchPose(ctx context.Context, desc *scene.Descriptor) (*scene.Pose, error) {
	return desc.Pose(), nil
}

// FetchImages implements ImageSource. Cameras that fail to load are reported
// in the returned error while the rest of the set is still usable.
func (h *HTTPSources) FetchImages(ctx context.Context, desc *scene.Descriptor) (map[string]image.Image, error) {
	urls := desc.ImageURLs()
	images := make(map[string]image.Image, len(urls))
	var result error
	for camera, ref := range urls {
		img, err := h.fetchImage(ctx, ref)
		if err != nil {
			result = multierr.Combine(result, errors.Wrapf(err, "camera %q", camera))
			continue
		}
		images[camera] = img
	}
	return images, result
}

func (h *HTTPSources) fetchImage(ctx context.Context, ref string) (image.Image, error) {
	resp, err := h.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(resp.Body.Close)
	img, _, err := image.Decode(resp.Body)
	return img, err
}
