package framecache

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/windzu/NextPoints/pointcloud"
	"github.com/windzu/NextPoints/scene"
)

// fakeSources serves canned metadata and payloads. A facet with a non-nil
// gate blocks until the gate is closed, letting tests control completion
// order.
type fakeSources struct {
	meta    map[string]*scene.SceneMetadata
	metaErr error
	pcErr   error
	annErr  error
	imgErr  error

	pointsGate chan struct{}
	annGate    chan struct{}
	imagesGate chan struct{}
	poseGate   chan struct{}
}

func waitGate(ctx context.Context, gate chan struct{}) {
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (f *fakeSources) FetchSceneMetadata(ctx context.Context, sceneName string) (*scene.SceneMetadata, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	meta, ok := f.meta[sceneName]
	if !ok {
		return nil, errors.Errorf("no scene %q", sceneName)
	}
	return meta, nil
}

func (f *fakeSources) FetchPointCloud(ctx context.Context, desc *scene.Descriptor) (pointcloud.PointCloud, error) {
	waitGate(ctx, f.pointsGate)
	if f.pcErr != nil {
		return nil, f.pcErr
	}
	pc := pointcloud.New()
	if err := pc.Set(r3.Vector{X: 1}, pointcloud.NewValueData(7)); err != nil {
		return nil, err
	}
	return pc, nil
}

func (f *fakeSources) FetchAnnotations(ctx context.Context, desc *scene.Descriptor) ([]scene.AnnotationItem, error) {
	waitGate(ctx, f.annGate)
	if f.annErr != nil {
		return nil, f.annErr
	}
	return desc.Annotations()
}

func (f *fakeSources) FetchPose(ctx context.Context, desc *scene.Descriptor) (*scene.Pose, error) {
	waitGate(ctx, f.poseGate)
	return desc.Pose(), nil
}

func (f *fakeSources) FetchImages(ctx context.Context, desc *scene.Descriptor) (map[string]image.Image, error) {
	waitGate(ctx, f.imagesGate)
	if f.imgErr != nil {
		return nil, f.imgErr
	}
	return map[string]image.Image{}, nil
}

func (f *fakeSources) sources() Sources {
	return Sources{Metadata: f, PointClouds: f, Annotations: f, Poses: f, Images: f}
}

// fakeRender records attach/detach events in order. A non-nil attachErr
// makes every Attach fail without recording an event.
type fakeRender struct {
	mu        sync.Mutex
	events    []string
	attachErr error
}

func (r *fakeRender) setAttachErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachErr = err
}

func (r *fakeRender) Attach(w *World) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return r.attachErr
	}
	r.events = append(r.events, "attach "+w.Descriptor().FrameID())
	return nil
}

func (r *fakeRender) Detach(w *World) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "detach "+w.Descriptor().FrameID())
	return nil
}

func (r *fakeRender) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// testMeta builds metadata for a scene with the given number of frames,
// named "00", "01", ... Frames listed in posed get a pose whose translation
// walks along +X in 10m steps.
func testMeta(sceneName string, frameCount int, posed ...string) *scene.SceneMetadata {
	posedSet := map[string]bool{}
	for _, f := range posed {
		posedSet[f] = true
	}
	meta := &scene.SceneMetadata{
		Scene:   sceneName,
		Details: map[string]*scene.FrameDetail{},
	}
	for i := 0; i < frameCount; i++ {
		frameID := fmt.Sprintf("%02d", i)
		meta.Frames = append(meta.Frames, frameID)
		detail := &scene.FrameDetail{
			PointCloudURL: "/data/" + sceneName + "/lidar/" + frameID + ".pcd",
		}
		if posedSet[frameID] {
			detail.Pose = &scene.Pose{
				Translation: scene.Vector3{X: float64(i) * 10},
				Rotation:    scene.Quaternion4{W: 1},
			}
		}
		meta.Details[frameID] = detail
	}
	return meta
}

func newTestCache(t *testing.T, cfg Config, srcs *fakeSources) (*Cache, *fakeRender) {
	t.Helper()
	render := &fakeRender{}
	c, err := NewCache(cfg, srcs.sources(), render, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, c.Close(context.Background()), test.ShouldBeNil)
	})
	return c, render
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

// getPreloaded creates a world and blocks until its preload transition
// fires.
func getPreloaded(t *testing.T, c *Cache, sceneName, frameID string) *World {
	t.Helper()
	ch := make(chan struct{})
	w, err := c.GetWorld(context.Background(), sceneName, frameID, func(*World) { close(ch) })
	test.That(t, err, test.ShouldBeNil)
	waitFor(t, ch)
	return w
}

// setActiveWait runs SetActive and blocks until activation is confirmed.
func setActiveWait(t *testing.T, c *Cache, w *World) {
	t.Helper()
	ch := make(chan struct{})
	c.SetActive(w, func() { close(ch) }, false)
	waitFor(t, ch)
}
