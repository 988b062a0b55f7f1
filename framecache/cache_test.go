package framecache

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/windzu/NextPoints/scene"
)

func TestGetWorldDedup(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 5)}}
	c, _ := newTestCache(t, DefaultConfig(), srcs)

	w1 := getPreloaded(t, c, "A", "02")
	w2, err := c.GetWorld(context.Background(), "A", "02", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w2, test.ShouldEqual, w1)
	test.That(t, c.Size(), test.ShouldEqual, 1)

	_, err = c.GetWorld(context.Background(), "A", "no-such-frame", nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.Size(), test.ShouldEqual, 1)
}

func TestGetWorldMetadataUnavailable(t *testing.T) {
	srcs := &fakeSources{
		meta:    map[string]*scene.SceneMetadata{},
		metaErr: errors.New("backend down"),
	}
	c, _ := newTestCache(t, DefaultConfig(), srcs)

	_, err := c.GetWorld(context.Background(), "A", "00", nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, scene.ErrMetadataUnavailable), test.ShouldBeTrue)
	test.That(t, c.Size(), test.ShouldEqual, 0)
}

func TestSetActiveOrdering(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 5)}}
	c, render := newTestCache(t, DefaultConfig(), srcs)

	wa := getPreloaded(t, c, "A", "00")
	wb := getPreloaded(t, c, "A", "01")

	setActiveWait(t, c, wa)
	test.That(t, c.ActiveWorld(), test.ShouldEqual, wa)

	// The new world attaches before the prior one detaches.
	setActiveWait(t, c, wb)
	test.That(t, c.ActiveWorld(), test.ShouldEqual, wb)
	test.That(t, render.Events(), test.ShouldResemble,
		[]string{"attach 00", "attach 01", "detach 00"})
	test.That(t, wa.Attached(), test.ShouldBeFalse)
	test.That(t, wb.Attached(), test.ShouldBeTrue)
}

func TestSetActiveSameWorldReconfirms(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 5)}}
	c, render := newTestCache(t, DefaultConfig(), srcs)

	w := getPreloaded(t, c, "A", "00")
	setActiveWait(t, c, w)

	// Re-selecting the frame that is already active must still confirm;
	// the render slot is untouched.
	setActiveWait(t, c, w)
	test.That(t, c.ActiveWorld(), test.ShouldEqual, w)
	test.That(t, w.Attached(), test.ShouldBeTrue)
	test.That(t, render.Events(), test.ShouldResemble, []string{"attach 00"})
}

func TestSetActiveKeepPriorAttached(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 5)}}
	c, _ := newTestCache(t, DefaultConfig(), srcs)

	wa := getPreloaded(t, c, "A", "00")
	wb := getPreloaded(t, c, "A", "01")

	setActiveWait(t, c, wa)
	ch := make(chan struct{})
	c.SetActive(wb, func() { close(ch) }, true)
	waitFor(t, ch)

	test.That(t, c.ActiveWorld(), test.ShouldEqual, wb)
	test.That(t, wa.Attached(), test.ShouldBeTrue)
	test.That(t, wb.Attached(), test.ShouldBeTrue)
}

func TestSetActiveDefersPointerSwap(t *testing.T) {
	srcs := &fakeSources{
		meta:     map[string]*scene.SceneMetadata{"A": testMeta("A", 5)},
		poseGate: make(chan struct{}),
	}
	c, _ := newTestCache(t, DefaultConfig(), srcs)

	w, err := c.GetWorld(context.Background(), "A", "03", nil)
	test.That(t, err, test.ShouldBeNil)

	// The pointer must not reference a half-initialized world: SetActive on
	// a not-yet-preloaded world has no visible effect until its preload
	// confirms.
	activated := make(chan struct{})
	c.SetActive(w, func() { close(activated) }, false)
	test.That(t, c.ActiveWorld(), test.ShouldBeNil)

	close(srcs.poseGate)
	waitFor(t, activated)
	test.That(t, c.ActiveWorld(), test.ShouldEqual, w)
	test.That(t, w.Attached(), test.ShouldBeTrue)
}

func TestEvictDistant(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	cfg := DefaultConfig()
	cfg.EvictionWindow = 1
	c, _ := newTestCache(t, cfg, srcs)

	w10 := getPreloaded(t, c, "A", "10")
	w11 := getPreloaded(t, c, "A", "11")
	w12 := getPreloaded(t, c, "A", "12")
	w13 := getPreloaded(t, c, "A", "13")

	// Distance 2 from frame 12, safe to remove: only frame 10 goes.
	c.EvictDistant(w12)
	test.That(t, w10.Destroyed(), test.ShouldBeTrue)
	test.That(t, w11.Destroyed(), test.ShouldBeFalse)
	test.That(t, w13.Destroyed(), test.ShouldBeFalse)
	test.That(t, c.Size(), test.ShouldEqual, 3)

	_, ok := c.World("A", "10")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestEvictDistantSafety(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	cfg := DefaultConfig()
	cfg.EvictionWindow = 1
	c, _ := newTestCache(t, cfg, srcs)

	w10 := getPreloaded(t, c, "A", "10")
	w12 := getPreloaded(t, c, "A", "12")

	// Unsaved annotation edits protect a world regardless of distance.
	w10.SetAnnotations([]scene.AnnotationItem{{ObjID: "1", ObjType: "Car"}})
	c.EvictDistant(w12)
	test.That(t, w10.Destroyed(), test.ShouldBeFalse)

	w10.MarkSaved()
	c.EvictDistant(w12)
	test.That(t, w10.Destroyed(), test.ShouldBeTrue)
}

func TestEvictDistantSkipsHalfLoaded(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	c, _ := newTestCache(t, Config{MaxWorlds: 4, EvictionWindow: 1, EnablePreload: true}, srcs)

	w12 := getPreloaded(t, c, "A", "12")

	// Gate a distant world's loads so it stays half-loaded.
	srcs.pointsGate = make(chan struct{})
	w05, err := c.GetWorld(context.Background(), "A", "05", nil)
	test.That(t, err, test.ShouldBeNil)

	c.EvictDistant(w12)
	test.That(t, w05.Destroyed(), test.ShouldBeFalse)
	test.That(t, c.Size(), test.ShouldEqual, 2)
	close(srcs.pointsGate)
}

func TestEvictDistantSkipsActive(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	cfg := DefaultConfig()
	cfg.EvictionWindow = 1
	c, _ := newTestCache(t, cfg, srcs)

	w05 := getPreloaded(t, c, "A", "05")
	w12 := getPreloaded(t, c, "A", "12")
	setActiveWait(t, c, w05)

	// The attached world survives even though it is far outside the window.
	c.EvictDistant(w12)
	test.That(t, w05.Destroyed(), test.ShouldBeFalse)
	test.That(t, w05.Attached(), test.ShouldBeTrue)
}

func TestPurgeOtherScenes(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{
		"A": testMeta("A", 5, "00", "01"),
		"B": testMeta("B", 5),
	}}
	c, _ := newTestCache(t, DefaultConfig(), srcs)

	a0 := getPreloaded(t, c, "A", "00")
	a1 := getPreloaded(t, c, "A", "01")
	b0 := getPreloaded(t, c, "B", "00")
	test.That(t, c.ReferencePose("A"), test.ShouldNotBeNil)

	c.PurgeOtherScenes("B")
	test.That(t, a0.Destroyed(), test.ShouldBeTrue)
	test.That(t, a1.Destroyed(), test.ShouldBeTrue)
	test.That(t, b0.Destroyed(), test.ShouldBeFalse)
	test.That(t, c.Size(), test.ShouldEqual, 1)

	// Scene A's reference pose is gone with its last world.
	test.That(t, c.ReferencePose("A"), test.ShouldBeNil)

	// Purging the remaining scene empties the cache entirely; the
	// allocator resets and the next world lands on the origin cell.
	c.PurgeOtherScenes("C")
	test.That(t, c.Size(), test.ShouldEqual, 0)
	fresh := getPreloaded(t, c, "A", "02")
	test.That(t, fresh.Offset(), test.ShouldResemble, Cell{})
}

func TestPreloadWindow(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	c, _ := newTestCache(t, Config{MaxWorlds: 5, EvictionWindow: 2, EnablePreload: true}, srcs)

	w := getPreloaded(t, c, "A", "10")
	test.That(t, c.PreloadWindow(context.Background(), "A", w), test.ShouldBeNil)

	// Budget 5 centered on index 10: frames 08..12.
	test.That(t, c.Size(), test.ShouldEqual, 5)
	for _, frame := range []string{"08", "09", "10", "11", "12"} {
		_, ok := c.World("A", frame)
		test.That(t, ok, test.ShouldBeTrue)
	}
}

func TestPreloadWindowClamped(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 4)}}
	c, _ := newTestCache(t, Config{MaxWorlds: 5, EvictionWindow: 2, EnablePreload: true}, srcs)

	// Near the end of a short scene the window clamps to the valid range.
	w := getPreloaded(t, c, "A", "03")
	test.That(t, c.PreloadWindow(context.Background(), "A", w), test.ShouldBeNil)
	test.That(t, c.Size(), test.ShouldEqual, 4)
}

func TestPreloadWindowDisabled(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 20)}}
	c, _ := newTestCache(t, Config{MaxWorlds: 5, EvictionWindow: 2, EnablePreload: false}, srcs)

	w := getPreloaded(t, c, "A", "10")
	test.That(t, c.PreloadWindow(context.Background(), "A", w), test.ShouldBeNil)
	test.That(t, c.Size(), test.ShouldEqual, 1)
}

func TestCacheConfigValidation(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{}}
	render := &fakeRender{}

	logger := golog.NewTestLogger(t)

	_, err := NewCache(Config{MaxWorlds: 0}, srcs.sources(), render, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_worlds")

	_, err = NewCache(Config{MaxWorlds: 3, CoordinateMode: "warp"}, srcs.sources(), render, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewCache(DefaultConfig(), Sources{}, render, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCacheClosedRejectsCreation(t *testing.T) {
	srcs := &fakeSources{meta: map[string]*scene.SceneMetadata{"A": testMeta("A", 5)}}
	render := &fakeRender{}
	c, err := NewCache(DefaultConfig(), srcs.sources(), render, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_ = getPreloaded(t, c, "A", "00")
	test.That(t, c.Close(context.Background()), test.ShouldBeNil)
	test.That(t, c.Size(), test.ShouldEqual, 0)

	_, err = c.GetWorld(context.Background(), "A", "01", nil)
	test.That(t, err, test.ShouldNotBeNil)

	// Close is idempotent.
	test.That(t, c.Close(context.Background()), test.ShouldBeNil)
}
