package framecache

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/windzu/NextPoints/scene"
	"github.com/windzu/NextPoints/spatialmath"
)

type worldKey struct {
	scene string
	frame string
}

// Cache owns the collection of worlds across scenes: it allocates their
// offset cells, holds each scene's reference pose, decides which world
// occupies the shared render slot, and enforces the eviction, purge and
// look-ahead policies. All of that shared state is instance state with a
// defined construction/teardown lifecycle, so independent caches (e.g. in
// tests) cannot cross-contaminate.
type Cache struct {
	logger   golog.Logger
	cfg      Config
	clock    clock.Clock
	sources  Sources
	render   RenderSpace
	metadata *scene.MetadataService

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup

	mu     sync.Mutex
	worlds map[worldKey]*World
	alloc  *offsetAllocator
	active *World
	closed bool

	refMu    sync.Mutex
	refPoses map[string]*spatialmath.Pose
}

// NewCache validates the config and collaborators and returns an empty
// cache.
func NewCache(cfg Config, sources Sources, render RenderSpace, logger golog.Logger) (*Cache, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if cfg.CoordinateMode == "" {
		cfg.CoordinateMode = ModeRelative
	}
	if err := sources.Validate(); err != nil {
		return nil, err
	}
	if render == nil {
		return nil, errors.New("render space is required")
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Cache{
		logger:    logger,
		cfg:       cfg,
		clock:     clock.New(),
		sources:   sources,
		render:    render,
		metadata:  scene.NewMetadataService(sources.Metadata, logger),
		cancelCtx: cancelCtx,
		cancel:    cancel,
		worlds:    map[worldKey]*World{},
		alloc:     newOffsetAllocator(),
		refPoses:  map[string]*spatialmath.Pose{},
	}, nil
}

// GetWorld returns the live world for (sceneName, frameID), creating it on
// cache miss: the scene's metadata is fetched (or served from the per-scene
// cache), an offset cell is allocated and the four facet loads start. The
// onPreloaded callback fires once the new world preloads; for an existing
// world it is not re-invoked. Metadata failure creates nothing.
func (c *Cache) GetWorld(ctx context.Context, sceneName, frameID string, onPreloaded func(*World)) (*World, error) {
	meta, err := c.metadata.Scene(ctx, sceneName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("cache closed")
	}
	key := worldKey{scene: sceneName, frame: frameID}
	if w, ok := c.worlds[key]; ok {
		c.mu.Unlock()
		return w, nil
	}
	desc, err := scene.NewDescriptor(meta, frameID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	w := newWorld(c, desc, c.alloc.allocate(), onPreloaded)
	c.worlds[key] = w
	c.mu.Unlock()

	w.startLoads(c.cancelCtx)
	return w, nil
}

// World returns the live world for (sceneName, frameID) without creating
// one.
func (c *Cache) World(sceneName, frameID string) (*World, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.worlds[worldKey{scene: sceneName, frame: frameID}]
	return w, ok
}

// Size returns the number of live worlds.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.worlds)
}

// ActiveWorld returns the world currently occupying the shared render slot.
func (c *Cache) ActiveWorld() *World {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetActive makes w the world occupying the shared render slot. The new
// world attaches first; only once its activation is confirmed is the
// manager's pointer swapped and the previously active world asked to
// unload, so there is never an empty-frame flash and the pointer never
// references a half-initialized world. With keepPriorAttached the prior
// world stays attached.
func (c *Cache) SetActive(w *World, onActivated func(), keepPriorAttached bool) {
	w.Activate(nil, func() {
		c.mu.Lock()
		prior := c.active
		c.active = w
		c.mu.Unlock()

		if !keepPriorAttached && prior != nil && prior != w {
			prior.Unload()
		}
		if onActivated != nil {
			onActivated()
		}
	})
}

// EvictDistant destroys worlds of the current scene whose frame index is
// further than the configured window from current's, provided they are safe
// to remove: fully assembled, no unsaved edits, and neither the current nor
// the active world. Each eviction releases the world's offset cell.
func (c *Cache) EvictDistant(current *World) {
	if current == nil {
		return
	}
	currentScene := current.desc.SceneName()
	currentIndex := current.desc.FrameIndex()

	c.mu.Lock()
	var victims []*World
	for key, w := range c.worlds {
		if w == current || w == c.active || key.scene != currentScene {
			continue
		}
		dist := w.desc.FrameIndex() - currentIndex
		if dist < 0 {
			dist = -dist
		}
		if dist <= c.cfg.EvictionWindow || !w.safeToEvict() {
			continue
		}
		delete(c.worlds, key)
		c.alloc.release(w.offset)
		victims = append(victims, w)
	}
	if len(victims) > 0 {
		c.clearRefPoseIfOrphanLocked(currentScene)
	}
	c.mu.Unlock()

	for _, w := range victims {
		w.DeleteAll()
	}
}

// PurgeOtherScenes destroys every world not belonging to keepSceneName,
// regardless of the distance rule, releasing their offsets and clearing each
// purged scene's reference pose once its last world is gone. Used when the
// user switches scenes entirely.
func (c *Cache) PurgeOtherScenes(keepSceneName string) {
	c.mu.Lock()
	var victims []*World
	purgedScenes := map[string]struct{}{}
	for key, w := range c.worlds {
		if key.scene == keepSceneName {
			continue
		}
		delete(c.worlds, key)
		c.alloc.release(w.offset)
		purgedScenes[key.scene] = struct{}{}
		if w == c.active {
			c.active = nil
		}
		victims = append(victims, w)
	}
	for s := range purgedScenes {
		c.clearRefPoseIfOrphanLocked(s)
	}
	c.mu.Unlock()

	for _, w := range victims {
		w.DeleteAll()
	}
}

// PreloadWindow warms the cache around current: it computes an index window
// of the configured live-world budget centered on current's frame index,
// clamped to the scene's valid range, and creates any missing worlds inside
// it. It is a no-op when preloading is disabled.
func (c *Cache) PreloadWindow(ctx context.Context, sceneName string, current *World) error {
	if !c.cfg.EnablePreload {
		return nil
	}
	if current == nil {
		return errors.New("current world required")
	}
	if current.desc.SceneName() != sceneName {
		return errors.Errorf("current world belongs to scene %q, not %q",
			current.desc.SceneName(), sceneName)
	}

	meta := current.desc.Metadata()
	budget := c.cfg.MaxWorlds
	start := current.desc.FrameIndex() - budget/2
	if start < 0 {
		start = 0
	}
	end := start + budget - 1
	if end > len(meta.Frames)-1 {
		end = len(meta.Frames) - 1
		start = end - budget + 1
		if start < 0 {
			start = 0
		}
	}

	var result error
	for i := start; i <= end; i++ {
		if _, err := c.GetWorld(ctx, sceneName, meta.Frames[i], nil); err != nil {
			result = multierr.Combine(result, err)
		}
	}
	return result
}

// ReferencePose returns the scene's reference pose, nil if no frame with a
// pose has preloaded while the scene is alive in the cache.
func (c *Cache) ReferencePose(sceneName string) *spatialmath.Pose {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	return c.refPoses[sceneName]
}

// referencePoseFor returns the scene's reference pose, adopting pose as the
// reference if the scene has none yet. A nil pose never becomes the
// reference; a later frame that does have one will.
func (c *Cache) referencePoseFor(sceneName string, pose *scene.Pose) *spatialmath.Pose {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if ref, ok := c.refPoses[sceneName]; ok {
		return ref
	}
	if pose == nil {
		return nil
	}
	ref := spatialmath.NewPose(pose.Translation.Vec(), pose.Rotation.Quat())
	c.refPoses[sceneName] = ref
	return ref
}

// clearRefPoseIfOrphanLocked drops a scene's reference pose once the scene
// has no remaining worlds. Callers must hold c.mu.
func (c *Cache) clearRefPoseIfOrphanLocked(sceneName string) {
	for key := range c.worlds {
		if key.scene == sceneName {
			return
		}
	}
	c.refMu.Lock()
	delete(c.refPoses, sceneName)
	c.refMu.Unlock()
}

// Close destroys every world, cancels in-flight loads and waits for
// background workers to drain.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	victims := make([]*World, 0, len(c.worlds))
	for key, w := range c.worlds {
		delete(c.worlds, key)
		c.alloc.release(w.offset)
		victims = append(victims, w)
	}
	c.active = nil
	c.mu.Unlock()

	c.cancel()
	for _, w := range victims {
		w.DeleteAll()
	}
	c.activeBackgroundWorkers.Wait()

	c.refMu.Lock()
	c.refPoses = map[string]*spatialmath.Pose{}
	c.refMu.Unlock()
	return nil
}
