package framecache

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/windzu/NextPoints/pointcloud"
	"github.com/windzu/NextPoints/scene"
)

// facet identifies one of a world's four independent loads.
type facet int

const (
	facetPoints facet = iota
	facetAnnotations
	facetImages
	facetPose
	numFacets
)

// World is one cached, positioned, lifecycle-managed instance of a single
// (scene, frame) pair. Construction kicks off the four facet loads and
// returns immediately; the aggregate-completion check fires the preload
// transition exactly once, the first time all four have settled, in whatever
// order their callbacks arrive.
type World struct {
	cache     *Cache
	desc      *scene.Descriptor
	offset    Cell
	createdAt time.Time
	logger    golog.Logger

	onPreloaded func(*World)

	mu      sync.Mutex
	settled [numFacets]bool
	// preloaded and everythingDone flip together at the aggregate
	// transition: preloaded marks the four facets settled, everythingDone
	// marks the world fully assembled (transforms computed) and therefore
	// safe to evict.
	preloaded      bool
	everythingDone bool
	wantActive     bool
	attached       bool
	destroyed      bool

	onPriorDetached func()
	onActivated     func()

	pc          pointcloud.PointCloud
	pcErr       error
	annotations []scene.AnnotationItem
	annErr      error
	annDirty    bool
	images      map[string]image.Image
	pose        *scene.Pose

	transforms *FrameTransforms
}

func newWorld(c *Cache, desc *scene.Descriptor, offset Cell, onPreloaded func(*World)) *World {
	return &World{
		cache:       c,
		desc:        desc,
		offset:      offset,
		createdAt:   c.clock.Now(),
		logger:      c.logger,
		onPreloaded: onPreloaded,
	}
}

// startLoads launches the four facet loads. Fetch failures never propagate:
// each facet settles regardless, so the aggregate check can always resolve.
func (w *World) startLoads(ctx context.Context) {
	w.cache.activeBackgroundWorkers.Add(4)

	goutils.PanicCapturingGo(func() {
		defer w.cache.activeBackgroundWorkers.Done()
		pc, err := w.cache.sources.PointClouds.FetchPointCloud(ctx, w.desc)
		if err != nil {
			w.logger.Errorw("point cloud load failed",
				"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
		}
		w.settle(facetPoints, func(w *World) { w.pc, w.pcErr = pc, err })
	})

	goutils.PanicCapturingGo(func() {
		defer w.cache.activeBackgroundWorkers.Done()
		items, err := w.cache.sources.Annotations.FetchAnnotations(ctx, w.desc)
		if err != nil {
			w.logger.Errorw("annotation load failed",
				"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
		}
		w.settle(facetAnnotations, func(w *World) { w.annotations, w.annErr = items, err })
	})

	goutils.PanicCapturingGo(func() {
		defer w.cache.activeBackgroundWorkers.Done()
		images, err := w.cache.sources.Images.FetchImages(ctx, w.desc)
		if err != nil {
			// Missing cameras are a tolerated degradation.
			w.logger.Warnw("image load incomplete",
				"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
		}
		w.settle(facetImages, func(w *World) { w.images = images })
	})

	goutils.PanicCapturingGo(func() {
		defer w.cache.activeBackgroundWorkers.Done()
		pose, err := w.cache.sources.Poses.FetchPose(ctx, w.desc)
		if err != nil {
			// No pose means placement degrades to offset-only.
			w.logger.Debugw("pose unavailable",
				"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
			pose = nil
		}
		w.settle(facetPose, func(w *World) { w.pose = pose })
	})
}

// settle records one facet's completion and runs the aggregate check. The
// preload transition (transform computation plus the onPreloaded
// notification) fires exactly once; invoking the check again after all four
// facets are settled is a no-op. A destroyed world discards the payload.
func (w *World) settle(f facet, apply func(*World)) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	apply(w)
	w.settled[f] = true

	fire := !w.preloaded && w.allSettledLocked()
	if fire {
		w.preloaded = true
		ref := w.cache.referencePoseFor(w.desc.SceneName(), w.pose)
		w.transforms = computeFrameTransforms(w.pose, ref, w.offset.Vector(), w.cache.cfg.CoordinateMode)
		w.everythingDone = true
	}
	onPreloaded := w.onPreloaded
	w.mu.Unlock()

	if fire {
		if onPreloaded != nil {
			onPreloaded(w)
		}
		w.Go()
	}
}

func (w *World) allSettledLocked() bool {
	for _, s := range w.settled {
		if !s {
			return false
		}
	}
	return true
}

// Activate marks the world as the desired visible one. If it has already
// preloaded, attachment is attempted immediately; otherwise Go runs as soon
// as preloading finishes. onPriorDetached, when supplied, runs before
// attachment so a caller coordinating single-slot semantics can clear the
// slot first. On a destroyed world the attachment is skipped and any
// requested detachment still runs.
func (w *World) Activate(onPriorDetached, onActivated func()) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		if onPriorDetached != nil {
			onPriorDetached()
		}
		return
	}
	w.wantActive = true
	w.onPriorDetached = onPriorDetached
	w.onActivated = onActivated
	ready := w.preloaded
	w.mu.Unlock()

	if ready {
		w.Go()
	}
}

// Go attaches the world's geometry to the shared render space, provided the
// world has preloaded, is wanted active and has not been destroyed in the
// interim. A world already occupying the slot confirms without re-attaching.
// It is the cooperative cancellation point: every completion path funnels
// through here and checks the destroyed flag before touching the render
// space.
func (w *World) Go() {
	w.mu.Lock()
	if w.destroyed {
		onPrior := w.onPriorDetached
		w.onPriorDetached, w.onActivated = nil, nil
		w.mu.Unlock()
		if onPrior != nil {
			onPrior()
		}
		w.Unload()
		return
	}
	if !w.preloaded || !w.wantActive {
		w.mu.Unlock()
		return
	}
	if w.attached {
		// Re-selecting the world already in the render slot: nothing to
		// attach, but the caller still gets its confirmation.
		onActivated := w.onActivated
		w.onPriorDetached, w.onActivated = nil, nil
		w.mu.Unlock()
		if onActivated != nil {
			onActivated()
		}
		return
	}
	onPrior := w.onPriorDetached
	onActivated := w.onActivated
	w.onPriorDetached, w.onActivated = nil, nil
	w.attached = true
	w.mu.Unlock()

	if onPrior != nil {
		onPrior()
	}
	if err := w.cache.render.Attach(w); err != nil {
		w.logger.Errorw("render attach failed",
			"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
		w.mu.Lock()
		w.attached = false
		w.mu.Unlock()
	}
	if onActivated != nil {
		onActivated()
	}
}

// Unload detaches the world's geometry from the render space if currently
// attached. It is idempotent and keeps the loaded facets, so the world can
// be reactivated.
func (w *World) Unload() {
	w.mu.Lock()
	w.wantActive = false
	if !w.attached {
		w.mu.Unlock()
		return
	}
	w.attached = false
	w.mu.Unlock()

	if err := w.cache.render.Detach(w); err != nil {
		w.logger.Errorw("render detach failed",
			"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
	}
}

// DeleteAll is terminal: it detaches the world if attached, releases all
// facet resources and marks the world destroyed. A destroyed world cannot be
// reactivated; a fresh one must be created for the same (scene, frame).
// Calling it again is a logged no-op.
func (w *World) DeleteAll() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		w.logger.Debugw("deleteAll on destroyed world",
			"scene", w.desc.SceneName(), "frame", w.desc.FrameID())
		return
	}
	w.destroyed = true
	wasAttached := w.attached
	w.attached = false
	w.wantActive = false
	w.onPriorDetached, w.onActivated = nil, nil
	w.pc = nil
	w.annotations = nil
	w.images = nil
	w.pose = nil
	w.transforms = nil
	w.mu.Unlock()

	if wasAttached {
		if err := w.cache.render.Detach(w); err != nil {
			w.logger.Errorw("render detach failed",
				"scene", w.desc.SceneName(), "frame", w.desc.FrameID(), "error", err)
		}
	}
}

// Preloaded reports whether all four facet loads have settled.
func (w *World) Preloaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.preloaded
}

// EverythingDone reports whether the world is fully assembled: facets
// settled and transforms computed.
func (w *World) EverythingDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.everythingDone
}

// Attached reports whether the world's geometry currently lives in the
// render space.
func (w *World) Attached() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attached
}

// Destroyed reports whether DeleteAll has run.
func (w *World) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// LoadErr reports required-facet load failures (points, annotations). A
// world with a non-nil LoadErr still preloads, but the caller should show an
// error indicator instead of silently rendering an empty frame.
func (w *World) LoadErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return multierr.Combine(w.pcErr, w.annErr)
}

// Descriptor returns the world's frame descriptor.
func (w *World) Descriptor() *scene.Descriptor {
	return w.desc
}

// Offset returns the world's assigned placement cell.
func (w *World) Offset() Cell {
	return w.offset
}

// CreatedAt returns when the world was created.
func (w *World) CreatedAt() time.Time {
	return w.createdAt
}

// PointCloud returns the loaded point payload, nil until the facet settles.
func (w *World) PointCloud() pointcloud.PointCloud {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pc
}

// Pose returns the loaded vehicle pose, nil when absent.
func (w *World) Pose() *scene.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// Images returns the loaded camera images, possibly partial.
func (w *World) Images() map[string]image.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.images
}

// Annotations returns the world's current annotations.
func (w *World) Annotations() []scene.AnnotationItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.annotations
}

// SetAnnotations replaces the world's annotations with edited ones and marks
// them unsaved, which protects the world from eviction until MarkSaved.
func (w *World) SetAnnotations(items []scene.AnnotationItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	w.annotations = items
	w.annDirty = true
}

// MarkSaved clears the unsaved-edits flag after a successful save.
func (w *World) MarkSaved() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.annDirty = false
}

// Modified reports whether the world holds unsaved annotation edits.
func (w *World) Modified() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.annDirty
}

// safeToEvict is the eviction-safety predicate: the world must be fully
// assembled and hold no unsaved edits. Half-loaded or mid-transition worlds
// are never evicted.
func (w *World) safeToEvict() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.everythingDone && !w.annDirty
}
