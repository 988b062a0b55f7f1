package scene

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrMetadataUnavailable is returned when a scene's metadata cannot be
// fetched. No cache entry can be created for the scene until a later fetch
// succeeds.
var ErrMetadataUnavailable = errors.New("scene metadata unavailable")

// MetadataFetcher fetches the metadata of one scene by name.
type MetadataFetcher interface {
	FetchSceneMetadata(ctx context.Context, sceneName string) (*SceneMetadata, error)
}

// MetadataService lazily fetches scene metadata and caches it for the life of
// the service. Concurrent first requests for the same scene are coalesced so
// the backend sees a single fetch.
type MetadataService struct {
	fetcher MetadataFetcher
	logger  golog.Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*SceneMetadata
}

// NewMetadataService wraps a fetcher with the per-scene cache.
func NewMetadataService(fetcher MetadataFetcher, logger golog.Logger) *MetadataService {
	return &MetadataService{
		fetcher: fetcher,
		logger:  logger,
		cache:   map[string]*SceneMetadata{},
	}
}

// Scene returns the metadata for sceneName, fetching it on first use. Fetch
// failures are not cached; the next call retries.
func (s *MetadataService) Scene(ctx context.Context, sceneName string) (*SceneMetadata, error) {
	s.mu.Lock()
	if meta, ok := s.cache[sceneName]; ok {
		s.mu.Unlock()
		return meta, nil
	}
	s.mu.Unlock()

	result, err, _ := s.group.Do(sceneName, func() (interface{}, error) {
		meta, err := s.fetcher.FetchSceneMetadata(ctx, sceneName)
		if err != nil {
			return nil, err
		}
		if meta == nil || len(meta.Frames) == 0 {
			return nil, errors.New("scene has no frames")
		}
		s.mu.Lock()
		s.cache[sceneName] = meta
		s.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		s.logger.Warnw("scene metadata fetch failed", "scene", sceneName, "error", err)
		return nil, errors.Wrapf(ErrMetadataUnavailable, "scene %q: %v", sceneName, err)
	}
	return result.(*SceneMetadata), nil
}
