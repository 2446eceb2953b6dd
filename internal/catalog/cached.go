package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type Cache interface {
	GetCache(key string) ([]byte, error)
	SetCache(key string, data []byte, ttl time.Duration) error
	ClearCache() error
}

// CachedSource memoizes catalog searches. Downloads and polls always go
// to the wrapped source.
type CachedSource struct {
	source   Source
	cache    Cache
	cacheTTL time.Duration
}

func NewCachedSource(source Source, cache Cache, cacheTTL time.Duration) *CachedSource {
	return &CachedSource{
		source:   source,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

const searchKeyPrefix = "search:"

func searchKey(title, artist, album string) string {
	return searchKeyPrefix + normalize.Text(artist) + "|" + normalize.Text(title) + "|" + normalize.Text(album)
}

func (c *CachedSource) SearchCatalog(ctx context.Context, title, artist, album string) ([]domain.CatalogHit, error) {
	cacheKey := searchKey(title, artist, album)

	data, err := c.cache.GetCache(cacheKey)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var hits []domain.CatalogHit
		if err := json.Unmarshal(data, &hits); err == nil {
			return hits, nil
		}
	}

	hits, err := c.source.SearchCatalog(ctx, title, artist, album)
	if err != nil {
		return nil, err
	}

	// Empty results are not cached so a later retry asks the network again.
	if len(hits) > 0 {
		if data, err := json.Marshal(hits); err == nil {
			_ = c.cache.SetCache(cacheKey, data, c.cacheTTL)
		}
	}

	return hits, nil
}

func (c *CachedSource) StartDownload(ctx context.Context, externalRef, destinationHint string) (domain.JobHandle, error) {
	return c.source.StartDownload(ctx, externalRef, destinationHint)
}

func (c *CachedSource) PollJob(ctx context.Context, handle domain.JobHandle) (domain.JobPoll, error) {
	return c.source.PollJob(ctx, handle)
}

func (c *CachedSource) ClearCache() error {
	return c.cache.ClearCache()
}

var _ Source = (*CachedSource)(nil)

type storeCache struct {
	store *store.DB
}

func NewStoreCache(db *store.DB) Cache {
	return &storeCache{store: db}
}

func (s *storeCache) GetCache(key string) ([]byte, error) {
	return s.store.GetCache(key)
}

func (s *storeCache) SetCache(key string, data []byte, ttl time.Duration) error {
	return s.store.SetCache(key, data, ttl)
}

func (s *storeCache) ClearCache() error {
	return s.store.ClearCache(searchKeyPrefix)
}

var _ Cache = (*storeCache)(nil)
