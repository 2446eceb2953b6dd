package musicbrainz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/normalize"
)

var _ Lookup = (*Client)(nil)
var _ Lookup = (*CachedClient)(nil)

type Cache interface {
	GetCache(key string) ([]byte, error)
	SetCache(key string, data []byte, ttl time.Duration) error
}

// CachedClient remembers lookups, misses included.
type CachedClient struct {
	client Lookup
	cache  Cache
	ttl    time.Duration
}

func NewCachedClient(client Lookup, cache Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  cache,
		ttl:    ttl,
	}
}

type cachedMetadata struct {
	Metadata *RecordingMetadata `json:"metadata"`
	NotFound bool               `json:"not_found"`
}

func (c *CachedClient) SearchRecording(ctx context.Context, title, artist, album string) (*RecordingMetadata, error) {
	nt, na := normalize.Key(title, artist)
	cacheKey := "mb:recording:" + nt + "|" + na + "|" + normalize.Text(album)

	data, err := c.cache.GetCache(cacheKey)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var cached cachedMetadata
		if unmarshalErr := json.Unmarshal(data, &cached); unmarshalErr == nil {
			return cached.Metadata, nil
		}
	}

	meta, err := c.client.SearchRecording(ctx, title, artist, album)
	if err != nil {
		return nil, err
	}

	cached := cachedMetadata{Metadata: meta, NotFound: meta == nil}
	if data, marshalErr := json.Marshal(cached); marshalErr == nil {
		_ = c.cache.SetCache(cacheKey, data, c.ttl)
	}
	return meta, nil
}
