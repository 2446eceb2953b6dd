package musicbrainz

import (
	"context"
	"testing"
	"time"
)

type mockCache struct {
	data map[string][]byte
}

func (m *mockCache) GetCache(key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *mockCache) SetCache(key string, data []byte, ttl time.Duration) error {
	m.data[key] = data
	return nil
}

type countingLookup struct {
	calls int
	meta  *RecordingMetadata
}

func (c *countingLookup) SearchRecording(ctx context.Context, title, artist, album string) (*RecordingMetadata, error) {
	c.calls++
	return c.meta, nil
}

func TestCachedClient_SearchRecording_Hit(t *testing.T) {
	cache := &mockCache{data: make(map[string][]byte)}
	inner := &countingLookup{meta: &RecordingMetadata{RecordingID: "rec-1", Album: "Help!"}}
	cc := NewCachedClient(inner, cache, time.Hour)

	for i := 0; i < 2; i++ {
		meta, err := cc.SearchRecording(context.Background(), "Yesterday", "The Beatles", "")
		if err != nil {
			t.Fatalf("SearchRecording failed: %v", err)
		}
		if meta == nil || meta.Album != "Help!" {
			t.Errorf("Expected cached album, got %+v", meta)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls)
	}
}

func TestCachedClient_SearchRecording_RemembersMiss(t *testing.T) {
	cache := &mockCache{data: make(map[string][]byte)}
	inner := &countingLookup{}
	cc := NewCachedClient(inner, cache, time.Hour)

	for i := 0; i < 3; i++ {
		meta, err := cc.SearchRecording(context.Background(), "Unknown", "Nobody", "")
		if err != nil {
			t.Fatalf("SearchRecording failed: %v", err)
		}
		if meta != nil {
			t.Errorf("Expected a miss, got %+v", meta)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls)
	}
}

func TestCachedClient_KeyIsNormalized(t *testing.T) {
	cache := &mockCache{data: make(map[string][]byte)}
	inner := &countingLookup{meta: &RecordingMetadata{RecordingID: "rec-1"}}
	cc := NewCachedClient(inner, cache, time.Hour)

	_, _ = cc.SearchRecording(context.Background(), "Yesterday", "The Beatles", "")
	_, _ = cc.SearchRecording(context.Background(), "YESTERDAY (Remastered 2009)", "the beatles", "")
	if inner.calls != 1 {
		t.Errorf("Expected normalized keys to share a cache entry, got %d calls", inner.calls)
	}
}
