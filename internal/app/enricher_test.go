package app

import (
	"context"
	"errors"
	"testing"

	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/musicbrainz"
	"github.com/cesargomez89/trackreconciler/internal/tagging"
)

type mockLookup struct {
	meta  *musicbrainz.RecordingMetadata
	err   error
	calls int
}

func (m *mockLookup) SearchRecording(ctx context.Context, title, artist, album string) (*musicbrainz.RecordingMetadata, error) {
	m.calls++
	return m.meta, m.err
}

func help() *musicbrainz.RecordingMetadata {
	return &musicbrainz.RecordingMetadata{
		RecordingID: "rec-1",
		Title:       "Yesterday",
		Artist:      "The Beatles",
		Album:       "Help!",
		AlbumArtist: "The Beatles",
		Year:        1965,
		TrackNumber: 13,
	}
}

func TestMetadataEnricher_FillsGaps(t *testing.T) {
	e := NewMetadataEnricher(&mockLookup{meta: help()}, logger.Discard())
	tags := &tagging.Tags{Title: "Yesterday", Artist: "The Beatles"}

	if err := e.FillTags(context.Background(), tags); err != nil {
		t.Fatalf("FillTags failed: %v", err)
	}
	if tags.Album != "Help!" {
		t.Errorf("Expected album Help!, got %s", tags.Album)
	}
	if tags.Year != "1965" {
		t.Errorf("Expected year 1965, got %s", tags.Year)
	}
	if tags.TrackNumber != 13 {
		t.Errorf("Expected track 13, got %d", tags.TrackNumber)
	}
	if tags.AlbumArtist != "The Beatles" {
		t.Errorf("Expected album artist, got %s", tags.AlbumArtist)
	}
}

func TestMetadataEnricher_KeepsExistingTags(t *testing.T) {
	e := NewMetadataEnricher(&mockLookup{meta: help()}, logger.Discard())
	tags := &tagging.Tags{Title: "Yesterday", Artist: "The Beatles", Album: "1"}

	if err := e.FillTags(context.Background(), tags); err != nil {
		t.Fatalf("FillTags failed: %v", err)
	}
	if tags.Album != "1" {
		t.Errorf("Expected album to be kept, got %s", tags.Album)
	}
	if tags.TrackNumber != 0 {
		t.Errorf("Expected no track number from another release, got %d", tags.TrackNumber)
	}
	if tags.Year != "1965" {
		t.Errorf("Expected year 1965, got %s", tags.Year)
	}
}

func TestMetadataEnricher_SkipsCompleteAndAnonymous(t *testing.T) {
	lookup := &mockLookup{meta: help()}
	e := NewMetadataEnricher(lookup, logger.Discard())

	full := &tagging.Tags{Title: "Yesterday", Artist: "The Beatles", Album: "Help!", TrackNumber: 13, Year: "1965"}
	if err := e.FillTags(context.Background(), full); err != nil {
		t.Fatalf("FillTags failed: %v", err)
	}
	if err := e.FillTags(context.Background(), &tagging.Tags{Title: "Untitled"}); err != nil {
		t.Fatalf("FillTags failed: %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("Expected no lookups, got %d", lookup.calls)
	}
}

func TestMetadataEnricher_LookupError(t *testing.T) {
	e := NewMetadataEnricher(&mockLookup{err: errors.New("boom")}, logger.Discard())
	tags := &tagging.Tags{Title: "Yesterday", Artist: "The Beatles"}

	if err := e.FillTags(context.Background(), tags); err == nil {
		t.Error("Expected lookup error")
	}
	if tags.Album != "" {
		t.Errorf("Expected tags untouched, got album %s", tags.Album)
	}
}
