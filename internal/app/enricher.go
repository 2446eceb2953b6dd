package app

import (
	"context"
	"strconv"

	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/musicbrainz"
	"github.com/cesargomez89/trackreconciler/internal/tagging"
)

// MetadataEnricher fills album-level gaps in a downloaded file's tags from
// MusicBrainz before the organizer picks a library path.
type MetadataEnricher struct {
	mbClient musicbrainz.Lookup
	logger   *logger.Logger
}

func NewMetadataEnricher(mbClient musicbrainz.Lookup, log *logger.Logger) *MetadataEnricher {
	return &MetadataEnricher{
		mbClient: mbClient,
		logger:   log.WithComponent("enricher"),
	}
}

// FillTags only writes fields that are empty. Lookup failures are returned
// for the caller to log; tags are left as they were.
func (e *MetadataEnricher) FillTags(ctx context.Context, tags *tagging.Tags) error {
	if tags == nil || !tags.Complete() {
		return nil
	}
	if tags.Album != "" && tags.TrackNumber > 0 && tags.Year != "" {
		return nil
	}

	meta, err := e.mbClient.SearchRecording(ctx, tags.Title, tags.Artist, tags.Album)
	if err != nil {
		return err
	}
	if meta == nil {
		e.logger.Debug("No MusicBrainz recording", "title", tags.Title, "artist", tags.Artist)
		return nil
	}

	albumWasEmpty := tags.Album == ""
	if albumWasEmpty && meta.Album != "" {
		tags.Album = meta.Album
	}
	if tags.AlbumArtist == "" && meta.AlbumArtist != "" {
		tags.AlbumArtist = meta.AlbumArtist
	}
	if tags.Year == "" && meta.Year > 0 {
		tags.Year = strconv.Itoa(meta.Year)
	}
	// A track number only means something on the release it came from.
	if tags.TrackNumber == 0 && meta.TrackNumber > 0 && (albumWasEmpty || tags.Album == meta.Album) {
		tags.TrackNumber = meta.TrackNumber
	}
	return nil
}
