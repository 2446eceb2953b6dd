// Package tagging reads the metadata the library index needs from audio files.
package tagging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/storage"
)

// ErrUnsupported is returned for formats whose tags are not read.
var ErrUnsupported = errors.New("unsupported tag format")

// Tags is the subset of file metadata used for indexing and organizing.
type Tags struct {
	Title       string
	Artist      string
	Artists     []string
	AlbumArtist string
	Album       string
	TrackNumber int
	Year        string
	HasArtwork  bool
}

// Complete reports whether the tags identify a track on their own.
func (t *Tags) Complete() bool {
	return t != nil && strings.TrimSpace(t.Title) != "" && strings.TrimSpace(t.Artist) != ""
}

// ReadTags reads embedded tags from an mp3 or flac file.
func ReadTags(path string) (*Tags, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtMP3:
		return readMP3(path)
	case constants.ExtFLAC:
		return readFLAC(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

// ReadOrInfer returns embedded tags, filling anything missing from the
// Artist/Album/NN - Title layout of rel. It never fails.
func ReadOrInfer(path, rel string) *Tags {
	inferred := FromPath(rel)
	tags, err := ReadTags(path)
	if err != nil || tags == nil {
		return inferred
	}
	if tags.Title == "" {
		tags.Title = inferred.Title
	}
	if tags.Artist == "" {
		tags.Artist = inferred.Artist
		tags.Artists = inferred.Artists
	}
	if tags.Album == "" {
		tags.Album = inferred.Album
	}
	if tags.TrackNumber == 0 {
		tags.TrackNumber = inferred.TrackNumber
	}
	return tags
}

// FromPath infers tags from a library-relative path laid out as
// Artist/Album/NN - Title.ext. Shallower layouts fill what they can, and
// "Artist - Title.ext" filenames are understood too.
func FromPath(rel string) *Tags {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	base := strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(rel))

	tags := &Tags{}
	switch {
	case len(parts) >= 3:
		tags.Artist = parts[len(parts)-3]
		tags.Album = parts[len(parts)-2]
	case len(parts) == 2:
		tags.Artist = parts[0]
	}

	if num, rest, ok := strings.Cut(base, " - "); ok {
		if n := storage.SafeAtoi(strings.TrimSpace(num)); n > 0 {
			tags.TrackNumber = n
			base = rest
		} else if tags.Artist == "" {
			tags.Artist = strings.TrimSpace(num)
			base = rest
		}
	}
	tags.Title = strings.TrimSpace(base)
	if tags.Artist != "" {
		tags.Artists = []string{tags.Artist}
	}
	return tags
}

func readMP3(path string) (*Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 tags: %w", err)
	}
	defer tag.Close()

	tags := &Tags{
		Title:  strings.TrimSpace(tag.Title()),
		Artist: strings.TrimSpace(tag.Artist()),
		Album:  strings.TrimSpace(tag.Album()),
		Year:   strings.TrimSpace(tag.Year()),
	}
	tags.AlbumArtist = textFrame(tag, "Band/Orchestra/Accompaniment")
	tags.TrackNumber = storage.SafeAtoi(textFrame(tag, "Track number/Position in set"))
	tags.Artists = splitArtists(tags.Artist)
	tags.HasArtwork = len(tag.GetFrames(tag.CommonID("Attached picture"))) > 0
	return tags, nil
}

func textFrame(tag *id3v2.Tag, description string) string {
	return strings.TrimSpace(tag.GetTextFrame(tag.CommonID(description)).Text)
}

func readFLAC(path string) (*Tags, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}
	defer fh.Close()

	f, err := flac.ParseMetadata(fh)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC metadata: %w", err)
	}

	tags := &Tags{}
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			cmts, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, fmt.Errorf("failed to parse vorbis comment: %w", err)
			}
			tags.Title = firstComment(cmts, flacvorbis.FIELD_TITLE)
			tags.Album = firstComment(cmts, flacvorbis.FIELD_ALBUM)
			tags.Year = firstComment(cmts, flacvorbis.FIELD_DATE)
			tags.AlbumArtist = firstComment(cmts, "ALBUMARTIST")
			tags.TrackNumber = storage.SafeAtoi(firstComment(cmts, flacvorbis.FIELD_TRACKNUMBER))
			if artists, _ := cmts.Get(flacvorbis.FIELD_ARTIST); len(artists) > 0 {
				tags.Artist = strings.TrimSpace(artists[0])
				if len(artists) > 1 {
					tags.Artists = trimAll(artists)
				} else {
					tags.Artists = splitArtists(tags.Artist)
				}
			}
		case flac.Picture:
			if pic, err := flacpicture.ParseFromMetaDataBlock(*block); err == nil && len(pic.ImageData) > 0 {
				tags.HasArtwork = true
			}
		}
	}
	return tags, nil
}

func firstComment(cmts *flacvorbis.MetaDataBlockVorbisComment, field string) string {
	values, err := cmts.Get(field)
	if err != nil || len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// splitArtists splits a joined artist credit ("A; B") into names. Slashes
// are left alone so names like AC/DC survive.
func splitArtists(artist string) []string {
	if artist == "" {
		return nil
	}
	fields := strings.FieldsFunc(artist, func(r rune) bool {
		return r == ';' || r == '\x00'
	})
	return trimAll(fields)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
