// Package catalog searches an external download source for missing tracks
// and drives downloads from it.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
)

// Source is an external catalog that can also download what it finds.
type Source interface {
	// SearchCatalog returns hits ranked best first.
	SearchCatalog(ctx context.Context, title, artist, album string) ([]domain.CatalogHit, error)
	StartDownload(ctx context.Context, externalRef, destinationHint string) (domain.JobHandle, error)
	PollJob(ctx context.Context, handle domain.JobHandle) (domain.JobPoll, error)
}

var variousArtists = map[string]bool{
	"various artists": true,
	"various":         true,
	"va":              true,
	"varios artistas": true,
	"artisti vari":    true,
}

// IsVariousArtists reports whether artist is a compilation placeholder.
func IsVariousArtists(artist string) bool {
	return variousArtists[normalize.Text(artist)]
}

// Similarity is the Jaro-Winkler similarity of the normalized strings.
func Similarity(a, b string) float64 {
	na, nb := normalize.Text(a), normalize.Text(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return strutil.Similarity(na, nb, metrics.NewJaroWinkler())
}

// Validate reports whether hit is a strict match for title and artist. Both
// must reach threshold. Compilation-style artists cannot confirm a match, so
// the title alone must clear a higher bar.
func Validate(title, artist string, hit domain.CatalogHit, threshold float64) bool {
	titleScore := Similarity(title, hit.Title)
	if IsVariousArtists(hit.Artist) || IsVariousArtists(artist) {
		return titleScore >= threshold+constants.VariousArtistsBonus
	}
	return titleScore >= threshold && Similarity(artist, hit.Artist) >= threshold
}

// Rank orders hits by score, then free upload slot, then queue length.
func Rank(hits []domain.CatalogHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.FreeSlot != b.FreeSlot {
			return a.FreeSlot
		}
		return a.QueueLength < b.QueueLength
	})
}

// Query is the search text sent for a track.
func Query(title, artist string) string {
	if artist == "" {
		return title
	}
	return artist + " - " + title
}

// EncodeRef packs a peer file into an opaque external reference.
func EncodeRef(username string, size int64, filename string) string {
	return username + "|" + strconv.FormatInt(size, 10) + "|" + filename
}

// DecodeRef unpacks a reference made by EncodeRef.
func DecodeRef(ref string) (username string, size int64, filename string, err error) {
	parts := strings.SplitN(ref, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", 0, "", fmt.Errorf("invalid external reference %q", ref)
	}
	size, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid size in reference %q: %w", ref, err)
	}
	return parts[0], size, parts[2], nil
}

// remoteSegments splits a peer path, which may use either separator.
func remoteSegments(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool { return r == '\\' || r == '/' })
	return fields
}

// ParseRemote infers artist, album and title from a peer file path such as
// "Music\Artist\Album\01 - Title.flac" or "Misc\Artist - Title.mp3".
func ParseRemote(p string) (artist, album, title string) {
	segs := remoteSegments(p)
	if len(segs) == 0 {
		return "", "", ""
	}
	base := segs[len(segs)-1]
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if len(segs) >= 2 {
		album = segs[len(segs)-2]
	}
	if len(segs) >= 3 {
		artist = segs[len(segs)-3]
	}

	base = stripTrackNumber(base)
	// "Title - Remastered" is a qualifier tail, not "Artist - Title".
	if left, right, ok := strings.Cut(base, " - "); ok && normalize.Text(base) != normalize.Text(left) {
		artist = strings.TrimSpace(left)
		base = stripTrackNumber(right)
	}
	return artist, album, strings.TrimSpace(base)
}

func stripTrackNumber(s string) string {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 || i == len(s) {
		return s
	}
	sep := s[i:]
	switch {
	case strings.HasPrefix(sep, " - "), sep[0] == '.', sep[0] == '-', sep[0] == '_':
	case sep[0] == ' ' && s[0] == '0':
	default:
		// "99 Luftballons" keeps its digits.
		return s
	}
	return strings.TrimLeft(sep, " .-_")
}
