// Package musicbrainz looks up release metadata used to fill gaps in the
// tags of downloaded files before they are filed into the library.
package musicbrainz

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/httpclient"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
)

const (
	DefaultBaseURL     = "https://musicbrainz.org/ws/2"
	DefaultUserAgent   = "trackreconciler/1.0 (https://github.com/cesargomez89/trackreconciler)"
	minRequestInterval = 1050 * time.Millisecond
)

// Lookup finds the best recording for a title and artist. A nil result with
// a nil error means nothing matched.
type Lookup interface {
	SearchRecording(ctx context.Context, title, artist, album string) (*RecordingMetadata, error)
}

type Client struct {
	http      *httpclient.Client
	baseURL   string
	userAgent string
}

// NewClient builds a client limited to one request per second. A nil
// client uses the default transport.
func NewClient(baseURL string, client *httpclient.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.NewClient(nil, minRequestInterval)
	}
	return &Client{
		http:      client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: DefaultUserAgent,
	}
}

func (c *Client) SearchRecording(ctx context.Context, title, artist, album string) (*RecordingMetadata, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`recording:"%s" AND artist:"%s"`, escapeLucene(title), escapeLucene(artist))
	u := fmt.Sprintf("%s/recording?query=%s&fmt=json&limit=5", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	var result searchResponse
	if err := c.http.DoJSON(ctx, req, &result); err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}

	rec := pickRecording(result.Recordings, title, artist)
	if rec == nil {
		return nil, nil
	}
	return toMetadata(rec, album), nil
}

// pickRecording returns the first recording whose normalized title and
// primary artist both agree with the query.
func pickRecording(recs []recording, title, artist string) *recording {
	nt, na := normalize.Key(title, artist)
	for i := range recs {
		r := &recs[i]
		if normalize.Text(r.Title) != nt || len(r.ArtistCredit) == 0 {
			continue
		}
		if normalize.Text(r.ArtistCredit[0].Artist.Name) == na || normalize.Text(r.ArtistCredit[0].Name) == na {
			return r
		}
	}
	return nil
}

func toMetadata(rec *recording, album string) *RecordingMetadata {
	meta := &RecordingMetadata{
		RecordingID: rec.ID,
		Title:       rec.Title,
		Duration:    rec.Length / 1000,
	}
	if len(rec.ArtistCredit) > 0 {
		meta.Artist = rec.ArtistCredit[0].Artist.Name
	}

	rel := selectBestRelease(rec.Releases, album)
	if rel == nil {
		return meta
	}
	meta.Album = rel.Title
	meta.ReleaseID = rel.ID
	meta.ReleaseDate = rel.Date
	if len(rel.Date) >= 4 {
		meta.Year, _ = strconv.Atoi(rel.Date[:4])
	}
	if len(rel.ArtistCredit) > 0 {
		meta.AlbumArtist = rel.ArtistCredit[0].Artist.Name
	}
	for _, m := range rel.Media {
		if len(m.Track) > 0 {
			meta.TrackNumber, _ = strconv.Atoi(m.Track[0].Number)
			break
		}
	}
	return meta
}

// selectBestRelease prefers an official album whose title agrees with the
// album hint, then any official album, then the first release.
func selectBestRelease(releases []release, albumName string) *release {
	if len(releases) == 0 {
		return nil
	}

	hint := normalize.Text(albumName)
	if hint != "" {
		for i := range releases {
			title := normalize.Text(releases[i].Title)
			if title != "" && (strings.Contains(title, hint) || strings.Contains(hint, title)) {
				return &releases[i]
			}
		}
	}

	for i := range releases {
		r := &releases[i]
		if r.Status == "Official" && strings.EqualFold(r.ReleaseGroup.PrimaryType, "Album") {
			return r
		}
	}
	return &releases[0]
}

var luceneReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeLucene(s string) string {
	return luceneReplacer.Replace(s)
}

type searchResponse struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Releases     []release      `json:"releases"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Length       int            `json:"length"`
}

type release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	Date         string         `json:"date"`
	ReleaseGroup releaseGroup   `json:"release-group"`
	Media        []media        `json:"media"`
	ArtistCredit []artistCredit `json:"artist-credit"`
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist artist `json:"artist"`
}

type releaseGroup struct {
	ID          string `json:"id"`
	PrimaryType string `json:"primary-type"`
}

type media struct {
	Position int          `json:"position"`
	Track    []mediaTrack `json:"track"`
}

type mediaTrack struct {
	Number string `json:"number"`
	Title  string `json:"title"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordingMetadata is what a lookup contributes to a file's tags.
type RecordingMetadata struct {
	RecordingID string `json:"recording_id"`
	ReleaseID   string `json:"release_id,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}
