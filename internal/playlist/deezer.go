package playlist

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/httpclient"
)

// maxDeezerPages bounds pagination against a misbehaving "next" chain.
const maxDeezerPages = 200

// DeezerSource reads public playlists from the Deezer REST API.
type DeezerSource struct {
	baseURL string
	client  *httpclient.Client
}

func NewDeezerSource(baseURL string, client *httpclient.Client) *DeezerSource {
	if baseURL == "" {
		baseURL = constants.DefaultDeezerAPIURL
	}
	if client == nil {
		client = httpclient.NewClient(nil, constants.DeezerRate)
	}
	return &DeezerSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (d *DeezerSource) Name() string {
	return constants.ServiceDeezer
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerTracksPage struct {
	Data []struct {
		Title    string `json:"title"`
		Duration int    `json:"duration"`
		Artist   struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			Title string `json:"title"`
		} `json:"album"`
	} `json:"data"`
	Next  string       `json:"next"`
	Error *deezerError `json:"error"`
}

type deezerPlaylist struct {
	Title string       `json:"title"`
	Error *deezerError `json:"error"`
}

func (d *DeezerSource) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]domain.SourceTrack, error) {
	next := fmt.Sprintf("%s/playlist/%s/tracks", d.baseURL, url.PathEscape(playlistID))

	var tracks []domain.SourceTrack
	for page := 0; next != "" && page < maxDeezerPages; page++ {
		var resp deezerTracksPage
		if err := d.get(ctx, next, &resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, mapDeezerError(resp.Error, playlistID)
		}
		for _, item := range resp.Data {
			tracks = append(tracks, domain.SourceTrack{
				Title:           item.Title,
				Artist:          item.Artist.Name,
				Album:           item.Album.Title,
				DurationSeconds: item.Duration,
			})
		}
		next = resp.Next
	}
	return tracks, nil
}

func (d *DeezerSource) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	var resp deezerPlaylist
	if err := d.get(ctx, fmt.Sprintf("%s/playlist/%s", d.baseURL, url.PathEscape(playlistID)), &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", mapDeezerError(resp.Error, playlistID)
	}
	return resp.Title, nil
}

func (d *DeezerSource) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if err := d.client.DoJSON(ctx, req, out); err != nil {
		return fmt.Errorf("deezer: %w", err)
	}
	return nil
}

// Deezer reports errors in a 200 body. Code 800 is "no data".
func mapDeezerError(e *deezerError, playlistID string) error {
	switch e.Code {
	case 800:
		return fmt.Errorf("%w: deezer playlist %s", domain.ErrNotFound, playlistID)
	case 4, 700:
		return fmt.Errorf("%w: deezer: %s", domain.ErrServiceUnavailable, e.Message)
	}
	return fmt.Errorf("deezer: %s (%s %d)", e.Message, e.Type, e.Code)
}
