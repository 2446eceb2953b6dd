package playlist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
)

// SpotifySource reads public playlists with app (client credentials) auth.
type SpotifySource struct {
	client *spotify.Client
}

func NewSpotifySource(ctx context.Context, clientID, clientSecret string) *SpotifySource {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &SpotifySource{client: spotify.New(config.Client(ctx))}
}

// NewSpotifySourceWithClient wraps an already configured client.
func NewSpotifySourceWithClient(client *spotify.Client) *SpotifySource {
	return &SpotifySource{client: client}
}

func (s *SpotifySource) Name() string {
	return constants.ServiceSpotify
}

func (s *SpotifySource) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]domain.SourceTrack, error) {
	id := spotify.ID(ExtractSpotifyID(playlistID))
	page, err := s.client.GetPlaylistTracks(ctx, id)
	if err != nil {
		return nil, mapSpotifyError(err, playlistID)
	}

	var tracks []domain.SourceTrack
	for {
		for _, item := range page.Tracks {
			if item.IsLocal || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, fromSpotify(item.Track))
		}

		err = s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, mapSpotifyError(err, playlistID)
		}
	}
	return tracks, nil
}

func (s *SpotifySource) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	pl, err := s.client.GetPlaylist(ctx, spotify.ID(ExtractSpotifyID(playlistID)), spotify.Fields("name"))
	if err != nil {
		return "", mapSpotifyError(err, playlistID)
	}
	return pl.Name, nil
}

func fromSpotify(t spotify.FullTrack) domain.SourceTrack {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return domain.SourceTrack{
		Title:           t.Name,
		Artist:          artist,
		Album:           t.Album.Name,
		DurationSeconds: int(t.Duration / 1000),
	}
}

// ExtractSpotifyID accepts a bare id, a spotify:playlist:ID uri, or an
// open.spotify.com URL.
func ExtractSpotifyID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

func mapSpotifyError(err error, playlistID string) error {
	var se spotify.Error
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusNotFound:
			return fmt.Errorf("%w: spotify playlist %s", domain.ErrNotFound, playlistID)
		case se.Status == http.StatusTooManyRequests || se.Status >= 500:
			return fmt.Errorf("%w: spotify: %s", domain.ErrServiceUnavailable, se.Message)
		}
		return fmt.Errorf("spotify playlist %s: %w", playlistID, se)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: spotify: %v", domain.ErrServiceUnavailable, err)
}
