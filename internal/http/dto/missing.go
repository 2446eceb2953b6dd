package dto

import (
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

type MissingTrackResponse struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Artist              string `json:"artist"`
	Album               string `json:"album,omitempty"`
	Playlist            string `json:"playlist"`
	PlaylistID          string `json:"playlist_id"`
	Service             string `json:"service"`
	Status              string `json:"status"`
	ExternalDownloadRef string `json:"external_download_ref,omitempty"`
	LibraryTrackID      string `json:"library_track_id,omitempty"`
	AttemptCount        int    `json:"attempt_count"`
	LastAttemptAt       string `json:"last_attempt_at,omitempty"`
	NextAttemptAt       string `json:"next_attempt_at,omitempty"`
	Error               string `json:"error,omitempty"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

func NewMissingTrackResponse(m *domain.MissingTrack) MissingTrackResponse {
	resp := MissingTrackResponse{
		ID:                  m.ID,
		Title:               m.Title,
		Artist:              m.Artist,
		Album:               m.Album,
		Playlist:            m.SourcePlaylistName,
		PlaylistID:          m.SourcePlaylistID,
		Service:             m.SourceServiceName,
		Status:              string(m.Status),
		ExternalDownloadRef: m.ExternalDownloadRef,
		LibraryTrackID:      m.LibraryTrackID,
		AttemptCount:        m.AttemptCount,
		LastAttemptAt:       formatTime(m.LastAttemptAt),
		NextAttemptAt:       formatTime(m.NextAttemptAt),
		CreatedAt:           m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           m.UpdatedAt.Format(time.RFC3339),
	}
	if m.LastError != nil {
		resp.Error = *m.LastError
	}
	return resp
}

func NewMissingTrackList(recs []*domain.MissingTrack) []MissingTrackResponse {
	out := make([]MissingTrackResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, NewMissingTrackResponse(r))
	}
	return out
}

type MissingTrackPage struct {
	Items      []MissingTrackResponse `json:"items"`
	Pagination *Pagination            `json:"pagination"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
