package domain

import (
	"time"
)

// LedgerStatus is the lifecycle state of a missing-track record.
type LedgerStatus string

const (
	StatusPending          LedgerStatus = "PENDING"
	StatusSearching        LedgerStatus = "SEARCHING"
	StatusFoundExternal    LedgerStatus = "FOUND_EXTERNAL"
	StatusDownloading      LedgerStatus = "DOWNLOADING"
	StatusDownloaded       LedgerStatus = "DOWNLOADED"
	StatusResolvedManually LedgerStatus = "RESOLVED_MANUALLY"
	StatusFailed           LedgerStatus = "FAILED"
	StatusDismissed        LedgerStatus = "DISMISSED"
)

// AllStatuses lists every ledger status in lifecycle order.
var AllStatuses = []LedgerStatus{
	StatusPending,
	StatusSearching,
	StatusFoundExternal,
	StatusDownloading,
	StatusDownloaded,
	StatusResolvedManually,
	StatusFailed,
	StatusDismissed,
}

// OpenStatuses are the non-terminal statuses.
var OpenStatuses = []LedgerStatus{
	StatusPending,
	StatusSearching,
	StatusFoundExternal,
	StatusDownloading,
}

var forwardEdges = map[LedgerStatus][]LedgerStatus{
	StatusPending:       {StatusSearching},
	StatusSearching:     {StatusFoundExternal, StatusFailed},
	StatusFoundExternal: {StatusDownloading},
	StatusDownloading:   {StatusDownloaded, StatusFailed, StatusFoundExternal},
}

func (s LedgerStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s LedgerStatus) IsTerminal() bool {
	switch s {
	case StatusDownloaded, StatusResolvedManually, StatusFailed, StatusDismissed:
		return true
	}
	return false
}

// CanTransition reports whether a record in status from may move to status to.
// Operator outcomes (RESOLVED_MANUALLY, DISMISSED) are reachable from any
// non-terminal status; terminal statuses have no outgoing edges.
func CanTransition(from, to LedgerStatus) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == StatusResolvedManually || to == StatusDismissed {
		return true
	}
	for _, next := range forwardEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RawTrack is one scanned media file before normalization.
type RawTrack struct {
	LibraryID string
	Title     string
	Artist    string
	Artists   []string
	Album     string
	FilePath  string
	Duration  int
}

// LibraryTrack is an indexed media file with its lookup keys.
type LibraryTrack struct {
	ID               string      `json:"id" db:"id"`
	Title            string      `json:"title" db:"title"`
	Artist           string      `json:"artist" db:"artist"`
	Artists          StringSlice `json:"artists,omitempty" db:"artists"`
	Album            string      `json:"album" db:"album"`
	NormalizedTitle  string      `json:"normalized_title" db:"normalized_title"`
	NormalizedArtist string      `json:"normalized_artist" db:"normalized_artist"`
	FilePath         string      `json:"file_path" db:"file_path"`
	Duration         int         `json:"duration" db:"duration"`
	IndexedAt        time.Time   `json:"indexed_at" db:"indexed_at"`
}

// ScoredTrack is a fuzzy lookup result.
type ScoredTrack struct {
	Track *LibraryTrack
	Score float64
}

// SourceTrack is a playlist entry as returned by a playlist source.
type SourceTrack struct {
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Album           string `json:"album,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// CandidateTrack is a playlist entry under reconciliation.
type CandidateTrack struct {
	Title              string
	Artist             string
	Album              string
	DurationSeconds    int
	SourcePlaylistID   string
	SourcePlaylistName string
	SourceServiceName  string
}

// MissingTrack is a ledger record for a track believed absent from the library.
type MissingTrack struct { //nolint:govet // field ordering prioritizes readability over memory alignment
	ID                  string       `json:"id" db:"id"`
	Title               string       `json:"title" db:"title"`
	Artist              string       `json:"artist" db:"artist"`
	Album               string       `json:"album" db:"album"`
	NormalizedTitle     string       `json:"normalized_title" db:"normalized_title"`
	NormalizedArtist    string       `json:"normalized_artist" db:"normalized_artist"`
	SourcePlaylistID    string       `json:"source_playlist_id" db:"source_playlist_id"`
	SourcePlaylistName  string       `json:"source_playlist_name" db:"source_playlist_name"`
	SourceServiceName   string       `json:"source_service_name" db:"source_service_name"`
	Status              LedgerStatus `json:"status" db:"status"`
	ExternalDownloadRef string       `json:"external_download_ref,omitempty" db:"external_download_ref"`
	LibraryTrackID      string       `json:"library_track_id,omitempty" db:"library_track_id"`
	AttemptCount        int          `json:"attempt_count" db:"attempt_count"`
	LastAttemptAt       *time.Time   `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextAttemptAt       *time.Time   `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	LastError           *string      `json:"last_error,omitempty" db:"last_error"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// Candidate rebuilds the candidate a record was detected from.
func (m *MissingTrack) Candidate() CandidateTrack {
	return CandidateTrack{
		Title:              m.Title,
		Artist:             m.Artist,
		Album:              m.Album,
		SourcePlaylistID:   m.SourcePlaylistID,
		SourcePlaylistName: m.SourcePlaylistName,
		SourceServiceName:  m.SourceServiceName,
	}
}

// TransitionFields carries the optional column updates applied with a transition.
type TransitionFields struct {
	ExternalDownloadRef *string
	LibraryTrackID      *string
	NextAttemptAt       *time.Time
	ClearError          bool
}

type MatchTier string

const (
	TierNone       MatchTier = ""
	TierExact      MatchTier = "exact"
	TierFuzzy      MatchTier = "fuzzy"
	TierFilesystem MatchTier = "filesystem"
)

// MatchOutcome is the resolver verdict for one candidate.
// A filesystem-tier hit is Present without a library track id.
type MatchOutcome struct {
	Present        bool      `json:"present"`
	LibraryTrackID string    `json:"library_track_id,omitempty"`
	Tier           MatchTier `json:"tier,omitempty"`
	Score          float64   `json:"score,omitempty"`
}

func Present(libraryTrackID string, tier MatchTier, score float64) MatchOutcome {
	return MatchOutcome{Present: true, LibraryTrackID: libraryTrackID, Tier: tier, Score: score}
}

func Absent() MatchOutcome {
	return MatchOutcome{}
}

// JobState is the state of one acquisition attempt.
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

func (s JobState) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// DownloadJob is an in-flight acquisition attempt owned by the downloader.
type DownloadJob struct {
	ID             string    `json:"id"`
	MissingTrackID string    `json:"missing_track_id"`
	ExternalRef    string    `json:"external_ref"`
	Handle         JobHandle `json:"handle"`
	AttemptNumber  int       `json:"attempt_number"`
	State          JobState  `json:"state"`
	Error          string    `json:"error,omitempty"`
	LocalPath      string    `json:"local_path,omitempty"`
	OrganizedPath  string    `json:"organized_path,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Confirmations  int       `json:"confirmations"`
}

// JobHandle identifies a download inside the external download engine.
type JobHandle string

// JobPoll is the download engine's view of a job.
type JobPoll struct {
	State     JobState
	Error     string
	LocalPath string
}

// CatalogHit is one ranked result from the download-source catalog.
type CatalogHit struct {
	ExternalRef string  `json:"external_ref"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Score       float64 `json:"score"`
	FreeSlot    bool    `json:"free_slot"`
	QueueLength int     `json:"queue_length"`
}

// Playlist is a source playlist registered for reconciliation.
type Playlist struct {
	ID           int64      `json:"id" db:"id"`
	Service      string     `json:"service" db:"service"`
	PlaylistID   string     `json:"playlist_id" db:"playlist_id"`
	Name         string     `json:"name" db:"name"`
	Selected     bool       `json:"selected" db:"selected"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// PlaylistRef names one playlist on one service.
type PlaylistRef struct {
	Service    string `json:"service"`
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name,omitempty"`
}

func (r PlaylistRef) String() string {
	return r.Service + ":" + r.PlaylistID
}
