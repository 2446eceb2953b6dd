// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort        = "8080"
	DefaultDBPath      = "trackreconciler.db"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultRetryCount  = 3
	DefaultRetryBase   = 1 * time.Second
	DefaultCacheTTL    = 6 * time.Hour
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Matching
const (
	DefaultFuzzyThreshold   = 0.85
	DefaultFuzzyMargin      = 0.05
	DefaultFuzzyFloor       = 0.5
	DefaultCatalogThreshold = 0.8
	VariousArtistsBonus     = 0.05
	MinNormalizedLength     = 2
	DefaultFSProbeTimeout   = 5 * time.Second
)

// Acquisition
const (
	DefaultMaxAttempts     = 3
	DefaultAcquireRetry    = 30 * time.Second
	DefaultAcquireRetryCap = 30 * time.Minute
	DefaultConcurrency     = 2
	DefaultPollInterval    = 5 * time.Second
	DefaultConfirmAttempts = 5
	DefaultSearchTimeout   = 30 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
	DefaultSearchSettle    = 3 * time.Second
	DefaultSlskdURL        = "http://localhost:5030"
	DefaultSlskdRate       = 500 * time.Millisecond
	DefaultOrganizeLayout  = "{{.Artist}}/{{.Album}}/{{.Track}} - {{.Title}}"
)

// Library watching
const (
	DefaultWatchDebounce = 30 * time.Second
	DefaultWatchInterval = 60 * time.Minute
)

// Playlist sources
const (
	ServiceSpotify      = "spotify"
	ServiceDeezer       = "deezer"
	DefaultDeezerAPIURL = "https://api.deezer.com"
	DeezerRate          = 100 * time.Millisecond
)

// Status feed
const (
	MaxRecentOutcomes = 20
	DefaultPageSize   = 50
	MaxPageSize       = 500
)

// File Extensions
const (
	ExtFLAC = ".flac"
	ExtMP3  = ".mp3"
	ExtM4A  = ".m4a"
	ExtOGG  = ".ogg"
	ExtWAV  = ".wav"
	ExtAAC  = ".aac"
)

// AudioExtensions are the file types treated as library media.
var AudioExtensions = map[string]bool{
	ExtFLAC: true,
	ExtMP3:  true,
	ExtM4A:  true,
	ExtOGG:  true,
	ExtWAV:  true,
	ExtAAC:  true,
}

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Cleanup vocabulary: ledger rows mentioning these are TV/film audio, not music.
var InvalidContentKeywords = []string{
	"simpsons", "family guy", "american dad", "king of the hill",
	"episode", "tv show", "serie", "film", "movie",
}

// PreservedPlaylistMarker marks playlists whose entries never belong in the ledger.
const PreservedPlaylistMarker = "no_delete"

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"
