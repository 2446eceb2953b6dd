package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/httpclient"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/storage"
)

type SlskdConfig struct {
	BaseURL      string
	APIKey       string
	DownloadsDir string
	// SearchSettle is how long to let peers answer before reading responses.
	SearchSettle time.Duration
}

// SlskdSource talks to a slskd daemon's REST API.
type SlskdSource struct {
	cfg    SlskdConfig
	client *httpclient.Client
	logger *logger.Logger
}

func NewSlskdSource(cfg SlskdConfig, client *httpclient.Client, log *logger.Logger) *SlskdSource {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SearchSettle <= 0 {
		cfg.SearchSettle = constants.DefaultSearchSettle
	}
	if client == nil {
		client = httpclient.NewClient(nil, constants.DefaultSlskdRate)
	}
	return &SlskdSource{cfg: cfg, client: client, logger: log.WithComponent("slskd")}
}

type slskdSearchState struct {
	ID         string `json:"id"`
	IsComplete bool   `json:"isComplete"`
	State      string `json:"state"`
}

type slskdResponse struct {
	Username          string `json:"username"`
	HasFreeUploadSlot bool   `json:"hasFreeUploadSlot"`
	QueueLength       int    `json:"queueLength"`
	Files             []struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	} `json:"files"`
}

type slskdUserTransfers struct {
	Username    string `json:"username"`
	Directories []struct {
		Directory string          `json:"directory"`
		Files     []slskdTransfer `json:"files"`
	} `json:"directories"`
}

type slskdTransfer struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	State    string `json:"state"`
}

// SearchCatalog runs a network search and returns scored, ranked audio hits.
func (s *SlskdSource) SearchCatalog(ctx context.Context, title, artist, album string) ([]domain.CatalogHit, error) {
	query := Query(title, artist)
	id := uuid.New().String()

	if err := s.do(ctx, http.MethodPost, "/api/v0/searches", map[string]string{"id": id, "searchText": query}, nil); err != nil {
		return nil, fmt.Errorf("failed to start search: %w", err)
	}
	defer func() {
		// Searches pile up in slskd otherwise.
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.do(cleanup, http.MethodDelete, "/api/v0/searches/"+id, nil, nil)
	}()

	if err := s.awaitSearch(ctx, id); err != nil {
		return nil, err
	}

	var responses []slskdResponse
	if err := s.do(ctx, http.MethodGet, "/api/v0/searches/"+id+"/responses", nil, &responses); err != nil {
		return nil, fmt.Errorf("failed to read search responses: %w", err)
	}

	var hits []domain.CatalogHit
	for _, r := range responses {
		for _, f := range r.Files {
			if !storage.IsAudioFile(strings.ReplaceAll(f.Filename, "\\", "/")) {
				continue
			}
			hitArtist, hitAlbum, hitTitle := ParseRemote(f.Filename)
			hits = append(hits, domain.CatalogHit{
				ExternalRef: EncodeRef(r.Username, f.Size, f.Filename),
				Title:       hitTitle,
				Artist:      hitArtist,
				Album:       hitAlbum,
				Filename:    f.Filename,
				Size:        f.Size,
				Score:       Similarity(query, hitArtist+" "+hitTitle),
				FreeSlot:    r.HasFreeUploadSlot,
				QueueLength: r.QueueLength,
			})
		}
	}
	Rank(hits)
	s.logger.Debug("Search finished", "query", query, "responses", len(responses), "hits", len(hits))
	return hits, nil
}

// awaitSearch waits for the settle period, then until the search completes
// or ctx ends. An unfinished search is read as-is once ctx's deadline hits.
func (s *SlskdSource) awaitSearch(ctx context.Context, id string) error {
	timer := time.NewTimer(s.cfg.SearchSettle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
		}

		var state slskdSearchState
		if err := s.do(ctx, http.MethodGet, "/api/v0/searches/"+id, nil, &state); err != nil {
			return fmt.Errorf("failed to read search state: %w", err)
		}
		if state.IsComplete || strings.HasPrefix(state.State, "Completed") {
			return nil
		}
		timer.Reset(s.cfg.SearchSettle)
	}
}

// StartDownload enqueues the referenced file. The handle is user|filename.
func (s *SlskdSource) StartDownload(ctx context.Context, externalRef, destinationHint string) (domain.JobHandle, error) {
	username, size, filename, err := DecodeRef(externalRef)
	if err != nil {
		return "", err
	}
	body := []map[string]interface{}{{"filename": filename, "size": size}}
	if err := s.do(ctx, http.MethodPost, "/api/v0/transfers/downloads/"+url.PathEscape(username), body, nil); err != nil {
		return "", fmt.Errorf("failed to enqueue download: %w", err)
	}
	s.logger.Info("Download enqueued", "username", username, "filename", filename, "destination", destinationHint)
	return domain.JobHandle(username + "|" + filename), nil
}

// PollJob maps slskd transfer states onto job states.
func (s *SlskdSource) PollJob(ctx context.Context, handle domain.JobHandle) (domain.JobPoll, error) {
	username, filename, ok := strings.Cut(string(handle), "|")
	if !ok {
		return domain.JobPoll{}, fmt.Errorf("invalid job handle %q", handle)
	}

	var transfers slskdUserTransfers
	err := s.do(ctx, http.MethodGet, "/api/v0/transfers/downloads/"+url.PathEscape(username), nil, &transfers)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.JobPoll{State: domain.JobFailed, Error: "transfer no longer known to slskd"}, nil
	}
	if err != nil {
		return domain.JobPoll{}, err
	}

	for _, dir := range transfers.Directories {
		for _, f := range dir.Files {
			if f.Filename != filename {
				continue
			}
			return s.pollFromState(f), nil
		}
	}
	return domain.JobPoll{State: domain.JobFailed, Error: "transfer no longer known to slskd"}, nil
}

func (s *SlskdSource) pollFromState(f slskdTransfer) domain.JobPoll {
	switch {
	case strings.Contains(f.State, "Succeeded"):
		return domain.JobPoll{State: domain.JobSucceeded, LocalPath: s.LocalPath(f.Filename)}
	case strings.HasPrefix(f.State, "Completed"):
		return domain.JobPoll{State: domain.JobFailed, Error: "download " + strings.ToLower(strings.TrimPrefix(f.State, "Completed, "))}
	case strings.HasPrefix(f.State, "Queued") || f.State == "Requested" || f.State == "Initializing":
		return domain.JobPoll{State: domain.JobQueued}
	default:
		return domain.JobPoll{State: domain.JobRunning}
	}
}

// LocalPath is where slskd writes a finished remote file: the remote parent
// directory name under the downloads directory.
func (s *SlskdSource) LocalPath(remote string) string {
	if s.cfg.DownloadsDir == "" {
		return ""
	}
	segs := remoteSegments(remote)
	if len(segs) == 0 {
		return ""
	}
	if len(segs) == 1 {
		return filepath.Join(s.cfg.DownloadsDir, segs[0])
	}
	return filepath.Join(s.cfg.DownloadsDir, segs[len(segs)-2], segs[len(segs)-1])
}

func (s *SlskdSource) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}
	return s.client.DoJSON(ctx, req, out)
}

var _ Source = (*SlskdSource)(nil)
