package app

import (
	"fmt"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// LedgerService is the operator-facing view of the missing-track ledger.
type LedgerService struct {
	Repo   *store.DB
	Logger *logger.Logger
}

func NewLedgerService(repo *store.DB, log *logger.Logger) *LedgerService {
	return &LedgerService{Repo: repo, Logger: log.WithComponent("ledger")}
}

// Page is one page of ledger records.
type Page struct {
	Items    []*domain.MissingTrack
	Total    int
	Page     int
	PageSize int
}

// List pages through the ledger. A status filter lists in detection order;
// an empty status lists every record, most recently updated first.
func (s *LedgerService) List(status domain.LedgerStatus, page, pageSize int) (*Page, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}

	total, err := s.Repo.CountMissing(status)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	offset := (page - 1) * pageSize
	var items []*domain.MissingTrack
	if status == "" {
		items, err = s.Repo.ListMissing(pageSize, offset)
	} else {
		items, err = s.Repo.ListMissingByStatus(status, pageSize, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return &Page{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *LedgerService) Get(id string) (*domain.MissingTrack, error) {
	return s.Repo.GetMissing(id)
}

func (s *LedgerService) Counts() (map[domain.LedgerStatus]int, error) {
	return s.Repo.MissingStatusCounts()
}

func (s *LedgerService) Dismiss(id string) (*domain.MissingTrack, error) {
	rec, err := s.Repo.TransitionMissing(id, domain.StatusDismissed, domain.TransitionFields{})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Record dismissed", "record_id", id, "title", rec.Title)
	return rec, nil
}

// ResolveManually closes a record against a track the operator says is in
// the library. The track must be indexed.
func (s *LedgerService) ResolveManually(id, libraryTrackID string) (*domain.MissingTrack, error) {
	if _, err := s.Repo.GetLibraryTrack(libraryTrackID); err != nil {
		return nil, fmt.Errorf("library track %s: %w", libraryTrackID, err)
	}
	rec, err := s.Repo.TransitionMissing(id, domain.StatusResolvedManually, domain.TransitionFields{
		LibraryTrackID: &libraryTrackID,
		ClearError:     true,
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Record resolved manually", "record_id", id, "library_track_id", libraryTrackID)
	return rec, nil
}

// StartAcquisition makes a PENDING record due now. Other open records are
// retried.
func (s *LedgerService) StartAcquisition(id string) (*domain.MissingTrack, error) {
	rec, err := s.Repo.GetMissing(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusPending {
		return s.Retry(id)
	}
	if err := s.Repo.ScheduleMissing(id, time.Time{}); err != nil {
		return nil, err
	}
	s.Logger.Info("Acquisition requested", "record_id", id, "title", rec.Title)
	return s.Repo.GetMissing(id)
}

// Retry clears the backoff on an open record. Terminal records, FAILED
// included, cannot be retried.
func (s *LedgerService) Retry(id string) (*domain.MissingTrack, error) {
	rec, err := s.Repo.GetMissing(id)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, &domain.InvalidTransitionError{ID: id, From: rec.Status, To: rec.Status}
	}
	if err := s.Repo.ScheduleMissing(id, time.Time{}); err != nil {
		return nil, err
	}
	s.Logger.Info("Record retry requested", "record_id", id, "status", rec.Status)
	return s.Repo.GetMissing(id)
}

// CleanupResult counts what Cleanup removed.
type CleanupResult struct {
	Invalid  int64 `json:"invalid"`
	Resolved int64 `json:"resolved"`
}

// Cleanup purges TV and film audio plus entries from preserved playlists.
// With includeResolved it also drops DOWNLOADED and RESOLVED_MANUALLY
// history.
func (s *LedgerService) Cleanup(includeResolved bool) (*CleanupResult, error) {
	res := &CleanupResult{}
	n, err := s.Repo.PurgeInvalidMissing(constants.InvalidContentKeywords, constants.PreservedPlaylistMarker)
	if err != nil {
		return nil, fmt.Errorf("failed to purge invalid records: %w", err)
	}
	res.Invalid = n

	if includeResolved {
		n, err := s.Repo.PurgeResolvedMissing()
		if err != nil {
			return nil, fmt.Errorf("failed to purge resolved records: %w", err)
		}
		res.Resolved = n
	}
	s.Logger.Info("Ledger cleanup finished", "invalid", res.Invalid, "resolved", res.Resolved)
	return res, nil
}
