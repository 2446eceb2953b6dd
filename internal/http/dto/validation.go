package dto

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) ToMap() map[string]string {
	return map[string]string{e.Field: e.Message}
}

func ToMap(errs []ValidationError) map[string]string {
	result := make(map[string]string)
	for _, e := range errs {
		result[e.Field] = e.Message
	}
	return result
}

func ToResponse(errs []ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// ReconcileRequest names playlists as "service:playlistId". No targets
// means every selected playlist.
type ReconcileRequest struct {
	Targets []string `json:"targets"`
}

func (r *ReconcileRequest) Validate() ([]domain.PlaylistRef, []ValidationError) {
	var errs []ValidationError
	refs := make([]domain.PlaylistRef, 0, len(r.Targets))
	for i, t := range r.Targets {
		ref, err := playlist.ParseRef(t)
		if err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("targets[%d]", i), Message: err.Error()})
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

type ResolveRequest struct {
	LibraryTrackID string `json:"library_track_id"`
}

func (r *ResolveRequest) Validate() []ValidationError {
	if strings.TrimSpace(r.LibraryTrackID) == "" {
		return []ValidationError{{Field: "library_track_id", Message: "is required"}}
	}
	return nil
}

// PlaylistRequest accepts either a "service:playlistId" ref or the two
// parts separately.
type PlaylistRequest struct {
	Ref        string `json:"ref"`
	Service    string `json:"service"`
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	Selected   *bool  `json:"selected"`
}

func (r *PlaylistRequest) Validate() (domain.PlaylistRef, []ValidationError) {
	if r.Ref != "" {
		ref, err := playlist.ParseRef(r.Ref)
		if err != nil {
			return domain.PlaylistRef{}, []ValidationError{{Field: "ref", Message: err.Error()}}
		}
		ref.Name = strings.TrimSpace(r.Name)
		return ref, nil
	}

	var errs []ValidationError
	if strings.TrimSpace(r.Service) == "" {
		errs = append(errs, ValidationError{Field: "service", Message: "is required"})
	}
	if strings.TrimSpace(r.PlaylistID) == "" {
		errs = append(errs, ValidationError{Field: "playlist_id", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.PlaylistRef{}, errs
	}
	return domain.PlaylistRef{
		Service:    strings.ToLower(strings.TrimSpace(r.Service)),
		PlaylistID: strings.TrimSpace(r.PlaylistID),
		Name:       strings.TrimSpace(r.Name),
	}, nil
}

type SourceRequest struct {
	URL string `json:"url"`
}

func (r *SourceRequest) Validate() []ValidationError {
	return validateURL(&r.URL)
}

func validateURL(urlVal *string) []ValidationError {
	var errs []ValidationError
	if urlVal == nil || *urlVal == "" {
		return append(errs, ValidationError{Field: "url", Message: "is required"})
	}
	u, err := url.ParseRequestURI(*urlVal)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "url", Message: "invalid URL format"})
	}
	return errs
}

// ValidateStatus checks an optional ledger status filter.
func ValidateStatus(s string) (domain.LedgerStatus, []ValidationError) {
	if s == "" {
		return "", nil
	}
	status := domain.LedgerStatus(strings.ToUpper(s))
	if !status.Valid() {
		return "", []ValidationError{{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}}
	}
	return status, nil
}
