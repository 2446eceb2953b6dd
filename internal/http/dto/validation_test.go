package dto

import (
	"testing"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "url", Message: "is required"}
	if err.Error() != "url: is required" {
		t.Errorf("Expected 'url: is required', got %s", err.Error())
	}
}

func TestToResponse(t *testing.T) {
	errs := []ValidationError{
		{Field: "service", Message: "is required"},
		{Field: "playlist_id", Message: "is required"},
	}
	if got := ToResponse(errs); got != "service: is required; playlist_id: is required" {
		t.Errorf("Unexpected response: %s", got)
	}
	if m := ToMap(errs); len(m) != 2 || m["service"] != "is required" {
		t.Errorf("Unexpected map: %v", m)
	}
}

func TestReconcileRequest_Validate(t *testing.T) {
	req := &ReconcileRequest{Targets: []string{"spotify:37i9dQZF1DXcBWIGoYBM5M", "bare-id", "Deezer:123"}}
	refs, errs := req.Validate()
	if len(errs) != 1 || errs[0].Field != "targets[1]" {
		t.Errorf("Expected one error on targets[1], got %v", errs)
	}
	if len(refs) != 2 {
		t.Fatalf("Expected 2 refs, got %d", len(refs))
	}
	if refs[1].Service != "deezer" || refs[1].PlaylistID != "123" {
		t.Errorf("Expected lowercased service, got %+v", refs[1])
	}

	refs, errs = (&ReconcileRequest{}).Validate()
	if len(refs) != 0 || len(errs) != 0 {
		t.Errorf("Expected an empty request to be valid, got %v %v", refs, errs)
	}
}

func TestPlaylistRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     PlaylistRequest
		want    domain.PlaylistRef
		wantErr int
	}{
		{"ref", PlaylistRequest{Ref: "deezer:908622995", Name: " Chill "}, domain.PlaylistRef{Service: "deezer", PlaylistID: "908622995", Name: "Chill"}, 0},
		{"parts", PlaylistRequest{Service: "Spotify", PlaylistID: "abc"}, domain.PlaylistRef{Service: "spotify", PlaylistID: "abc"}, 0},
		{"bad ref", PlaylistRequest{Ref: "abc"}, domain.PlaylistRef{}, 1},
		{"missing parts", PlaylistRequest{}, domain.PlaylistRef{}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := tt.req.Validate()
			if len(errs) != tt.wantErr {
				t.Errorf("Expected %d errors, got %v", tt.wantErr, errs)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestResolveRequest_Validate(t *testing.T) {
	if errs := (&ResolveRequest{}).Validate(); len(errs) != 1 {
		t.Errorf("Expected library_track_id to be required, got %v", errs)
	}
	if errs := (&ResolveRequest{LibraryTrackID: "abc"}).Validate(); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestSourceRequest_Validate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:5030", false},
		{"", true},
		{"not a url", true},
		{"localhost:5030", true},
	}
	for _, tt := range tests {
		errs := (&SourceRequest{URL: tt.url}).Validate()
		if (len(errs) > 0) != tt.wantErr {
			t.Errorf("URL %q: expected error=%v, got %v", tt.url, tt.wantErr, errs)
		}
	}
}

func TestValidateStatus(t *testing.T) {
	s, errs := ValidateStatus("pending")
	if len(errs) != 0 || s != domain.StatusPending {
		t.Errorf("Expected PENDING, got %s %v", s, errs)
	}
	if _, errs := ValidateStatus("nope"); len(errs) != 1 {
		t.Errorf("Expected error for unknown status, got %v", errs)
	}
	if s, errs := ValidateStatus(""); s != "" || len(errs) != 0 {
		t.Errorf("Expected empty status to be valid, got %s %v", s, errs)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasPrev || !p.HasNext || p.PrevPage != 1 || p.NextPage != 3 {
		t.Errorf("Unexpected pagination: %+v", p)
	}
	p = NewPagination(9, 10, 0)
	if p.CurrentPage != 1 || p.TotalPages != 1 || p.HasNext || p.HasPrev {
		t.Errorf("Expected single empty page, got %+v", p)
	}
}
