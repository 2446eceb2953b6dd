package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		data       *LayoutData
		want       string
		wantErr    bool
		errContain string
	}{
		{
			name:     "default layout",
			template: "{{.Artist}}/{{.Album}}/{{.Track}} - {{.Title}}",
			data:     &LayoutData{Artist: "The Beatles", Album: "Help!", Track: "13", Title: "Yesterday"},
			want:     "The Beatles/Help!/13 - Yesterday",
		},
		{
			name:     "year layout",
			template: "{{.Artist}}/{{.Year}} - {{.Album}}/{{.Title}}",
			data:     &LayoutData{Artist: "John Lennon", Album: "Imagine", Title: "Imagine", Year: 1971},
			want:     "John Lennon/1971 - Imagine/Imagine",
		},
		{
			name:       "invalid template syntax",
			template:   "{{.Artist",
			data:       &LayoutData{Artist: "Test"},
			wantErr:    true,
			errContain: "failed to parse template",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPath(tt.template, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("BuildPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errContain) {
					t.Errorf("BuildPath() error = %v, should contain %v", err, tt.errContain)
				}
				return
			}
			if got != tt.want {
				t.Errorf("BuildPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLayoutData(t *testing.T) {
	data := NewLayoutData("AC/DC", "", 0, "T.N.T.", 1975)
	if data.Artist != "ACDC" {
		t.Errorf("Expected artist ACDC, got %s", data.Artist)
	}
	if data.Album != "Unknown Album" {
		t.Errorf("Expected Unknown Album, got %s", data.Album)
	}
	if data.Track != "01" {
		t.Errorf("Expected track 01, got %s", data.Track)
	}
	if data.Title != "T.N.T" {
		t.Errorf("Expected title T.N.T, got %s", data.Title)
	}
}

func TestBuildTargetPath(t *testing.T) {
	root := filepath.Join("/music", "library")
	data := &LayoutData{Artist: "Artist", Album: "Album", Track: "02", Title: "Song"}

	got, err := BuildTargetPath(root, "{{.Artist}}/{{.Album}}/{{.Track}} - {{.Title}}", data, "flac")
	if err != nil {
		t.Fatalf("BuildTargetPath failed: %v", err)
	}
	want := filepath.Join(root, "Artist", "Album", "02 - Song.flac")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if _, err := BuildTargetPath(root, "../../{{.Title}}", data, ".mp3"); err == nil {
		t.Error("Expected error for layout escaping root")
	}
}

func TestDestinationHint(t *testing.T) {
	tests := []struct {
		artist, album, want string
	}{
		{"The Beatles", "Help!", "the-beatles/help"},
		{"Björk", "", "bjork"},
		{"", "", "unknown-artist"},
	}
	for _, tt := range tests {
		if got := DestinationHint(tt.artist, tt.album); got != tt.want {
			t.Errorf("DestinationHint(%q, %q) = %q, want %q", tt.artist, tt.album, got, tt.want)
		}
	}
}

func TestSafeAtoi(t *testing.T) {
	tests := map[string]int{"3": 3, "03/12": 3, "x": 0, "": 0}
	for in, want := range tests {
		if got := SafeAtoi(in); got != want {
			t.Errorf("SafeAtoi(%q) = %d, want %d", in, got, want)
		}
	}
}
