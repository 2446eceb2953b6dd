package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/gosimple/slug"
)

// LayoutData holds the fields available to a library layout template.
type LayoutData struct {
	Artist string
	Album  string
	Track  string
	Title  string
	Year   int
}

// BuildPath executes the template and returns the relative path (without extension)
func BuildPath(templateStr string, data *LayoutData) (string, error) {
	tmpl, err := template.New("layout").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// NewLayoutData sanitizes tag values for use as path segments.
func NewLayoutData(artist, album string, trackNum int, title string, year int) *LayoutData {
	data := &LayoutData{
		Artist: Sanitize(artist),
		Album:  Sanitize(album),
		Title:  Sanitize(title),
		Track:  FormatTrackNumber(trackNum),
		Year:   year,
	}
	if data.Artist == "" {
		data.Artist = "Unknown Artist"
	}
	if data.Album == "" {
		data.Album = "Unknown Album"
	}
	if data.Title == "" {
		data.Title = "Unknown Title"
	}
	return data
}

// BuildTargetPath joins root with the rendered layout and extension.
// The result is rejected if the template escapes root.
func BuildTargetPath(root, templateStr string, data *LayoutData, ext string) (string, error) {
	relPath, err := BuildPath(templateStr, data)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Clean(filepath.Join(root, relPath+ParseExtension(ext)))
	rel, err := filepath.Rel(root, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("layout escapes library root: %s", relPath)
	}
	return fullPath, nil
}

// DestinationHint is the slugged artist/album directory a download should land in.
func DestinationHint(artist, album string) string {
	a := slug.Make(artist)
	if a == "" {
		a = "unknown-artist"
	}
	b := slug.Make(album)
	if b == "" {
		return a
	}
	return a + "/" + b
}

// ParseExtension parses an extension string, ensuring it starts with a dot
func ParseExtension(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return strings.ToLower(ext)
}

func FormatTrackNumber(n int) string {
	if n <= 0 {
		n = 1
	}
	return fmt.Sprintf("%02d", n)
}

// SafeAtoi converts the leading number of s ("3/12" -> 3), returns 0 on error
func SafeAtoi(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
