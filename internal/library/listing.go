package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/cesargomez89/trackreconciler/internal/normalize"
	"github.com/cesargomez89/trackreconciler/internal/storage"
)

// Listing is a normalized snapshot of the audio files under a root. It is
// built once and probed for many candidates.
type Listing struct {
	Root    string
	entries []listingEntry
}

type listingEntry struct {
	path   string
	name   string // file name without extension
	dir    string // parent directory
	parent string // grandparent directory
}

// BuildListing walks root and records every audio file. The walk stops with
// ctx's error when ctx is done.
func BuildListing(ctx context.Context, root string) (*Listing, error) {
	l := &Listing{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !storage.IsAudioFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		l.add(path, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewListing builds a listing from root-relative paths without touching disk.
func NewListing(root string, rels []string) *Listing {
	l := &Listing{Root: root}
	for _, rel := range rels {
		l.add(filepath.Join(root, rel), rel)
	}
	return l
}

func (l *Listing) add(path, rel string) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	e := listingEntry{
		path: path,
		name: normalize.Loose(strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(rel))),
	}
	if len(parts) >= 2 {
		e.dir = normalize.Loose(parts[len(parts)-2])
	}
	if len(parts) >= 3 {
		e.parent = normalize.Loose(parts[len(parts)-3])
	}
	l.entries = append(l.entries, e)
}

func (l *Listing) Len() int {
	return len(l.entries)
}

// Probe looks for a file whose name carries the title and whose name or
// enclosing folders carry the artist. Comparison is case-insensitive and
// qualifier-stripped on the candidate side. It returns the matching path.
func (l *Listing) Probe(title, artist string) (string, bool) {
	nt, na := normalize.Key(title, artist)
	if nt == "" || na == "" {
		return "", false
	}
	for _, e := range l.entries {
		if !containsWord(e.name, na) && !containsWord(e.dir, na) && !containsWord(e.parent, na) {
			continue
		}
		if containsWord(e.name, nt) || nearTitle(e.name, nt, na) {
			return e.path, true
		}
	}
	return "", false
}

// containsWord reports whether needle occurs in hay on word boundaries.
func containsWord(hay, needle string) bool {
	if hay == "" || needle == "" {
		return false
	}
	return strings.Contains(" "+hay+" ", " "+needle+" ")
}

// nearTitle tolerates small spelling differences once track numbers and
// the artist prefix are removed from the file name.
func nearTitle(name, title, artist string) bool {
	rest := strings.TrimSpace(strings.Replace(" "+name+" ", " "+artist+" ", " ", 1))
	rest = strings.TrimLeft(rest, "0123456789 ")
	if rest == "" {
		return false
	}
	budget := utf8.RuneCountInString(title) / 10
	if budget == 0 {
		return false
	}
	return levenshtein.ComputeDistance(rest, title) <= budget
}
