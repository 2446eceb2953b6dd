// Package normalize canonicalizes free-text titles and artist names so that
// indexing and matching compare the same forms.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cesargomez89/trackreconciler/internal/constants"
)

var (
	bracketRe   = regexp.MustCompile(`[\(\[\{]([^\(\)\[\]\{\}]*)[\)\]\}]`)
	qualifierRe = regexp.MustCompile(`\b(remaster|remastered|live|radio edit|edit|feat\.?|ft\.?|featuring|with|bonus track|bonus|explicit|clean|mono|stereo|single version|album version|deluxe)\b`)
	yearRe      = regexp.MustCompile(`^\s*(19|20)\d{2}\s*$`)
	dashTailRe  = regexp.MustCompile(`\s[-–—]\s(.*)$`)
	featTailRe  = regexp.MustCompile(`\s(feat|ft|featuring)\s.*$`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Text returns the canonical form of s. It is idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	base := fold(s)

	stripped := stripFeaturing(clean(stripQualifiers(base)))
	if len([]rune(stripped)) >= constants.MinNormalizedLength {
		return stripped
	}
	// Qualifier stripping ate almost everything ("(Live)"); keep the words.
	return stripFeaturing(clean(base))
}

// Key normalizes a title/artist pair.
func Key(title, artist string) (string, string) {
	return Text(title), Text(artist)
}

// Loose normalizes a file or directory name for substring probing. Unlike
// Text it keeps bracket contents, so "Song (Live)" and "Song" stay distinct.
func Loose(s string) string {
	return clean(fold(s))
}

var diacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	out, _, err := transform.String(diacritics, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func stripQualifiers(s string) string {
	for {
		next := bracketRe.ReplaceAllStringFunc(s, func(m string) string {
			inner := m[1 : len(m)-1]
			if qualifierRe.MatchString(inner) || yearRe.MatchString(inner) {
				return " "
			}
			return " " + inner + " "
		})
		if next == s {
			break
		}
		s = next
	}

	if loc := dashTailRe.FindStringSubmatchIndex(s); loc != nil {
		tail := s[loc[2]:loc[3]]
		if qualifierRe.MatchString(tail) || yearRe.MatchString(tail) {
			s = s[:loc[0]]
		}
	}
	return s
}

func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`':
			// "don't" and "dont" compare equal
		case r == '&':
			b.WriteString(" and ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(b.String(), " "))
}

func stripFeaturing(s string) string {
	return strings.TrimSpace(featTailRe.ReplaceAllString(s, ""))
}
