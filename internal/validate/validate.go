// Package validate cleans and checks user-entered fields. Every text field
// is stripped of markup and trimmed before its length is checked, and
// lengths count characters, not bytes.
package validate

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
)

// Field limits.
const (
	MaxGroupName   = 50
	MaxVibeTitle   = 30
	MaxVenue       = 50
	MaxDisplayName = 50
	MaxGlyphs      = 2
)

// Layouts of the optional vibe date and time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var strict = bluemonday.StrictPolicy()

// Clean strips markup and surrounding whitespace.
func Clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Text cleans s and checks it has between min and max characters.
func Text(field, s string, min, max int) (string, error) {
	s = Clean(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0 && min > 0:
		return "", apperr.Invalid(field, "required")
	case n < min:
		return "", apperr.Invalid(field, fmt.Sprintf("must be at least %d characters", min))
	case n > max:
		return "", apperr.Invalid(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return s, nil
}

func GroupName(s string) (string, error) { return Text("name", s, 1, MaxGroupName) }

func VibeTitle(s string) (string, error) { return Text("title", s, 1, MaxVibeTitle) }

func Venue(s string) (string, error) { return Text("venue", s, 0, MaxVenue) }

func DisplayName(s string) (string, error) { return Text("name", s, 1, MaxDisplayName) }

// GroupIcon accepts any short glyph, defaulting when blank.
func GroupIcon(s string) (string, error) {
	s = Clean(s)
	if s == "" {
		return models.DefaultGroupIcon, nil
	}
	if glyphCount(s) > MaxGlyphs {
		return "", apperr.Invalid("icon", fmt.Sprintf("must be at most %d characters", MaxGlyphs))
	}
	return s, nil
}

// VibeEmoji accepts one or two pictographs, defaulting when blank.
func VibeEmoji(s string) (string, error) {
	s = Clean(s)
	if s == "" {
		return models.DefaultVibeEmoji, nil
	}
	if glyphCount(s) > MaxGlyphs {
		return "", apperr.Invalid("emoji", fmt.Sprintf("must be at most %d characters", MaxGlyphs))
	}
	for _, r := range s {
		if r != variationSelector && !isPictograph(r) {
			return "", apperr.Invalid("emoji", "only emoji and symbols are allowed")
		}
	}
	return s, nil
}

// Date accepts an empty string or a calendar date.
func Date(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	return s, nil
}

// Time accepts an empty string or a 24-hour clock time.
func Time(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(TimeLayout, s); err != nil {
		return "", apperr.Invalid("time", "must be HH:MM")
	}
	return s, nil
}

// PhotoURL accepts an empty string or an absolute http(s) URL.
func PhotoURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Invalid("photoURL", "must be an http or https URL")
	}
	return s, nil
}

const variationSelector = '\uFE0F'

// glyphCount counts runes, ignoring emoji presentation selectors.
func glyphCount(s string) int {
	n := 0
	for _, r := range s {
		if r != variationSelector {
			n++
		}
	}
	return n
}

// pictographs are the emoji, symbol and pictograph blocks accepted as a vibe emoji.
var pictographs = [][2]rune{
	{0x1F600, 0x1F64F}, {0x1F300, 0x1F5FF}, {0x1F680, 0x1F6FF}, {0x1F1E0, 0x1F1FF},
	{0x2600, 0x26FF}, {0x2700, 0x27BF}, {0x1F900, 0x1F9FF}, {0x1F018, 0x1F270},
	{0x238C, 0x238C}, {0x2194, 0x21AA}, {0x231A, 0x231B}, {0x2328, 0x2328},
	{0x23CF, 0x23CF}, {0x23E9, 0x23F3}, {0x23F8, 0x23FA}, {0x24C2, 0x24C2},
	{0x25AA, 0x25AB}, {0x25B6, 0x25B6}, {0x25C0, 0x25C0}, {0x25FB, 0x25FE},
	{0x2B00, 0x2BFF}, {0x3030, 0x3030}, {0x303D, 0x303D}, {0x3297, 0x3297},
	{0x3299, 0x3299},
}

func isPictograph(r rune) bool {
	for _, rg := range pictographs {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}
