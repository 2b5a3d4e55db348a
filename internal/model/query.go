package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Mode selects how a Query is sent to the search engine.
type Mode int

const (
	// ModeTextSearch searches images by free text.
	ModeTextSearch Mode = iota

	// ModeReverseImageSearch searches images similar to a source image URL.
	ModeReverseImageSearch
)

// ErrEmptyQuery is returned by NewQuery when the query is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// String returns the mode name used in records and reports.
func (m Mode) String() string {
	switch m {
	case ModeTextSearch:
		return "text_search"
	case ModeReverseImageSearch:
		return "reverse_image_search"
	default:
		return "unknown"
	}
}

// Variant returns the scraper variant name stored in every ImageRecord.
func (m Mode) Variant() string {
	switch m {
	case ModeTextSearch:
		return "GoogleImagesScraper"
	case ModeReverseImageSearch:
		return "GoogleImagesReverseScraper"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode converts a mode name back into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "text_search", "text", "":
		return ModeTextSearch, nil
	case "reverse_image_search", "reverse":
		return ModeReverseImageSearch, nil
	default:
		return ModeTextSearch, fmt.Errorf("unknown search mode: %q", s)
	}
}

// Query is an immutable search input: free text in ModeTextSearch or an
// image URL in ModeReverseImageSearch.
type Query struct {
	// Text is the trimmed, NFC-normalized query string.
	Text string `json:"text"`

	// Mode is the request strategy used for this query.
	Mode Mode `json:"mode"`
}

// NewQuery trims surrounding whitespace from raw, normalizes it to Unicode
// NFC and tags it with mode.
func NewQuery(raw string, mode Mode) (Query, error) {
	text := norm.NFC.String(strings.TrimSpace(raw))
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	return Query{Text: text, Mode: mode}, nil
}

// DirName returns the name of the output directory for this query.
// Whitespace runes and path separators are replaced by hyphens, so
// "  cute cats  " and "cute cats" share the directory "cute-cats".
func (q Query) DirName() string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, strings.TrimSpace(q.Text))
}

// String returns the query text.
func (q Query) String() string {
	return q.Text
}
