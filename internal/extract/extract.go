// Package extract finds candidate image URLs in a search response body.
package extract

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// imageURLPattern matches an https URL ending in an image extension.
// The extension set is case-sensitive and a query string ends the match.
var imageURLPattern = regexp.MustCompile(`(https://[a-zA-Z0-9/_.-]+[.](?:jpg|jpeg|png|svg|gif|tiff))`)

// DefaultBlockedHosts excludes thumbnails served by the search engine itself.
var DefaultBlockedHosts = []string{"gstatic"}

// Extractor scans response bodies for image URLs.
type Extractor struct {
	blockedHosts []string
	logger       *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBlockedHosts replaces the host substrings whose URLs are discarded.
func WithBlockedHosts(hosts []string) Option {
	return func(e *Extractor) {
		e.blockedHosts = hosts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor that blocks DefaultBlockedHosts unless told otherwise.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		blockedHosts: DefaultBlockedHosts,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns every image URL in body in order of appearance, duplicates
// included, minus those on a blocked host. The result is never nil.
func (e *Extractor) Extract(body string) []string {
	matches := imageURLPattern.FindAllString(body, -1)
	candidates := make([]string, 0, len(matches))

	blocked := 0
	for _, m := range matches {
		if e.IsBlocked(m) {
			blocked++
			continue
		}
		candidates = append(candidates, m)
	}

	e.logger.Debug("extracted image candidates",
		"matches", len(matches),
		"blocked", blocked,
		"candidates", len(candidates),
	)

	return candidates
}

// IsBlocked reports whether the host of rawURL contains a blocked substring.
func (e *Extractor) IsBlocked(rawURL string) bool {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	for _, b := range e.blockedHosts {
		if b != "" && strings.Contains(host, b) {
			return true
		}
	}
	return false
}
