package search

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/nao1215/imagescrape/internal/model"
)

// Endpoints holds the search URL for each query mode.
type Endpoints struct {
	// Search is used for model.ModeTextSearch.
	Search string

	// Reverse is used for model.ModeReverseImageSearch.
	Reverse string
}

// Request describes one outbound GET.
type Request struct {
	// URL is the target without the query parameters in Params.
	URL string

	// Header is sent as is. Nil sends only the transport defaults.
	Header http.Header

	// Params are encoded into the query string.
	Params url.Values
}

// DefaultHeader returns the browser identity attached to search requests.
// Accept-Encoding is left to the transport, which asks for gzip and
// decompresses the body itself; setting it here would disable that.
func DefaultHeader(userAgent, referer string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Referer", referer)
	return h
}

// MergeHeader returns a copy of base with every entry of extra set on top.
func MergeHeader(base http.Header, extra map[string]string) http.Header {
	h := base.Clone()
	if h == nil {
		h = make(http.Header)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}

// BuildRequest builds the search request for q.
func BuildRequest(q model.Query, endpoints Endpoints, header http.Header) (Request, error) {
	switch q.Mode {
	case model.ModeTextSearch:
		return Request{
			URL:    endpoints.Search,
			Header: header,
			Params: url.Values{
				"q":   {q.Text},
				"tbm": {"isch"},
			},
		}, nil
	case model.ModeReverseImageSearch:
		return Request{
			URL:    endpoints.Reverse,
			Header: header,
			Params: url.Values{
				"image_url":     {q.Text},
				"encoded_image": {""},
				"image_content": {""},
				"filename":      {""},
				"hl":            {"en"},
			},
		}, nil
	default:
		return Request{}, fmt.Errorf("%w: %d", ErrUnknownMode, int(q.Mode))
	}
}

// NewImageRequest builds the plain GET for an image URL: no custom headers
// and no parameters.
func NewImageRequest(imageURL string) Request {
	return Request{URL: imageURL}
}

// FullURL returns URL with Params merged into its query string.
// Without Params the URL is returned untouched.
func (r Request) FullURL() (string, error) {
	if len(r.Params) == 0 {
		return r.URL, nil
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", err)
	}

	query := u.Query()
	for k, vs := range r.Params {
		query[k] = vs
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
