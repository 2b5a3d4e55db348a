package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"
)

// ReturnFormat declares what the caller expects back from Fetch.
type ReturnFormat int

const (
	// FormatRaw returns the body bytes untouched. Used for images.
	FormatRaw ReturnFormat = iota + 1

	// FormatHTML returns the body decoded to UTF-8. Used for search pages.
	FormatHTML
)

// String returns the format name.
func (f ReturnFormat) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatHTML:
		return "html"
	default:
		return "invalid"
	}
}

// Default transport settings.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultMaxConns     = 5
	DefaultMaxPageSize  = 10 * 1024 * 1024
	DefaultMaxImageSize = 50 * 1024 * 1024
)

// ContextDialer opens network connections. *tor.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Client is the reusable transport session. It is safe for concurrent use.
//
// One Client is shared by every query of a batch, so its limits are global
// rather than per query. The connection cap counts open sockets, not
// requests: a slot is taken when a connection is dialed and returned only
// when that connection closes, so idle keep-alive connections hold slots
// too. When every slot is taken, idle pooled connections are closed before
// waiting, which keeps a busy host from starving the others. The cap and
// the dialer apply only to the built-in transport; an injected RoundTripper
// is used as is.
//
// TLS certificates are not verified. Image hosts returned by a search are
// arbitrary and a bad certificate must not cost the image.
type Client struct {
	httpClient *http.Client

	// transport is nil when a RoundTripper was injected.
	transport *http.Transport

	timeout      time.Duration
	maxConns     int
	maxPageSize  int64
	maxImageSize int64
	dialer       ContextDialer
	roundTripper http.RoundTripper
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the budget of each individual GET.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxConns caps the number of simultaneously open connections.
func WithMaxConns(n int) Option {
	return func(c *Client) {
		c.maxConns = n
	}
}

// WithMaxPageSize limits FormatHTML bodies. Zero disables the limit.
func WithMaxPageSize(size int64) Option {
	return func(c *Client) {
		c.maxPageSize = size
	}
}

// WithMaxImageSize limits FormatRaw bodies. Zero disables the limit.
func WithMaxImageSize(size int64) Option {
	return func(c *Client) {
		c.maxImageSize = size
	}
}

// WithDialer routes every connection through d, e.g. a SOCKS5 proxy.
func WithDialer(d ContextDialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithRoundTripper replaces the network transport entirely.
// The connection cap and dialer do not apply to an injected RoundTripper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates the transport session.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:      DefaultTimeout,
		maxConns:     DefaultMaxConns,
		maxPageSize:  DefaultMaxPageSize,
		maxImageSize: DefaultMaxImageSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rt := c.roundTripper
	if rt == nil {
		c.transport = c.newTransport()
		rt = c.transport
	}

	c.httpClient = &http.Client{
		Transport: rt,
		Timeout:   c.timeout,
	}
	return c
}

// newTransport builds the pooled transport. TLS verification is disabled
// and the total number of open connections is capped at maxConns.
func (c *Client) newTransport() *http.Transport {
	var base ContextDialer = &net.Dialer{Timeout: c.timeout, KeepAlive: 30 * time.Second}
	if c.dialer != nil {
		base = c.dialer
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // image hosts are arbitrary and often misconfigured
		},
		MaxIdleConns:          c.maxConns,
		MaxIdleConnsPerHost:   c.maxConns,
		MaxConnsPerHost:       c.maxConns,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if c.maxConns > 0 {
		limited := &limitedDialer{
			base:      base,
			sem:       semaphore.NewWeighted(int64(c.maxConns)),
			closeIdle: transport.CloseIdleConnections,
		}
		transport.DialContext = limited.DialContext
	} else {
		transport.DialContext = base.DialContext
	}

	return transport
}

// Close releases idle connections.
func (c *Client) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// Fetch performs exactly one GET for req and returns the body in the
// requested format. An unknown format fails before any I/O.
func (c *Client) Fetch(ctx context.Context, req Request, format ReturnFormat) ([]byte, error) {
	var limit int64
	switch format {
	case FormatRaw:
		limit = c.maxImageSize
	case FormatHTML:
		limit = c.maxPageSize
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidReturnFormat, int(format))
	}

	target, err := req.FullURL()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}

	c.logger.Debug("sending request", "url", target, "format", format.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, req.URL, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("received response",
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if format == FormatRaw {
		return body, nil
	}
	return decodeHTML(body, resp.Header.Get("Content-Type"))
}

// FetchPage fetches a search page as UTF-8 text.
func (c *Client) FetchPage(ctx context.Context, req Request) (string, error) {
	body, err := c.Fetch(ctx, req, FormatHTML)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchImage fetches the raw bytes of an image with a plain GET.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	return c.Fetch(ctx, NewImageRequest(imageURL), FormatRaw)
}

// readLimited reads r fully, failing with ErrBodyTooLarge past limit bytes.
// A non-positive limit reads without bound.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// decodeHTML converts body to UTF-8 using the declared or sniffed charset.
func decodeHTML(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return decoded, nil
}

// limitedDialer caps the number of open connections. A slot is taken on
// dial and returned when the connection is closed.
type limitedDialer struct {
	base      ContextDialer
	sem       *semaphore.Weighted
	closeIdle func()
}

// DialContext waits for a free slot, then dials. When every slot is held,
// idle pooled connections are closed first so their slots can be reused.
func (d *limitedDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if !d.sem.TryAcquire(1) {
		d.closeIdle()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	conn, err := d.base.DialContext(ctx, network, addr)
	if err != nil {
		d.sem.Release(1)
		return nil, err
	}
	return &limitedConn{Conn: conn, release: func() { d.sem.Release(1) }}, nil
}

// limitedConn returns its slot exactly once on Close.
type limitedConn struct {
	net.Conn
	once    sync.Once
	release func()
}

// Close closes the connection and frees its slot.
func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}
