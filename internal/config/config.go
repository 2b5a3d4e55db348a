package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imagescrape"

	// DefaultNum is the number of images fetched per query.
	DefaultNum = 100

	// DefaultTimeout bounds each individual GET, search or image.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxConns caps the connections the transport keeps open at once.
	DefaultMaxConns = 5

	// DefaultBatchSize of 1 processes queries one after another.
	DefaultBatchSize = 1

	// DefaultSearchEndpoint is the text image-search endpoint.
	DefaultSearchEndpoint = "https://www.google.com/search"

	// DefaultReverseEndpoint is the reverse image-search endpoint.
	DefaultReverseEndpoint = "https://www.google.com/searchbyimage"

	// DefaultUserAgent is the browser identity sent with search requests.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.1 Safari/605.1.15"

	// DefaultReferer is sent with search requests.
	DefaultReferer = "https://www.google.com/"

	// DefaultMaxPageSize limits the search response body.
	DefaultMaxPageSize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxImageSize limits a single downloaded image.
	DefaultMaxImageSize = 50 * 1024 * 1024 // 50MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// DefaultBlockedHosts are host substrings whose image URLs are discarded.
// gstatic hosts serve the search engine's own thumbnails.
var DefaultBlockedHosts = []string{"gstatic"}

// Config holds all settings for one imagescrape invocation.
type Config struct {
	// Queries are the raw query strings to fetch images for.
	Queries []string

	// Reverse selects reverse image search; every query must then be an image URL.
	Reverse bool

	// Num is the target number of images per query.
	Num int

	// NumExplicit is true when Num came from the command line; it then
	// overrides per-query values from the configuration file.
	NumExplicit bool

	// DataDir is the root directory; each query gets a subdirectory.
	DataDir string

	// Timeout bounds each GET request.
	Timeout time.Duration

	// MaxConns caps concurrently open connections.
	MaxConns int

	// MaxPageSize limits the search response body in bytes.
	MaxPageSize int64

	// MaxImageSize limits a downloaded image in bytes.
	MaxImageSize int64

	// SearchEndpoint and ReverseEndpoint are the search URLs per mode.
	SearchEndpoint  string
	ReverseEndpoint string

	// UserAgent and Referer are sent with search requests.
	UserAgent string
	Referer   string

	// BlockedHosts are host substrings removed from extracted candidates.
	BlockedHosts []string

	// BatchSize is the number of queries processed concurrently.
	BatchSize int

	// KeepGoing records network and filesystem failures per image and
	// continues instead of aborting the run on the first one. Images the
	// server rejects are always skipped.
	KeepGoing bool

	// ProxyAddress routes all traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes traffic through it.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the explicit configuration file, if any.
	ConfigFilePath string

	// File is the loaded configuration file (never nil after loading).
	File *File

	// JSONReport and MarkdownReport select the summary format.
	// Mutually exclusive; neither means human-readable text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the summary to a file instead of stdout.
	ReportFile string

	// SaveHistory stores runs in the SQLite history database.
	SaveHistory bool

	// DBDir is the directory of the history database.
	DBDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Num:               DefaultNum,
		DataDir:           XDGImageDir(),
		Timeout:           DefaultTimeout,
		MaxConns:          DefaultMaxConns,
		MaxPageSize:       DefaultMaxPageSize,
		MaxImageSize:      DefaultMaxImageSize,
		SearchEndpoint:    DefaultSearchEndpoint,
		ReverseEndpoint:   DefaultReverseEndpoint,
		UserAgent:         DefaultUserAgent,
		Referer:           DefaultReferer,
		BlockedHosts:      append([]string(nil), DefaultBlockedHosts...),
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		SaveHistory:       true,
		DBDir:             XDGDataDir(),
		File:              NewFile(),
	}
}

// XDGDataDir returns the XDG data directory for imagescrape.
// On Linux: ~/.local/share/imagescrape
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGImageDir returns the default root directory for downloaded images.
// On Linux: ~/.local/share/imagescrape/data
func XDGImageDir() string {
	return filepath.Join(XDGDataDir(), "data")
}

// XDGConfigDir returns the XDG config directory for imagescrape.
// On Linux: ~/.config/imagescrape
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ApplyFile copies global settings from the configuration file into c.
// Only non-zero file values override; CLI flags are applied afterwards.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f
	if f.DataDir != "" {
		c.DataDir = f.DataDir
	}
	if f.SearchEndpoint != "" {
		c.SearchEndpoint = f.SearchEndpoint
	}
	if f.ReverseEndpoint != "" {
		c.ReverseEndpoint = f.ReverseEndpoint
	}
	if f.Proxy != "" {
		c.ProxyAddress = f.Proxy
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.Defaults.Num > 0 {
		c.Num = f.Defaults.Num
	}
	if len(f.Defaults.BlockedHosts) > 0 {
		c.BlockedHosts = f.Defaults.BlockedHosts
	}
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Queries) == 0 {
		return ErrNoQuery
	}
	if c.Num < 0 {
		return ErrInvalidNum
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConns <= 0 {
		return ErrInvalidMaxConns
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxPageSize < 0 || c.MaxImageSize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxies
	}
	return nil
}
