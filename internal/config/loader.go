package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".imagescrape"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// QueryConfig holds settings that can be set globally under "defaults" or
// per query under "queries".
type QueryConfig struct {
	// Num overrides the number of images for the query. Zero keeps the default.
	Num int `yaml:"num,omitempty"`

	// Headers are added to (or replace) the search request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// BlockedHosts replaces the list of host substrings to discard.
	BlockedHosts []string `yaml:"blocked_hosts,omitempty"`
}

// File represents the structure of the .imagescrape configuration file.
type File struct {
	// DataDir is the root directory for downloaded images.
	DataDir string `yaml:"data_dir,omitempty"`

	// SearchEndpoint overrides the text image-search URL.
	SearchEndpoint string `yaml:"search_endpoint,omitempty"`

	// ReverseEndpoint overrides the reverse image-search URL.
	ReverseEndpoint string `yaml:"reverse_endpoint,omitempty"`

	// Proxy is a SOCKS5 proxy address in "host:port" format.
	Proxy string `yaml:"proxy,omitempty"`

	// Timeout bounds each GET request, e.g. "60s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Defaults apply to every query unless overridden in Queries.
	Defaults QueryConfig `yaml:"defaults,omitempty"`

	// Queries maps a query string to its specific settings.
	Queries map[string]QueryConfig `yaml:"queries,omitempty"`
}

// NewFile returns an empty configuration file.
func NewFile() *File {
	return &File{Queries: make(map[string]QueryConfig)}
}

// GetQueryConfig returns the configuration for query, merging the
// query-specific entry over the defaults. Headers merge key by key.
func (cf *File) GetQueryConfig(query string) QueryConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	override, ok := cf.Queries[query]
	if !ok {
		return result
	}

	if override.Num > 0 {
		result.Num = override.Num
	}
	if len(override.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if len(override.BlockedHosts) > 0 {
		result.BlockedHosts = override.BlockedHosts
	}

	return result
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cf := NewFile()
	if err := yaml.Unmarshal(data, cf); err != nil {
		return nil, err
	}

	if cf.Queries == nil {
		cf.Queries = make(map[string]QueryConfig)
	}

	return cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, if specified
// 2. .imagescrape in the current directory
// 3. .imagescrape in the user's home directory
// 4. config.yaml in the XDG config directory
//
// Returns the path found, or an empty string.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
