package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoQuery is returned when no --query was given.
	ErrNoQuery = errors.New("no query specified: use --query")

	// ErrInvalidNum is returned when the requested image count is negative.
	// Zero is valid and downloads nothing.
	ErrInvalidNum = errors.New("invalid number of images: must not be negative")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxConns is returned when the connection cap is not positive.
	ErrInvalidMaxConns = errors.New("invalid connection limit: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxBodySize is returned when a body size limit is negative.
	// Zero disables the limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoDataDir is returned when the output root directory is empty.
	ErrNoDataDir = errors.New("no data directory configured")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxies is returned when both --tor and --proxy are set.
	ErrConflictingProxies = errors.New("conflicting proxies: --tor and --proxy cannot be used together")
)
