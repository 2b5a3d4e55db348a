// Package log provides the slog setup used by imagescrape.
//
// SecureHandler wraps any slog.Handler and masks sensitive attributes before
// they are written:
//   - HTTP headers that carry credentials (Authorization, Cookie, Proxy-Authorization)
//   - Attribute keys naming secrets (password, token, secret, auth)
//   - Bearer and Basic credentials, JWTs
//   - URL passwords and signed query parameters (key, token, sig, signature)
//
// Image URLs returned by search engines are often signed, and proxy addresses
// may embed credentials, so URL values are rewritten rather than dropped: the
// host and path stay readable while the secret parts become MaskValue.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Warn("download failed",
//	    "url", "https://cdn.example.com/a.jpg?sig=abc123", // sig=***REDACTED***
//	)
package log
