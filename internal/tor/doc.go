// Package tor routes imagescrape traffic through a SOCKS5 proxy.
//
// A Dialer is created from a "host:port" proxy address, either one given with
// --proxy or the SOCKS port of an embedded Tor daemon started with --tor.
// CheckProxy performs a SOCKS5 handshake so a dead or misconfigured proxy is
// reported before any search request is sent.
package tor
