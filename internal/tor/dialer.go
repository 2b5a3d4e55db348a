package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake performed by CheckProxy.
const checkProxyTimeout = 2 * time.Second

// Dialer opens connections through a SOCKS5 proxy.
type Dialer struct {
	// address is the proxy address in "host:port" format.
	address string

	// dialer is the underlying SOCKS5 dialer.
	dialer proxy.Dialer
}

// NewDialer creates a Dialer for the SOCKS5 proxy at address.
//
// The address must be in "host:port" format (e.g., "127.0.0.1:9050").
// No connection is made here; use CheckProxy to verify the proxy is alive.
func NewDialer(address string) (*Dialer, error) {
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor and most local SOCKS proxies accept unauthenticated clients.
	d, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Dialer{address: address, dialer: d}, nil
}

// isValidProxyAddress reports whether address is "host:port" with a non-empty
// host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (d *Dialer) Address() string {
	return d.address
}

// DialContext connects to addr through the proxy. It satisfies the
// http.Transport DialContext signature.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}

	// proxy.Dialer has no context support; abandon the dial on cancellation.
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := d.dialer.Dial(network, addr)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// probeHost and probePort form the CONNECT target of the health check.
	// Any reply, including a failure code, proves the proxy handles requests.
	probeHost = "www.google.com"
	probePort = 443
)

// CheckProxy verifies that a SOCKS5 proxy is listening at address and accepts
// unauthenticated CONNECT requests.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailureStatus(err)
	}
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(probeHost)),
	}
	connectReq = append(connectReq, probeHost...)
	connectReq = append(connectReq, byte(probePort>>8), byte(probePort&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, reply, reserved, address type
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailureStatus(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

// readFailureStatus maps a handshake read error to a status.
func readFailureStatus(err error) ProxyStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
