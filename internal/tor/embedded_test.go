package tor

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []EmbeddedTorOption
		want time.Duration
	}{
		{name: "default timeout", want: DefaultStartupTimeout},
		{name: "custom timeout", opts: []EmbeddedTorOption{WithStartupTimeout(5 * time.Minute)}, want: 5 * time.Minute},
		{name: "zero timeout is ignored", opts: []EmbeddedTorOption{WithStartupTimeout(0)}, want: DefaultStartupTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewEmbeddedTor(tt.opts...)
			if e.startupTimeout != tt.want {
				t.Errorf("expected timeout %v, got %v", tt.want, e.startupTimeout)
			}
		})
	}
}

// TestEmbeddedTorNotStarted exercises the accessors without launching Tor.
func TestEmbeddedTorNotStarted(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()

	if e.SocksAddr() != "" {
		t.Errorf("expected empty SocksAddr, got %q", e.SocksAddr())
	}
	if e.IsRunning() {
		t.Error("expected IsRunning to be false")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on unstarted instance returned %v", err)
	}
	if _, err := e.NewDialer(); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
}
