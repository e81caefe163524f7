package libvirt

import (
	"context"
	"testing"
	"time"
)

// Connection tests against a live daemon are gated: they skip in short mode
// and when no libvirt socket is reachable on the host.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, err := Connect("", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	return c
}

func TestConnect(t *testing.T) {
	c := connectOrSkip(t)
	defer c.Close() //nolint:errcheck

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestConnectInvalidSocket(t *testing.T) {
	if _, err := Connect("/nonexistent/socket", 100*time.Millisecond); err == nil {
		t.Fatal("expected error connecting to nonexistent socket, got nil")
	}
}

func TestConnectWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ConnectWithContext(ctx, "", 0); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestConnectWithContext(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := ConnectWithContext(ctx, "", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	defer c.Close() //nolint:errcheck

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestCloseZeroClient(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Fatalf("Close on zero Client failed: %v", err)
	}
}

func TestPingDisconnected(t *testing.T) {
	var c Client
	if err := c.Ping(); err == nil {
		t.Fatal("expected error from Ping on disconnected client, got nil")
	}
}

func TestLibvirtAccessor(t *testing.T) {
	c := connectOrSkip(t)
	defer c.Close() //nolint:errcheck

	l := c.Libvirt()
	if l == nil {
		t.Fatal("Libvirt() returned nil")
	}
	version, err := l.ConnectGetLibVersion()
	if err != nil {
		t.Fatalf("ConnectGetLibVersion failed: %v", err)
	}
	if version == 0 {
		t.Fatal("got version 0, expected non-zero")
	}
}
