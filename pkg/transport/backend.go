package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// TCPBackend is a minimal Backend that verifies the destination accepts a TCP
// connection. The real protocol relay takes over the socket out of band; this
// backend only produces the success/failure classification the flow needs.
type TCPBackend struct {
	// DialTimeout bounds one connection attempt. Defaults to 10s.
	DialTimeout time.Duration

	// dial is swapped in tests.
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCPBackend creates a TCPBackend with the default timeout.
func NewTCPBackend() *TCPBackend {
	return &TCPBackend{DialTimeout: 10 * time.Second}
}

// SwitchServers dials the destination and classifies the result.
func (b *TCPBackend) SwitchServers(ctx context.Context, _ Conn, req connect.Request) error {
	timeout := b.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := b.dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	conn, err := dial(ctx, "tcp", req.Addr())
	if err != nil {
		return classifyDialError(err)
	}
	return conn.Close()
}

func classifyDialError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return &SwitchError{Code: CodeHostNotFound, Message: err.Error()}
	}
	return &SwitchError{Message: err.Error()}
}

// Verify interface compliance.
var _ Backend = (*TCPBackend)(nil)
