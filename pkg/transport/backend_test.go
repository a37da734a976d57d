package transport

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

func TestSwitchServersSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	backend := NewTCPBackend()
	err = backend.SwitchServers(context.Background(), nil, connect.Request{
		Host: addr.IP.String(), Port: uint16(addr.Port),
	})
	assert.NoError(t, err)
}

func TestSwitchServersDialFailure(t *testing.T) {
	backend := NewTCPBackend()
	backend.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	err := backend.SwitchServers(context.Background(), nil, connect.Request{Host: "198.51.100.1", Port: 25565})
	var switchErr *SwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Empty(t, switchErr.Code)
	assert.Contains(t, switchErr.Message, "connection refused")
}

func TestClassifyDialErrorHostNotFound(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "missing.example.com", IsNotFound: true}

	err := classifyDialError(&net.OpError{Op: "dial", Err: dnsErr})
	var switchErr *SwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, CodeHostNotFound, switchErr.Code)
}

func TestSwitchErrorMessage(t *testing.T) {
	withCode := &SwitchError{Code: CodeHostNotFound, Message: "no such host"}
	assert.Equal(t, "no such host (host not found)", withCode.Error())

	plain := &SwitchError{Message: "connection refused"}
	assert.Equal(t, "connection refused", plain.Error())
}
