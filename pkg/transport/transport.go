// Package transport defines the boundary between the onboarding flow and the
// wire protocol layers. The frontend codec, the WebSocket relay, and backend
// connection management live outside this module; the flow talks to them
// through the interfaces here.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
)

// ErrClosed is returned by waits on a connection whose transport has closed.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one frontend client connection. Implementations deliver
// chat-classified inbound lines on Inbound and close Done when the underlying
// transport goes away for any reason.
type Conn interface {
	// Username is the name the client connected with.
	Username() string

	// Inbound delivers chat-classified text lines from the client.
	Inbound() <-chan string

	// SendComponent writes a chat component to the client.
	SendComponent(c chat.Component) error

	// SendTitle updates the player-list header and footer, the gateway's
	// persistent status line.
	SendTitle(header, footer string) error

	// End closes the connection with a user-visible reason. Ending an
	// already-closed connection is a no-op.
	End(reason string)

	// Done is closed once the transport is gone.
	Done() <-chan struct{}
}

// Backend performs the actual server handoff for an onboarded session.
type Backend interface {
	// SwitchServers connects the session's transport to the destination.
	// Failures should be *SwitchError where a code is known.
	SwitchServers(ctx context.Context, conn Conn, req connect.Request) error
}

// Listener accepts frontend connections.
type Listener interface {
	// Accept blocks until a client connects or ctx is cancelled.
	Accept(ctx context.Context) (Conn, error)

	// Close stops the listener.
	Close() error
}

// Error codes a Backend may attach to a failed switch.
const (
	// CodeHostNotFound marks DNS resolution failures. The flow appends a
	// contextual hint for this code because users routinely paste host:port
	// into the host argument.
	CodeHostNotFound = "host not found"
)

// SwitchError is a classified backend handoff failure.
type SwitchError struct {
	Code    string
	Message string
}

func (e *SwitchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}
