package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/xenonsan/eagpaas/pkg/chat"
)

// JSONLineListener is a development transport: newline-delimited JSON over
// TCP. The first client line is a hello carrying the username (and optionally
// a resume token); every later line is one chat message. Outbound frames are
// JSON objects tagged with a type. It exists so the gateway binary can run
// end to end without the Eaglercraft codec, which lives in a separate layer.
type JSONLineListener struct {
	ln net.Listener
}

// ListenJSONLines starts the dev transport on addr.
func ListenJSONLines(addr string) (*JSONLineListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &JSONLineListener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *JSONLineListener) Addr() net.Addr { return l.ln.Addr() }

type helloFrame struct {
	Username string `json:"username"`
	Resume   string `json:"resume,omitempty"`
}

type outboundFrame struct {
	Type      string          `json:"type"` // chat, title, end
	Component *chat.Component `json:"component,omitempty"`
	Header    string          `json:"header,omitempty"`
	Footer    string          `json:"footer,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Accept blocks until a client completes the hello handshake.
func (l *JSONLineListener) Accept(ctx context.Context) (Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nc, err := l.ln.Accept()
		if err != nil {
			return nil, err
		}

		conn, err := newJSONLineConn(nc)
		if err != nil {
			slog.Debug("dev transport: handshake failed", "remote", nc.RemoteAddr(), "error", err)
			_ = nc.Close()
			continue
		}
		return conn, nil
	}
}

// Close stops the listener.
func (l *JSONLineListener) Close() error { return l.ln.Close() }

type jsonLineConn struct {
	nc       net.Conn
	username string
	resume   string
	inbound  chan string

	mu     sync.Mutex
	enc    *json.Encoder
	done   chan struct{}
	closed bool
}

func newJSONLineConn(nc net.Conn) (*jsonLineConn, error) {
	r := bufio.NewReader(nc)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	var hello helloFrame
	if err := json.Unmarshal(line, &hello); err != nil {
		return nil, fmt.Errorf("parsing hello: %w", err)
	}
	if hello.Username == "" {
		return nil, fmt.Errorf("hello missing username")
	}

	c := &jsonLineConn{
		nc:       nc,
		username: hello.Username,
		resume:   hello.Resume,
		inbound:  make(chan string, 16),
		enc:      json.NewEncoder(nc),
		done:     make(chan struct{}),
	}
	go c.readLoop(r)
	return c, nil
}

func (c *jsonLineConn) readLoop(r *bufio.Reader) {
	defer c.End("")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if line = trimEOL(line); line == "" {
			continue
		}
		select {
		case c.inbound <- line:
		case <-c.done:
			return
		}
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (c *jsonLineConn) Username() string       { return c.username }
func (c *jsonLineConn) Inbound() <-chan string { return c.inbound }
func (c *jsonLineConn) Done() <-chan struct{}  { return c.done }

// ResumeToken exposes the hello's resume token to the gateway accept loop.
func (c *jsonLineConn) ResumeToken() string { return c.resume }

func (c *jsonLineConn) SendComponent(comp chat.Component) error {
	return c.send(outboundFrame{Type: "chat", Component: &comp})
}

func (c *jsonLineConn) SendTitle(header, footer string) error {
	return c.send(outboundFrame{Type: "title", Header: header, Footer: footer})
}

func (c *jsonLineConn) send(f outboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.enc.Encode(f)
}

func (c *jsonLineConn) End(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if reason != "" {
		_ = c.enc.Encode(outboundFrame{Type: "end", Reason: reason})
	}
	close(c.done)
	c.mu.Unlock()
	_ = c.nc.Close()
}

// ResumeTokenCarrier is implemented by transports that deliver a reconnect
// token during the handshake.
type ResumeTokenCarrier interface {
	ResumeToken() string
}

// Verify interface compliance.
var (
	_ Conn     = (*jsonLineConn)(nil)
	_ Listener = (*JSONLineListener)(nil)
)
