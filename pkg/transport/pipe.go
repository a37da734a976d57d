package transport

import (
	"sync"

	"github.com/xenonsan/eagpaas/pkg/chat"
)

// Pipe is an in-memory Conn. It backs the flow tests and is useful for
// embedding the gateway in the same process as a codec layer.
type Pipe struct {
	username string
	inbound  chan string

	mu     sync.Mutex
	done   chan struct{}
	closed bool
	reason string
	sent   []chat.Component
	titles [][2]string
	onSend func(chat.Component)
}

// NewPipe creates a Pipe for the given username.
func NewPipe(username string) *Pipe {
	return &Pipe{
		username: username,
		inbound:  make(chan string, 16),
		done:     make(chan struct{}),
	}
}

// Username is the name the client connected with.
func (p *Pipe) Username() string { return p.username }

// Inbound delivers chat lines pushed via Push.
func (p *Pipe) Inbound() <-chan string { return p.inbound }

// Push injects an inbound chat line, as if the client typed it.
// Pushing to a closed pipe is a no-op.
func (p *Pipe) Push(line string) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.inbound <- line:
	case <-p.done:
	}
}

// SendComponent records the component and forwards it to the send hook.
func (p *Pipe) SendComponent(c chat.Component) error {
	p.mu.Lock()
	p.sent = append(p.sent, c)
	hook := p.onSend
	p.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

// SendTitle records the title update.
func (p *Pipe) SendTitle(header, footer string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = append(p.titles, [2]string{header, footer})
	return nil
}

// End closes the pipe with a reason. Only the first call takes effect.
func (p *Pipe) End(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.reason = reason
	close(p.done)
}

// Done is closed once End has been called.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Closed reports whether End has been called and with what reason.
func (p *Pipe) Closed() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.reason
}

// Sent returns a copy of every component written so far.
func (p *Pipe) Sent() []chat.Component {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chat.Component, len(p.sent))
	copy(out, p.sent)
	return out
}

// Titles returns every header/footer update written so far.
func (p *Pipe) Titles() [][2]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][2]string, len(p.titles))
	copy(out, p.titles)
	return out
}

// OnSend installs a hook invoked for every outbound component.
func (p *Pipe) OnSend(fn func(chat.Component)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSend = fn
}

// Verify interface compliance.
var _ Conn = (*Pipe)(nil)
