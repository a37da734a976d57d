package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// fakeBackend records switch attempts and returns scripted results. release,
// when set, blocks the attempt until closed.
type fakeBackend struct {
	mu       sync.Mutex
	requests []connect.Request
	err      error
	release  chan struct{}
}

func (b *fakeBackend) SwitchServers(_ context.Context, _ transport.Conn, req connect.Request) error {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	release := b.release
	err := b.err
	b.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

func (b *fakeBackend) Requests() []connect.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]connect.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// flattenText renders a component tree as plain text.
func flattenText(c chat.Component) string {
	out := c.Text
	for _, extra := range c.Extra {
		out += flattenText(extra)
	}
	return out
}

func TestSwitchSuccessClearsLock(t *testing.T) {
	backend := &fakeBackend{}
	switcher := NewSwitcher(backend)
	pipe := transport.NewPipe("steve")
	sess := session.New(pipe)

	req := connect.Request{Host: "mc.example.com", Port: 25565, Mode: connect.Offline}
	require.NoError(t, switcher.Switch(context.Background(), sess, req))

	assert.False(t, sess.SwitchInProgress())
	require.Len(t, backend.Requests(), 1)
	assert.Equal(t, req, backend.Requests()[0])

	closed, _ := pipe.Closed()
	assert.False(t, closed)
}

func TestSwitchFailureEndsSessionAndClearsLock(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	switcher := NewSwitcher(backend)
	pipe := transport.NewPipe("steve")
	sess := session.New(pipe)

	err := switcher.Switch(context.Background(), sess, connect.Request{Host: "mc.example.com", Port: 25565})
	require.Error(t, err)

	assert.False(t, sess.SwitchInProgress())
	closed, reason := pipe.Closed()
	require.True(t, closed)
	assert.Contains(t, reason, "Something went wrong while switching servers: connection refused")
}

func TestSwitchHostNotFoundHints(t *testing.T) {
	notFound := &transport.SwitchError{Code: transport.CodeHostNotFound, Message: "no such host"}

	tests := []struct {
		host string
		hint string
	}{
		{"mc.example.com:25565", "replace the : in your address with a space"},
		{"mc.example.com", "Is that address valid?"},
	}
	for _, tc := range tests {
		backend := &fakeBackend{err: notFound}
		switcher := NewSwitcher(backend)
		pipe := transport.NewPipe("steve")
		sess := session.New(pipe)

		err := switcher.Switch(context.Background(), sess, connect.Request{Host: tc.host, Port: 25565})
		require.Error(t, err)

		_, reason := pipe.Closed()
		assert.Contains(t, reason, "no such host")
		assert.Contains(t, reason, tc.hint, "host %q", tc.host)
	}
}

func TestSwitchRejectsConcurrentAttempt(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	switcher := NewSwitcher(backend)
	pipe := transport.NewPipe("steve")
	sess := session.New(pipe)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- switcher.Switch(context.Background(), sess,
			connect.Request{Host: "a.example.com", Port: 25565})
	}()

	// Wait for the first attempt to take the lock.
	require.Eventually(t, sess.SwitchInProgress, time.Second, time.Millisecond)

	err := switcher.Switch(context.Background(), sess,
		connect.Request{Host: "b.example.com", Port: 25565})
	assert.ErrorIs(t, err, ErrSwitchInProgress)

	found := false
	for _, c := range pipe.Sent() {
		if flattenText(c) == "[EagPAAS] A server switch is already in progress, hold on!" {
			found = true
		}
	}
	assert.True(t, found, "rejection message not sent")

	close(backend.release)
	require.NoError(t, <-firstDone)
	assert.False(t, sess.SwitchInProgress())
	assert.Len(t, backend.Requests(), 1)
}

func TestSwitchRunsEvenWhenContextCancelled(t *testing.T) {
	backend := &fakeBackend{}
	switcher := NewSwitcher(backend)
	sess := session.New(transport.NewPipe("steve"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, switcher.Switch(ctx, sess, connect.Request{Host: "mc.example.com", Port: 25565}))
	assert.Len(t, backend.Requests(), 1)
	assert.False(t, sess.SwitchInProgress())
}
