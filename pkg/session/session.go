// Package session tracks connected frontend clients across the onboarding
// flow: their state, idle timestamps, the single-flight switch lock, and any
// cached online credential reused between in-session server switches.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// State is the coarse lifecycle position of a session.
type State int

const (
	// StateAuthenticating covers acceptance through gating, mode selection,
	// and auth.
	StateAuthenticating State = iota

	// StateConnected starts once auth completes, including the time spent
	// picking a destination before the backend handoff.
	StateConnected
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateConnected:
		return "CONNECTED"
	}
	return "UNKNOWN"
}

// ClientSession is one connected frontend client. All mutators are safe for
// concurrent use; the reaper reads sessions while their flow goroutine
// mutates them.
type ClientSession struct {
	id   string
	conn transport.Conn

	mu                sync.Mutex
	state             State
	lastStatusUpdate  time.Time
	switchInProgress  bool
	credential        *connect.Credential
	destinationChosen bool
}

// New creates a session in StateAuthenticating for the given connection.
func New(conn transport.Conn) *ClientSession {
	return &ClientSession{
		id:               uuid.NewString(),
		conn:             conn,
		state:            StateAuthenticating,
		lastStatusUpdate: time.Now(),
	}
}

// ID is the unique session identifier.
func (s *ClientSession) ID() string { return s.id }

// Conn is the session's frontend transport handle.
func (s *ClientSession) Conn() transport.Conn { return s.conn }

// Username is the name the client connected with.
func (s *ClientSession) Username() string { return s.conn.Username() }

// State returns the current lifecycle state.
func (s *ClientSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session and resets the idle clock.
func (s *ClientSession) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastStatusUpdate = time.Now()
}

// Touch resets the idle clock without changing state.
func (s *ClientSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStatusUpdate = time.Now()
}

// LastStatusUpdate is when the session last made progress.
func (s *ClientSession) LastStatusUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatusUpdate
}

// BeginSwitch acquires the single-flight switch lock. It returns false when a
// handoff attempt is already in progress, leaving that attempt untouched.
func (s *ClientSession) BeginSwitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switchInProgress {
		return false
	}
	s.switchInProgress = true
	return true
}

// EndSwitch releases the switch lock. It must run on both success and
// failure of the attempt that acquired it.
func (s *ClientSession) EndSwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchInProgress = false
}

// SwitchInProgress reports whether a handoff attempt is underway.
func (s *ClientSession) SwitchInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchInProgress
}

// Credential returns the cached online credential, if any.
func (s *ClientSession) Credential() *connect.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// SetCredential caches a credential for reuse across in-session switches.
func (s *ClientSession) SetCredential(c *connect.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = c
}

// MarkDestinationChosen records that the user resolved a destination at least
// once. The reaper leaves such sessions alone after handoff.
func (s *ClientSession) MarkDestinationChosen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinationChosen = true
}

// DestinationChosen reports whether a destination was ever resolved.
func (s *ClientSession) DestinationChosen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destinationChosen
}
