package session

import (
	"context"
	"log/slog"
	"time"
)

// Eviction reasons sent to clients when the reaper disconnects them.
const (
	reasonAuthTimeout   = "Timed out while waiting for you to log in."
	reasonNoDestination = "Enter the address of the server you want to join in chat."
)

// Reaper periodically disconnects sessions stuck too long in one state.
// Authenticating sessions get the shorter threshold; connected sessions are
// only evicted when no destination was ever chosen.
type Reaper struct {
	registry      *Registry
	authIdle      time.Duration
	connectedIdle time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper over the given registry.
func NewReaper(registry *Registry, authIdle, connectedIdle time.Duration) *Reaper {
	return &Reaper{
		registry:      registry,
		authIdle:      authIdle,
		connectedIdle: connectedIdle,
	}
}

// Sweep evicts every session idle beyond its state's threshold. Idle exactly
// at the threshold does not evict; the idle time must exceed it.
func (r *Reaper) Sweep(now time.Time) {
	for _, sess := range r.registry.List() {
		idle := now.Sub(sess.LastStatusUpdate())
		switch sess.State() {
		case StateAuthenticating:
			if idle > r.authIdle {
				slog.Info("reaper: evicting idle authenticating session",
					"session_id", sess.ID(), "username", sess.Username(), "idle", idle)
				sess.Conn().End(reasonAuthTimeout)
			}
		case StateConnected:
			if !sess.DestinationChosen() && idle > r.connectedIdle {
				slog.Info("reaper: evicting connected session with no destination",
					"session_id", sess.ID(), "username", sess.Username(), "idle", idle)
				sess.Conn().End(reasonNoDestination)
			}
		}
	}
}

// Start launches the periodic sweep goroutine. It is stopped by Close.
func (r *Reaper) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(time.Now())
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for it to exit. It is safe to
// call Close even if Start was never called.
func (r *Reaper) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return nil
}
