package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// ErrSwitchInProgress is returned when a handoff attempt starts while another
// one is still resolving on the same session.
var ErrSwitchInProgress = errors.New("flow: switch already in progress")

// Switcher performs exactly one backend handoff attempt per invocation,
// enforcing single-flight per session.
type Switcher struct {
	backend transport.Backend
}

// NewSwitcher creates a Switcher over the given backend.
func NewSwitcher(backend transport.Backend) *Switcher {
	return &Switcher{backend: backend}
}

// Switch attempts the handoff. A concurrent attempt on the same session is
// rejected with a user-visible message and no state change. On failure the
// session is terminated with a classified message; the flow never retries.
func (s *Switcher) Switch(ctx context.Context, sess *session.ClientSession, req connect.Request) error {
	if !sess.BeginSwitch() {
		_ = sess.Conn().SendComponent(chat.Text("[EagPAAS] ", chat.ColorGold).Append(
			chat.Text("A server switch is already in progress, hold on!", chat.ColorRed)))
		return ErrSwitchInProgress
	}
	defer sess.EndSwitch()

	sess.Touch()
	slog.Info("switching servers",
		"session_id", sess.ID(), "username", sess.Username(),
		"destination", req.Addr(), "mode", string(req.Mode))

	// The attempt must run to completion even if the frontend goes away
	// mid-switch, so the lock always clears.
	err := s.backend.SwitchServers(context.WithoutCancel(ctx), sess.Conn(), req)
	if err != nil {
		slog.Warn("server switch failed",
			"session_id", sess.ID(), "destination", req.Addr(), "error", err)
		sess.Conn().End(formatSwitchError(req.Host, err))
		return err
	}
	return nil
}

// formatSwitchError translates a backend failure into the user-facing
// disconnect reason. Host-not-found gets an extra hint because users
// routinely paste host:port into the host argument.
func formatSwitchError(host string, err error) string {
	msg := err.Error()
	var switchErr *transport.SwitchError
	if errors.As(err, &switchErr) {
		msg = switchErr.Message
		if switchErr.Code == transport.CodeHostNotFound {
			if strings.Contains(host, ":") {
				return "Something went wrong while switching servers: " + msg +
					"\nTip: replace the : in your address with a space."
			}
			return "Something went wrong while switching servers: " + msg +
				"\nIs that address valid?"
		}
	}
	return "Something went wrong while switching servers: " + msg
}
