package flow

import (
	"context"
	"time"

	"github.com/xenonsan/eagpaas/pkg/transport"
)

// awaitCommand blocks until the client sends a chat line matching filter.
// It is the flow's only suspension primitive: it unblocks promptly when the
// transport closes or ctx is cancelled, so no flow step can outlive its
// session.
func awaitCommand(ctx context.Context, conn transport.Conn, filter func(string) bool) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-conn.Done():
			return "", transport.ErrClosed
		case line, ok := <-conn.Inbound():
			if !ok {
				return "", transport.ErrClosed
			}
			if filter == nil || filter(line) {
				return line, nil
			}
		}
	}
}

// sleep pauses for UI pacing, returning early if ctx is cancelled or the
// transport closes.
func sleep(ctx context.Context, conn transport.Conn, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-conn.Done():
		return transport.ErrClosed
	case <-t.C:
		return nil
	}
}
