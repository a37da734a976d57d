package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xenonsan/eagpaas/pkg/auth"
	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/bookmark/postgres"
	"github.com/xenonsan/eagpaas/pkg/command"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/flow"
	"github.com/xenonsan/eagpaas/pkg/netcheck"
	"github.com/xenonsan/eagpaas/pkg/session"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// Gateway owns the long-lived pieces of one running instance: the bookmark
// store, session registry, idle reaper, and the per-connection flow.
type Gateway struct {
	cfg          *Config
	store        bookmark.Store
	registry     *session.Registry
	reaper       *session.Reaper
	orchestrator *flow.Orchestrator
	resume       *ResumeIssuer

	wg sync.WaitGroup
}

// New builds a Gateway from config and a backend. The caller supplies the
// backend because transports differ between the dev server and production.
func New(cfg *Config, backend transport.Backend) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Bookmarks)
	if err != nil {
		return nil, err
	}

	validator := netcheck.New(2 * time.Minute)
	policy := cfg.Policy()
	router := command.New(store, validator, policy)

	microsoft := auth.NewMicrosoft()
	if cfg.Auth.Microsoft.ClientID != "" {
		microsoft.ClientID = cfg.Auth.Microsoft.ClientID
	}
	altening := auth.NewAltening()
	if cfg.Auth.TheAltening.AuthURL != "" {
		altening.AuthURL = cfg.Auth.TheAltening.AuthURL
	}

	switcher := flow.NewSwitcher(backend)
	orchestrator := flow.NewOrchestrator(flow.Options{
		GateEnabled:      cfg.Gate.Enabled,
		GatePassword:     cfg.Gate.Password,
		GatePasswordHash: cfg.Gate.PasswordHash,
		ShowDisclaimers:  cfg.Connect.ShowDisclaimers,
		DisclaimerDelay:  cfg.Connect.DisclaimerDelay,
		Policy:           policy,
	}, store, router, microsoft, altening, validator, switcher)

	registry := session.NewRegistry()
	reaper := session.NewReaper(registry, cfg.Reaper.AuthIdle, cfg.Reaper.ConnectedIdle)

	return &Gateway{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		reaper:       reaper,
		orchestrator: orchestrator,
		resume:       NewResumeIssuer(cfg.Resume.SigningKey, cfg.Resume.TTL),
	}, nil
}

func openStore(cfg BookmarksConfig) (bookmark.Store, error) {
	switch cfg.Mode {
	case "file":
		return bookmark.NewFileStore(cfg.Path), nil
	case "postgres":
		store, err := postgres.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres bookmark store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown bookmark store mode %q", cfg.Mode)
	}
}

// Resume exposes the resume-token issuer, for transports that mint session
// URLs.
func (g *Gateway) Resume() *ResumeIssuer { return g.resume }

// Sessions exposes the live session registry.
func (g *Gateway) Sessions() *session.Registry { return g.registry }

// Run accepts connections until ctx is cancelled or the listener fails.
// Each accepted connection gets its own session and flow goroutine.
func (g *Gateway) Run(ctx context.Context, listener transport.Listener) error {
	g.reaper.Start(g.cfg.Reaper.Interval)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	slog.Info("gateway accepting connections",
		"name", g.cfg.Server.Name, "address", g.cfg.Server.Address,
		"bookmarks", g.cfg.Bookmarks.Mode)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		g.serve(ctx, conn)
	}
}

// serve registers a session, resolves the resume fast path, and hands the
// connection to the flow.
func (g *Gateway) serve(ctx context.Context, conn transport.Conn) {
	sess := session.New(conn)
	g.registry.Add(sess)
	slog.Info("client connected",
		"session_id", sess.ID(), "username", sess.Username(), "sessions", g.registry.Len())

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			g.registry.Remove(sess.ID())
			slog.Info("client disconnected",
				"session_id", sess.ID(), "username", sess.Username(), "sessions", g.registry.Len())
		}()
		g.orchestrator.OnConnect(ctx, sess, g.resumeRequest(conn))
	}()
}

// resumeRequest extracts and verifies a resume token when the transport
// carries one. Verification failures fall back to interactive onboarding.
func (g *Gateway) resumeRequest(conn transport.Conn) *connect.Request {
	carrier, ok := conn.(transport.ResumeTokenCarrier)
	if !ok || carrier.ResumeToken() == "" || !g.resume.Enabled() {
		return nil
	}
	req, username, err := g.resume.Parse(carrier.ResumeToken())
	if err != nil {
		slog.Warn("resume token rejected", "username", conn.Username(), "error", err)
		return nil
	}
	if username != conn.Username() {
		slog.Warn("resume token username mismatch",
			"token_username", username, "conn_username", conn.Username())
		return nil
	}
	return req
}

// Close stops the reaper, terminates live sessions, and closes the store.
// Run must have returned before Close is called.
func (g *Gateway) Close() error {
	err := g.reaper.Close()

	for _, sess := range g.registry.List() {
		sess.Conn().End("The gateway is shutting down.")
	}
	g.wg.Wait()

	if cerr := g.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
