// Package flow drives each client session from acceptance to backend
// handoff: instance gating, mode selection, authentication, destination
// selection, and the single-flight switch. One goroutine owns one session,
// so flow steps for a session never run concurrently.
package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/xenonsan/eagpaas/pkg/auth"
	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/command"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// errSessionEnded marks a flow that already terminated the session with a
// specific user-visible reason; no generic error message should follow.
var errSessionEnded = errors.New("flow: session ended")

// genericErrorReason is the only thing a client sees for unexpected internal
// failures. Details go to the log, never to the wire.
const genericErrorReason = "An error occurred while processing your request. Please reconnect."

// Options are the instance-wide flow knobs.
type Options struct {
	// GateEnabled requires /password before anything else.
	GateEnabled bool

	// GatePassword is the plain instance password. Ignored when
	// GatePasswordHash is set.
	GatePassword string

	// GatePasswordHash is a bcrypt hash of the instance password.
	GatePasswordHash string

	// ShowDisclaimers controls the warnings shown on connect and before
	// online auth.
	ShowDisclaimers bool

	// DisclaimerDelay paces consecutive disclaimer messages.
	DisclaimerDelay time.Duration

	// Policy is the destination policy shared with the command router.
	Policy command.Policy
}

// Orchestrator owns the top-level per-client state machine.
type Orchestrator struct {
	opts      Options
	store     bookmark.Store
	router    *command.Router
	microsoft auth.DeviceCodeFlow
	altening  auth.TokenExchanger
	validator command.HostValidator
	switcher  *Switcher
}

// NewOrchestrator wires the flow's collaborators.
func NewOrchestrator(
	opts Options,
	store bookmark.Store,
	router *command.Router,
	microsoft auth.DeviceCodeFlow,
	altening auth.TokenExchanger,
	validator command.HostValidator,
	switcher *Switcher,
) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		store:     store,
		router:    router,
		microsoft: microsoft,
		altening:  altening,
		validator: validator,
		switcher:  switcher,
	}
}

// OnConnect runs the full onboarding flow for one session. meta carries
// pre-resolved destination and identity (the resume fast path); nil means
// the user picks interactively. OnConnect blocks until the session is done
// or its transport closes.
func (o *Orchestrator) OnConnect(ctx context.Context, sess *session.ClientSession, meta *connect.Request) {
	conn := sess.Conn()

	// Every suspension point below must unblock when the transport closes.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("flow: panic while processing session",
				"session_id", sess.ID(), "username", sess.Username(),
				"panic", r, "stack", string(debug.Stack()))
			conn.End(genericErrorReason)
		}
	}()

	err := o.run(ctx, sess, meta)
	switch {
	case err == nil:
	case errors.Is(err, errSessionEnded),
		errors.Is(err, context.Canceled),
		errors.Is(err, transport.ErrClosed):
		// Terminated with its own reason, or the client went away.
	default:
		slog.Error("flow: session failed",
			"session_id", sess.ID(), "username", sess.Username(), "error", err)
		conn.End(genericErrorReason)
	}
}

func (o *Orchestrator) run(ctx context.Context, sess *session.ClientSession, meta *connect.Request) error {
	conn := sess.Conn()
	sess.SetState(session.StateAuthenticating)

	if meta != nil && meta.Host != "" {
		send(conn, fmt.Sprintf("Automatically connecting you to %s.", meta.Addr()), chat.ColorGreen)
	}
	if meta != nil && meta.Credential != nil {
		warnExpiringCredential(conn, meta.Credential)
	}

	if o.opts.ShowDisclaimers {
		if err := o.sendDisclaimers(ctx, conn); err != nil {
			return err
		}
	}

	if o.opts.GateEnabled {
		if err := o.gate(ctx, sess); err != nil {
			return err
		}
	}

	req := meta
	if req == nil || !req.Mode.Valid() {
		resolved, err := o.modeSelect(ctx, sess)
		if err != nil {
			return err
		}
		req = resolved
	}

	switch req.Mode {
	case connect.Online:
		if err := o.onlineAuth(ctx, sess, req); err != nil {
			return err
		}
	case connect.TheAltening:
		if err := o.alteningAuth(ctx, sess, req); err != nil {
			return err
		}
	case connect.Offline:
		// The client's own username is the identity.
	}

	// Auth is done: from here the session idles under the reaper's
	// connected-state threshold, including while picking a destination.
	sess.SetState(session.StateConnected)

	if req.Host == "" {
		resolved, err := o.destinationSelect(ctx, sess)
		if err != nil {
			return err
		}
		if resolved.Mode.Valid() && resolved.Mode != req.Mode {
			send(conn, fmt.Sprintf("That server is saved for %s mode; connecting with the %s mode you already signed in with.",
				resolved.Mode, req.Mode), chat.ColorYellow)
		}
		req.Host, req.Port = resolved.Host, resolved.Port
	}
	if req.Port == 0 {
		req.Port = connect.DefaultPort
	}

	sess.MarkDestinationChosen()

	name, kind := o.identity(sess, req)
	sendJoinedAs(conn, name, kind)
	slog.Info("session onboarded",
		"session_id", sess.ID(), "username", sess.Username(),
		"identity", name, "mode", string(req.Mode), "destination", req.Addr())

	if err := o.switcher.Switch(ctx, sess, *req); err != nil {
		// Switch already messaged and terminated the session.
		return errSessionEnded
	}

	o.postConnectLoop(ctx, sess)
	return nil
}

func (o *Orchestrator) sendDisclaimers(ctx context.Context, conn transport.Conn) error {
	send(conn, "Warning: this proxy lets you connect to any 1.8.9 server. "+
		"Play works fine, but be aware that EaglercraftX can trip some anticheats.", chat.ColorYellow)
	if err := sleep(ctx, conn, o.opts.DisclaimerDelay); err != nil {
		return err
	}
	send(conn, "Notice for Hypixel players: this proxy falls under Hypixel's "+
		"disallowed-modifications category. Joining can get your account punished "+
		"with no appeal. Play at your own risk.", chat.ColorYellow)
	return sleep(ctx, conn, o.opts.DisclaimerDelay)
}

// gate blocks on the instance password. A wrong password terminates the
// session; no response is handled by the idle reaper, not here.
func (o *Orchestrator) gate(ctx context.Context, sess *session.ClientSession) error {
	conn := sess.Conn()
	send(conn, "This instance is password protected. Sign in with /password <password>", chat.ColorGold)

	line, err := awaitCommand(ctx, conn, func(msg string) bool {
		return strings.HasPrefix(msg, "/password ")
	})
	if err != nil {
		return err
	}
	sess.Touch()

	if !o.checkGatePassword(strings.TrimPrefix(line, "/password ")) {
		conn.End("Wrong password.")
		return errSessionEnded
	}
	send(conn, "Signed in to this instance.", chat.ColorGreen)
	return nil
}

func (o *Orchestrator) checkGatePassword(supplied string) bool {
	if o.opts.GatePasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(o.opts.GatePasswordHash), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(o.opts.GatePassword), []byte(supplied)) == 1
}

// modeSelect loops until the user resolves a connect type, either alone
// (numbered/keyword choice) or together with a destination (bookmark click,
// /server join, the direct-connect wizard).
func (o *Orchestrator) modeSelect(ctx context.Context, sess *session.ClientSession) (*connect.Request, error) {
	conn := sess.Conn()
	o.showServerList(ctx, sess)
	titleModeSelect(conn)

	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return nil, err
		}
		sess.Touch()

		switch lower := strings.ToLower(strings.TrimSpace(line)); lower {
		case "1", "online":
			return &connect.Request{Mode: connect.Online}, nil
		case "2", "offline":
			return &connect.Request{Mode: connect.Offline}, nil
		case "3", "thealtening":
			return &connect.Request{Mode: connect.TheAltening}, nil
		case "/server direct-join":
			req, err := o.directConnectWizard(ctx, sess)
			if err != nil {
				return nil, err
			}
			if req != nil {
				send(conn, fmt.Sprintf("Connecting to %s (%s)...", req.Addr(), req.Mode), chat.ColorGreen)
				return req, nil
			}
			o.showServerList(ctx, sess)
		case "/server manage":
			if err := o.manageWizard(ctx, sess); err != nil {
				return nil, err
			}
			o.showServerList(ctx, sess)
		default:
			if strings.HasPrefix(lower, "/") {
				if req := o.router.Route(ctx, sess, line); req != nil {
					send(conn, fmt.Sprintf("Connecting to %s (%s)...", req.Addr(), req.Mode), chat.ColorGreen)
					return req, nil
				}
				continue
			}
			send(conn, "Enter a command (e.g. /server join <host>).", chat.ColorRed)
		}
	}
}

// onlineAuth resolves a Microsoft credential, reusing the session's cached
// one when present. A device-flow error terminates the session with the
// adapter's message.
func (o *Orchestrator) onlineAuth(ctx context.Context, sess *session.ClientSession, req *connect.Request) error {
	conn := sess.Conn()

	if req.Credential != nil {
		sess.SetCredential(req.Credential)
		return nil
	}
	if cred := sess.Credential(); cred != nil {
		req.Credential = cred
		return nil
	}

	if o.opts.ShowDisclaimers {
		send(conn, "Warning: you will be asked to sign in through Microsoft to obtain "+
			"the session token needed to join. No account data is stored. The source "+
			"code of this proxy is public for transparency.", chat.ColorYellow)
		if err := sleep(ctx, conn, o.opts.DisclaimerDelay); err != nil {
			return err
		}
	}
	sess.Touch()

	cred, err := o.microsoft.Login(ctx, func(code auth.DeviceCode) {
		view := DeviceCodeView{VerificationURI: code.VerificationURI, UserCode: code.UserCode}
		titleMicrosoftAuth(conn, view)
		sendLoginLink(conn, view)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.End(err.Error())
		return errSessionEnded
	}

	send(conn, "Successfully logged in to Minecraft.", chat.ColorGreen)
	sess.SetCredential(cred)
	sess.Touch()
	req.Credential = cred
	return nil
}

// alteningAuth loops on /login until a token exchanges successfully. Tokens
// missing the fixed suffix are rejected without a network call; exchange
// failures re-prompt with the remote error, indefinitely.
func (o *Orchestrator) alteningAuth(ctx context.Context, sess *session.ClientSession, req *connect.Request) error {
	conn := sess.Conn()
	const generatorURL = "panel.thealtening.com/#generator"

	sess.Touch()
	titleAlteningAuth(conn)

	if o.opts.ShowDisclaimers {
		send(conn, "Warning: you chose TheAltening's account pool. Accounts are shared, "+
			"so they may already be banned on the server you want to join.", chat.ColorYellow)
	}
	_ = conn.SendComponent(chat.Text("Log in and generate an alt token at ", chat.ColorWhite).Append(
		chat.Text(generatorURL, chat.ColorGold).
			WithOpenURL("https://"+generatorURL, "Click to open in a new window"),
		chat.Text(", then run ", chat.ColorWhite),
		chat.Text("/login <alt_token>", chat.ColorGold).
			WithSuggestCommand("/login <alt_token>", "Copy me to chat!"),
		chat.Text(" to sign in.", chat.ColorWhite),
	))

	for {
		line, err := awaitCommand(ctx, conn, func(msg string) bool {
			return strings.HasPrefix(strings.ToLower(msg), "/login")
		})
		if err != nil {
			return err
		}
		sess.Touch()

		parts := strings.Fields(line)
		if len(parts) != 2 {
			_ = conn.SendComponent(chat.Text("Invalid usage. Use the command like this: ", chat.ColorRed).Append(
				chat.Text("/login <alt_token>", chat.ColorGold).
					WithSuggestCommand("/login <alt_token>", "Copy me to chat!"),
			))
			continue
		}

		token := parts[1]
		if !auth.PlausibleAltToken(token) {
			_ = conn.SendComponent(chat.Text("Provide a valid token (get one ", chat.ColorRed).Append(
				chat.Text("here", chat.ColorWhite).
					WithOpenURL("https://"+generatorURL, "Click to open in a new window"),
				chat.Text("). ", chat.ColorRed),
				chat.Text("/login <alt_token>", chat.ColorGold).
					WithSuggestCommand("/login <alt_token>", "Copy me to chat!"),
			))
			continue
		}

		send(conn, "Validating alt token...", chat.ColorGray)
		cred, err := o.altening.Exchange(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = conn.SendComponent(chat.Text(
				fmt.Sprintf("TheAltening's server returned an error (%s). Try again: ", err), chat.ColorRed).Append(
				chat.Text("/login <alt_token>", chat.ColorGold).
					WithSuggestCommand("/login <alt_token>", "Copy me to chat!"),
			))
			continue
		}

		send(conn, fmt.Sprintf("Alt token validated. You will join servers as %s.", cred.Username), chat.ColorGreen)
		sess.SetCredential(cred)
		sess.Touch()
		req.Credential = cred
		return nil
	}
}

// destinationSelect prompts for /join until a destination passes the shared
// validation. Other recognized commands still work while prompting; a
// router-resolved request is returned as-is so the caller sees its mode.
func (o *Orchestrator) destinationSelect(ctx context.Context, sess *session.ClientSession) (*connect.Request, error) {
	conn := sess.Conn()

	if err := o.store.Load(ctx); err != nil {
		slog.Warn("flow: bookmark reload failed", "username", sess.Username(), "error", err)
	}
	servers, err := o.store.GetServers(ctx, sess.Username())
	if err != nil {
		slog.Warn("flow: bookmark list failed", "username", sess.Username(), "error", err)
	}
	sendBookmarkQuickList(conn, servers)

	usage := o.opts.Policy.JoinUsage()
	titleServerSelect(conn, usage)
	send(conn, "Specify a server to join. "+usage, chat.ColorWhite)

	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return nil, err
		}
		sess.Touch()

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if strings.ToLower(fields[0]) != "/join" {
			if strings.HasPrefix(fields[0], "/") {
				if req := o.router.Route(ctx, sess, line); req != nil {
					return req, nil
				}
				continue
			}
			send(conn, "The command is "+usage+".", chat.ColorRed)
			continue
		}

		if len(fields) < 2 {
			send(conn, "Specify a server to join. "+usage, chat.ColorRed)
			continue
		}
		host := fields[1]

		port := connect.DefaultPort
		portSupplied := false
		if len(fields) > 2 {
			p, err := command.ParsePort(fields[2])
			if err != nil {
				send(conn, "Enter a valid port number. "+usage, chat.ColorRed)
				continue
			}
			port = p
			portSupplied = true
		}

		if err := command.ValidateDestination(ctx, o.validator, o.opts.Policy, host, portSupplied); err != nil {
			send(conn, err.Error()+" "+usage, chat.ColorRed)
			continue
		}
		return &connect.Request{Host: host, Port: port}, nil
	}
}

// postConnectLoop services /eag- commands for a handed-off session. Switches
// run asynchronously so a second command during a switch hits the
// single-flight rejection instead of queueing; the loop does not return
// until every spawned attempt has finished.
func (o *Orchestrator) postConnectLoop(ctx context.Context, sess *session.ClientSession) {
	conn := sess.Conn()
	var switches sync.WaitGroup
	defer switches.Wait()
	for {
		line, err := awaitCommand(ctx, conn, func(msg string) bool {
			return strings.HasPrefix(strings.ToLower(msg), "/eag-")
		})
		if err != nil {
			return
		}

		req := o.router.Route(ctx, sess, line)
		if req == nil {
			continue
		}
		send(conn, "Switching servers, hang tight... (if nothing happens for a while, "+
			"that host may not be a Minecraft server - reconnect and try again.)", chat.ColorGray)
		switches.Add(1)
		go func(req connect.Request) {
			defer switches.Done()
			_ = o.switcher.Switch(ctx, sess, req)
		}(*req)
	}
}

// showServerList reloads bookmarks and renders the mode-select menu.
func (o *Orchestrator) showServerList(ctx context.Context, sess *session.ClientSession) {
	if err := o.store.Load(ctx); err != nil {
		slog.Warn("flow: bookmark reload failed", "username", sess.Username(), "error", err)
	}
	servers, err := o.store.GetServers(ctx, sess.Username())
	if err != nil {
		slog.Warn("flow: bookmark list failed", "username", sess.Username(), "error", err)
	}
	sendServerList(sess.Conn(), servers)
}

func (o *Orchestrator) identity(sess *session.ClientSession, req *connect.Request) (name, kind string) {
	switch {
	case req.Credential != nil && req.Credential.TheAltening:
		return req.Credential.Username, "TheAltening account"
	case req.Credential != nil:
		return req.Credential.Username, "your Minecraft account"
	default:
		return sess.Username(), "your Eaglercraft username"
	}
}

// warnExpiringCredential nudges resume-token users whose cached session runs
// out within a day.
func warnExpiringCredential(conn transport.Conn, cred *connect.Credential) {
	remaining := time.Until(cred.ExpiresOn)
	if remaining <= 0 || remaining > 24*time.Hour {
		return
	}
	send(conn, fmt.Sprintf("Your session token is valid for another %d minutes and expires "+
		"within 24 hours. Grab a fresh session URL soon.", int(remaining.Minutes())), chat.ColorRed)
}
