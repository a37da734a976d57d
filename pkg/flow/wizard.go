package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/command"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
)

// errWizardCancelled distinguishes "user backed out" from transport errors
// in the step helpers below. The wizards translate it into a nil result.
var errWizardCancelled = errors.New("flow: wizard cancelled")

// directConnectWizard walks host, port, and mode one prompt at a time.
// Returns (nil, nil) when the user cancels; the caller re-renders the menu.
func (o *Orchestrator) directConnectWizard(ctx context.Context, sess *session.ClientSession) (*connect.Request, error) {
	conn := sess.Conn()
	clearChat(conn)
	send(conn, "=== Direct connect ===", chat.ColorGold)
	send(conn, "Type \"cancel\" at any prompt to go back.", chat.ColorGray)

	host, port, portSupplied, err := o.promptDestination(ctx, sess)
	if errors.Is(err, errWizardCancelled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := command.ValidateDestination(ctx, o.validator, o.opts.Policy, host, portSupplied); err != nil {
		send(conn, err.Error(), chat.ColorRed)
		return nil, nil
	}

	mode, err := o.promptMode(ctx, sess)
	if errors.Is(err, errWizardCancelled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &connect.Request{Host: host, Port: port, Mode: mode}, nil
}

// manageWizard is the bookmark management menu: create, delete, back.
func (o *Orchestrator) manageWizard(ctx context.Context, sess *session.ClientSession) error {
	conn := sess.Conn()

	for {
		// Reload so edits from the user's other sessions are seen.
		if err := o.store.Load(ctx); err != nil {
			slog.Warn("flow: bookmark reload failed", "username", sess.Username(), "error", err)
		}
		servers, err := o.store.GetServers(ctx, sess.Username())
		if err != nil {
			slog.Warn("flow: bookmark list failed", "username", sess.Username(), "error", err)
		}

		clearChat(conn)
		send(conn, "=== Manage saved servers ===", chat.ColorGold)
		for _, srv := range servers {
			_ = conn.SendComponent(chat.Text(fmt.Sprintf("[%s] ", srv.Name), chat.ColorAqua).Append(
				chat.Text(fmt.Sprintf("%s:%d (%s) ", srv.Host, srv.Port, srv.Mode), chat.ColorGray),
				chat.Text("[delete]", chat.ColorRed).
					WithRunCommand("/server remove "+srv.Name, "Delete this bookmark"),
			))
		}
		if len(servers) == 0 {
			send(conn, "No saved servers yet.", chat.ColorGray)
		}
		_ = conn.SendComponent(chat.Text("[create new]", chat.ColorGreen).
			WithRunCommand("create", "Save a new server").
			Append(
				chat.Text("  ", chat.ColorWhite),
				chat.Text("[back]", chat.ColorYellow).WithRunCommand("back", "Back to the server list"),
			))

		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return err
		}
		sess.Touch()

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "back", "cancel":
			return nil
		case "create":
			if err := o.createBookmarkWizard(ctx, sess); err != nil && !errors.Is(err, errWizardCancelled) {
				return err
			}
		case "/server":
			// The delete clickables route through the shared command handling.
			o.router.Route(ctx, sess, line)
		default:
			send(conn, "Pick one of the menu actions above.", chat.ColorRed)
		}
	}
}

// createBookmarkWizard prompts name, host, port, and mode, then saves.
func (o *Orchestrator) createBookmarkWizard(ctx context.Context, sess *session.ClientSession) error {
	conn := sess.Conn()
	send(conn, "What should the server be called?", chat.ColorYellow)

	var name string
	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return err
		}
		sess.Touch()
		name = strings.TrimSpace(line)
		if strings.EqualFold(name, "cancel") {
			return errWizardCancelled
		}
		if name == "" || strings.HasPrefix(name, "/") {
			send(conn, "That name cannot be used. Pick another one.", chat.ColorRed)
			continue
		}
		break
	}

	host, port, portSupplied, err := o.promptDestination(ctx, sess)
	if err != nil {
		return err
	}
	if err := command.ValidateDestination(ctx, o.validator, o.opts.Policy, host, portSupplied); err != nil {
		send(conn, err.Error(), chat.ColorRed)
		return errWizardCancelled
	}

	mode, err := o.promptMode(ctx, sess)
	if err != nil {
		return err
	}

	err = o.store.AddServer(ctx, sess.Username(), bookmark.SavedServer{
		Name: name, Host: host, Port: port, Mode: mode,
	})
	if err != nil {
		send(conn, "Could not save that bookmark, please try again.", chat.ColorRed)
		return errWizardCancelled
	}
	send(conn, fmt.Sprintf("Added server %s (%s:%d, %s).", name, host, port, mode), chat.ColorGreen)
	return nil
}

// promptDestination collects a host and an optional port. "-" keeps the
// default port; "cancel" backs out.
func (o *Orchestrator) promptDestination(ctx context.Context, sess *session.ClientSession) (host string, port uint16, portSupplied bool, err error) {
	conn := sess.Conn()
	send(conn, "Enter the server address (e.g. mc.example.com):", chat.ColorYellow)

	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return "", 0, false, err
		}
		sess.Touch()
		host = strings.TrimSpace(line)
		if strings.EqualFold(host, "cancel") {
			return "", 0, false, errWizardCancelled
		}
		if host == "" || strings.HasPrefix(host, "/") || strings.ContainsAny(host, " ") {
			send(conn, "That does not look like a server address. Try again:", chat.ColorRed)
			continue
		}
		break
	}

	port = connect.DefaultPort
	send(conn, fmt.Sprintf("Enter the port, or \"-\" to use the default (%d):", connect.DefaultPort), chat.ColorYellow)
	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return "", 0, false, err
		}
		sess.Touch()
		raw := strings.TrimSpace(line)
		switch {
		case strings.EqualFold(raw, "cancel"):
			return "", 0, false, errWizardCancelled
		case raw == "-":
			return host, port, false, nil
		default:
			p, err := command.ParsePort(raw)
			if err != nil {
				send(conn, "Enter a valid port number (1-65535), or \"-\" for the default:", chat.ColorRed)
				continue
			}
			return host, p, true, nil
		}
	}
}

// promptMode collects online or offline via the clickable buttons or typed
// keywords. TheAltening is not offered here; it is a connection type choice,
// not a per-server one.
func (o *Orchestrator) promptMode(ctx context.Context, sess *session.ClientSession) (connect.Type, error) {
	conn := sess.Conn()
	send(conn, "Is this an online-mode (premium) server?", chat.ColorYellow)
	sendModeButtons(conn)

	for {
		line, err := awaitCommand(ctx, conn, nil)
		if err != nil {
			return "", err
		}
		sess.Touch()
		raw := strings.TrimSpace(line)
		if strings.EqualFold(raw, "cancel") {
			return "", errWizardCancelled
		}
		if mode, ok := connect.ParseType(raw); ok && mode != connect.TheAltening {
			return mode, nil
		}
		send(conn, "Answer with [online] or [offline].", chat.ColorRed)
	}
}
