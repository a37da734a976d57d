// Package command classifies inbound chat lines into bookmark operations,
// destination selections, or utility commands. Everything the router says
// back to the client carries the gateway prefix so users can tell proxy
// output from server chat.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
)

// Router dispatches chat lines by their first token, case-insensitively.
type Router struct {
	store     bookmark.Store
	validator HostValidator
	policy    Policy
}

// New creates a Router.
func New(store bookmark.Store, validator HostValidator, policy Policy) *Router {
	return &Router{store: store, validator: validator, policy: policy}
}

// Policy exposes the destination policy for callers sharing usage strings.
func (r *Router) Policy() Policy { return r.policy }

// Route classifies one chat line. When the line resolves a destination
// (/server join, /connect-bookmark, /eag-switchservers) the returned Request
// is non-nil and the caller performs the switch. All other recognized
// commands are handled in place; unrecognized ones get a user-visible error.
func (r *Router) Route(ctx context.Context, sess *session.ClientSession, line string) *connect.Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "/eag-help":
		r.sendHelp(sess)
		return nil
	case "/eag-switchservers":
		return r.switchServers(ctx, sess, fields[1:])
	case "/server":
		return r.serverCommand(ctx, sess, fields[1:])
	case "/connect-bookmark":
		return r.connectBookmark(ctx, sess, fields[1:])
	default:
		r.reply(sess, chat.Text(fmt.Sprintf("%q is not a valid command.", fields[0]), chat.ColorRed))
		return nil
	}
}

// serverCommand handles the /server subcommands. Every bookmark operation
// reloads the store first so edits from the user's other sessions are seen.
func (r *Router) serverCommand(ctx context.Context, sess *session.ClientSession, args []string) *connect.Request {
	if len(args) == 0 {
		r.reply(sess, chat.Text("Usage: /server <add|remove|list|join> ...", chat.ColorRed))
		return nil
	}

	if err := r.store.Load(ctx); err != nil {
		slog.Warn("command: bookmark reload failed", "username", sess.Username(), "error", err)
	}

	switch strings.ToLower(args[0]) {
	case "add":
		r.addBookmark(ctx, sess, args[1:])
	case "remove":
		r.removeBookmark(ctx, sess, args[1:])
	case "list":
		r.listBookmarks(ctx, sess)
	case "join":
		return r.joinCommand(ctx, sess, args[1:])
	default:
		r.reply(sess, chat.Text(fmt.Sprintf("%q is not a /server subcommand.", args[0]), chat.ColorRed))
	}
	return nil
}

// addBookmark implements /server add <name> <host> [port] [online|offline].
// A port slot holding the mode keyword means no port was supplied.
func (r *Router) addBookmark(ctx context.Context, sess *session.ClientSession, args []string) {
	if len(args) < 2 {
		r.reply(sess, chat.Text("Usage: /server add <name> <host> [port] [online|offline]", chat.ColorRed))
		return
	}
	name, host := args[0], args[1]

	mode := connect.Online
	port := connect.DefaultPort
	rest := args[2:]

	// A trailing mode keyword may appear with or without a port before it.
	if len(rest) > 0 {
		if m, ok := connect.ParseType(rest[len(rest)-1]); ok && m != connect.TheAltening {
			mode = m
			rest = rest[:len(rest)-1]
		}
	}
	if len(rest) > 0 {
		if _, ok := connect.ParseType(rest[0]); ok {
			// Mode keyword sitting in the port slot: no port supplied.
		} else {
			p, err := ParsePort(rest[0])
			if err != nil {
				r.reply(sess, chat.Text(err.Error(), chat.ColorRed))
				return
			}
			port = p
		}
	}

	if r.validator != nil && !r.validator.IsValidHost(ctx, host) {
		r.reply(sess, chat.Text(ErrInvalidHost.Error(), chat.ColorRed))
		return
	}

	err := r.store.AddServer(ctx, sess.Username(), bookmark.SavedServer{
		Name: name, Host: host, Port: port, Mode: mode,
	})
	if err != nil {
		r.reply(sess, chat.Text("Could not save that bookmark, please try again.", chat.ColorRed))
		return
	}
	r.reply(sess, chat.Text(fmt.Sprintf("Added server %s (%s:%d, %s).", name, host, port, mode), chat.ColorGreen))
}

// removeBookmark implements /server remove <name>. Removing an unknown name
// is not an error.
func (r *Router) removeBookmark(ctx context.Context, sess *session.ClientSession, args []string) {
	if len(args) < 1 {
		r.reply(sess, chat.Text("Usage: /server remove <name>", chat.ColorRed))
		return
	}
	name := strings.Join(args, " ")
	if err := r.store.RemoveServer(ctx, sess.Username(), name); err != nil {
		r.reply(sess, chat.Text("Could not remove that bookmark, please try again.", chat.ColorRed))
		return
	}
	r.reply(sess, chat.Text(fmt.Sprintf("Removed %s.", name), chat.ColorGreen))
}

// listBookmarks renders each saved server with connect and delete actions.
func (r *Router) listBookmarks(ctx context.Context, sess *session.ClientSession) {
	servers, err := r.store.GetServers(ctx, sess.Username())
	if err != nil {
		slog.Warn("command: bookmark list failed", "username", sess.Username(), "error", err)
	}
	if len(servers) == 0 {
		r.reply(sess, chat.Text("You have no saved servers. Add one with /server add <name> <host>.", chat.ColorGray))
		return
	}

	r.reply(sess, chat.Text("Saved servers:", chat.ColorGold))
	for _, srv := range servers {
		entry := chat.Text(fmt.Sprintf("[%s] ", srv.Name), chat.ColorAqua).Append(
			chat.Text(fmt.Sprintf("(%s) ", srv.Mode), chat.ColorGray),
			chat.Text("[connect]", chat.ColorGreen).
				WithRunCommand("/connect-bookmark "+srv.Name, fmt.Sprintf("Connect to %s:%d", srv.Host, srv.Port)),
			chat.Text(" ", chat.ColorWhite),
			chat.Text("[delete]", chat.ColorRed).
				WithRunCommand("/server remove "+srv.Name, "Delete this bookmark"),
		)
		_ = sess.Conn().SendComponent(entry)
	}
}

// joinCommand implements /server join <host> [online|offline] [port], with
// the mode and port accepted in either order.
func (r *Router) joinCommand(ctx context.Context, sess *session.ClientSession, args []string) *connect.Request {
	if len(args) < 1 {
		r.reply(sess, chat.Text("Usage: /server join <host> [online|offline] [port]", chat.ColorRed))
		return nil
	}
	host := args[0]

	mode := connect.Online
	port := connect.DefaultPort
	portSupplied := false
	for _, arg := range args[1:] {
		if m, ok := connect.ParseType(arg); ok && m != connect.TheAltening {
			mode = m
			continue
		}
		p, err := ParsePort(arg)
		if err != nil {
			r.reply(sess, chat.Text(err.Error(), chat.ColorRed))
			return nil
		}
		port = p
		portSupplied = true
	}

	if err := ValidateDestination(ctx, r.validator, r.policy, host, portSupplied); err != nil {
		r.reply(sess, chat.Text(err.Error(), chat.ColorRed))
		return nil
	}
	return &connect.Request{Host: host, Port: port, Mode: mode}
}

// connectBookmark implements /connect-bookmark <name>.
func (r *Router) connectBookmark(ctx context.Context, sess *session.ClientSession, args []string) *connect.Request {
	if len(args) < 1 {
		r.reply(sess, chat.Text("Usage: /connect-bookmark <name>", chat.ColorRed))
		return nil
	}
	if err := r.store.Load(ctx); err != nil {
		slog.Warn("command: bookmark reload failed", "username", sess.Username(), "error", err)
	}

	name := strings.Join(args, " ")
	servers, err := r.store.GetServers(ctx, sess.Username())
	if err != nil {
		slog.Warn("command: bookmark lookup failed", "username", sess.Username(), "error", err)
	}
	for _, srv := range servers {
		if srv.Name == name {
			mode := srv.Mode
			if !mode.Valid() {
				mode = connect.Online
			}
			return DefaultRequest(srv.Host, srv.Port, mode)
		}
	}
	r.reply(sess, chat.Text("No saved server with that name was found.", chat.ColorRed))
	return nil
}

// switchServers implements /eag-switchservers <mode> <host> [port], the
// post-handoff switch command.
func (r *Router) switchServers(ctx context.Context, sess *session.ClientSession, args []string) *connect.Request {
	usage := chat.Text(r.policy.SwitchUsage(), chat.ColorGold)

	if len(args) < 1 {
		r.reply(sess, chat.Text("Invalid command shape - specify a valid mode! ", chat.ColorRed).Append(usage))
		return nil
	}
	mode, ok := connect.ParseType(args[0])
	if !ok || mode == connect.TheAltening {
		r.reply(sess, chat.Text("Invalid command shape - specify a valid mode! ", chat.ColorRed).Append(usage))
		return nil
	}
	if len(args) < 2 {
		r.reply(sess, chat.Text("Invalid command shape - specify a host or IP (e.g. example.com, 1.2.3.4)! ", chat.ColorRed).Append(usage))
		return nil
	}
	host := args[1]

	port := connect.DefaultPort
	portSupplied := false
	if len(args) > 2 {
		p, err := ParsePort(args[2])
		if err != nil {
			r.reply(sess, chat.Text("Invalid command shape - the port must be between 1 and 65535! ", chat.ColorRed).Append(usage))
			return nil
		}
		port = p
		portSupplied = true
	}

	req := &connect.Request{Host: host, Port: port, Mode: mode}
	if mode == connect.Online {
		cred := sess.Credential()
		if cred == nil {
			r.reply(sess, chat.Text("You are connected in offline mode, or your online session has expired.", chat.ColorRed))
			r.reply(sess, chat.Text("Reconnect and log in with online or TheAltening mode to switch to an online server.", chat.ColorRed))
			return nil
		}
		req.Credential = cred
	}

	if err := ValidateDestination(ctx, r.validator, r.policy, host, portSupplied); err != nil {
		r.reply(sess, chat.Text(err.Error(), chat.ColorRed))
		return nil
	}
	return req
}

func (r *Router) sendHelp(sess *session.ClientSession) {
	conn := sess.Conn()
	_ = conn.SendComponent(chat.Text(chat.Separator, chat.ColorYellow))
	_ = conn.SendComponent(chat.Text("Available commands:", chat.ColorAqua))
	_ = conn.SendComponent(
		chat.Text("/eag-help", chat.ColorGreen).
			WithRunCommand("/eag-help", "Click to run").
			Append(chat.Text(" - show this command list", chat.ColorAqua)))
	_ = conn.SendComponent(
		chat.Text("/server list", chat.ColorGreen).
			WithRunCommand("/server list", "Click to run").
			Append(chat.Text(" - show your saved servers", chat.ColorAqua)))
	_ = conn.SendComponent(
		chat.Text(r.policy.SwitchUsage(), chat.ColorGreen).
			WithSuggestCommand(r.policy.SwitchUsage(), "Click to paste into chat").
			Append(chat.Text(" - switch servers", chat.ColorAqua)))
	_ = conn.SendComponent(chat.Text(chat.Separator, chat.ColorYellow))
}

// reply sends components under the gateway prefix.
func (r *Router) reply(sess *session.ClientSession, components ...chat.Component) {
	msg := chat.Text("[EagPAAS] ", chat.ColorGold).Append(components...)
	_ = sess.Conn().SendComponent(msg)
}
