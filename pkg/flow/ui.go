package flow

import (
	"fmt"

	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

const titleHeader = " EagPAAS Server Manager "

// Title footers for each flow state. The player-list footer is the one piece
// of UI that survives chat scroll, so it always shows what input the gateway
// is waiting for.
func titleModeSelect(conn transport.Conn) {
	_ = conn.SendTitle(titleHeader, "Pick a connection type: 1 = online, 2 = offline, 3 = TheAltening")
}

func titleAlteningAuth(conn transport.Conn) {
	_ = conn.SendTitle(titleHeader, "panel.thealtening.com/#generator | /login <alt_token>")
}

func titleMicrosoftAuth(conn transport.Conn, code DeviceCodeView) {
	_ = conn.SendTitle(titleHeader, fmt.Sprintf("%s | code: %s", code.VerificationURI, code.UserCode))
}

func titleServerSelect(conn transport.Conn, joinUsage string) {
	_ = conn.SendTitle(titleHeader, joinUsage)
}

// DeviceCodeView is the user-visible half of a device code event.
type DeviceCodeView struct {
	VerificationURI string
	UserCode        string
}

func send(conn transport.Conn, text, color string) {
	_ = conn.SendComponent(chat.Text(text, color))
}

// clearChat pushes the previous menu off screen before rendering a new one.
func clearChat(conn transport.Conn) {
	for i := 0; i < 100; i++ {
		send(conn, " ", "")
	}
}

// sendLoginLink renders the clickable Microsoft verification link.
func sendLoginLink(conn transport.Conn, code DeviceCodeView) {
	_ = conn.SendComponent(chat.Text("", chat.ColorReset).Append(
		chat.Text("Open this link", chat.ColorGold).
			WithOpenURL(code.VerificationURI, "Click to open in a new window"),
		chat.Text(fmt.Sprintf(" and enter the code %s to sign in with Microsoft.", code.UserCode), chat.ColorWhite),
	))
}

// sendServerList renders the mode-select menu: direct connect, saved
// bookmarks, and the management entry points.
func sendServerList(conn transport.Conn, servers []bookmark.SavedServer) {
	clearChat(conn)

	send(conn, chat.Separator, chat.ColorYellow)
	send(conn, "=== Direct connect ===", chat.ColorGold)
	_ = conn.SendComponent(chat.Text("Connect straight to a server ", chat.ColorWhite).Append(
		chat.Text("[connect]", chat.ColorGreen).
			WithRunCommand("/server direct-join", "Click to start the direct connect wizard"),
	))

	send(conn, " ", chat.ColorWhite)
	if len(servers) > 0 {
		send(conn, "=== Saved servers ===", chat.ColorGold)
		for _, srv := range servers {
			mode := srv.Mode
			if !mode.Valid() {
				mode = connect.Online
			}
			_ = conn.SendComponent(chat.Text(fmt.Sprintf("[%s] ", srv.Name), chat.ColorAqua).
				WithRunCommand("/connect-bookmark "+srv.Name, fmt.Sprintf("Click to connect (%s)", mode)).
				Append(chat.Text(fmt.Sprintf("(%s)", mode), chat.ColorGray)))
		}
	} else {
		send(conn, "No saved servers yet. Add one from [manage].", chat.ColorGray)
	}

	send(conn, " ", chat.ColorReset)
	_ = conn.SendComponent(chat.Text("Add new: /server add <name> <host> [port] [online/offline]", chat.ColorGray).
		WithSuggestCommand("/server add ", "Click to type the command"))
	_ = conn.SendComponent(chat.Text("               [open management menu]", chat.ColorGold).
		WithRunCommand("/server manage", "Click to open the management menu"))
	send(conn, " ", chat.ColorWhite)
}

// sendBookmarkQuickList renders saved servers during destination selection so
// authenticated users can still click instead of typing /join.
func sendBookmarkQuickList(conn transport.Conn, servers []bookmark.SavedServer) {
	if len(servers) == 0 {
		return
	}
	send(conn, "=== Saved servers ===", chat.ColorGold)
	for _, srv := range servers {
		_ = conn.SendComponent(chat.Text(fmt.Sprintf("[%s] ", srv.Name), chat.ColorAqua).
			WithRunCommand("/connect-bookmark "+srv.Name, fmt.Sprintf("Connect to %s:%d", srv.Host, srv.Port)).
			Append(chat.Text("[connect]", chat.ColorGreen).
				WithRunCommand("/connect-bookmark "+srv.Name, "Click to connect")))
	}
	send(conn, "Pick a server to join, or type an address directly:", chat.ColorYellow)
}

// sendJoinedAs confirms the identity used for the handoff and points at the
// command list.
func sendJoinedAs(conn transport.Conn, name, accountKind string) {
	_ = conn.SendComponent(chat.Text(
		fmt.Sprintf("Joining as %s (%s). Run ", name, accountKind), chat.ColorAqua).Append(
		chat.Text("/eag-help", chat.ColorGold).WithRunCommand("/eag-help", "Click to run"),
		chat.Text(" for the list of proxy commands.", chat.ColorAqua),
	))
}

// sendModeButtons renders the online/offline choice used by the wizards.
func sendModeButtons(conn transport.Conn) {
	_ = conn.SendComponent(chat.Text(" [offline] ", chat.ColorGray).
		WithRunCommand("offline", "Offline mode (cracked/Eaglercraft)").
		Append(chat.Text(" [online] ", chat.ColorGreen).
			WithRunCommand("online", "Online mode (premium/Mojang)")))
}
