package command

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/chat"
	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/session"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// allowAll accepts every host, letting tests use reserved example addresses.
type allowAll struct{}

func (allowAll) IsValidHost(context.Context, string) bool { return true }

// denyAll rejects every host.
type denyAll struct{}

func (denyAll) IsValidHost(context.Context, string) bool { return false }

func newTestRouter(t *testing.T, validator HostValidator, policy Policy) (*Router, *session.ClientSession, *transport.Pipe) {
	t.Helper()
	store := bookmark.NewFileStore(filepath.Join(t.TempDir(), "serverlist.json"))
	require.NoError(t, store.Load(context.Background()))

	pipe := transport.NewPipe("steve")
	sess := session.New(pipe)
	return New(store, validator, policy), sess, pipe
}

// flatten renders a component tree as plain text.
func flatten(c chat.Component) string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, extra := range c.Extra {
		b.WriteString(flatten(extra))
	}
	return b.String()
}

func sentText(pipe *transport.Pipe) string {
	var b strings.Builder
	for _, c := range pipe.Sent() {
		b.WriteString(flatten(c))
		b.WriteString("\n")
	}
	return b.String()
}

func TestRouteUnknownCommand(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})

	req := router.Route(context.Background(), sess, "/frobnicate now")
	assert.Nil(t, req)
	assert.Contains(t, sentText(pipe), `"/frobnicate" is not a valid command.`)
}

func TestRouteEmptyLine(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})

	assert.Nil(t, router.Route(context.Background(), sess, "   "))
	assert.Empty(t, pipe.Sent())
}

func TestServerAddWithPortAndMode(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{AllowCustomPorts: true})
	ctx := context.Background()

	req := router.Route(ctx, sess, "/server add Home 203.0.113.5 25565 offline")
	assert.Nil(t, req)
	assert.Contains(t, sentText(pipe), "Added server Home (203.0.113.5:25565, OFFLINE).")

	servers, err := router.store.GetServers(ctx, "steve")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, connect.Offline, servers[0].Mode)
	assert.Equal(t, uint16(25565), servers[0].Port)
}

func TestServerAddModeKeywordInPortSlot(t *testing.T) {
	router, sess, _ := newTestRouter(t, allowAll{}, Policy{})
	ctx := context.Background()

	router.Route(ctx, sess, "/server add Home mc.example.com offline")

	servers, err := router.store.GetServers(ctx, "steve")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, connect.Offline, servers[0].Mode)
	assert.Equal(t, connect.DefaultPort, servers[0].Port)
}

func TestServerAddRejectsInvalidHost(t *testing.T) {
	router, sess, pipe := newTestRouter(t, denyAll{}, Policy{})
	ctx := context.Background()

	router.Route(ctx, sess, "/server add Home not-a-real-host")
	assert.Contains(t, sentText(pipe), ErrInvalidHost.Error())

	servers, err := router.store.GetServers(ctx, "steve")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestServerRemove(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})
	ctx := context.Background()

	router.Route(ctx, sess, "/server add Home mc.example.com")
	router.Route(ctx, sess, "/server remove Home")
	assert.Contains(t, sentText(pipe), "Removed Home.")

	servers, err := router.store.GetServers(ctx, "steve")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestServerJoinDefaults(t *testing.T) {
	router, sess, _ := newTestRouter(t, allowAll{}, Policy{})

	req := router.Route(context.Background(), sess, "/server join 203.0.113.5")
	require.NotNil(t, req)
	assert.Equal(t, "203.0.113.5", req.Host)
	assert.Equal(t, connect.DefaultPort, req.Port)
	assert.Equal(t, connect.Online, req.Mode)
}

func TestServerJoinModeAndPortAnyOrder(t *testing.T) {
	router, sess, _ := newTestRouter(t, allowAll{}, Policy{AllowCustomPorts: true})

	req := router.Route(context.Background(), sess, "/server join mc.example.com 25570 offline")
	require.NotNil(t, req)
	assert.Equal(t, uint16(25570), req.Port)
	assert.Equal(t, connect.Offline, req.Mode)

	req = router.Route(context.Background(), sess, "/server join mc.example.com offline 25570")
	require.NotNil(t, req)
	assert.Equal(t, uint16(25570), req.Port)
	assert.Equal(t, connect.Offline, req.Mode)
}

func TestServerJoinCustomPortRejectedByPolicy(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{AllowCustomPorts: false})

	req := router.Route(context.Background(), sess, "/server join mc.example.com 25570")
	assert.Nil(t, req)
	assert.Contains(t, sentText(pipe), ErrPortNotAllowed.Error())
}

func TestConnectBookmark(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{AllowCustomPorts: true})
	ctx := context.Background()

	router.Route(ctx, sess, "/server add Home mc.example.com 25570 offline")

	req := router.Route(ctx, sess, "/connect-bookmark Home")
	require.NotNil(t, req)
	assert.Equal(t, "mc.example.com", req.Host)
	assert.Equal(t, uint16(25570), req.Port)
	assert.Equal(t, connect.Offline, req.Mode)

	assert.Nil(t, router.Route(ctx, sess, "/connect-bookmark Nope"))
	assert.Contains(t, sentText(pipe), "No saved server with that name was found.")
}

func TestSwitchServersOffline(t *testing.T) {
	router, sess, _ := newTestRouter(t, allowAll{}, Policy{})

	req := router.Route(context.Background(), sess, "/eag-switchservers offline mc.example.com")
	require.NotNil(t, req)
	assert.Equal(t, connect.Offline, req.Mode)
	assert.Nil(t, req.Credential)
}

func TestSwitchServersOnlineRequiresCredential(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})

	req := router.Route(context.Background(), sess, "/eag-switchservers online mc.example.com")
	assert.Nil(t, req)
	text := sentText(pipe)
	assert.Contains(t, text, "You are connected in offline mode, or your online session has expired.")
	assert.Contains(t, text, "Reconnect and log in")
}

func TestSwitchServersOnlineUsesCachedCredential(t *testing.T) {
	router, sess, _ := newTestRouter(t, allowAll{}, Policy{})
	cred := &connect.Credential{Username: "RealSteve", AccessToken: "tok"}
	sess.SetCredential(cred)

	req := router.Route(context.Background(), sess, "/eag-switchservers online mc.example.com")
	require.NotNil(t, req)
	assert.Equal(t, cred, req.Credential)
}

func TestSwitchServersRejectsTheAltening(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})

	req := router.Route(context.Background(), sess, "/eag-switchservers thealtening mc.example.com")
	assert.Nil(t, req)
	assert.Contains(t, sentText(pipe), "specify a valid mode")
}

func TestSwitchServersHypixelBlocked(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{DisallowHypixel: true})
	sess.SetCredential(&connect.Credential{Username: "RealSteve"})

	req := router.Route(context.Background(), sess, "/eag-switchservers online mc.hypixel.net")
	assert.Nil(t, req)
	assert.Contains(t, sentText(pipe), ErrHostBlocked.Error())
}

func TestRepliesCarryGatewayPrefix(t *testing.T) {
	router, sess, pipe := newTestRouter(t, allowAll{}, Policy{})

	router.Route(context.Background(), sess, "/frobnicate")
	sent := pipe.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "[EagPAAS] ", sent[0].Text)
	assert.Equal(t, chat.ColorGold, sent[0].Color)
}
