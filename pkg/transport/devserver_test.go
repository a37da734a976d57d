package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenonsan/eagpaas/pkg/chat"
)

func dialDev(t *testing.T, addr, hello string) (net.Conn, *bufio.Reader) {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	_, err = nc.Write([]byte(hello + "\n"))
	require.NoError(t, err)
	return nc, bufio.NewReader(nc)
}

func TestJSONLineRoundTrip(t *testing.T) {
	listener, err := ListenJSONLines("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	client, reader := dialDev(t, listener.Addr().String(), `{"username":"steve","resume":"tok"}`)

	conn, err := listener.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "steve", conn.Username())

	carrier, ok := conn.(ResumeTokenCarrier)
	require.True(t, ok)
	assert.Equal(t, "tok", carrier.ResumeToken())

	// Client to gateway.
	_, err = client.Write([]byte("/eag-help\n"))
	require.NoError(t, err)
	select {
	case line := <-conn.Inbound():
		assert.Equal(t, "/eag-help", line)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound line never arrived")
	}

	// Gateway to client: chat, title, end.
	require.NoError(t, conn.SendComponent(chat.Text("hello", chat.ColorGold)))
	require.NoError(t, conn.SendTitle("header", "footer"))
	conn.End("goodbye")

	var frames []map[string]any
	for i := 0; i < 3; i++ {
		raw, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		frames = append(frames, frame)
	}
	assert.Equal(t, "chat", frames[0]["type"])
	assert.Equal(t, "title", frames[1]["type"])
	assert.Equal(t, "end", frames[2]["type"])
	assert.Equal(t, "goodbye", frames[2]["reason"])

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done never closed")
	}
	assert.ErrorIs(t, conn.SendComponent(chat.Text("late", "")), ErrClosed)
}

func TestAcceptSkipsBadHello(t *testing.T) {
	listener, err := ListenJSONLines("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	dialDev(t, listener.Addr().String(), "not json")
	dialDev(t, listener.Addr().String(), `{"resume":"tok"}`) // missing username
	dialDev(t, listener.Addr().String(), `{"username":"steve"}`)

	conn, err := listener.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "steve", conn.Username())
}

func TestClientDisconnectClosesDone(t *testing.T) {
	listener, err := ListenJSONLines("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	client, _ := dialDev(t, listener.Addr().String(), `{"username":"steve"}`)
	conn, err := listener.Accept(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done never closed after client disconnect")
	}
}
