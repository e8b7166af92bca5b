package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/events"
	"marketchat/internal/app/presence"
)

type echoDispatcher struct {
	mu           sync.Mutex
	connected    []string
	disconnected int
	conns        chan presence.Conn
}

func (d *echoDispatcher) Connect(userID string, conn presence.Conn) {
	d.mu.Lock()
	d.connected = append(d.connected, userID)
	d.mu.Unlock()
	d.conns <- conn
}

func (d *echoDispatcher) Disconnect(presence.Conn) {
	d.mu.Lock()
	d.disconnected++
	d.mu.Unlock()
}

func (d *echoDispatcher) HandleFrame(_ context.Context, _ string, conn presence.Conn, raw []byte) {
	if strings.Contains(string(raw), `"ping"`) {
		_ = conn.Send(events.PongEvent{Timestamp: time.Unix(0, 0).UTC()})
		return
	}
	_ = conn.Send(events.ErrorEvent{Message: "unsupported"})
}

func (d *echoDispatcher) disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnected
}

func startServer(t *testing.T, d *echoDispatcher, opts Options) *httptest.Server {
	t.Helper()
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(conn, r.URL.Query().Get("userId"), opts, nil).Run(context.Background(), d)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env events.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestClientRoundTrip(t *testing.T) {
	req := require.New(t)
	d := &echoDispatcher{conns: make(chan presence.Conn, 1)}
	srv := startServer(t, d, Options{})
	conn := dial(t, srv, "alice")
	<-d.conns

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	env := readEnvelope(t, conn)
	req.Equal(events.Pong, env.Event)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"dance"}`)))
	env = readEnvelope(t, conn)
	req.Equal(events.Error, env.Event)
	req.JSONEq(`{"message":"unsupported"}`, string(env.Data))
}

func TestServerCloseEndsSession(t *testing.T) {
	req := require.New(t)
	d := &echoDispatcher{conns: make(chan presence.Conn, 1)}
	srv := startServer(t, d, Options{})
	conn := dial(t, srv, "alice")
	serverSide := <-d.conns

	req.NoError(serverSide.Send(events.UserOnlineEvent{UserID: "bob"}))
	req.NoError(serverSide.Close())

	env := readEnvelope(t, conn)
	req.Equal(events.UserOnline, env.Event)
	_, _, err := conn.ReadMessage()
	req.Error(err)
	req.ErrorIs(serverSide.Send(events.PongEvent{}), ErrClosed)
	req.Eventually(func() bool { return d.disconnects() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSendFailsWhenBufferFull(t *testing.T) {
	c := NewClient(nil, "alice", Options{SendBuffer: 1}, nil)
	require.NoError(t, c.Send(events.PongEvent{}))
	require.ErrorIs(t, c.Send(events.PongEvent{}), ErrSlowConsumer)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Send(events.PongEvent{}), ErrClosed)
}

func TestUpgraderOrigins(t *testing.T) {
	up := NewUpgrader([]string{"https://market.example/"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://market.example")
	require.True(t, up.CheckOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	require.False(t, up.CheckOrigin(r))
}
