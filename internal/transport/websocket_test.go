package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	upgrader websocket.Upgrader
}

func newWsServer(t testing.TB) *wsServer {
	s := &wsServer{
		conns:    make(chan *websocket.Conn, 4),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		s.conns <- conn
	}))
	return s
}

func (s *wsServer) wsURL() string { return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" }

func newTestWebsocket(t testing.TB, url string) (*transportWebsocket, *recordHandler) {
	h := newRecordHandler()
	tr := &transportWebsocket{}
	cfg := config.Transport{Kind: config.TransportWebsocket, URL: url, NetworkTimeoutSec: 2, KeepaliveSec: 1}
	require.NoError(t, tr.Init(context.Background(), log2.NewTest(t, log2.LDebug), cfg, "test", h))
	return tr, h
}

func TestWebsocketExchange(t *testing.T) {
	t.Parallel()
	srv := newWsServer(t)
	defer srv.Close()
	tr, h := newTestWebsocket(t, srv.wsURL())
	defer tr.Close()

	assert.Equal(t, protocol.ErrNotConnected, tr.Send([]byte(`{}`)))

	tr.Connect()
	assert.Equal(t, "connect", h.wait(t).kind)
	var sc *websocket.Conn
	select {
	case sc = <-srv.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("server accept timeout")
	}
	defer sc.Close()

	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`{"event":"heartbeat","data":{"timestamp":1}}`)))
	e := h.wait(t)
	assert.Equal(t, "message", e.kind)
	assert.Equal(t, `{"event":"heartbeat","data":{"timestamp":1}}`, string(e.payload))

	require.NoError(t, tr.Send([]byte(`{"event":"request_data","data":{}}`)))
	_ = sc.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, b, err := sc.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"event":"request_data","data":{}}`, string(b))

	// server side loss is reported
	sc.Close()
	e = h.wait(t)
	assert.Equal(t, "disconnect", e.kind)
	assert.Error(t, e.err)
	assert.Equal(t, protocol.ErrNotConnected, tr.Send([]byte(`{}`)))
}

func TestWebsocketDisconnectSilent(t *testing.T) {
	t.Parallel()
	srv := newWsServer(t)
	defer srv.Close()
	tr, h := newTestWebsocket(t, srv.wsURL())
	defer tr.Close()

	tr.Connect()
	assert.Equal(t, "connect", h.wait(t).kind)
	tr.Disconnect()
	assert.True(t, h.quiet(200*time.Millisecond), "own disconnect is not reported")
	assert.Equal(t, protocol.ErrNotConnected, tr.Send([]byte(`{}`)))
}

func TestWebsocketConnectError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	tr, h := newTestWebsocket(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer tr.Close()

	tr.Connect()
	e := h.wait(t)
	assert.Equal(t, "connect-error", e.kind)
	assert.Contains(t, e.err.Error(), "websocket dial")
}

func TestWebsocketConnectWhileDialing(t *testing.T) {
	t.Parallel()
	var requests int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(300 * time.Millisecond)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()
	tr, h := newTestWebsocket(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer tr.Close()

	tr.Connect()
	time.Sleep(100 * time.Millisecond)
	tr.Connect()
	time.Sleep(100 * time.Millisecond)
	tr.Connect()

	assert.Equal(t, "connect", h.wait(t).kind)
	sc := <-conns
	defer sc.Close()
	assert.True(t, h.quiet(300*time.Millisecond), "slow handshake completes once")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	require.NoError(t, tr.Send([]byte(`{}`)))
}
