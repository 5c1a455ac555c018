package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/config"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Hub, *state.Store, *websocket.Conn) {
	store := state.New()
	hub := NewHub(store, config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    time.Minute,
	}, zap.NewNop())
	go hub.Run()

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnected, msg.Type)
	return hub, store, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscribePushesCurrentAndUpdates(t *testing.T) {
	hub, store, conn := newTestServer(t)
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Path: "ui.activeTab"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeState, msg.Type)
	assert.Equal(t, "ui.activeTab", msg.Path)
	assert.JSONEq(t, `"logger"`, string(msg.Data))

	store.Set("ui.activeTab", "archive", false)
	msg = readMessage(t, conn)
	assert.Equal(t, "ui.activeTab", msg.Path)
	assert.JSONEq(t, `"archive"`, string(msg.Data))
}

func TestAncestorSubscriptionReceivesSubtree(t *testing.T) {
	_, store, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Path: "ui"}))
	readMessage(t, conn)

	store.Set("ui.storageWarning", true, false)
	msg := readMessage(t, conn)
	assert.Equal(t, "ui", msg.Path)

	var ui map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &ui))
	assert.Equal(t, true, ui["storageWarning"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, store, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Path: "ui.activeTab"}))
	readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeUnsubscribe, Path: "ui.activeTab"}))

	// ping 往返保证取消订阅已处理
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	store.Set("ui.activeTab", "stats", false)
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
}

func TestInvalidMessages(t *testing.T) {
	_, _, conn := newTestServer(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "spin"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, _, conn := newTestServer(t)
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Path: "game"}))
	readMessage(t, conn)
	conn.Close()

	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
