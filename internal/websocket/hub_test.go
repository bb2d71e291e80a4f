package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/scan"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_RoutesMessagesBySession(t *testing.T) {
	hub, srv := newTestHub(t)

	s1 := dial(t, srv, "?session_id=s1")
	s2 := dial(t, srv, "?session_id=s2")
	all := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, 2*time.Second, 5*time.Millisecond)

	sink := hub.ForSession("s1")
	require.NoError(t, sink.Progress(context.Background(), scan.Progress{
		Mode:    ppg.ModeFace,
		State:   scan.StateScanning,
		Elapsed: 1,
		Total:   6,
		At:      time.Now(),
	}))

	msg := readMessage(t, s1)
	assert.Equal(t, MessageProgress, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, scan.StateScanning, msg.State)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 1, msg.Progress.Elapsed)

	msg = readMessage(t, all)
	assert.Equal(t, "s1", msg.SessionID)

	require.NoError(t, s2.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := s2.ReadMessage()
	assert.Error(t, err, "other sessions receive nothing")
}

func TestHub_ReplaysLastMessageToLateSubscriber(t *testing.T) {
	hub, srv := newTestHub(t)

	require.NoError(t, hub.ForSession("s1").Complete(context.Background(), scan.Outcome{
		Mode:       ppg.ModeFingertip,
		State:      scan.StateCompleted,
		FinishedAt: time.Now(),
	}))
	require.Eventually(t, func() bool { return len(hub.broadcast) == 0 }, 2*time.Second, 5*time.Millisecond)

	late := dial(t, srv, "?session_id=s1")
	msg := readMessage(t, late)
	assert.Equal(t, MessageComplete, msg.Type)
	require.NotNil(t, msg.Outcome)
	assert.Equal(t, scan.StateCompleted, msg.Outcome.State)

	hub.Forget("s1")
	again := dial(t, srv, "?session_id=s1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, again.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := again.ReadMessage()
	assert.Error(t, err)
}

func TestHub_AbortMessage(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "?session_id=s3")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.ForSession("s3").Abort(context.Background(), scan.Outcome{
		State: scan.StateFailed,
		Code:  scan.CodeDeviceBusy,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageAbort, msg.Type)
	assert.Equal(t, scan.StateFailed, msg.State)
	assert.False(t, msg.At.IsZero())
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "?session_id=s4")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}
