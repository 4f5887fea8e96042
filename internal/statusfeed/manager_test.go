package statusfeed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/connect-alarm-go/internal/orchestrator"
)

func startTestServer(t *testing.T, manager *Manager) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(streamHandler(manager)))
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func TestBroadcastFansOutToAllClients(t *testing.T) {
	manager := NewManager(nil)
	_, wsURL := startTestServer(t, manager)

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn2.Close()

	require.Eventually(t, func() bool { return manager.ClientCount() == 2 }, time.Second, time.Millisecond)

	metrics := &orchestrator.PhaseMetrics{AlarmID: "alarm-1", Target: "Kitchen", Branch: orchestrator.BranchPrimary}
	manager.Broadcast(metrics)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var got orchestrator.PhaseMetrics
		require.NoError(t, conn.ReadJSON(&got))
		require.Equal(t, "alarm-1", got.AlarmID)
		require.Equal(t, orchestrator.BranchPrimary, got.Branch)
	}
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	manager := NewManager(nil)
	_, wsURL := startTestServer(t, manager)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return manager.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestCloseDisconnectsEveryClient(t *testing.T) {
	manager := NewManager(nil)
	_, wsURL := startTestServer(t, manager)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, time.Second, time.Millisecond)

	manager.Close()
	require.Equal(t, 0, manager.ClientCount())
}
