// Package statusfeed broadcasts live PhaseMetrics updates to any number of
// connected dashboard websocket clients, fanning out to many read-only
// subscribers at once.
package statusfeed

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strefethen/connect-alarm-go/internal/orchestrator"
)

// Manager holds the set of live websocket subscribers and pushes every
// PhaseMetrics update to all of them.
type Manager struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	logger  *log.Logger
}

// NewManager returns an empty Manager.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

// Add registers a newly upgraded connection and starts draining its reads
// (dashboards are push-only; any inbound message just keeps the connection
// alive until the client closes it).
func (m *Manager) Add(conn *websocket.Conn) {
	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	go m.drain(conn)
}

func (m *Manager) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			m.remove(conn)
			return
		}
	}
}

func (m *Manager) remove(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[conn]; ok {
		delete(m.clients, conn)
		conn.Close()
	}
}

// Broadcast pushes metrics to every connected client, dropping any that
// fail to write (closed or dead connections are removed).
func (m *Manager) Broadcast(metrics *orchestrator.PhaseMetrics) {
	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.clients))
	for conn := range m.clients {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(metrics); err != nil {
			m.logger.Printf("statusfeed: write failed, dropping client: %v", err)
			m.remove(conn)
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.Close()
	}
	m.clients = make(map[*websocket.Conn]struct{})
}
