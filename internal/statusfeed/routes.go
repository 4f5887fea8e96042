package statusfeed

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/connect-alarm-go/internal/api"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard may be served from a different origin
	},
}

// RegisterRoutes wires the live status feed to the router.
func RegisterRoutes(router chi.Router, manager *Manager) {
	router.HandleFunc("/v1/alarms/stream", streamHandler(manager))
	router.Method(http.MethodGet, "/v1/alarms/stream/status", api.Handler(statusHandler(manager)))
}

func streamHandler(manager *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		manager.Add(conn)
	}
}

func statusHandler(manager *Manager) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":    "alarm_stream_status",
			"listeners": manager.ClientCount(),
		})
	}
}
