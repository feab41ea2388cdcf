package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"DhammaFM/logger"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PlayerSocketHandler streams coordinator state snapshots over a websocket.
// Each client gets its own subscription; a client that cannot keep up misses
// intermediate snapshots rather than stalling the coordinator.
func (h *APIHandler) PlayerSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	states, cancel := h.coordinator.Subscribe()
	defer cancel()

	if err := conn.WriteJSON(h.coordinator.State()); err != nil {
		return
	}

	// Reader goroutine: notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				logger.Debug("websocket write failed", logger.ErrorField(err))
				return
			}
		case <-done:
			return
		}
	}
}
