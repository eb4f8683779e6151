package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"slitmask/internal/service"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// hub fans service events out to websocket clients. All client bookkeeping
// happens on the run goroutine.
type hub struct {
	log          *slog.Logger
	clients      map[*websocket.Conn]bool
	broadcast    chan []byte
	registerCh   chan *websocket.Conn
	unregisterCh chan *websocket.Conn
	done         chan struct{}
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		log:          log,
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan []byte),
		registerCh:   make(chan *websocket.Conn),
		unregisterCh: make(chan *websocket.Conn),
		done:         make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.registerCh:
			h.clients[client] = true
			h.log.Debug("WebSocket client connected", "total", len(h.clients))

		case client := <-h.unregisterCh:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.Debug("WebSocket client disconnected", "total", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
		}
	}
}

func (h *hub) register(ctx context.Context, conn *websocket.Conn) bool {
	select {
	case h.registerCh <- conn:
		return true
	case <-ctx.Done():
	case <-h.done:
	}
	return false
}

func (h *hub) unregister(conn *websocket.Conn) {
	select {
	case h.unregisterCh <- conn:
	case <-h.done:
		conn.Close()
	}
}

func (h *hub) publish(ctx context.Context, ev service.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encoding event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-ctx.Done():
	case <-h.done:
	}
}
