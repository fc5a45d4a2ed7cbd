package localapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Message is the websocket event envelope.
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	seq     atomic.Uint64
}

func NewWSHub() *WSHub {
	return &WSHub{clients: map[*websocket.Conn]struct{}{}}
}

func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// PublishEvent is the event-sink form of Publish used by the runtime, the
// task runner and the flow coordinator.
func (h *WSHub) PublishEvent(op string, payload map[string]any) {
	h.Publish(op, payload)
}

func (h *WSHub) Publish(op string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	evt := Message{
		ID:      fmt.Sprintf("evt_%d", h.seq.Add(1)),
		Type:    "event",
		Op:      op,
		Payload: raw,
	}
	msg, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = c.Write(ctx, websocket.MessageText, msg)
		cancel()
	}
}
