package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WSHub fans events out to connected websocket clients. Slow clients are
// dropped rather than allowed to stall the publishing path.
type WSHub struct {
	Logger *zap.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewWSHub(logger *zap.Logger) *WSHub {
	return &WSHub{
		Logger: logger,
		subs:   map[chan []byte]struct{}{},
	}
}

func (h *WSHub) Publish(_ context.Context, ev Event) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws event marshal failed", zap.Error(err))
		}
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
			// Subscriber buffer full; skip this event for that client.
		}
	}
}

func (h *WSHub) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *WSHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Handle upgrades the request and streams events until the client goes away.
func (h *WSHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
