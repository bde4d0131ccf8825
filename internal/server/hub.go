package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// EventHub fans JSON events out to websocket clients. Publish never blocks:
// a client whose buffer is full misses the event.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	buffer  int
	logger  *zap.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

type hubClient struct {
	send chan []byte
}

// NewEventHub creates a hub with a per-client buffer.
func NewEventHub(buffer int, logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{
		clients: make(map[*hubClient]struct{}),
		buffer:  buffer,
		logger:  logger.With(zap.String("component", "event_hub")),
	}
}

// Publish encodes v and queues it for every connected client.
func (h *EventHub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("event encode failed", zap.Error(err))
		return
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many client deliveries were skipped.
func (h *EventHub) Dropped() int64 { return h.dropped.Load() }

func (h *EventHub) add() *hubClient {
	c := &hubClient{send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until either side
// closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	client := h.add()
	defer h.remove(client)
	h.logger.Debug("event client connected", zap.String("remote", r.RemoteAddr))

	// The read side only exists to notice client close frames.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-client.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("event client write failed", zap.Error(err))
				return
			}
		}
	}
}
