// Package stream broadcasts measurement-run progress to WebSocket
// subscribers. The wizard UI shows live sweep points this way; the runner
// publishes events and never blocks on slow consumers.
package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one progress update pushed to subscribers.
type Event struct {
	// Type is one of "run_started", "point", "run_finished", "run_failed".
	Type string `json:"type"`

	// Measurement is the catalog measurement name.
	Measurement string `json:"measurement,omitempty"`

	// BundleID identifies the resource bundle the run uses.
	BundleID string `json:"bundle_id,omitempty"`

	// Index and Total locate a "point" event within the sweep.
	Index int `json:"index,omitempty"`
	Total int `json:"total,omitempty"`

	// Values carries the data row of a "point" event.
	Values []float64 `json:"values,omitempty"`

	// Message carries detail for "run_failed" events.
	Message string `json:"message,omitempty"`

	// Time is when the event was published.
	Time time.Time `json:"time"`
}

// Hub fans events out to the connected clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan Event

	mu      sync.RWMutex
	clients map[*Client]struct{}

	log *zap.Logger
}

// NewHub creates a hub; call Run to start the event loop.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		events:     make(chan Event, 256),
		clients:    make(map[*Client]struct{}),
		log:        log,
	}
}

// Run drives the hub until the context is cancelled, then closes every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("stream client connected", zap.Int("clients", h.ClientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.events:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Slow consumer: drop the event rather than stall the run.
					h.log.Warn("stream client lagging, event dropped")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues an event for broadcast. Stamps the event time if unset.
// Never blocks; when the hub's queue is full the event is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case h.events <- ev:
	default:
		h.log.Warn("stream queue full, event dropped", zap.String("type", ev.Type))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
