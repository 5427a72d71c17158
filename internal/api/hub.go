package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/cabinet.report/internal/camera"
	"github.com/banshee-data/cabinet.report/internal/monitoring"
)

const subscriberReadDeadline = 60 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hubEvent is the wire form pushed to subscribers; the snapshot stays
// out of the stream and is fetched over the REST API instead.
type hubEvent struct {
	EventID    string    `json:"event_id"`
	DeviceID   string    `json:"device_id"`
	TrackID    int64     `json:"track_id"`
	Label      string    `json:"label"`
	Brand      string    `json:"brand,omitempty"`
	Confidence float64   `json:"confidence"`
	Direction  string    `json:"direction"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventHub fans detection events out to websocket subscribers. A slow
// subscriber is dropped rather than allowed to stall the broadcast.
type EventHub struct {
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run dispatches until ctx is cancelled. Call in its own goroutine.
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("event subscriber connected, total %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("event subscriber disconnected, total %d", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Publish queues an event for broadcast. Never blocks; the stream is
// best-effort and the database remains the source of truth.
func (h *EventHub) Publish(event *camera.DetectionEvent) {
	payload, err := json.Marshal(hubEvent{
		EventID:    event.ID,
		DeviceID:   event.DeviceID,
		TrackID:    event.TrackID,
		Label:      event.Label,
		Brand:      event.Brand,
		Confidence: event.Confidence,
		Direction:  string(event.Direction),
		Timestamp:  event.Timestamp,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSubscriber upgrades the request and keeps the subscription open
// until the peer goes away.
func (h *EventHub) HandleSubscriber(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade error: %v", err)
		return
	}

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(subscriberReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(subscriberReadDeadline))
		return nil
	})

	// The register/unregister sends race hub shutdown; once Run has
	// exited nobody drains them, so every send backs off on done.
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Subscribers only listen; the read loop exists to notice the close.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
