package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stash-api/internal/gate"
	"stash-api/pkg/logger"

	"github.com/google/uuid"
)

// EventGateState is the SSE event name carrying a gate snapshot
const EventGateState = "gate"

const outboundBuffer = 16

// Client is one open stream and the controller mounted for it
type Client struct {
	ID         uuid.UUID
	VisitorID  string
	Controller *gate.Controller
	Outbound   chan gate.Snapshot

	done      chan struct{}
	closeOnce sync.Once
}

// Send queues a snapshot without blocking. It is safe to call from a gate
// listener.
func (c *Client) Send(snap gate.Snapshot) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Outbound <- snap:
		return true
	default:
		return false
	}
}

// Hub tracks open gate streams by visitor
type Hub struct {
	mu        sync.RWMutex
	logger    *logger.Logger
	visitors  map[string]map[*Client]bool
	heartbeat time.Duration
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Hub{
		logger:    log.Named("sse"),
		visitors:  make(map[string]map[*Client]bool),
		heartbeat: heartbeat,
	}
}

// NewClient creates a client for visitorID. It is not registered until Add.
func (hub *Hub) NewClient(visitorID string) *Client {
	return &Client{
		ID:        uuid.New(),
		VisitorID: visitorID,
		Outbound:  make(chan gate.Snapshot, outboundBuffer),
		done:      make(chan struct{}),
	}
}

// Add registers a client under its visitor
func (hub *Hub) Add(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	clients, ok := hub.visitors[client.VisitorID]
	if !ok {
		clients = make(map[*Client]bool)
		hub.visitors[client.VisitorID] = clients
	}
	clients[client] = true

	hub.logger.WithField("client_id", client.ID.String()).Debug("SSE client added")
}

// Remove closes a client's controller and unregisters it
func (hub *Hub) Remove(client *Client) {
	client.closeOnce.Do(func() { close(client.done) })
	if client.Controller != nil {
		client.Controller.Close()
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if clients, ok := hub.visitors[client.VisitorID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(hub.visitors, client.VisitorID)
		}
	}
	hub.logger.WithField("client_id", client.ID.String()).Debug("SSE client removed")
}

// Controllers returns the mounted controllers of a visitor's open streams
func (hub *Hub) Controllers(visitorID string) []*gate.Controller {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	clients := hub.visitors[visitorID]
	controllers := make([]*gate.Controller, 0, len(clients))
	for c := range clients {
		if c.Controller != nil {
			controllers = append(controllers, c.Controller)
		}
	}
	return controllers
}

// Count is the number of open streams
func (hub *Hub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	n := 0
	for _, clients := range hub.visitors {
		n += len(clients)
	}
	return n
}

// Serve writes the client's snapshots as server-sent events until the
// request ends or the client is removed.
func (hub *Hub) Serve(w http.ResponseWriter, r *http.Request, client *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap := <-client.Outbound:
			data, err := json.Marshal(snap)
			if err != nil {
				hub.logger.WithError(err).Warn("Failed to marshal gate snapshot")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventGateState, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// CloseAll ends every open stream. Used on server shutdown so long-lived
// connections do not hold it up.
func (hub *Hub) CloseAll() {
	hub.mu.RLock()
	clients := make([]*Client, 0)
	for _, set := range hub.visitors {
		for c := range set {
			clients = append(clients, c)
		}
	}
	hub.mu.RUnlock()

	for _, c := range clients {
		hub.Remove(c)
	}
	if len(clients) > 0 {
		hub.logger.WithField("count", len(clients)).Info("Closed open gate streams")
	}
}
