package main

import (
	"sync"

	"github.com/lyzr/flow/common/logger"
)

// firehoseKey is the subscription key for clients watching every
// execution. It matches the suffix of the mirror channel flow-server
// publishes each event on.
const firehoseKey = "all"

// envelope is one event payload routed to one subscription key.
type envelope struct {
	key     string
	payload []byte
}

// Hub owns the live WebSocket clients, grouped by the execution they
// watch. All map writes happen on the Run goroutine; the mutex exists for
// the read-only counters the health endpoint reports.
type Hub struct {
	clients map[string][]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope

	log *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		log:        log,
	}
}

// Run processes registrations, departures and broadcasts until the
// process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case env := <-h.broadcast:
			h.send(env.key, env.payload)
		}
	}
}

// Broadcast queues an event for every client subscribed to key.
func (h *Hub) Broadcast(key string, payload []byte) {
	h.broadcast <- &envelope{key: key, payload: payload}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.key] = append(h.clients[client.key], client)
	h.log.Debug("client registered", "key", client.key, "watchers", len(h.clients[client.key]))
}

// remove drops a departing client and closes its send channel. Clients
// already evicted by send are gone from the slice, so the close here runs
// at most once per client.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers := h.clients[client.key]
	for i, c := range watchers {
		if c == client {
			h.clients[client.key] = append(watchers[:i], watchers[i+1:]...)
			close(client.send)
			break
		}
	}
	if len(h.clients[client.key]) == 0 {
		delete(h.clients, client.key)
	}
	h.log.Debug("client unregistered", "key", client.key, "watchers", len(h.clients[client.key]))
}

// send delivers the payload to every watcher of key. A client whose send
// buffer is full gets evicted on the spot so one stalled reader cannot
// back up delivery to everyone else.
func (h *Hub) send(key string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers := h.clients[key]
	if len(watchers) == 0 {
		return
	}

	kept := watchers[:0]
	for _, client := range watchers {
		select {
		case client.send <- payload:
			kept = append(kept, client)
		default:
			h.log.Warn("dropping slow client", "key", key)
			close(client.send)
		}
	}
	if len(kept) == 0 {
		delete(h.clients, key)
	} else {
		h.clients[key] = kept
	}
}

// ConnectionCount returns the number of open WebSocket connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, watchers := range h.clients {
		count += len(watchers)
	}
	return count
}

// KeyCount returns the number of subscription keys with at least one
// watcher.
func (h *Hub) KeyCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
