package cache

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tannershotme/daily-v2/internal/notify"
)

// ClientEvent is what the cache manager pushes to an open client
// context: controller changes and delivered or re-routed reminders.
type ClientEvent struct {
	Type         string               `json:"type"` // "controllerchange" | "notification" | "focus"
	Version      string               `json:"version,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// Client is one open application context registered with the worker.
// Events flow one way, worker to client; a slow client drops events
// rather than blocking the worker.
type Client struct {
	ID       string
	Location string
	Events   chan ClientEvent
}

type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: map[string]*Client{}}
}

func (r *Registry) Register(location string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Location: location,
		Events:   make(chan ClientEvent, 16),
	}
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
	return c
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()
	if ok {
		close(c.Events)
	}
}

func (r *Registry) List() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Broadcast(ev ClientEvent) {
	for _, c := range r.List() {
		c.send(ev)
	}
}

func (r *Registry) Send(id string, ev ClientEvent) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	c.send(ev)
	return true
}

func (c *Client) send(ev ClientEvent) {
	select {
	case c.Events <- ev:
	default:
		// Client is not draining; dropping beats blocking the worker.
	}
}
