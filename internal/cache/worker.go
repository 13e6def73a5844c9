package cache

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tannershotme/daily-v2/internal/config"
	"github.com/tannershotme/daily-v2/internal/model"
	"github.com/tannershotme/daily-v2/internal/notify"
	"github.com/tannershotme/daily-v2/internal/telemetry"
)

// Messages the foreground may post to the worker.
const (
	MsgSkipWaiting = "skip_waiting"
)

type Message struct {
	Type string `json:"type"`
}

// ClickRoute is the worker's answer to a notification click: focus an
// existing client at the app root, or open a new one. Routing never
// mutates task status; the task id is only carried for the client.
type ClickRoute struct {
	Action   string       `json:"action"` // "focus" | "open"
	ClientID string       `json:"clientId,omitempty"`
	URL      string       `json:"url"`
	TaskID   model.TaskID `json:"taskId,omitempty"`
}

type Options struct {
	Store   *Store
	Config  config.CacheConfig
	Clients *Registry
	Events  telemetry.Repository
	Logger  *log.Logger
	// WaitForActivate parks the worker after install until a
	// skip-waiting message arrives. The default mirrors an installer
	// that activates itself immediately.
	WaitForActivate bool
	AppRoot         string
	// Transport overrides how install fetches the manifest; nil means
	// plain HTTP.
	Transport http.RoundTripper
}

// Worker is the offline cache manager: an independently scheduled
// process with its own storage, coordinating with the foreground only
// through messages and the notification contract.
type Worker struct {
	store     *Store
	cfg       config.CacheConfig
	clients   *Registry
	events    telemetry.Repository
	logger    *log.Logger
	appRoot   string
	wait      bool
	transport http.RoundTripper

	msgs      chan Message
	activated chan struct{}

	mu        sync.Mutex
	delivered map[string]notify.Notification
}

func NewWorker(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clients == nil {
		opts.Clients = NewRegistry()
	}
	if opts.AppRoot == "" {
		opts.AppRoot = "/"
	}
	return &Worker{
		store:     opts.Store,
		cfg:       opts.Config,
		clients:   opts.Clients,
		events:    opts.Events,
		logger:    opts.Logger,
		appRoot:   opts.AppRoot,
		wait:      opts.WaitForActivate,
		transport: opts.Transport,
		msgs:      make(chan Message, 8),
		activated: make(chan struct{}),
		delivered: map[string]notify.Notification{},
	}
}

func (w *Worker) Clients() *Registry { return w.clients }

// Activated is closed once the worker has claimed its clients.
func (w *Worker) Activated() <-chan struct{} { return w.activated }

// Post hands a message to the worker without blocking the foreground.
func (w *Worker) Post(m Message) {
	select {
	case w.msgs <- m:
	default:
		w.logger.Printf("cache: message %s dropped, worker busy", m.Type)
	}
}

// Run drives the install -> activate -> serve lifecycle until the
// context ends.
func (w *Worker) Run(ctx context.Context) error {
	w.install(ctx)

	if w.wait {
	waiting:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case m := <-w.msgs:
				if m.Type == MsgSkipWaiting {
					break waiting
				}
			}
		}
	}

	if err := w.activate(); err != nil {
		// A failed eviction leaves stale versions behind; the current
		// version still serves.
		w.logger.Printf("cache: activate cleanup incomplete: %v", err)
	}
	close(w.activated)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-w.msgs:
			// skip-waiting after activation is a no-op.
			if m.Type != MsgSkipWaiting {
				w.logger.Printf("cache: unknown message %q", m.Type)
			}
		}
	}
}

// install precaches the manifest. Same-origin entries are fetched
// strictly; cross-origin entries get one opaque retry. Per-entry
// failures are logged and never abort the rest of the manifest.
func (w *Worker) install(ctx context.Context) {
	f := newFetcher(w.cfg.UpstreamBaseURL, time.Duration(w.cfg.FetchTimeoutS)*time.Second, w.transport)

	cached, failed := 0, 0
	for _, raw := range w.cfg.Manifest {
		url := f.resolve(raw)
		entry, body, err := f.fetchStrict(ctx, url)
		if err != nil && isCrossOrigin(raw) {
			w.logger.Printf("cache: strict fetch of %s failed (%v), retrying opaque", raw, err)
			entry, body, err = f.fetchOpaque(ctx, url)
		}
		if err != nil {
			w.logger.Printf("cache: precache of %s failed: %v", raw, err)
			failed++
			continue
		}
		if err := w.store.Put(w.cfg.Version, raw, entry, body); err != nil {
			w.logger.Printf("cache: store of %s failed: %v", raw, err)
			failed++
			continue
		}
		cached++
	}

	w.logger.Printf("cache: install done, %d cached, %d failed, version %s", cached, failed, w.cfg.Version)
	w.record(telemetry.EventCacheInstalled, telemetry.EventMetadata{
		"version": w.cfg.Version,
		"cached":  cached,
		"failed":  failed,
	})
}

// activate evicts every other cache generation and claims the clients.
func (w *Worker) activate() error {
	deleted, err := w.store.EvictOtherVersions(w.cfg.Version)
	for _, d := range deleted {
		w.logger.Printf("cache: deleted old cache %s", d)
	}
	w.clients.Broadcast(ClientEvent{Type: "controllerchange", Version: w.cfg.Version})
	w.record(telemetry.EventCacheActivated, telemetry.EventMetadata{
		"version": w.cfg.Version,
		"evicted": len(deleted),
	})
	return err
}

// Dispatch delivers a reminder to every open client. A notification
// reusing a tag replaces the previous one but still alerts.
func (w *Worker) Dispatch(n notify.Notification) error {
	w.mu.Lock()
	w.delivered[n.Tag] = n
	w.mu.Unlock()

	notification := n
	w.clients.Broadcast(ClientEvent{Type: "notification", Notification: &notification})
	return nil
}

// Delivered snapshots the currently shown notifications, one per tag.
func (w *Worker) Delivered() []notify.Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]notify.Notification, 0, len(w.delivered))
	for _, n := range w.delivered {
		out = append(out, n)
	}
	return out
}

// RouteClick resolves a click on a delivered reminder: the notification
// closes, and the click routes to an existing app-root client if one is
// open, otherwise to a new one.
func (w *Worker) RouteClick(tag string) ClickRoute {
	w.mu.Lock()
	n, ok := w.delivered[tag]
	if ok {
		delete(w.delivered, tag)
	}
	w.mu.Unlock()

	taskID := model.TaskID(tag)
	var payload *notify.Notification
	if ok {
		payload = &n
		if n.Data.TaskID != "" {
			taskID = n.Data.TaskID
		}
	}

	route := ClickRoute{Action: "open", URL: w.appRoot, TaskID: taskID}
	for _, c := range w.clients.List() {
		if !w.matchesAppRoot(c.Location) {
			continue
		}
		route = ClickRoute{Action: "focus", ClientID: c.ID, URL: w.appRoot, TaskID: taskID}
		w.clients.Send(c.ID, ClientEvent{Type: "focus", Notification: payload})
		break
	}

	w.record(telemetry.EventNotificationClicked, telemetry.EventMetadata{
		"task_id": string(taskID),
		"action":  route.Action,
	})
	return route
}

func (w *Worker) matchesAppRoot(location string) bool {
	return strings.HasSuffix(location, "/") || strings.Contains(location, "index.html")
}

func (w *Worker) record(t telemetry.EventType, meta telemetry.EventMetadata) {
	if w.events == nil {
		return
	}
	_ = w.events.RecordEvent(t, meta)
}
