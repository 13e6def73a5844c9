package serverapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tannershotme/daily-v2/internal/cache"
	"github.com/tannershotme/daily-v2/internal/config"
	"github.com/tannershotme/daily-v2/internal/day"
	"github.com/tannershotme/daily-v2/internal/httpmw"
	"github.com/tannershotme/daily-v2/internal/model"
	"github.com/tannershotme/daily-v2/internal/remind"
	"github.com/tannershotme/daily-v2/internal/telemetry"
	staticfiles "github.com/tannershotme/daily-v2/static"
)

// LocalHost is the pseudo-origin same-origin manifest entries resolve
// against when the app shell is served from the embedded files.
const LocalHost = "daily.internal"

type Options struct {
	Config        *config.Config
	Controller    *day.Controller
	Worker        *cache.Worker
	CacheStore    *cache.Store
	Events        telemetry.Repository
	Logger        *log.Logger
	StaticDir     string
	UseDiskStatic bool
}

// NewHandler wires the API mux and the offline gateway for the app
// shell. The controller owns all day state; handlers only translate
// HTTP to controller calls.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if strings.TrimSpace(opts.StaticDir) == "" {
		opts.StaticDir = "static"
	}

	mux := http.NewServeMux()
	ctl := opts.Controller

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "daily",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/api/day/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{
			Snapshot: ctl.Snapshot(),
			Notices:  ctl.Notices(),
		})
	})

	mux.HandleFunc("/api/day/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Hour      int  `json:"hour"`
			Minute    int  `json:"minute"`
			Confirmed bool `json:"confirmed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := ctl.StartDay(req.Hour, req.Minute, req.Confirmed); err != nil {
			if errors.Is(err, day.ErrConfirmRequired) {
				writeJSON(w, http.StatusConflict, map[string]any{
					"error":            err.Error(),
					"confirm_required": true,
				})
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{
			Snapshot: ctl.Snapshot(),
			Notices:  ctl.Notices(),
		})
	})

	mux.HandleFunc("/api/day/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctl.ResetDay()
		writeJSON(w, http.StatusOK, stateResponse{
			Snapshot: ctl.Snapshot(),
			Notices:  ctl.Notices(),
		})
	})

	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, ctl.Snapshot().Tasks)
		case http.MethodPut:
			var edits []day.TaskEdit
			if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
				writeError(w, http.StatusBadRequest, "invalid json body")
				return
			}
			writeJSON(w, http.StatusOK, ctl.ReplaceTasks(edits))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		id, ok := strings.CutSuffix(rest, "/status")
		if !ok || id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Done bool `json:"done"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := ctl.SetTaskDone(model.TaskID(id), req.Done); err != nil {
			if errors.Is(err, day.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/pastdue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ctl.PastDue())
	})

	mux.HandleFunc("/api/pastdue/confirm", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			IDs []model.TaskID `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		ctl.ConfirmPastDue(req.IDs)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"pastdue": ctl.PastDue(),
		})
	})

	mux.HandleFunc("/calendar.ics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap := ctl.Snapshot()
		tasks := make([]model.Task, 0, len(snap.Tasks))
		for _, tv := range snap.Tasks {
			tasks = append(tasks, tv.Task)
		}
		ics, err := remind.BuildScheduleICS(snap.WakeMillis, tasks, time.Now())
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="daily.ics"`)
		_, _ = w.Write([]byte(ics))
	})

	mux.HandleFunc("/api/reminders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ctl.Scheduler().Pending())
	})

	mux.HandleFunc("/api/theme", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]string{"theme": ctl.Theme()})
		case http.MethodPut:
			var req struct {
				Theme string `json:"theme"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid json body")
				return
			}
			ctl.SetTheme(req.Theme)
			writeJSON(w, http.StatusOK, map[string]string{"theme": ctl.Theme()})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	if opts.Worker != nil {
		worker := opts.Worker

		// The client channel of the cache worker: the app shell holds
		// this stream open and receives controller changes, reminder
		// notifications and focus directives over it. Registration
		// lasts exactly as long as the connection.
		mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			flusher, ok := w.(http.Flusher)
			if !ok {
				writeError(w, http.StatusInternalServerError, "streaming unsupported")
				return
			}
			location := r.URL.Query().Get("location")
			if location == "" {
				location = "/"
			}
			client := worker.Clients().Register(location)
			defer worker.Clients().Unregister(client.ID)

			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "data: {\"type\":\"ready\",\"clientId\":%q}\n\n", client.ID)
			flusher.Flush()

			for {
				select {
				case <-r.Context().Done():
					return
				case ev, open := <-client.Events:
					if !open {
						return
					}
					b, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "data: %s\n\n", b)
					flusher.Flush()
				}
			}
		})

		mux.HandleFunc("/api/cache/activate", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			worker.Post(cache.Message{Type: cache.MsgSkipWaiting})
			writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
		})

		mux.HandleFunc("/api/notifications/click", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var req struct {
				Tag string `json:"tag"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tag == "" {
				writeError(w, http.StatusBadRequest, "tag is required")
				return
			}
			writeJSON(w, http.StatusOK, worker.RouteClick(req.Tag))
		})
	}

	if opts.Events != nil {
		events := opts.Events
		mux.HandleFunc("/api/telemetry/stats", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			since := time.Now().AddDate(0, 0, -7)
			if raw := r.URL.Query().Get("since"); raw != "" {
				parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
				if err != nil {
					writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
					return
				}
				since = parsed
			}
			evs, err := events.GetEvents(since, nil)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "telemetry unavailable")
				return
			}
			stats, err := telemetry.CalculateStats(evs, since)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "telemetry unavailable")
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})
	}

	var static http.Handler = http.FileServer(http.FS(staticfiles.EmbeddedFS()))
	if opts.UseDiskStatic {
		static = http.FileServer(http.Dir(opts.StaticDir))
	}

	// The app shell goes through the offline gateway when a cache store
	// is wired; otherwise the static files serve directly.
	if opts.CacheStore != nil {
		gateway := cache.NewGateway(
			opts.CacheStore,
			opts.Config.Cache.Version,
			cache.HandlerTransport(static, LocalHost),
			opts.Config.Cache.Manifest,
			opts.Logger,
		)
		mux.Handle("/", gateway)
	} else {
		mux.Handle("/", static)
	}

	return httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger),
		httpmw.WithRequestID,
		httpmw.WithRecover(opts.Logger),
	), nil
}

type stateResponse struct {
	day.Snapshot
	Notices []day.Notice `json:"notices"`
}

func UseDiskStaticByEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DAILY_DEV_STATIC"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
