package cache

import (
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"
)

// Gateway is the fetch-interception front: every request for the app
// shell passes through it so the application keeps working when its
// origin does not answer. Navigations are network-first, everything
// else cache-first.
type Gateway struct {
	store    *Store
	version  string
	upstream http.RoundTripper
	manifest []string
	logger   *log.Logger
}

func NewGateway(store *Store, version string, upstream http.RoundTripper, manifest []string, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		store:    store,
		version:  version,
		upstream: upstream,
		manifest: manifest,
		logger:   logger,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if isNavigation(r) {
		g.serveNavigation(w, r)
		return
	}
	g.serveAsset(w, r)
}

// isNavigation approximates a top-level page request: the browser asks
// for HTML rather than a subresource.
func isNavigation(r *http.Request) bool {
	if r.URL.Path == "/" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// serveNavigation: network first; on success cache a copy and return
// it, on failure fall back to the cached copy of the request, then to
// the cached root document.
func (g *Gateway) serveNavigation(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	entry, body, err := g.fetch(r)
	if err == nil && entry.Status == http.StatusOK {
		if putErr := g.store.Put(g.version, key, entry, body); putErr != nil {
			g.logger.Printf("cache: runtime store of %s failed: %v", key, putErr)
		}
		writeEntry(w, entry, body)
		return
	}
	if err != nil {
		g.logger.Printf("cache: network failed for navigation %s: %v", key, err)
	}

	if e, b, ok := g.store.Get(g.version, key); ok {
		writeEntry(w, e, b)
		return
	}
	for _, root := range []string{"/index.html", "/"} {
		if e, b, ok := g.store.Get(g.version, root); ok {
			writeEntry(w, e, b)
			return
		}
	}
	http.Error(w, "offline and not cached", http.StatusBadGateway)
}

// serveAsset: cached copy wins; otherwise fetch, replay, and keep a
// copy when the response is a success we are allowed to store. With no
// cache and no network the request fails.
func (g *Gateway) serveAsset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if e, b, ok := g.store.Get(g.version, key); ok {
		writeEntry(w, e, b)
		return
	}

	entry, body, err := g.fetch(r)
	if err != nil {
		http.Error(w, "offline and not cached", http.StatusBadGateway)
		return
	}
	if entry.Status == http.StatusOK && !entry.Opaque && g.shouldCacheRuntime(key) {
		if putErr := g.store.Put(g.version, key, entry, body); putErr != nil {
			g.logger.Printf("cache: runtime store of %s failed: %v", key, putErr)
		}
	}
	writeEntry(w, entry, body)
}

func (g *Gateway) fetch(r *http.Request) (Entry, []byte, error) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	if out.URL.Scheme == "" {
		out.URL.Scheme = "http"
	}
	if out.URL.Host == "" {
		out.URL.Host = r.Host
		if out.URL.Host == "" {
			out.URL.Host = "daily.internal"
		}
	}
	resp, err := g.upstream.RoundTrip(out)
	if err != nil {
		return Entry{}, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody))
	if err != nil {
		return Entry{}, nil, err
	}
	return Entry{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		StoredAt:    time.Now(),
	}, body, nil
}

// shouldCacheRuntime bounds cache growth: only resources named by the
// manifest (exactly or by file name) earn a runtime copy.
func (g *Gateway) shouldCacheRuntime(key string) bool {
	base := path.Base(key)
	for _, m := range g.manifest {
		if m == key {
			return true
		}
		if base != "" && base != "/" && path.Base(m) == base {
			return true
		}
	}
	return false
}

func writeEntry(w http.ResponseWriter, e Entry, body []byte) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
