package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxCachedBody bounds what install and runtime caching will store.
const maxCachedBody = 8 << 20

// fetcher resolves manifest entries and fetches them. Same-origin paths
// are resolved against the upstream base; absolute URLs are cross-origin.
type fetcher struct {
	client *http.Client
	base   string
}

func newFetcher(base string, timeout time.Duration, rt http.RoundTripper) *fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &fetcher{
		client: &http.Client{Timeout: timeout, Transport: rt},
		base:   strings.TrimSuffix(base, "/"),
	}
}

func isCrossOrigin(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func (f *fetcher) resolve(raw string) string {
	if isCrossOrigin(raw) {
		return raw
	}
	return f.base + raw
}

// fetchStrict requires an inspectable success: any transport error or
// non-2xx status fails the fetch.
func (f *fetcher) fetchStrict(ctx context.Context, url string) (Entry, []byte, error) {
	resp, body, err := f.get(ctx, url)
	if err != nil {
		return Entry{}, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Entry{}, nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	return Entry{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		StoredAt:    time.Now(),
	}, body, nil
}

// fetchOpaque is the cross-origin fallback: whatever response arrives is
// stored for replay without being inspected for success. Only a
// transport failure fails it.
func (f *fetcher) fetchOpaque(ctx context.Context, url string) (Entry, []byte, error) {
	resp, body, err := f.get(ctx, url)
	if err != nil {
		return Entry{}, nil, err
	}
	return Entry{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Opaque:      true,
		StoredAt:    time.Now(),
	}, body, nil
}

func (f *fetcher) get(ctx context.Context, url string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody))
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}
