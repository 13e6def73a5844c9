package cache

import (
	"bytes"
	"io"
	"net/http"
)

// HandlerTransport serves requests addressed to localHost straight from
// an in-process handler and sends everything else over the network.
// The install fetcher and the gateway both use it so the app shell
// never round-trips through a socket to reach its own static files.
func HandlerTransport(h http.Handler, localHost string) http.RoundTripper {
	return &handlerTransport{h: h, localHost: localHost, remote: http.DefaultTransport}
}

type handlerTransport struct {
	h         http.Handler
	localHost string
	remote    http.RoundTripper
}

func (t *handlerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Host != "" && r.URL.Host != t.localHost {
		return t.remote.RoundTrip(r)
	}
	bw := &bufferedResponse{header: http.Header{}, status: http.StatusOK}
	t.h.ServeHTTP(bw, r)
	return &http.Response{
		StatusCode: bw.status,
		Header:     bw.header,
		Body:       io.NopCloser(bytes.NewReader(bw.buf.Bytes())),
		Request:    r,
	}, nil
}

type bufferedResponse struct {
	header http.Header
	buf    bytes.Buffer
	status int
}

func (w *bufferedResponse) Header() http.Header { return w.header }

func (w *bufferedResponse) WriteHeader(status int) { w.status = status }

func (w *bufferedResponse) Write(p []byte) (int, error) { return w.buf.Write(p) }
