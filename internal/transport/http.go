package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Options configures the shared HTTP client.
type Options struct {
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConnsPerHost   int
}

// HTTPTransport creates handles backed by one shared net/http client, so
// connections are reused across handles.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a pooled transport from opts.
func NewHTTPTransport(opts Options) *HTTPTransport {
	tr := cleanhttp.DefaultPooledTransport()
	if opts.ConnectTimeout > 0 {
		tr.DialContext = (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	if opts.ResponseHeaderTimeout > 0 {
		tr.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
	}
	if opts.IdleConnTimeout > 0 {
		tr.IdleConnTimeout = opts.IdleConnTimeout
	}
	if opts.MaxIdleConnsPerHost > 0 {
		tr.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	}
	return &HTTPTransport{client: &http.Client{Transport: tr}}
}

// NewHTTPTransportWithClient wraps an existing client, e.g. an httptest server's.
func NewHTTPTransportWithClient(c *http.Client) *HTTPTransport {
	return &HTTPTransport{client: c}
}

// NewHandle implements Factory.
func (t *HTTPTransport) NewHandle() Handle {
	return &httpHandle{client: t.client}
}

// Close releases idle connections.
func (t *HTTPTransport) Close() {
	t.client.CloseIdleConnections()
}

type httpHandle struct {
	client *http.Client

	method     string
	url        *url.URL
	header     http.Header
	body       io.Reader
	length     int64
	sink       io.Writer
	respHeader http.Header
}

func (h *httpHandle) SetMethod(method string)   { h.method = method }
func (h *httpHandle) SetURL(u *url.URL)         { h.url = u }
func (h *httpHandle) SetHeaders(hd http.Header) { h.header = hd }
func (h *httpHandle) SetOutputStream(w io.Writer) {
	h.sink = w
}

func (h *httpHandle) SetInputBuffer(b []byte) {
	h.body = bytes.NewReader(b)
	h.length = int64(len(b))
}

func (h *httpHandle) SetInputStream(r io.Reader, length int64) {
	h.body = r
	h.length = length
}

func (h *httpHandle) ResponseHeader(name string) string {
	return h.respHeader.Get(name)
}

func (h *httpHandle) Reset() {
	*h = httpHandle{client: h.client}
}

func (h *httpHandle) Execute(ctx context.Context) (*Response, error) {
	if h.url == nil {
		return nil, fmt.Errorf("transport: no URL set")
	}

	var body io.Reader = http.NoBody
	if h.body != nil && h.length != 0 {
		body = h.body
	}
	req, err := http.NewRequestWithContext(ctx, h.method, h.url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, vs := range h.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	switch {
	case body == http.NoBody:
		req.ContentLength = 0
	case h.length > 0:
		req.ContentLength = h.length
	default:
		req.ContentLength = -1
	}
	// a streamed body must not be re-read by net/http on redirect or retry
	req.GetBody = nil

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	h.respHeader = resp.Header
	out := &Response{Status: resp.StatusCode, Header: resp.Header}

	if h.sink == nil || out.Status < 200 || out.Status >= 300 {
		out.Body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: read response body: %w", err)
		}
		return out, nil
	}

	out.Written, err = io.Copy(&sinkWriter{w: h.sink}, resp.Body)
	if err != nil {
		var se *SinkError
		if errors.As(err, &se) {
			return out, se
		}
		return out, fmt.Errorf("transport: read response body: %w", err)
	}
	return out, nil
}

// sinkWriter tags write failures so they are not mistaken for network errors.
type sinkWriter struct {
	w io.Writer
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, &SinkError{Err: err}
	}
	return n, nil
}
