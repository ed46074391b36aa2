// Package request defines the declarative description of one storage exchange.
//
// A Description says what to send (verb, service, path, query, headers, body) and
// where the response body goes. It is built once per logical operation and never
// mutated afterwards; each attempt works on a copy of its headers.
package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// APIVersion is the service version sent as x-ms-version.
const APIVersion = "2021-08-06"

// Header names used across builders and the executor.
const (
	HeaderVersion       = "x-ms-version"
	HeaderDate          = "x-ms-date"
	HeaderRange         = "x-ms-range"
	HeaderErrorCode     = "x-ms-error-code"
	HeaderRequestID     = "x-ms-request-id"
	HeaderClientRequest = "x-ms-client-request-id"
	HeaderContentRange  = "Content-Range"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderETag          = "ETag"
	HeaderLastModified  = "Last-Modified"
	HeaderAuthorization = "Authorization"
)

// Service selects the endpoint a request is sent to.
type Service string

const (
	ServiceBlob Service = "blob"
	ServiceDFS  Service = "dfs"
)

// Description is one exchange, independent of any attempt.
type Description struct {
	// Operation is a short name used in logs, metrics and errors, e.g. "PutBlock".
	Operation string
	Method    string
	Service   Service
	// Path is the unescaped resource path below the service endpoint, e.g. "/container/dir/blob".
	Path   string
	Query  url.Values
	Header http.Header
	Body   *Body
	Range  *Range
	Sink   *Sink
}

// New creates a description with empty query and headers.
func New(operation, method string, service Service, path string) *Description {
	return &Description{
		Operation: operation,
		Method:    method,
		Service:   service,
		Path:      path,
		Query:     url.Values{},
		Header:    http.Header{},
	}
}

// WithQuery adds a query parameter.
func (d *Description) WithQuery(key, value string) *Description {
	d.Query.Add(key, value)
	return d
}

// WithHeader sets a header.
func (d *Description) WithHeader(key, value string) *Description {
	d.Header.Set(key, value)
	return d
}

// WithBody attaches a request body.
func (d *Description) WithBody(b *Body) *Description {
	d.Body = b
	return d
}

// WithRange restricts the response to a byte range.
func (d *Description) WithRange(r *Range) *Description {
	d.Range = r
	return d
}

// WithSink streams the response body into s instead of buffering it.
func (d *Description) WithSink(s *Sink) *Description {
	d.Sink = s
	return d
}

// Validate checks the description is complete enough to send.
func (d *Description) Validate() error {
	if d.Method == "" {
		return fmt.Errorf("request %s: missing method", d.Operation)
	}
	if d.Service != ServiceBlob && d.Service != ServiceDFS {
		return fmt.Errorf("request %s: unknown service %q", d.Operation, d.Service)
	}
	if d.Path == "" || d.Path[0] != '/' {
		return fmt.Errorf("request %s: path must start with '/', got %q", d.Operation, d.Path)
	}
	if d.Range != nil {
		if err := d.Range.Validate(); err != nil {
			return fmt.Errorf("request %s: %w", d.Operation, err)
		}
	}
	return nil
}

// ContentLength is the body length, 0 without a body and -1 when unknown.
func (d *Description) ContentLength() int64 {
	if d.Body == nil {
		return 0
	}
	return d.Body.Len()
}

// AttemptHeader returns a copy of the headers for one attempt, with the range and
// version headers filled in. The description itself is not touched.
func (d *Description) AttemptHeader() http.Header {
	h := d.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get(HeaderVersion) == "" {
		h.Set(HeaderVersion, APIVersion)
	}
	if d.Range != nil {
		h.Set(HeaderRange, d.Range.HeaderValue())
	}
	if n := d.ContentLength(); n > 0 {
		h.Set(HeaderContentLength, strconv.FormatInt(n, 10))
	}
	return h
}

// URL resolves the description against a service endpoint such as
// "https://account.blob.core.windows.net". Endpoints may carry a path prefix.
func (d *Description) URL(endpoint string) (*url.URL, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u := *base
	u.Path = base.Path + d.Path
	u.RawPath = ""
	u.RawQuery = d.Query.Encode()
	return &u, nil
}

// Range is a byte range with an inclusive end. End < 0 means open-ended.
type Range struct {
	Start int64
	End   int64
}

// NewRange returns the range [offset, offset+length). A length of 0 reads to the end.
func NewRange(offset, length int64) *Range {
	if length <= 0 {
		return &Range{Start: offset, End: -1}
	}
	return &Range{Start: offset, End: offset + length - 1}
}

// Validate checks the bounds.
func (r *Range) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("invalid range start %d", r.Start)
	}
	if r.End >= 0 && r.End < r.Start {
		return fmt.Errorf("invalid range %d-%d", r.Start, r.End)
	}
	return nil
}

// Length is the number of bytes in the range, -1 when open-ended.
func (r *Range) Length() int64 {
	if r.End < 0 {
		return -1
	}
	return r.End - r.Start + 1
}

// HeaderValue formats the range as "bytes=start-end".
func (r *Range) HeaderValue() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}
