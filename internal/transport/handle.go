// Package transport executes single HTTP exchanges for the executor.
//
// A Handle carries one exchange at a time: the executor configures it, calls
// Execute and resets it before handing it back to the Pool.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Handle is a reusable single-exchange HTTP client.
type Handle interface {
	SetMethod(method string)
	SetURL(u *url.URL)
	SetHeaders(h http.Header)
	// SetInputBuffer attaches an in-memory request body.
	SetInputBuffer(b []byte)
	// SetInputStream attaches a streamed request body; length is -1 when unknown.
	SetInputStream(r io.Reader, length int64)
	// SetOutputStream directs a successful response body into w instead of buffering it.
	SetOutputStream(w io.Writer)
	// Execute performs the exchange. A returned error means no usable response
	// arrived, or the response body could not be delivered.
	Execute(ctx context.Context) (*Response, error)
	ResponseHeader(name string) string
	Reset()
}

// Response is the result of one exchange.
type Response struct {
	Status int
	Header http.Header
	// Body holds the response body when no output stream was set, and always
	// for non-2xx responses.
	Body []byte
	// Written is the number of bytes delivered to the output stream.
	Written int64
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// SinkError reports a failure writing the response body to the output stream.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("write response body: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Factory creates handles for a Pool.
type Factory func() Handle
