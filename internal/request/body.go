package request

import (
	"bytes"
	"fmt"
	"io"
)

// Body is a request body source: an in-memory buffer or a stream.
//
// Buffers can always be resent. Streams can be resent only when they implement
// io.Seeker; the position at construction is where every attempt starts.
type Body struct {
	data   []byte
	stream io.Reader
	length int64
	start  int64
	seeker io.Seeker
}

// BytesBody wraps an in-memory buffer.
func BytesBody(b []byte) *Body {
	return &Body{data: b, length: int64(len(b))}
}

// StreamBody wraps a stream. length is -1 when unknown.
func StreamBody(r io.Reader, length int64) *Body {
	b := &Body{stream: r, length: length}
	if s, ok := r.(io.Seeker); ok {
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			b.seeker = s
			b.start = pos
		}
	}
	return b
}

// Len is the number of bytes to send, -1 when unknown.
func (b *Body) Len() int64 {
	return b.length
}

// Buffered reports whether the body is an in-memory buffer.
func (b *Body) Buffered() bool {
	return b.stream == nil
}

// Bytes returns the buffer of a buffered body.
func (b *Body) Bytes() []byte {
	return b.data
}

// Rewindable reports whether the body can be sent again after a failed attempt.
func (b *Body) Rewindable() bool {
	return b.stream == nil || b.seeker != nil
}

// Rewind positions a stream body back at its starting offset.
func (b *Body) Rewind() error {
	if b.stream == nil {
		return nil
	}
	if b.seeker == nil {
		return fmt.Errorf("body stream is not seekable")
	}
	if _, err := b.seeker.Seek(b.start, io.SeekStart); err != nil {
		return fmt.Errorf("rewind body stream: %w", err)
	}
	return nil
}

// Reader returns a reader over the body for one attempt. Stream bodies of known
// length are limited to that length.
func (b *Body) Reader() io.Reader {
	if b.stream == nil {
		return bytes.NewReader(b.data)
	}
	if b.length >= 0 {
		return io.LimitReader(b.stream, b.length)
	}
	return b.stream
}

type resetter interface {
	Reset()
}

// Sink is where a streamed response body is written.
//
// Before a retry the sink is rewound: writers implementing io.Seeker are moved
// back to their starting position, writers with a Reset method (bytes.Buffer)
// are reset. Other writers cannot be rewound once written to.
type Sink struct {
	w       io.Writer
	start   int64
	seeker  io.Seeker
	written int64
}

// NewSink wraps w.
func NewSink(w io.Writer) *Sink {
	s := &Sink{w: w}
	if sk, ok := w.(io.Seeker); ok {
		if pos, err := sk.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = sk
			s.start = pos
		}
	}
	return s
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Written is the number of bytes written since the last rewind.
func (s *Sink) Written() int64 {
	return s.written
}

// Rewind discards what the previous attempt wrote.
func (s *Sink) Rewind() error {
	if s.written == 0 {
		return nil
	}
	switch {
	case s.seeker != nil:
		if _, err := s.seeker.Seek(s.start, io.SeekStart); err != nil {
			return fmt.Errorf("rewind sink: %w", err)
		}
	default:
		r, ok := s.w.(resetter)
		if !ok {
			return fmt.Errorf("sink has %d bytes written and cannot be rewound", s.written)
		}
		r.Reset()
	}
	s.written = 0
	return nil
}
