package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/metrics"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
)

// RangeRequest describes a ranged read of one object into sink.
type RangeRequest func(rng *request.Range, sink *request.Sink) (*request.Description, error)

// ChunkInfo is what a ranged read reports about the object.
type ChunkInfo struct {
	// Size is the number of body bytes received.
	Size int64
	// Total is the object size from Content-Range, -1 when absent.
	Total        int64
	ETag         string
	LastModified time.Time
}

// TotalFromContentRange returns the number after the '/' of a Content-Range
// header such as "bytes 0-1023/4096", or -1.
func TotalFromContentRange(v string) int64 {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func parseChunkInfo(resp *transport.Response) (ChunkInfo, error) {
	info := ChunkInfo{
		Size:  resp.Written,
		Total: TotalFromContentRange(resp.Header.Get(request.HeaderContentRange)),
		ETag:  resp.Header.Get(request.HeaderETag),
	}
	if t, err := http.ParseTime(resp.Header.Get(request.HeaderLastModified)); err == nil {
		info.LastModified = t
	}
	return info, nil
}

// Downloader reads an object with concurrent byte-range requests.
type Downloader struct {
	exec   *executor.Executor
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDownloader creates a downloader submitting through exec.
func NewDownloader(exec *executor.Executor, opts Options) *Downloader {
	opts.defaults()
	return &Downloader{
		exec:   exec,
		opts:   opts,
		logger: opts.Logger.With("component", "downloader"),
		tracer: opts.tracer(),
	}
}

// Download writes the object range [offset, offset+size) to w. A size of 0
// reads to the end of the object; the first response supplies the total size.
//
// When w implements io.WriterAt, chunks are written in place relative to w's
// origin as they arrive. Otherwise completed chunks are held back and written
// strictly in offset order.
func (d *Downloader) Download(ctx context.Context, get RangeRequest, target string, w io.Writer, offset, size int64) (err error) {
	if offset < 0 || size < 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid download range offset=%d size=%d", offset, size)
	}

	ctx, span := d.tracer.Start(ctx, "storagelite.Download", trace.WithAttributes(
		attribute.String("storagelite.target", target),
		attribute.Int64("storagelite.offset", offset),
		attribute.Int64("storagelite.size", size),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	out := newChunkWriter(w, offset, d.opts)
	defer out.release()

	var plan Plan
	var st *State
	if size > 0 {
		if plan, err = NewPlan(size, d.opts.ChunkSize); err != nil {
			return err
		}
		plan = plan.Shift(offset, 0)
		st = NewState(Download, target, plan)
	} else {
		first := Chunk{Index: 0, Offset: offset, Length: d.opts.ChunkSize}
		st = NewState(Download, target, Plan{ChunkSize: d.opts.ChunkSize})
		st.AddChunks(0, 1)

		info, ferr := d.fetch(ctx, get, out, first, true)
		if ferr != nil {
			if isEmptyRange(ferr) && offset == 0 {
				st.MarkCommitted()
				return nil
			}
			st.MarkFailed()
			return ferr
		}
		first.Length = info.Size
		st.MarkChunkCompleted(first, "")

		rest := int64(0)
		if info.Total >= 0 {
			rest = info.Total - offset - info.Size
		}
		if rest > 0 {
			if plan, err = NewPlan(rest, d.opts.ChunkSize); err != nil {
				return err
			}
			plan = plan.Shift(offset+info.Size, 1)
			st.AddChunks(info.Total-offset, plan.Len())
		} else {
			st.AddChunks(info.Size, 0)
		}
	}
	if d.opts.Tracker != nil {
		d.opts.Tracker.Track(st)
	}

	err = Execute(ctx, plan, func(ctx context.Context, c Chunk) error {
		if _, ferr := d.fetch(ctx, get, out, c, false); ferr != nil {
			st.MarkChunkFailed(c, ferr)
			return ferr
		}
		st.MarkChunkCompleted(c, "")
		if d.opts.OnProgress != nil {
			d.opts.OnProgress(st.Snapshot())
		}
		return nil
	}, d.opts.Concurrency)
	if err == nil {
		err = out.finish()
	}
	if err != nil {
		st.MarkFailed()
		d.logger.Warn("download failed", "target", target, "error", err)
		return err
	}

	st.MarkCommitted()
	d.logger.Debug("download complete", "target", target, "bytes", st.Snapshot().BytesTransferred)
	return nil
}

// fetch reads one chunk. An open chunk accepts a short body and reports how
// much arrived; other chunks must be filled exactly.
func (d *Downloader) fetch(ctx context.Context, get RangeRequest, out *chunkWriter, c Chunk, open bool) (ChunkInfo, error) {
	sink, deliver := out.open(c)

	op := executor.Func[ChunkInfo]{
		BuildFunc: func() (*request.Description, error) {
			return get(request.NewRange(c.Offset, c.Length), sink)
		},
		ParseFunc: parseChunkInfo,
	}
	o := executor.Do(d.exec, ctx, op)
	d.opts.Metrics.RecordChunk(metrics.DirectionDownload, sink.Written(), o.Success())
	if !o.Success() {
		out.discard(c)
		return ChunkInfo{}, o.Err()
	}

	info := o.Value()
	if !open && info.Size != c.Length {
		out.discard(c)
		return info, errors.NewError(errors.ErrCodeResponseInvalid,
			fmt.Sprintf("range at %d returned %d bytes, want %d", c.Offset, info.Size, c.Length)).
			WithOperation("GetRange")
	}
	if err := deliver(); err != nil {
		return info, err
	}
	return info, nil
}

// isEmptyRange reports the service's answer to a range read of an empty object.
func isEmptyRange(err error) bool {
	se, ok := errors.AsStorageError(err)
	return ok && se.Status == http.StatusRequestedRangeNotSatisfiable
}

// chunkWriter routes chunk bodies to the destination.
type chunkWriter struct {
	at   io.WriterAt
	w    io.Writer
	base int64
	opts Options

	mu      sync.Mutex
	next    int
	pending map[int][]byte
	bufs    map[int]*chunkBuffer
	err     error
}

func newChunkWriter(w io.Writer, base int64, opts Options) *chunkWriter {
	cw := &chunkWriter{w: w, base: base, opts: opts}
	if at, ok := w.(io.WriterAt); ok {
		cw.at = at
	} else {
		cw.pending = make(map[int][]byte)
		cw.bufs = make(map[int]*chunkBuffer)
	}
	return cw
}

// open returns the sink for chunk c and the function that hands the received
// bytes on once the chunk succeeded.
func (cw *chunkWriter) open(c Chunk) (*request.Sink, func() error) {
	if cw.at != nil {
		return request.NewSink(io.NewOffsetWriter(cw.at, c.Offset-cw.base)), func() error { return nil }
	}

	buf := &chunkBuffer{data: cw.opts.Buffers.Get(int(c.Length))[:0]}
	cw.mu.Lock()
	cw.bufs[c.Index] = buf
	cw.mu.Unlock()

	return request.NewSink(buf), func() error { return cw.deliver(c.Index, buf.data) }
}

// deliver queues a completed chunk and writes every chunk that is now in order.
func (cw *chunkWriter) deliver(index int, data []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.err != nil {
		return cw.err
	}
	cw.pending[index] = data
	for {
		chunk, ok := cw.pending[cw.next]
		if !ok {
			return nil
		}
		if _, err := cw.w.Write(chunk); err != nil {
			cw.err = errors.NewStreamError(errors.ErrCodeStreamWrite, "write download destination", err)
			return cw.err
		}
		delete(cw.pending, cw.next)
		if b, ok := cw.bufs[cw.next]; ok {
			cw.opts.Buffers.Put(b.data[:0])
			delete(cw.bufs, cw.next)
		}
		cw.next++
	}
}

// discard forgets a failed chunk. Its buffer is not reused since an aborted
// exchange may still write to it.
func (cw *chunkWriter) discard(c Chunk) {
	if cw.at != nil {
		return
	}
	cw.mu.Lock()
	delete(cw.bufs, c.Index)
	cw.mu.Unlock()
}

// finish checks every chunk reached the destination.
func (cw *chunkWriter) finish() error {
	if cw.at != nil {
		return nil
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.err != nil {
		return cw.err
	}
	if len(cw.pending) > 0 {
		return errors.NewError(errors.ErrCodeInternalError,
			fmt.Sprintf("%d chunks were never written in order", len(cw.pending)))
	}
	return nil
}

func (cw *chunkWriter) release() {
	if cw.at != nil {
		return
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.pending = nil
	cw.bufs = nil
}

// chunkBuffer is an in-memory sink backed by a pooled slice.
type chunkBuffer struct {
	data []byte
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// Reset discards what a failed attempt wrote.
func (b *chunkBuffer) Reset() {
	b.data = b.data[:0]
}
