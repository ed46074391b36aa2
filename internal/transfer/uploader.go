package transfer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storagelite/storagelite/internal/blob"
	"github.com/storagelite/storagelite/internal/buffer"
	"github.com/storagelite/storagelite/internal/dfs"
	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/metrics"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/pkg/errors"
)

const tracerName = "github.com/storagelite/storagelite/internal/transfer"

// DefaultChunkSize is used when Options.ChunkSize is not set.
const DefaultChunkSize int64 = 4 << 20

// Strategy is how an upload stages chunks and finalizes the object.
type Strategy interface {
	// Name identifies the target in logs.
	Name() string
	// Begin runs once before any chunk.
	Begin(ctx context.Context, plan Plan) error
	// Stage uploads one chunk and returns the id to commit it under.
	Stage(ctx context.Context, c Chunk, data []byte) (string, error)
	// Commit finalizes the object from the completed chunks.
	Commit(ctx context.Context, st *State) error
}

// sequential is implemented by strategies whose chunks must be staged one at a
// time in offset order.
type sequential interface {
	Sequential() bool
}

// Options configures uploads and downloads.
type Options struct {
	ChunkSize   int64
	Concurrency int
	Buffers     *buffer.BytePool
	Tracker     *Tracker
	Metrics     *metrics.Collector
	Logger      *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// OnProgress, when set, is called after every completed chunk.
	OnProgress func(Progress)
}

func (o *Options) defaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Buffers == nil {
		o.Buffers = buffer.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *Options) tracer() trace.Tracer {
	if o.TracerProvider != nil {
		return o.TracerProvider.Tracer(tracerName)
	}
	return otel.Tracer(tracerName)
}

// Uploader uploads from an io.ReaderAt in chunks.
type Uploader struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewUploader creates an uploader.
func NewUploader(opts Options) *Uploader {
	opts.defaults()
	return &Uploader{
		opts:   opts,
		logger: opts.Logger.With("component", "uploader"),
		tracer: opts.tracer(),
	}
}

// Upload reads size bytes from src and uploads them with s. The object is
// committed only after every chunk succeeded.
func (u *Uploader) Upload(ctx context.Context, s Strategy, src io.ReaderAt, size int64) (err error) {
	plan, err := NewPlan(size, u.opts.ChunkSize)
	if err != nil {
		return err
	}

	ctx, span := u.tracer.Start(ctx, "storagelite.Upload", trace.WithAttributes(
		attribute.String("storagelite.target", s.Name()),
		attribute.Int64("storagelite.size", size),
		attribute.Int("storagelite.chunks", plan.Len()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	st := NewState(Upload, s.Name(), plan)
	if u.opts.Tracker != nil {
		u.opts.Tracker.Track(st)
	}
	logger := u.logger.With("target", s.Name(), "transfer_id", st.ID)
	concurrency := u.opts.Concurrency
	if seq, ok := s.(sequential); ok && seq.Sequential() {
		concurrency = 1
	}
	start := time.Now()

	if err := s.Begin(ctx, plan); err != nil {
		st.MarkFailed()
		return err
	}

	err = Execute(ctx, plan, func(ctx context.Context, c Chunk) error {
		buf := u.opts.Buffers.Get(int(c.Length))
		n, rerr := src.ReadAt(buf, c.Offset)
		if int64(n) < c.Length {
			if rerr == nil {
				rerr = io.ErrUnexpectedEOF
			}
			u.opts.Buffers.Put(buf)
			st.MarkChunkFailed(c, rerr)
			return errors.NewStreamError(errors.ErrCodeStreamRead, "read upload source", rerr).
				WithDetail("offset", c.Offset)
		}

		id, serr := s.Stage(ctx, c, buf)
		u.opts.Metrics.RecordChunk(metrics.DirectionUpload, c.Length, serr == nil)
		if serr != nil {
			// the buffer may still be referenced by an aborted exchange
			st.MarkChunkFailed(c, serr)
			return serr
		}
		u.opts.Buffers.Put(buf)

		st.MarkChunkCompleted(c, id)
		if u.opts.OnProgress != nil {
			u.opts.OnProgress(st.Snapshot())
		}
		return nil
	}, concurrency)
	if err != nil {
		st.MarkFailed()
		logger.Warn("upload failed", "error", err, "completed_chunks", st.Snapshot().CompletedChunks)
		return err
	}

	if err := s.Commit(ctx, st); err != nil {
		st.MarkFailed()
		logger.Warn("commit failed", "error", err)
		return err
	}
	st.MarkCommitted()
	if u.opts.OnProgress != nil {
		u.opts.OnProgress(st.Snapshot())
	}

	logger.Debug("upload committed", "size", size, "chunks", plan.Len(), "duration", time.Since(start))
	return nil
}

// wait submits op and turns its outcome into an error.
func wait[T any](ctx context.Context, e *executor.Executor, op executor.Operation[T]) (T, error) {
	o := executor.Do(e, ctx, op)
	if !o.Success() {
		var zero T
		return zero, o.Err()
	}
	return o.Value(), nil
}

// BlockStrategy uploads a block blob: every chunk is staged as a block and the
// block list is committed at the end.
type BlockStrategy struct {
	Exec      *executor.Executor
	Container string
	Blob      string
	Options   blob.PutOptions
}

func (b *BlockStrategy) Name() string { return b.Container + "/" + b.Blob }

func (b *BlockStrategy) Begin(context.Context, Plan) error { return nil }

func (b *BlockStrategy) Stage(ctx context.Context, c Chunk, data []byte) (string, error) {
	id := blob.BlockID(c.Index)
	_, err := wait(ctx, b.Exec, blob.PutBlock(b.Container, b.Blob, id, request.BytesBody(data)))
	return id, err
}

func (b *BlockStrategy) Commit(ctx context.Context, st *State) error {
	_, err := wait(ctx, b.Exec, blob.PutBlockList(b.Container, b.Blob, st.CompletedIDs(), b.Options))
	return err
}

// AppendStrategy uploads a filesystem file: the file is created, every chunk
// is appended at its offset and a flush at the total size commits it.
type AppendStrategy struct {
	Exec       *executor.Executor
	Filesystem string
	Path       string
	Properties map[string]string
}

func (a *AppendStrategy) Name() string { return a.Filesystem + "/" + a.Path }

func (a *AppendStrategy) Begin(ctx context.Context, _ Plan) error {
	_, err := wait(ctx, a.Exec, dfs.CreatePath(a.Filesystem, a.Path, dfs.ResourceFile, a.Properties))
	return err
}

func (a *AppendStrategy) Stage(ctx context.Context, c Chunk, data []byte) (string, error) {
	_, err := wait(ctx, a.Exec, dfs.Append(a.Filesystem, a.Path, c.Offset, request.BytesBody(data)))
	return "", err
}

func (a *AppendStrategy) Commit(ctx context.Context, st *State) error {
	_, err := wait(ctx, a.Exec, dfs.Flush(a.Filesystem, a.Path, st.Snapshot().TotalSize))
	return err
}

// PageStrategy uploads a page blob: the blob is created at its full size and
// every chunk is written as a page range. Size and chunk size must be whole
// pages. Written pages are visible before the upload finishes.
type PageStrategy struct {
	Exec      *executor.Executor
	Container string
	Blob      string
	Options   blob.PutOptions
}

func (p *PageStrategy) Name() string { return p.Container + "/" + p.Blob }

func (p *PageStrategy) Begin(ctx context.Context, plan Plan) error {
	if plan.Total%blob.PageSize != 0 || plan.ChunkSize%blob.PageSize != 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"page blob size %d and chunk size %d must be multiples of %d bytes", plan.Total, plan.ChunkSize, blob.PageSize)
	}
	_, err := wait(ctx, p.Exec, blob.CreatePageBlob(p.Container, p.Blob, plan.Total, p.Options))
	return err
}

func (p *PageStrategy) Stage(ctx context.Context, c Chunk, data []byte) (string, error) {
	_, err := wait(ctx, p.Exec, blob.PutPage(p.Container, p.Blob, c.Offset, request.BytesBody(data)))
	return "", err
}

func (p *PageStrategy) Commit(context.Context, *State) error { return nil }

// AppendBlobStrategy uploads an append blob: the blob is created empty and
// chunks are appended one at a time. Each append is conditional on the blob
// length, so a replayed append fails instead of duplicating data.
type AppendBlobStrategy struct {
	Exec      *executor.Executor
	Container string
	Blob      string
	Options   blob.PutOptions
}

func (a *AppendBlobStrategy) Name() string { return a.Container + "/" + a.Blob }

func (a *AppendBlobStrategy) Sequential() bool { return true }

func (a *AppendBlobStrategy) Begin(ctx context.Context, _ Plan) error {
	_, err := wait(ctx, a.Exec, blob.CreateAppendBlob(a.Container, a.Blob, a.Options))
	return err
}

func (a *AppendBlobStrategy) Stage(ctx context.Context, c Chunk, data []byte) (string, error) {
	_, err := wait(ctx, a.Exec, blob.AppendBlock(a.Container, a.Blob, request.BytesBody(data), c.Offset))
	return "", err
}

func (a *AppendBlobStrategy) Commit(context.Context, *State) error { return nil }
