// Package executor runs storage operations asynchronously.
//
// Submit turns an Operation into a Future immediately. A fixed set of workers
// drains an unbounded FIFO queue; each worker borrows a transport handle, signs
// and performs one exchange, and either resolves the Future or hands the
// operation back to the queue after the retry policy's wait. Workers never
// sleep: backoff is a timer that re-enqueues the operation.
package executor

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storagelite/storagelite/internal/auth"
	"github.com/storagelite/storagelite/internal/metrics"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
	"github.com/storagelite/storagelite/pkg/retry"
)

const tracerName = "github.com/storagelite/storagelite/internal/executor"

// DefaultMaxConcurrency is used when Options.MaxConcurrency is not set.
const DefaultMaxConcurrency = 8

// Operation describes one logical request and how to read its success response.
type Operation[T any] interface {
	Build() (*request.Description, error)
	Parse(resp *transport.Response) (T, error)
}

// Func adapts a pair of functions to Operation.
type Func[T any] struct {
	BuildFunc func() (*request.Description, error)
	ParseFunc func(resp *transport.Response) (T, error)
}

func (f Func[T]) Build() (*request.Description, error) { return f.BuildFunc() }

func (f Func[T]) Parse(resp *transport.Response) (T, error) {
	if f.ParseFunc == nil {
		var zero T
		return zero, nil
	}
	return f.ParseFunc(resp)
}

// Describe wraps a prepared description.
func Describe[T any](d *request.Description, parse func(*transport.Response) (T, error)) Operation[T] {
	return Func[T]{
		BuildFunc: func() (*request.Description, error) { return d, nil },
		ParseFunc: parse,
	}
}

// Options configures an Executor.
type Options struct {
	MaxConcurrency int
	Signer         auth.Signer
	Policy         retry.Policy
	// Endpoints maps each service to its base URL.
	Endpoints map[request.Service]string
	// Pool supplies handles. When nil a pool of MaxConcurrency handles is built
	// from Factory.
	Pool    *transport.Pool
	Factory transport.Factory

	Logger         *slog.Logger
	Metrics        *metrics.Collector
	TracerProvider trace.TracerProvider
	// Now is the signing clock.
	Now func() time.Time
}

// Stats is a snapshot of executor load.
type Stats struct {
	Workers int
	Queued  int
	Live    int
	Pool    transport.PoolStats
}

// task is the type-erased view of a submitted operation.
type task interface {
	run()
	abort(err *errors.StorageError)
}

// Executor owns the workers, the handle pool and the shared retry policy.
type Executor struct {
	workers   int
	signer    auth.Signer
	policy    retry.Policy
	endpoints map[request.Service]string
	pool      *transport.Pool
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	now       func() time.Time

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	live   map[task]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New validates the options and starts the workers.
func New(opts Options) (*Executor, error) {
	if opts.Signer == nil {
		return nil, errors.NewConfigError(errors.ErrCodeCredentialsMissing, "executor requires a signer").
			WithComponent("executor")
	}
	if len(opts.Endpoints) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeMissingConfig, "executor requires at least one endpoint").
			WithComponent("executor")
	}
	if opts.MaxConcurrency < 0 {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "max concurrency must be positive, got %d", opts.MaxConcurrency).
			WithComponent("executor")
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}

	pool := opts.Pool
	if pool == nil {
		if opts.Factory == nil {
			return nil, errors.NewConfigError(errors.ErrCodeMissingConfig, "executor requires a handle pool or factory").
				WithComponent("executor")
		}
		var err error
		pool, err = transport.NewPool(opts.MaxConcurrency, opts.Factory)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "create handle pool: %v", err).
				WithComponent("executor")
		}
	}

	e := &Executor{
		workers:   opts.MaxConcurrency,
		signer:    opts.Signer,
		policy:    opts.Policy,
		endpoints: opts.Endpoints,
		pool:      pool,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		live:      make(map[task]struct{}),
	}
	if e.policy == nil {
		e.policy = retry.New(retry.DefaultConfig())
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "executor")
	if e.now == nil {
		e.now = time.Now
	}
	if opts.TracerProvider != nil {
		e.tracer = opts.TracerProvider.Tracer(tracerName)
	} else {
		e.tracer = otel.Tracer(tracerName)
	}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.logger.Debug("executor started", "workers", e.workers, "pool_size", pool.MaxSize())
	return e, nil
}

// Submit schedules op and returns without waiting for any network activity.
// Errors raised while building the request resolve the Future immediately.
func Submit[T any](e *Executor, ctx context.Context, op Operation[T]) *Future[T] {
	f := newFuture[T]()

	desc, err := op.Build()
	if err == nil {
		err = desc.Validate()
	}
	if err != nil {
		se, ok := errors.AsStorageError(err)
		if !ok {
			se = errors.NewConfigError(errors.ErrCodeInvalidConfig, "%v", err).WithCause(err)
		}
		f.resolve(outcome.Failure[T](se.WithComponent("executor")))
		return f
	}

	endpoint, ok := e.endpoints[desc.Service]
	if !ok || endpoint == "" {
		f.resolve(outcome.Failure[T](errors.NewConfigError(errors.ErrCodeMissingConfig,
			"no endpoint configured for service %q", desc.Service).
			WithComponent("executor").WithOperation(desc.Operation)))
		return f
	}

	jobCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	requestID := uuid.NewString()
	spanCtx, span := e.tracer.Start(jobCtx, "storagelite."+desc.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storagelite.operation", desc.Operation),
			attribute.String("storagelite.service", string(desc.Service)),
			attribute.String("http.request.method", desc.Method),
			attribute.String("storagelite.client_request_id", requestID),
		))

	j := &job[T]{
		e:         e,
		op:        op,
		desc:      desc,
		endpoint:  endpoint,
		future:    f,
		ctx:       spanCtx,
		cancel:    cancel,
		span:      span,
		started:   time.Now(),
		requestID: requestID,
		logger:    e.logger.With("operation", desc.Operation, "client_request_id", requestID),
	}

	if !e.register(j) {
		j.finish(outcome.Failure[T](errors.NewError(errors.ErrCodeExecutorClosed, "executor is closed").
			WithOperation(desc.Operation)))
		return f
	}
	j.setStop(context.AfterFunc(jobCtx, func() {
		j.abort(errors.NewCanceledError(context.Cause(jobCtx)))
	}))
	e.enqueue(j)
	return f
}

// Do submits op and waits for its outcome.
func Do[T any](e *Executor, ctx context.Context, op Operation[T]) outcome.Outcome[T] {
	return Submit(e, ctx, op).Wait()
}

// Close rejects new work, cancels every pending and in-flight operation and
// waits for the workers to exit. It is safe to call more than once.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	live := make([]task, 0, len(e.live))
	for t := range e.live {
		live = append(live, t)
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, t := range live {
		t.abort(errors.NewError(errors.ErrCodeExecutorClosed, "executor closed"))
	}
	e.wg.Wait()
	e.metrics.SetQueueDepth(0)

	e.logger.Debug("executor closed", "aborted", len(live))
	return e.pool.Close()
}

// Stats returns current load.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Workers: e.workers,
		Queued:  len(e.queue),
		Live:    len(e.live),
		Pool:    e.pool.Stats(),
	}
}

func (e *Executor) register(t task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.live[t] = struct{}{}
	return true
}

func (e *Executor) unregister(t task) {
	e.mu.Lock()
	delete(e.live, t)
	e.mu.Unlock()
}

func (e *Executor) enqueue(t task) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		t.abort(errors.NewError(errors.ErrCodeExecutorClosed, "executor closed"))
		return
	}
	e.queue = append(e.queue, t)
	depth := len(e.queue)
	e.cond.Signal()
	e.mu.Unlock()
	e.metrics.SetQueueDepth(depth)
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		depth := len(e.queue)
		e.mu.Unlock()

		e.metrics.SetQueueDepth(depth)
		t.run()
	}
}

// job is one submitted operation and its attempt state.
type job[T any] struct {
	e         *Executor
	op        Operation[T]
	desc      *request.Description
	endpoint  string
	future    *Future[T]
	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	started   time.Time
	requestID string
	logger    *slog.Logger

	// attempt is only touched by the worker currently running the job.
	attempt int

	mu    sync.Mutex
	timer *time.Timer
	stop  func() bool
}

func (j *job[T]) setStop(stop func() bool) {
	j.mu.Lock()
	j.stop = stop
	j.mu.Unlock()
}

func (j *job[T]) done() bool {
	_, ok := j.future.Outcome()
	return ok
}

func (j *job[T]) abort(err *errors.StorageError) {
	j.mu.Lock()
	if j.timer != nil {
		j.timer.Stop()
	}
	j.mu.Unlock()
	j.finish(outcome.Failure[T](err.WithOperation(j.desc.Operation)))
}

func (j *job[T]) run() {
	if j.done() {
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.finish(outcome.Failure[T](errors.NewCanceledError(context.Cause(j.ctx)).WithOperation(j.desc.Operation)))
		return
	}

	attempt := j.attempt
	j.future.attempts.Add(1)

	value, status, se := j.exchange(attempt)
	if se == nil {
		j.finish(outcome.Success(value))
		return
	}
	if se.Operation == "" {
		se.WithOperation(j.desc.Operation)
	}
	j.afterFailure(attempt, status, se)
}

// exchange performs one attempt. status is 0 when no response arrived.
func (j *job[T]) exchange(attempt int) (value T, status int, se *errors.StorageError) {
	e := j.e

	header := j.desc.AttemptHeader()
	header.Set(request.HeaderClientRequest, j.requestID)
	u, err := j.desc.URL(j.endpoint)
	if err != nil {
		return value, 0, errors.NewConfigError(errors.ErrCodeInvalidConfig, "build url: %v", err).WithCause(err)
	}

	h, err := e.pool.Acquire(j.ctx)
	if err != nil {
		if j.ctx.Err() != nil {
			return value, 0, errors.NewCanceledError(context.Cause(j.ctx))
		}
		return value, 0, errors.NewError(errors.ErrCodeExecutorClosed, "handle pool closed").WithCause(err)
	}
	e.metrics.SetHandlesInUse(e.pool.InUse())
	defer func() {
		e.pool.Release(h)
		e.metrics.SetHandlesInUse(e.pool.InUse())
	}()
	// Signed under the handle so x-ms-date is taken just before the exchange.
	signed := &auth.Request{Method: j.desc.Method, URL: u, Header: header}
	if err := e.signer.Sign(j.ctx, signed, e.now()); err != nil {
		if s, ok := errors.AsStorageError(err); ok {
			return value, 0, s
		}
		return value, 0, errors.NewConfigError(errors.ErrCodeCredentialsInvalid, "sign request: %v", err).WithCause(err)
	}

	h.SetMethod(j.desc.Method)
	h.SetURL(u)
	h.SetHeaders(signed.Header)
	if b := j.desc.Body; b != nil {
		if b.Buffered() {
			h.SetInputBuffer(b.Bytes())
		} else {
			h.SetInputStream(b.Reader(), b.Len())
		}
	}
	if j.desc.Sink != nil {
		h.SetOutputStream(j.desc.Sink)
	}

	j.logger.Debug("sending request", "attempt", attempt, "method", j.desc.Method, "url", u.Redacted())
	resp, err := h.Execute(j.ctx)
	if resp != nil {
		status = resp.Status
	}
	e.metrics.RecordAttempt(j.desc.Operation, status)
	j.span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.Int("http.response.status_code", status),
	))

	if err != nil {
		return value, status, j.classifyTransport(err)
	}
	if !resp.OK() {
		return value, status, transport.ErrorFromResponse(resp)
	}

	value, err = j.op.Parse(resp)
	if err != nil {
		s, ok := errors.AsStorageError(err)
		if !ok {
			s = errors.NewError(errors.ErrCodeResponseInvalid, fmt.Sprintf("parse response: %v", err)).WithCause(err)
		}
		s.Status = status
		if s.RequestID == "" {
			s.WithRequestID(resp.Header.Get(request.HeaderRequestID))
		}
		return value, status, s
	}
	return value, status, nil
}

func (j *job[T]) classifyTransport(err error) *errors.StorageError {
	if j.ctx.Err() != nil {
		return errors.NewCanceledError(context.Cause(j.ctx))
	}
	var sinkErr *transport.SinkError
	if stderr.As(err, &sinkErr) {
		return errors.NewStreamError(errors.ErrCodeStreamWrite, "write response body", sinkErr.Err)
	}
	retryable, _ := retryablehttp.DefaultRetryPolicy(context.Background(), nil, err)
	return errors.NewTransportError(err, retryable)
}

func (j *job[T]) afterFailure(attempt, status int, se *errors.StorageError) {
	if j.done() {
		return
	}

	d := j.e.policy.Evaluate(retry.History{Attempt: attempt, LastStatus: status, LastErr: se})
	if !d.ShouldRetry {
		j.finish(outcome.Failure[T](se))
		return
	}

	if b := j.desc.Body; b != nil {
		if !b.Rewindable() {
			j.finish(outcome.Failure[T](errors.NewStreamError(errors.ErrCodeStreamNotRewindable,
				"request body cannot be replayed for retry", se).WithOperation(j.desc.Operation)))
			return
		}
		if err := b.Rewind(); err != nil {
			j.finish(outcome.Failure[T](errors.NewStreamError(errors.ErrCodeStreamRead,
				"rewind request body", err).WithOperation(j.desc.Operation)))
			return
		}
	}
	if s := j.desc.Sink; s != nil {
		if err := s.Rewind(); err != nil {
			j.finish(outcome.Failure[T](errors.NewStreamError(errors.ErrCodeStreamNotRewindable,
				"response sink cannot be reset for retry", err).WithOperation(j.desc.Operation)))
			return
		}
	}

	j.logger.Warn("retrying request",
		"attempt", attempt,
		"status", status,
		"wait", d.Interval,
		"error", se.Error())
	j.e.metrics.RecordRetry(j.desc.Operation, d.Interval)
	j.span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("attempt", attempt+1),
		attribute.String("wait", d.Interval.String()),
	))

	j.attempt = attempt + 1
	if d.Interval <= 0 {
		j.e.enqueue(j)
		return
	}
	j.mu.Lock()
	j.timer = time.AfterFunc(d.Interval, func() { j.e.enqueue(j) })
	j.mu.Unlock()
}

// finish resolves the future once and releases everything the job holds.
func (j *job[T]) finish(o outcome.Outcome[T]) {
	if !j.future.resolve(o) {
		return
	}

	j.mu.Lock()
	stop := j.stop
	j.mu.Unlock()
	if stop != nil {
		stop()
	}
	j.cancel()
	j.e.unregister(j)

	attempts := j.future.Attempts()
	duration := time.Since(j.started)

	var err error
	if se := o.Err(); se != nil {
		err = se
	}
	j.e.metrics.RecordOperation(j.desc.Operation, duration, attempts, err)

	j.span.SetAttributes(attribute.Int("storagelite.attempts", attempts))
	if err != nil {
		j.span.RecordError(err)
		j.span.SetStatus(codes.Error, err.Error())
		j.logger.Warn("operation failed",
			"attempts", attempts,
			"duration", duration,
			"error", err.Error())
	} else {
		j.span.SetStatus(codes.Ok, "")
		j.logger.Debug("operation completed", "attempts", attempts, "duration", duration)
	}
	j.span.End()
}
