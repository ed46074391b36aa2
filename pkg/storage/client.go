// Package storage is the client for the blob and filesystem services. It
// wires configuration, signing, the executor and the chunked transfer engine
// together.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/storagelite/storagelite/internal/auth"
	"github.com/storagelite/storagelite/internal/blob"
	"github.com/storagelite/storagelite/internal/config"
	"github.com/storagelite/storagelite/internal/dfs"
	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/metrics"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transfer"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
	"github.com/storagelite/storagelite/pkg/retry"
	"github.com/storagelite/storagelite/pkg/utils"
)

// Types callers need to name when using the client.
type (
	Operation[T any] = executor.Operation[T]
	Func[T any]      = executor.Func[T]
	Future[T any]    = executor.Future[T]
	Request          = request.Description
	Response         = transport.Response
	Void             = outcome.Void

	PutOptions            = blob.PutOptions
	BlobProperties        = blob.Properties
	ContainerProperties   = blob.ContainerProperties
	ListBlobsOptions      = blob.ListOptions
	ListBlobsResult       = blob.ListResult
	ListContainersOptions = blob.ListContainersOptions
	ListContainersResult  = blob.ContainerListResult
	CopyResult            = blob.CopyResult
	BlockList             = blob.BlockList
	PageRange             = blob.PageRange

	PathProperties   = dfs.PathProperties
	ListPathsOptions = dfs.ListOptions
	ListPathsResult  = dfs.ListResult

	Progress = transfer.Progress
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	signer         auth.Signer
	policy         retry.Policy
	httpClient     *http.Client
	tracerProvider trace.TracerProvider
	onProgress     func(Progress)
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSigner replaces the signer selected by the configured auth scheme.
func WithSigner(s auth.Signer) Option {
	return func(o *options) { o.signer = s }
}

// WithRetryPolicy replaces the exponential policy built from the configuration.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithHTTPClient sends requests through c instead of a pooled client built
// from the network configuration.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTracerProvider sets the provider used when tracing is enabled. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithProgress registers a callback invoked after every transferred chunk.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.onProgress = fn }
}

// Client runs operations against one account.
type Client struct {
	config     *config.Configuration
	exec       *executor.Executor
	transport  *transport.HTTPTransport
	metrics    *metrics.Collector
	logger     *slog.Logger
	closeLog   func() error
	tracker    *transfer.Tracker
	uploader   *transfer.Uploader
	downloader *transfer.Downloader
	exceptions bool
}

// NewClient validates cfg and builds a client from it.
func NewClient(cfg *config.Configuration, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeMissingConfig, "configuration is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	chunkSize, err := cfg.ChunkSizeBytes()
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:     cfg,
		exceptions: cfg.Client.ExceptionsEnabled,
		tracker:    transfer.NewTracker(),
		closeLog:   func() error { return nil },
	}

	c.logger = o.logger
	if c.logger == nil {
		file, err := cfg.LogFileOptions()
		if err != nil {
			return nil, err
		}
		logger, closeLog, err := utils.SetupLogging(cfg.Global.LogLevel, cfg.Global.LogFormat, file)
		if err != nil {
			return nil, err
		}
		c.logger, c.closeLog = logger, closeLog
	}

	if cfg.Monitoring.Metrics.Enabled {
		c.metrics, err = metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Namespace: cfg.Monitoring.Metrics.Namespace,
			Labels:    cfg.Monitoring.Metrics.CustomLabels,
		})
		if err != nil {
			_ = c.closeLog()
			return nil, err
		}
	}

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if cfg.Monitoring.Tracing.Enabled {
		tp = o.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
	}

	signer := o.signer
	if signer == nil {
		if signer, err = auth.FromConfig(context.Background(), cfg); err != nil {
			_ = c.closeLog()
			return nil, err
		}
	}

	policy := o.policy
	if policy == nil {
		policy = retry.New(cfg.RetryConfig())
	}

	if o.httpClient != nil {
		c.transport = transport.NewHTTPTransportWithClient(o.httpClient)
	} else {
		c.transport = transport.NewHTTPTransport(transport.Options{
			ConnectTimeout:        cfg.Network.Timeouts.Connect,
			ResponseHeaderTimeout: cfg.Network.Timeouts.ResponseHeader,
			IdleConnTimeout:       cfg.Network.Timeouts.Idle,
			MaxIdleConnsPerHost:   cfg.Network.MaxIdleConnsPerHost,
		})
	}

	c.exec, err = executor.New(executor.Options{
		MaxConcurrency: cfg.Client.MaxConcurrency,
		Signer:         signer,
		Policy:         policy,
		Endpoints: map[request.Service]string{
			request.ServiceBlob: cfg.BlobEndpointURL(),
			request.ServiceDFS:  cfg.DFSEndpointURL(),
		},
		Factory:        c.transport.NewHandle,
		Logger:         c.logger,
		Metrics:        c.metrics,
		TracerProvider: tp,
	})
	if err != nil {
		c.transport.Close()
		_ = c.closeLog()
		return nil, err
	}

	topts := transfer.Options{
		ChunkSize:      chunkSize,
		Concurrency:    cfg.Client.MaxConcurrency,
		Tracker:        c.tracker,
		Metrics:        c.metrics,
		Logger:         c.logger,
		TracerProvider: tp,
		OnProgress:     o.onProgress,
	}
	c.uploader = transfer.NewUploader(topts)
	c.downloader = transfer.NewDownloader(c.exec, topts)

	c.logger.Info("storage client ready",
		"account", cfg.Account.Name,
		"auth_scheme", cfg.Account.AuthScheme,
		"max_concurrency", cfg.Client.MaxConcurrency,
		"chunk_size", utils.FormatBytes(chunkSize))
	return c, nil
}

// Close stops the executor, failing queued operations, and releases
// connections. It is safe to call more than once.
func (c *Client) Close() error {
	err := c.exec.Close()
	c.transport.Close()
	if lerr := c.closeLog(); err == nil {
		err = lerr
	}
	c.closeLog = func() error { return nil }
	return err
}

// Submit queues op and returns immediately.
func Submit[T any](ctx context.Context, c *Client, op Operation[T]) *Future[T] {
	return executor.Submit(c.exec, ctx, op)
}

// Do runs op and waits for its outcome. With exceptions enabled a failure is
// also returned as the error.
func Do[T any](ctx context.Context, c *Client, op Operation[T]) (outcome.Outcome[T], error) {
	return result(c, executor.Do(c.exec, ctx, op))
}

func result[T any](c *Client, o outcome.Outcome[T]) (outcome.Outcome[T], error) {
	if !o.Success() && c.exceptions {
		return o, o.Err()
	}
	return o, nil
}

// exists maps a not-found failure to false.
func exists[T any](c *Client, o outcome.Outcome[T]) (outcome.Outcome[bool], error) {
	if o.Success() {
		return outcome.Success(true), nil
	}
	if errors.IsNotFound(o.Err()) {
		return outcome.Success(false), nil
	}
	return result(c, outcome.Failure[bool](o.Err()))
}

// Stats reports executor load.
func (c *Client) Stats() executor.Stats {
	return c.exec.Stats()
}

// Transfers returns the progress of uploads and downloads still running.
func (c *Client) Transfers() []Progress {
	return c.tracker.Active()
}

// MetricsHandler serves the client's Prometheus metrics. It is nil when
// metrics are disabled.
func (c *Client) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// Metrics returns per-operation counters, or nil when metrics are disabled.
func (c *Client) Metrics() map[string]metrics.OperationMetrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.GetMetrics()
}

func (c *Client) transferResult(err error) (outcome.Outcome[Void], error) {
	if err != nil {
		return result(c, outcome.FromError[Void](err))
	}
	return outcome.Success(Void{}), nil
}

// UploadBlob uploads size bytes from src as a block blob, staging one block per
// chunk and committing the block list once every block succeeded.
func (c *Client) UploadBlob(ctx context.Context, container, name string, src io.ReaderAt, size int64, opts PutOptions) (outcome.Outcome[Void], error) {
	return c.transferResult(c.uploader.Upload(ctx, &transfer.BlockStrategy{
		Exec:      c.exec,
		Container: container,
		Blob:      name,
		Options:   opts,
	}, src, size))
}

// DownloadBlob writes the blob range [offset, offset+size) to w. A size of 0
// reads to the end of the blob.
func (c *Client) DownloadBlob(ctx context.Context, container, name string, w io.Writer, offset, size int64) (outcome.Outcome[Void], error) {
	get := func(rng *request.Range, sink *request.Sink) (*request.Description, error) {
		return blob.GetBlobRequest(container, name, rng, sink)
	}
	return c.transferResult(c.downloader.Download(ctx, get, container+"/"+name, w, offset, size))
}

// UploadPageBlob creates a page blob of size bytes and writes src to it one
// page range per chunk. size and the configured chunk size must be multiples
// of 512.
func (c *Client) UploadPageBlob(ctx context.Context, container, name string, src io.ReaderAt, size int64, opts PutOptions) (outcome.Outcome[Void], error) {
	return c.transferResult(c.uploader.Upload(ctx, &transfer.PageStrategy{
		Exec:      c.exec,
		Container: container,
		Blob:      name,
		Options:   opts,
	}, src, size))
}

// UploadAppendBlob creates an append blob and appends size bytes from src to
// it, one chunk at a time.
func (c *Client) UploadAppendBlob(ctx context.Context, container, name string, src io.ReaderAt, size int64, opts PutOptions) (outcome.Outcome[Void], error) {
	return c.transferResult(c.uploader.Upload(ctx, &transfer.AppendBlobStrategy{
		Exec:      c.exec,
		Container: container,
		Blob:      name,
		Options:   opts,
	}, src, size))
}

// UploadFile creates a file and appends size bytes from src to it, then
// flushes.
func (c *Client) UploadFile(ctx context.Context, filesystem, path string, src io.ReaderAt, size int64, properties map[string]string) (outcome.Outcome[Void], error) {
	return c.transferResult(c.uploader.Upload(ctx, &transfer.AppendStrategy{
		Exec:       c.exec,
		Filesystem: filesystem,
		Path:       path,
		Properties: properties,
	}, src, size))
}

// DownloadFile writes the file range [offset, offset+size) to w. A size of 0
// reads to the end of the file.
func (c *Client) DownloadFile(ctx context.Context, filesystem, path string, w io.Writer, offset, size int64) (outcome.Outcome[Void], error) {
	get := func(rng *request.Range, sink *request.Sink) (*request.Description, error) {
		return dfs.ReadRequest(filesystem, path, rng, sink)
	}
	return c.transferResult(c.downloader.Download(ctx, get, filesystem+"/"+path, w, offset, size))
}
