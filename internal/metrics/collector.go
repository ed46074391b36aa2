package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storagelite/storagelite/pkg/errors"
)

// Collector records executor and transfer metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	attemptCounter    *prometheus.CounterVec
	retryCounter      *prometheus.CounterVec
	backoffDuration   *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
	chunkCounter      *prometheus.CounterVec
	handlesInUse      prometheus.Gauge
	queueDepth        prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Attempts      int64         `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "storagelite",
			Labels:    make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry exposes the private registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records a finished logical operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, attempts int, err error) {
	if !c.enabled() {
		return
	}

	success := err == nil

	c.mu.Lock()
	m, exists := c.operations[operation]
	if !exists {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.Attempts += int64(attempts)
	m.TotalDuration += duration
	if !success {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"outcome":   map[bool]string{true: "success", false: "failure"}[success],
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if !success {
		c.RecordError(operation, err)
	}
}

// RecordAttempt records one exchange. status is 0 when no response arrived.
func (c *Collector) RecordAttempt(operation string, status int) {
	if !c.enabled() {
		return
	}
	c.attemptCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    statusClass(status),
	}).Inc()
}

// RecordRetry records a scheduled resubmission and its wait.
func (c *Collector) RecordRetry(operation string, wait time.Duration) {
	if !c.enabled() {
		return
	}
	c.retryCounter.With(prometheus.Labels{"operation": operation}).Inc()
	c.backoffDuration.With(prometheus.Labels{"operation": operation}).Observe(wait.Seconds())
}

// RecordError records a failed operation by error category.
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"category":  string(errors.CategoryOf(err)),
	}).Inc()
}

// RecordChunk records one finished transfer chunk.
func (c *Collector) RecordChunk(direction string, size int64, success bool) {
	if !c.enabled() {
		return
	}
	c.chunkCounter.With(prometheus.Labels{
		"direction": direction,
		"outcome":   map[bool]string{true: "success", false: "failure"}[success],
	}).Inc()
	if success && size > 0 {
		c.transferBytes.With(prometheus.Labels{"direction": direction}).Add(float64(size))
	}
}

// SetHandlesInUse updates the transport handle gauge.
func (c *Collector) SetHandlesInUse(n int) {
	if !c.enabled() {
		return
	}
	c.handlesInUse.Set(float64(n))
}

// SetQueueDepth updates the pending task gauge.
func (c *Collector) SetQueueDepth(n int) {
	if !c.enabled() {
		return
	}
	c.queueDepth.Set(float64(n))
}

// GetMetrics returns a snapshot of per-operation metrics
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	out := make(map[string]OperationMetrics)
	if !c.enabled() {
		return out
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics resets the internal per-operation tracking.
func (c *Collector) ResetMetrics() {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) initMetrics() {
	constLabels := prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of logical operations by outcome",
			ConstLabels: constLabels,
		},
		[]string{"operation", "outcome"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Duration of logical operations including retries",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms to ~2m
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	c.attemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "attempts_total",
			Help:        "Total number of HTTP exchanges by status class",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)

	c.retryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "retries_total",
			Help:        "Total number of scheduled retries",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	c.backoffDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "retry_backoff_seconds",
			Help:        "Wait before each retry",
			Buckets:     []float64{0, 1, 5, 10, 20, 40, 80, 160},
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of failed operations by error category",
			ConstLabels: constLabels,
		},
		[]string{"operation", "category"},
	)

	c.transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "transfer_bytes_total",
			Help:        "Bytes moved by completed transfer chunks",
			ConstLabels: constLabels,
		},
		[]string{"direction"},
	)

	c.chunkCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "chunks_total",
			Help:        "Total number of transfer chunks by outcome",
			ConstLabels: constLabels,
		},
		[]string{"direction", "outcome"},
	)

	c.handlesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "transport_handles_in_use",
			Help:        "Number of transport handles currently executing an exchange",
			ConstLabels: constLabels,
		},
	)

	c.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "executor_queue_depth",
			Help:        "Number of attempts waiting for a worker",
			ConstLabels: constLabels,
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.attemptCounter,
		c.retryCounter,
		c.backoffDuration,
		c.errorCounter,
		c.transferBytes,
		c.chunkCounter,
		c.handlesInUse,
		c.queueDepth,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func statusClass(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	return strconv.Itoa(status/100) + "xx"
}
