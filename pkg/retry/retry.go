// Package retry provides the retry decision for storagelite operations.
//
// A Policy is a pure function of an operation's attempt history. It never sleeps and
// never fails; the executor owns the waiting and the attempt loop.
package retry

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/storagelite/storagelite/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// BaseInterval is the backoff unit; retry n waits BaseInterval * 2^n
	BaseInterval time.Duration `yaml:"base_retry_interval" json:"base_retry_interval"`

	// TransientStatuses are non-5xx statuses that should be retried
	TransientStatuses []int `yaml:"transient_statuses" json:"transient_statuses"`

	// FatalStatuses are 5xx statuses that should not be retried
	FatalStatuses []int `yaml:"fatal_statuses" json:"fatal_statuses"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseInterval:      10 * time.Second,
		TransientStatuses: []int{408},
		FatalStatuses:     []int{501, 505},
	}
}

// Validate checks the configuration for values the policy cannot work with.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.BaseInterval < 0 {
		return fmt.Errorf("base_retry_interval must be non-negative, got %s", c.BaseInterval)
	}
	for _, s := range c.TransientStatuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("invalid transient status %d", s)
		}
	}
	for _, s := range c.FatalStatuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("invalid fatal status %d", s)
		}
	}
	return nil
}

// History is the attempt record of a single logical operation.
type History struct {
	// Attempt is the zero-based number of the attempt that just failed.
	Attempt int
	// LastStatus is the HTTP status of that attempt, 0 when no response arrived.
	LastStatus int
	// LastErr is the classified failure of that attempt.
	LastErr error
}

// Record returns the history after another failed attempt.
func (h History) Record(status int, err error) History {
	return History{Attempt: h.Attempt + 1, LastStatus: status, LastErr: err}
}

// Decision is the result of evaluating a history.
type Decision struct {
	ShouldRetry bool
	Interval    time.Duration
}

// Stop is the decision to give up.
var Stop = Decision{}

// Policy decides whether a failed attempt is resubmitted.
type Policy interface {
	Evaluate(h History) Decision
}

// ExponentialPolicy doubles the wait after every retry. It holds only read-only
// configuration and is safe to share between operations.
type ExponentialPolicy struct {
	config Config
}

// New creates an ExponentialPolicy. Negative values fall back to the defaults.
func New(config Config) *ExponentialPolicy {
	def := DefaultConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BaseInterval < 0 {
		config.BaseInterval = def.BaseInterval
	}
	if config.TransientStatuses == nil {
		config.TransientStatuses = def.TransientStatuses
	}
	if config.FatalStatuses == nil {
		config.FatalStatuses = def.FatalStatuses
	}
	return &ExponentialPolicy{config: config}
}

// Config returns the policy configuration.
func (p *ExponentialPolicy) Config() Config {
	return p.config
}

// Evaluate implements Policy.
func (p *ExponentialPolicy) Evaluate(h History) Decision {
	if h.Attempt >= p.config.MaxRetries || !p.Retryable(h.LastStatus, h.LastErr) {
		return Stop
	}
	return Decision{ShouldRetry: true, Interval: p.Backoff(h.Attempt)}
}

// Backoff returns the wait before the retry that follows attempt n. It
// saturates at the largest Duration instead of overflowing.
func (p *ExponentialPolicy) Backoff(n int) time.Duration {
	if n <= 0 || p.config.BaseInterval <= 0 {
		return 0
	}
	if n >= 63 || p.config.BaseInterval > time.Duration(math.MaxInt64>>uint(n)) {
		return time.Duration(math.MaxInt64)
	}
	return p.config.BaseInterval << uint(n)
}

// Retryable classifies one attempt result.
func (p *ExponentialPolicy) Retryable(status int, err error) bool {
	if se, ok := errors.AsStorageError(err); ok {
		switch se.Category {
		case errors.CategoryStream, errors.CategoryCancellation, errors.CategoryConfiguration, errors.CategoryInternal:
			return false
		case errors.CategoryTransport:
			return se.Retryable
		}
	}

	switch {
	case status == 0:
		// no response and no classification: treat as a dropped connection
		return err != nil
	case status >= 500 && status <= 599:
		return !slices.Contains(p.config.FatalStatuses, status)
	default:
		return slices.Contains(p.config.TransientStatuses, status)
	}
}

// NoRetry is a Policy that never retries.
type NoRetry struct{}

// Evaluate implements Policy.
func (NoRetry) Evaluate(History) Decision { return Stop }
