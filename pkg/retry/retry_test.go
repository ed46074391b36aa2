package retry

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/storagelite/storagelite/pkg/errors"
)

func TestPolicy_DefaultSchedule(t *testing.T) {
	policy := New(DefaultConfig())
	serverBusy := errors.NewProtocolError(503, "ServerBusy", "busy")

	want := []Decision{
		{ShouldRetry: true, Interval: 0},
		{ShouldRetry: true, Interval: 20 * time.Second},
		{ShouldRetry: true, Interval: 40 * time.Second},
		Stop,
	}

	h := History{LastStatus: 503, LastErr: serverBusy}
	for n, expected := range want {
		h.Attempt = n
		got := policy.Evaluate(h)
		if got != expected {
			t.Errorf("attempt %d: got %+v, want %+v", n, got, expected)
		}
	}
}

func TestPolicy_StopsAtMaxRetries(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 5
	policy := New(config)

	for _, status := range []int{0, 408, 500, 503} {
		for attempt := 5; attempt < 8; attempt++ {
			h := History{Attempt: attempt, LastStatus: status, LastErr: fmt.Errorf("failed")}
			if policy.Evaluate(h).ShouldRetry {
				t.Errorf("status %d attempt %d: expected stop", status, attempt)
			}
		}
	}
}

func TestPolicy_Classification(t *testing.T) {
	policy := New(DefaultConfig())

	tests := []struct {
		name   string
		status int
		err    error
		want   bool
	}{
		{"not found", 404, errors.NewProtocolError(404, "BlobNotFound", ""), false},
		{"bad request", 400, errors.NewProtocolError(400, "InvalidHeaderValue", ""), false},
		{"conflict", 409, errors.NewProtocolError(409, "LeaseIdMissing", ""), false},
		{"request timeout", 408, errors.NewProtocolError(408, "", ""), true},
		{"internal error", 500, errors.NewProtocolError(500, "InternalError", ""), true},
		{"server busy", 503, errors.NewProtocolError(503, "ServerBusy", ""), true},
		{"not implemented", 501, errors.NewProtocolError(501, "", ""), false},
		{"version not supported", 505, errors.NewProtocolError(505, "", ""), false},
		{"retryable transport", 0, errors.NewTransportError(fmt.Errorf("connection reset"), true), true},
		{"fatal transport", 0, errors.NewTransportError(fmt.Errorf("x509: unknown authority"), false), false},
		{"unclassified transport", 0, fmt.Errorf("EOF"), true},
		{"stream", 0, errors.NewStreamError(errors.ErrCodeStreamWrite, "sink", nil), false},
		{"canceled", 0, errors.NewCanceledError(context.Canceled), false},
		{"configuration", 0, errors.NewConfigError(errors.ErrCodeCredentialsMissing, "no key"), false},
		{"internal", 0, errors.NewError(errors.ErrCodeInternalError, "bug"), false},
		{"unparseable success", 200, errors.NewError(errors.ErrCodeResponseInvalid, "bad xml"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Evaluate(History{LastStatus: tt.status, LastErr: tt.err}).ShouldRetry
			if got != tt.want {
				t.Errorf("ShouldRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_ConfigurableStatuses(t *testing.T) {
	config := DefaultConfig()
	config.TransientStatuses = []int{409, 429}
	config.FatalStatuses = []int{500}
	policy := New(config)

	if !policy.Retryable(409, nil) || !policy.Retryable(429, nil) {
		t.Error("configured transient statuses should retry")
	}
	if policy.Retryable(408, nil) {
		t.Error("408 is no longer transient")
	}
	if policy.Retryable(500, nil) {
		t.Error("500 is configured fatal")
	}
	if !policy.Retryable(501, nil) {
		t.Error("501 is no longer fatal")
	}
}

func TestPolicy_Backoff(t *testing.T) {
	config := DefaultConfig()
	config.BaseInterval = time.Millisecond
	policy := New(config)

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 2 * time.Millisecond},
		{2, 4 * time.Millisecond},
		{3, 8 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := policy.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestPolicy_BackoffSaturates(t *testing.T) {
	policy := New(Config{MaxRetries: 100, BaseInterval: 10 * time.Second})

	prev := time.Duration(0)
	for n := 1; n < 100; n++ {
		got := policy.Backoff(n)
		if got < prev {
			t.Fatalf("Backoff(%d) = %v is less than Backoff(%d) = %v", n, got, n-1, prev)
		}
		prev = got
	}
	if got := policy.Backoff(29); got != 10*time.Second<<29 {
		t.Errorf("Backoff(29) = %v", got)
	}
	if got := policy.Backoff(30); got != time.Duration(math.MaxInt64) {
		t.Errorf("Backoff(30) = %v, want saturation", got)
	}

	d := policy.Evaluate(History{Attempt: 30, LastStatus: 503})
	if !d.ShouldRetry || d.Interval <= 0 {
		t.Errorf("Evaluate(attempt 30) = %+v, want a positive wait", d)
	}
}

func TestPolicy_ZeroRetries(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 0
	policy := New(config)

	if policy.Evaluate(History{LastStatus: 503}).ShouldRetry {
		t.Error("MaxRetries=0 must never retry")
	}
}

func TestHistory_Record(t *testing.T) {
	var h History
	h = h.Record(503, nil)
	h = h.Record(0, fmt.Errorf("reset"))

	if h.Attempt != 2 || h.LastStatus != 0 || h.LastErr == nil {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestNoRetry(t *testing.T) {
	if (NoRetry{}).Evaluate(History{LastStatus: 503}).ShouldRetry {
		t.Error("NoRetry must stop")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"negative interval", func(c *Config) { c.BaseInterval = -time.Second }, true},
		{"bad transient", func(c *Config) { c.TransientStatuses = []int{42} }, true},
		{"bad fatal", func(c *Config) { c.FatalStatuses = []int{600} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
