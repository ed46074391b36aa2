// Package errors provides the structured error type shared by every storagelite layer.
//
// A StorageError carries the ErrorInfo triple a caller needs to react to a failed
// exchange (HTTP status, the service's symbolic error code and its message) plus the
// category that decides how the executor treats it.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for storagelite operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig      ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	ErrCodeCredentialsMissing ErrorCode = "CREDENTIALS_MISSING"
	ErrCodeCredentialsInvalid ErrorCode = "CREDENTIALS_INVALID"

	// Transport errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Protocol errors
	ErrCodeRequestFailed   ErrorCode = "REQUEST_FAILED"
	ErrCodeResponseInvalid ErrorCode = "RESPONSE_INVALID"

	// Stream errors
	ErrCodeStreamNotRewindable ErrorCode = "STREAM_NOT_REWINDABLE"
	ErrCodeStreamRead          ErrorCode = "STREAM_READ"
	ErrCodeStreamWrite         ErrorCode = "STREAM_WRITE"

	// Cancellation
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeExecutorClosed    ErrorCode = "EXECUTOR_CLOSED"

	// Internal
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory is the taxonomy the executor uses to pick terminal vs retryable.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryTransport     ErrorCategory = "transport"
	CategoryProtocol      ErrorCategory = "protocol"
	CategoryStream        ErrorCategory = "stream"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryInternal      ErrorCategory = "internal"
)

// StorageError represents a structured error with context and metadata.
type StorageError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Status is the HTTP status of the failed exchange, 0 when no response arrived.
	Status int `json:"status,omitempty"`
	// CodeName is the symbolic code from the service error envelope (e.g. BlobNotFound).
	CodeName string `json:"code_name,omitempty"`

	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		if e.Operation != "" {
			fmt.Fprintf(&b, "[%s:%s] ", e.Component, e.Operation)
		} else {
			fmt.Fprintf(&b, "[%s] ", e.Component)
		}
	}
	b.WriteString(string(e.Code))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d", e.Status)
		if e.CodeName != "" {
			fmt.Fprintf(&b, " %s", e.CodeName)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil && e.Message != e.Cause.Error() {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches on error code, so sentinel values such as ErrCanceled work with errors.Is.
func (e *StorageError) Is(target error) bool {
	if t, ok := target.(*StorageError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *StorageError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("Status=%d", e.Status))
	}
	if e.CodeName != "" {
		parts = append(parts, fmt.Sprintf("CodeName=%s", e.CodeName))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("RequestID=%s", e.RequestID))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("StorageError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *StorageError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new storage error with default values for its code.
func NewError(code ErrorCode, message string) *StorageError {
	return &StorageError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Retryable: IsRetryableByDefault(code),
	}
}

// NewConfigError creates a configuration error. These are raised before any exchange.
func NewConfigError(code ErrorCode, format string, args ...interface{}) *StorageError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// NewProtocolError creates an error for an exchange that completed with a non-2xx status.
// Retryable is left false; the retry policy owns that decision for protocol errors.
func NewProtocolError(status int, codeName, message string) *StorageError {
	err := NewError(ErrCodeRequestFailed, message)
	err.Status = status
	err.CodeName = codeName
	if err.Message == "" {
		err.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return err
}

// NewTransportError wraps a failure below HTTP (dial, TLS, reset, timeout).
func NewTransportError(cause error, retryable bool) *StorageError {
	code := ErrCodeNetworkError
	if isTimeout(cause) {
		code = ErrCodeConnectionTimeout
	}
	err := NewError(code, "transport failure").WithCause(cause)
	err.Retryable = retryable
	return err
}

// NewStreamError creates a fatal error for body sources and response sinks.
func NewStreamError(code ErrorCode, message string, cause error) *StorageError {
	return NewError(code, message).WithCause(cause)
}

// NewCanceledError creates the outcome for a caller-cancelled operation.
func NewCanceledError(cause error) *StorageError {
	return NewError(ErrCodeOperationCanceled, "operation canceled").WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigLoad,
		ErrCodeCredentialsMissing, ErrCodeCredentialsInvalid:
		return CategoryConfiguration
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError:
		return CategoryTransport
	case ErrCodeRequestFailed, ErrCodeResponseInvalid:
		return CategoryProtocol
	case ErrCodeStreamNotRewindable, ErrCodeStreamRead, ErrCodeStreamWrite:
		return CategoryStream
	case ErrCodeOperationCanceled, ErrCodeExecutorClosed:
		return CategoryCancellation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout: true,
		ErrCodeConnectionFailed:  true,
		ErrCodeNetworkError:      true,
	}
	return retryableCodes[code]
}

// WithDetail adds detailed information to an error
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *StorageError) WithComponent(component string) *StorageError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *StorageError) WithOperation(operation string) *StorageError {
	e.Operation = operation
	return e
}

// WithRequestID records the service request id of the failed exchange
func (e *StorageError) WithRequestID(id string) *StorageError {
	e.RequestID = id
	return e
}

// WithCause sets the underlying cause
func (e *StorageError) WithCause(cause error) *StorageError {
	e.Cause = cause
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrCanceled       = &StorageError{Code: ErrCodeOperationCanceled}
	ErrExecutorClosed = &StorageError{Code: ErrCodeExecutorClosed}
	ErrNotRewindable  = &StorageError{Code: ErrCodeStreamNotRewindable}
)

// AsStorageError extracts a *StorageError from err's chain.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stderr.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CategoryOf returns the category of err, CategoryInternal for foreign errors.
func CategoryOf(err error) ErrorCategory {
	if se, ok := AsStorageError(err); ok {
		return se.Category
	}
	return CategoryInternal
}

// IsNotFound reports whether err is a protocol error with status 404.
func IsNotFound(err error) bool {
	se, ok := AsStorageError(err)
	return ok && se.Category == CategoryProtocol && se.Status == 404
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return stderr.As(err, &t) && t.Timeout()
}
