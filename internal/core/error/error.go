package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind classifies a failure for retry and turn-abort decisions.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindExternal    Kind = "external"
	KindUnknownTool Kind = "unknown_tool"
	KindLoopBound   Kind = "loop_bound"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrLoopBound   = errors.New("node execution limit exceeded")
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Err     error
	Kind    Kind
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information. The kind is
// derived from the status code.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kindForStatus(status),
		Status:  status,
		Message: message,
	}
}

func newKind(kind Kind, err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kind,
		Status:  statusForKind(kind),
		Message: message,
	}
}

// Validation reports a contract violation in state or input. Never retried.
func Validation(message string, err error) *AppError {
	return newKind(KindValidation, err, message)
}

// External reports a failed call to a model provider or network service.
func External(message string, err error) *AppError {
	return newKind(KindExternal, err, message)
}

// UnknownTool reports a tool name that no dispatcher registered.
func UnknownTool(name string) *AppError {
	return newKind(KindUnknownTool, fmt.Errorf("%w: %q", ErrUnknownTool, name), "tool is not registered")
}

// LoopBound reports that a turn hit the node execution cap.
func LoopBound(limit int) *AppError {
	return newKind(KindLoopBound, fmt.Errorf("%w (limit %d)", ErrLoopBound, limit), "turn exceeded node execution limit")
}

func NotFound(message string, err error) *AppError {
	return newKind(KindNotFound, err, message)
}

func Conflict(message string, err error) *AppError {
	return newKind(KindConflict, err, message)
}

func Internal(message string, err error) *AppError {
	return newKind(KindInternal, err, message)
}

// WrapRedis maps Redis errors to the unified error type.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return newKind(KindNotFound, err, RedisNotFoundMessage)
	}
	return &AppError{
		Err:     err,
		Kind:    KindExternal,
		Status:  http.StatusBadGateway,
		Message: RedisErrorMessage,
	}
}

// KindOf returns the kind of the outermost AppError in the chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindExternal
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns a message safe to show to API callers.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindExternal:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return KindExternal
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindInternal
	}
}
