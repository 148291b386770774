package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindBadRequest         Kind = "BadRequest"
	KindConflict           Kind = "Conflict"
	KindInsufficientStock  Kind = "InsufficientStock"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindCacheUnavailable   Kind = "CacheUnavailable"
	KindUnauthorized       Kind = "Unauthorized"
	KindInternal           Kind = "Internal"
)

// Error is the only error type allowed to cross a service boundary (HTTP or RPC reply).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// sentinels for errors.Is
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrBadRequest         = &Error{Kind: KindBadRequest}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrCacheUnavailable   = &Error{Kind: KindCacheUnavailable}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
)

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func InsufficientStock(productID string) *Error {
	return New(KindInsufficientStock, "insufficient stock for product "+productID)
}

func ServiceUnavailable(msg string, err error) *Error {
	return Wrap(KindServiceUnavailable, msg, err)
}

func CacheUnavailable(msg string, err error) *Error {
	return Wrap(KindCacheUnavailable, msg, err)
}

func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

func Internal(msg string, err error) *Error { return Wrap(KindInternal, msg, err) }

// KindOf returns KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict, KindInsufficientStock:
		return http.StatusConflict
	case KindServiceUnavailable, KindCacheUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage never exposes wrapped store or transport errors.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	return e.Message
}
