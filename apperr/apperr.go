// Package apperr defines the stable error kinds surfaced by the API. Every
// failure a client can observe maps to exactly one Kind with a fixed HTTP
// status, so handlers never leak internals through ad-hoc error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindVirus            Kind = "virus_detected"
	KindNotFound         Kind = "not_found"
	KindExpired          Kind = "expired"
	KindLimitExceeded    Kind = "limit_exceeded"
	KindPasswordRequired Kind = "password_required"
	KindAuthFailed       Kind = "auth_failed"
	KindStorage          Kind = "storage_failure"
)

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

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain; unknown errors report as
// storage failures so nothing internal reaches the response body.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the client-safe message for an error chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps an error to the response status: bad input 400, infected
// uploads 422, missing/inactive tokens 404, expired or exhausted archives 410,
// missing password 401, failed password or edit token 403, collaborator
// failures 503.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindVirus:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired, KindLimitExceeded:
		return http.StatusGone
	case KindPasswordRequired:
		return http.StatusUnauthorized
	case KindAuthFailed:
		return http.StatusForbidden
	case KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
