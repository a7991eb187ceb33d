// Package apperr defines the error taxonomy shared by services and the HTTP
// layer. Every error a handler returns is mapped to a status code here.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	KindRateLimited
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable code for clients and a user-facing message.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

// Error returns the message, followed by the cause when there is one.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// New builds an error without a cause.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap builds an error around a lower-level cause.
func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// Sentinel errors shared across services.
var (
	ErrUnauthenticated  = New(KindUnauthenticated, "unauthenticated", "unauthorized")
	ErrAdminRequired    = New(KindForbidden, "admin_required", "admin access required")
	ErrOrderUnpaid      = New(KindInvalid, "order_unpaid", "order unpaid")
	ErrNoFreeAllocation = New(KindConflict, "no_free_allocation", "no free allocation on node")
	ErrOrderProvisioned = New(KindConflict, "order_provisioned", "order already provisioned")
	ErrOrderCancelled   = New(KindInvalid, "order_cancelled", "order cancelled")
	ErrProfileNotFound  = New(KindNotFound, "profile_not_found", "user profile not found")
	ErrUnknownAction    = New(KindInvalid, "unknown_action", "invalid action")
	ErrRateLimited      = New(KindRateLimited, "rate_limited", "rate limit exceeded, please try again later")
)

// Invalid reports a bad request.
func Invalid(msg string) *Error { return New(KindInvalid, "invalid", msg) }

// Forbidden reports an authenticated caller acting outside its rights.
func Forbidden(msg string) *Error { return New(KindForbidden, "forbidden", msg) }

// NotFound reports a missing resource by name.
func NotFound(what string) *Error { return New(KindNotFound, "not_found", what+" not found") }

// Conflict reports a request that clashes with current state.
func Conflict(msg string) *Error { return New(KindConflict, "conflict", msg) }

// Upstream reports a failed call to the panel or billing provider.
func Upstream(msg string, err error) *Error {
	return Wrap(KindUpstream, "upstream", msg, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err onto the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the client-facing code of err, or "internal".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "internal"
}
