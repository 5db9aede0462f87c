package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across the service. Wrap them with the helpers below
// and test with errors.Is; handlers map them to HTTP status codes via HTTPStatus.
var (
	// ErrValidation indicates missing or malformed user input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates bad credentials, a bad token or a bad webhook signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller lacking the required capability.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the requested resource does not exist (or is out of scope).
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates a duplicate unique key.
	ErrConflict = errors.New("resource conflict")
	// ErrStore indicates an external datastore failure.
	ErrStore = errors.New("database error")
	// ErrRateLimited indicates the caller exceeded an attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInternal indicates an unexpected fault.
	ErrInternal = errors.New("internal error")
)

// Error carries a short, client-safe message next to its category sentinel.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	default:
		return e.Kind.Error()
	}
}

// Is reports category membership so errors.Is(err, ErrNotFound) works on wrapped values.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }

func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Msg: msg} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

func Conflict(msg string) error { return &Error{Kind: ErrConflict, Msg: msg} }

func RateLimited(msg string) error { return &Error{Kind: ErrRateLimited, Msg: msg} }

// Store wraps a driver error. The driver error is kept for logs only; Message never exposes it.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrStore, Msg: op, Err: err}
}

func Internal(err error, msg string) error { return &Error{Kind: ErrInternal, Msg: msg, Err: err} }

// HTTPStatus maps an error to the status code a boundary handler should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the short machine-readable text placed in the {"error": ...} field.
// Store and internal diagnostics are never exposed.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrStore):
		return "Database error"
	case errors.Is(err, ErrInternal):
		return "Internal server error"
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusConflict:
		return "Already exists"
	case http.StatusTooManyRequests:
		return "Too many attempts"
	default:
		return "Internal server error"
	}
}
