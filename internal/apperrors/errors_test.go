package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus_MapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("missing caller_id"), http.StatusBadRequest},
		{Unauthorized("Invalid signature"), http.StatusUnauthorized},
		{Forbidden("developer access required"), http.StatusForbidden},
		{NotFound("Call not found"), http.StatusNotFound},
		{Conflict("agent already exists"), http.StatusConflict},
		{RateLimited("too many login attempts"), http.StatusTooManyRequests},
		{Store(errors.New("conn refused"), "insert call"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NotFound("x")), http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessage_HidesStoreDiagnostics(t *testing.T) {
	err := Store(errors.New("pq: password authentication failed for user admin"), "insert call")
	if got := Message(err); got != "Database error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore membership")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("store error must not be a not-found error")
	}
}

func TestMessage_UsesClientSafeText(t *testing.T) {
	if got := Message(Validation("is_flagged_for_review must be a boolean")); got != "is_flagged_for_review must be a boolean" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(errors.New("raw")); got != "Internal server error" {
		t.Fatalf("unexpected message %q", got)
	}
}
