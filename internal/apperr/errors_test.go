package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
	}{
		{"validation", Validation("create_goal", "title is required"), ErrValidation, http.StatusBadRequest},
		{"not found", NotFound("get_goal", "goal %s not found", "g1"), ErrNotFound, http.StatusNotFound},
		{"precondition", Precondition("complete_task", "task is locked"), ErrPrecondition, http.StatusConflict},
		{"persistence", Persistence("patch_goal", errors.New("connection reset")), ErrPersistence, http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("delete_goal", "missing")), ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("Expected errors.Is(%v, %v) to be true", tt.err, tt.sentinel)
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	t.Parallel()

	err := Validation("op", "bad")
	if errors.Is(err, ErrNotFound) {
		t.Error("Expected validation error not to match ErrNotFound")
	}
	if IsPrecondition(err) || IsPersistence(err) || IsNotFound(err) {
		t.Error("Expected only IsValidation to match")
	}
	if !IsValidation(err) {
		t.Error("Expected IsValidation to match")
	}
}

func TestPersistenceUnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Persistence("create_goal", cause)
	if !errors.Is(err, cause) {
		t.Error("Expected persistence error to unwrap to its cause")
	}
	if PublicMessage(err) == cause.Error() {
		t.Error("Expected public message not to leak the cause")
	}
}

func TestHTTPStatus_UnknownError(t *testing.T) {
	t.Parallel()

	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", got)
	}
	if KindOf(errors.New("boom")) != "" {
		t.Error("Expected empty kind for plain error")
	}
}
