package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", NotFound("patient", "p1"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("resolve: %w", NotFound("orderable item", "i1")), http.StatusNotFound},
		{"validation", Validation("orderable_item_id is required"), http.StatusBadRequest},
		{"transition", &TransitionError{From: "Active", To: "Active"}, http.StatusBadRequest},
		{"storage", Storage("insert order", errors.New("conn reset")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToHTTP(tt.err).Code; got != tt.code {
				t.Errorf("ToHTTP(%v).Code = %d, want %d", tt.err, got, tt.code)
			}
		})
	}
}

func TestToHTTP_StorageHidesCause(t *testing.T) {
	he := ToHTTP(Storage("insert order", errors.New("password authentication failed")))
	if msg, _ := he.Message.(string); strings.Contains(msg, "password") {
		t.Errorf("storage cause leaked to client: %q", msg)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := Storage("insert order", cause)
	if !errors.Is(err, cause) {
		t.Error("expected StorageError to unwrap to its cause")
	}
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{From: "Discontinued", To: "Active", Message: "custom"}
	if err.Error() != "custom" {
		t.Errorf("expected custom message, got %q", err.Error())
	}
	err.Message = ""
	if err.Error() != "invalid transition from Discontinued to Active" {
		t.Errorf("unexpected default message %q", err.Error())
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Kind  string   `json:"kind" validate:"required,oneof=A B"`
		Limit *float64 `json:"limit" validate:"omitempty,gt=0"`
	}

	if err := ValidateStruct(input{Kind: "A"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := ValidateStruct(input{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Message != "kind is required" {
		t.Errorf("unexpected message %q", ve.Message)
	}

	zero := 0.0
	err = ValidateStruct(input{Kind: "C", Limit: &zero})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !strings.Contains(ve.Message, "kind must be one of: A, B") || !strings.Contains(ve.Message, "limit must be greater than 0") {
		t.Errorf("unexpected message %q", ve.Message)
	}
}
