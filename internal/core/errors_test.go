package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// ============================================================================
// MapError Tests
// ============================================================================

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not found", ErrNotFound, "MAT001"},
		{"wrapped not found", fmt.Errorf("load: %w", ErrNotFound), "MAT001"},
		{"invalid transition", &InvalidTransitionError{Current: StatusEstimated, Proposed: StatusInstalled}, "MAT002"},
		{"missing columns", &ParseError{Missing: []string{"description"}}, "IMP001"},
		{"bad csv", &ParseError{Reason: "invalid csv: parse failure"}, "IMP001"},
		{"file too large", &ParseError{Reason: "file too large"}, "IMP002"},
		{"store conflict", ErrStoreConflict, "STO001"},
		{"tx failure", fmt.Errorf("%w: commit: broken", ErrTxFailure), "STO002"},
		{"cancelled", context.Canceled, "REQ001"},
		{"deadline", context.DeadlineExceeded, "REQ002"},
		{"anything else", errors.New("cable unplugged"), "GEN001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.code {
				t.Errorf("MapError(%v).Code = %s, want %s", tt.err, got.Code, tt.code)
			}
			if got.Message == "" {
				t.Error("user message must never be empty")
			}
		})
	}
}

func TestMapError_DoesNotLeakInternals(t *testing.T) {
	msg := MapError(errors.New("pq: connection refused on 10.0.0.7:5432"))
	if msg.Code != "GEN001" {
		t.Fatalf("Code = %s, want GEN001", msg.Code)
	}
	if msg.Message != "An unexpected error occurred" {
		t.Errorf("Message = %q leaked the underlying error", msg.Message)
	}
}

func TestInvalidTransitionError_TerminalMessage(t *testing.T) {
	err := &InvalidTransitionError{Current: StatusInstalled, Proposed: StatusDamaged}
	want := "invalid transition: INSTALLED is terminal, cannot move to DAMAGED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = &InvalidTransitionError{Current: StatusEstimated, Proposed: StatusInstalled}
	want = "invalid transition: ESTIMATED -> INSTALLED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
