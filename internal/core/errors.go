package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the engine's taxonomy. Callers classify with
// errors.Is / errors.As; nothing in this package panics across an
// operation boundary.
var (
	// ErrNotFound means the referenced material does not exist.
	// Surfaced to the caller, no retry.
	ErrNotFound = errors.New("material not found")

	// ErrStoreConflict means a natural-key collision against a different
	// id, or a concurrent-write conflict. Retryable for status updates;
	// recorded as a row error for import rows.
	ErrStoreConflict = errors.New("store conflict")

	// ErrTxFailure means the underlying atomic write did not commit. The
	// triggering operation is treated as not-happened; safe to retry.
	ErrTxFailure = errors.New("transaction failure")
)

// InvalidTransitionError reports a proposed status change that violates
// the lifecycle table. It carries both states so the caller can correct
// its input; there is no point retrying unchanged.
type InvalidTransitionError struct {
	Current  Status
	Proposed Status
}

func (e *InvalidTransitionError) Error() string {
	if e.Current.Terminal() {
		return fmt.Sprintf("invalid transition: %s is terminal, cannot move to %s", e.Current, e.Proposed)
	}
	return fmt.Sprintf("invalid transition: %s -> %s", e.Current, e.Proposed)
}

// ParseError means the input file is malformed or missing required
// columns. The whole import fails fast before any row is processed.
type ParseError struct {
	Missing []string // required columns absent from the header, if any
	Reason  string   // non-column failure (bad CSV, empty file, ...)
}

func (e *ParseError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// UserMessage is a user-facing rendering of an error with a stable code
// for support reference. The web layer serves these; technical detail
// stays in the server log.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// MapError converts any engine error to a user-friendly message.
// Typed taxonomy errors map directly; anything unrecognized gets a
// generic message so internals never leak to clients.
func MapError(err error) UserMessage {
	var inv *InvalidTransitionError
	var parse *ParseError

	switch {
	case errors.Is(err, ErrNotFound):
		return UserMessage{
			Message: "Material not found",
			Action:  "Verify the material id and try again",
			Code:    "MAT001",
		}
	case errors.As(err, &inv):
		return UserMessage{
			Message: inv.Error(),
			Action:  "Check the material's current status before changing it",
			Code:    "MAT002",
		}
	case errors.As(err, &parse):
		if strings.Contains(parse.Reason, "file too large") {
			return UserMessage{
				Message: "File exceeds the maximum import size",
				Action:  "Split the file into smaller chunks",
				Code:    "IMP002",
			}
		}
		return UserMessage{
			Message: parse.Error(),
			Action:  "Fix the file header and re-upload; no rows were processed",
			Code:    "IMP001",
		}
	case errors.Is(err, ErrStoreConflict):
		return UserMessage{
			Message: "The record was changed by someone else",
			Action:  "Reload the material and retry",
			Code:    "STO001",
		}
	case errors.Is(err, ErrTxFailure):
		return UserMessage{
			Message: "The change could not be saved",
			Action:  "Nothing was written; it is safe to retry",
			Code:    "STO002",
		}
	case err == nil:
		return UserMessage{Message: "OK", Code: "OK"}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"):
		return UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		}
	case strings.Contains(msg, "context deadline exceeded"):
		return UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "REQ002",
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again; contact support with the code if it persists",
		Code:    "GEN001",
	}
}
