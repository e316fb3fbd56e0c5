package core

import (
	"context"
	"log/slog"
	"time"
)

// Service orchestrates material mutations against a Store. It holds no
// mutable state of its own; every status update and every import row is
// an independent, store-serialized transaction.
type Service struct {
	store Store
	codes CodeGenerator
	sink  EventSink
	now   func() time.Time
}

// NewService creates a Service. A nil sink disables change
// notifications.
func NewService(store Store, sink EventSink) *Service {
	if sink == nil {
		sink = SinkFunc(func(context.Context, string, string) error { return nil })
	}
	return &Service{
		store: store,
		codes: NewCodeGenerator(),
		sink:  sink,
		now:   time.Now,
	}
}

// GetMaterial returns the full current record, or ErrNotFound.
func (s *Service) GetMaterial(ctx context.Context, materialID string) (*Material, error) {
	return s.store.GetMaterial(ctx, materialID)
}

// History returns the material's ledger entries, oldest first.
func (s *Service) History(ctx context.Context, materialID string) ([]HistoryEntry, error) {
	return s.store.ListHistory(ctx, materialID)
}

// UpdateStatus applies one guarded status change: load the current
// record, validate the transition, persist the new state, and append
// exactly one UPDATE_STATUS ledger entry — all in a single transaction.
// The load happens inside the transaction, so a writer that lost a race
// revalidates against the committed state instead of overwriting it.
func (s *Service) UpdateStatus(ctx context.Context, materialID string, proposed Status, actorID, notes string) (*Material, error) {
	if !proposed.Valid() {
		return nil, &InvalidTransitionError{Proposed: proposed}
	}

	var updated *Material
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.GetMaterial(ctx, materialID)
		if err != nil {
			return err
		}

		if !IsValidTransition(m.Status, proposed) {
			return &InvalidTransitionError{Current: m.Status, Proposed: proposed}
		}

		old := m.Status
		m.Status = proposed
		m.LastUpdatedBy = actorID
		m.UpdatedAt = laterOf(s.now(), m.UpdatedAt)

		if updated, err = tx.UpsertMaterial(ctx, m); err != nil {
			return err
		}

		_, err = tx.AppendHistory(ctx, &HistoryEntry{
			MaterialID: m.ID,
			ActorID:    actorID,
			Action:     ActionUpdateStatus,
			FieldName:  "status",
			OldValue:   string(old),
			NewValue:   string(proposed),
			Notes:      notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyChanged(ctx, updated.ID, updated.JobID)
	return updated, nil
}

// notifyChanged calls the event sink after a committed mutation.
// Best-effort: sink failures are logged and never roll anything back.
func (s *Service) notifyChanged(ctx context.Context, materialID, jobID string) {
	if err := s.sink.MaterialChanged(ctx, materialID, jobID); err != nil {
		slog.Warn("event sink failed",
			"material_id", materialID,
			"job_id", jobID,
			"error", err,
		)
	}
}

// laterOf keeps UpdatedAt monotonically non-decreasing even when clocks
// step backwards between writers.
func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
