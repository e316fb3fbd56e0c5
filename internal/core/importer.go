package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// rowOutcome classifies what one reconciled row did to the store.
type rowOutcome int

const (
	rowUnchanged rowOutcome = iota
	rowCreated
	rowUpdated
)

// fieldChange is one staged field-level diff: the ledger entry values
// plus the mutation that applies it to the merged record.
type fieldChange struct {
	name   string
	old    string
	new    string
	action HistoryAction
	apply  func(*Material)
}

// RunImport parses a spreadsheet byte stream and reconciles its rows
// against the job's existing materials. Parse failures abort the whole
// batch before any row is processed; row failures are collected into the
// result and never abort the remaining rows.
func (s *Service) RunImport(ctx context.Context, jobID string, data []byte, actorID string) (*ImportResult, error) {
	rows, err := ParseImportFile(data)
	if err != nil {
		return nil, err
	}
	return s.runRows(ctx, jobID, rows, actorID), nil
}

// runRows drives the per-row reconciliation. Rows are processed in file
// order; each row's store mutation is its own atomic transaction, so one
// bad row leaves every other row's outcome intact. Rows repeating a
// natural key within the batch are each applied in order: the last row
// wins, and each is diffed against the state its predecessor committed.
func (s *Service) runRows(ctx context.Context, jobID string, rows []ImportRow, actorID string) *ImportResult {
	result := &ImportResult{Errors: []RowError{}}

	for _, row := range rows {
		outcome, material, err := s.reconcileRow(ctx, jobID, row, actorID)
		if err != nil {
			result.Errors = append(result.Errors, RowError{
				Row:        row.Index,
				NaturalKey: NaturalKey(jobID, row.MaterialIdentifier),
				Message:    err.Error(),
			})
			continue
		}

		switch outcome {
		case rowCreated:
			result.Created++
		case rowUpdated:
			result.Updated++
		case rowUnchanged:
			continue
		}
		s.notifyChanged(ctx, material.ID, material.JobID)
	}

	slog.Info("import completed",
		"job_id", jobID,
		"actor_id", actorID,
		"rows", len(rows),
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
	)

	return result
}

// reconcileRow validates one row and applies it as a single atomic
// create or update. Any panic escaping the row is converted to a row
// error so one corrupt row can never take down the batch.
func (s *Service) reconcileRow(ctx context.Context, jobID string, row ImportRow, actorID string) (outcome rowOutcome, material *Material, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, material = rowUnchanged, nil
			err = fmt.Errorf("row processing panic: %v", r)
		}
	}()

	parsed, err := validateRow(row)
	if err != nil {
		return rowUnchanged, nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.GetMaterialByKey(ctx, jobID, parsed.identifier)
		switch {
		case errors.Is(err, ErrNotFound):
			material, err = s.createFromRow(ctx, tx, jobID, parsed, actorID)
			outcome = rowCreated
			return err
		case err != nil:
			return err
		}

		changes := diffMaterial(existing, parsed)
		if len(changes) == 0 {
			material, outcome = existing, rowUnchanged
			return nil
		}
		if err := validateStatusChange(existing, changes); err != nil {
			return err
		}

		merged := existing.Clone()
		for _, c := range changes {
			c.apply(merged)
		}
		merged.LastUpdatedBy = actorID
		merged.UpdatedAt = laterOf(s.now(), merged.UpdatedAt)

		if material, err = tx.UpsertMaterial(ctx, merged); err != nil {
			return err
		}

		for _, c := range changes {
			if _, err := tx.AppendHistory(ctx, &HistoryEntry{
				MaterialID: merged.ID,
				ActorID:    actorID,
				Action:     c.action,
				FieldName:  c.name,
				OldValue:   c.old,
				NewValue:   c.new,
				Notes:      "import",
			}); err != nil {
				return err
			}
		}

		outcome = rowUpdated
		return nil
	})
	if err != nil {
		return rowUnchanged, nil, err
	}
	return outcome, material, nil
}

// parsedRow is a row after validation: enums normalized, numbers parsed,
// optional columns still tri-state.
type parsedRow struct {
	identifier   string
	description  string
	materialType MaterialType
	systemType   SystemType
	quantity     float64
	unit         string

	locationLevel   *string
	locationZone    *string
	detailDrawingID *string
	costEstimated   *float64 // nil only when the column was absent
	clearCost       bool     // column present with empty cell
	status          *Status  // nil when absent or empty
}

// validateRow performs the row-level checks of the reconciliation
// contract: required values present, enums within their closed sets
// after case-normalization, numbers parseable and in range.
func validateRow(row ImportRow) (*parsedRow, error) {
	p := &parsedRow{
		identifier:  row.MaterialIdentifier,
		description: row.Description,
		unit:        row.UnitOfMeasure,

		locationLevel:   row.LocationLevel,
		locationZone:    row.LocationZone,
		detailDrawingID: row.DetailDrawingID,
	}

	if p.identifier == "" {
		return nil, fmt.Errorf("materialIdentifier is required")
	}
	if p.description == "" {
		return nil, fmt.Errorf("description is required")
	}

	mt, ok := ParseMaterialType(row.MaterialType)
	if !ok {
		return nil, fmt.Errorf("invalid materialType %q", row.MaterialType)
	}
	p.materialType = mt

	st, ok := ParseSystemType(row.SystemType)
	if !ok {
		return nil, fmt.Errorf("invalid systemType %q", row.SystemType)
	}
	p.systemType = st

	q, err := ParseQuantity(row.QuantityEstimated)
	if err != nil {
		return nil, fmt.Errorf("invalid quantityEstimated: %v", err)
	}
	p.quantity = q

	if row.CostEstimated != nil {
		if *row.CostEstimated == "" {
			p.clearCost = true
		} else {
			cost, err := ParseNumber(*row.CostEstimated)
			if err != nil {
				return nil, fmt.Errorf("invalid costEstimated: %v", err)
			}
			if cost < 0 {
				return nil, fmt.Errorf("costEstimated must be non-negative")
			}
			p.costEstimated = &cost
		}
	}

	// An empty status cell means "leave unchanged": a lifecycle position
	// cannot be cleared.
	if row.Status != nil && *row.Status != "" {
		status, ok := ParseStatus(*row.Status)
		if !ok {
			return nil, fmt.Errorf("invalid status %q", *row.Status)
		}
		p.status = &status
	}

	return p, nil
}

// createFromRow builds a new material from a first-time row: generated
// id and external code, status ESTIMATED, one CREATE ledger entry.
func (s *Service) createFromRow(ctx context.Context, tx Tx, jobID string, p *parsedRow, actorID string) (*Material, error) {
	now := s.now()
	m := &Material{
		ID:                 NewID(),
		ExternalCode:       s.codes.NewCode(),
		JobID:              jobID,
		MaterialIdentifier: p.identifier,
		Description:        p.description,
		MaterialType:       p.materialType,
		SystemType:         p.systemType,
		QuantityEstimated:  p.quantity,
		UnitOfMeasure:      p.unit,
		CostEstimated:      p.costEstimated,
		Status:             StatusEstimated,
		CreatedBy:          actorID,
		LastUpdatedBy:      actorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if p.locationLevel != nil {
		m.LocationLevel = *p.locationLevel
	}
	if p.locationZone != nil {
		m.LocationZone = *p.locationZone
	}
	if p.detailDrawingID != nil {
		m.DetailDrawingID = *p.detailDrawingID
	}

	created, err := tx.UpsertMaterial(ctx, m)
	if err != nil {
		return nil, err
	}

	_, err = tx.AppendHistory(ctx, &HistoryEntry{
		MaterialID: created.ID,
		ActorID:    actorID,
		Action:     ActionCreate,
		Notes:      "import",
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// diffMaterial computes the field-level diff between the stored record
// and the row's values. Generated fields (id, externalCode, timestamps)
// never participate; optional columns participate only when present in
// the file, and a present-but-empty optional clears the field. Each
// changed field yields exactly one staged ledger entry.
func diffMaterial(existing *Material, p *parsedRow) []fieldChange {
	var changes []fieldChange

	stage := func(name, old, new string, apply func(*Material)) {
		changes = append(changes, fieldChange{
			name: name, old: old, new: new,
			action: ActionUpdateField,
			apply:  apply,
		})
	}

	if existing.Description != p.description {
		v := p.description
		stage("description", existing.Description, v, func(m *Material) { m.Description = v })
	}
	if existing.MaterialType != p.materialType {
		v := p.materialType
		stage("materialType", string(existing.MaterialType), string(v), func(m *Material) { m.MaterialType = v })
	}
	if existing.SystemType != p.systemType {
		v := p.systemType
		stage("systemType", string(existing.SystemType), string(v), func(m *Material) { m.SystemType = v })
	}
	if existing.QuantityEstimated != p.quantity {
		v := p.quantity
		stage("quantityEstimated", FormatNumber(existing.QuantityEstimated), FormatNumber(v),
			func(m *Material) { m.QuantityEstimated = v })
	}
	if existing.UnitOfMeasure != p.unit {
		v := p.unit
		stage("unitOfMeasure", existing.UnitOfMeasure, v, func(m *Material) { m.UnitOfMeasure = v })
	}

	if p.locationLevel != nil && existing.LocationLevel != *p.locationLevel {
		v := *p.locationLevel
		stage("locationLevel", existing.LocationLevel, v, func(m *Material) { m.LocationLevel = v })
	}
	if p.locationZone != nil && existing.LocationZone != *p.locationZone {
		v := *p.locationZone
		stage("locationZone", existing.LocationZone, v, func(m *Material) { m.LocationZone = v })
	}
	if p.detailDrawingID != nil && existing.DetailDrawingID != *p.detailDrawingID {
		v := *p.detailDrawingID
		stage("detailDrawingId", existing.DetailDrawingID, v, func(m *Material) { m.DetailDrawingID = v })
	}

	switch {
	case p.clearCost && existing.CostEstimated != nil:
		stage("costEstimated", FormatNumber(*existing.CostEstimated), "",
			func(m *Material) { m.CostEstimated = nil })
	case p.costEstimated != nil && (existing.CostEstimated == nil || *existing.CostEstimated != *p.costEstimated):
		v := *p.costEstimated
		old := ""
		if existing.CostEstimated != nil {
			old = FormatNumber(*existing.CostEstimated)
		}
		stage("costEstimated", old, FormatNumber(v), func(m *Material) { m.CostEstimated = &v })
	}

	if p.status != nil && existing.Status != *p.status {
		v := *p.status
		changes = append(changes, fieldChange{
			name: "status", old: string(existing.Status), new: string(v),
			action: ActionUpdateStatus,
			apply:  func(m *Material) { m.Status = v },
		})
	}

	return changes
}

// validateStatusChange rejects a staged status diff that violates the
// lifecycle table. Called before any write so an invalid transition
// fails the whole row with nothing persisted.
func validateStatusChange(existing *Material, changes []fieldChange) error {
	for _, c := range changes {
		if c.name != "status" {
			continue
		}
		proposed := Status(c.new)
		if !IsValidTransition(existing.Status, proposed) {
			return &InvalidTransitionError{Current: existing.Status, Proposed: proposed}
		}
	}
	return nil
}
