// Package sqlite implements the material store on an embedded SQLite
// database via the pure-Go modernc driver. It backs single-node
// deployments and local development; the connection pool is capped at
// one connection, so transactions are fully serialized, which is all
// the engine asks of its store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fabworks/fabtrack/internal/core"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS materials (
	id                  TEXT PRIMARY KEY,
	external_code       TEXT NOT NULL,
	job_id              TEXT NOT NULL,
	material_identifier TEXT NOT NULL,
	description         TEXT NOT NULL,
	material_type       TEXT NOT NULL,
	system_type         TEXT NOT NULL,
	location_level      TEXT NOT NULL DEFAULT '',
	location_zone       TEXT NOT NULL DEFAULT '',
	detail_drawing_id   TEXT NOT NULL DEFAULT '',
	quantity_estimated  REAL NOT NULL,
	unit_of_measure     TEXT NOT NULL,
	cost_estimated      REAL,
	status              TEXT NOT NULL,
	created_by          TEXT NOT NULL,
	last_updated_by     TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	UNIQUE (job_id, material_identifier)
);

CREATE TABLE IF NOT EXISTS material_history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL,
	material_id TEXT NOT NULL,
	ts          TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	action      TEXT NOT NULL,
	field_name  TEXT NOT NULL DEFAULT '',
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS material_history_material_idx
	ON material_history (material_id, ts, seq);
`

const materialColumns = `id, external_code, job_id, material_identifier, description,
	material_type, system_type, location_level, location_zone, detail_drawing_id,
	quantity_estimated, unit_of_measure, cost_estimated, status,
	created_by, last_updated_by, created_at, updated_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed material store.
type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and bootstraps
// the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "fabtrack.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection serializes writers and avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetMaterial returns the material by id, or core.ErrNotFound.
func (s *Store) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	return getMaterial(ctx, s.db, id)
}

// GetMaterialByKey returns the material by natural key, or core.ErrNotFound.
func (s *Store) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	return getMaterialByKey(ctx, s.db, jobID, identifier)
}

// ListHistory returns the material's ledger entries, oldest first.
func (s *Store) ListHistory(ctx context.Context, materialID string) ([]core.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, material_id, ts, actor_id, action, field_name, old_value, new_value, notes
		FROM material_history
		WHERE material_id = ?
		ORDER BY ts, seq`, materialID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var e core.HistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.MaterialID, &ts, &e.ActorID,
			&e.Action, &e.FieldName, &e.OldValue, &e.NewValue, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WithinTx runs fn inside one database transaction. A failed commit is
// reported as core.ErrTxFailure: nothing was written and the operation
// is safe to retry.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrTxFailure, err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &storeTx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrTxFailure, err)
	}
	return nil
}

type storeTx struct {
	q *sql.Tx
}

func (t *storeTx) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	return getMaterial(ctx, t.q, id)
}

func (t *storeTx) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	return getMaterialByKey(ctx, t.q, jobID, identifier)
}

func (t *storeTx) UpsertMaterial(ctx context.Context, m *core.Material) (*core.Material, error) {
	// Corruption guard: the natural key may not be claimed by another id.
	var holder string
	err := t.q.QueryRowContext(ctx,
		`SELECT id FROM materials WHERE job_id = ? AND material_identifier = ?`,
		m.JobID, m.MaterialIdentifier).Scan(&holder)
	switch {
	case err == nil && holder != m.ID:
		return nil, core.ErrStoreConflict
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("check natural key: %w", err)
	}

	var cost sql.NullFloat64
	if m.CostEstimated != nil {
		cost = sql.NullFloat64{Float64: *m.CostEstimated, Valid: true}
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO materials (`+materialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			job_id = excluded.job_id,
			material_identifier = excluded.material_identifier,
			description = excluded.description,
			material_type = excluded.material_type,
			system_type = excluded.system_type,
			location_level = excluded.location_level,
			location_zone = excluded.location_zone,
			detail_drawing_id = excluded.detail_drawing_id,
			quantity_estimated = excluded.quantity_estimated,
			unit_of_measure = excluded.unit_of_measure,
			cost_estimated = excluded.cost_estimated,
			status = excluded.status,
			last_updated_by = excluded.last_updated_by,
			updated_at = excluded.updated_at`,
		m.ID, m.ExternalCode, m.JobID, m.MaterialIdentifier, m.Description,
		string(m.MaterialType), string(m.SystemType), m.LocationLevel, m.LocationZone, m.DetailDrawingID,
		m.QuantityEstimated, m.UnitOfMeasure, cost, string(m.Status),
		m.CreatedBy, m.LastUpdatedBy, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, core.ErrStoreConflict
		}
		return nil, fmt.Errorf("upsert material: %w", err)
	}

	return m.Clone(), nil
}

func (t *storeTx) AppendHistory(ctx context.Context, e *core.HistoryEntry) (*core.HistoryEntry, error) {
	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO material_history
			(id, material_id, ts, actor_id, action, field_name, old_value, new_value, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.MaterialID, formatTime(stored.Timestamp), stored.ActorID,
		string(stored.Action), stored.FieldName, stored.OldValue, stored.NewValue, stored.Notes)
	if err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return &stored, nil
}

func getMaterial(ctx context.Context, q querier, id string) (*core.Material, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = ?`, id)
	return scanMaterial(row)
}

func getMaterialByKey(ctx context.Context, q querier, jobID, identifier string) (*core.Material, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE job_id = ? AND material_identifier = ?`,
		jobID, identifier)
	return scanMaterial(row)
}

func scanMaterial(row *sql.Row) (*core.Material, error) {
	var m core.Material
	var cost sql.NullFloat64
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.ExternalCode, &m.JobID, &m.MaterialIdentifier, &m.Description,
		&m.MaterialType, &m.SystemType, &m.LocationLevel, &m.LocationZone, &m.DetailDrawingID,
		&m.QuantityEstimated, &m.UnitOfMeasure, &cost, &m.Status,
		&m.CreatedBy, &m.LastUpdatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan material: %w", err)
	}

	if cost.Valid {
		m.CostEstimated = &cost.Float64
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Timestamps are stored as fixed-width RFC 3339 UTC text so lexical and
// chronological order agree, which the history index relies on.
// (RFC3339Nano trims trailing zeros and would not sort correctly.)
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
