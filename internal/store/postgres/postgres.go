// Package postgres implements the material store against PostgreSQL
// using pgx. Materials live in one table with a unique natural-key
// index; the history ledger is append-only with a serial sequence that
// makes same-timestamp entries stably ordered. WithinTx locks the
// touched material row, so concurrent writers on the same material are
// serialized and the loser revalidates against committed state.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabworks/fabtrack/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// breach, the store-level backstop for natural-key collisions.
const uniqueViolation = "23505"

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
	quantity_estimated  DOUBLE PRECISION NOT NULL,
	unit_of_measure     TEXT NOT NULL,
	cost_estimated      DOUBLE PRECISION,
	status              TEXT NOT NULL,
	created_by          TEXT NOT NULL,
	last_updated_by     TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (job_id, material_identifier)
);

CREATE TABLE IF NOT EXISTS material_history (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL,
	material_id TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
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

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgx-backed material store.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New creates the store and bootstraps the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// GetMaterial returns the material by id, or core.ErrNotFound.
func (s *Store) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	return getMaterial(ctx, s.pool, id, false)
}

// GetMaterialByKey returns the material by natural key, or core.ErrNotFound.
func (s *Store) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	return getMaterialByKey(ctx, s.pool, jobID, identifier, false)
}

// ListHistory returns the material's ledger entries, oldest first.
// Same-timestamp entries keep their append order via the sequence.
func (s *Store) ListHistory(ctx context.Context, materialID string) ([]core.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, material_id, ts, actor_id, action, field_name, old_value, new_value, notes
		FROM material_history
		WHERE material_id = $1
		ORDER BY ts, seq`, materialID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var e core.HistoryEntry
		if err := rows.Scan(&e.ID, &e.MaterialID, &e.Timestamp, &e.ActorID,
			&e.Action, &e.FieldName, &e.OldValue, &e.NewValue, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WithinTx runs fn inside one database transaction. A failed commit is
// reported as core.ErrTxFailure: nothing was written and the operation
// is safe to retry.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrTxFailure, err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &storeTx{q: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrTxFailure, err)
	}
	return nil
}

// storeTx is the transactional view over a pgx transaction. Reads lock
// the material row (FOR UPDATE) so a concurrent writer blocks until
// this transaction resolves and then sees committed state.
type storeTx struct {
	q pgx.Tx
}

func (t *storeTx) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	return getMaterial(ctx, t.q, id, true)
}

func (t *storeTx) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	return getMaterialByKey(ctx, t.q, jobID, identifier, true)
}

func (t *storeTx) UpsertMaterial(ctx context.Context, m *core.Material) (*core.Material, error) {
	// Corruption guard: the natural key may not be claimed by another id.
	var holder string
	err := t.q.QueryRow(ctx,
		`SELECT id FROM materials WHERE job_id = $1 AND material_identifier = $2 FOR UPDATE`,
		m.JobID, m.MaterialIdentifier).Scan(&holder)
	switch {
	case err == nil && holder != m.ID:
		return nil, core.ErrStoreConflict
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("check natural key: %w", err)
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO materials (`+materialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			material_identifier = EXCLUDED.material_identifier,
			description = EXCLUDED.description,
			material_type = EXCLUDED.material_type,
			system_type = EXCLUDED.system_type,
			location_level = EXCLUDED.location_level,
			location_zone = EXCLUDED.location_zone,
			detail_drawing_id = EXCLUDED.detail_drawing_id,
			quantity_estimated = EXCLUDED.quantity_estimated,
			unit_of_measure = EXCLUDED.unit_of_measure,
			cost_estimated = EXCLUDED.cost_estimated,
			status = EXCLUDED.status,
			last_updated_by = EXCLUDED.last_updated_by,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.ExternalCode, m.JobID, m.MaterialIdentifier, m.Description,
		m.MaterialType, m.SystemType, m.LocationLevel, m.LocationZone, m.DetailDrawingID,
		m.QuantityEstimated, m.UnitOfMeasure, m.CostEstimated, m.Status,
		m.CreatedBy, m.LastUpdatedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
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

	_, err := t.q.Exec(ctx, `
		INSERT INTO material_history
			(id, material_id, ts, actor_id, action, field_name, old_value, new_value, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.MaterialID, stored.Timestamp, stored.ActorID,
		stored.Action, stored.FieldName, stored.OldValue, stored.NewValue, stored.Notes)
	if err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return &stored, nil
}

func getMaterial(ctx context.Context, q querier, id string, forUpdate bool) (*core.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanMaterial(q.QueryRow(ctx, query, id))
}

func getMaterialByKey(ctx context.Context, q querier, jobID, identifier string, forUpdate bool) (*core.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE job_id = $1 AND material_identifier = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanMaterial(q.QueryRow(ctx, query, jobID, identifier))
}

func scanMaterial(row pgx.Row) (*core.Material, error) {
	var m core.Material
	err := row.Scan(&m.ID, &m.ExternalCode, &m.JobID, &m.MaterialIdentifier, &m.Description,
		&m.MaterialType, &m.SystemType, &m.LocationLevel, &m.LocationZone, &m.DetailDrawingID,
		&m.QuantityEstimated, &m.UnitOfMeasure, &m.CostEstimated, &m.Status,
		&m.CreatedBy, &m.LastUpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan material: %w", err)
	}
	return &m, nil
}
