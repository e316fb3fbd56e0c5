// Package memory provides an in-process Store used by tests and for
// running the service without external storage. A single mutex spans
// each transaction, which trivially satisfies the serialization the
// engine requires from its backing store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fabworks/fabtrack/internal/core"
	"github.com/google/uuid"
)

// Store keeps materials and their ledger in maps. Transactions take a
// deep snapshot up front and restore it on rollback, so a failed
// transaction leaves no partial writes behind.
type Store struct {
	mu        sync.Mutex
	materials map[string]*core.Material // by id
	byKey     map[string]string         // natural key -> id
	history   map[string][]core.HistoryEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		materials: make(map[string]*core.Material),
		byKey:     make(map[string]string),
		history:   make(map[string][]core.HistoryEntry),
	}
}

var _ core.Store = (*Store)(nil)

// GetMaterial returns a copy of the material, or core.ErrNotFound.
func (s *Store) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMaterial(id)
}

// GetMaterialByKey returns a copy of the material with the given
// natural key, or core.ErrNotFound.
func (s *Store) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMaterialByKey(jobID, identifier)
}

// ListHistory returns the material's ledger entries in append order,
// which is oldest first.
func (s *Store) ListHistory(ctx context.Context, materialID string) ([]core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[materialID]
	out := make([]core.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// WithinTx runs fn under the store mutex. On error the pre-transaction
// snapshot is restored, so fn's writes are all-or-nothing.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.snapshot()
	if err := fn(ctx, (*memTx)(s)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *Store) getMaterial(id string) (*core.Material, error) {
	m, ok := s.materials[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) getMaterialByKey(jobID, identifier string) (*core.Material, error) {
	id, ok := s.byKey[core.NaturalKey(jobID, identifier)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.getMaterial(id)
}

type state struct {
	materials map[string]*core.Material
	byKey     map[string]string
	history   map[string][]core.HistoryEntry
}

func (s *Store) snapshot() state {
	st := state{
		materials: make(map[string]*core.Material, len(s.materials)),
		byKey:     make(map[string]string, len(s.byKey)),
		history:   make(map[string][]core.HistoryEntry, len(s.history)),
	}
	for id, m := range s.materials {
		st.materials[id] = m.Clone()
	}
	for k, v := range s.byKey {
		st.byKey[k] = v
	}
	for id, entries := range s.history {
		cp := make([]core.HistoryEntry, len(entries))
		copy(cp, entries)
		st.history[id] = cp
	}
	return st
}

func (s *Store) restore(st state) {
	s.materials = st.materials
	s.byKey = st.byKey
	s.history = st.history
}

// memTx is the transactional view; the surrounding WithinTx already
// holds the store mutex.
type memTx Store

func (t *memTx) GetMaterial(ctx context.Context, id string) (*core.Material, error) {
	return (*Store)(t).getMaterial(id)
}

func (t *memTx) GetMaterialByKey(ctx context.Context, jobID, identifier string) (*core.Material, error) {
	return (*Store)(t).getMaterialByKey(jobID, identifier)
}

func (t *memTx) UpsertMaterial(ctx context.Context, m *core.Material) (*core.Material, error) {
	key := m.NaturalKey()
	if heldBy, ok := t.byKey[key]; ok && heldBy != m.ID {
		return nil, core.ErrStoreConflict
	}

	// A changed natural key releases the old mapping.
	if prev, ok := t.materials[m.ID]; ok {
		if prevKey := prev.NaturalKey(); prevKey != key {
			delete(t.byKey, prevKey)
		}
	}

	stored := m.Clone()
	t.materials[m.ID] = stored
	t.byKey[key] = m.ID
	return stored.Clone(), nil
}

func (t *memTx) AppendHistory(ctx context.Context, e *core.HistoryEntry) (*core.HistoryEntry, error) {
	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}
	t.history[stored.MaterialID] = append(t.history[stored.MaterialID], stored)
	out := stored
	return &out, nil
}
