package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// MaterialType classifies the physical kind of a tracked unit.
type MaterialType string

const (
	TypePipe       MaterialType = "PIPE"
	TypeFitting    MaterialType = "FITTING"
	TypeValve      MaterialType = "VALVE"
	TypeDuct       MaterialType = "DUCT"
	TypeDamper     MaterialType = "DAMPER"
	TypeHanger     MaterialType = "HANGER"
	TypeInsulation MaterialType = "INSULATION"
	TypeEquipment  MaterialType = "EQUIPMENT"
)

// SystemType identifies the building system a material belongs to.
type SystemType string

const (
	SystemCHW   SystemType = "CHW"   // chilled water
	SystemHHW   SystemType = "HHW"   // heating hot water
	SystemCW    SystemType = "CW"    // condenser water
	SystemSTM   SystemType = "STM"   // steam
	SystemSAN   SystemType = "SAN"   // sanitary
	SystemStorm SystemType = "STORM" // storm drainage
	SystemSA    SystemType = "SA"    // supply air
	SystemRA    SystemType = "RA"    // return air
	SystemEXH   SystemType = "EXH"   // exhaust air
	SystemNG    SystemType = "NG"    // natural gas
)

var materialTypes = map[MaterialType]bool{
	TypePipe: true, TypeFitting: true, TypeValve: true, TypeDuct: true,
	TypeDamper: true, TypeHanger: true, TypeInsulation: true, TypeEquipment: true,
}

var systemTypes = map[SystemType]bool{
	SystemCHW: true, SystemHHW: true, SystemCW: true, SystemSTM: true,
	SystemSAN: true, SystemStorm: true, SystemSA: true, SystemRA: true,
	SystemEXH: true, SystemNG: true,
}

// ParseMaterialType normalizes case and whitespace and reports whether the
// value belongs to the closed material type set.
func ParseMaterialType(s string) (MaterialType, bool) {
	mt := MaterialType(strings.ToUpper(strings.TrimSpace(s)))
	return mt, materialTypes[mt]
}

// ParseSystemType normalizes case and whitespace and reports whether the
// value belongs to the closed system type set.
func ParseSystemType(s string) (SystemType, bool) {
	st := SystemType(strings.ToUpper(strings.TrimSpace(s)))
	return st, systemTypes[st]
}

// MaterialTypes returns the closed material type set, sorted.
func MaterialTypes() []string {
	return sortedKeys(materialTypes)
}

// SystemTypes returns the closed system type set, sorted.
func SystemTypes() []string {
	return sortedKeys(systemTypes)
}

func sortedKeys[K ~string](m map[K]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Material is one physical unit tracked across its lifecycle.
//
// ID and ExternalCode are immutable after creation; ExternalCode is the
// stable scannable code assigned exactly once and never regenerated.
// (JobID, MaterialIdentifier) is the natural key, unique within the store,
// used to match import rows to existing records.
type Material struct {
	ID                 string       `json:"id"`
	ExternalCode       string       `json:"externalCode"`
	JobID              string       `json:"jobId"`
	MaterialIdentifier string       `json:"materialIdentifier"`
	Description        string       `json:"description"`
	MaterialType       MaterialType `json:"materialType"`
	SystemType         SystemType   `json:"systemType"`
	LocationLevel      string       `json:"locationLevel,omitempty"`
	LocationZone       string       `json:"locationZone,omitempty"`
	DetailDrawingID    string       `json:"detailDrawingId,omitempty"`
	QuantityEstimated  float64      `json:"quantityEstimated"`
	UnitOfMeasure      string       `json:"unitOfMeasure"`
	CostEstimated      *float64     `json:"costEstimated,omitempty"`
	Status             Status       `json:"status"`
	CreatedBy          string       `json:"createdBy"`
	LastUpdatedBy      string       `json:"lastUpdatedBy"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy of the material.
func (m *Material) Clone() *Material {
	c := *m
	if m.CostEstimated != nil {
		v := *m.CostEstimated
		c.CostEstimated = &v
	}
	return &c
}

// NaturalKey renders the business key as "jobId|materialIdentifier",
// the same composite form used in row-level error reports.
func (m *Material) NaturalKey() string {
	return NaturalKey(m.JobID, m.MaterialIdentifier)
}

// NaturalKey joins a job id and material identifier into the composite
// key form used for lookups and error reporting.
func NaturalKey(jobID, identifier string) string {
	return jobID + "|" + identifier
}

// HistoryAction is the kind of mutation an audit entry documents.
type HistoryAction string

const (
	ActionCreate       HistoryAction = "CREATE"
	ActionUpdateField  HistoryAction = "UPDATE_FIELD"
	ActionUpdateStatus HistoryAction = "UPDATE_STATUS"
	// ActionImport marks ledger annotations attached by external import
	// tooling; the engine itself records creates and field changes with
	// the specific actions above.
	ActionImport HistoryAction = "IMPORT"
)

// HistoryEntry is one immutable audit record. The ordered sequence of
// entries for a material, oldest first, is the complete reconstruction of
// its change history. Field-level changes carry FieldName/OldValue/NewValue.
type HistoryEntry struct {
	ID         string        `json:"id"`
	MaterialID string        `json:"materialId"`
	Timestamp  time.Time     `json:"timestamp"`
	ActorID    string        `json:"actorId"`
	Action     HistoryAction `json:"action"`
	FieldName  string        `json:"fieldName,omitempty"`
	OldValue   string        `json:"oldValue,omitempty"`
	NewValue   string        `json:"newValue,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// RowError is a failure confined to one import row. It never aborts the
// remaining batch.
type RowError struct {
	Row        int    `json:"row"`
	NaturalKey string `json:"naturalKey"`
	Message    string `json:"message"`
}

// ImportResult aggregates the outcome of one import run.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// ImportRow is one parsed spreadsheet row. Required columns are plain
// strings (raw cell values, validated by the reconciliation engine).
// Optional columns are tri-state: a nil pointer means the column was
// absent from the file ("leave unchanged"), a pointer to an empty string
// means the cell was present but empty ("explicitly cleared").
type ImportRow struct {
	Index int // 1-based data row position, preserved for error reporting

	MaterialIdentifier string
	Description        string
	MaterialType       string
	SystemType         string
	QuantityEstimated  string
	UnitOfMeasure      string

	LocationLevel   *string
	LocationZone    *string
	DetailDrawingID *string
	CostEstimated   *string
	Status          *string
}

// Tx is the transactional view of the store. All reads performed through
// a Tx observe (and, where the engine supports it, lock) committed state;
// writes become visible only when the surrounding WithinTx commits.
type Tx interface {
	GetMaterial(ctx context.Context, id string) (*Material, error)
	GetMaterialByKey(ctx context.Context, jobID, identifier string) (*Material, error)

	// UpsertMaterial persists the record, creating or replacing by ID.
	// It is idempotent for identical input and returns ErrStoreConflict
	// when the natural key is already held by a different ID.
	UpsertMaterial(ctx context.Context, m *Material) (*Material, error)

	// AppendHistory durably appends one ledger entry, assigning ID and
	// timestamp when absent. Entries are never mutated or deleted.
	AppendHistory(ctx context.Context, e *HistoryEntry) (*HistoryEntry, error)
}

// Store is the persistence boundary for materials and their history.
// Any engine offering atomic single-record upsert plus transactional
// multi-write satisfies it; see internal/store for adapters.
type Store interface {
	GetMaterial(ctx context.Context, id string) (*Material, error)
	GetMaterialByKey(ctx context.Context, jobID, identifier string) (*Material, error)

	// ListHistory returns the material's ledger entries, oldest first.
	ListHistory(ctx context.Context, materialID string) ([]HistoryEntry, error)

	// WithinTx runs fn inside one atomic transaction. If fn returns an
	// error the transaction rolls back and nothing fn wrote is visible.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// EventSink receives best-effort change notifications after each
// committed material mutation. Sink failures are logged by the service
// and never roll back the mutation.
type EventSink interface {
	MaterialChanged(ctx context.Context, materialID, jobID string) error
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ctx context.Context, materialID, jobID string) error

// MaterialChanged calls f.
func (f SinkFunc) MaterialChanged(ctx context.Context, materialID, jobID string) error {
	return f(ctx, materialID, jobID)
}
