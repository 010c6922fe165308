// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by the storage engine.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStorageUnit identifies a grid container record.
	EntityStorageUnit EntityType = "storage_unit"
	// EntityStorageCell identifies a single grid cell record.
	EntityStorageCell EntityType = "storage_cell"
	// EntityVial identifies an individual vial record.
	EntityVial EntityType = "vial"
	// EntityLot identifies a received lot record.
	EntityLot EntityType = "lot"
	// EntityMovement identifies a vial movement audit record.
	EntityMovement EntityType = "movement"
)

// VialStatus represents the canonical vial lifecycle states.
type VialStatus string

// Canonical vial statuses used for FEFO eligibility and occupancy validation.
const (
	// VialStatusSealed indicates an unopened vial available for use.
	VialStatusSealed VialStatus = "sealed"
	// VialStatusOpened indicates a vial in active use.
	VialStatusOpened   VialStatus = "opened"
	VialStatusDepleted VialStatus = "depleted"
)

// QCStatus enumerates lot quality-control outcomes.
type QCStatus string

// Canonical QC statuses recorded against lots on receipt and review.
const (
	QCStatusPending QCStatus = "pending"
	QCStatusPassed  QCStatus = "passed"
	QCStatusFailed  QCStatus = "failed"
)

// FEFOLabel classifies a lot's consumption priority under
// first-expired-first-out ordering.
type FEFOLabel string

// FEFO labels assigned by the ranker when at least two lots are eligible.
const (
	// FEFOCurrent marks the lot that should be consumed first.
	FEFOCurrent FEFOLabel = "current"
	// FEFONew marks an eligible lot that waits behind the current one.
	FEFONew FEFOLabel = "new"
	// FEFONone marks a lot for which no ordering guidance applies.
	FEFONone FEFOLabel = "none"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageUnit describes one rectangular grid container holding vials.
type StorageUnit struct {
	Base
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	// Temperature is a presentational label such as "-20°C".
	Temperature *string `json:"temperature,omitempty"`
	// IsTemporary marks a system-managed overflow container. Temporary units
	// grow on demand and cannot be deleted.
	IsTemporary bool `json:"is_temporary"`
}

// StorageCell is one addressable slot within a storage unit's grid. Cells are
// unique per (unit, row, col) and hold at most one vial.
type StorageCell struct {
	Base
	UnitID string  `json:"unit_id"`
	Row    int     `json:"row"`
	Col    int     `json:"col"`
	Label  *string `json:"label,omitempty"`
	VialID *string `json:"vial_id"`
}

// Vial is the smallest individually located inventory unit. A vial with a nil
// CellID is unstored.
type Vial struct {
	Base
	LotID  string     `json:"lot_id"`
	Status VialStatus `json:"status"`
	CellID *string    `json:"cell_id"`
}

// Lot is a received batch of one antibody, tracked separately for expiration
// and QC. The vial counts are derived aggregates maintained by the store.
type Lot struct {
	Base
	AntibodyID     string     `json:"antibody_id"`
	LotNumber      string     `json:"lot_number"`
	ExpirationDate *time.Time `json:"expiration_date"`
	QCStatus       QCStatus   `json:"qc_status"`
	Archived       bool       `json:"archived"`
	SealedCount    int        `json:"sealed_count"`
	OpenedCount    int        `json:"opened_count"`
	DepletedCount  int        `json:"depleted_count"`
	TotalCount     int        `json:"total_count"`
}

// Movement records a single vial placement applied by a transfer. Movements
// are append-only and written in the same transaction as the move itself.
// Positions carry grid display names such as "B7"; a nil FromUnitID means the
// vial was unstored before the move.
type Movement struct {
	Base
	VialID       string    `json:"vial_id"`
	LotID        string    `json:"lot_id"`
	FromUnitID   *string   `json:"from_unit_id"`
	FromPosition *string   `json:"from_position,omitempty"`
	ToUnitID     string    `json:"to_unit_id"`
	ToPosition   string    `json:"to_position"`
	Actor        string    `json:"actor"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
