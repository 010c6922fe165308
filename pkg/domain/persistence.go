package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Movements are append-only and carry no
// update or delete operations.
type Transaction interface {
	Snapshot() TransactionView
	CreateStorageUnit(StorageUnit) (StorageUnit, error)
	UpdateStorageUnit(id string, mutator func(*StorageUnit) error) (StorageUnit, error)
	DeleteStorageUnit(id string) error
	CreateStorageCell(StorageCell) (StorageCell, error)
	UpdateStorageCell(id string, mutator func(*StorageCell) error) (StorageCell, error)
	DeleteStorageCell(id string) error
	CreateVial(Vial) (Vial, error)
	UpdateVial(id string, mutator func(*Vial) error) (Vial, error)
	DeleteVial(id string) error
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	DeleteLot(id string) error
	CreateMovement(Movement) (Movement, error)
	FindStorageUnit(id string) (StorageUnit, bool)
	FindStorageCell(id string) (StorageCell, bool)
	FindVial(id string) (Vial, bool)
	FindLot(id string) (Lot, bool)
}

// TransactionView provides read-only access to snapshot data. It extends the
// rule view with the movement history and per-unit cell listing used by
// persistence consumers.
type TransactionView interface {
	RuleView
	ListUnitCells(unitID string) []StorageCell
	ListMovements() []Movement
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetStorageUnit(id string) (StorageUnit, bool)
	ListStorageUnits() []StorageUnit
	GetStorageCell(id string) (StorageCell, bool)
	ListUnitCells(unitID string) []StorageCell
	GetVial(id string) (Vial, bool)
	ListVials() []Vial
	ListLotVials(lotID string) []Vial
	GetLot(id string) (Lot, bool)
	ListLots() []Lot
	ListAntibodyLots(antibodyID string) []Lot
	ListMovements() []Movement
}
