package core

import (
	"fmt"
	"os"

	"github.com/ditar94/LabAid-sub000/internal/infra/persistence/memory"
	"github.com/ditar94/LabAid-sub000/internal/infra/persistence/postgres"
	"github.com/ditar94/LabAid-sub000/internal/infra/persistence/sqlite"
	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// NewDefaultRulesEngine returns an engine with the invariant rules every
// deployment runs: cell exclusivity and grid bounds.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewCellExclusivityRule())
	engine.Register(NewGridBoundsRule())
	return engine
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LABAID_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LABAID_SQLITE_PATH: path to sqlite file (default ./labaid.db)
//	LABAID_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("LABAID_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("LABAID_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("LABAID_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
