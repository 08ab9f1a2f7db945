package core

import (
	"fmt"
	"os"

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/infra/persistence/postgres"
	"lineagecore/internal/infra/persistence/sqlite"
	"lineagecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LINEAGECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LINEAGECORE_SQLITE_PATH: path to sqlite file (default ./lineagecore.db)
//	LINEAGECORE_POSTGRES_DSN: server DSN, required for postgres
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := StorageDriver(os.Getenv("LINEAGECORE_STORAGE_DRIVER"))
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("LINEAGECORE_SQLITE_PATH")
		if path == "" {
			path = "lineagecore.db"
		}
		store, err := sqlite.NewStore(path, engine)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case StoragePostgres:
		dsn := os.Getenv("LINEAGECORE_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires LINEAGECORE_POSTGRES_DSN")
		}
		store, err := postgres.NewStore(dsn, engine)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewMemoryStore constructs the in-memory store used by tests and
// ephemeral deployments.
func NewMemoryStore(engine *domain.RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}
