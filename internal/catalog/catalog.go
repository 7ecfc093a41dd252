// Package catalog stores the run catalog: one record per accepted draw,
// carrying the dataset index, the seed string, and the flattened metadata.
// Three backends share one contract: an in-memory map, a SQLite file, and
// Postgres.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Record is one accepted run.
type Record struct {
	Index    int            `json:"index"`
	Seed     string         `json:"seed"`
	Metadata map[string]any `json:"metadata"`
}

// ErrNotFound reports a missing run index.
var ErrNotFound = errors.New("catalog: record not found")

// Store is the run-catalog contract shared by all backends.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Get(ctx context.Context, index int) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Driver identifies a catalog backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open selects a catalog Store implementation using environment variables.
//
//	LENSFORGE_CATALOG_DRIVER: memory|sqlite|postgres (default memory)
//	LENSFORGE_CATALOG_SQLITE_PATH: database file when driver=sqlite
//	LENSFORGE_CATALOG_POSTGRES_DSN: connection string when driver=postgres
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("LENSFORGE_CATALOG_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(os.Getenv("LENSFORGE_CATALOG_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("LENSFORGE_CATALOG_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown catalog driver %s", driver)
	}
}
