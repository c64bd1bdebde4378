// Package sqlite provides the public API for the SQLite-backed Store.
// It exposes the factory function while keeping the implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/beacon/internal/sqlite"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

// NewStore creates a new SQLite store instance. The store is not attached;
// call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewStore()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".beacon-db",
//	})
//	defer store.Detach()
func NewStore() types.Store {
	return sqlite.NewStore()
}
