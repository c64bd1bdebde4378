// Shared helpers for beacon CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mesh-intelligence/beacon/internal/rollup"
	"github.com/mesh-intelligence/beacon/internal/sqlite"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

// attachStore resolves the data directory, creates a SQLite store, and
// attaches it. The caller must defer store.Detach().
func attachStore() (*sqlite.Store, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfg := types.Config{
		Backend: types.BackendSQLite,
		DataDir: dataDir,
	}

	store := sqlite.NewStore()
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}

	return store, nil
}

// newOrchestrator wraps the store in a rollup orchestrator logging to
// stderr, keeping stdout clean for command output.
func newOrchestrator(store types.Store) *rollup.Orchestrator {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return rollup.New(store, logger)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
