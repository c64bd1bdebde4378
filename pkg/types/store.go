package types

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Standard error values returned by Store implementations and entity
// validation.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidTitle    = errors.New("title must not be empty")
	ErrInvalidLevel    = errors.New("unknown hierarchy level")
	ErrInvalidWeight   = errors.New("weight must not be negative")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Store defines backend-agnostic access to the KPI hierarchy, the log table,
// and the progress cache. The rollup orchestrator depends only on this
// interface; every call is a potential I/O suspension point and is
// independently fallible.
type Store interface {
	// Attach connects the store to the backend described by config,
	// creating the data directory and schema as needed. Returns
	// ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach,
	// operations return ErrStoreDetached.
	Detach() error

	// GetKpi returns the KPI with the given id, or ErrNotFound.
	GetKpi(id string) (*Kpi, error)

	// SaveKpi persists a KPI. With an empty KpiID it generates a UUID v7
	// and creates the row; otherwise it updates the existing row. Returns
	// the effective id.
	SaveKpi(kpi *Kpi) (string, error)

	// DeactivateKpi soft-deletes a KPI by clearing its active flag. The
	// row, its logs, and its cache entry are retained.
	DeactivateKpi(id string) error

	// GetLatestLog returns the most recent log for the KPI, by log date
	// descending, or ErrNotFound if the KPI has never been logged.
	GetLatestLog(kpiID string) (*KpiLog, error)

	// AppendLog persists a new log entry. Logs are never mutated in
	// place; the new entry supersedes older ones as most recent.
	AppendLog(log *KpiLog) (string, error)

	// GetActiveChildren returns the active children of the given parent,
	// each joined with its cached progress. Children without a cache row
	// have an invalid Progress.
	GetActiveChildren(parentID string) ([]ChildProgress, error)

	// UpsertProgressCache inserts or updates the cache row for
	// entry.KpiID. Per-row durability; never part of a wider transaction.
	UpsertProgressCache(entry ProgressCache) error

	// GetCacheMethod returns the calculation method of the KPI's cache
	// row, or "" (no error) when no cache row exists. Absence of an
	// override is the safe default.
	GetCacheMethod(kpiID string) (string, error)

	// GetProgressCache returns the cache row for the KPI, or ErrNotFound.
	GetProgressCache(kpiID string) (*ProgressCache, error)

	// SetOverride freezes the KPI's percentage at the given value with
	// method manual_override. The caller is expected to follow up with a
	// parent-chain recalculation so ancestors absorb the new value.
	SetOverride(kpiID string, value decimal.Decimal, reason, actor string) error

	// ClearOverride resets the KPI's cache row to method auto. The caller
	// must trigger a recalculation starting at this KPI to resync.
	ClearOverride(kpiID string) error

	// ListTree returns all active KPIs joined with their cache rows, flat,
	// for read-side tree assembly. An empty visionID lists every tree.
	ListTree(visionID string) ([]FlatKpi, error)
}
