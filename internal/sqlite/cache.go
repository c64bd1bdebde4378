package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/beacon/internal/calc"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

// UpsertProgressCache inserts or updates the cache row for entry.KpiID. The
// write target is never read first; ON CONFLICT per-row semantics are the
// only concurrency control, so two racing walks resolve to last-write-wins.
func (s *Store) UpsertProgressCache(entry types.ProgressCache) error {
	if entry.KpiID == "" {
		return types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO kpi_progress_cache (
		    kpi_id, progress_percentage, status, child_count, completed_child_count,
		    weighted_progress, total_weight, calculation_method, override_reason,
		    overridden_by, last_calculated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kpi_id) DO UPDATE SET
		    progress_percentage = excluded.progress_percentage,
		    status = excluded.status,
		    child_count = excluded.child_count,
		    completed_child_count = excluded.completed_child_count,
		    weighted_progress = excluded.weighted_progress,
		    total_weight = excluded.total_weight,
		    calculation_method = excluded.calculation_method,
		    override_reason = excluded.override_reason,
		    overridden_by = excluded.overridden_by,
		    last_calculated_at = excluded.last_calculated_at`,
		entry.KpiID, encodeDecimal(entry.ProgressPercentage), entry.Status,
		entry.ChildCount, entry.CompletedChildCount,
		encodeDecimal(entry.WeightedProgress), encodeDecimal(entry.TotalWeight),
		entry.CalculationMethod, entry.OverrideReason, entry.OverriddenBy,
		encodeTime(entry.LastCalculatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting progress cache for %s: %w", entry.KpiID, err)
	}
	return nil
}

// GetCacheMethod returns the calculation method of the KPI's cache row, or
// "" without error when no cache row exists. A missing method means auto;
// absence of an override is the safe default.
func (s *Store) GetCacheMethod(kpiID string) (string, error) {
	if kpiID == "" {
		return "", types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	var method string
	err = db.QueryRow(
		"SELECT calculation_method FROM kpi_progress_cache WHERE kpi_id = ?", kpiID,
	).Scan(&method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("reading cache method for %s: %w", kpiID, err)
	}
	return method, nil
}

// GetProgressCache returns the cache row for the KPI, or ErrNotFound.
func (s *Store) GetProgressCache(kpiID string) (*types.ProgressCache, error) {
	if kpiID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRow(
		`SELECT kpi_id, progress_percentage, status, child_count, completed_child_count,
		    weighted_progress, total_weight, calculation_method, override_reason,
		    overridden_by, last_calculated_at
		 FROM kpi_progress_cache WHERE kpi_id = ?`,
		kpiID,
	)

	var (
		entry        types.ProgressCache
		progress     string
		weightedSum  string
		totalWeight  string
		calculatedAt string
	)
	err = row.Scan(&entry.KpiID, &progress, &entry.Status, &entry.ChildCount,
		&entry.CompletedChildCount, &weightedSum, &totalWeight,
		&entry.CalculationMethod, &entry.OverrideReason, &entry.OverriddenBy,
		&calculatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting progress cache for %s: %w", kpiID, err)
	}

	if entry.ProgressPercentage, err = decodeDecimal(progress); err != nil {
		return nil, err
	}
	if entry.WeightedProgress, err = decodeDecimal(weightedSum); err != nil {
		return nil, err
	}
	if entry.TotalWeight, err = decodeDecimal(totalWeight); err != nil {
		return nil, err
	}
	if entry.LastCalculatedAt, err = decodeTime(calculatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetOverride freezes the KPI's percentage at the given value with method
// manual_override. Child counts and weights from the last auto calculation
// are preserved when a cache row already exists. The caller must follow up
// with a parent-chain recalculation so ancestors absorb the new value.
func (s *Store) SetOverride(kpiID string, value decimal.Decimal, reason, actor string) error {
	entry, err := s.GetProgressCache(kpiID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		entry = &types.ProgressCache{KpiID: kpiID}
	}

	entry.ProgressPercentage = value.Round(2)
	entry.Status = calc.DeriveStatus(entry.ProgressPercentage, nil)
	entry.CalculationMethod = types.MethodManualOverride
	entry.OverrideReason = reason
	entry.OverriddenBy = actor
	entry.LastCalculatedAt = time.Now()
	return s.UpsertProgressCache(*entry)
}

// ClearOverride resets the KPI's cache row to method auto, keeping the last
// percentage until a recalculation resyncs it. Clearing a KPI that has no
// cache row or no override is a no-op. The caller must trigger
// RecalculateParentChain starting at this KPI.
func (s *Store) ClearOverride(kpiID string) error {
	entry, err := s.GetProgressCache(kpiID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	if entry.CalculationMethod != types.MethodManualOverride {
		return nil
	}

	entry.CalculationMethod = types.MethodAuto
	entry.OverrideReason = ""
	entry.OverriddenBy = ""
	entry.LastCalculatedAt = time.Now()
	return s.UpsertProgressCache(*entry)
}
