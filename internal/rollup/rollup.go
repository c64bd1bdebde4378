// Package rollup implements the write-path orchestrator: after a KPI is
// logged or an override changes, it recomputes the affected cache entries
// leaf-to-root. The walk climbs one parent chain at a time; siblings
// untouched by the event keep their currently cached values, which is an
// accepted eventual-consistency trade-off. Recomputation always derives from
// current children state, never from a delta, so any walk can be re-run to
// self-correct.
package rollup

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/beacon/internal/calc"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Result reports the outcome of one rollup walk. Partial success is a normal
// outcome: UpdatedKpis holds the ids successfully written, in leaf-to-root
// order, even when Err is set. Callers must not assume atomicity across the
// chain; retrying the whole rollup is idempotent.
type Result struct {
	UpdatedKpis []string      `json:"updated_kpis"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Orchestrator walks parent chains and maintains the progress cache. It
// holds no locks across storage calls; per-row upsert semantics in the store
// are the only concurrency control.
type Orchestrator struct {
	store  types.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Orchestrator over the given store. A nil logger defaults to
// slog.Default().
func New(store types.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// RollupProgressToAncestors recomputes the changed KPI's own progress from
// its most recent log, persists it, then walks the ancestor chain to the
// root, recomputing each auto-method ancestor from its children's current
// cached values. Ancestors under a manual override keep their frozen
// percentage but the walk continues past them.
//
// A missing KPI is a benign stop, not an error; the KPI may have been
// deleted concurrently. Any storage failure aborts the walk at that point
// and is reported in Result.Err alongside the ids updated so far.
func (o *Orchestrator) RollupProgressToAncestors(kpiID string) Result {
	start := o.now()
	result := Result{UpdatedKpis: []string{}}

	kpi, err := o.store.GetKpi(kpiID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			result.Duration = o.now().Sub(start)
			return result
		}
		result.Duration = o.now().Sub(start)
		result.Err = fmt.Errorf("fetching kpi %s: %w", kpiID, err)
		return result
	}

	selfProgress, err := o.selfProgress(kpi)
	if err != nil {
		result.Duration = o.now().Sub(start)
		result.Err = err
		return result
	}

	entry := types.ProgressCache{
		KpiID:              kpi.KpiID,
		ProgressPercentage: selfProgress,
		Status:             calc.DeriveStatus(selfProgress, nil),
		WeightedProgress:   selfProgress,
		TotalWeight:        types.DefaultWeight,
		CalculationMethod:  types.MethodAuto,
		LastCalculatedAt:   o.now(),
	}
	if err := o.store.UpsertProgressCache(entry); err != nil {
		result.Duration = o.now().Sub(start)
		result.Err = fmt.Errorf("caching self progress for %s: %w", kpiID, err)
		return result
	}
	result.UpdatedKpis = append(result.UpdatedKpis, kpi.KpiID)

	updated, err := o.climb(kpi.ParentID)
	result.UpdatedKpis = append(result.UpdatedKpis, updated...)
	result.Err = err
	result.Duration = o.now().Sub(start)
	return result
}

// RecalculateParentChain re-runs the ancestor walk starting at the given KPI
// itself, used when a weight or override changed directly rather than via a
// leaf log. If the starting KPI is under a manual override the walk stops
// immediately: there is nothing to recompute and its ancestors already hold
// the override value. Fire-and-forget: failures are logged, never returned.
func (o *Orchestrator) RecalculateParentChain(parentKpiID string) {
	method, err := o.store.GetCacheMethod(parentKpiID)
	if err != nil {
		o.logger.Error("recalculate parent chain: reading cache method",
			"kpi_id", parentKpiID, "error", err)
		return
	}
	if method == types.MethodManualOverride {
		return
	}

	updated, err := o.climb(&parentKpiID)
	if err != nil {
		o.logger.Error("recalculate parent chain aborted",
			"kpi_id", parentKpiID, "updated", updated, "error", err)
	}
}

// selfProgress computes a KPI's own progress from its most recent log:
// completion wins at 100; a numeric value against a positive target yields
// min(100, value/target*100); anything else, including a value without a
// target, is 0.
func (o *Orchestrator) selfProgress(kpi *types.Kpi) (decimal.Decimal, error) {
	log, err := o.store.GetLatestLog(kpi.KpiID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("fetching latest log for %s: %w", kpi.KpiID, err)
	}

	if log.IsCompleted != nil && *log.IsCompleted {
		return hundred, nil
	}
	if log.Value.Valid && kpi.TargetValue.Valid && kpi.TargetValue.Decimal.IsPositive() {
		progress := log.Value.Decimal.Div(kpi.TargetValue.Decimal).Mul(hundred).Round(2)
		return decimal.Min(hundred, progress), nil
	}
	return decimal.Zero, nil
}

// climb walks upward from the given parent id to the root, recomputing each
// auto-method node from its active children and skipping override nodes
// without breaking the traversal. Returns the ids recomputed so far and the
// error that stopped the walk, if any.
func (o *Orchestrator) climb(parentID *string) ([]string, error) {
	updated := []string{}
	current := parentID

	for current != nil {
		id := *current

		method, err := o.store.GetCacheMethod(id)
		if err != nil {
			return updated, fmt.Errorf("reading cache method for %s: %w", id, err)
		}

		if method != types.MethodManualOverride {
			if err := o.recompute(id); err != nil {
				return updated, err
			}
			updated = append(updated, id)
		}

		// Fetch fresh: the parent link may have changed mid-walk.
		parent, err := o.store.GetKpi(id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return updated, nil // concurrently deleted, benign stop
			}
			return updated, fmt.Errorf("fetching ancestor %s: %w", id, err)
		}
		current = parent.ParentID
	}
	return updated, nil
}

// recompute aggregates one node's active children and upserts its cache
// entry with method auto.
func (o *Orchestrator) recompute(kpiID string) error {
	children, err := o.store.GetActiveChildren(kpiID)
	if err != nil {
		return fmt.Errorf("fetching children of %s: %w", kpiID, err)
	}

	weighted := make([]types.WeightedChild, len(children))
	for i, c := range children {
		weighted[i] = c.WeightedChild
	}
	progress := calc.CalculateWeightedProgress(weighted)
	weightedSum, totalWeight := calc.WeightedTotals(weighted)

	entry := types.ProgressCache{
		KpiID:               kpiID,
		ProgressPercentage:  progress,
		Status:              calc.DeriveStatus(progress, nil),
		ChildCount:          len(children),
		CompletedChildCount: calc.CountCompletedChildren(children),
		WeightedProgress:    weightedSum,
		TotalWeight:         totalWeight,
		CalculationMethod:   types.MethodAuto,
		LastCalculatedAt:    o.now(),
	}
	if err := o.store.UpsertProgressCache(entry); err != nil {
		return fmt.Errorf("caching progress for %s: %w", kpiID, err)
	}
	return nil
}
