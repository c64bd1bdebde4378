package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Progress status values, derived from a cache entry's percentage plus
// overdue context. Status is a classification, never an independent source of
// truth; it must always be re-derivable from the stored percentage.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusOnTrack    = "on_track"
	StatusAtRisk     = "at_risk"
	StatusCompleted  = "completed"
)

// Calculation methods for a progress cache entry. A manual_override entry
// keeps its percentage frozen against automatic recomputation until the
// override is explicitly cleared.
const (
	MethodAuto           = "auto"
	MethodManualOverride = "manual_override"
)

// ProgressCache is the materialized progress state for one KPI, one row per
// KPI. It is a derived projection, rebuildable from logs and child values at
// any time; the log table remains the system of record.
type ProgressCache struct {
	KpiID               string          `json:"kpi_id"`
	ProgressPercentage  decimal.Decimal `json:"progress_percentage"` // 0-100, two decimal places.
	Status              string          `json:"status"`
	ChildCount          int             `json:"child_count"`
	CompletedChildCount int             `json:"completed_child_count"`
	WeightedProgress    decimal.Decimal `json:"weighted_progress"` // Sum of progress*weight over active children.
	TotalWeight         decimal.Decimal `json:"total_weight"`
	CalculationMethod   string          `json:"calculation_method"` // auto or manual_override.
	OverrideReason      string          `json:"override_reason,omitempty"`
	OverriddenBy        string          `json:"overridden_by,omitempty"`
	LastCalculatedAt    time.Time       `json:"last_calculated_at"`
}

// WeightedChild is the (progress, weight) pair the calculator consumes.
// Either field may be absent: a missing weight counts as 1 and a missing
// progress counts as 0.
type WeightedChild struct {
	Progress decimal.NullDecimal `json:"progress"`
	Weight   decimal.NullDecimal `json:"weight"`
}

// ChildProgress is one active child joined with its cached progress, as
// returned by Store.GetActiveChildren. The storage adapter normalizes the
// join into this flat shape; absent cache rows surface as an invalid
// (missing) Progress.
type ChildProgress struct {
	KpiID string `json:"kpi_id"`
	Title string `json:"title"`
	WeightedChild
}

// FormulaComponent is one child's share of a parent's weighted average,
// exposed for UI transparency.
type FormulaComponent struct {
	KpiID        string          `json:"kpi_id"`
	Title        string          `json:"title"`
	Progress     decimal.Decimal `json:"progress"`
	Weight       decimal.Decimal `json:"weight"`
	Contribution decimal.Decimal `json:"contribution"` // progress * weight / totalWeight, 2dp.
}

// ProgressFormula is the derived, never-persisted breakdown of how a KPI's
// percentage was produced: per-child contributions, the aggregate result, a
// human-readable rendering of the arithmetic, and override metadata when the
// percentage was set by hand.
type ProgressFormula struct {
	Components       []FormulaComponent `json:"components"`
	ResultPercentage decimal.Decimal    `json:"result_percentage"`
	Method           string             `json:"method"`
	FormulaString    string             `json:"formula_string"`
	OverrideReason   string             `json:"override_reason,omitempty"`
	OverriddenBy     string             `json:"overridden_by,omitempty"`
}

// FlatKpi is one KPI row already joined with its progress-cache fields, the
// read-side input to tree building. Cache fields are optional; a KPI that has
// never been calculated has no cache row.
type FlatKpi struct {
	KpiID               string              `json:"kpi_id"`
	Title               string              `json:"title"`
	Level               string              `json:"level"`
	ParentID            *string             `json:"parent_kpi_id"`
	TargetValue         decimal.NullDecimal `json:"target_value"`
	Unit                string              `json:"unit"`
	Weight              decimal.NullDecimal `json:"weight"`
	SortOrder           int                 `json:"sort_order"`
	ProgressPercentage  decimal.NullDecimal `json:"progress_percentage"`
	Status              string              `json:"status"`
	ChildCount          int                 `json:"child_count"`
	CompletedChildCount int                 `json:"completed_child_count"`
	CalculationMethod   string              `json:"calculation_method"`
	LastCalculatedAt    time.Time           `json:"last_calculated_at"`
}
