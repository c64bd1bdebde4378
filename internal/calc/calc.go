// Package calc implements the pure progress arithmetic for the rollup
// engine: weighted-average aggregation, status derivation, and the
// human-readable formula breakdown. All functions are side-effect-free and
// total over their input domain; malformed or empty input resolves to zero,
// never to an error.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

// Status boundary values. CountCompletedChildren and DeriveStatus share the
// completion threshold so a child counted as completed always classifies as
// completed.
var (
	hundred       = decimal.NewFromInt(100)
	onTrackMin    = decimal.NewFromInt(70)
	inProgressMin = decimal.NewFromInt(30)
	overdueMax    = decimal.NewFromInt(80)
)

// displayPlaces is the number of decimal places kept at the final display
// rounding step. Intermediate sums retain full precision.
const displayPlaces = 2

// StatusOptions carries caller-supplied context for DeriveStatus. How a KPI
// becomes overdue is the caller's concern (a deadline comparison elsewhere).
type StatusOptions struct {
	IsOverdue bool
}

// childWeight returns the effective weight of a child, defaulting to 1 when
// the row carries none.
func childWeight(c types.WeightedChild) decimal.Decimal {
	if c.Weight.Valid {
		return c.Weight.Decimal
	}
	return types.DefaultWeight
}

// childProgress returns the effective progress of a child, defaulting to 0
// when the child has no cache entry yet.
func childProgress(c types.WeightedChild) decimal.Decimal {
	if c.Progress.Valid {
		return c.Progress.Decimal
	}
	return decimal.Zero
}

// WeightedTotals sums progress*weight and weight over all children at full
// precision, applying the missing-field defaults.
func WeightedTotals(children []types.WeightedChild) (weightedSum, totalWeight decimal.Decimal) {
	for _, c := range children {
		w := childWeight(c)
		weightedSum = weightedSum.Add(childProgress(c).Mul(w))
		totalWeight = totalWeight.Add(w)
	}
	return weightedSum, totalWeight
}

// CalculateWeightedProgress computes sum(progress_i * weight_i) /
// sum(weight_i) over the children, rounded half-up to two decimal places.
// An empty list or an all-zero total weight yields 0.
func CalculateWeightedProgress(children []types.WeightedChild) decimal.Decimal {
	if len(children) == 0 {
		return decimal.Zero
	}
	weightedSum, totalWeight := WeightedTotals(children)
	if totalWeight.IsZero() {
		return decimal.Zero
	}
	return weightedSum.Div(totalWeight).Round(displayPlaces)
}

// DeriveStatus classifies a progress percentage. Decision order, first match
// wins: >= 100 completed; exactly 0 not_started; overdue and < 80 at_risk;
// >= 70 on_track; >= 30 in_progress; otherwise at_risk.
func DeriveStatus(progress decimal.Decimal, opts *StatusOptions) string {
	switch {
	case progress.GreaterThanOrEqual(hundred):
		return types.StatusCompleted
	case progress.IsZero():
		return types.StatusNotStarted
	case opts != nil && opts.IsOverdue && progress.LessThan(overdueMax):
		return types.StatusAtRisk
	case progress.GreaterThanOrEqual(onTrackMin):
		return types.StatusOnTrack
	case progress.GreaterThanOrEqual(inProgressMin):
		return types.StatusInProgress
	default:
		return types.StatusAtRisk
	}
}

// CountCompletedChildren counts children whose progress is at or past 100,
// the same threshold DeriveStatus uses for completed.
func CountCompletedChildren(children []types.ChildProgress) int {
	count := 0
	for _, c := range children {
		if childProgress(c.WeightedChild).GreaterThanOrEqual(hundred) {
			count++
		}
	}
	return count
}
