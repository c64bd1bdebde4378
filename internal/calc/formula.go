package calc

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

// noChildrenFormula is the formula string for a KPI with no child items and
// no override.
const noChildrenFormula = "No child items"

// FormulaOptions carries override metadata into BuildProgressFormula. When
// Override is valid, the result percentage is the override value verbatim and
// the formula string reports what auto-calculation would have produced.
type FormulaOptions struct {
	Override decimal.NullDecimal
	Reason   string
	Actor    string
}

// BuildProgressFormula computes the weighted average over the children and
// renders a transparent breakdown: one component per child with its
// contribution (progress * weight / totalWeight), plus a human-readable
// rendering of the arithmetic. The auto-calculated value is always computed,
// even under an override, so the override never destroys the information of
// what aggregation would have produced.
func BuildProgressFormula(children []types.ChildProgress, opts *FormulaOptions) types.ProgressFormula {
	weighted := make([]types.WeightedChild, len(children))
	for i, c := range children {
		weighted[i] = c.WeightedChild
	}
	calculated := CalculateWeightedProgress(weighted)
	_, totalWeight := WeightedTotals(weighted)

	components := make([]types.FormulaComponent, 0, len(children))
	terms := make([]string, 0, len(children))
	for _, c := range children {
		p := childProgress(c.WeightedChild)
		w := childWeight(c.WeightedChild)
		contribution := decimal.Zero
		if !totalWeight.IsZero() {
			contribution = p.Mul(w).Div(totalWeight).Round(displayPlaces)
		}
		components = append(components, types.FormulaComponent{
			KpiID:        c.KpiID,
			Title:        c.Title,
			Progress:     p,
			Weight:       w,
			Contribution: contribution,
		})
		terms = append(terms, fmt.Sprintf("(%s%% x %s)", p.String(), w.String()))
	}

	formula := types.ProgressFormula{
		Components:       components,
		ResultPercentage: calculated,
		Method:           types.MethodAuto,
	}

	switch {
	case opts != nil && opts.Override.Valid:
		formula.ResultPercentage = opts.Override.Decimal
		formula.Method = types.MethodManualOverride
		formula.OverrideReason = opts.Reason
		formula.OverriddenBy = opts.Actor
		formula.FormulaString = fmt.Sprintf("Manual override: %s%% (auto-calc would be %s%%)",
			opts.Override.Decimal.String(), calculated.StringFixed(displayPlaces))
	case len(children) == 0:
		formula.FormulaString = noChildrenFormula
	default:
		formula.FormulaString = fmt.Sprintf("(%s) / %s = %s%%",
			strings.Join(terms, " + "), totalWeight.String(), calculated.StringFixed(displayPlaces))
	}

	return formula
}
