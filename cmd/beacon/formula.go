// Formula command prints the transparency breakdown for a KPI's progress.
package main

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/beacon/internal/calc"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

var formulaKpiID string

var formulaCmd = &cobra.Command{
	Use:   "formula",
	Short: "Show how a KPI's progress was computed",
	Long: `Formula shows the per-child contributions behind a KPI's weighted
average, and, for overridden KPIs, what auto-calculation would have
produced.

Example:
  beacon formula --kpi <id>
  beacon formula --kpi <id> --json`,
	Args: cobra.NoArgs,
	RunE: runFormula,
}

func init() {
	formulaCmd.Flags().StringVar(&formulaKpiID, "kpi", "", "KPI id (required)")
	_ = formulaCmd.MarkFlagRequired("kpi")
}

func runFormula(cmd *cobra.Command, args []string) error {
	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	if _, err := store.GetKpi(formulaKpiID); err != nil {
		return fmt.Errorf("kpi %s: %w", formulaKpiID, err)
	}

	children, err := store.GetActiveChildren(formulaKpiID)
	if err != nil {
		return fmt.Errorf("children: %w", err)
	}

	var opts *calc.FormulaOptions
	entry, err := store.GetProgressCache(formulaKpiID)
	switch {
	case err == nil && entry.CalculationMethod == types.MethodManualOverride:
		opts = &calc.FormulaOptions{
			Override: decimal.NullDecimal{Decimal: entry.ProgressPercentage, Valid: true},
			Reason:   entry.OverrideReason,
			Actor:    entry.OverriddenBy,
		}
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return fmt.Errorf("progress cache: %w", err)
	}

	formula := calc.BuildProgressFormula(children, opts)

	if flagJSON {
		return printJSON(formula)
	}

	fmt.Println(formula.FormulaString)
	for _, comp := range formula.Components {
		fmt.Printf("  %-30s %s%% x %s -> %s\n",
			comp.Title, comp.Progress.StringFixed(2), comp.Weight.String(), comp.Contribution.StringFixed(2))
	}
	if formula.Method == types.MethodManualOverride && formula.OverrideReason != "" {
		fmt.Printf("override reason: %s (by %s)\n", formula.OverrideReason, formula.OverriddenBy)
	}
	return nil
}
