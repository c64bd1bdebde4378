// Override commands freeze and release a KPI's progress percentage.
package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	overrideKpiID  string
	overrideValue  string
	overrideReason string
	overrideActor  string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage manual progress overrides",
	Long: `Override freezes a KPI's progress at an explicit percentage. The frozen
value still feeds the KPI's own ancestors, but the KPI itself is skipped
by automatic recomputation until the override is cleared.`,
}

var overrideSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Freeze a KPI's progress at an explicit percentage",
	Long: `Set records a manual override and recalculates the ancestor chain so
parents absorb the new value.

Example:
  beacon override set --kpi <id> --value 90 --reason "known launch slip" --by sam`,
	Args: cobra.NoArgs,
	RunE: runOverrideSet,
}

var overrideClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Release a KPI back to automatic calculation",
	Long: `Clear removes the override and recalculates the KPI and its ancestors
from current children state.

Example:
  beacon override clear --kpi <id>`,
	Args: cobra.NoArgs,
	RunE: runOverrideClear,
}

func init() {
	overrideSetCmd.Flags().StringVar(&overrideKpiID, "kpi", "", "KPI id (required)")
	overrideSetCmd.Flags().StringVar(&overrideValue, "value", "", "progress percentage 0-100 (required)")
	overrideSetCmd.Flags().StringVar(&overrideReason, "reason", "", "why the value is overridden")
	overrideSetCmd.Flags().StringVar(&overrideActor, "by", "", "who set the override")
	_ = overrideSetCmd.MarkFlagRequired("kpi")
	_ = overrideSetCmd.MarkFlagRequired("value")

	overrideClearCmd.Flags().StringVar(&overrideKpiID, "kpi", "", "KPI id (required)")
	_ = overrideClearCmd.MarkFlagRequired("kpi")

	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideClearCmd)
}

func runOverrideSet(cmd *cobra.Command, args []string) error {
	value, err := decimal.NewFromString(overrideValue)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", overrideValue, err)
	}

	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	kpi, err := store.GetKpi(overrideKpiID)
	if err != nil {
		return fmt.Errorf("kpi %s: %w", overrideKpiID, err)
	}

	if err := store.SetOverride(overrideKpiID, value, overrideReason, overrideActor); err != nil {
		return fmt.Errorf("set override: %w", err)
	}

	// The overridden KPI is frozen; its ancestors still need to absorb
	// the new value.
	if kpi.ParentID != nil {
		newOrchestrator(store).RecalculateParentChain(*kpi.ParentID)
	}

	fmt.Printf("override set: %s frozen at %s%%\n", overrideKpiID, value.StringFixed(2))
	return nil
}

func runOverrideClear(cmd *cobra.Command, args []string) error {
	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	if _, err := store.GetKpi(overrideKpiID); err != nil {
		return fmt.Errorf("kpi %s: %w", overrideKpiID, err)
	}

	if err := store.ClearOverride(overrideKpiID); err != nil {
		return fmt.Errorf("clear override: %w", err)
	}

	// Resync the released KPI and its ancestors from current children.
	newOrchestrator(store).RecalculateParentChain(overrideKpiID)

	fmt.Printf("override cleared: %s back to auto\n", overrideKpiID)
	return nil
}
