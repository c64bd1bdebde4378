// Add command creates a new KPI node.
package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

var (
	addTitle  string
	addLevel  string
	addParent string
	addTarget string
	addUnit   string
	addWeight string
	addSort   int
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new KPI",
	Long: `Add creates a KPI node at the given hierarchy level.

Root (vision) KPIs have no parent; every other KPI hangs below one.
A numeric target makes the KPI loggable by value; without a target it
is a checkbox KPI completed via "beacon log --done".

Example:
  beacon add --title "Run a marathon" --level vision
  beacon add --title "Weekly distance" --level weekly --parent <id> --target 40 --unit km
  beacon add --title "Strength session" --level daily --parent <id> --weight 2`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "KPI title (required)")
	addCmd.Flags().StringVar(&addLevel, "level", "", "hierarchy level: vision, quarterly, monthly, weekly, daily (required)")
	addCmd.Flags().StringVar(&addParent, "parent", "", "parent KPI id (omit for vision-level roots)")
	addCmd.Flags().StringVar(&addTarget, "target", "", "numeric target value")
	addCmd.Flags().StringVar(&addUnit, "unit", "", "unit for the target value")
	addCmd.Flags().StringVar(&addWeight, "weight", "", "weight in the parent average (default 1)")
	addCmd.Flags().IntVar(&addSort, "sort", 0, "sort order among siblings")
	_ = addCmd.MarkFlagRequired("title")
	_ = addCmd.MarkFlagRequired("level")
}

func runAdd(cmd *cobra.Command, args []string) error {
	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	kpi := &types.Kpi{
		Title:     addTitle,
		Level:     addLevel,
		Unit:      addUnit,
		SortOrder: addSort,
	}
	if addParent != "" {
		if _, err := store.GetKpi(addParent); err != nil {
			return fmt.Errorf("parent %s: %w", addParent, err)
		}
		kpi.ParentID = &addParent
	}
	if addTarget != "" {
		target, err := decimal.NewFromString(addTarget)
		if err != nil {
			return fmt.Errorf("invalid target %q: %w", addTarget, err)
		}
		kpi.TargetValue = decimal.NullDecimal{Decimal: target, Valid: true}
	}
	if addWeight != "" {
		weight, err := decimal.NewFromString(addWeight)
		if err != nil {
			return fmt.Errorf("invalid weight %q: %w", addWeight, err)
		}
		kpi.Weight = weight
	}

	id, err := store.SaveKpi(kpi)
	if err != nil {
		return fmt.Errorf("create kpi: %w", err)
	}

	if flagJSON {
		return printJSON(kpi)
	}
	fmt.Println(id)
	return nil
}
