// Remove command soft-deletes a KPI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeKpiID string

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Deactivate a KPI",
	Long: `Remove soft-deletes a KPI: the node and its logs are retained but it
drops out of aggregation and tree views, and its parent chain is
recalculated without it.

Example:
  beacon remove --kpi <id>`,
	Args: cobra.NoArgs,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVar(&removeKpiID, "kpi", "", "KPI id (required)")
	_ = removeCmd.MarkFlagRequired("kpi")
}

func runRemove(cmd *cobra.Command, args []string) error {
	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	kpi, err := store.GetKpi(removeKpiID)
	if err != nil {
		return fmt.Errorf("kpi %s: %w", removeKpiID, err)
	}

	if err := store.DeactivateKpi(removeKpiID); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}

	if kpi.ParentID != nil {
		newOrchestrator(store).RecalculateParentChain(*kpi.ParentID)
	}

	fmt.Println("deactivated", removeKpiID)
	return nil
}
