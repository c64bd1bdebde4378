// Log command records an observation for a KPI and rolls the change up the
// ancestor chain.
package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

var (
	logKpiID string
	logValue string
	logDone  bool
	logNote  string
	logDate  string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record a value or completion for a KPI",
	Long: `Log appends an observation for the KPI and rolls progress up to the
root. The log write is the source of truth; a failed rollup leaves the
log in place and can be retried by logging again or re-running any
rollup for a descendant.

Example:
  beacon log --kpi <id> --value 5
  beacon log --kpi <id> --done --note "finished early"
  beacon log --kpi <id> --value 3.5 --date 2026-08-30`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logKpiID, "kpi", "", "KPI id (required)")
	logCmd.Flags().StringVar(&logValue, "value", "", "numeric value to record")
	logCmd.Flags().BoolVar(&logDone, "done", false, "mark the KPI completed for the day")
	logCmd.Flags().StringVar(&logNote, "note", "", "free-text note")
	logCmd.Flags().StringVar(&logDate, "date", "", "log date, YYYY-MM-DD (default today)")
	_ = logCmd.MarkFlagRequired("kpi")
}

func runLog(cmd *cobra.Command, args []string) error {
	if logValue == "" && !logDone {
		return fmt.Errorf("provide --value or --done")
	}

	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	entry := &types.KpiLog{KpiID: logKpiID, Note: logNote}
	if logValue != "" {
		value, err := decimal.NewFromString(logValue)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", logValue, err)
		}
		entry.Value = decimal.NullDecimal{Decimal: value, Valid: true}
	}
	if logDone {
		done := true
		entry.IsCompleted = &done
	}
	if logDate != "" {
		date, err := time.Parse("2006-01-02", logDate)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", logDate, err)
		}
		entry.LogDate = date
	}

	if _, err := store.GetKpi(logKpiID); err != nil {
		return fmt.Errorf("kpi %s: %w", logKpiID, err)
	}
	if _, err := store.AppendLog(entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	result := newOrchestrator(store).RollupProgressToAncestors(logKpiID)

	if flagJSON {
		out := struct {
			UpdatedKpis []string `json:"updated_kpis"`
			DurationMs  int64    `json:"duration_ms"`
			Error       string   `json:"error,omitempty"`
		}{
			UpdatedKpis: result.UpdatedKpis,
			DurationMs:  result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			out.Error = result.Err.Error()
		}
		return printJSON(out)
	}

	fmt.Printf("logged %s; updated %d KPI(s) in %s\n", logKpiID, len(result.UpdatedKpis), result.Duration)
	for _, id := range result.UpdatedKpis {
		fmt.Println("  ", id)
	}
	if result.Err != nil {
		// The log itself is durable; report the partial rollup and let
		// the user retry.
		fmt.Println("rollup incomplete:", result.Err)
	}
	return nil
}
