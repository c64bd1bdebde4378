// Tree command prints the KPI hierarchy with cached progress.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/beacon/internal/tree"
	"github.com/mesh-intelligence/beacon/pkg/types"
)

var treeVision string

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the KPI hierarchy with progress",
	Long: `Tree assembles the cached progress rows into the nested hierarchy and
prints it. Progress shown is whatever the cache currently holds; it is
refreshed by log writes, not by this command.

Example:
  beacon tree
  beacon tree --vision <id>
  beacon tree --json`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVar(&treeVision, "vision", "", "limit to one vision's subtree")
}

func runTree(cmd *cobra.Command, args []string) error {
	store, err := attachStore()
	if err != nil {
		return err
	}
	defer store.Detach()

	flat, err := store.ListTree(treeVision)
	if err != nil {
		return fmt.Errorf("list tree: %w", err)
	}
	roots := tree.BuildKpiTree(flat)

	if flagJSON {
		return printJSON(roots)
	}

	if len(roots) == 0 {
		fmt.Println("no KPIs")
		return nil
	}
	for _, root := range roots {
		printNode(root, 0)
	}
	if latest := tree.LatestCalculationTime(roots); !latest.IsZero() {
		fmt.Printf("%d KPIs, last calculated %s\n", tree.CountTreeNodes(roots), latest.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// printNode renders one node and recurses into its children.
func printNode(node *tree.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	marker := ""
	if node.CalculationMethod == types.MethodManualOverride {
		marker = " [override]"
	}
	fmt.Printf("%s%s  %s%% (%s)%s  %s\n",
		indent, node.Title, node.ProgressPercentage.StringFixed(2), node.Status, marker, node.KpiID)
	for _, child := range node.Children {
		printNode(child, depth+1)
	}
}
