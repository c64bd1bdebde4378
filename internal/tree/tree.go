// Package tree assembles the read-side KPI hierarchy from a flat list of
// rows already joined with their progress-cache fields. It is pure and does
// no I/O; fetching and joining the rows is the storage layer's job.
package tree

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

// Node is one KPI in the assembled hierarchy, with cache fields defaulted
// and children populated and sorted.
type Node struct {
	KpiID               string              `json:"kpi_id"`
	Title               string              `json:"title"`
	Level               string              `json:"level"`
	ParentID            *string             `json:"parent_kpi_id"`
	TargetValue         decimal.NullDecimal `json:"target_value"`
	Unit                string              `json:"unit"`
	Weight              decimal.Decimal     `json:"weight"`
	SortOrder           int                 `json:"sort_order"`
	ProgressPercentage  decimal.Decimal     `json:"progress_percentage"`
	Status              string              `json:"status"`
	ChildCount          int                 `json:"child_count"`
	CompletedChildCount int                 `json:"completed_child_count"`
	CalculationMethod   string              `json:"calculation_method"`
	LastCalculatedAt    time.Time           `json:"last_calculated_at"`
	Children            []*Node             `json:"children"`
}

// BuildKpiTree reconstructs the nested hierarchy from flat rows. Rows whose
// parent is absent from the input (filtered out upstream) become roots rather
// than being dropped. Rows trapped in a parent cycle are detached from their
// parent and promoted to roots instead of looping forever. Children are
// sorted by sort order ascending, ties broken by id for determinism.
func BuildKpiTree(flat []types.FlatKpi) []*Node {
	byID := make(map[string]*Node, len(flat))
	order := make([]string, 0, len(flat))
	for _, row := range flat {
		if _, exists := byID[row.KpiID]; exists {
			continue // duplicate row, first wins
		}
		byID[row.KpiID] = newNode(row)
		order = append(order, row.KpiID)
	}

	cyclic := findCyclic(byID)

	var roots []*Node
	for _, id := range order {
		node := byID[id]
		if node.ParentID == nil || cyclic[id] {
			roots = append(roots, node)
			continue
		}
		parent, ok := byID[*node.ParentID]
		if !ok {
			// Orphan: declared parent filtered out upstream.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, root := range roots {
		sortChildren(root)
	}
	return roots
}

// newNode converts a flat row to a Node, defaulting missing cache fields:
// weight 1, progress 0, counts 0, status not_started, method auto.
func newNode(row types.FlatKpi) *Node {
	node := &Node{
		KpiID:               row.KpiID,
		Title:               row.Title,
		Level:               row.Level,
		ParentID:            row.ParentID,
		TargetValue:         row.TargetValue,
		Unit:                row.Unit,
		Weight:              types.DefaultWeight,
		SortOrder:           row.SortOrder,
		Status:              types.StatusNotStarted,
		ChildCount:          row.ChildCount,
		CompletedChildCount: row.CompletedChildCount,
		CalculationMethod:   types.MethodAuto,
		LastCalculatedAt:    row.LastCalculatedAt,
		Children:            []*Node{},
	}
	if row.Weight.Valid {
		node.Weight = row.Weight.Decimal
	}
	if row.ProgressPercentage.Valid {
		node.ProgressPercentage = row.ProgressPercentage.Decimal
	}
	if row.Status != "" {
		node.Status = row.Status
	}
	if row.CalculationMethod != "" {
		node.CalculationMethod = row.CalculationMethod
	}
	return node
}

// findCyclic returns the ids of nodes that sit on a parent cycle. Corrupt
// parent pointers are a storage-layer defect; rather than looping forever
// during the recursive sort, cycle members are detached and surfaced as
// roots. Nodes below a cycle are not cyclic themselves: once the cycle
// member is promoted to a root they link to it normally. Amortized O(n);
// every node is walked at most once across all outer iterations.
func findCyclic(byID map[string]*Node) map[string]bool {
	cyclic := make(map[string]bool)
	safe := make(map[string]bool)

	for start := range byID {
		if safe[start] || cyclic[start] {
			continue
		}
		path := make([]string, 0, 8)
		index := make(map[string]int)
		cur := start
		for {
			if safe[cur] || cyclic[cur] {
				break // known territory; the path below it reaches a root
			}
			if pos, ok := index[cur]; ok {
				for _, member := range path[pos:] {
					cyclic[member] = true
				}
				break
			}
			node, ok := byID[cur]
			if !ok {
				break // absent parent; the child is an orphan root
			}
			index[cur] = len(path)
			path = append(path, cur)
			if node.ParentID == nil {
				break
			}
			cur = *node.ParentID
		}
		for _, id := range path {
			if !cyclic[id] {
				safe[id] = true
			}
		}
	}
	return cyclic
}

// sortChildren recursively orders each node's children by sort order
// ascending, ties broken by KpiID.
func sortChildren(node *Node) {
	sort.SliceStable(node.Children, func(i, j int) bool {
		if node.Children[i].SortOrder != node.Children[j].SortOrder {
			return node.Children[i].SortOrder < node.Children[j].SortOrder
		}
		return node.Children[i].KpiID < node.Children[j].KpiID
	})
	for _, child := range node.Children {
		sortChildren(child)
	}
}

// CountTreeNodes returns the total number of nodes in the forest, nested
// children included. Useful as a completeness check against the flat input.
func CountTreeNodes(roots []*Node) int {
	count := 0
	for _, root := range roots {
		count += 1 + CountTreeNodes(root.Children)
	}
	return count
}

// LatestCalculationTime returns the maximum LastCalculatedAt across the
// whole forest, a cache-freshness signal for poll/refresh decisions. The
// zero time is returned for an empty forest.
func LatestCalculationTime(roots []*Node) time.Time {
	var latest time.Time
	for _, root := range roots {
		if root.LastCalculatedAt.After(latest) {
			latest = root.LastCalculatedAt
		}
		if childLatest := LatestCalculationTime(root.Children); childLatest.After(latest) {
			latest = childLatest
		}
	}
	return latest
}
