package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// KPI hierarchy levels. The level is an informational tag describing the time
// horizon of a node; it plays no role in progress calculation.
const (
	LevelVision    = "vision"
	LevelQuarterly = "quarterly"
	LevelMonthly   = "monthly"
	LevelWeekly    = "weekly"
	LevelDaily     = "daily"
)

// validLevels is the set of recognized level values.
var validLevels = map[string]bool{
	LevelVision:    true,
	LevelQuarterly: true,
	LevelMonthly:   true,
	LevelWeekly:    true,
	LevelDaily:     true,
}

// ValidLevel reports whether level is a recognized hierarchy level.
func ValidLevel(level string) bool {
	return validLevels[level]
}

// Kpi represents one node in the goal hierarchy. A Kpi with a nil ParentID is
// a root (vision-level) node. Children are looked up through the parent
// reference; a Kpi never embeds its own children.
type Kpi struct {
	KpiID       string              `json:"kpi_id"`       // UUID v7, generated on creation.
	Title       string              `json:"title"`        // Human-readable title (required, non-empty).
	Level       string              `json:"level"`        // One of the Level constants.
	ParentID    *string             `json:"parent_kpi_id"` // Nil for root nodes.
	TargetValue decimal.NullDecimal `json:"target_value"` // Numeric target for value-logged KPIs.
	Unit        string              `json:"unit"`         // Display unit for TargetValue (optional).
	Weight      decimal.Decimal     `json:"weight"`       // Influence on the parent average; defaults to 1.
	SortOrder   int                 `json:"sort_order"`   // Deterministic child ordering.
	Active      bool                `json:"active"`       // Soft-delete flag; inactive nodes are excluded from aggregation.
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// DefaultWeight is the weight applied when a Kpi or child row carries none.
var DefaultWeight = decimal.NewFromInt(1)

// Validate checks that the Kpi is well-formed for persistence. Weight, when
// set, must be positive.
func (k *Kpi) Validate() error {
	if k.Title == "" {
		return ErrInvalidTitle
	}
	if !ValidLevel(k.Level) {
		return ErrInvalidLevel
	}
	if k.Weight.Sign() < 0 {
		return ErrInvalidWeight
	}
	return nil
}

// KpiLog is one day's observation for a single KPI. Logs are append-only; a
// newer log supersedes the previous one as the KPI's most recent observation,
// and only the most recent log determines a leaf's self progress.
type KpiLog struct {
	LogID       string              `json:"log_id"` // UUID v7, generated on creation.
	KpiID       string              `json:"kpi_id"`
	LogDate     time.Time           `json:"log_date"` // Date precision; time of day is ignored.
	Value       decimal.NullDecimal `json:"value"`    // Numeric observation, if any.
	IsCompleted *bool               `json:"is_completed"` // Checkbox completion, if any.
	Note        string              `json:"note"`
	CreatedAt   time.Time           `json:"created_at"`
}
