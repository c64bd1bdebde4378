package rollup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

// fakeStore is an in-memory Store for orchestrator tests, with per-call
// failure injection keyed by "operation/kpiID".
type fakeStore struct {
	kpis  map[string]*types.Kpi
	logs  map[string]*types.KpiLog // latest log per KPI
	cache map[string]types.ProgressCache
	fail  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kpis:  make(map[string]*types.Kpi),
		logs:  make(map[string]*types.KpiLog),
		cache: make(map[string]types.ProgressCache),
		fail:  make(map[string]error),
	}
}

func (s *fakeStore) failOn(op, id string, err error) {
	s.fail[op+"/"+id] = err
}

func (s *fakeStore) check(op, id string) error {
	return s.fail[op+"/"+id]
}

func (s *fakeStore) Attach(types.Config) error { return nil }
func (s *fakeStore) Detach() error             { return nil }

func (s *fakeStore) GetKpi(id string) (*types.Kpi, error) {
	if err := s.check("get", id); err != nil {
		return nil, err
	}
	kpi, ok := s.kpis[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return kpi, nil
}

func (s *fakeStore) SaveKpi(kpi *types.Kpi) (string, error) {
	s.kpis[kpi.KpiID] = kpi
	return kpi.KpiID, nil
}

func (s *fakeStore) DeactivateKpi(id string) error {
	if kpi, ok := s.kpis[id]; ok {
		kpi.Active = false
	}
	return nil
}

func (s *fakeStore) GetLatestLog(kpiID string) (*types.KpiLog, error) {
	if err := s.check("log", kpiID); err != nil {
		return nil, err
	}
	log, ok := s.logs[kpiID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return log, nil
}

func (s *fakeStore) AppendLog(log *types.KpiLog) (string, error) {
	s.logs[log.KpiID] = log
	return log.LogID, nil
}

func (s *fakeStore) GetActiveChildren(parentID string) ([]types.ChildProgress, error) {
	if err := s.check("children", parentID); err != nil {
		return nil, err
	}
	var out []types.ChildProgress
	for _, kpi := range s.kpis {
		if !kpi.Active || kpi.ParentID == nil || *kpi.ParentID != parentID {
			continue
		}
		child := types.ChildProgress{KpiID: kpi.KpiID, Title: kpi.Title}
		child.Weight = decimal.NullDecimal{Decimal: kpi.Weight, Valid: true}
		if entry, ok := s.cache[kpi.KpiID]; ok {
			child.Progress = decimal.NullDecimal{Decimal: entry.ProgressPercentage, Valid: true}
		}
		out = append(out, child)
	}
	return out, nil
}

func (s *fakeStore) UpsertProgressCache(entry types.ProgressCache) error {
	if err := s.check("upsert", entry.KpiID); err != nil {
		return err
	}
	s.cache[entry.KpiID] = entry
	return nil
}

func (s *fakeStore) GetCacheMethod(kpiID string) (string, error) {
	if err := s.check("method", kpiID); err != nil {
		return "", err
	}
	entry, ok := s.cache[kpiID]
	if !ok {
		return "", nil
	}
	return entry.CalculationMethod, nil
}

func (s *fakeStore) GetProgressCache(kpiID string) (*types.ProgressCache, error) {
	entry, ok := s.cache[kpiID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &entry, nil
}

func (s *fakeStore) SetOverride(kpiID string, value decimal.Decimal, reason, actor string) error {
	entry := s.cache[kpiID]
	entry.KpiID = kpiID
	entry.ProgressPercentage = value
	entry.CalculationMethod = types.MethodManualOverride
	entry.OverrideReason = reason
	entry.OverriddenBy = actor
	s.cache[kpiID] = entry
	return nil
}

func (s *fakeStore) ClearOverride(kpiID string) error {
	entry := s.cache[kpiID]
	entry.CalculationMethod = types.MethodAuto
	entry.OverrideReason = ""
	entry.OverriddenBy = ""
	s.cache[kpiID] = entry
	return nil
}

func (s *fakeStore) ListTree(string) ([]types.FlatKpi, error) { return nil, nil }

var _ types.Store = (*fakeStore)(nil)

// addKpi registers a KPI; parent may be empty for roots, target empty for
// checkbox KPIs.
func (s *fakeStore) addKpi(id, parent, target string, weight int64) {
	kpi := &types.Kpi{
		KpiID:  id,
		Title:  id,
		Level:  types.LevelDaily,
		Weight: decimal.NewFromInt(weight),
		Active: true,
	}
	if parent != "" {
		p := parent
		kpi.ParentID = &p
	}
	if target != "" {
		kpi.TargetValue = decimal.NullDecimal{Decimal: decimal.RequireFromString(target), Valid: true}
	}
	s.kpis[id] = kpi
}

func (s *fakeStore) logValue(kpiID, value string) {
	log := &types.KpiLog{LogID: "log-" + kpiID, KpiID: kpiID, LogDate: time.Now()}
	if value != "" {
		log.Value = decimal.NullDecimal{Decimal: decimal.RequireFromString(value), Valid: true}
	}
	s.logs[kpiID] = log
}

func (s *fakeStore) logCompleted(kpiID string) {
	done := true
	s.logs[kpiID] = &types.KpiLog{LogID: "log-" + kpiID, KpiID: kpiID, LogDate: time.Now(), IsCompleted: &done}
}

func (s *fakeStore) progressOf(t *testing.T, kpiID string) decimal.Decimal {
	t.Helper()
	entry, ok := s.cache[kpiID]
	require.True(t, ok, "no cache entry for %s", kpiID)
	return entry.ProgressPercentage
}

func newOrchestrator(s types.Store) *Orchestrator {
	return New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRollupLeafWithTarget(t *testing.T) {
	// End-to-end scenario: leaf with target 10 logged at 5 -> 50,
	// parent with a sibling at 100 -> (50+100)/2 = 75.
	s := newFakeStore()
	s.addKpi("parent", "", "", 1)
	s.addKpi("leaf", "parent", "10", 1)
	s.addKpi("sibling", "parent", "", 1)
	s.logValue("leaf", "5")
	s.logCompleted("sibling")

	o := newOrchestrator(s)
	first := o.RollupProgressToAncestors("sibling")
	require.NoError(t, first.Err)

	result := o.RollupProgressToAncestors("leaf")
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"leaf", "parent"}, result.UpdatedKpis)

	assert.True(t, s.progressOf(t, "leaf").Equal(decimal.NewFromInt(50)))
	assert.Equal(t, types.StatusInProgress, s.cache["leaf"].Status)

	assert.True(t, s.progressOf(t, "parent").Equal(decimal.NewFromInt(75)))
	assert.Equal(t, types.StatusOnTrack, s.cache["parent"].Status)
	assert.Equal(t, 2, s.cache["parent"].ChildCount)
	assert.Equal(t, 1, s.cache["parent"].CompletedChildCount)
}

func TestRollupCompletionBeatsValue(t *testing.T) {
	s := newFakeStore()
	s.addKpi("leaf", "", "10", 1)
	done := true
	s.logs["leaf"] = &types.KpiLog{
		KpiID:       "leaf",
		LogDate:     time.Now(),
		Value:       decimal.NullDecimal{Decimal: decimal.NewFromInt(3), Valid: true},
		IsCompleted: &done,
	}

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	assert.True(t, s.progressOf(t, "leaf").Equal(decimal.NewFromInt(100)))
	assert.Equal(t, types.StatusCompleted, s.cache["leaf"].Status)
}

func TestRollupValueCappedAtHundred(t *testing.T) {
	s := newFakeStore()
	s.addKpi("leaf", "", "10", 1)
	s.logValue("leaf", "25")

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	assert.True(t, s.progressOf(t, "leaf").Equal(decimal.NewFromInt(100)))
}

func TestRollupValueWithoutTargetIsZero(t *testing.T) {
	// Numeric progress requires a target to be meaningful.
	s := newFakeStore()
	s.addKpi("leaf", "", "", 1)
	s.logValue("leaf", "7")

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	assert.True(t, s.progressOf(t, "leaf").IsZero())
	assert.Equal(t, types.StatusNotStarted, s.cache["leaf"].Status)
}

func TestRollupNoLogIsZero(t *testing.T) {
	s := newFakeStore()
	s.addKpi("leaf", "", "10", 1)

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	assert.True(t, s.progressOf(t, "leaf").IsZero())
}

func TestRollupMissingKpiIsBenign(t *testing.T) {
	s := newFakeStore()

	result := newOrchestrator(s).RollupProgressToAncestors("ghost")

	assert.NoError(t, result.Err)
	assert.Empty(t, result.UpdatedKpis)
}

func TestRollupWeightedChain(t *testing.T) {
	// Weighted pair: (85*2 + 60*1) / 3 = 76.67, propagated two levels.
	s := newFakeStore()
	s.addKpi("vision", "", "", 1)
	s.addKpi("q1", "vision", "", 1)
	s.addKpi("heavy", "q1", "100", 2)
	s.addKpi("light", "q1", "100", 1)
	s.logValue("heavy", "85")
	s.logValue("light", "60")

	o := newOrchestrator(s)
	require.NoError(t, o.RollupProgressToAncestors("light").Err)
	result := o.RollupProgressToAncestors("heavy")

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"heavy", "q1", "vision"}, result.UpdatedKpis)
	assert.True(t, s.progressOf(t, "q1").Equal(decimal.RequireFromString("76.67")),
		"got %s", s.progressOf(t, "q1"))
	assert.True(t, s.progressOf(t, "vision").Equal(decimal.RequireFromString("76.67")))
}

func TestRollupIdempotent(t *testing.T) {
	s := newFakeStore()
	s.addKpi("parent", "", "", 1)
	s.addKpi("leaf", "parent", "10", 1)
	s.logValue("leaf", "7")

	o := newOrchestrator(s)
	first := o.RollupProgressToAncestors("leaf")
	require.NoError(t, first.Err)
	snapshot := map[string]string{}
	for id, entry := range s.cache {
		snapshot[id] = entry.ProgressPercentage.String() + "/" + entry.Status
	}

	second := o.RollupProgressToAncestors("leaf")
	require.NoError(t, second.Err)
	assert.Equal(t, first.UpdatedKpis, second.UpdatedKpis)
	for id, entry := range s.cache {
		assert.Equal(t, snapshot[id], entry.ProgressPercentage.String()+"/"+entry.Status, id)
	}
}

func TestRollupOverrideIsolation(t *testing.T) {
	// grand <- mid (override 90) <- leaf. The override is preserved, the
	// walk continues, and grand absorbs the override's stored value.
	s := newFakeStore()
	s.addKpi("grand", "", "", 1)
	s.addKpi("mid", "grand", "", 1)
	s.addKpi("leaf", "mid", "10", 1)
	s.logValue("leaf", "2")
	require.NoError(t, s.SetOverride("mid", decimal.NewFromInt(90), "strategic call", "dana"))

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	// mid is skipped: not in the updated list, percentage untouched.
	assert.Equal(t, []string{"leaf", "grand"}, result.UpdatedKpis)
	assert.True(t, s.progressOf(t, "mid").Equal(decimal.NewFromInt(90)))
	assert.Equal(t, types.MethodManualOverride, s.cache["mid"].CalculationMethod)
	// grand aggregates mid's overridden value, not its auto value.
	assert.True(t, s.progressOf(t, "grand").Equal(decimal.NewFromInt(90)))
}

func TestRollupPartialFailureReportsProgress(t *testing.T) {
	s := newFakeStore()
	s.addKpi("grand", "", "", 1)
	s.addKpi("mid", "grand", "", 1)
	s.addKpi("leaf", "mid", "10", 1)
	s.logValue("leaf", "10")
	s.failOn("upsert", "grand", errors.New("disk full"))

	result := newOrchestrator(s).RollupProgressToAncestors("leaf")

	require.Error(t, result.Err)
	assert.ErrorContains(t, result.Err, "disk full")
	// leaf and mid were written before the failure.
	assert.Equal(t, []string{"leaf", "mid"}, result.UpdatedKpis)
}

func TestRollupDurationRecorded(t *testing.T) {
	s := newFakeStore()
	s.addKpi("leaf", "", "10", 1)
	s.logValue("leaf", "5")

	o := New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	o.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	result := o.RollupProgressToAncestors("leaf")

	require.NoError(t, result.Err)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRecalculateParentChain(t *testing.T) {
	s := newFakeStore()
	s.addKpi("vision", "", "", 1)
	s.addKpi("q1", "vision", "", 1)
	s.addKpi("leaf", "q1", "10", 1)
	s.addKpi("other", "q1", "", 1)
	s.logValue("leaf", "5")
	s.logCompleted("other")

	o := newOrchestrator(s)
	require.NoError(t, o.RollupProgressToAncestors("other").Err)
	require.NoError(t, o.RollupProgressToAncestors("leaf").Err)
	require.True(t, s.progressOf(t, "q1").Equal(decimal.NewFromInt(75)))

	// Reweight the leaf, then recalculate from its parent directly:
	// (50*3 + 100*1) / 4 = 62.5.
	s.kpis["leaf"].Weight = decimal.NewFromInt(3)
	o.RecalculateParentChain("q1")

	assert.True(t, s.progressOf(t, "q1").Equal(decimal.RequireFromString("62.5")))
	assert.True(t, s.progressOf(t, "vision").Equal(decimal.RequireFromString("62.5")))
}

func TestRecalculateParentChainStopsAtOverride(t *testing.T) {
	// Unlike the leaf-triggered path, starting on an overridden KPI stops
	// immediately: no ancestors are touched.
	s := newFakeStore()
	s.addKpi("vision", "", "", 1)
	s.addKpi("q1", "vision", "", 1)
	require.NoError(t, s.SetOverride("q1", decimal.NewFromInt(40), "", ""))

	o := newOrchestrator(s)
	o.RecalculateParentChain("q1")

	_, visionCached := s.cache["vision"]
	assert.False(t, visionCached)
	assert.True(t, s.progressOf(t, "q1").Equal(decimal.NewFromInt(40)))
}

func TestRecalculateParentChainLogsFailures(t *testing.T) {
	s := newFakeStore()
	s.addKpi("q1", "", "", 1)
	s.failOn("children", "q1", fmt.Errorf("connection reset"))

	// Fire-and-forget: must not panic or return anything.
	newOrchestrator(s).RecalculateParentChain("q1")

	_, cached := s.cache["q1"]
	assert.False(t, cached)
}
