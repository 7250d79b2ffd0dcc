package engine_test

import (
	"testing"

	"sitebrief/internal/engine"
)

func seedActivity(t *testing.T, env testEnv, date, title, area string, labor int, contractorIDs []string) {
	t.Helper()
	_, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID:     "site-1",
		Date:          date,
		Title:         title,
		Area:          area,
		LaborCount:    labor,
		ContractorIDs: contractorIDs,
		ActorID:       "foreman",
	})
	if err != nil {
		t.Fatalf("seed %s/%s: %v", date, title, err)
	}
}

func TestDailyTotals(t *testing.T) {
	env := newTestEnv(t)
	volt := env.addContractor(t, "Volt Electric", "electrical", "Active")
	pipe := env.addContractor(t, "PipeWorks", "plumbing", "Active")

	seedActivity(t, env, "2024-01-05", "panel upgrade", "A-Wing", 5, []string{volt})
	seedActivity(t, env, "2024-01-05", "rough-in", "A-Wing", 3, []string{volt, pipe})
	seedActivity(t, env, "2024-01-05", "cleanup", "", 2, nil)

	stats, err := env.Engine.DailyTotals(env.Ctx, "site-1", "2024-01-05")
	if err != nil {
		t.Fatalf("daily totals: %v", err)
	}
	if stats.TotalActivities != 3 || stats.TotalLabor != 10 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.TotalUniqueContractors != 2 {
		t.Fatalf("expected 2 unique contractors, got %d", stats.TotalUniqueContractors)
	}
	if stats.ByArea["A-Wing"] != 8 {
		t.Fatalf("expected A-Wing labor 8, got %d", stats.ByArea["A-Wing"])
	}
	if _, ok := stats.ByArea[""]; ok {
		t.Fatalf("blank area must not appear in by_area")
	}
	// Attribution, not splitting: the shared activity counts fully for both.
	if stats.ByContractor["Volt Electric"] != 8 || stats.ByContractor["PipeWorks"] != 3 {
		t.Fatalf("unexpected by_contractor: %v", stats.ByContractor)
	}
}

func TestDailyTotalsEmptyDay(t *testing.T) {
	env := newTestEnv(t)
	stats, err := env.Engine.DailyTotals(env.Ctx, "site-1", "2024-01-05")
	if err != nil {
		t.Fatalf("daily totals: %v", err)
	}
	if stats.TotalActivities != 0 || stats.TotalLabor != 0 || stats.TotalUniqueContractors != 0 {
		t.Fatalf("expected zeroes, got %+v", stats)
	}
	if stats.ByArea == nil || stats.ByContractor == nil {
		t.Fatalf("maps must be non-nil on empty days")
	}
}

func TestRangeTotalsZeroFilledSeries(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env, "2024-01-05", "pour slab", "B-Wing", 6, nil)
	seedActivity(t, env, "2024-01-07", "strip forms", "B-Wing", 4, nil)

	stats, err := env.Engine.RangeTotals(env.Ctx, "site-1", "2024-01-05", "2024-01-07")
	if err != nil {
		t.Fatalf("range totals: %v", err)
	}
	if len(stats.DailySeries) != 3 {
		t.Fatalf("expected 3 series points, got %d", len(stats.DailySeries))
	}
	mid := stats.DailySeries[1]
	if mid.Date != "2024-01-06" || mid.TotalLabor != 0 || mid.TotalActivities != 0 {
		t.Fatalf("expected zero-filled middle day, got %+v", mid)
	}
	if stats.DailySeries[0].TotalLabor != 6 || stats.DailySeries[2].TotalLabor != 4 {
		t.Fatalf("unexpected series: %+v", stats.DailySeries)
	}
	if stats.Summary.TotalLabor != 10 || stats.Summary.TotalActivities != 2 {
		t.Fatalf("unexpected summary: %+v", stats.Summary)
	}
	// Per-day labor averages over days with work, not calendar days.
	if stats.Summary.LaborPerDay != 5 {
		t.Fatalf("expected labor_per_day 5, got %v", stats.Summary.LaborPerDay)
	}
	if stats.AreaBreakdown["B-Wing"] != 10 {
		t.Fatalf("unexpected area breakdown: %v", stats.AreaBreakdown)
	}
}

func TestRangeTotalsAccumulatesAcrossLongRanges(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env, "2024-01-05", "pour slab", "", 6, nil)
	seedActivity(t, env, "2024-01-06", "strip forms", "", 4, nil)

	stats, err := env.Engine.RangeTotals(env.Ctx, "site-1", "2024-01-05", "2024-01-08")
	if err != nil {
		t.Fatalf("range totals: %v", err)
	}
	if len(stats.DailySeries) != 4 {
		t.Fatalf("expected 4 series points, got %d", len(stats.DailySeries))
	}
	want := []int{6, 4, 0, 0}
	for i, labor := range want {
		if stats.DailySeries[i].TotalLabor != labor {
			t.Fatalf("day %d: want labor %d, got %d (%+v)", i, labor, stats.DailySeries[i].TotalLabor, stats.DailySeries)
		}
	}
	// The series must account for every unit the summary reports.
	sum := 0
	for _, p := range stats.DailySeries {
		sum += p.TotalLabor
	}
	if sum != stats.Summary.TotalLabor {
		t.Fatalf("series sums to %d, summary says %d", sum, stats.Summary.TotalLabor)
	}
}

func TestRangeTotalsRounding(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env, "2024-01-05", "a", "", 5, nil)
	seedActivity(t, env, "2024-01-06", "b", "", 3, nil)
	seedActivity(t, env, "2024-01-07", "c", "", 2, nil)

	stats, err := env.Engine.RangeTotals(env.Ctx, "site-1", "2024-01-05", "2024-01-07")
	if err != nil {
		t.Fatalf("range totals: %v", err)
	}
	if stats.Summary.LaborPerDay != 3.33 {
		t.Fatalf("expected 3.33, got %v", stats.Summary.LaborPerDay)
	}
}

func TestRangeTotalsInvertedRange(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env, "2024-01-05", "pour slab", "", 6, nil)

	stats, err := env.Engine.RangeTotals(env.Ctx, "site-1", "2024-01-07", "2024-01-05")
	if err != nil {
		t.Fatalf("inverted range must not error: %v", err)
	}
	if len(stats.DailySeries) != 0 || stats.Summary.TotalLabor != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestRangeTotalsContractorBreakdown(t *testing.T) {
	env := newTestEnv(t)
	volt := env.addContractor(t, "Volt Electric", "electrical", "Active")
	pipe := env.addContractor(t, "PipeWorks", "plumbing", "Active")
	seedActivity(t, env, "2024-01-05", "rough-in", "A-Wing", 4, []string{volt, pipe})

	stats, err := env.Engine.RangeTotals(env.Ctx, "site-1", "2024-01-05", "2024-01-05")
	if err != nil {
		t.Fatalf("range totals: %v", err)
	}
	if len(stats.ContractorBreakdown) != 2 {
		t.Fatalf("expected one row per contractor, got %d", len(stats.ContractorBreakdown))
	}
	for _, row := range stats.ContractorBreakdown {
		if row.Labor != 4 {
			t.Fatalf("each row carries the full labor count: %+v", row)
		}
		if row.Title != "rough-in" || row.Date != "2024-01-05" {
			t.Fatalf("unexpected row: %+v", row)
		}
	}
}

func TestRollingContractorDaily(t *testing.T) {
	env := newTestEnv(t)
	volt := env.addContractor(t, "Volt Electric", "electrical", "Active")
	seedActivity(t, env, "2024-01-07", "panel upgrade", "", 5, []string{volt})

	grid, err := env.Engine.RollingContractorDaily(env.Ctx, "site-1", "2024-01-07", 0)
	if err != nil {
		t.Fatalf("rolling: %v", err)
	}
	// Default window from config is 7 days.
	if len(grid) != 7 {
		t.Fatalf("expected 7 days, got %d", len(grid))
	}
	empty, ok := grid["2024-01-03"]
	if !ok || empty == nil || len(empty) != 0 {
		t.Fatalf("empty days must carry an empty map, got %v", grid["2024-01-03"])
	}
	if grid["2024-01-07"]["Volt Electric"] != 5 {
		t.Fatalf("unexpected grid: %v", grid["2024-01-07"])
	}
	if _, ok := grid["2023-12-31"]; ok {
		t.Fatalf("window must not reach past its start")
	}
}

func TestAreaUsageStats(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env, "2024-01-05", "pour slab", "B-Wing", 6, nil)
	seedActivity(t, env, "2024-02-10", "strip forms", "B-Wing", 4, nil)
	seedActivity(t, env, "2024-01-05", "rough-in", "A-Wing", 3, nil)
	seedActivity(t, env, "2024-01-06", "no area work", "", 1, nil)

	usage, err := env.Engine.AreaUsageStats(env.Ctx, "site-1")
	if err != nil {
		t.Fatalf("area usage: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 areas, got %d", len(usage))
	}
	top := usage[0]
	if top.Area != "B-Wing" || top.ActivityCount != 2 || top.TotalLabor != 10 {
		t.Fatalf("unexpected top area: %+v", top)
	}
	if top.MonthsActive != 2 {
		t.Fatalf("expected 2 active months, got %d", top.MonthsActive)
	}
	if top.FirstDate != "2024-01-05" || top.LastDate != "2024-02-10" {
		t.Fatalf("unexpected date span: %+v", top)
	}
	if usage[1].Area != "A-Wing" {
		t.Fatalf("expected A-Wing second, got %+v", usage[1])
	}
}
