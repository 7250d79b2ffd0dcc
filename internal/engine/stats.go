package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"sitebrief/internal/domain"
	"sitebrief/internal/repo"
)

type DailyStats struct {
	Date                   string         `json:"date" format:"date"`
	TotalLabor             int            `json:"total_labor"`
	TotalActivities        int            `json:"total_activities"`
	TotalUniqueContractors int            `json:"total_unique_contractors"`
	ByArea                 map[string]int `json:"by_area"`
	ByContractor           map[string]int `json:"by_contractor"`
}

type DailyPoint struct {
	Date            string `json:"date" format:"date"`
	TotalLabor      int    `json:"total_labor"`
	TotalActivities int    `json:"total_activities"`
}

// BreakdownRow attributes one activity to one resolved contractor. An
// activity with several contractors yields several rows, each carrying the
// activity's full labor count; labor is attributed, never split.
type BreakdownRow struct {
	Date         string `json:"date" format:"date"`
	ActivityID   string `json:"activity_id"`
	Title        string `json:"title"`
	ContractorID string `json:"contractor_id"`
	Name         string `json:"name"`
	Trade        string `json:"trade"`
	Labor        int    `json:"labor"`
}

type PeriodSummary struct {
	TotalLabor      int     `json:"total_labor"`
	TotalActivities int     `json:"total_activities"`
	LaborPerDay     float64 `json:"labor_per_day"`
}

type RangeStats struct {
	StartDate           string         `json:"start_date" format:"date"`
	EndDate             string         `json:"end_date" format:"date"`
	DailySeries         []DailyPoint   `json:"daily_series"`
	ContractorBreakdown []BreakdownRow `json:"contractor_breakdown"`
	AreaBreakdown       map[string]int `json:"area_breakdown"`
	Summary             PeriodSummary  `json:"summary"`
}

type AreaUsage struct {
	Area          string `json:"area"`
	ActivityCount int    `json:"activity_count"`
	TotalLabor    int    `json:"total_labor"`
	MonthsActive  int    `json:"months_active"`
	FirstDate     string `json:"first_date" format:"date"`
	LastDate      string `json:"last_date" format:"date"`
}

// DailyTotals aggregates one date's briefing. Unique contractors are counted
// by resolved roster name, so two ids pointing at the same crew count once.
func (e *Engine) DailyTotals(ctx context.Context, projectID, date string) (DailyStats, error) {
	date = e.normalizeDate(date)
	stats := DailyStats{
		Date:         date,
		ByArea:       map[string]int{},
		ByContractor: map[string]int{},
	}
	activities, err := e.activitiesForDate(ctx, projectID, date)
	if err != nil {
		return stats, err
	}
	maps, err := e.BuildLookupMaps(ctx, projectID)
	if err != nil {
		return stats, err
	}
	names := map[string]struct{}{}
	for _, a := range activities {
		stats.TotalActivities++
		stats.TotalLabor += a.LaborCount
		if a.Area != "" {
			stats.ByArea[a.Area] += a.LaborCount
		}
		for _, ref := range ResolveActivityContractors(a, maps) {
			stats.ByContractor[ref.Name] += a.LaborCount
			names[ref.Name] = struct{}{}
		}
	}
	stats.TotalUniqueContractors = len(names)
	return stats, nil
}

// RangeTotals aggregates a date span. The daily series covers every calendar
// day in [start,end], zero-filled where no work was logged; an inverted range
// yields an empty series rather than an error.
func (e *Engine) RangeTotals(ctx context.Context, projectID, start, end string) (RangeStats, error) {
	start = e.normalizeDate(start)
	end = e.normalizeDate(end)
	stats := RangeStats{
		StartDate:           start,
		EndDate:             end,
		DailySeries:         []DailyPoint{},
		ContractorBreakdown: []BreakdownRow{},
		AreaBreakdown:       map[string]int{},
	}
	startT, _ := time.Parse(dateLayout, start)
	endT, _ := time.Parse(dateLayout, end)
	if endT.Before(startT) {
		return stats, nil
	}

	activities, err := e.Repo.ListActivitiesByDateRange(ctx, projectID, start, end)
	if err != nil {
		return stats, err
	}
	maps, err := e.BuildLookupMaps(ctx, projectID)
	if err != nil {
		return stats, err
	}

	byDate := map[string]int{}
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		stats.DailySeries = append(stats.DailySeries, DailyPoint{Date: date})
		byDate[date] = len(stats.DailySeries) - 1
	}

	daysWithWork := map[string]struct{}{}
	for _, a := range activities {
		if i, ok := byDate[a.Date]; ok {
			stats.DailySeries[i].TotalLabor += a.LaborCount
			stats.DailySeries[i].TotalActivities++
		}
		daysWithWork[a.Date] = struct{}{}
		stats.Summary.TotalLabor += a.LaborCount
		stats.Summary.TotalActivities++
		if a.Area != "" {
			stats.AreaBreakdown[a.Area] += a.LaborCount
		}
		for _, ref := range ResolveActivityContractors(a, maps) {
			stats.ContractorBreakdown = append(stats.ContractorBreakdown, BreakdownRow{
				Date:         a.Date,
				ActivityID:   a.ID,
				Title:        a.Title,
				ContractorID: ref.ID,
				Name:         ref.Name,
				Trade:        ref.Trade,
				Labor:        a.LaborCount,
			})
		}
	}
	if n := len(daysWithWork); n > 0 {
		stats.Summary.LaborPerDay = math.Round(float64(stats.Summary.TotalLabor)/float64(n)*100) / 100
	}
	return stats, nil
}

// RollingContractorDaily returns per-contractor labor for each of the
// windowDays days ending at end. Days with no briefing appear with an empty
// map so callers can render a continuous grid. windowDays <= 0 falls back to
// the configured window.
func (e *Engine) RollingContractorDaily(ctx context.Context, projectID, end string, windowDays int) (map[string]map[string]int, error) {
	if windowDays <= 0 {
		windowDays = e.Config.RollingWindowDays()
	}
	end = e.normalizeDate(end)
	endT, _ := time.Parse(dateLayout, end)
	startT := endT.AddDate(0, 0, -(windowDays - 1))
	start := startT.Format(dateLayout)

	activities, err := e.Repo.ListActivitiesByDateRange(ctx, projectID, start, end)
	if err != nil {
		return nil, err
	}
	maps, err := e.BuildLookupMaps(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]int, windowDays)
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		out[d.Format(dateLayout)] = map[string]int{}
	}
	for _, a := range activities {
		day, ok := out[a.Date]
		if !ok {
			continue
		}
		for _, ref := range ResolveActivityContractors(a, maps) {
			day[ref.Name] += a.LaborCount
		}
	}
	return out, nil
}

// AreaUsageStats reports lifetime activity per work area, busiest first.
func (e *Engine) AreaUsageStats(ctx context.Context, projectID string) ([]AreaUsage, error) {
	rows, err := e.Repo.AreaUsage(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]AreaUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, AreaUsage{
			Area:          row.Area,
			ActivityCount: row.ActivityCount,
			TotalLabor:    row.TotalLabor,
			MonthsActive:  row.MonthsActive,
			FirstDate:     row.FirstDate,
			LastDate:      row.LastDate,
		})
	}
	return out, nil
}

func (e *Engine) activitiesForDate(ctx context.Context, projectID, date string) ([]domain.Activity, error) {
	b, err := e.Repo.FindBriefing(ctx, projectID, date)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e.Repo.ListActivitiesByBriefing(ctx, b.ID)
}
