package analytics

import (
	"sort"

	"github.com/saiset-co/sai-query-service/types"
)

// Direction flips only when the last day moves more than 10% away from
// the first day's total.
const trendThreshold = 0.10

// AnalyzeTrends buckets records by their verbatim date string (no
// parsing, no timezone normalization) and reports per-day aggregates
// in ascending date order plus an overall direction.
func (e *Engine) AnalyzeTrends(records []types.Record) *types.TrendReport {
	report := &types.TrendReport{Direction: types.TrendNeutral}

	if len(records) == 0 {
		return report
	}

	buckets := make(map[string]*types.DailyAggregate)
	for i := range records {
		date := records[i].Date

		day, exists := buckets[date]
		if !exists {
			day = &types.DailyAggregate{Date: date}
			buckets[date] = day
		}

		day.Count++
		day.TotalAmount += records[i].Amount.Float64()
		day.TotalProfit += records[i].Profit
		if records[i].Status == types.RecordStatusSuccess {
			day.SuccessCount++
		}
	}

	days := make([]types.DailyAggregate, 0, len(buckets))
	for _, day := range buckets {
		count := float64(day.Count)
		day.AverageAmount = day.TotalAmount / count
		day.AverageProfit = day.TotalProfit / count
		day.SuccessRate = float64(day.SuccessCount) / count
		days = append(days, *day)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].Date < days[j].Date
	})

	report.DailyTotals = days
	report.PeakDay, report.LowestDay = extremeDays(days)
	report.Direction = direction(days)

	return report
}

func direction(days []types.DailyAggregate) string {
	if len(days) < 2 {
		return types.TrendNeutral
	}

	first := days[0].TotalAmount
	last := days[len(days)-1].TotalAmount

	switch {
	case last > first+first*trendThreshold:
		return types.TrendUp
	case last < first-first*trendThreshold:
		return types.TrendDown
	default:
		return types.TrendNeutral
	}
}

// Ties go to the earliest day in date-sorted order.
func extremeDays(days []types.DailyAggregate) (peak, lowest string) {
	if len(days) == 0 {
		return "", ""
	}

	peakIdx, lowIdx := 0, 0
	for i := 1; i < len(days); i++ {
		if days[i].TotalAmount > days[peakIdx].TotalAmount {
			peakIdx = i
		}
		if days[i].TotalAmount < days[lowIdx].TotalAmount {
			lowIdx = i
		}
	}

	return days[peakIdx].Date, days[lowIdx].Date
}
