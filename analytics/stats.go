package analytics

import (
	"github.com/saiset-co/sai-query-service/types"
)

// ComputeStats aggregates a record set. Empty input produces all-zero
// aggregates; there is no division by zero.
func (e *Engine) ComputeStats(records []types.Record) *types.Stats {
	stats := &types.Stats{Count: len(records)}

	if stats.Count == 0 {
		return stats
	}

	successCount := 0
	for i := range records {
		stats.TotalAmount += records[i].Amount.Float64()
		stats.TotalProfit += records[i].Profit

		if records[i].Status == types.RecordStatusSuccess {
			successCount++
		}
	}

	count := float64(stats.Count)
	stats.AverageAmount = stats.TotalAmount / count
	stats.AverageProfit = stats.TotalProfit / count
	stats.SuccessRate = float64(successCount) / count

	return stats
}
