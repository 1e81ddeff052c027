package analytics

import (
	"github.com/saiset-co/sai-query-service/types"
)

// Engine derives per-record profit, aggregate statistics and daily
// trends from a record set. All operations are pure: identical input
// yields identical output, and nothing here ever returns an error;
// malformed numeric input degrades to zero.
type Engine struct {
	config *types.ProfitConfig
	memo   *resultMemo
}

func NewEngine(config *types.ProfitConfig) *Engine {
	if config == nil {
		config = defaultProfitConfig()
	}
	if config.StatusMultipliers == nil {
		config.StatusMultipliers = defaultProfitConfig().StatusMultipliers
	}

	return &Engine{
		config: config,
		memo:   newResultMemo(64),
	}
}

// Enrich returns a copy of records with profit populated, plus the
// aggregate stats and trend report for the set.
func (e *Engine) Enrich(records []types.Record) ([]types.Record, *types.Stats, *types.TrendReport) {
	key := contentHash(records)
	if cached, ok := e.memo.get(key); ok {
		return cached.records, cached.stats, cached.trends
	}

	enriched := make([]types.Record, len(records))
	copy(enriched, records)
	for i := range enriched {
		enriched[i].Profit = e.ComputeProfit(&enriched[i])
	}

	stats := e.ComputeStats(enriched)
	trends := e.AnalyzeTrends(enriched)

	e.memo.put(key, memoized{records: enriched, stats: stats, trends: trends})

	return enriched, stats, trends
}

func defaultProfitConfig() *types.ProfitConfig {
	return &types.ProfitConfig{
		BaseCoefficient: 1.0,
		StatusMultipliers: &types.StatusMultipliers{
			Success:  1.0,
			Failed:   1.0,
			Refunded: 1.0,
			Other:    1.0,
		},
	}
}
