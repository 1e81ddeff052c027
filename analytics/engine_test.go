package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-query-service/types"
)

func TestEnrichComputesProfitAndStats(t *testing.T) {
	engine := NewEngine(testProfitConfig())

	records := []types.Record{
		{ID: "1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess},
		{ID: "2", Date: "2025-01-01", Amount: 200, Status: types.RecordStatusFailed},
	}

	enriched, stats, trends := engine.Enrich(records)

	require.Len(t, enriched, 2)
	assert.InDelta(t, 120, enriched[0].Profit, 1e-9)
	assert.InDelta(t, 100, enriched[1].Profit, 1e-9)

	// Input slice stays untouched.
	assert.Zero(t, records[0].Profit)

	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 300, stats.TotalAmount, 1e-9)
	assert.InDelta(t, 150, stats.AverageAmount, 1e-9)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 220, stats.TotalProfit, 1e-9)
	assert.InDelta(t, 110, stats.AverageProfit, 1e-9)

	require.NotNil(t, trends)
	require.Len(t, trends.DailyTotals, 1)
	assert.Equal(t, types.TrendNeutral, trends.Direction)
}

func TestEnrichEmptyInput(t *testing.T) {
	engine := NewEngine(testProfitConfig())

	enriched, stats, trends := engine.Enrich(nil)

	assert.Empty(t, enriched)
	require.NotNil(t, stats)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.TotalAmount)
	assert.Zero(t, stats.AverageAmount)
	assert.Zero(t, stats.SuccessRate)
	assert.Zero(t, stats.TotalProfit)
	assert.Zero(t, stats.AverageProfit)

	require.NotNil(t, trends)
	assert.Empty(t, trends.DailyTotals)
	assert.Equal(t, types.TrendNeutral, trends.Direction)
}

func TestEnrichMemoReturnsEqualResults(t *testing.T) {
	engine := NewEngine(testProfitConfig())

	records := []types.Record{
		{ID: "1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess},
		{ID: "2", Date: "2025-01-02", Amount: 300, Status: types.RecordStatusSuccess},
	}

	first, firstStats, _ := engine.Enrich(records)
	second, secondStats, _ := engine.Enrich(records)

	assert.Equal(t, first, second)
	assert.Equal(t, firstStats, secondStats)
}

func TestComputeStatsSuccessRateExactMatch(t *testing.T) {
	engine := NewEngine(testProfitConfig())

	stats := engine.ComputeStats([]types.Record{
		{Amount: 10, Status: "Success"},
		{Amount: 10, Status: "SUCCESS"},
		{Amount: 10, Status: types.RecordStatusSuccess},
	})

	// Status comparison is case sensitive.
	assert.InDelta(t, 1.0/3.0, stats.SuccessRate, 1e-9)
}
