package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-query-service/analytics"
	"github.com/saiset-co/sai-query-service/types"
)

func newTestFormatter() *Formatter {
	formatter := NewFormatter(analytics.NewEngine(nil))
	formatter.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return formatter
}

func sampleRecords() []types.Record {
	return []types.Record{
		{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess, Details: "plain", Profit: 120},
		{ID: "r2", Date: "2025-01-02", Amount: 250.5, Status: types.RecordStatusFailed, Details: `said "hello", left`, Profit: 125.25},
	}
}

func sampleInfo() *types.QueryInfo {
	return &types.QueryInfo{
		ProjectID: "demo",
		UKCode:    "UK-001",
		StartDate: "2025-01-01",
		EndDate:   "2025-01-31",
	}
}

func TestToDelimitedReportLayout(t *testing.T) {
	formatter := newTestFormatter()

	text := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())

	assert.True(t, strings.HasPrefix(text, "# Query Report\n"))
	assert.Contains(t, text, "# project_id: demo\n")
	assert.Contains(t, text, "# uk_code: UK-001\n")
	assert.Contains(t, text, "# date_range: 2025-01-01 - 2025-01-31\n")
	assert.Contains(t, text, "# generated_at: 2025-06-01T12:00:00Z\n")
	assert.Contains(t, text, "id,date,amount,status,details,profit\n")
	assert.Contains(t, text, "# Summary\n")
	assert.Contains(t, text, "# count: 2\n")
	assert.Contains(t, text, "# total_amount: 350.50\n")
	assert.Contains(t, text, "# average_amount: 175.25\n")
	assert.Contains(t, text, "# success_rate: 50.0%\n")
}

func TestToDelimitedReportQuotesEmbeddedQuotes(t *testing.T) {
	formatter := newTestFormatter()

	text := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())

	// encoding/csv doubles embedded quotes and wraps the field.
	assert.Contains(t, text, `"said ""hello"", left"`)
}

func TestToDelimitedReportDeterministic(t *testing.T) {
	formatter := newTestFormatter()

	first := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())
	second := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())

	assert.Equal(t, first, second)
}

func TestToDelimitedReportNilInfo(t *testing.T) {
	formatter := newTestFormatter()

	text := formatter.ToDelimitedReport(nil, nil)

	assert.True(t, strings.HasPrefix(text, "# Query Report\n"))
	assert.NotContains(t, text, "# project_id")
	assert.Contains(t, text, "# count: 0\n")
	assert.Contains(t, text, "# success_rate: 0.0%\n")
}

func TestParseRowsRoundTrip(t *testing.T) {
	formatter := newTestFormatter()
	records := sampleRecords()

	text := formatter.ToDelimitedReport(records, sampleInfo())

	parsed, err := ParseRows(text)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	for i := range records {
		assert.Equal(t, records[i].ID, parsed[i].ID)
		assert.Equal(t, records[i].Date, parsed[i].Date)
		assert.Equal(t, records[i].Status, parsed[i].Status)
		assert.Equal(t, records[i].Details, parsed[i].Details)
		assert.InDelta(t, records[i].Amount.Float64(), parsed[i].Amount.Float64(), 0.01)
		assert.InDelta(t, records[i].Profit, parsed[i].Profit, 0.01)
	}
}

func TestParseRowsSkipsMetadataAndSummary(t *testing.T) {
	formatter := newTestFormatter()

	text := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())

	parsed, err := ParseRows(text)
	require.NoError(t, err)
	for _, record := range parsed {
		assert.False(t, strings.HasPrefix(record.ID, "#"))
	}
}

func TestParseRowsNoTable(t *testing.T) {
	parsed, err := ParseRows("# Query Report\n# Summary\n")
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestCompressedReportRoundTrip(t *testing.T) {
	formatter := newTestFormatter()

	text := formatter.ToDelimitedReport(sampleRecords(), sampleInfo())

	compressed, err := formatter.ToCompressedReport(sampleRecords(), sampleInfo())
	require.NoError(t, err)
	require.NotEmpty(t, compressed)
	assert.NotEqual(t, []byte(text), compressed)

	restored, err := DecompressReport(compressed)
	require.NoError(t, err)
	assert.Equal(t, text, restored)
}
