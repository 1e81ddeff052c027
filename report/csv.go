package report

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/saiset-co/sai-query-service/types"
)

// StatsComputer recomputes the summary block; the formatter never
// trusts previously computed aggregates.
type StatsComputer interface {
	ComputeStats(records []types.Record) *types.Stats
}

var columns = []string{"id", "date", "amount", "status", "details", "profit"}

// Formatter renders an enriched record set into a delimited text
// report: a query-metadata header block, one quoted row per record and
// a trailing summary block. Output is deterministic for identical
// input except for the generation timestamp line.
type Formatter struct {
	stats StatsComputer
	now   func() time.Time
}

func NewFormatter(stats StatsComputer) *Formatter {
	return &Formatter{
		stats: stats,
		now:   time.Now,
	}
}

func (f *Formatter) ToDelimitedReport(records []types.Record, info *types.QueryInfo) string {
	var b strings.Builder

	f.writeHeader(&b, info)
	f.writeRows(&b, records)
	f.writeSummary(&b, records)

	return b.String()
}

func (f *Formatter) writeHeader(b *strings.Builder, info *types.QueryInfo) {
	b.WriteString("# Query Report\n")
	if info != nil {
		fmt.Fprintf(b, "# project_id: %s\n", info.ProjectID)
		fmt.Fprintf(b, "# uk_code: %s\n", info.UKCode)
		fmt.Fprintf(b, "# date_range: %s - %s\n", info.StartDate, info.EndDate)
	}
	fmt.Fprintf(b, "# generated_at: %s\n", f.now().Format(time.RFC3339))
	b.WriteString("\n")
}

func (f *Formatter) writeRows(b *strings.Builder, records []types.Record) {
	writer := csv.NewWriter(b)

	// encoding/csv escapes embedded double quotes by doubling them.
	_ = writer.Write(columns)
	for i := range records {
		_ = writer.Write([]string{
			records[i].ID,
			records[i].Date,
			formatAmount(records[i].Amount.Float64()),
			records[i].Status,
			records[i].Details,
			formatAmount(records[i].Profit),
		})
	}
	writer.Flush()
}

func (f *Formatter) writeSummary(b *strings.Builder, records []types.Record) {
	stats := f.stats.ComputeStats(records)

	b.WriteString("\n# Summary\n")
	fmt.Fprintf(b, "# count: %d\n", stats.Count)
	fmt.Fprintf(b, "# total_amount: %s\n", formatAmount(stats.TotalAmount))
	fmt.Fprintf(b, "# average_amount: %s\n", formatAmount(stats.AverageAmount))
	fmt.Fprintf(b, "# success_rate: %s\n", formatRate(stats.SuccessRate))
	fmt.Fprintf(b, "# total_profit: %s\n", formatAmount(stats.TotalProfit))
	fmt.Fprintf(b, "# average_profit: %s\n", formatAmount(stats.AverageProfit))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

// ParseRows reads the record rows back out of a rendered report. Used
// by export tooling to verify round trips; metadata and summary lines
// are skipped.
func ParseRows(reportText string) ([]types.Record, error) {
	lines := strings.Split(reportText, "\n")

	var csvLines []string
	inTable := false
	for _, line := range lines {
		if !inTable {
			if line == strings.Join(columns, ",") {
				inTable = true
				csvLines = append(csvLines, line)
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			break
		}
		csvLines = append(csvLines, line)
	}

	if len(csvLines) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(csvLines, "\n")))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to parse report rows")
	}

	records := make([]types.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(columns) {
			continue
		}

		amount, _ := strconv.ParseFloat(row[2], 64)
		profit, _ := strconv.ParseFloat(row[5], 64)

		records = append(records, types.Record{
			ID:      row[0],
			Date:    row[1],
			Amount:  types.Amount(amount),
			Status:  row[3],
			Details: row[4],
			Profit:  profit,
		})
	}

	return records, nil
}
