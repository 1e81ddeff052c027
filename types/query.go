package types

import (
	"strconv"
	"strings"
	"time"
)

const (
	RecordStatusSuccess  = "success"
	RecordStatusFailed   = "failed"
	RecordStatusRefunded = "refunded"
)

const (
	ResponseStatusSuccess = "success"
	ResponseStatusError   = "error"
)

const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// Amount is a decimal value that tolerates sloppy upstream payloads:
// numbers, numeric strings with currency noise, or garbage (parsed as 0).
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ',', '¥', '$':
			return -1
		}
		return r
	}, s))

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*a = 0
		return nil
	}
	*a = Amount(v)
	return nil
}

func (a Amount) Float64() float64 {
	return float64(a)
}

// Record is one transaction row as scraped by the upstream backend.
// Profit is derived locally and absent on the wire until enrichment.
type Record struct {
	ID      string  `json:"id"`
	Date    string  `json:"date"`
	Amount  Amount  `json:"amount"`
	Status  string  `json:"status"`
	Details string  `json:"details"`
	Profit  float64 `json:"profit,omitempty"`
}

type Stats struct {
	Count         int     `json:"count"`
	TotalAmount   float64 `json:"total_amount"`
	AverageAmount float64 `json:"average_amount"`
	SuccessRate   float64 `json:"success_rate"`
	TotalProfit   float64 `json:"total_profit"`
	AverageProfit float64 `json:"average_profit"`
}

type DailyAggregate struct {
	Date          string  `json:"date"`
	Count         int     `json:"count"`
	SuccessCount  int     `json:"success_count"`
	TotalAmount   float64 `json:"total_amount"`
	TotalProfit   float64 `json:"total_profit"`
	AverageAmount float64 `json:"average_amount"`
	AverageProfit float64 `json:"average_profit"`
	SuccessRate   float64 `json:"success_rate"`
}

type TrendReport struct {
	DailyTotals []DailyAggregate `json:"daily_totals"`
	Direction   string           `json:"trend_direction"`
	PeakDay     string           `json:"peak_day"`
	LowestDay   string           `json:"lowest_day"`
}

type QueryRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	UKCode    string `json:"uk_code" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	AuthKey   string `json:"auth_key"`
	AppID     string `json:"app_id"`
}

// Params returns the signature-relevant parameter mapping. Credentials
// are excluded so rotating a key does not fragment the cache.
func (r *QueryRequest) Params() map[string]string {
	return map[string]string{
		"project_id": r.ProjectID,
		"uk_code":    r.UKCode,
		"start_date": r.StartDate,
		"end_date":   r.EndDate,
	}
}

type QueryInfo struct {
	ProjectID string    `json:"project_id"`
	UKCode    string    `json:"uk_code"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryResponse is the enriched envelope handed to the presentation
// layer. Callers always receive one; failures arrive as status=error.
type QueryResponse struct {
	Status    string       `json:"status"`
	ErrorType string       `json:"error_type,omitempty"`
	Message   string       `json:"message,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Data      []Record     `json:"data,omitempty"`
	Stats     *Stats       `json:"stats,omitempty"`
	Trends    *TrendReport `json:"trends,omitempty"`
	QueryInfo *QueryInfo   `json:"query_info,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
}

func (r *QueryResponse) IsSuccess() bool {
	return r.Status == ResponseStatusSuccess
}

// UpstreamEnvelope is the raw backend payload before enrichment.
type UpstreamEnvelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Data    []Record `json:"data"`
}

type UpstreamHealth struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ActivityEntry is one completed fetch attempt in the diagnostic ring.
type ActivityEntry struct {
	ID          string        `json:"id"`
	Endpoint    string        `json:"endpoint"`
	Signature   string        `json:"signature"`
	Attempts    int           `json:"attempts"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
