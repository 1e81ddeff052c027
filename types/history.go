package types

import (
	"time"
)

type HistoryStore interface {
	LifecycleManager
	Append(entry *HistoryEntry) error
	Recent(limit int) ([]HistoryEntry, error)
	Count() (int, error)
}

// HistoryEntry is a compact summary of one settled query, kept for
// diagnostics beyond the in-memory activity ring.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Signature   string    `json:"signature"`
	Endpoint    string    `json:"endpoint"`
	ProjectID   string    `json:"project_id"`
	Status      string    `json:"status"`
	RecordCount int       `json:"record_count"`
	TotalAmount float64   `json:"total_amount"`
	TotalProfit float64   `json:"total_profit"`
	CreatedAt   time.Time `json:"created_at"`
}
