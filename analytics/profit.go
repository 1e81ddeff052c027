package analytics

import (
	"github.com/saiset-co/sai-query-service/types"
)

// ComputeProfit derives profit as amount * coefficient. The coefficient
// starts at the configured base, is scaled by the record's status
// multiplier, then by the amount-tier multiplier. Tiers are checked
// from the highest threshold down; the first one met wins, and amounts
// below every threshold get no tier adjustment.
func (e *Engine) ComputeProfit(record *types.Record) float64 {
	amount := record.Amount.Float64()

	coefficient := e.config.BaseCoefficient * e.statusMultiplier(record.Status)
	coefficient *= e.tierMultiplier(amount)

	return amount * coefficient
}

func (e *Engine) statusMultiplier(status string) float64 {
	m := e.config.StatusMultipliers

	switch status {
	case types.RecordStatusSuccess:
		return m.Success
	case types.RecordStatusFailed:
		return m.Failed
	case types.RecordStatusRefunded:
		return m.Refunded
	default:
		return m.Other
	}
}

func (e *Engine) tierMultiplier(amount float64) float64 {
	tiers := e.config.Tiers

	for i := len(tiers) - 1; i >= 0; i-- {
		if amount >= tiers[i].Threshold {
			return tiers[i].Multiplier
		}
	}

	return 1.0
}
