package health

import (
	"context"
	"fmt"

	"github.com/saiset-co/sai-query-service/types"
)

// UpstreamChecker probes the backend through the given prober. A
// reachable but degraded backend reports StatusDegraded rather than
// failing the whole service.
func UpstreamChecker(prober func(ctx context.Context) (*types.UpstreamHealth, error)) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		upstream, err := prober(ctx)
		if err != nil {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: err.Error(),
			}
		}

		check := types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"upstream_status": upstream.Status,
			},
		}

		if upstream.Status != "ok" && upstream.Status != "healthy" {
			check.Status = types.StatusDegraded
			check.Message = fmt.Sprintf("upstream reported status %q", upstream.Status)
		}

		return check
	}
}

func CacheChecker(cache types.CacheManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if cache == nil {
			return types.HealthCheck{
				Status:  types.StatusUnknown,
				Message: "cache is disabled",
			}
		}

		if !cache.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "cache is not running",
			}
		}

		stats := cache.Stats()

		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries":   stats.Entries,
				"hits":      stats.Hits,
				"misses":    stats.Misses,
				"evictions": stats.Evictions,
			},
		}
	}
}

func HistoryChecker(history types.HistoryStore) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if history == nil {
			return types.HealthCheck{
				Status:  types.StatusUnknown,
				Message: "history store is disabled",
			}
		}

		if !history.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "history store is not running",
			}
		}

		count, err := history.Count()
		if err != nil {
			return types.HealthCheck{
				Status:  types.StatusDegraded,
				Message: err.Error(),
			}
		}

		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries": count,
			},
		}
	}
}
