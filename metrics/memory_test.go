package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/logger"
	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

func newTestMemoryMetrics(t *testing.T) types.MetricsManager {
	t.Helper()

	metrics, err := NewMemoryMetrics(context.Background(),
		logger.NewZapWrapper(zap.NewNop()),
		&types.MetricsConfig{Enabled: true, Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, metrics.Start())
	return metrics
}

func TestMemoryCounter(t *testing.T) {
	metrics := newTestMemoryMetrics(t)

	counter := metrics.Counter("requests_total", map[string]string{"result": "success"})
	counter.Inc()
	counter.Add(2.5)

	assert.InDelta(t, 3.5, counter.Get(), 1e-9)

	// Same name and labels resolve to the same instrument.
	again := metrics.Counter("requests_total", map[string]string{"result": "success"})
	again.Inc()
	assert.InDelta(t, 4.5, counter.Get(), 1e-9)

	// Different labels are a separate series.
	other := metrics.Counter("requests_total", map[string]string{"result": "error"})
	assert.Zero(t, other.Get())
}

func TestMemoryCounterConcurrentAdds(t *testing.T) {
	metrics := newTestMemoryMetrics(t)
	counter := metrics.Counter("concurrent_total", nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.Inc()
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, 1000, counter.Get(), 1e-9)
}

func TestMemoryGauge(t *testing.T) {
	metrics := newTestMemoryMetrics(t)

	gauge := metrics.Gauge("active_flights", nil)
	gauge.Set(5)
	gauge.Inc()
	gauge.Dec()
	gauge.Dec()

	assert.InDelta(t, 4, gauge.Get(), 1e-9)
}

func TestMemoryHistogram(t *testing.T) {
	metrics := newTestMemoryMetrics(t)

	histogram := metrics.Histogram("duration_seconds", []float64{0.1, 1, 10}, nil)
	histogram.Observe(0.5)
	histogram.Observe(1.5)

	assert.Equal(t, uint64(2), histogram.GetCount())
	assert.InDelta(t, 2.0, histogram.GetSum(), 1e-9)

	histogram.ObserveDuration(time.Now().Add(-time.Millisecond))
	assert.Equal(t, uint64(3), histogram.GetCount())
}

func TestMemoryGetMetrics(t *testing.T) {
	metrics := newTestMemoryMetrics(t)

	metrics.Counter("beta_total", nil).Inc()
	metrics.Gauge("alpha_current", nil).Set(7)
	metrics.Histogram("gamma_seconds", nil, nil).Observe(0.25)

	data, err := metrics.GetMetrics()
	require.NoError(t, err)

	var values []types.MetricValue
	require.NoError(t, utils.Unmarshal(data, &values))
	require.Len(t, values, 3)

	// Sorted by prefixed name.
	assert.Equal(t, "sai_query_service_alpha_current", values[0].Name)
	assert.Equal(t, "GAUGE", values[0].Type)
	assert.InDelta(t, 7, values[0].Value, 1e-9)
	assert.Equal(t, "sai_query_service_beta_total", values[1].Name)
	assert.Equal(t, "COUNTER", values[1].Type)
	assert.Equal(t, "sai_query_service_gamma_seconds", values[2].Name)
	assert.Equal(t, "HISTOGRAM", values[2].Type)
}

func TestMemoryMetricsLifecycle(t *testing.T) {
	metrics, err := NewMemoryMetrics(context.Background(),
		logger.NewZapWrapper(zap.NewNop()),
		&types.MetricsConfig{Enabled: true, Type: "memory"})
	require.NoError(t, err)

	assert.False(t, metrics.IsRunning())
	require.NoError(t, metrics.Start())
	assert.ErrorIs(t, metrics.Start(), types.ErrComponentRunning)

	metrics.Counter("dropped_total", nil).Inc()

	require.NoError(t, metrics.Stop())
	assert.False(t, metrics.IsRunning())

	// Instruments are discarded on shutdown.
	require.NoError(t, metrics.Start())
	assert.Zero(t, metrics.Counter("dropped_total", nil).Get())
}

func TestManagerDisabledReturnsError(t *testing.T) {
	_, err := NewManager(context.Background(),
		&stubConfigManager{config: &types.ServiceConfig{Metrics: &types.MetricsConfig{Enabled: false}}},
		logger.NewZapWrapper(zap.NewNop()))
	assert.ErrorIs(t, err, types.ErrMetricsIsDisabled)
}

type stubConfigManager struct {
	config *types.ServiceConfig
}

func (s *stubConfigManager) Load() error { return nil }

func (s *stubConfigManager) GetConfig() *types.ServiceConfig { return s.config }
