package query

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/analytics"
	"github.com/saiset-co/sai-query-service/cache"
	"github.com/saiset-co/sai-query-service/logger"
	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

// stubTransport scripts upstream behavior per call number (1-based).
type stubTransport struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) ([]byte, int, error)
	delay   time.Duration
}

func (s *stubTransport) Do(ctx context.Context, path string, body []byte, opts *types.CallOptions) ([]byte, int, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, 0, types.Errorf(types.ErrTimeout, "upstream call canceled")
		}
	}

	return s.respond(call)
}

func (s *stubTransport) Close() {}

func (s *stubTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func successBody(t *testing.T, records ...types.Record) []byte {
	t.Helper()

	body, err := utils.Marshal(&types.UpstreamEnvelope{
		Status: types.ResponseStatusSuccess,
		Data:   records,
	})
	require.NoError(t, err)
	return body
}

func testRequest() *types.QueryRequest {
	return &types.QueryRequest{
		ProjectID: "demo",
		UKCode:    "UK-001",
		StartDate: "2025-01-01",
		EndDate:   "2025-01-31",
	}
}

func newTestExecutor(t *testing.T, config *types.UpstreamConfig, transport types.QueryTransport, withCache bool) *Executor {
	t.Helper()

	log := logger.NewZapWrapper(zap.NewNop())

	var store types.CacheManager
	if withCache {
		var err error
		store, err = cache.NewMemoryCache(context.Background(), log, &types.CacheConfig{})
		require.NoError(t, err)
	}

	engine := analytics.NewEngine(nil)

	return NewExecutor(context.Background(), log, config, time.Minute, engine, store, transport)
}

func defaultUpstreamConfig() *types.UpstreamConfig {
	return &types.UpstreamConfig{
		BaseURL:    "http://upstream.local",
		QueryPath:  "/api/query",
		HealthPath: "/health",
		Timeout:    types.Duration(time.Second),
		MaxRetries: 3,
		RetryDelay: types.Duration(time.Millisecond),
	}
}

func TestExecuteSuccess(t *testing.T) {
	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return successBody(t,
				types.Record{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess},
				types.Record{ID: "r2", Date: "2025-01-02", Amount: 200, Status: types.RecordStatusFailed},
			), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	resp := executor.Execute(context.Background(), testRequest())

	require.NotNil(t, resp)
	assert.Equal(t, types.ResponseStatusSuccess, resp.Status)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, transport.callCount())

	require.Len(t, resp.Data, 2)
	assert.Greater(t, resp.Data[0].Profit, 0.0)

	require.NotNil(t, resp.Stats)
	assert.Equal(t, 2, resp.Stats.Count)
	require.NotNil(t, resp.QueryInfo)
	assert.Equal(t, "demo", resp.QueryInfo.ProjectID)
}

func TestExecuteServesSecondCallFromCache(t *testing.T) {
	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return successBody(t, types.Record{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess}), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	first := executor.Execute(context.Background(), testRequest())
	second := executor.Execute(context.Background(), testRequest())

	assert.Equal(t, 1, transport.callCount())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Stats.TotalAmount, second.Stats.TotalAmount)
}

func TestExecuteValidationFailureSkipsNetwork(t *testing.T) {
	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return successBody(t), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	resp := executor.Execute(context.Background(), &types.QueryRequest{ProjectID: "demo"})

	assert.Equal(t, types.ResponseStatusError, resp.Status)
	assert.Equal(t, "invalid_request", resp.ErrorType)
	assert.Equal(t, 0, transport.callCount())
}

func TestExecuteRejectsWrongCredentials(t *testing.T) {
	config := defaultUpstreamConfig()
	config.AuthKey = "secret"
	config.AppID = "app-1"

	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return successBody(t), 200, nil
		},
	}
	executor := newTestExecutor(t, config, transport, true)

	req := testRequest()
	req.AuthKey = "wrong"
	req.AppID = "app-1"

	resp := executor.Execute(context.Background(), req)

	assert.Equal(t, "invalid_request", resp.ErrorType)
	assert.Contains(t, resp.Message, "unauthorized")
	assert.Equal(t, 0, transport.callCount())
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	transport := &stubTransport{
		respond: func(call int) ([]byte, int, error) {
			if call <= 2 {
				return nil, 0, types.Errorf(types.ErrNetwork, "connection refused")
			}
			return successBody(t, types.Record{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess}), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	resp := executor.Execute(context.Background(), testRequest())

	assert.Equal(t, types.ResponseStatusSuccess, resp.Status)
	assert.Equal(t, 3, transport.callCount())
}

func TestExecuteExhaustsRetries(t *testing.T) {
	config := defaultUpstreamConfig()
	config.MaxRetries = 2

	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return nil, 0, types.Errorf(types.ErrNetwork, "connection refused")
		},
	}
	executor := newTestExecutor(t, config, transport, true)

	resp := executor.Execute(context.Background(), testRequest())

	assert.Equal(t, types.ResponseStatusError, resp.Status)
	assert.Equal(t, "network_error", resp.ErrorType)
	// Initial attempt plus the configured retries.
	assert.Equal(t, 3, transport.callCount())
}

func TestExecuteDoesNotRetryUpstreamRejection(t *testing.T) {
	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			body, err := utils.Marshal(&types.UpstreamEnvelope{
				Status:  types.ResponseStatusError,
				Message: "project not found",
			})
			require.NoError(t, err)
			return body, 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	resp := executor.Execute(context.Background(), testRequest())

	assert.Equal(t, types.ResponseStatusError, resp.Status)
	assert.Equal(t, "query_failed", resp.ErrorType)
	assert.Contains(t, resp.Message, "project not found")
	assert.Equal(t, 1, transport.callCount())
}

func TestExecuteFailuresAreNotCached(t *testing.T) {
	transport := &stubTransport{
		respond: func(call int) ([]byte, int, error) {
			if call == 1 {
				body, err := utils.Marshal(&types.UpstreamEnvelope{Status: types.ResponseStatusError, Message: "boom"})
				require.NoError(t, err)
				return body, 200, nil
			}
			return successBody(t, types.Record{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess}), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	first := executor.Execute(context.Background(), testRequest())
	second := executor.Execute(context.Background(), testRequest())

	assert.Equal(t, types.ResponseStatusError, first.Status)
	assert.Equal(t, types.ResponseStatusSuccess, second.Status)
	assert.False(t, second.Cached)
	assert.Equal(t, 2, transport.callCount())
}

func TestExecuteDeduplicatesConcurrentIdenticalRequests(t *testing.T) {
	body := successBody(t, types.Record{ID: "r1", Date: "2025-01-01", Amount: 100, Status: types.RecordStatusSuccess})
	transport := &stubTransport{
		delay: 50 * time.Millisecond,
		respond: func(int) ([]byte, int, error) {
			return body, 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, true)

	const callers = 8
	responses := make([]*types.QueryResponse, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(idx int) {
			defer done.Done()
			start.Wait()
			responses[idx] = executor.Execute(context.Background(), testRequest())
		}(i)
	}
	start.Done()
	done.Wait()

	assert.Equal(t, 1, transport.callCount())
	for _, resp := range responses {
		require.NotNil(t, resp)
		assert.Equal(t, types.ResponseStatusSuccess, resp.Status)
	}
}

func TestActivityRingKeepsLastTen(t *testing.T) {
	transport := &stubTransport{
		respond: func(int) ([]byte, int, error) {
			return successBody(t), 200, nil
		},
	}
	executor := newTestExecutor(t, defaultUpstreamConfig(), transport, false)

	for i := 0; i < 13; i++ {
		req := testRequest()
		req.ProjectID = fmt.Sprintf("project-%d", i)
		executor.Execute(context.Background(), req)
	}

	entries := executor.Activity()
	require.Len(t, entries, 10)
	for _, entry := range entries {
		assert.True(t, entry.Success)
		assert.Equal(t, 1, entry.Attempts)
	}
}

func TestHealthProbe(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		transport := &stubTransport{
			respond: func(int) ([]byte, int, error) {
				body, err := utils.Marshal(&types.UpstreamHealth{Status: "ok", Version: "1.2.3"})
				require.NoError(t, err)
				return body, 200, nil
			},
		}
		executor := newTestExecutor(t, defaultUpstreamConfig(), transport, false)

		health, err := executor.Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "1.2.3", health.Version)
	})

	t.Run("http_error_status", func(t *testing.T) {
		transport := &stubTransport{
			respond: func(int) ([]byte, int, error) {
				body, err := utils.Marshal(&types.UpstreamHealth{Status: "degraded"})
				require.NoError(t, err)
				return body, 503, nil
			},
		}
		executor := newTestExecutor(t, defaultUpstreamConfig(), transport, false)

		health, err := executor.Health(context.Background())
		require.Error(t, err)
		assert.True(t, types.IsError(err, types.ErrUpstream))
		require.NotNil(t, health)
		assert.Equal(t, "degraded", health.Status)
	})

	t.Run("transport_failure", func(t *testing.T) {
		transport := &stubTransport{
			respond: func(int) ([]byte, int, error) {
				return nil, 0, types.Errorf(types.ErrNetwork, "connection refused")
			},
		}
		executor := newTestExecutor(t, defaultUpstreamConfig(), transport, false)

		_, err := executor.Health(context.Background())
		require.Error(t, err)
		assert.True(t, types.IsError(err, types.ErrNetwork))
	})
}
