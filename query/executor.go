package query

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

// ProfitEngine is what the executor needs from the analytics layer.
type ProfitEngine interface {
	Enrich(records []types.Record) ([]types.Record, *types.Stats, *types.TrendReport)
}

// Executor runs upstream queries through the cache and the in-flight
// tracker. For a given signature at most one network call is in flight
// at any instant: concurrent callers attach to the pending computation
// and observe the same eventual value or the same eventual failure.
// Only successes are written through to the cache.
type Executor struct {
	ctx       context.Context
	logger    types.Logger
	config    *types.UpstreamConfig
	cacheTTL  time.Duration
	engine    ProfitEngine
	cache     types.CacheManager
	transport types.QueryTransport
	group     singleflight.Group
	activity  *ActivityLog
	validate  *validator.Validate
	history   types.HistoryStore
	actions   types.ActionBroker
	metrics   types.MetricsManager
}

func NewExecutor(
	ctx context.Context,
	logger types.Logger,
	config *types.UpstreamConfig,
	cacheTTL time.Duration,
	engine ProfitEngine,
	cache types.CacheManager,
	transport types.QueryTransport,
) *Executor {
	return &Executor{
		ctx:       ctx,
		logger:    logger,
		config:    config,
		cacheTTL:  cacheTTL,
		engine:    engine,
		cache:     cache,
		transport: transport,
		activity:  NewActivityLog(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (e *Executor) WithHistory(history types.HistoryStore) *Executor {
	e.history = history
	return e
}

func (e *Executor) WithActions(actions types.ActionBroker) *Executor {
	e.actions = actions
	return e
}

func (e *Executor) WithMetrics(metrics types.MetricsManager) *Executor {
	e.metrics = metrics
	return e
}

// Execute settles every request into an envelope: callers always get a
// value, failures arrive as status=error rather than a returned error.
func (e *Executor) Execute(ctx context.Context, req *types.QueryRequest) *types.QueryResponse {
	if err := e.validateRequest(req); err != nil {
		e.recordOutcome("validation_error")
		return e.errorEnvelope(err)
	}

	signature := Signature(e.config.QueryPath, req.Params())

	if cached, ok := e.lookupCache(signature); ok {
		e.logger.Debug("Returning cached result", zap.String("signature", signature))
		e.recordOutcome("cache_hit")
		return cached
	}

	value, err, shared := e.group.Do(signature, func() (interface{}, error) {
		// Late arrivals may race a just-settled leader; the cache
		// check inside the flight keeps them from refetching.
		if cached, ok := e.lookupCache(signature); ok {
			return cached, nil
		}

		resp, err := e.fetchAndEnrich(signature, req)
		if err != nil {
			return nil, err
		}

		if e.cache != nil {
			if setErr := e.cache.Set(signature, resp, e.cacheTTL); setErr != nil {
				e.logger.Warn("Failed to cache query result",
					zap.String("signature", signature),
					zap.Error(setErr))
			}
		}

		return resp, nil
	})

	if shared {
		e.logger.Debug("Request deduplicated against in-flight call",
			zap.String("signature", signature))
	}

	if err != nil {
		e.recordOutcome("error")
		return e.errorEnvelope(err)
	}

	e.recordOutcome("success")
	return value.(*types.QueryResponse)
}

// Health probes the upstream health endpoint: no caching, no retries.
func (e *Executor) Health(ctx context.Context) (*types.UpstreamHealth, error) {
	body, statusCode, err := e.transport.Do(ctx, e.config.HealthPath, nil, &types.CallOptions{
		Timeout: e.config.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	var health types.UpstreamHealth
	if err := utils.Unmarshal(body, &health); err != nil {
		return nil, types.Errorf(types.ErrResponseInvalid, "health payload: %v", err)
	}

	if statusCode >= 400 {
		return &health, types.Errorf(types.ErrUpstream, "health endpoint returned HTTP %d", statusCode)
	}

	return &health, nil
}

// Activity returns the recent-attempt diagnostic ring.
func (e *Executor) Activity() []types.ActivityEntry {
	return e.activity.Entries()
}

func (e *Executor) validateRequest(req *types.QueryRequest) error {
	if req == nil {
		return types.Errorf(types.ErrValidation, "missing request")
	}

	if err := e.validate.Struct(req); err != nil {
		return types.Errorf(types.ErrValidation, "missing required parameters: %v", err)
	}

	if e.config.AuthKey != "" && (req.AuthKey != e.config.AuthKey || req.AppID != e.config.AppID) {
		return types.Errorf(types.ErrValidation, "unauthorized access")
	}

	return nil
}

func (e *Executor) lookupCache(signature string) (*types.QueryResponse, bool) {
	if e.cache == nil {
		return nil, false
	}

	value, ok := e.cache.Get(signature)
	if !ok {
		return nil, false
	}

	resp, ok := decodeCached(value)
	if !ok {
		// Unusable entry, typically a backend swap; drop it.
		_ = e.cache.Delete(signature)
		return nil, false
	}

	hit := *resp
	hit.Cached = true
	return &hit, true
}

// fetchAndEnrich performs the network call with bounded retries and
// linearly increasing backoff. Only network and timeout failures are
// retried; upstream-reported errors are final on first sight.
func (e *Executor) fetchAndEnrich(signature string, req *types.QueryRequest) (*types.QueryResponse, error) {
	payload, err := utils.Marshal(req)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal query request")
	}

	var envelope *types.UpstreamEnvelope
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxRetries+1; attempt++ {
		start := time.Now()
		envelope, lastErr = e.attempt(payload)
		e.logAttempt(signature, attempt, time.Since(start), lastErr)

		if lastErr == nil {
			break
		}

		if !types.IsRetryable(lastErr) || attempt > e.config.MaxRetries {
			return nil, lastErr
		}

		backoff := e.config.RetryDelay.Std() * time.Duration(attempt)
		e.logger.Debug("Retrying upstream query",
			zap.String("signature", signature),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-time.After(backoff):
		case <-e.ctx.Done():
			return nil, types.Errorf(types.ErrNetwork, "executor shutting down during retry")
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	records, stats, trends := e.engine.Enrich(envelope.Data)

	resp := &types.QueryResponse{
		Status:    types.ResponseStatusSuccess,
		Timestamp: time.Now(),
		Data:      records,
		Stats:     stats,
		Trends:    trends,
		QueryInfo: &types.QueryInfo{
			ProjectID: req.ProjectID,
			UKCode:    req.UKCode,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Timestamp: time.Now(),
		},
	}

	e.recordHistory(signature, req, resp)
	e.publish(types.ActionQueryCompleted, resp)

	return resp, nil
}

// attempt issues one network call and validates the envelope at the
// boundary before anything reaches the metrics engine.
func (e *Executor) attempt(payload []byte) (*types.UpstreamEnvelope, error) {
	callCtx, cancel := context.WithTimeout(e.ctx, e.config.Timeout.Std())
	defer cancel()

	body, statusCode, err := e.transport.Do(callCtx, e.config.QueryPath, payload, &types.CallOptions{
		Timeout: e.config.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	var envelope types.UpstreamEnvelope
	if err := utils.Unmarshal(body, &envelope); err != nil {
		return nil, types.Errorf(types.ErrResponseInvalid, "malformed upstream payload: %v", err)
	}

	if statusCode >= 400 || envelope.Status != types.ResponseStatusSuccess {
		message := envelope.Message
		if message == "" {
			message = "upstream rejected the query"
		}
		return nil, types.Errorf(types.ErrUpstream, "%s", message)
	}

	return &envelope, nil
}

func (e *Executor) errorEnvelope(err error) *types.QueryResponse {
	resp := &types.QueryResponse{
		Status:    types.ResponseStatusError,
		ErrorType: types.ErrorKind(err),
		Message:   err.Error(),
		Endpoint:  e.config.QueryPath,
		Timestamp: time.Now(),
	}

	e.publish(types.ActionQueryFailed, resp)

	return resp
}

func (e *Executor) logAttempt(signature string, attempt int, duration time.Duration, err error) {
	entry := types.ActivityEntry{
		ID:          uuid.NewString(),
		Endpoint:    e.config.QueryPath,
		Signature:   signature,
		Attempts:    attempt,
		Success:     err == nil,
		Duration:    duration,
		CompletedAt: time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	e.activity.Record(entry)

	if e.metrics != nil {
		e.metrics.Histogram("query_attempt_duration_seconds",
			[]float64{0.01, 0.1, 0.5, 1, 5, 30, 60},
			map[string]string{"endpoint": e.config.QueryPath},
		).Observe(duration.Seconds())
	}
}

func (e *Executor) recordOutcome(result string) {
	if e.metrics == nil {
		return
	}

	e.metrics.Counter("query_requests_total", map[string]string{
		"result": result,
	}).Inc()
}

func (e *Executor) recordHistory(signature string, req *types.QueryRequest, resp *types.QueryResponse) {
	if e.history == nil {
		return
	}

	entry := &types.HistoryEntry{
		ID:          uuid.NewString(),
		Signature:   signature,
		Endpoint:    e.config.QueryPath,
		ProjectID:   req.ProjectID,
		Status:      resp.Status,
		RecordCount: len(resp.Data),
		CreatedAt:   time.Now(),
	}
	if resp.Stats != nil {
		entry.TotalAmount = resp.Stats.TotalAmount
		entry.TotalProfit = resp.Stats.TotalProfit
	}

	if err := e.history.Append(entry); err != nil {
		e.logger.Warn("Failed to append history entry", zap.Error(err))
	}
}

func (e *Executor) publish(action string, payload interface{}) {
	if e.actions == nil {
		return
	}

	if err := e.actions.Publish(action, payload); err != nil {
		e.logger.Warn("Failed to publish query event",
			zap.String("action", action),
			zap.Error(err))
	}
}

func decodeCached(value interface{}) (*types.QueryResponse, bool) {
	switch v := value.(type) {
	case *types.QueryResponse:
		return v, true
	case []byte:
		var resp types.QueryResponse
		if err := utils.Unmarshal(v, &resp); err != nil {
			return nil, false
		}
		return &resp, true
	default:
		return nil, false
	}
}
