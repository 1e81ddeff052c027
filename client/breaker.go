package client

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
)

type BreakerState int32

const (
	StateBreakerClosed BreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker cuts off the upstream after repeated failures and
// probes it again once the recovery timeout elapses.
type CircuitBreaker struct {
	config   *types.CircuitBreakerConfig
	logger   types.Logger
	upstream string
	state    atomic.Value
	failures atomic.Int32
	lastFail atomic.Int64
	mutex    sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, upstream string) *CircuitBreaker {
	cb := &CircuitBreaker{
		config:   config,
		logger:   logger,
		upstream: upstream,
	}

	if config == nil {
		cb.config = &types.CircuitBreakerConfig{Enabled: false}
	}

	cb.state.Store(StateBreakerClosed)
	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state.Load().(BreakerState) {
	case StateBreakerOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout.Std() {
			cb.state.Store(StateBreakerHalfOpen)
			cb.logger.Info("Circuit breaker half-open", zap.String("upstream", cb.upstream))
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state.Load().(BreakerState) == StateBreakerHalfOpen {
		cb.logger.Info("Circuit breaker closed", zap.String("upstream", cb.upstream))
	}

	cb.failures.Store(0)
	cb.state.Store(StateBreakerClosed)
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())
	failures := cb.failures.Add(1)

	if cb.state.Load().(BreakerState) == StateBreakerHalfOpen ||
		failures >= int32(cb.config.FailureThreshold) {
		if cb.state.Load().(BreakerState) != StateBreakerOpen {
			cb.logger.Warn("Circuit breaker open",
				zap.String("upstream", cb.upstream),
				zap.Int32("failures", failures))
		}
		cb.state.Store(StateBreakerOpen)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	return cb.state.Load().(BreakerState)
}
