package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

type sinkSettings struct {
	Webhook   *WebhookConfig   `json:"webhook"`
	Websocket *WebSocketConfig `json:"websocket"`
}

// Dispatcher fans query lifecycle events out to in-process handlers
// and to the configured external sinks.
type Dispatcher struct {
	ctx        context.Context
	logger     types.Logger
	metrics    types.MetricsManager
	webhookMgr *WebhookManager
	wsSink     *WebSocketSink
	handlers   map[string][]types.ActionHandler
	mu         sync.RWMutex
	running    int32
}

func NewDispatcher(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.ActionBroker, error) {
	actionsConfig := config.GetConfig().Actions

	if !actionsConfig.Enabled {
		return nil, types.ErrActionIsDisabled
	}

	settings := &sinkSettings{}
	if actionsConfig.Config != nil {
		err := utils.UnmarshalConfig(actionsConfig.Config, settings)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal actions config")
		}
	}

	dispatcher := &Dispatcher{
		ctx:      ctx,
		logger:   logger,
		metrics:  metrics,
		handlers: make(map[string][]types.ActionHandler),
	}

	if actionsConfig.Webhook {
		webhookMgr, err := NewWebhookManager(ctx, logger, metrics, settings.Webhook)
		if err != nil {
			return nil, types.WrapError(err, "failed to create webhook manager")
		}
		dispatcher.webhookMgr = webhookMgr
	}

	if actionsConfig.Websocket {
		wsSink, err := NewWebSocketSink(ctx, logger, metrics, settings.Websocket)
		if err != nil {
			return nil, types.WrapError(err, "failed to create websocket sink")
		}
		dispatcher.wsSink = wsSink
	}

	return dispatcher, nil
}

func (d *Dispatcher) Publish(action string, payload interface{}) error {
	if !d.IsRunning() {
		return types.ErrActionNotInitialized
	}

	start := time.Now()

	message := &types.ActionMessage{
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    "query-service",
		MessageID: uuid.New().String(),
	}

	d.logger.Debug("Publishing event",
		zap.String("action", action),
		zap.String("message_id", message.MessageID))

	d.mu.RLock()
	handlers := d.handlers[action]
	d.mu.RUnlock()

	var failed int32

	for _, handler := range handlers {
		if err := handler(message); err != nil {
			atomic.AddInt32(&failed, 1)
			d.logger.Error("Action handler failed",
				zap.String("action", action),
				zap.Error(err))
		}
	}

	var wg sync.WaitGroup

	if d.webhookMgr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.webhookMgr.Notify(message); err != nil {
				atomic.AddInt32(&failed, 1)
				d.logger.Error("Webhook notification failed",
					zap.String("action", action),
					zap.Error(err))
			}
		}()
	}

	if d.wsSink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.wsSink.Send(message); err != nil {
				atomic.AddInt32(&failed, 1)
				d.logger.Error("WebSocket publish failed",
					zap.String("action", action),
					zap.Error(err))
			}
		}()
	}

	wg.Wait()

	result := "success"
	if atomic.LoadInt32(&failed) > 0 {
		result = "partial_failure"
	}
	d.recordMetric("publish", result, action, time.Since(start))

	return nil
}

func (d *Dispatcher) Subscribe(action string, handler types.ActionHandler) error {
	if action == "" || handler == nil {
		return types.ErrActionConfigInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[action] = append(d.handlers[action], handler)

	d.logger.Debug("Subscribed to action",
		zap.String("action", action),
		zap.Int("total_handlers", len(d.handlers[action])))

	return nil
}

func (d *Dispatcher) Unsubscribe(action string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := len(d.handlers[action])
	delete(d.handlers, action)

	d.logger.Debug("Unsubscribed from action",
		zap.String("action", action),
		zap.Int("removed_handlers", removed))

	return nil
}

func (d *Dispatcher) Start() error {
	if !atomic.CompareAndSwapInt32(&d.running, 0, 1) {
		return types.ErrComponentRunning
	}

	if d.webhookMgr != nil {
		if err := d.webhookMgr.Start(); err != nil {
			atomic.StoreInt32(&d.running, 0)
			return types.WrapError(err, "failed to start webhook manager")
		}
	}

	if d.wsSink != nil {
		if err := d.wsSink.Start(); err != nil {
			d.logger.Error("Failed to start websocket sink", zap.Error(err))
		}
	}

	d.logger.Info("Action dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&d.running, 1, 0) {
		return types.ErrComponentNotRunning
	}

	if d.wsSink != nil {
		if err := d.wsSink.Stop(); err != nil {
			d.logger.Error("Failed to stop websocket sink", zap.Error(err))
		}
	}

	if d.webhookMgr != nil {
		if err := d.webhookMgr.Stop(); err != nil {
			d.logger.Error("Failed to stop webhook manager", zap.Error(err))
		}
	}

	d.logger.Info("Action dispatcher stopped")
	return nil
}

func (d *Dispatcher) IsRunning() bool {
	return atomic.LoadInt32(&d.running) == 1
}

// Webhooks exposes the subscription store for programmatic management.
func (d *Dispatcher) Webhooks() *WebhookManager {
	return d.webhookMgr
}

func (d *Dispatcher) recordMetric(operation, result, action string, duration time.Duration) {
	if d.metrics == nil {
		return
	}

	d.metrics.Counter("action_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"action":    action,
	}).Inc()

	d.metrics.Histogram("action_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0},
		map[string]string{"operation": operation, "action": action},
	).Observe(duration.Seconds())
}
