package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

type SinkState int32

const (
	SinkStateStopped SinkState = iota
	SinkStateStarting
	SinkStateRunning
	SinkStateStopping
	SinkStateReconnecting
)

type WebSocketConfig struct {
	URL            string         `json:"url"`
	ReconnectDelay types.Duration `json:"reconnect_delay"`
	MaxRetries     int            `json:"max_retries"`
	PingInterval   types.Duration `json:"ping_interval"`
	PongWait       types.Duration `json:"pong_wait"`
	WriteWait      types.Duration `json:"write_wait"`
}

// WebSocketSink streams query events to a remote collector over a
// single persistent connection, reconnecting with a capped retry count.
type WebSocketSink struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	metrics           types.MetricsManager
	config            *WebSocketConfig
	conn              *websocket.Conn
	connMu            sync.RWMutex
	send              chan *types.ActionMessage
	reconnectCh       chan struct{}
	state             atomic.Value
	reconnectAttempts int32
}

func NewWebSocketSink(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *WebSocketConfig) (*WebSocketSink, error) {
	wsConfig := &WebSocketConfig{
		URL:            "ws://localhost:8081/ws",
		ReconnectDelay: types.Duration(5 * time.Second),
		MaxRetries:     10,
		PingInterval:   types.Duration(54 * time.Second),
		PongWait:       types.Duration(60 * time.Second),
		WriteWait:      types.Duration(10 * time.Second),
	}

	if config != nil {
		if config.URL != "" {
			wsConfig.URL = config.URL
		}
		if config.ReconnectDelay > 0 {
			wsConfig.ReconnectDelay = config.ReconnectDelay
		}
		if config.MaxRetries > 0 {
			wsConfig.MaxRetries = config.MaxRetries
		}
		if config.PingInterval > 0 {
			wsConfig.PingInterval = config.PingInterval
		}
		if config.PongWait > 0 {
			wsConfig.PongWait = config.PongWait
		}
		if config.WriteWait > 0 {
			wsConfig.WriteWait = config.WriteWait
		}
	}

	sinkCtx, cancel := context.WithCancel(ctx)

	sink := &WebSocketSink{
		ctx:         sinkCtx,
		cancel:      cancel,
		logger:      logger,
		metrics:     metrics,
		config:      wsConfig,
		send:        make(chan *types.ActionMessage, 256),
		reconnectCh: make(chan struct{}, 1),
	}

	sink.state.Store(SinkStateStopped)

	logger.Info("WebSocket sink initialized",
		zap.String("url", wsConfig.URL),
		zap.Duration("reconnect_delay", wsConfig.ReconnectDelay.Std()),
		zap.Int("max_retries", wsConfig.MaxRetries))

	return sink, nil
}

// Send queues a message for delivery. The queue is bounded; messages
// are dropped rather than blocking the publisher.
func (w *WebSocketSink) Send(message *types.ActionMessage) error {
	if !w.IsRunning() {
		return types.ErrActionNotInitialized
	}

	select {
	case w.send <- message:
		w.logger.Debug("Message queued for delivery",
			zap.String("action", message.Action),
			zap.String("message_id", message.MessageID))
		return nil
	case <-w.ctx.Done():
		return types.ErrActionNotInitialized
	default:
		w.logger.Error("Send channel is full, dropping message",
			zap.String("action", message.Action),
			zap.String("message_id", message.MessageID))
		w.countDropped(message.Action)
		return types.ErrActionPublishFailed
	}
}

func (w *WebSocketSink) Start() error {
	if !w.transitionState(SinkStateStopped, SinkStateStarting) {
		return types.ErrComponentRunning
	}

	defer func() {
		if w.getState() == SinkStateStarting {
			w.setState(SinkStateRunning)
		}
	}()

	if err := w.connect(); err != nil {
		w.setState(SinkStateStopped)
		w.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	go w.writePump()
	go w.reconnectLoop()

	w.logger.Info("WebSocket sink started successfully")
	return nil
}

func (w *WebSocketSink) Stop() error {
	if !w.transitionState(SinkStateRunning, SinkStateStopping) &&
		!w.transitionState(SinkStateReconnecting, SinkStateStopping) {
		return types.ErrComponentNotRunning
	}

	defer func() {
		w.setState(SinkStateStopped)
		w.cancel()
	}()

	w.connMu.Lock()
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Error("Failed to close connection", zap.Error(err))
		}
		w.conn = nil
	}
	w.connMu.Unlock()

	w.logger.Info("WebSocket sink stopped gracefully")
	return nil
}

func (w *WebSocketSink) IsRunning() bool {
	state := w.getState()
	return state == SinkStateRunning || state == SinkStateReconnecting
}

func (w *WebSocketSink) getState() SinkState {
	return w.state.Load().(SinkState)
}

func (w *WebSocketSink) setState(newState SinkState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *WebSocketSink) transitionState(from, to SinkState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *WebSocketSink) connect() error {
	w.logger.Debug("Connecting to WebSocket collector",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(dialCtx, w.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial WebSocket collector")
	}

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
		return nil
	})

	atomic.StoreInt32(&w.reconnectAttempts, 0)

	w.logger.Info("Connected to WebSocket collector")
	return nil
}

func (w *WebSocketSink) writePump() {
	ticker := time.NewTicker(w.config.PingInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case message, ok := <-w.send:
			if !ok {
				return
			}

			if err := w.writeMessage(message); err != nil {
				w.logger.Error("Failed to write message",
					zap.String("action", message.Action),
					zap.Error(err))
				w.countDropped(message.Action)
				w.triggerReconnect()
			}

		case <-ticker.C:
			if err := w.writePing(); err != nil {
				w.logger.Debug("Ping failed", zap.Error(err))
				w.triggerReconnect()
			}
		}
	}
}

func (w *WebSocketSink) writeMessage(message *types.ActionMessage) error {
	data, err := utils.Marshal(message)
	if err != nil {
		return types.WrapError(err, "failed to marshal message")
	}

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()

	if conn == nil {
		return types.ErrActionConnectionFailed
	}

	_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait.Std()))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocketSink) writePing() error {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()

	if conn == nil {
		return types.ErrActionConnectionFailed
	}

	_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait.Std()))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *WebSocketSink) reconnectLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.reconnectCh:
			if !w.IsRunning() {
				return
			}

			if w.getState() == SinkStateRunning {
				w.setState(SinkStateReconnecting)
			}

			retryCount := atomic.LoadInt32(&w.reconnectAttempts)
			if int(retryCount) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, stopping sink")
				if w.transitionState(SinkStateReconnecting, SinkStateStopping) {
					w.cancel()
				}
				return
			}

			select {
			case <-time.After(w.config.ReconnectDelay.Std()):
			case <-w.ctx.Done():
				return
			}

			atomic.AddInt32(&w.reconnectAttempts, 1)

			if err := w.connect(); err != nil {
				w.logger.Error("Reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&w.reconnectAttempts)),
					zap.Error(err))
				w.triggerReconnect()
				continue
			}

			w.setState(SinkStateRunning)
			w.logger.Info("Reconnected to WebSocket collector")
		}
	}
}

func (w *WebSocketSink) triggerReconnect() {
	select {
	case w.reconnectCh <- struct{}{}:
	case <-w.ctx.Done():
	default:
	}
}

func (w *WebSocketSink) countDropped(action string) {
	if w.metrics == nil {
		return
	}

	w.metrics.Counter("websocket_messages_dropped_total", map[string]string{
		"action": action,
	}).Inc()
}
