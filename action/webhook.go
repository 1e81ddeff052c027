package action

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

type WebhookState int32

const (
	WebhookStateStopped WebhookState = iota
	WebhookStateStarting
	WebhookStateRunning
	WebhookStateStopping
)

type WebhookConfig struct {
	DatabasePath    string         `json:"database_path"`
	RequestTimeout  types.Duration `json:"request_timeout"`
	DeliveryTimeout types.Duration `json:"delivery_timeout"`
}

// WebhookManager delivers query events to registered HTTP endpoints.
// Subscriptions persist in a local SQLite database across restarts.
type WebhookManager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	db              *sql.DB
	client          *http.Client
	state           atomic.Value
	deliveryTimeout time.Duration
	requestTimeout  time.Duration
}

type Webhook struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Secret    string            `json:"secret"`
	Enabled   bool              `json:"enabled"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewWebhookManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *WebhookConfig) (*WebhookManager, error) {
	if config == nil {
		config = &WebhookConfig{}
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "./webhooks.db"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = types.Duration(5 * time.Second)
	}
	if config.DeliveryTimeout == 0 {
		config.DeliveryTimeout = types.Duration(30 * time.Second)
	}

	webhookCtx, cancel := context.WithCancel(ctx)

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to open SQLite database")
	}

	wm := &WebhookManager{
		ctx:     webhookCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		db:      db,
		client: &http.Client{
			Timeout: config.DeliveryTimeout.Std(),
		},
		deliveryTimeout: config.DeliveryTimeout.Std(),
		requestTimeout:  config.RequestTimeout.Std(),
	}

	wm.state.Store(WebhookStateStopped)

	if err := wm.initDatabase(); err != nil {
		cancel()
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return wm, nil
}

func (wm *WebhookManager) Start() error {
	if !wm.transitionState(WebhookStateStopped, WebhookStateStarting) {
		return types.ErrComponentRunning
	}

	defer func() {
		if wm.getState() == WebhookStateStarting {
			wm.setState(WebhookStateRunning)
		}
	}()

	wm.logger.Info("Webhook manager started")
	return nil
}

func (wm *WebhookManager) Stop() error {
	if !wm.transitionState(WebhookStateRunning, WebhookStateStopping) {
		return types.ErrComponentNotRunning
	}

	defer func() {
		wm.setState(WebhookStateStopped)
		wm.cancel()
	}()

	if err := wm.db.Close(); err != nil {
		wm.logger.Error("Failed to close database", zap.Error(err))
		return err
	}

	wm.logger.Info("Webhook manager stopped gracefully")
	return nil
}

func (wm *WebhookManager) IsRunning() bool {
	return wm.getState() == WebhookStateRunning
}

func (wm *WebhookManager) getState() WebhookState {
	return wm.state.Load().(WebhookState)
}

func (wm *WebhookManager) setState(newState WebhookState) bool {
	currentState := wm.getState()
	return wm.state.CompareAndSwap(currentState, newState)
}

func (wm *WebhookManager) transitionState(from, to WebhookState) bool {
	return wm.state.CompareAndSwap(from, to)
}

func (wm *WebhookManager) initDatabase() error {
	query := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT,
		secret TEXT,
		enabled BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_event ON webhooks(event);
	CREATE INDEX IF NOT EXISTS idx_webhooks_enabled ON webhooks(enabled);
	`

	_, err := wm.db.Exec(query)
	if err != nil {
		return types.WrapError(err, "failed to create webhooks table")
	}

	return nil
}

// Register persists a new webhook subscription and returns it with a
// generated delivery secret.
func (wm *WebhookManager) Register(event, url string, headers map[string]string) (*Webhook, error) {
	if event == "" || url == "" {
		return nil, types.ErrActionConfigInvalid
	}

	webhook := &Webhook{
		ID:        fmt.Sprintf("wh_%d", time.Now().UnixNano()),
		Event:     event,
		URL:       url,
		Headers:   headers,
		Secret:    wm.generateSecret(),
		Enabled:   true,
		CreatedAt: time.Now(),
	}

	headersJSON := ""
	if len(headers) > 0 {
		data, err := utils.Marshal(headers)
		if err != nil {
			return nil, types.WrapError(err, "failed to marshal webhook headers")
		}
		headersJSON = utils.BytesToString(data)
	}

	query := `INSERT INTO webhooks (id, event, url, headers, secret, enabled, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := wm.db.Exec(query, webhook.ID, webhook.Event, webhook.URL,
		headersJSON, webhook.Secret, webhook.Enabled, webhook.CreatedAt)
	if err != nil {
		return nil, types.WrapError(err, "failed to insert webhook")
	}

	wm.logger.Info("Webhook registered",
		zap.String("id", webhook.ID),
		zap.String("event", webhook.Event),
		zap.String("url", webhook.URL))

	return webhook, nil
}

func (wm *WebhookManager) Remove(id string) error {
	result, err := wm.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return types.WrapError(err, "failed to delete webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to check deleted rows")
	}

	if affected == 0 {
		return types.NewErrorf("webhook not found: %s", id)
	}

	wm.logger.Info("Webhook removed", zap.String("id", id))
	return nil
}

func (wm *WebhookManager) List() ([]*Webhook, error) {
	return wm.queryWebhooks(`SELECT id, event, url, headers, secret, enabled, created_at FROM webhooks`)
}

// Notify delivers the message to every enabled webhook registered for
// its action, concurrently.
func (wm *WebhookManager) Notify(message *types.ActionMessage) error {
	if !wm.IsRunning() {
		return types.ErrActionNotInitialized
	}

	start := time.Now()

	webhooks, err := wm.queryWebhooks(
		`SELECT id, event, url, headers, secret, enabled, created_at
		 FROM webhooks WHERE event = ? AND enabled = true`, message.Action)
	if err != nil {
		wm.recordMetric("notify", "error", message.Action, time.Since(start))
		return types.WrapError(err, "failed to get webhooks")
	}

	if len(webhooks) == 0 {
		wm.recordMetric("notify", "no_webhooks", message.Action, time.Since(start))
		return nil
	}

	wm.logger.Debug("Notifying webhooks",
		zap.String("event", message.Action),
		zap.Int("webhook_count", len(webhooks)))

	notifyCtx, cancel := context.WithTimeout(wm.ctx, wm.deliveryTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(notifyCtx)

	var successCount int32
	var errorCount int32

	for _, webhook := range webhooks {
		wh := webhook
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := wm.deliver(wh, message); err != nil {
					atomic.AddInt32(&errorCount, 1)
					wm.logger.Error("Webhook delivery failed",
						zap.String("webhook_id", wh.ID),
						zap.String("event", message.Action),
						zap.String("url", wh.URL),
						zap.Error(err))
					return err
				}

				atomic.AddInt32(&successCount, 1)
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		if atomic.LoadInt32(&successCount) > 0 {
			wm.logger.Warn("Some webhook deliveries failed",
				zap.String("event", message.Action),
				zap.Int32("success_count", atomic.LoadInt32(&successCount)),
				zap.Int32("error_count", atomic.LoadInt32(&errorCount)))
			wm.recordMetric("notify", "partial_success", message.Action, time.Since(start))
			return nil
		}

		wm.recordMetric("notify", "error", message.Action, time.Since(start))
		return types.WrapError(err, "all webhook deliveries failed")
	}

	wm.recordMetric("notify", "success", message.Action, time.Since(start))
	return nil
}

func (wm *WebhookManager) deliver(webhook *Webhook, message *types.ActionMessage) error {
	start := time.Now()

	jsonData, err := utils.Marshal(message)
	if err != nil {
		wm.recordMetric("delivery", "marshal_error", message.Action, time.Since(start))
		return types.WrapError(err, "failed to marshal webhook payload")
	}

	deliveryCtx, cancel := context.WithTimeout(wm.ctx, wm.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(deliveryCtx, "POST", webhook.URL, strings.NewReader(string(jsonData)))
	if err != nil {
		wm.recordMetric("delivery", "request_error", message.Action, time.Since(start))
		return types.WrapError(err, "failed to create HTTP request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SAI-Query-Service-Webhook/1.0")

	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	if webhook.Secret != "" {
		signature := generateHMACSignature(webhook.Secret, jsonData)
		req.Header.Set("X-Signature", fmt.Sprintf("sha256=%s", signature))
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		select {
		case <-deliveryCtx.Done():
			wm.recordMetric("delivery", "timeout", message.Action, time.Since(start))
			return types.NewErrorf("webhook delivery timeout for webhook %s", webhook.ID)
		default:
			wm.recordMetric("delivery", "http_error", message.Action, time.Since(start))
			return types.WrapError(err, "HTTP request failed")
		}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			wm.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode >= 400 {
		wm.recordMetric("delivery", "http_error", message.Action, time.Since(start))
		return types.NewErrorf("webhook returned error status: %d %s", resp.StatusCode, resp.Status)
	}

	wm.recordMetric("delivery", "success", message.Action, time.Since(start))
	return nil
}

func (wm *WebhookManager) queryWebhooks(query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := wm.db.Query(query, args...)
	if err != nil {
		return nil, types.WrapError(err, "failed to query webhooks")
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			wm.logger.Error("Failed to close database rows", zap.Error(err))
		}
	}(rows)

	var webhooks []*Webhook
	for rows.Next() {
		webhook := &Webhook{}
		var headersJSON string

		err := rows.Scan(&webhook.ID, &webhook.Event, &webhook.URL,
			&headersJSON, &webhook.Secret, &webhook.Enabled, &webhook.CreatedAt)
		if err != nil {
			return nil, types.WrapError(err, "failed to scan webhook")
		}

		webhook.Headers = make(map[string]string)
		if headersJSON != "" {
			if err := utils.Unmarshal([]byte(headersJSON), &webhook.Headers); err != nil {
				wm.logger.Warn("Failed to parse webhook headers",
					zap.String("webhook_id", webhook.ID),
					zap.Error(err))
			}
		}

		webhooks = append(webhooks, webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate webhooks")
	}

	return webhooks, nil
}

func (wm *WebhookManager) generateSecret() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		wm.logger.Error("Failed to generate random bytes for secret", zap.Error(err))
	}
	return hex.EncodeToString(bytes)
}

func (wm *WebhookManager) recordMetric(operation, result, event string, duration time.Duration) {
	if wm.metrics == nil {
		return
	}

	wm.metrics.Counter("webhook_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"event":     event,
	}).Inc()

	wm.metrics.Histogram("webhook_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0, 10.0, 30.0},
		map[string]string{"operation": operation, "event": event},
	).Observe(duration.Seconds())
}

func generateHMACSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
