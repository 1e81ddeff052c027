package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopped
)

// HTTPClient is the upstream transport. It performs exactly one attempt
// per Do call; the query executor owns retry and backoff policy.
type HTTPClient struct {
	logger         types.Logger
	client         *fasthttp.Client
	baseURL        string
	config         *types.UpstreamConfig
	circuitBreaker *CircuitBreaker
	state          atomic.Value
}

func NewHTTPClient(logger types.Logger, config *types.UpstreamConfig) *HTTPClient {
	httpClient := &fasthttp.Client{
		ReadTimeout:  config.Timeout.Std(),
		WriteTimeout: config.Timeout.Std(),
	}

	client := &HTTPClient{
		logger:         logger,
		client:         httpClient,
		baseURL:        config.BaseURL,
		config:         config,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger, config.BaseURL),
	}

	client.state.Store(StateRunning)

	return client
}

func (c *HTTPClient) Do(ctx context.Context, path string, body []byte, opts *types.CallOptions) ([]byte, int, error) {
	if !c.IsRunning() {
		return nil, 0, types.ErrClientNotRunning
	}

	if !c.circuitBreaker.CanExecute() {
		return nil, 0, types.Errorf(types.ErrCircuitBreakerOpen, "upstream: %s", c.baseURL)
	}

	timeout := c.config.Timeout.Std()
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, 0, types.Errorf(types.ErrTimeout, "no time left for upstream call to %s", path)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)

	if body != nil {
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	} else {
		req.Header.SetMethod(fasthttp.MethodGet)
	}

	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	err := c.client.DoTimeout(req, resp, timeout)
	if err != nil {
		c.circuitBreaker.RecordFailure()
		return nil, 0, classifyTransportError(err, path)
	}

	statusCode := resp.StatusCode()
	responseBody := make([]byte, len(resp.Body()))
	copy(responseBody, resp.Body())

	if statusCode >= 500 {
		c.circuitBreaker.RecordFailure()
		return responseBody, statusCode, types.Errorf(types.ErrNetwork, "HTTP %d from %s", statusCode, path)
	}

	c.circuitBreaker.RecordSuccess()

	if statusCode >= 400 {
		// The upstream answered; 4xx envelopes carry their own error body.
		return responseBody, statusCode, nil
	}

	return responseBody, statusCode, nil
}

func (c *HTTPClient) Close() {
	if !c.state.CompareAndSwap(StateRunning, StateStopped) {
		return
	}

	c.client.CloseIdleConnections()
	c.logger.Debug("HTTP client closed", zap.String("upstream", c.baseURL))
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *HTTPClient) BreakerState() BreakerState {
	return c.circuitBreaker.State()
}

func classifyTransportError(err error, path string) error {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return types.Errorf(types.ErrTimeout, "attempt to %s: %v", path, err)
	}
	return types.Errorf(types.ErrNetwork, "attempt to %s: %v", path, err)
}
