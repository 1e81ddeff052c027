package types

import (
	"context"
	"time"
)

// QueryTransport performs a single upstream attempt. Retry and
// deduplication policy live with the caller.
type QueryTransport interface {
	Do(ctx context.Context, path string, body []byte, opts *CallOptions) ([]byte, int, error)
	Close()
}

type CallOptions struct {
	Timeout time.Duration
	Headers map[string]string
}
