package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-query-service/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.WrapError(err, "config validation failed")
	}

	if err := validateProfitTiers(config.Profit); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults mirrors the production defaults of the scraping deployment:
// 60s upstream timeout, 3 retries, 5m cache TTL, 500 cache entries.
func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-query-service",
		Version: "1.0.0",
		Upstream: &types.UpstreamConfig{
			QueryPath:  "/api/query",
			HealthPath: "/health",
			Timeout:    types.Duration(60 * time.Second),
			MaxRetries: 3,
			RetryDelay: types.Duration(time.Second),
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  types.Duration(30 * time.Second),
			},
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			Type:       "memory",
			DefaultTTL: types.Duration(5 * time.Minute),
		},
		Profit: &types.ProfitConfig{
			BaseCoefficient: 1.0,
			StatusMultipliers: &types.StatusMultipliers{
				Success:  1.2,
				Failed:   0.5,
				Refunded: 0.8,
				Other:    1.0,
			},
			Tiers: []types.ProfitTier{
				{Threshold: 1000, Multiplier: 1.05},
				{Threshold: 5000, Multiplier: 1.1},
				{Threshold: 10000, Multiplier: 1.2},
			},
		},
		History: &types.HistoryConfig{
			Enabled: false,
			Type:    "memory",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Cron: &types.CronConfig{
			Enabled:         false,
			Timezone:        "UTC",
			CacheSweepSpec:  "0 */5 * * * *",
			HealthProbeSpec: "0 * * * * *",
		},
		Actions: &types.ActionsConfig{
			Enabled: false,
		},
	}
}

// Tier thresholds must ascend so the highest-first match is well defined.
func validateProfitTiers(profit *types.ProfitConfig) error {
	if profit == nil {
		return nil
	}

	for i := 1; i < len(profit.Tiers); i++ {
		if profit.Tiers[i].Threshold < profit.Tiers[i-1].Threshold {
			return types.Errorf(types.ErrConfigValidateFailed,
				"profit tier thresholds must be ascending: %v < %v",
				profit.Tiers[i].Threshold, profit.Tiers[i-1].Threshold)
		}
	}

	return nil
}
