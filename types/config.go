package types

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version" validate:"required"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream" validate:"required"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Profit   *ProfitConfig   `yaml:"profit" json:"profit"`
	History  *HistoryConfig  `yaml:"history" json:"history"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health   *HealthConfig   `yaml:"health" json:"health"`
	Cron     *CronConfig     `yaml:"cron" json:"cron"`
	Actions  *ActionsConfig  `yaml:"actions" json:"actions"`
}

// UpstreamConfig describes the scraping backend consumed as a plain
// JSON-over-HTTP endpoint.
type UpstreamConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	QueryPath      string                `yaml:"query_path" json:"query_path"`
	HealthPath     string                `yaml:"health_path" json:"health_path"`
	Timeout        Duration              `yaml:"timeout" json:"timeout" validate:"min=0"`
	MaxRetries     int                   `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	RetryDelay     Duration              `yaml:"retry_delay" json:"retry_delay" validate:"min=0"`
	AuthKey        string                `yaml:"auth_key" json:"auth_key"`
	AppID          string                `yaml:"app_id" json:"app_id"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold int      `yaml:"failure_threshold" json:"failure_threshold" validate:"min=1"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout" json:"recovery_timeout" validate:"min=0"`
}

type LoggerConfig struct {
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled    bool        `yaml:"enabled" json:"enabled"`
	Type       string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config     interface{} `yaml:"config" json:"config"`
	DefaultTTL Duration    `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
}

// ProfitConfig drives per-record profit derivation: a base coefficient,
// a status-specific multiplier and an amount-tier multiplier.
type ProfitConfig struct {
	BaseCoefficient   float64            `yaml:"base_coefficient" json:"base_coefficient" validate:"gt=0"`
	StatusMultipliers *StatusMultipliers `yaml:"status_multipliers" json:"status_multipliers"`
	Tiers             []ProfitTier       `yaml:"tiers" json:"tiers" validate:"max=3,dive"`
}

type StatusMultipliers struct {
	Success  float64 `yaml:"success" json:"success" validate:"min=0"`
	Failed   float64 `yaml:"failed" json:"failed" validate:"min=0"`
	Refunded float64 `yaml:"refunded" json:"refunded" validate:"min=0"`
	Other    float64 `yaml:"other" json:"other" validate:"min=0"`
}

type ProfitTier struct {
	Threshold  float64 `yaml:"threshold" json:"threshold" validate:"min=0"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier" validate:"gt=0"`
}

type HistoryConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type CronConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Timezone        string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	CacheSweepSpec  string `yaml:"cache_sweep_spec" json:"cache_sweep_spec"`
	HealthProbeSpec string `yaml:"health_probe_spec" json:"health_probe_spec"`
}

type ActionsConfig struct {
	Enabled   bool        `yaml:"enabled" json:"enabled"`
	Webhook   bool        `yaml:"webhook" json:"webhook"`
	Websocket bool        `yaml:"websocket" json:"websocket"`
	Config    interface{} `yaml:"config" json:"config"`
}
