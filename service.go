package saiquery

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-query-service/action"
	"github.com/saiset-co/sai-query-service/analytics"
	"github.com/saiset-co/sai-query-service/cache"
	"github.com/saiset-co/sai-query-service/client"
	"github.com/saiset-co/sai-query-service/config"
	"github.com/saiset-co/sai-query-service/cron"
	"github.com/saiset-co/sai-query-service/health"
	"github.com/saiset-co/sai-query-service/history"
	"github.com/saiset-co/sai-query-service/logger"
	"github.com/saiset-co/sai-query-service/metrics"
	"github.com/saiset-co/sai-query-service/query"
	"github.com/saiset-co/sai-query-service/report"
	"github.com/saiset-co/sai-query-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	cacheSweepJob  = "cache_sweep"
	healthProbeJob = "upstream_health_probe"
)

// Service wires the cached query pipeline together: config, logging,
// cache, upstream transport, analytics enrichment, history, events and
// maintenance jobs. Optional components stay nil when disabled.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   *config.ConfigurationManager
	logger   types.LoggerManager
	metrics  types.MetricsManager
	cache    types.CacheManager
	client   *client.HTTPClient
	engine   *analytics.Engine
	executor *query.Executor
	reporter *report.Formatter
	history  types.HistoryStore
	health   *health.Manager
	cron     types.CronManager
	actions  types.ActionBroker

	done            chan struct{}
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}
	s.state.Store(StateStopped)

	if err := s.buildComponents(configPath); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Service) buildComponents(configPath string) error {
	configManager, err := config.NewConfigurationManager(s.ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to create config manager")
	}

	if err := configManager.Load(); err != nil {
		return types.WrapError(err, "failed to load config")
	}
	s.config = configManager

	serviceConfig := configManager.GetConfig()

	log, err := logger.NewDefaultLogger(serviceConfig.Logger)
	if err != nil {
		return types.WrapError(err, "failed to create logger")
	}
	s.logger = log

	if serviceConfig.Metrics != nil && serviceConfig.Metrics.Enabled {
		metricsManager, err := metrics.NewManager(s.ctx, configManager, log)
		if err != nil {
			return types.WrapError(err, "failed to create metrics manager")
		}
		s.metrics = metricsManager
	}

	if serviceConfig.Cache != nil && serviceConfig.Cache.Enabled {
		cacheManager, err := cache.NewCacheManager(s.ctx, configManager, log, s.metrics)
		if err != nil {
			return types.WrapError(err, "failed to create cache manager")
		}
		s.cache = cacheManager
	}

	s.client = client.NewHTTPClient(log, serviceConfig.Upstream)
	s.engine = analytics.NewEngine(serviceConfig.Profit)
	s.reporter = report.NewFormatter(s.engine)

	var cacheTTL time.Duration
	if serviceConfig.Cache != nil {
		cacheTTL = serviceConfig.Cache.DefaultTTL.Std()
	}

	s.executor = query.NewExecutor(s.ctx, log, serviceConfig.Upstream,
		cacheTTL, s.engine, s.cache, s.client)

	if s.metrics != nil {
		s.executor.WithMetrics(s.metrics)
	}

	if serviceConfig.History != nil && serviceConfig.History.Enabled {
		historyStore, err := history.NewHistoryStore(s.ctx, configManager, log)
		if err != nil {
			return types.WrapError(err, "failed to create history store")
		}
		s.history = historyStore
		s.executor.WithHistory(historyStore)
	}

	if serviceConfig.Actions != nil && serviceConfig.Actions.Enabled {
		dispatcher, err := action.NewDispatcher(s.ctx, configManager, log, s.metrics)
		if err != nil {
			return types.WrapError(err, "failed to create action dispatcher")
		}
		s.actions = dispatcher
		s.executor.WithActions(dispatcher)
	}

	if serviceConfig.Health != nil && serviceConfig.Health.Enabled {
		healthManager, err := health.NewManager(s.ctx, configManager, log)
		if err != nil {
			return types.WrapError(err, "failed to create health manager")
		}
		s.health = healthManager

		healthManager.RegisterChecker("upstream", health.UpstreamChecker(s.executor.Health))
		healthManager.RegisterChecker("cache", health.CacheChecker(s.cache))
		healthManager.RegisterChecker("history", health.HistoryChecker(s.history))
	}

	if serviceConfig.Cron != nil && serviceConfig.Cron.Enabled {
		cronManager, err := cron.NewManager(configManager, log, s.metrics)
		if err != nil {
			return types.WrapError(err, "failed to create cron manager")
		}
		s.cron = cronManager

		if err := s.registerJobs(serviceConfig.Cron); err != nil {
			return types.WrapError(err, "failed to register cron jobs")
		}
	}

	return nil
}

func (s *Service) registerJobs(cronConfig *types.CronConfig) error {
	if s.cache != nil && cronConfig.CacheSweepSpec != "" {
		err := s.cron.Add(cacheSweepJob, cronConfig.CacheSweepSpec, func() {
			sweeper, ok := s.cache.(cache.Sweeper)
			if !ok {
				return
			}
			if removed := sweeper.Sweep(); removed > 0 {
				s.logger.Info("Swept expired cache entries", zap.Int("removed", removed))
			}
		})
		if err != nil {
			return err
		}
	}

	if s.health != nil && cronConfig.HealthProbeSpec != "" {
		err := s.cron.Add(healthProbeJob, cronConfig.HealthProbeSpec, func() {
			probe := s.health.Check(s.ctx)
			if probe.Status != types.StatusHealthy {
				s.logger.Warn("Health probe reported degraded state",
					zap.String("status", string(probe.Status)),
					zap.Int("unhealthy", probe.Summary.Unhealthy))
			}
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if err := s.config.Start(); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start config manager")
	}

	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			s.logger.Error("Failed to start metrics manager", zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Start(); err != nil {
			s.setState(StateStopped)
			return types.WrapError(err, "failed to start cache manager")
		}
	}

	if s.history != nil {
		if err := s.history.Start(); err != nil {
			s.logger.Error("Failed to start history store", zap.Error(err))
			s.history = nil
		}
	}

	if s.actions != nil {
		if err := s.actions.Start(); err != nil {
			s.logger.Error("Failed to start action dispatcher", zap.Error(err))
		}
	}

	if s.health != nil {
		if err := s.health.Start(); err != nil {
			s.logger.Error("Failed to start health manager", zap.Error(err))
		}
	}

	if s.cron != nil {
		if err := s.cron.Start(); err != nil {
			s.logger.Error("Failed to start cron manager", zap.Error(err))
		}
	}

	s.logger.Info("Service started successfully",
		zap.String("name", s.config.GetConfig().Name),
		zap.String("version", s.config.GetConfig().Version))

	return nil
}

// Run starts the service and blocks until the context is cancelled or
// a termination signal arrives.
func (s *Service) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
		s.logger.Info("Context cancelled, shutting down")
	}

	return s.Stop()
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) &&
		!s.transitionState(StateStarting, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
		close(s.done)
	}()

	s.logger.Info("Stopping service components...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Stop producers before sinks so shutdown does not drop events.
	if s.cron != nil {
		if err := s.cron.Stop(); err != nil && !types.IsError(err, types.ErrComponentNotRunning) {
			s.logger.Error("Failed to stop cron manager", zap.Error(err))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if s.health != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return s.health.Stop()
			}
		})
	}

	if s.actions != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return s.actions.Stop()
			}
		})
	}

	if s.history != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return s.history.Stop()
			}
		})
	}

	if s.cache != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return s.cache.Stop()
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger.Warn("Service stop timeout, some components may not have stopped gracefully")
		default:
			s.logger.ErrorWithCause("Error during component shutdown", err)
		}
	}

	s.client.Close()

	if s.metrics != nil {
		if err := s.metrics.Stop(); err != nil {
			s.logger.Error("Failed to stop metrics manager", zap.Error(err))
		}
	}

	if err := s.config.Stop(); err != nil {
		s.logger.Error("Failed to stop config manager", zap.Error(err))
	}

	s.logger.Info("Service stopped gracefully")
	_ = s.logger.Sync()
	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Execute runs a query through the cached, deduplicated pipeline.
func (s *Service) Execute(ctx context.Context, req *types.QueryRequest) *types.QueryResponse {
	return s.executor.Execute(ctx, req)
}

// Health probes the upstream backend and aggregates component checks.
func (s *Service) Health(ctx context.Context) types.HealthReport {
	if s.health != nil {
		return s.health.Check(ctx)
	}

	summary := types.HealthReport{
		Status:    types.StatusUnknown,
		Timestamp: time.Now(),
		Checks:    map[string]types.HealthCheck{},
	}

	upstream, err := s.executor.Health(ctx)
	if err == nil && upstream != nil {
		summary.Status = types.StatusHealthy
	}
	return summary
}

// Activity returns the recent fetch attempts, newest first.
func (s *Service) Activity() []types.ActivityEntry {
	return s.executor.Activity()
}

// Report renders enriched records as a delimited text report.
func (s *Service) Report(records []types.Record, info *types.QueryInfo) string {
	return s.reporter.ToDelimitedReport(records, info)
}

// CompressedReport renders the report and compresses it for export.
func (s *Service) CompressedReport(records []types.Record, info *types.QueryInfo) ([]byte, error) {
	return s.reporter.ToCompressedReport(records, info)
}

// Metrics returns the serialized metric snapshot when metrics are on.
func (s *Service) Metrics() ([]byte, error) {
	if s.metrics == nil {
		return nil, types.ErrMetricsIsDisabled
	}
	return s.metrics.GetMetrics()
}

// History returns the most recent persisted query summaries.
func (s *Service) History(limit int) ([]types.HistoryEntry, error) {
	if s.history == nil {
		return nil, types.ErrHistoryIsDisabled
	}
	return s.history.Recent(limit)
}

// Subscribe attaches an in-process handler to a query lifecycle event.
func (s *Service) Subscribe(actionName string, handler types.ActionHandler) error {
	if s.actions == nil {
		return types.ErrActionIsDisabled
	}
	return s.actions.Subscribe(actionName, handler)
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
