package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/agent/bedrock"
	"github.com/BaSui01/agentdash/agent/middleware"
	"github.com/BaSui01/agentdash/agent/sandbox"
	"github.com/BaSui01/agentdash/agent/tools"
	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/internal/agentlog"
	"github.com/BaSui01/agentdash/internal/cache"
	"github.com/BaSui01/agentdash/internal/database"
	"github.com/BaSui01/agentdash/internal/metrics"
	"github.com/BaSui01/agentdash/internal/telemetry"
	"github.com/BaSui01/agentdash/internal/transcript"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

// app holds the process-wide collaborators shared by chat and serve.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	events  *agent.EventBus
	vfs     *vfs.Registry
	manager *agent.Manager
	otel    *telemetry.Providers

	db        *database.PoolManager
	recorder  *transcript.Recorder
	cache     *cache.Manager
	snapshots *cache.SnapshotStore
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	level, err := types.ParseLogLevel(cfg.Agent.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.otel, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}
	a.events = agent.NewEventBus(1024, logger)
	a.vfs = vfs.NewRegistry(logger)

	if err := a.openStores(); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	logDir := ""
	if cfg.AgentLog.Enabled {
		logDir = cfg.AgentLog.Dir
		if n, err := agentlog.CleanupOldLogs(logDir, cfg.AgentLog.Keep, logger); err != nil {
			logger.Warn("agent log cleanup failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("removed old agent logs", zap.Int("count", n))
		}
	}

	mcfg := agent.ManagerConfig{
		Logger:      logger,
		Metrics:     a.metrics,
		Events:      a.events,
		VFS:         a.vfs,
		VFSMaxSize:  cfg.VFS.MaxSize,
		Credentials: bedrock.NewChainCredentials(cfg.Bedrock),
		AgentLogDir: logDir,
		LogLevel:    level,
		Telemetry:   cfg.Agent.Telemetry,
		Layers:      layersFor(cfg.Agent, logger),
	}
	if a.recorder != nil {
		mcfg.Transcript = a.recorder
	}
	a.manager = agent.NewManager(nil, mcfg)

	exec := sandbox.NewExecutor(sandbox.ConfigFrom(cfg.Sandbox),
		sandbox.WithLogger(logger),
		sandbox.WithMetrics(a.metrics),
		sandbox.WithVFS(a.vfs),
	)
	a.manager.SetFactory(bedrock.NewFactory(cfg.Bedrock, cfg.Agent, tools.Deps{
		Logger:  logger,
		Sandbox: exec,
		Spawner: a.manager,
		VFS:     a.vfs,
	}))
	return a, nil
}

// openStores connects the optional transcript database and snapshot cache.
func (a *app) openStores() error {
	if a.cfg.Database.Enabled {
		db, err := database.Open(a.cfg.Database, a.logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.db = db
		store, err := transcript.NewStore(db.DB())
		if err != nil {
			return fmt.Errorf("transcript store: %w", err)
		}
		a.recorder = transcript.NewRecorder(store, a.cfg.Agent.TranscriptQueueSize, a.logger)
	}

	if a.cfg.Redis.Enabled {
		cc := cache.DefaultConfig()
		cc.Addr = a.cfg.Redis.Addr
		cc.Password = a.cfg.Redis.Password
		cc.DB = a.cfg.Redis.DB
		if a.cfg.Redis.PoolSize > 0 {
			cc.PoolSize = a.cfg.Redis.PoolSize
		}
		cc.MinIdleConns = a.cfg.Redis.MinIdleConns
		m, err := cache.NewManager(cc, a.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.cache = m
		a.snapshots = cache.NewSnapshotStore(m, a.cfg.Redis.KeyPrefix, a.cfg.VFS.SnapshotTTL, a.metrics, a.logger)
	}
	return nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.manager != nil {
		a.manager.Shutdown()
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.events != nil {
		a.events.Stop()
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// layersFor builds each agent's middleware from the agent section.
func layersFor(cfg config.AgentConfig, logger *zap.Logger) func(types.AgentType) []middleware.Layer {
	return func(types.AgentType) []middleware.Layer {
		var layers []middleware.Layer
		if cfg.RecommendedLayers {
			var est middleware.Estimator = middleware.LenEstimator{}
			if cfg.UseTokenizer {
				est = middleware.NewTiktokenEstimator("")
			}
			layers = append(layers,
				middleware.NewLogging(logger),
				middleware.NewTokenTracking(middleware.TokenTrackingConfig{
					Threshold: cfg.TokenThreshold,
					LogTokens: true,
					Estimator: est,
				}, logger),
			)
		}
		if cfg.AutoAnalysis {
			layers = append(layers, middleware.NewAutoAnalysis(logger))
		}
		return layers
	}
}
