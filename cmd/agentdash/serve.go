package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/internal/cache"
	"github.com/BaSui01/agentdash/internal/server"
	"github.com/BaSui01/agentdash/internal/vfs"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	stdin := fs.Bool("stdin", true, "read task manager input from stdin")
	certFile := fs.String("tls-cert", "", "serve HTTPS with this certificate")
	keyFile := fs.String("tls-key", "", "private key for --tls-cert")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	hub := server.NewEventHub(256, logger)
	a.events.SubscribeAll(func(e agent.Event) { hub.Publish(e) })

	handler := Chain(server.NewMux(server.Options{
		Gatherer: prometheus.DefaultGatherer,
		Hub:      hub,
		Checks:   a.healthChecks(),
		Metrics:  a.metrics,
		Logger:   logger,
		Version:  Version,
	}), Recovery(logger), RequestID(), SecurityHeaders(), OTelTracing())

	srv := server.NewManager(handler, server.ConfigFrom(cfg.Server), logger)
	if *certFile != "" || *keyFile != "" {
		err = srv.StartTLS(*certFile, *keyFile)
	} else {
		err = srv.Start()
	}
	if err != nil {
		return err
	}

	tm, err := a.manager.CreateTaskManager()
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}
	if a.snapshots != nil {
		a.events.Subscribe(agent.EventStateChange, snapshotOnIdle(tm, a.vfs, a.snapshots, logger))
	}
	logger.Info("task manager ready",
		zap.String("agent_id", tm.ID().String()),
		zap.String("vfs_id", tm.VFSID().String()),
		zap.String("addr", srv.Addr()))

	var in io.Reader
	if *stdin {
		in = os.Stdin
	}
	r := newREPL(a.manager, tm, os.Stdout, cfg.Agent.FrameInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.run(gctx, in)
	})
	g.Go(func() error {
		select {
		case err := <-srv.Errors():
			return fmt.Errorf("http server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (a *app) healthChecks() map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{}
	if a.cache != nil {
		checks["redis"] = a.cache.Ping
	}
	if a.db != nil {
		checks["database"] = a.db.Ping
	}
	return checks
}

// snapshotOnIdle saves the task manager's VFS each time one of its turns
// ends.
func snapshotOnIdle(tm *agent.Instance, reg *vfs.Registry, store *cache.SnapshotStore, logger *zap.Logger) agent.EventHandler {
	return func(e agent.Event) {
		if e.AgentID != tm.ID() || e.From != agent.StateProcessing || e.To != agent.StateReady {
			return
		}
		fs, err := reg.Get(tm.VFSID())
		if err != nil {
			logger.Warn("snapshot skipped", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, tm.VFSID(), fs); err != nil {
			logger.Warn("vfs snapshot failed", zap.Error(err))
		}
	}
}
