package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed is returned after Close.
var ErrPoolClosed = errors.New("pool is closed")

// PoolConfig tunes the connection pool and the reachability probe.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	// Zero disables the background probe.
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// DefaultPoolConfig suits a transcript store with a handful of writers.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ProbeInterval:   30 * time.Second,
		ProbeTimeout:    3 * time.Second,
	}
}

// Validate checks the pool limits.
func (c PoolConfig) Validate() error {
	var errs []error
	if c.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("max_open_conns must be positive"))
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		errs = append(errs, fmt.Errorf("max_idle_conns must be within [0, %d]", c.MaxOpenConns))
	}
	if c.ProbeInterval < 0 {
		errs = append(errs, errors.New("probe_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// PoolManager owns the gorm handle of the transcript store. An optional
// probe pings the database and logs when it goes away or comes back.
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	healthy atomic.Bool
	closed  atomic.Bool
	once    sync.Once
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPoolManager applies cfg to db's pool and starts the probe.
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	pm.healthy.Store(true)

	if cfg.ProbeInterval > 0 {
		pm.wg.Add(1)
		go pm.probe()
	}
	return pm, nil
}

// DB returns the gorm handle.
func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// Healthy reports the outcome of the most recent ping.
func (pm *PoolManager) Healthy() bool { return pm.healthy.Load() }

// Stats returns the raw pool statistics.
func (pm *PoolManager) Stats() sql.DBStats { return pm.sqlDB.Stats() }

// Ping checks the connection and records the outcome.
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	err := pm.sqlDB.PingContext(ctx)
	pm.record(err)
	return err
}

func (pm *PoolManager) record(err error) {
	was := pm.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		pm.logger.Warn("database unreachable", zap.Error(err))
	case err == nil && !was:
		s := pm.Stats()
		pm.logger.Info("database reachable again",
			zap.Int("open_connections", s.OpenConnections),
			zap.Int("in_use", s.InUse))
	}
}

func (pm *PoolManager) probe() {
	defer pm.wg.Done()
	ticker := time.NewTicker(pm.config.ProbeInterval)
	defer ticker.Stop()

	timeout := pm.config.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			_ = pm.Ping(ctx)
			cancel()
		}
	}
}

// Close stops the probe and closes the pool. Later calls are no-ops.
func (pm *PoolManager) Close() error {
	var err error
	pm.once.Do(func() {
		pm.closed.Store(true)
		close(pm.stop)
		pm.wg.Wait()
		pm.logger.Info("closing database pool")
		err = pm.sqlDB.Close()
	})
	return err
}
