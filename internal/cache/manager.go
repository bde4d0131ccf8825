package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss is returned when a key does not exist.
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config configures the Redis connection.
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	// Used when a write passes a zero ttl. Zero keeps values forever.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		DefaultTTL:   24 * time.Hour,
	}
}

// Manager stores values under keys that are also tracked in a Redis set,
// the index, so listing never needs SCAN.
type Manager struct {
	client *redis.Client
	config Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewManager connects to Redis and verifies the connection.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger = logger.With(zap.String("component", "cache"))
	logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Manager{client: client, config: cfg, logger: logger}, nil
}

// Get returns the value of key.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	val, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Put stores value under key and adds key to index in one transaction.
func (m *Manager) Put(ctx context.Context, index, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, ttl)
		p.SAdd(ctx, index, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys and drops them from index.
func (m *Manager) Remove(ctx context.Context, index string, keys ...string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.SRem(ctx, index, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove: %w", err)
	}
	return nil
}

// Members returns the live keys of index. Keys whose values expired are
// pruned from the index.
func (m *Manager) Members(ctx context.Context, index string) ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	keys, err := m.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members %s: %w", index, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	exists := make([]*redis.IntCmd, len(keys))
	_, err = m.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			exists[i] = p.Exists(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}

	live := keys[:0]
	var stale []any
	for i, k := range keys {
		if exists[i].Val() > 0 {
			live = append(live, k)
		} else {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		if err := m.client.SRem(ctx, index, stale...).Err(); err != nil {
			m.logger.Warn("failed to prune index", zap.String("index", index), zap.Error(err))
		}
	}
	return live, nil
}

// TTL returns the remaining lifetime of key.
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	return m.client.TTL(ctx, key).Result()
}

// Ping checks the Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close closes the client. Later calls are no-ops.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Info("closing redis client")
	return m.client.Close()
}
