package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/metrics"
	"github.com/BaSui01/agentdash/internal/vfs"
)

const snapshotCacheType = "vfs_snapshot"

// SnapshotStore persists VFS snapshots in Redis keyed by VFS id.
type SnapshotStore struct {
	manager *Manager
	prefix  string
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewSnapshotStore wraps manager. collector may be nil.
func NewSnapshotStore(manager *Manager, prefix string, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "agentdash:vfs:"
	}
	return &SnapshotStore{
		manager: manager,
		prefix:  prefix,
		ttl:     ttl,
		metrics: collector,
		logger:  logger.With(zap.String("component", "vfs_snapshot_store")),
	}
}

func (s *SnapshotStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *SnapshotStore) index() string {
	return s.prefix + "index"
}

// Save stores the current contents of fs under id.
func (s *SnapshotStore) Save(ctx context.Context, id uuid.UUID, fs *vfs.FileSystem) error {
	data, err := json.Marshal(fs.Export())
	if err != nil {
		return fmt.Errorf("marshal vfs snapshot: %w", err)
	}
	if err := s.manager.Put(ctx, s.index(), s.key(id), data, s.ttl); err != nil {
		return err
	}
	s.logger.Debug("vfs snapshot saved",
		zap.String("vfs_id", id.String()),
		zap.Int("bytes", len(data)),
		zap.Int("total_size", fs.TotalSize()))
	return nil
}

// Load rebuilds the file system stored under id. A missing snapshot
// returns ErrCacheMiss.
func (s *SnapshotStore) Load(ctx context.Context, id uuid.UUID) (*vfs.FileSystem, error) {
	data, err := s.manager.Get(ctx, s.key(id))
	if err != nil {
		if IsCacheMiss(err) {
			s.metrics.RecordCacheMiss(snapshotCacheType)
		}
		return nil, err
	}
	s.metrics.RecordCacheHit(snapshotCacheType)

	var snap vfs.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal vfs snapshot: %w", err)
	}
	return vfs.Import(snap)
}

// Restore loads the snapshot stored under id and registers it in registry
// under the same id.
func (s *SnapshotStore) Restore(ctx context.Context, registry *vfs.Registry, id uuid.UUID) (*vfs.FileSystem, error) {
	fs, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	registry.RegisterWithID(id, fs)
	return fs, nil
}

// Delete removes the snapshot of id.
func (s *SnapshotStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.manager.Remove(ctx, s.index(), s.key(id))
}

// List returns the ids of every snapshot that has not expired.
func (s *SnapshotStore) List(ctx context.Context) ([]uuid.UUID, error) {
	keys, err := s.manager.Members(ctx, s.index())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(k, s.prefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
