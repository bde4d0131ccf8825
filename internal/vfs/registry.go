package vfs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownVFS is returned when an id has no registered file system.
var ErrUnknownVFS = errors.New("vfs not registered")

// Registry maps VFS ids to file systems. Task managers register the file
// system they own; workers and sandbox bindings look it up by id.
type Registry struct {
	mu      sync.RWMutex
	systems map[uuid.UUID]*FileSystem
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		systems: make(map[uuid.UUID]*FileSystem),
		logger:  logger.With(zap.String("component", "vfs_registry")),
	}
}

// Create registers a new file system with the given cap and returns its id.
func (r *Registry) Create(maxSize int) (uuid.UUID, *FileSystem) {
	fs := New(maxSize)
	id := r.Register(fs)
	return id, fs
}

// Register adds fs under a fresh id.
func (r *Registry) Register(fs *FileSystem) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.systems[id] = fs
	r.mu.Unlock()

	r.logger.Debug("vfs registered",
		zap.String("vfs_id", id.String()),
		zap.Int("max_size", fs.MaxSize()))
	return id
}

// RegisterWithID adds fs under id, replacing any previous entry. Used when
// restoring a snapshot.
func (r *Registry) RegisterWithID(id uuid.UUID, fs *FileSystem) {
	r.mu.Lock()
	r.systems[id] = fs
	r.mu.Unlock()
}

// Deregister removes id. It reports whether the id was present.
func (r *Registry) Deregister(id uuid.UUID) bool {
	r.mu.Lock()
	_, ok := r.systems[id]
	delete(r.systems, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("vfs deregistered", zap.String("vfs_id", id.String()))
	}
	return ok
}

// Get returns the file system registered under id.
func (r *Registry) Get(id uuid.UUID) (*FileSystem, error) {
	r.mu.RLock()
	fs, ok := r.systems[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("VFS not found: %s: %w", id, ErrUnknownVFS)
	}
	return fs, nil
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.systems[id]
	return ok
}

// Len returns the number of registered file systems.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.systems)
}

// IDs returns every registered id.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.systems))
	for id := range r.systems {
		ids = append(ids, id)
	}
	return ids
}
