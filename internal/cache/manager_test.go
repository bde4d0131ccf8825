package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/vfs"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close()
		mr.Close()
	})
	return mr, manager
}

func TestManager_PutGetRemove(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Put(ctx, "idx", "k", []byte("v"), 0))
	got, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	members, err := mr.Members("idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, members)

	require.NoError(t, manager.Remove(ctx, "idx", "k"))
	_, err = manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	keys, err := manager.Members(ctx, "idx")
	require.NoError(t, err)
	assert.Empty(t, keys)
	require.NoError(t, manager.Remove(ctx, "idx"))
}

func TestManager_MembersPrunesExpired(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Put(ctx, "idx", "short", []byte("x"), time.Second))
	require.NoError(t, manager.Put(ctx, "idx", "long", []byte("y"), time.Hour))
	require.NoError(t, manager.Put(ctx, "other", "z", []byte("z"), time.Hour))

	ttl, err := manager.TTL(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, time.Second, ttl)

	keys, err := manager.Members(ctx, "idx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"short", "long"}, keys)

	mr.FastForward(2 * time.Second)
	keys, err = manager.Members(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, keys)

	left, err := mr.Members("idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, left)

	keys, err = manager.Members(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Put(ctx, "idx", "k", nil, 0), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = manager.Members(ctx, "idx")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewManager(Config{Addr: addr}, nil)
	assert.Error(t, err)
}

func TestSnapshotStore_SaveLoadRestore(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()
	store := NewSnapshotStore(manager, "test:vfs:", time.Hour, nil, zap.NewNop())

	fs := vfs.New(1 << 20)
	require.NoError(t, fs.WriteFile("/results/regions.json", []byte(`["us-east-1"]`)))
	id := uuid.New()

	require.NoError(t, store.Save(ctx, id, fs))
	assert.True(t, mr.Exists("test:vfs:"+id.String()))
	assert.Equal(t, time.Hour, mr.TTL("test:vfs:"+id.String()))

	registry := vfs.NewRegistry(nil)
	restored, err := store.Restore(ctx, registry, id)
	require.NoError(t, err)

	data, err := restored.ReadFile("/results/regions.json")
	require.NoError(t, err)
	assert.Equal(t, `["us-east-1"]`, string(data))

	fromRegistry, err := registry.Get(id)
	require.NoError(t, err)
	assert.Same(t, restored, fromRegistry)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)
	assert.True(t, mr.Exists("test:vfs:index"))

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.True(t, IsCacheMiss(err))

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
