package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentdash/agent/middleware"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestManager(t *testing.T, f RuntimeFactory) (*Manager, *eventLog) {
	t.Helper()
	events := &eventLog{}
	logger := zaptest.NewLogger(t)
	m := NewManager(f, ManagerConfig{
		Logger:      logger,
		Events:      events,
		VFS:         vfs.NewRegistry(logger),
		VFSMaxSize:  1 << 20,
		Credentials: StaticCredentials(testCreds),
	})
	t.Cleanup(m.Shutdown)
	return m, events
}

func TestManager_CreateTaskManagerOwnsVFS(t *testing.T) {
	m, _ := newTestManager(t, newFakeFactory())

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	assert.True(t, tm.Type().IsParent())
	assert.True(t, m.VFS().Exists(tm.VFSID()))
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(tm.ID())
	require.NoError(t, err)
	assert.Same(t, tm, got)

	require.NoError(t, m.Terminate(tm.ID()))
	assert.False(t, m.VFS().Exists(tm.VFSID()))
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Terminate(tm.ID()), ErrAgentNotFound)
}

func TestManager_SpawnAndWaitForWorker(t *testing.T) {
	f := newFakeFactory()
	m, events := newTestManager(t, f)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	require.NoError(t, tm.Initialize(context.Background(), testCreds))

	id, err := m.SpawnWorker(context.Background(), tm.ID(), types.TaskWorker(tm.ID()), "count the buckets")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := m.WaitForWorker(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.OK())
	assert.Equal(t, id, c.WorkerID)
	assert.Equal(t, "echo: count the buckets", c.Result)

	worker, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, tm.VFSID(), worker.VFSID())
	assert.Equal(t, []*Instance{worker}, m.Workers(tm.ID()))

	// The worker's conversation is visible once polled.
	require.Eventually(t, func() bool {
		m.PollAll()
		return len(worker.Messages()) == 2
	}, time.Second, time.Millisecond)

	require.Len(t, events.ofType(EventSwitchToAgent), 1)
	completed := events.ofType(EventAgentCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Success)
	assert.Equal(t, tm.ID(), completed[0].ParentID)
	assert.Len(t, events.ofType(EventSwitchToParent), 1)

	_, err = m.WaitForWorker(ctx, id)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestManager_WorkerFailureIsReported(t *testing.T) {
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) { return "", ErrCancelled }
	m, _ := newTestManager(t, f)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	id, err := m.SpawnWorker(context.Background(), tm.ID(), types.PageBuilderWorker(tm.ID(), "ec2-dashboard", false), "build")
	require.NoError(t, err)

	c, err := m.WaitForWorker(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, c.OK())
	assert.Contains(t, c.Err.Error(), "Agent execution failed")
}

func TestManager_SpawnWorkerValidation(t *testing.T) {
	m, _ := newTestManager(t, newFakeFactory())
	tm, err := m.CreateTaskManager()
	require.NoError(t, err)

	_, err = m.SpawnWorker(context.Background(), tm.ID(), types.TaskManager(), "x")
	assert.ErrorIs(t, err, ErrNotWorker)

	_, err = m.SpawnWorker(context.Background(), types.NewAgentID(), types.TaskWorker(tm.ID()), "x")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = m.SpawnWorker(context.Background(), tm.ID(), types.PageBuilderWorker(tm.ID(), "", false), "x")
	assert.Error(t, err)
}

func TestManager_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) {
		<-release
		return "late", nil
	}
	m, _ := newTestManager(t, f)
	defer close(release)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	id, err := m.SpawnWorker(context.Background(), tm.ID(), types.TaskWorker(tm.ID()), "slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.WaitForWorker(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_TerminateCascadesToWorkers(t *testing.T) {
	release := make(chan struct{})
	f := newFakeFactory()
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		select {
		case <-release:
		case <-turn.Token.Done():
		}
		return "", turn.Token.Check()
	}
	m, _ := newTestManager(t, f)
	defer close(release)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	require.NoError(t, tm.Initialize(context.Background(), testCreds))
	id, err := m.SpawnWorker(context.Background(), tm.ID(), types.TaskWorker(tm.ID()), "wait")
	require.NoError(t, err)
	worker, err := m.Get(id)
	require.NoError(t, err)

	require.NoError(t, m.Terminate(tm.ID()))
	assert.Equal(t, StateTerminated, worker.State())
	assert.Equal(t, 0, m.Len())
}

func TestManager_ParentCancelStopsWorker(t *testing.T) {
	f := newFakeFactory()
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		<-turn.Token.Done()
		return "", turn.Token.Check()
	}
	m, _ := newTestManager(t, f)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	require.NoError(t, tm.Initialize(context.Background(), testCreds))
	id, err := m.SpawnWorker(context.Background(), tm.ID(), types.TaskWorker(tm.ID()), "wait")
	require.NoError(t, err)

	assert.True(t, tm.Cancel())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := m.WaitForWorker(ctx, id)
	require.NoError(t, err)
	assert.False(t, c.OK())
}

func TestManager_AgentLogFiles(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	m := NewManager(newFakeFactory(), ManagerConfig{Logger: logger, AgentLogDir: dir})
	defer m.Shutdown()

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	assert.NotEmpty(t, tm.AgentLog().Path())
	assert.FileExists(t, tm.AgentLog().Path())
}

func TestManager_SetFactory(t *testing.T) {
	m, _ := newTestManager(t, nil)
	f := newFakeFactory()
	m.SetFactory(f)

	tm, err := m.CreateTaskManager()
	require.NoError(t, err)
	require.NoError(t, tm.Initialize(context.Background(), testCreds))
	assert.Equal(t, tm.ID(), f.lastSpec().AgentID)
	assert.Equal(t, tm.VFSID(), f.lastSpec().VFSID)
}

func TestManager_LayersPerInstance(t *testing.T) {
	var kinds []types.RoleKind
	m := NewManager(newFakeFactory(), ManagerConfig{
		Credentials: StaticCredentials(testCreds),
		Layers: func(at types.AgentType) []middleware.Layer {
			kinds = append(kinds, at.Kind)
			return []middleware.Layer{middleware.NewLogging(nil)}
		},
	})
	t.Cleanup(m.Shutdown)

	a, err := m.CreateTaskManager()
	require.NoError(t, err)
	b, err := m.CreateTaskManager()
	require.NoError(t, err)

	assert.Equal(t, []types.RoleKind{types.RoleTaskManager, types.RoleTaskManager}, kinds)
	assert.Equal(t, []string{"logging"}, a.Middleware().Names())
	assert.Equal(t, 1, b.Middleware().Len())
}
