package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent/middleware"
	"github.com/BaSui01/agentdash/internal/agentlog"
	"github.com/BaSui01/agentdash/internal/metrics"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

// ManagerConfig wires the shared collaborators every managed instance gets.
type ManagerConfig struct {
	Logger      *zap.Logger
	Metrics     *metrics.Collector
	Events      Publisher
	VFS         *vfs.Registry
	VFSMaxSize  int
	Credentials CredentialSource
	Transcript  TranscriptRecorder
	// AgentLogDir enables per-agent log files. Empty disables them.
	AgentLogDir       string
	LogLevel          types.LogLevel
	Telemetry         bool
	RecommendedLayers bool
	// Layers builds extra middleware for each new instance. Layers keep
	// per-agent state, so every call must return fresh values.
	Layers func(types.AgentType) []middleware.Layer
	// Options are applied to every instance after the manager's own.
	Options []Option
}

// Manager owns every live agent: task managers and the workers they spawn.
// It is safe for concurrent use; workers are spawned from tool calls running
// on a parent's worker goroutine while the caller polls.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	mu      sync.RWMutex
	factory RuntimeFactory
	agents  map[types.AgentID]*Instance
	order   []types.AgentID
	waiters map[types.AgentID]chan WorkerCompletion
}

// NewManager creates a manager. The runtime factory may be supplied later
// with SetFactory when it needs the manager itself to spawn workers.
func NewManager(factory RuntimeFactory, cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = nopPublisher{}
	}
	if cfg.VFS == nil {
		cfg.VFS = vfs.NewRegistry(cfg.Logger)
	}
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("component", "agent_manager")),
		factory: factory,
		agents:  make(map[types.AgentID]*Instance),
		waiters: make(map[types.AgentID]chan WorkerCompletion),
	}
}

// SetFactory replaces the runtime factory used for new instances.
func (m *Manager) SetFactory(f RuntimeFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory = f
}

// VFS returns the shared registry.
func (m *Manager) VFS() *vfs.Registry { return m.cfg.VFS }

// CreateTaskManager creates a parent agent with its own VFS.
func (m *Manager) CreateTaskManager() (*Instance, error) {
	id := types.NewAgentID()
	agentType := types.TaskManager()
	vfsID, _ := m.cfg.VFS.Create(m.cfg.VFSMaxSize)

	opts, err := m.baseOptions(id, agentType)
	if err != nil {
		m.cfg.VFS.Deregister(vfsID)
		return nil, err
	}
	opts = append(opts, WithOwnedVFS(m.cfg.VFS, vfsID))
	opts = append(opts, m.cfg.Options...)

	inst := New(agentType, m.currentFactory(), opts...)
	m.add(inst)
	m.logger.Info("task manager created",
		zap.String("agent_id", id.String()),
		zap.String("vfs_id", vfsID.String()),
	)
	return inst, nil
}

// SpawnWorker creates a worker under parentID, sharing the parent's VFS and
// a child of its cancellation token, and sends it task.
func (m *Manager) SpawnWorker(ctx context.Context, parentID types.AgentID, agentType types.AgentType, task string) (types.AgentID, error) {
	if !agentType.IsWorker() {
		return types.AgentID{}, ErrNotWorker
	}
	parent, err := m.Get(parentID)
	if err != nil {
		return types.AgentID{}, err
	}
	agentType.ParentID = parentID
	if err := agentType.Validate(); err != nil {
		return types.AgentID{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.AgentID{}, err
	}

	id := types.NewAgentID()
	opts, err := m.baseOptions(id, agentType)
	if err != nil {
		return types.AgentID{}, err
	}
	opts = append(opts,
		WithVFSID(parent.VFSID()),
		WithCompletionHandler(m.complete),
	)
	if tok := parent.Token(); tok != nil {
		opts = append(opts, WithParentToken(tok))
	}
	opts = append(opts, m.cfg.Options...)

	worker := New(agentType, m.currentFactory(), opts...)

	m.mu.Lock()
	m.waiters[id] = make(chan WorkerCompletion, 1)
	m.mu.Unlock()
	m.add(worker)

	if err := worker.Send(task); err != nil {
		m.remove(id)
		worker.Terminate()
		return types.AgentID{}, fmt.Errorf("start worker: %w", err)
	}

	m.cfg.Events.Publish(Event{Type: EventSwitchToAgent, AgentID: id, ParentID: parentID})
	m.logger.Info("worker spawned",
		zap.String("worker_id", id.String()),
		zap.String("parent_id", parentID.String()),
		zap.String("worker_type", string(agentType.Kind)),
	)
	return id, nil
}

// WaitForWorker blocks until the worker reports its terminal result or ctx
// is done.
func (m *Manager) WaitForWorker(ctx context.Context, id types.AgentID) (WorkerCompletion, error) {
	m.mu.RLock()
	ch, ok := m.waiters[id]
	m.mu.RUnlock()
	if !ok {
		return WorkerCompletion{}, ErrAgentNotFound
	}
	select {
	case c := <-ch:
		m.mu.Lock()
		delete(m.waiters, id)
		m.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		return WorkerCompletion{}, ctx.Err()
	}
}

// complete runs on the worker's goroutine.
func (m *Manager) complete(c WorkerCompletion) {
	m.mu.RLock()
	ch := m.waiters[c.WorkerID]
	inst := m.agents[c.WorkerID]
	m.mu.RUnlock()

	var parentID types.AgentID
	if inst != nil {
		parentID, _ = inst.Type().Parent()
	}
	ev := Event{
		Type:     EventAgentCompleted,
		AgentID:  c.WorkerID,
		ParentID: parentID,
		Success:  c.OK(),
		Elapsed:  c.Elapsed,
		Message:  c.Result,
	}
	if c.Err != nil {
		ev.Message = c.Err.Error()
	}
	m.cfg.Events.Publish(ev)
	m.cfg.Events.Publish(Event{Type: EventSwitchToParent, AgentID: c.WorkerID, ParentID: parentID})

	if ch != nil {
		select {
		case ch <- c:
		default:
			m.logger.Warn("dropped duplicate worker completion", zap.String("worker_id", c.WorkerID.String()))
		}
	}
}

// Get returns the instance with id.
func (m *Manager) Get(id types.AgentID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return inst, nil
}

// List returns instances in creation order.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.agents[id])
	}
	return out
}

// Workers returns the workers spawned by parentID.
func (m *Manager) Workers(parentID types.AgentID) []*Instance {
	var out []*Instance
	for _, inst := range m.List() {
		if p, ok := inst.Type().Parent(); ok && p == parentID {
			out = append(out, inst)
		}
	}
	return out
}

// Len returns the number of live instances.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// PollAll polls every instance once and returns how many changed.
func (m *Manager) PollAll() int {
	changed := 0
	for _, inst := range m.List() {
		if inst.Poll() {
			changed++
		}
	}
	return changed
}

// Terminate stops id and every worker it spawned, and forgets them.
func (m *Manager) Terminate(id types.AgentID) error {
	inst, err := m.Get(id)
	if err != nil {
		return err
	}
	for _, w := range m.Workers(id) {
		w.Terminate()
		m.remove(w.ID())
	}
	inst.Terminate()
	m.remove(id)
	m.logger.Info("agent terminated", zap.String("agent_id", id.String()))
	return nil
}

// Shutdown terminates every instance.
func (m *Manager) Shutdown() {
	for _, inst := range m.List() {
		inst.Terminate()
		m.remove(inst.ID())
	}
}

func (m *Manager) currentFactory() RuntimeFactory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.factory
}

func (m *Manager) baseOptions(id types.AgentID, agentType types.AgentType) ([]Option, error) {
	opts := []Option{
		WithID(id),
		WithLogger(m.cfg.Logger),
		WithMetrics(m.cfg.Metrics),
		WithEventBus(m.cfg.Events),
		WithLogLevel(m.cfg.LogLevel),
		WithTelemetry(m.cfg.Telemetry),
	}
	if m.cfg.Credentials != nil {
		opts = append(opts, WithCredentialSource(m.cfg.Credentials))
	}
	if m.cfg.Transcript != nil {
		opts = append(opts, WithTranscript(m.cfg.Transcript))
	}
	if m.cfg.RecommendedLayers {
		opts = append(opts, WithRecommendedLayers())
	}
	if m.cfg.Layers != nil {
		opts = append(opts, WithMiddleware(m.cfg.Layers(agentType)...))
	}
	if m.cfg.AgentLogDir != "" {
		alog, err := agentlog.New(m.cfg.AgentLogDir, id, agentType)
		if err != nil {
			return nil, fmt.Errorf("open agent log: %w", err)
		}
		opts = append(opts, WithAgentLog(alog))
	}
	return opts, nil
}

func (m *Manager) add(inst *Instance) {
	m.mu.Lock()
	m.agents[inst.ID()] = inst
	m.order = append(m.order, inst.ID())
	n := len(m.agents)
	m.mu.Unlock()
	m.cfg.Metrics.SetActiveAgents(n)
}

func (m *Manager) remove(id types.AgentID) {
	m.mu.Lock()
	inst, ok := m.agents[id]
	delete(m.agents, id)
	delete(m.waiters, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	n := len(m.agents)
	m.mu.Unlock()
	if ok {
		_ = inst.AgentLog().Close()
	}
	m.cfg.Metrics.SetActiveAgents(n)
}
