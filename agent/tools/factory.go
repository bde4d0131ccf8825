package tools

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent/sandbox"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

// Deps are the collaborators role tools are built from.
type Deps struct {
	Logger  *zap.Logger
	Sandbox *sandbox.Executor
	Spawner WorkerSpawner
	VFS     *vfs.Registry
	// VFSID is the agent's file system; page builder file tools bind to it.
	VFSID uuid.UUID
}

// ForRole returns the closed tool list of a role:
//
//	task manager:         think, start_task, start_page_builder
//	task worker:          execute_javascript
//	page builder worker:  workspace file tools, get_api_docs, execute_javascript
func ForRole(t types.AgentType, d Deps) ([]Tool, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case types.RoleTaskManager:
		if d.Spawner == nil {
			return nil, fmt.Errorf("task manager tools need a worker spawner")
		}
		return []Tool{
			Think(d.Logger),
			StartTask(d.Spawner, d.Logger),
			StartPageBuilder(d.Spawner, d.VFS, d.Logger),
		}, nil

	case types.RoleTaskWorker:
		if d.Sandbox == nil {
			return nil, fmt.Errorf("task worker tools need a sandbox executor")
		}
		return []Tool{JavaScript(d.Sandbox)}, nil

	case types.RolePageBuilderWorker:
		if d.Sandbox == nil {
			return nil, fmt.Errorf("page builder tools need a sandbox executor")
		}
		files := WorkspaceFiles{Registry: d.VFS, VFSID: d.VFSID, Workspace: t.WorkspaceName}
		out := files.Tools()
		return append(out, APIDocs(), JavaScript(d.Sandbox)), nil
	}
	return nil, fmt.Errorf("unknown agent role %q", t.Kind)
}

// NewRegistry registers the role's tools in a fresh registry.
func NewRegistry(t types.AgentType, d Deps) (*DefaultRegistry, error) {
	ts, err := ForRole(t, d)
	if err != nil {
		return nil, err
	}
	reg := NewDefaultRegistry(d.Logger)
	if err := reg.RegisterAll(ts...); err != nil {
		return nil, err
	}
	return reg, nil
}
