package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

const (
	// TaskWaitTimeout bounds how long start_task waits for its worker.
	TaskWaitTimeout = 300 * time.Second
	// PageBuilderWaitTimeout bounds how long start_page_builder waits.
	PageBuilderWaitTimeout = 600 * time.Second

	maxWorkspaceNameLen = 64
	maxCollisionSuffix  = 999
)

// WorkerSpawner starts workers under a parent agent and waits for their
// terminal result. *agent.Manager implements it.
type WorkerSpawner interface {
	SpawnWorker(ctx context.Context, parentID types.AgentID, agentType types.AgentType, task string) (types.AgentID, error)
	WaitForWorker(ctx context.Context, id types.AgentID) (agent.WorkerCompletion, error)
}

var _ WorkerSpawner = (*agent.Manager)(nil)

const startTaskDescription = `Spawn a task-worker agent to execute one focused AWS task using JavaScript APIs.
The worker runs code in a sandbox with listRegions() and the shared VFS, then returns its result to you.
Write a complete, self-contained task description: the worker does not see the conversation.
Large data should be saved by the worker to /workspace/<task-name>/findings.json and summarized in the result.
Multiple start_task calls in one response run in parallel.`

// StartTask returns the start_task tool.
func StartTask(spawner WorkerSpawner, logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", "start_task"))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			TaskDescription      string `json:"task_description"`
			ExpectedOutputFormat string `json:"expected_output_format"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.TaskDescription) == "" {
			return nil, fmt.Errorf("task_description cannot be empty")
		}
		parentID, ok := ctxkeys.AgentID(ctx)
		if !ok {
			return nil, fmt.Errorf("Cannot determine parent agent ID - agent context not set")
		}

		task := WorkerTaskMessage(in.TaskDescription, in.ExpectedOutputFormat)
		start := time.Now()
		id, err := spawner.SpawnWorker(ctx, parentID, types.TaskWorker(parentID), task)
		if err != nil {
			return nil, fmt.Errorf("Failed to create task-agent: %v", err)
		}
		logger.Info("task worker started",
			zap.String("parent_id", parentID.String()),
			zap.String("worker_id", id.String()))

		completion, err := waitWorker(ctx, spawner, id, TaskWaitTimeout)
		if err != nil {
			return nil, err
		}
		if !completion.OK() {
			return nil, fmt.Errorf("Task worker failed: %v", completion.Err)
		}
		return mustJSON(map[string]any{
			"result":            completion.Result,
			"execution_time_ms": time.Since(start).Milliseconds(),
		})
	}

	return Tool{
		Func: fn,
		Metadata: ToolMetadata{
			Schema: types.ToolSchema{
				Name:        "start_task",
				Description: startTaskDescription,
				Parameters: schema(map[string]any{
					"type":     "object",
					"required": []string{"task_description"},
					"properties": map[string]any{
						"task_description": map[string]any{
							"type":        "string",
							"description": "Complete description of the task for the worker agent.",
						},
						"expected_output_format": map[string]any{
							"type":        "string",
							"description": "Optional description of the result shape you need back.",
						},
					},
				}),
			},
			Timeout: TaskWaitTimeout + 30*time.Second,
		},
	}
}

const startPageBuilderDescription = `Spawn a page builder worker to create an interactive Dash Page (HTML/CSS/JS app).

persistent: false (default) - temporary page for showing session results. Pass the VFS data file in resource_context.
persistent: true - reusable tool page that does not depend on session data.

The page is written to /pages/<workspace_name>/ in the session VFS. On success the sanitized
workspace_name is returned; use it exactly when referring to the page.`

// StartPageBuilder returns the start_page_builder tool. registry resolves
// the caller's VFS for workspace collision checks; it may be nil.
func StartPageBuilder(spawner WorkerSpawner, registry *vfs.Registry, logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", "start_page_builder"))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			WorkspaceName      string `json:"workspace_name"`
			ConciseDescription string `json:"concise_description"`
			TaskDescription    string `json:"task_description"`
			ResourceContext    string `json:"resource_context"`
			Persistent         bool   `json:"persistent"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.WorkspaceName) == "" {
			return nil, fmt.Errorf("workspace_name cannot be empty")
		}
		if strings.TrimSpace(in.TaskDescription) == "" {
			return nil, fmt.Errorf("task_description cannot be empty")
		}
		parentID, ok := ctxkeys.AgentID(ctx)
		if !ok {
			return nil, fmt.Errorf("Cannot determine parent agent ID - agent context not set")
		}

		name := SanitizeWorkspaceName(in.WorkspaceName)
		if name == "" {
			return nil, fmt.Errorf("workspace_name %q has no usable characters", in.WorkspaceName)
		}
		if fs := callerVFS(ctx, registry); fs != nil {
			unique, err := uniqueWorkspaceName(name, func(n string) bool { return fs.Exists("/pages/" + n) })
			if err != nil {
				return nil, err
			}
			name = unique
		}

		task := in.TaskDescription
		if c := strings.TrimSpace(in.ResourceContext); c != "" {
			task += "\n\n<resource_context>\n" + c + "\n</resource_context>"
		}

		start := time.Now()
		id, err := spawner.SpawnWorker(ctx, parentID, types.PageBuilderWorker(parentID, name, in.Persistent), task)
		if err != nil {
			return nil, fmt.Errorf("Failed to create page builder worker: %v", err)
		}
		logger.Info("page builder started",
			zap.String("parent_id", parentID.String()),
			zap.String("worker_id", id.String()),
			zap.String("workspace", name),
			zap.String("description", in.ConciseDescription),
			zap.Bool("persistent", in.Persistent))

		completion, err := waitWorker(ctx, spawner, id, PageBuilderWaitTimeout)
		if err != nil {
			return nil, err
		}
		if !completion.OK() {
			return nil, fmt.Errorf("Page builder failed: %v", completion.Err)
		}
		return mustJSON(map[string]any{
			"workspace_name":    name,
			"result":            completion.Result,
			"execution_time_ms": time.Since(start).Milliseconds(),
			"next_step":         fmt.Sprintf("The page entry point is /pages/%s/index.html in the session VFS.", name),
		})
	}

	return Tool{
		Func: fn,
		Metadata: ToolMetadata{
			Schema: types.ToolSchema{
				Name:        "start_page_builder",
				Description: startPageBuilderDescription,
				Parameters: schema(map[string]any{
					"type":     "object",
					"required": []string{"workspace_name", "concise_description", "task_description"},
					"properties": map[string]any{
						"workspace_name": map[string]any{
							"type":        "string",
							"description": "Suggested workspace name (sanitized to kebab-case).",
						},
						"concise_description": map[string]any{
							"type":        "string",
							"description": "Progress description in 4-5 words, present continuous tense.",
						},
						"task_description": map[string]any{
							"type":        "string",
							"description": "What to build and why, including the user's original request.",
						},
						"resource_context": map[string]any{
							"type":        "string",
							"description": "Data source context. For temporary pages, the VFS data file path.",
						},
						"persistent": map[string]any{
							"type":        "boolean",
							"default":     false,
							"description": "false for a temporary results page, true for a reusable tool page.",
						},
					},
				}),
			},
			Timeout: PageBuilderWaitTimeout + 30*time.Second,
		},
	}
}

// WorkerTaskMessage is the first message a task worker receives.
func WorkerTaskMessage(task, expectedFormat string) string {
	if f := strings.TrimSpace(expectedFormat); f != "" {
		return task + "\n\n<expected_output_format>\n" + f + "\n</expected_output_format>"
	}
	return task
}

// SanitizeWorkspaceName lowercases name and turns every run of other
// characters into a single '-', trimmed and capped at 64 characters.
func SanitizeWorkspaceName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxWorkspaceNameLen {
		out = strings.TrimRight(out[:maxWorkspaceNameLen], "-")
	}
	return out
}

// uniqueWorkspaceName appends -2, -3, ... until taken reports false.
func uniqueWorkspaceName(name string, taken func(string) bool) (string, error) {
	if !taken(name) {
		return name, nil
	}
	for i := 2; i <= maxCollisionSuffix; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !taken(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free workspace name for %q", name)
}

func callerVFS(ctx context.Context, registry *vfs.Registry) *vfs.FileSystem {
	if registry == nil {
		return nil
	}
	id, ok := ctxkeys.VFSID(ctx)
	if !ok {
		return nil
	}
	fs, err := registry.Get(id)
	if err != nil {
		return nil
	}
	return fs
}

func waitWorker(ctx context.Context, spawner WorkerSpawner, id types.AgentID, timeout time.Duration) (agent.WorkerCompletion, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	completion, err := spawner.WaitForWorker(wctx, id)
	switch {
	case err == nil:
		return completion, nil
	case ctx.Err() != nil:
		return completion, fmt.Errorf("Worker %s cancelled: %v", id.Short(), ctx.Err())
	case wctx.Err() != nil:
		return completion, fmt.Errorf("Worker %s did not finish within %s", id.Short(), timeout)
	default:
		return completion, fmt.Errorf("Failed waiting for worker %s: %v", id.Short(), err)
	}
}
