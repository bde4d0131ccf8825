package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

type spawnCall struct {
	parent types.AgentID
	typ    types.AgentType
	task   string
}

type fakeSpawner struct {
	mu       sync.Mutex
	calls    []spawnCall
	spawnErr error
	result   agent.WorkerCompletion
	block    bool
}

func (f *fakeSpawner) SpawnWorker(_ context.Context, parentID types.AgentID, agentType types.AgentType, task string) (types.AgentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return types.AgentID{}, f.spawnErr
	}
	f.calls = append(f.calls, spawnCall{parentID, agentType, task})
	return types.NewAgentID(), nil
}

func (f *fakeSpawner) WaitForWorker(ctx context.Context, id types.AgentID) (agent.WorkerCompletion, error) {
	if f.block {
		<-ctx.Done()
		return agent.WorkerCompletion{}, ctx.Err()
	}
	c := f.result
	c.WorkerID = id
	return c, nil
}

func (f *fakeSpawner) last() spawnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func parentCtx(parent types.AgentID) context.Context {
	return ctxkeys.WithAgentID(context.Background(), parent)
}

func TestStartTask_Success(t *testing.T) {
	sp := &fakeSpawner{result: agent.WorkerCompletion{Result: "38 functions"}}
	tool := StartTask(sp, nil)
	parent := types.NewAgentID()

	out, err := tool.Func(parentCtx(parent), json.RawMessage(`{"task_description":"Count Lambda functions","expected_output_format":"a number"}`))
	require.NoError(t, err)

	var res struct {
		Result string `json:"result"`
		Ms     *int64 `json:"execution_time_ms"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, "38 functions", res.Result)
	assert.NotNil(t, res.Ms)

	c := sp.last()
	assert.Equal(t, parent, c.parent)
	assert.Equal(t, types.TaskWorker(parent), c.typ)
	assert.Equal(t, "Count Lambda functions\n\n<expected_output_format>\na number\n</expected_output_format>", c.task)
}

func TestStartTask_Errors(t *testing.T) {
	parent := types.NewAgentID()

	_, err := StartTask(&fakeSpawner{}, nil).Func(parentCtx(parent), json.RawMessage(`{"task_description":"  "}`))
	assert.EqualError(t, err, "task_description cannot be empty")

	_, err = StartTask(&fakeSpawner{}, nil).Func(context.Background(), json.RawMessage(`{"task_description":"x"}`))
	assert.ErrorContains(t, err, "agent context not set")

	_, err = StartTask(&fakeSpawner{spawnErr: errors.New("parent gone")}, nil).Func(parentCtx(parent), json.RawMessage(`{"task_description":"x"}`))
	assert.ErrorContains(t, err, "Failed to create task-agent: parent gone")

	failing := &fakeSpawner{result: agent.WorkerCompletion{Err: errors.New("Agent execution failed: throttled")}}
	_, err = StartTask(failing, nil).Func(parentCtx(parent), json.RawMessage(`{"task_description":"x"}`))
	assert.ErrorContains(t, err, "Task worker failed: Agent execution failed: throttled")
}

func TestStartTask_ParentCancelled(t *testing.T) {
	sp := &fakeSpawner{block: true}
	ctx, cancel := context.WithCancel(parentCtx(types.NewAgentID()))
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := StartTask(sp, nil).Func(ctx, json.RawMessage(`{"task_description":"x"}`))
	assert.ErrorContains(t, err, "cancelled")
}

func TestStartPageBuilder_SanitizesAndAvoidsCollisions(t *testing.T) {
	reg := vfs.NewRegistry(nil)
	id, fs := reg.Create(0)
	require.NoError(t, fs.MkdirAll("/pages/lambda-dashboard"))
	require.NoError(t, fs.MkdirAll("/pages/lambda-dashboard-2"))

	sp := &fakeSpawner{result: agent.WorkerCompletion{Result: "Page created"}}
	tool := StartPageBuilder(sp, reg, nil)
	parent := types.NewAgentID()
	ctx := ctxkeys.WithVFSID(parentCtx(parent), id)

	out, err := tool.Func(ctx, json.RawMessage(`{
		"workspace_name": "Lambda Dashboard!",
		"concise_description": "Building Lambda dashboard",
		"task_description": "Show all functions",
		"resource_context": "Data file: /workspace/lambdas/findings.json",
		"persistent": true
	}`))
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, "lambda-dashboard-3", res["workspace_name"])
	assert.Equal(t, "Page created", res["result"])
	assert.Contains(t, res["next_step"], "/pages/lambda-dashboard-3/index.html")

	c := sp.last()
	assert.Equal(t, types.PageBuilderWorker(parent, "lambda-dashboard-3", true), c.typ)
	assert.True(t, strings.HasSuffix(c.task, "<resource_context>\nData file: /workspace/lambdas/findings.json\n</resource_context>"))
}

func TestStartPageBuilder_Validation(t *testing.T) {
	tool := StartPageBuilder(&fakeSpawner{}, nil, nil)
	ctx := parentCtx(types.NewAgentID())

	_, err := tool.Func(ctx, json.RawMessage(`{"workspace_name":"","task_description":"x"}`))
	assert.EqualError(t, err, "workspace_name cannot be empty")
	_, err = tool.Func(ctx, json.RawMessage(`{"workspace_name":"x","task_description":""}`))
	assert.EqualError(t, err, "task_description cannot be empty")
	_, err = tool.Func(ctx, json.RawMessage(`{"workspace_name":"!!!","task_description":"x"}`))
	assert.ErrorContains(t, err, "no usable characters")
}

func TestSanitizeWorkspaceName(t *testing.T) {
	cases := map[string]string{
		"Lambda Function Dashboard": "lambda-function-dashboard",
		"  S3   Bucket__Explorer ":  "s3-bucket-explorer",
		"ssh-findings-view":         "ssh-findings-view",
		"--Ünïcode--name--":         "n-code-name",
		"../../etc":                 "etc",
		"":                          "",
		strings.Repeat("a", 70):     strings.Repeat("a", 64),
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeWorkspaceName(in), in)
	}
}

func TestSanitizeWorkspaceName_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		out := SanitizeWorkspaceName(rapid.String().Draw(t, "name"))
		if len(out) > maxWorkspaceNameLen {
			t.Fatalf("too long: %q", out)
		}
		if strings.HasPrefix(out, "-") || strings.HasSuffix(out, "-") || strings.Contains(out, "--") {
			t.Fatalf("bad dashes: %q", out)
		}
		for _, r := range out {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				t.Fatalf("bad rune %q in %q", r, out)
			}
		}
		if SanitizeWorkspaceName(out) != out {
			t.Fatalf("not idempotent: %q", out)
		}
	})
}

func TestUniqueWorkspaceName_Exhausted(t *testing.T) {
	_, err := uniqueWorkspaceName("x", func(string) bool { return true })
	assert.Error(t, err)
	name, err := uniqueWorkspaceName("x", func(n string) bool { return n == "x" })
	require.NoError(t, err)
	assert.Equal(t, "x-2", name)
}
