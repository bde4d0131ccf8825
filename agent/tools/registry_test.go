package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentdash/types"
)

func echoTool(name string) Tool {
	return Tool{
		Func:     func(_ context.Context, args json.RawMessage) (json.RawMessage, error) { return args, nil },
		Metadata: ToolMetadata{Schema: types.ToolSchema{Name: name, Description: "echo"}},
	}
}

func TestRegistry_RegisterAndList(t *testing.T) {
	reg := NewDefaultRegistry(zaptest.NewLogger(t))
	require.NoError(t, reg.RegisterAll(echoTool("b"), echoTool("a")))

	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, got.Metadata.Timeout)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(got.Metadata.Schema.Parameters))

	assert.Error(t, reg.Register(echoTool("a")), "duplicate")
	assert.Error(t, reg.Register(Tool{Metadata: ToolMetadata{Schema: types.ToolSchema{Name: "x"}}}), "no func")
	assert.Error(t, reg.Register(Tool{Func: echoTool("x").Func}), "no name")

	require.NoError(t, reg.Unregister("a"))
	_, err = reg.Get("a")
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.ErrorIs(t, reg.Unregister("a"), ErrToolNotFound)
}

func TestExecutor_UnknownAndInvalidArgs(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))
	exec := NewDefaultExecutor(reg, zaptest.NewLogger(t))

	res := exec.ExecuteOne(context.Background(), types.ToolCall{ID: "1", Name: "nope"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "tool not found")

	res = exec.ExecuteOne(context.Background(), types.ToolCall{ID: "2", Name: "echo", Arguments: json.RawMessage(`{bad`)})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "invalid arguments")

	res = exec.ExecuteOne(context.Background(), types.ToolCall{ID: "3", Name: "echo"})
	require.False(t, res.Failed())
	assert.JSONEq(t, `{}`, string(res.Output))
	assert.Equal(t, "3", res.CallID)

	tr := res.ToolResult()
	assert.Equal(t, "echo", tr.Name)
	assert.False(t, tr.IsError)
}

func TestExecutor_ErrorsBecomeResults(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Func: func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, &Error{Message: "1 edits applied, 1 failed.", Output: json.RawMessage(`{"edits_failed":1}`)}
		},
		Metadata: ToolMetadata{Schema: types.ToolSchema{Name: "partial"}},
	}))
	require.NoError(t, reg.Register(Tool{
		Func:     func(context.Context, json.RawMessage) (json.RawMessage, error) { panic("kaboom") },
		Metadata: ToolMetadata{Schema: types.ToolSchema{Name: "panics"}},
	}))
	exec := NewDefaultExecutor(reg, nil)

	res := exec.ExecuteOne(context.Background(), types.ToolCall{Name: "partial"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Text(), "1 failed")
	assert.Contains(t, res.Text(), `{"edits_failed":1}`)
	assert.True(t, res.ToolResult().IsError)

	res = exec.ExecuteOne(context.Background(), types.ToolCall{Name: "panics"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "kaboom")
}

func TestExecutor_Timeout(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Func: func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Metadata: ToolMetadata{Schema: types.ToolSchema{Name: "slow"}, Timeout: 20 * time.Millisecond},
	}))
	exec := NewDefaultExecutor(reg, nil)

	res := exec.ExecuteOne(context.Background(), types.ToolCall{Name: "slow"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "execution timeout after 20ms")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = exec.ExecuteOne(ctx, types.ToolCall{Name: "slow"})
	assert.True(t, res.Failed())
	assert.Equal(t, "tool call cancelled", res.Error)
}

func TestExecutor_RateLimit(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	tool := echoTool("limited")
	tool.Metadata.RateLimit = &RateLimitConfig{MaxCalls: 2, Window: time.Hour}
	require.NoError(t, reg.Register(tool))
	exec := NewDefaultExecutor(reg, nil)

	for i := 0; i < 2; i++ {
		assert.False(t, exec.ExecuteOne(context.Background(), types.ToolCall{Name: "limited"}).Failed())
	}
	res := exec.ExecuteOne(context.Background(), types.ToolCall{Name: "limited"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "rate limit exceeded")
}

func TestExecutor_ParallelKeepsOrder(t *testing.T) {
	// Both calls must be in flight at once to pass the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Func: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			barrier.Done()
			barrier.Wait()
			return args, nil
		},
		Metadata: ToolMetadata{Schema: types.ToolSchema{Name: "work"}, Timeout: 5 * time.Second},
	}))
	exec := NewDefaultExecutor(reg, nil)

	calls := []types.ToolCall{
		{ID: "a", Name: "work", Arguments: json.RawMessage(`1`)},
		{ID: "b", Name: "work", Arguments: json.RawMessage(`2`)},
		{ID: "c", Name: "missing"},
	}
	results := exec.Execute(context.Background(), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].CallID)
	assert.Equal(t, "1", string(results[0].Output))
	assert.Equal(t, "2", string(results[1].Output))
	assert.True(t, results[2].Failed())
}

func TestError_Message(t *testing.T) {
	var err error = &Error{Message: "plain"}
	assert.Equal(t, "plain", err.Error())
	var te *Error
	assert.True(t, errors.As(err, &te))
}
