package ctxkeys

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/agentdash/types"
)

func TestScope(t *testing.T) {
	ctx := context.Background()

	_, ok := AgentID(ctx)
	assert.False(t, ok)
	_, ok = VFSID(ctx)
	assert.False(t, ok)
	assert.Equal(t, types.DefaultLogLevel, LogLevel(ctx))

	id := types.NewAgentID()
	vfsID := uuid.New()
	ctx = WithScope(ctx, Scope{
		AgentID:   id,
		AgentType: types.TaskWorker(types.NewAgentID()),
		LogLevel:  types.LogTrace,
		VFSID:     vfsID,
	})

	got, ok := AgentID(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	typ, ok := AgentType(ctx)
	assert.True(t, ok)
	assert.Equal(t, types.RoleTaskWorker, typ.Kind)

	assert.Equal(t, types.LogTrace, LogLevel(ctx))

	gotVFS, ok := VFSID(ctx)
	assert.True(t, ok)
	assert.Equal(t, vfsID, gotVFS)
}

func TestScope_NoVFS(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{AgentID: types.NewAgentID()})
	_, ok := VFSID(ctx)
	assert.False(t, ok)
}

func TestTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	v, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = TraceID(WithTraceID(context.Background(), ""))
	assert.False(t, ok)
}
