package transcript

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/agentdash/types"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestStore_AppendAndMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := types.NewAgentID()

	assistant := types.NewAssistantMessage("")
	assistant.ToolCalls = []types.ToolCall{{ID: "c1", Name: "think", Arguments: json.RawMessage(`{"thought":"x"}`)}}

	require.NoError(t, store.Append(ctx, id, types.TaskManager(), types.NewUserMessage("hello")))
	require.NoError(t, store.Append(ctx, id, types.TaskManager(), assistant))
	require.NoError(t, store.Append(ctx, id, types.TaskManager(), types.NewToolMessage("c1", "ok", false)))

	msgs, err := store.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "think", msgs[1].ToolCalls[0].Name)
	assert.JSONEq(t, `{"thought":"x"}`, string(msgs[1].ToolCalls[0].Arguments))
	assert.Equal(t, "c1", msgs[2].ToolCallID)

	n, err := store.Count(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestStore_ClearIsPerAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a, b := types.NewAgentID(), types.NewAgentID()

	require.NoError(t, store.Append(ctx, a, types.TaskManager(), types.NewUserMessage("a")))
	require.NoError(t, store.Append(ctx, b, types.TaskWorker(a), types.NewUserMessage("b")))

	removed, err := store.Clear(ctx, a)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	n, err := store.Count(ctx, b)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	workers, err := store.Workers(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{b.String()}, workers)
}

func TestEntry_ZeroTimestampDefaultsToNow(t *testing.T) {
	before := time.Now()
	e, err := newEntry(types.NewAgentID(), types.TaskManager(), types.Message{Role: types.RoleUser})
	require.NoError(t, err)
	assert.False(t, e.Timestamp.Before(before))
}
