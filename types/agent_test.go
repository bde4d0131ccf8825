package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentID(t *testing.T) {
	a := NewAgentID()
	b := NewAgentID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
	assert.True(t, AgentID{}.IsZero())
	assert.Len(t, a.Short(), 8)

	parsed, err := ParseAgentID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseAgentID("not-a-uuid")
	assert.Error(t, err)
}

func TestAgentID_JSON(t *testing.T) {
	id := NewAgentID()
	data, err := json.Marshal(map[string]AgentID{"id": id})
	require.NoError(t, err)

	var out map[string]AgentID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out["id"])
}

func TestAgentType(t *testing.T) {
	parent := NewAgentID()

	tests := []struct {
		name        string
		typ         AgentType
		display     string
		description string
		isParent    bool
	}{
		{"task manager", TaskManager(), "General Purpose Agent", "Multi-purpose agent with access to all tools", true},
		{"task worker", TaskWorker(parent), "Worker Agent", "Specialized worker for focused tasks", false},
		{"page builder", PageBuilderWorker(parent, "sales", true), "Page Builder Worker",
			"Specialized worker for building Dash Pages in isolated context", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.display, tt.typ.DisplayName())
			assert.Equal(t, tt.description, tt.typ.Description())
			assert.Equal(t, tt.isParent, tt.typ.IsParent())
			assert.Equal(t, !tt.isParent, tt.typ.IsWorker())
			assert.NoError(t, tt.typ.Validate())

			p, ok := tt.typ.Parent()
			assert.Equal(t, tt.typ.IsWorker(), ok)
			if ok {
				assert.Equal(t, parent, p)
			}
		})
	}
}

func TestAgentType_Validate(t *testing.T) {
	assert.Error(t, AgentType{Kind: RoleTaskWorker}.Validate())
	assert.Error(t, AgentType{Kind: RolePageBuilderWorker, ParentID: NewAgentID()}.Validate())
	assert.Error(t, AgentType{Kind: "bogus"}.Validate())
	assert.Error(t, AgentType{Kind: RoleTaskManager, ParentID: NewAgentID()}.Validate())
}

func TestAgentStatus(t *testing.T) {
	assert.Equal(t, "running", Running().String())
	assert.Equal(t, "failed: boom", Failed("boom").String())
	assert.Equal(t, StatusCancelled, Cancelled().Kind)
	assert.NotEqual(t, Failed("a"), Failed("b"))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, LogDebug, DefaultLogLevel)
	assert.Equal(t, []LogLevel{LogOff, LogInfo, LogDebug, LogTrace}, AllLogLevels())

	for _, l := range AllLogLevels() {
		parsed, err := ParseLogLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)

	var l LogLevel
	require.NoError(t, json.Unmarshal([]byte(`"trace"`), &l))
	assert.Equal(t, LogTrace, l)
}

func TestCredentials(t *testing.T) {
	c := Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "us-east-1"}
	assert.True(t, c.Valid())
	assert.False(t, Credentials{AccessKeyID: "AKIA"}.Valid())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
