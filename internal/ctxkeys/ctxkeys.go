// Package ctxkeys carries the per-turn agent scope through context.Context.
// The agent worker sets the scope before invoking the runtime; tools and
// sandbox bindings read it back.
package ctxkeys

import (
	"context"

	"github.com/google/uuid"

	"github.com/BaSui01/agentdash/types"
)

// contextKey is the key type for values stored in a context.
type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	agentIDKey   contextKey = "agent_id"
	agentTypeKey contextKey = "agent_type"
	logLevelKey  contextKey = "log_level"
	vfsIDKey     contextKey = "vfs_id"
)

// WithTraceID sets the trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAgentID sets the id of the agent running the current turn.
func WithAgentID(ctx context.Context, id types.AgentID) context.Context {
	return context.WithValue(ctx, agentIDKey, id)
}

// AgentID returns the id of the agent running the current turn.
func AgentID(ctx context.Context) (types.AgentID, bool) {
	v, ok := ctx.Value(agentIDKey).(types.AgentID)
	if !ok || v.IsZero() {
		return types.AgentID{}, false
	}
	return v, true
}

// WithAgentType sets the role of the agent running the current turn.
func WithAgentType(ctx context.Context, t types.AgentType) context.Context {
	return context.WithValue(ctx, agentTypeKey, t)
}

// AgentType returns the role of the agent running the current turn.
func AgentType(ctx context.Context) (types.AgentType, bool) {
	v, ok := ctx.Value(agentTypeKey).(types.AgentType)
	return v, ok
}

// WithLogLevel sets the runtime log level of the current turn.
func WithLogLevel(ctx context.Context, level types.LogLevel) context.Context {
	return context.WithValue(ctx, logLevelKey, level)
}

// LogLevel returns the runtime log level, falling back to the default.
func LogLevel(ctx context.Context) types.LogLevel {
	if v, ok := ctx.Value(logLevelKey).(types.LogLevel); ok {
		return v
	}
	return types.DefaultLogLevel
}

// WithVFSID sets the virtual file system bound to the current turn.
func WithVFSID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, vfsIDKey, id)
}

// VFSID returns the virtual file system bound to the current turn.
func VFSID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(vfsIDKey).(uuid.UUID)
	if !ok || v == uuid.Nil {
		return uuid.Nil, false
	}
	return v, true
}

// Scope is the full per-turn agent scope.
type Scope struct {
	AgentID   types.AgentID
	AgentType types.AgentType
	LogLevel  types.LogLevel
	VFSID     uuid.UUID
}

// WithScope sets every field of s. A zero VFSID is left unset.
func WithScope(ctx context.Context, s Scope) context.Context {
	ctx = WithAgentID(ctx, s.AgentID)
	ctx = WithAgentType(ctx, s.AgentType)
	ctx = WithLogLevel(ctx, s.LogLevel)
	if s.VFSID != uuid.Nil {
		ctx = WithVFSID(ctx, s.VFSID)
	}
	return ctx
}
