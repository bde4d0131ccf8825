package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentdash/types"
)

// Runtime executes turns for one agent and keeps that agent's model-side
// conversation. An Instance serializes calls to Execute.
type Runtime interface {
	Execute(ctx context.Context, turn Turn) (string, error)
}

// Turn is one Execute call.
type Turn struct {
	Message string
	// Token is checked by the runtime at its own check points.
	Token    *CancellationToken
	Observer TurnObserver
}

// TurnObserver receives progress from a running turn. Calls come from the
// worker goroutine.
type TurnObserver interface {
	Status(text string)
	ToolStarted(name, input string)
	ToolCompleted(name, output string, elapsed time.Duration)
	ToolFailed(name, errMsg string, elapsed time.Duration)
	TokenUsage(input, output int)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Status(string)                               {}
func (NopObserver) ToolStarted(string, string)                  {}
func (NopObserver) ToolCompleted(string, string, time.Duration) {}
func (NopObserver) ToolFailed(string, string, time.Duration)    {}
func (NopObserver) TokenUsage(int, int)                         {}

// RuntimeSpec is everything a factory needs to build a runtime.
type RuntimeSpec struct {
	AgentID     types.AgentID
	AgentType   types.AgentType
	LogLevel    types.LogLevel
	Credentials types.Credentials
	VFSID       uuid.UUID
	Telemetry   bool
}

// RuntimeFactory builds runtimes. Build may block on model selection and
// tool registration.
type RuntimeFactory interface {
	NewRuntime(ctx context.Context, spec RuntimeSpec) (Runtime, error)
}

// RuntimeFactoryFunc adapts a function to RuntimeFactory.
type RuntimeFactoryFunc func(ctx context.Context, spec RuntimeSpec) (Runtime, error)

func (f RuntimeFactoryFunc) NewRuntime(ctx context.Context, spec RuntimeSpec) (Runtime, error) {
	return f(ctx, spec)
}

// CredentialSource supplies credentials for lazy initialization.
type CredentialSource interface {
	Credentials(ctx context.Context) (types.Credentials, error)
}

// StaticCredentials always returns the same credentials.
type StaticCredentials types.Credentials

func (c StaticCredentials) Credentials(context.Context) (types.Credentials, error) {
	return types.Credentials(c), nil
}

// TranscriptRecorder persists conversation messages without blocking.
type TranscriptRecorder interface {
	Record(id types.AgentID, agentType types.AgentType, msg types.Message)
	Clear(id types.AgentID)
}
