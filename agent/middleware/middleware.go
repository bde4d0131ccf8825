// Package middleware runs ordered conversation layers around every agent
// turn: pre-send transforms in registration order, post-response actions
// in reverse order, and tool notifications from the worker goroutine.
package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentdash/types"
)

// ErrorKind classifies a LayerError.
type ErrorKind int

const (
	// ProcessingFailed is logged and the pipeline continues.
	ProcessingFailed ErrorKind = iota
	// Skipped means the layer did not apply.
	Skipped
	// Aborted stops a pre-send chain.
	Aborted
)

// LayerError is returned by layers to skip, fail or abort.
type LayerError struct {
	Kind   ErrorKind
	Reason string
}

func (e *LayerError) Error() string {
	switch e.Kind {
	case Skipped:
		return "Layer skipped: " + e.Reason
	case Aborted:
		return "Layer chain aborted: " + e.Reason
	default:
		return "Layer processing failed: " + e.Reason
	}
}

// Failed returns a ProcessingFailed error.
func Failed(format string, args ...any) *LayerError {
	return &LayerError{Kind: ProcessingFailed, Reason: fmt.Sprintf(format, args...)}
}

// Skip returns a Skipped error.
func Skip(reason string) *LayerError {
	return &LayerError{Kind: Skipped, Reason: reason}
}

// Abort returns an Aborted error.
func Abort(reason string) *LayerError {
	return &LayerError{Kind: Aborted, Reason: reason}
}

// ActionKind enumerates post-response outcomes.
type ActionKind int

const (
	ActionPassThrough ActionKind = iota
	ActionModify
	ActionInjectFollowUp
	ActionSuppressAndInject
)

// Action is what a layer wants done with a response.
type Action struct {
	Kind ActionKind
	Text string
}

func PassThrough() Action                 { return Action{Kind: ActionPassThrough} }
func Modify(text string) Action           { return Action{Kind: ActionModify, Text: text} }
func InjectFollowUp(msg string) Action    { return Action{Kind: ActionInjectFollowUp, Text: msg} }
func SuppressAndInject(msg string) Action { return Action{Kind: ActionSuppressAndInject, Text: msg} }

// ModifiesResponse reports whether the visible response changes.
func (a Action) ModifiesResponse() bool {
	return a.Kind == ActionModify || a.Kind == ActionSuppressAndInject
}

// TriggersInjection reports whether a follow-up message is requested.
func (a Action) TriggersInjection() bool {
	return a.Kind == ActionInjectFollowUp || a.Kind == ActionSuppressAndInject
}

// InjectionMessage returns the follow-up message, if any.
func (a Action) InjectionMessage() (string, bool) {
	if a.TriggersInjection() {
		return a.Text, true
	}
	return "", false
}

// ModifiedResponse returns the replacement text of a Modify action.
func (a Action) ModifiedResponse() (string, bool) {
	if a.Kind == ActionModify {
		return a.Text, true
	}
	return "", false
}

// Layer is one conversation middleware.
type Layer interface {
	Name() string
	PreSend(message string, ctx Context) (string, error)
	PostResponse(response string, ctx Context) (Action, error)
}

// ToolObserver is implemented by layers that watch tool execution.
type ToolObserver interface {
	OnToolStart(tool string, ctx Context)
	OnToolComplete(tool string, success bool, ctx Context)
}

// Base passes everything through. Embed it to implement only what a
// layer needs.
type Base struct{}

func (Base) PreSend(message string, _ Context) (string, error) { return message, nil }
func (Base) PostResponse(string, Context) (Action, error)      { return PassThrough(), nil }
func (Base) OnToolStart(string, Context)                       {}
func (Base) OnToolComplete(string, bool, Context)              {}

// Context is the immutable snapshot handed to layers. Metadata is shared
// between copies of the same context.
type Context struct {
	AgentID         types.AgentID
	AgentType       types.AgentType
	TokenCount      int
	TurnCount       int
	MessageCount    int
	LastTool        string
	LastToolSuccess bool
	ProcessingStart time.Time

	metadata *metadata
}

type metadata struct {
	mu sync.Mutex
	m  map[string]string
}

// NewContext creates a context for an agent.
func NewContext(id types.AgentID, agentType types.AgentType) Context {
	return Context{
		AgentID:         id,
		AgentType:       agentType,
		LastToolSuccess: true,
		metadata:        &metadata{m: make(map[string]string)},
	}
}

func (c Context) WithTokenCount(n int) Context   { c.TokenCount = n; return c }
func (c Context) WithTurnCount(n int) Context    { c.TurnCount = n; return c }
func (c Context) WithMessageCount(n int) Context { c.MessageCount = n; return c }

func (c Context) WithLastTool(tool string, success bool) Context {
	c.LastTool = tool
	c.LastToolSuccess = success
	return c
}

func (c Context) WithProcessingStart(t time.Time) Context {
	c.ProcessingStart = t
	return c
}

// Elapsed returns the time since ProcessingStart, if set.
func (c Context) Elapsed() (time.Duration, bool) {
	if c.ProcessingStart.IsZero() {
		return 0, false
	}
	return time.Since(c.ProcessingStart), true
}

// SetMetadata stores a value visible to later layers in the same turn.
func (c Context) SetMetadata(key, value string) {
	if c.metadata == nil {
		return
	}
	c.metadata.mu.Lock()
	c.metadata.m[key] = value
	c.metadata.mu.Unlock()
}

// Metadata returns a stored value.
func (c Context) Metadata(key string) (string, bool) {
	if c.metadata == nil {
		return "", false
	}
	c.metadata.mu.Lock()
	defer c.metadata.mu.Unlock()
	v, ok := c.metadata.m[key]
	return v, ok
}

// IsLongConversation reports TokenCount > threshold.
func (c Context) IsLongConversation(threshold int) bool { return c.TokenCount > threshold }

// ManyTurns reports TurnCount > threshold.
func (c Context) ManyTurns(threshold int) bool { return c.TurnCount > threshold }

// EstimateTokens is the len/4 heuristic.
func EstimateTokens(text string) int { return len(text) / 4 }

// ContextBuilder assembles a Context field by field.
type ContextBuilder struct {
	ctx Context
}

// NewContextBuilder starts from an empty TaskManager context.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{ctx: NewContext(types.AgentID{}, types.TaskManager())}
}

func (b *ContextBuilder) AgentID(id types.AgentID) *ContextBuilder {
	b.ctx.AgentID = id
	return b
}

func (b *ContextBuilder) AgentType(t types.AgentType) *ContextBuilder {
	b.ctx.AgentType = t
	return b
}

func (b *ContextBuilder) TokenCount(n int) *ContextBuilder {
	b.ctx.TokenCount = n
	return b
}

func (b *ContextBuilder) TurnCount(n int) *ContextBuilder {
	b.ctx.TurnCount = n
	return b
}

func (b *ContextBuilder) MessageCount(n int) *ContextBuilder {
	b.ctx.MessageCount = n
	return b
}

func (b *ContextBuilder) LastTool(tool string, success bool) *ContextBuilder {
	b.ctx.LastTool = tool
	b.ctx.LastToolSuccess = success
	return b
}

func (b *ContextBuilder) Build() Context {
	return b.ctx
}
