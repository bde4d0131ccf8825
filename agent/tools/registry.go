// Package tools holds the tool contract, the registry and executor the model
// runtime calls through, and the closed set of tools each agent role gets.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentdash/types"
)

// DefaultTimeout bounds a tool call when its metadata sets none.
const DefaultTimeout = 30 * time.Second

// ToolFunc defines the tool function signature. A returned error is reported
// to the model as a failed tool result, never as a turn failure.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema    types.ToolSchema
	RateLimit *RateLimitConfig
	Timeout   time.Duration
}

// RateLimitConfig allows MaxCalls per Window, bursting up to MaxCalls.
type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
}

// Tool pairs a function with its metadata.
type Tool struct {
	Func     ToolFunc
	Metadata ToolMetadata
}

// Name returns the schema name.
func (t Tool) Name() string { return t.Metadata.Schema.Name }

// Result is the outcome of one tool call.
type Result struct {
	CallID   string          `json:"call_id"`
	Name     string          `json:"name"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Failed reports whether the call produced an error.
func (r Result) Failed() bool { return r.Error != "" }

// Text is what the model sees: the error message or the raw output.
func (r Result) Text() string {
	if r.Failed() {
		return r.Error
	}
	return string(r.Output)
}

// ToolResult converts r into the conversation type.
func (r Result) ToolResult() types.ToolResult {
	return types.ToolResult{CallID: r.CallID, Name: r.Name, Content: r.Text(), IsError: r.Failed()}
}

// Error is a tool failure that still carries structured output for the
// model, such as a partially applied edit.
type Error struct {
	Message string
	Output  json.RawMessage
}

func (e *Error) Error() string {
	if len(e.Output) == 0 {
		return e.Message
	}
	return e.Message + "\n" + string(e.Output)
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(t Tool) error
	Unregister(name string) error
	Get(name string) (Tool, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []Result
	ExecuteOne(ctx context.Context, call types.ToolCall) Result
}

// ErrToolNotFound is returned for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// ====== DefaultRegistry ======

type DefaultRegistry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	rateLimits map[string]*rate.Limiter
	logger     *zap.Logger
}

// NewDefaultRegistry creates an empty registry.
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:      make(map[string]Tool),
		rateLimits: make(map[string]*rate.Limiter),
		logger:     logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool schema has no name")
	}
	if t.Func == nil {
		return fmt.Errorf("tool %s has no function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if t.Metadata.Timeout == 0 {
		t.Metadata.Timeout = DefaultTimeout
	}
	if len(t.Metadata.Schema.Parameters) == 0 {
		t.Metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	r.tools[name] = t
	if rl := t.Metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		r.rateLimits[name] = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", t.Metadata.Timeout))
	return nil
}

// RegisterAll registers every tool, stopping at the first failure.
func (r *DefaultRegistry) RegisterAll(ts ...Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	delete(r.tools, name)
	delete(r.rateLimits, name)
	return nil
}

func (r *DefaultRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns the schemas sorted by name.
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Metadata.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered names sorted.
func (r *DefaultRegistry) Names() []string {
	schemas := r.List()
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.rateLimits[name]
	r.mu.RUnlock()
	return !ok || limiter.Allow()
}

// ====== DefaultExecutor ======

type DefaultExecutor struct {
	registry ToolRegistry
	logger   *zap.Logger
}

// NewDefaultExecutor creates an executor over registry.
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
}

// Execute runs calls concurrently; results keep the order of calls.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) Result {
	start := time.Now()
	result := Result{CallID: call.ID, Name: call.Name}
	fail := func(msg string) Result {
		result.Error = msg
		result.Duration = time.Since(start)
		return result
	}

	t, err := e.registry.Get(call.Name)
	if err != nil {
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return fail(err.Error())
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return fail(fmt.Sprintf("rate limit exceeded for tool %s", call.Name))
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		e.logger.Warn("invalid tool arguments", zap.String("name", call.Name))
		return fail("invalid arguments: not valid JSON")
	}

	timeout := t.Metadata.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// Buffered so the call can finish after a timeout without blocking.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := t.Func(execCtx, args)
		done <- outcome{res, err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-execCtx.Done():
		o.err = execCtx.Err()
	}

	if o.err != nil && execCtx.Err() != nil {
		if ctx.Err() != nil {
			return fail("tool call cancelled")
		}
		e.logger.Warn("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", timeout))
		return fail(fmt.Sprintf("execution timeout after %s", timeout))
	}
	if o.err != nil {
		e.logger.Debug("tool execution failed",
			zap.String("name", call.Name),
			zap.Error(o.err),
			zap.Duration("duration", time.Since(start)))
		return fail(o.err.Error())
	}
	result.Output = o.res
	result.Duration = time.Since(start)
	e.logger.Debug("tool executed",
		zap.String("name", call.Name),
		zap.Duration("duration", result.Duration))
	return result
}

// decodeArgs unmarshals args into v with a uniform error message.
func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("Invalid parameters: %v", err)
	}
	return nil
}

// schema builds parameters JSON from a Go value.
func schema(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tools: bad schema: %v", err))
	}
	return b
}

func mustJSON(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("Failed to serialize result: %w", err)
	}
	return b, nil
}
