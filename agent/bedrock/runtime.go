// Package bedrock runs agent turns against the Bedrock Converse API.
//
// A Runtime owns one agent's model-side conversation and drives the tool
// loop: call the model, run the requested tools through the role's tool
// registry, feed the results back, and stop at end of turn or when the
// cycle or tool iteration limits are reached.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/agent/tools"
	"github.com/BaSui01/agentdash/internal/telemetry"
	"github.com/BaSui01/agentdash/types"
)

var (
	// ErrCycleLimit is returned when a turn needs more model calls than allowed.
	ErrCycleLimit = errors.New("maximum event loop cycles reached")
	// ErrToolLimit is returned when a turn requests more tool uses than allowed.
	ErrToolLimit = errors.New("maximum tool iterations reached")
)

// ConverseAPI is the part of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

var _ ConverseAPI = (*bedrockruntime.Client)(nil)

// Options configure a Runtime.
type Options struct {
	ModelID      string
	SystemPrompt string
	Registry     *tools.DefaultRegistry
	Limits       Limits
	MaxTokens    int
	Temperature  float64
	// Limiter is shared by every runtime of a factory. Nil disables it.
	Limiter  *rate.Limiter
	Retry    RetryConfig
	Tracer   trace.Tracer
	Logger   *zap.Logger
	LogLevel types.LogLevel
}

// Runtime implements agent.Runtime.
type Runtime struct {
	client    ConverseAPI
	opts      Options
	executor  *tools.DefaultExecutor
	toolCfg   *brtypes.ToolConfiguration
	inference *brtypes.InferenceConfiguration
	logger    *zap.Logger

	mu      sync.Mutex
	history []brtypes.Message
}

var _ agent.Runtime = (*Runtime)(nil)

// New builds a runtime around client.
func New(client ConverseAPI, opts Options) (*Runtime, error) {
	if client == nil {
		return nil, errors.New("bedrock: nil client")
	}
	if opts.ModelID == "" {
		return nil, errors.New("bedrock: model id is required")
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewDefaultRegistry(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer()
	}
	if opts.Limits.MaxCycles <= 0 {
		opts.Limits.MaxCycles = workerLimits.MaxCycles
	}
	if opts.Limits.MaxToolIterations <= 0 {
		opts.Limits.MaxToolIterations = workerLimits.MaxToolIterations
	}

	cfg, err := toolConfig(opts.Registry.List())
	if err != nil {
		return nil, err
	}
	inference := &brtypes.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(opts.Temperature))
	}

	logger := opts.Logger.With(zap.String("component", "bedrock_runtime"), zap.String("model", opts.ModelID))
	return &Runtime{
		client:    client,
		opts:      opts,
		executor:  tools.NewDefaultExecutor(opts.Registry, logger),
		toolCfg:   cfg,
		inference: inference,
		logger:    logger,
	}, nil
}

// History returns a copy of the model-side conversation.
func (r *Runtime) History() []brtypes.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]brtypes.Message(nil), r.history...)
}

// Execute runs one turn. A failed or cancelled turn leaves the history as
// it was before the turn so the next turn starts from a valid conversation.
func (r *Runtime) Execute(ctx context.Context, turn agent.Turn) (string, error) {
	obs := turn.Observer
	if obs == nil {
		obs = agent.NopObserver{}
	}
	if turn.Token != nil {
		var cancel context.CancelFunc
		ctx, cancel = turn.Token.Bind(ctx)
		defer cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mark := len(r.history)
	r.history = append(r.history, userText(turn.Message))
	out, err := r.loop(ctx, turn.Token, obs)
	if err != nil {
		r.history = r.history[:mark]
		return "", err
	}
	return out, nil
}

func (r *Runtime) loop(ctx context.Context, token *agent.CancellationToken, obs agent.TurnObserver) (string, error) {
	start := time.Now()
	iterations := 0
	for cycle := 1; cycle <= r.opts.Limits.MaxCycles; cycle++ {
		if err := token.Check(); err != nil {
			return "", err
		}

		msg, stop, err := r.converse(ctx, cycle, obs)
		if err != nil {
			if token.Check() != nil {
				return "", agent.ErrCancelled
			}
			return "", err
		}
		r.history = append(r.history, msg)

		calls, err := toolUses(msg)
		if err != nil {
			return "", err
		}
		text := messageText(msg)
		if stop != brtypes.StopReasonToolUse || len(calls) == 0 {
			if stop == brtypes.StopReasonMaxTokens {
				r.logger.Warn("response truncated at max tokens", zap.Int("cycle", cycle))
			}
			if r.opts.LogLevel >= types.LogInfo {
				r.logger.Info("turn complete",
					zap.Int("cycles", cycle),
					zap.Int("tool_iterations", iterations),
					zap.Duration("elapsed", time.Since(start)))
			}
			return text, nil
		}
		if text != "" {
			obs.Status(text)
		}

		iterations += len(calls)
		if iterations > r.opts.Limits.MaxToolIterations {
			return "", fmt.Errorf("%w (%d)", ErrToolLimit, r.opts.Limits.MaxToolIterations)
		}
		if err := token.Check(); err != nil {
			return "", err
		}
		results := r.runTools(ctx, calls, obs)
		if err := token.Check(); err != nil {
			return "", err
		}
		r.history = append(r.history, toolResultMessage(results))
	}
	return "", fmt.Errorf("%w (%d)", ErrCycleLimit, r.opts.Limits.MaxCycles)
}

func (r *Runtime) converse(ctx context.Context, cycle int, obs agent.TurnObserver) (msg brtypes.Message, stop brtypes.StopReason, err error) {
	ctx, span := telemetry.StartModelCall(ctx, r.opts.Tracer, r.opts.ModelID, cycle)
	defer func() { telemetry.EndSpan(span, err) }()

	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(r.opts.ModelID),
		Messages:        r.history,
		ToolConfig:      r.toolCfg,
		InferenceConfig: r.inference,
	}
	if r.opts.SystemPrompt != "" {
		in.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: r.opts.SystemPrompt}}
	}

	var out *bedrockruntime.ConverseOutput
	err = r.opts.Retry.do(ctx, r.logger, func(ctx context.Context) error {
		if r.opts.Limiter != nil {
			if err := r.opts.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		out, callErr = r.client.Converse(ctx, in)
		return callErr
	})
	if err != nil {
		return msg, "", fmt.Errorf("converse: %w", err)
	}

	if u := out.Usage; u != nil {
		obs.TokenUsage(int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens)))
	}
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		err = fmt.Errorf("converse: unexpected output type %T", out.Output)
		return msg, "", err
	}
	msg = member.Value
	if msg.Role == "" {
		msg.Role = brtypes.ConversationRoleAssistant
	}
	if r.opts.LogLevel >= types.LogTrace {
		r.logger.Debug("model response",
			zap.Int("cycle", cycle),
			zap.String("stop_reason", string(out.StopReason)),
			zap.String("text", messageText(msg)))
	}
	return msg, out.StopReason, nil
}

func (r *Runtime) runTools(ctx context.Context, calls []types.ToolCall, obs agent.TurnObserver) []tools.Result {
	spans := make([]trace.Span, len(calls))
	for i, c := range calls {
		_, spans[i] = telemetry.StartToolCall(ctx, r.opts.Tracer, c.Name)
		obs.ToolStarted(c.Name, string(c.Arguments))
		if r.opts.LogLevel >= types.LogDebug {
			r.logger.Debug("tool call", zap.String("tool", c.Name), zap.String("id", c.ID))
		}
	}

	results := r.executor.Execute(ctx, calls)
	for i, res := range results {
		if res.Failed() {
			obs.ToolFailed(res.Name, res.Text(), res.Duration)
			telemetry.EndSpan(spans[i], errors.New(res.Error))
			continue
		}
		obs.ToolCompleted(res.Name, string(res.Output), res.Duration)
		telemetry.EndSpan(spans[i], nil)
	}
	return results
}
