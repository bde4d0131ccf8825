// Package injection queues synthetic user messages and releases them when
// their trigger condition holds.
package injection

import "fmt"

// Kind identifies the purpose of an injected message.
type Kind string

const (
	KindSystemContext Kind = "SystemContext"
	KindToolFollowUp  Kind = "ToolFollowUp"
	KindMemorySummary Kind = "MemorySummary"
	KindCorrection    Kind = "Correction"
	KindWorkerResult  Kind = "WorkerResult"
	KindErrorRecovery Kind = "ErrorRecovery"
)

// Injection is the content of a synthetic message.
type Injection struct {
	Kind    Kind
	Content string
	// ToolFollowUp
	Tool string
	// WorkerResult
	WorkerID string
	// ErrorRecovery; Content holds the error.
	Suggestion string
}

func SystemContext(context string) Injection {
	return Injection{Kind: KindSystemContext, Content: context}
}

func ToolFollowUp(tool, context string) Injection {
	return Injection{Kind: KindToolFollowUp, Tool: tool, Content: context}
}

func MemorySummary(summary string) Injection {
	return Injection{Kind: KindMemorySummary, Content: summary}
}

func Correction(correction string) Injection {
	return Injection{Kind: KindCorrection, Content: correction}
}

func WorkerResult(workerID, result string) Injection {
	return Injection{Kind: KindWorkerResult, WorkerID: workerID, Content: result}
}

// ErrorRecovery builds a recovery prompt. An empty suggestion asks the
// model to try another approach.
func ErrorRecovery(err, suggestion string) Injection {
	return Injection{Kind: KindErrorRecovery, Content: err, Suggestion: suggestion}
}

// Label returns the kind name used in logs and metrics.
func (i Injection) Label() string { return string(i.Kind) }

// Format renders the message text delivered to the agent.
func (i Injection) Format() string {
	switch i.Kind {
	case KindSystemContext:
		return "[System Context]\n" + i.Content
	case KindToolFollowUp:
		return fmt.Sprintf("[Follow-up after %s]\n%s", i.Tool, i.Content)
	case KindMemorySummary:
		return "[Context Summary]\n" + i.Content
	case KindCorrection:
		return "[Correction]\n" + i.Content
	case KindWorkerResult:
		return fmt.Sprintf("[Worker %s Result]\n%s", i.WorkerID, i.Content)
	case KindErrorRecovery:
		base := "[Error Recovery]\nThe previous operation failed: " + i.Content
		if i.Suggestion != "" {
			return base + "\n\nSuggested approach: " + i.Suggestion
		}
		return base + "\n\nPlease try an alternative approach."
	default:
		return i.Content
	}
}

// Context describes the moment at which triggers are evaluated.
type Context struct {
	LastToolCompleted string
	LastToolSuccess   bool
	ResponseCompleted bool
	TokenCount        int
	TurnCount         int
}

// AfterToolContext is evaluated when a tool finishes.
func AfterToolContext(tool string, success bool) Context {
	return Context{LastToolCompleted: tool, LastToolSuccess: success}
}

// AfterResponseContext is evaluated when a response completes.
func AfterResponseContext() Context {
	return Context{ResponseCompleted: true}
}

// TokensContext carries only a token count.
func TokensContext(tokens int) Context {
	return Context{TokenCount: tokens}
}

// TurnsContext carries only a turn count.
func TurnsContext(turns int) Context {
	return Context{TurnCount: turns}
}

// TriggerKind enumerates trigger conditions.
type TriggerKind int

const (
	TriggerImmediate TriggerKind = iota
	TriggerAfterResponse
	TriggerAfterTool
	TriggerTokenThreshold
	TriggerAfterTurns
	TriggerCustom
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerImmediate:
		return "immediate"
	case TriggerAfterResponse:
		return "after_response"
	case TriggerAfterTool:
		return "after_tool"
	case TriggerTokenThreshold:
		return "token_threshold"
	case TriggerAfterTurns:
		return "after_turns"
	case TriggerCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Trigger decides when a pending injection is released.
type Trigger struct {
	Kind        TriggerKind
	Tool        string
	SuccessOnly bool
	Threshold   int
	Name        string
	predicate   func(Context) bool
}

// Immediate fires on the next check regardless of context.
func Immediate() Trigger { return Trigger{Kind: TriggerImmediate} }

// AfterResponse fires only when checked after a response completed.
func AfterResponse() Trigger { return Trigger{Kind: TriggerAfterResponse} }

// AfterTool fires when tool completes successfully.
func AfterTool(tool string) Trigger {
	return Trigger{Kind: TriggerAfterTool, Tool: tool, SuccessOnly: true}
}

// AfterToolAny fires when tool completes, successfully or not.
func AfterToolAny(tool string) Trigger {
	return Trigger{Kind: TriggerAfterTool, Tool: tool}
}

// TokenThreshold fires once the token count reaches n.
func TokenThreshold(n int) Trigger {
	return Trigger{Kind: TriggerTokenThreshold, Threshold: n}
}

// AfterTurns fires once the turn count reaches n.
func AfterTurns(n int) Trigger {
	return Trigger{Kind: TriggerAfterTurns, Threshold: n}
}

// Custom fires when fn returns true. A nil fn never fires.
func Custom(name string, fn func(Context) bool) Trigger {
	return Trigger{Kind: TriggerCustom, Name: name, predicate: fn}
}

// Matches reports whether the trigger fires in ctx.
func (t Trigger) Matches(ctx Context) bool {
	switch t.Kind {
	case TriggerImmediate:
		return true
	case TriggerAfterResponse:
		return ctx.ResponseCompleted
	case TriggerAfterTool:
		if ctx.LastToolCompleted == "" || ctx.LastToolCompleted != t.Tool {
			return false
		}
		return !t.SuccessOnly || ctx.LastToolSuccess
	case TriggerTokenThreshold:
		return ctx.TokenCount >= t.Threshold
	case TriggerAfterTurns:
		return ctx.TurnCount >= t.Threshold
	case TriggerCustom:
		return t.predicate != nil && t.predicate(ctx)
	default:
		return false
	}
}

func (t Trigger) String() string {
	switch t.Kind {
	case TriggerAfterTool:
		return fmt.Sprintf("after_tool(%s)", t.Tool)
	case TriggerTokenThreshold, TriggerAfterTurns:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Threshold)
	case TriggerCustom:
		return fmt.Sprintf("custom(%s)", t.Name)
	default:
		return t.Kind.String()
	}
}

// Pending is a queued injection. Higher Priority is released first.
type Pending struct {
	Injection Injection
	Trigger   Trigger
	Priority  uint8
}

// NewPending creates a pending injection with priority 0.
func NewPending(inj Injection, trigger Trigger) Pending {
	return Pending{Injection: inj, Trigger: trigger}
}

// WithPriority returns a copy with the given priority.
func (p Pending) WithPriority(priority uint8) Pending {
	p.Priority = priority
	return p
}
