package agent

import (
	"time"

	"github.com/BaSui01/agentdash/agent/middleware"
)

// turnObserver feeds runtime progress back into its Instance. Updates from a
// turn that was abandoned by a reset only reach the logs.
type turnObserver struct {
	a    *Instance
	turn *activeTurn
}

var _ TurnObserver = (*turnObserver)(nil)

func (o *turnObserver) Status(text string) {
	_ = o.turn.mailbox.Send(StatusUpdate(text))
}

func (o *turnObserver) ToolStarted(name, input string) {
	a := o.a
	mctx, current := o.update(func() { a.phase = ExecutingTool(name) })
	a.alog.ToolStart(name, input)
	if !current {
		return
	}
	a.stack.NotifyToolStart(name, mctx)
	a.events.Publish(Event{Type: EventToolStarted, AgentID: a.id, Tool: name})
	_ = o.turn.mailbox.Send(StatusUpdate("Running tool: " + name))
}

func (o *turnObserver) ToolCompleted(name, output string, elapsed time.Duration) {
	a := o.a
	mctx, current := o.update(func() {
		a.phase = Thinking()
		a.lastTool, a.lastToolOK = name, true
	})
	a.alog.ToolComplete(name, output, elapsed)
	a.metrics.RecordToolCall(name, true, elapsed)
	if !current {
		return
	}
	a.stack.NotifyToolComplete(name, true, mctx)
	a.events.Publish(Event{Type: EventToolCompleted, AgentID: a.id, Tool: name, Success: true, Elapsed: elapsed})
}

func (o *turnObserver) ToolFailed(name, errMsg string, elapsed time.Duration) {
	a := o.a
	mctx, current := o.update(func() {
		a.phase = Thinking()
		a.lastTool, a.lastToolOK = name, false
	})
	a.alog.ToolFailed(name, errMsg, elapsed)
	a.metrics.RecordToolCall(name, false, elapsed)
	if !current {
		return
	}
	a.stack.NotifyToolComplete(name, false, mctx)
	a.events.Publish(Event{Type: EventToolFailed, AgentID: a.id, Tool: name, Message: errMsg, Elapsed: elapsed})
}

func (o *turnObserver) TokenUsage(input, output int) {
	a := o.a
	_, current := o.update(func() { a.usedTokens += input + output })
	a.alog.TokenUsage(input, output)
	a.metrics.RecordTokens(string(a.agentType.Kind), input, output)
	if current {
		a.events.Publish(Event{Type: EventTokenUsage, AgentID: a.id, InputTokens: input, OutputTokens: output})
	}
}

// update applies fn when the observed turn is still the instance's current
// one and returns a middleware context snapshot taken afterwards.
func (o *turnObserver) update(fn func()) (middleware.Context, bool) {
	a := o.a
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.turn != o.turn {
		return middleware.Context{}, false
	}
	fn()
	return a.layerContextLocked(), true
}
