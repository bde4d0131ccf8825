package agent

import (
	"time"

	"github.com/BaSui01/agentdash/types"
)

// ResultKind discriminates TurnResult.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultError
	ResultStatusUpdate
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	default:
		return "status_update"
	}
}

// TurnResult travels from the worker goroutine to the polling caller.
// Success and Error end a turn; any number of StatusUpdates may precede
// them.
type TurnResult struct {
	Kind ResultKind
	Text string
}

func Success(text string) TurnResult      { return TurnResult{Kind: ResultSuccess, Text: text} }
func Failure(message string) TurnResult   { return TurnResult{Kind: ResultError, Text: message} }
func StatusUpdate(text string) TurnResult { return TurnResult{Kind: ResultStatusUpdate, Text: text} }

// IsTerminal reports whether r ends the turn.
func (r TurnResult) IsTerminal() bool { return r.Kind != ResultStatusUpdate }

// WorkerCompletion is the terminal outcome of a worker agent's turn,
// delivered from the worker goroutine to whoever spawned it.
type WorkerCompletion struct {
	WorkerID types.AgentID
	Result   string
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the worker succeeded.
func (c WorkerCompletion) OK() bool { return c.Err == nil }
