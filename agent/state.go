package agent

import "fmt"

// State is the lifecycle state of an Instance.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateProcessing    State = "processing"
	StateTerminated    State = "terminated"
)

// validTransitions lists the legal state changes. Processing can fall back
// to Uninitialized when the runtime is reset mid-turn or lazy
// initialization fails.
var validTransitions = map[State][]State{
	StateUninitialized: {StateReady, StateProcessing, StateTerminated},
	StateReady:         {StateProcessing, StateUninitialized, StateTerminated},
	StateProcessing:    {StateReady, StateUninitialized, StateTerminated},
	StateTerminated:    {},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for an illegal state change.
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// PhaseKind discriminates ProcessingPhase.
type PhaseKind string

const (
	PhaseIdle          PhaseKind = "idle"
	PhaseThinking      PhaseKind = "thinking"
	PhaseExecutingTool PhaseKind = "executing_tool"
)

// ProcessingPhase is what an in-flight turn is doing right now.
type ProcessingPhase struct {
	Kind PhaseKind `json:"kind"`
	Tool string    `json:"tool,omitempty"`
}

func Idle() ProcessingPhase     { return ProcessingPhase{Kind: PhaseIdle} }
func Thinking() ProcessingPhase { return ProcessingPhase{Kind: PhaseThinking} }

// ExecutingTool returns the phase for a running tool.
func ExecutingTool(name string) ProcessingPhase {
	return ProcessingPhase{Kind: PhaseExecutingTool, Tool: name}
}

func (p ProcessingPhase) String() string {
	if p.Kind == PhaseExecutingTool {
		return "executing " + p.Tool
	}
	return string(p.Kind)
}
