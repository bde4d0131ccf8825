package sandbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the terminal state of one invocation.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeCompileError Outcome = "compile_error"
	OutcomeRuntimeError Outcome = "runtime_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeHeapExceeded Outcome = "heap_exceeded"
	OutcomeCancelled    Outcome = "cancelled"
)

// Result is the structured outcome of Execute. Value holds the script's
// completion value as JSON; it is nil when the value was undefined.
type Result struct {
	Success   bool            `json:"success"`
	Value     json.RawMessage `json:"value,omitempty"`
	Stdout    string          `json:"stdout"`
	Stderr    string          `json:"stderr"`
	Elapsed   time.Duration   `json:"-"`
	ElapsedMs int64           `json:"execution_time_ms"`
	Outcome   Outcome         `json:"outcome"`
	Error     string          `json:"error,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Decode unmarshals Value into v.
func (r *Result) Decode(v any) error {
	if len(r.Value) == 0 {
		return fmt.Errorf("sandbox: result has no value")
	}
	return json.Unmarshal(r.Value, v)
}

// Err returns nil on success and an *Error otherwise.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Outcome: r.Outcome, Message: r.Error}
}

// Error describes a failed invocation.
type Error struct {
	Outcome Outcome
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sandbox %s: %s", e.Outcome, e.Message)
}

// IsTimeout reports whether the invocation was stopped by the watchdog.
func (e *Error) IsTimeout() bool { return e.Outcome == OutcomeTimeout }
