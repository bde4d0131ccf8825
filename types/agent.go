package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Agent identity
// =============================================================================

// AgentID uniquely identifies one agent instance for its whole lifetime.
type AgentID uuid.UUID

// NewAgentID mints a fresh random identity.
func NewAgentID() AgentID {
	return AgentID(uuid.New())
}

// ParseAgentID parses the canonical UUID text form.
func ParseAgentID(s string) (AgentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AgentID{}, fmt.Errorf("parse agent id %q: %w", s, err)
	}
	return AgentID(id), nil
}

// String returns the canonical UUID text form.
func (id AgentID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight characters, used in log file names and UI labels.
func (id AgentID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether the id was never assigned.
func (id AgentID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler.
func (id AgentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AgentID) UnmarshalText(b []byte) error {
	parsed, err := ParseAgentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// =============================================================================
// Agent roles
// =============================================================================

// RoleKind discriminates the AgentType variants.
type RoleKind string

const (
	RoleTaskManager       RoleKind = "task_manager"
	RoleTaskWorker        RoleKind = "task_worker"
	RolePageBuilderWorker RoleKind = "page_builder_worker"
)

// AgentType is the closed set of agent roles. Only the fields of the active
// variant are meaningful; use the constructors rather than literals.
type AgentType struct {
	Kind RoleKind `json:"kind"`

	// ParentID is set for TaskWorker and PageBuilderWorker.
	ParentID AgentID `json:"parent_id,omitempty"`

	// WorkspaceName and Persistent are set for PageBuilderWorker.
	WorkspaceName string `json:"workspace_name,omitempty"`
	Persistent    bool   `json:"persistent,omitempty"`
}

// TaskManager returns the orchestrating parent role.
func TaskManager() AgentType {
	return AgentType{Kind: RoleTaskManager}
}

// TaskWorker returns a worker role owned by parent.
func TaskWorker(parent AgentID) AgentType {
	return AgentType{Kind: RoleTaskWorker, ParentID: parent}
}

// PageBuilderWorker returns a page builder role owned by parent, confined to
// the given workspace.
func PageBuilderWorker(parent AgentID, workspace string, persistent bool) AgentType {
	return AgentType{
		Kind:          RolePageBuilderWorker,
		ParentID:      parent,
		WorkspaceName: workspace,
		Persistent:    persistent,
	}
}

// Validate checks that the variant fields are consistent with Kind.
func (t AgentType) Validate() error {
	switch t.Kind {
	case RoleTaskManager:
		if !t.ParentID.IsZero() {
			return fmt.Errorf("task manager cannot have a parent")
		}
	case RoleTaskWorker:
		if t.ParentID.IsZero() {
			return fmt.Errorf("task worker requires a parent id")
		}
	case RolePageBuilderWorker:
		if t.ParentID.IsZero() {
			return fmt.Errorf("page builder worker requires a parent id")
		}
		if strings.TrimSpace(t.WorkspaceName) == "" {
			return fmt.Errorf("page builder worker requires a workspace name")
		}
	default:
		return fmt.Errorf("unknown agent role %q", t.Kind)
	}
	return nil
}

// DisplayName is the UI label of the role.
func (t AgentType) DisplayName() string {
	switch t.Kind {
	case RoleTaskManager:
		return "General Purpose Agent"
	case RoleTaskWorker:
		return "Worker Agent"
	case RolePageBuilderWorker:
		return "Page Builder Worker"
	default:
		return "Unknown Agent"
	}
}

// Description is the UI blurb of the role.
func (t AgentType) Description() string {
	switch t.Kind {
	case RoleTaskManager:
		return "Multi-purpose agent with access to all tools"
	case RoleTaskWorker:
		return "Specialized worker for focused tasks"
	case RolePageBuilderWorker:
		return "Specialized worker for building Dash Pages in isolated context"
	default:
		return ""
	}
}

// IsParent reports whether the role may own workers.
func (t AgentType) IsParent() bool { return t.Kind == RoleTaskManager }

// IsWorker reports whether the role always has a parent.
func (t AgentType) IsWorker() bool {
	return t.Kind == RoleTaskWorker || t.Kind == RolePageBuilderWorker
}

// Parent returns the owning agent for worker roles.
func (t AgentType) Parent() (AgentID, bool) {
	if !t.IsWorker() {
		return AgentID{}, false
	}
	return t.ParentID, true
}

// String returns a short, log-friendly name.
func (t AgentType) String() string {
	switch t.Kind {
	case RoleTaskManager:
		return "Task Manager"
	case RoleTaskWorker:
		return "Task Worker"
	case RolePageBuilderWorker:
		return "Page Builder Worker"
	default:
		return string(t.Kind)
	}
}

// =============================================================================
// Agent status
// =============================================================================

// StatusKind discriminates AgentStatus.
type StatusKind string

const (
	StatusRunning   StatusKind = "running"
	StatusPaused    StatusKind = "paused"
	StatusCompleted StatusKind = "completed"
	StatusFailed    StatusKind = "failed"
	StatusCancelled StatusKind = "cancelled"
)

// AgentStatus is the user-facing execution status. Message is only set for
// StatusFailed.
type AgentStatus struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

func Running() AgentStatus   { return AgentStatus{Kind: StatusRunning} }
func Paused() AgentStatus    { return AgentStatus{Kind: StatusPaused} }
func Completed() AgentStatus { return AgentStatus{Kind: StatusCompleted} }
func Cancelled() AgentStatus { return AgentStatus{Kind: StatusCancelled} }

// Failed returns a failed status carrying msg.
func Failed(msg string) AgentStatus {
	return AgentStatus{Kind: StatusFailed, Message: msg}
}

func (s AgentStatus) String() string {
	if s.Kind == StatusFailed {
		return fmt.Sprintf("failed: %s", s.Message)
	}
	return string(s.Kind)
}

// =============================================================================
// Runtime log level
// =============================================================================

// LogLevel is the verbosity of the underlying agent runtime.
type LogLevel int

const (
	LogOff LogLevel = iota
	LogInfo
	LogDebug
	LogTrace
)

// DefaultLogLevel is used for new agents.
const DefaultLogLevel = LogDebug

// AllLogLevels lists every level in ascending verbosity.
func AllLogLevels() []LogLevel {
	return []LogLevel{LogOff, LogInfo, LogDebug, LogTrace}
}

func (l LogLevel) String() string {
	switch l {
	case LogOff:
		return "Off"
	case LogInfo:
		return "Info"
	case LogDebug:
		return "Debug"
	case LogTrace:
		return "Trace"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel accepts the case-insensitive level names.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LogOff, nil
	case "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	case "trace":
		return LogTrace, nil
	default:
		return DefaultLogLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// MarshalJSON encodes the level by name.
func (l LogLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(l.String()))
}

// UnmarshalJSON decodes a level name.
func (l *LogLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
