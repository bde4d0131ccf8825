// Package agentlog writes one append-only JSON-lines log file per agent.
package agentlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentdash/types"
)

// Preview lengths used when logging message content.
const (
	SentPreviewLen      = 100
	ResponsePreviewLen  = 200
	InjectionPreviewLen = 50
)

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// FileName returns the log file name of an agent.
func FileName(id types.AgentID, agentType types.AgentType) string {
	if parent, ok := agentType.Parent(); ok {
		return fmt.Sprintf("agent-%s-%s-%s.log", agentType.Kind, parent.Short(), id.Short())
	}
	return fmt.Sprintf("agent-%s-%s.log", agentType.Kind, id.Short())
}

// Logger is the per-agent sink. Every entry carries the agent id, the
// agent type and an event name.
type Logger struct {
	zl   *zap.Logger
	path string
	file *os.File
}

// New opens (or appends to) the log file of an agent under dir.
func New(dir string, id types.AgentID, agentType types.AgentType) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create agent log dir: %w", err)
	}

	path := filepath.Join(dir, FileName(id, agentType))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open agent log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)

	l := &Logger{
		zl: zap.New(core).With(
			zap.String("agent_id", id.String()),
			zap.String("agent_type", agentType.String()),
		),
		path: path,
		file: f,
	}
	l.zl.Info("agent session started", zap.String("event", "session_start"))
	return l, nil
}

// NewNop returns a sink that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// NewWithCore builds a sink on an existing core. Tests use it with an
// observer core.
func NewWithCore(core zapcore.Core, id types.AgentID, agentType types.AgentType) *Logger {
	return &Logger{zl: zap.New(core).With(
		zap.String("agent_id", id.String()),
		zap.String("agent_type", agentType.String()),
	)}
}

// Path returns the log file path, empty for nop sinks.
func (l *Logger) Path() string { return l.path }

// Log appends one entry.
func (l *Logger) Log(level zapcore.Level, event, message string, fields ...zap.Field) {
	if ce := l.zl.Check(level, message); ce != nil {
		ce.Write(append(fields, zap.String("event", event))...)
	}
}

func (l *Logger) UserMessage(msg string) {
	l.Log(zapcore.InfoLevel, "user_message", Truncate(msg, SentPreviewLen))
}

func (l *Logger) AssistantResponse(msg string) {
	l.Log(zapcore.InfoLevel, "assistant_response", Truncate(msg, ResponsePreviewLen))
}

func (l *Logger) SystemMessage(msg string) {
	l.Log(zapcore.InfoLevel, "system_message", msg)
}

func (l *Logger) Error(msg string) {
	l.Log(zapcore.ErrorLevel, "error", msg)
}

func (l *Logger) StateTransition(from, to string) {
	l.Log(zapcore.DebugLevel, "state_transition", from+" -> "+to,
		zap.String("from", from), zap.String("to", to))
}

func (l *Logger) ToolStart(tool string, input string) {
	l.Log(zapcore.InfoLevel, "tool_start", tool,
		zap.String("tool", tool), zap.String("input", Truncate(input, ResponsePreviewLen)))
}

func (l *Logger) ToolComplete(tool string, output string, elapsed time.Duration) {
	l.Log(zapcore.InfoLevel, "tool_complete", tool,
		zap.String("tool", tool),
		zap.Duration("duration", elapsed),
		zap.String("output", Truncate(output, ResponsePreviewLen)))
}

func (l *Logger) ToolFailed(tool string, errMsg string, elapsed time.Duration) {
	l.Log(zapcore.WarnLevel, "tool_failed", tool,
		zap.String("tool", tool),
		zap.Duration("duration", elapsed),
		zap.String("error", errMsg))
}

func (l *Logger) TokenUsage(input, output int) {
	l.Log(zapcore.DebugLevel, "token_usage", "model usage",
		zap.Int("input_tokens", input), zap.Int("output_tokens", output))
}

func (l *Logger) Injection(kind, msg string) {
	l.Log(zapcore.InfoLevel, "injection", Truncate(msg, InjectionPreviewLen), zap.String("kind", kind))
}

func (l *Logger) Terminated(status types.AgentStatus) {
	l.Log(zapcore.InfoLevel, "agent_terminated", status.String())
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l.file == nil {
		return nil
	}
	_ = l.zl.Sync()
	return l.file.Sync()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	_ = l.zl.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

// CleanupOldLogs keeps the newest keep agent log files in dir and deletes
// the rest. It returns the number of deleted files.
func CleanupOldLogs(dir string, keep int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "agent-") || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	if keep < 0 {
		keep = 0
	}
	deleted := 0
	for i := keep; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			logger.Warn("failed to delete old agent log", zap.String("path", files[i].path), zap.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logger.Info("cleaned up old agent logs", zap.Int("deleted", deleted), zap.Int("kept", keep))
	}
	return deleted, nil
}
