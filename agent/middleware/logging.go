package middleware

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/agentlog"
)

// DetailLevel controls how much of each message the Logging layer records.
type DetailLevel int

const (
	// DetailBasic logs lengths only.
	DetailBasic DetailLevel = iota
	// DetailDetailed logs lengths and a truncated preview.
	DetailDetailed
	// DetailFull logs the whole content.
	DetailFull
)

func (d DetailLevel) String() string {
	switch d {
	case DetailBasic:
		return "basic"
	case DetailFull:
		return "full"
	default:
		return "detailed"
	}
}

const defaultPreviewLength = 100

// Logging records every message, response and tool call at debug level.
type Logging struct {
	Base
	logger        *zap.Logger
	detail        DetailLevel
	previewLength int
}

// NewLogging returns a Detailed logging layer.
func NewLogging(logger *zap.Logger) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{
		logger:        logger.With(zap.String("layer", "logging")),
		detail:        DetailDetailed,
		previewLength: defaultPreviewLength,
	}
}

// WithDetail sets the detail level.
func (l *Logging) WithDetail(d DetailLevel) *Logging {
	l.detail = d
	return l
}

// WithPreviewLength sets the preview length used at DetailDetailed.
func (l *Logging) WithPreviewLength(n int) *Logging {
	if n > 0 {
		l.previewLength = n
	}
	return l
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) fields(text string, ctx Context) []zap.Field {
	fields := []zap.Field{
		zap.String("agent_id", ctx.AgentID.Short()),
		zap.Int("turn", ctx.TurnCount),
		zap.Int("length", len(text)),
	}
	switch l.detail {
	case DetailDetailed:
		fields = append(fields, zap.String("preview", agentlog.Truncate(text, l.previewLength)))
	case DetailFull:
		fields = append(fields, zap.String("content", text))
	}
	return fields
}

func (l *Logging) PreSend(message string, ctx Context) (string, error) {
	l.logger.Debug("message sent", l.fields(message, ctx)...)
	return message, nil
}

func (l *Logging) PostResponse(response string, ctx Context) (Action, error) {
	fields := l.fields(response, ctx)
	if d, ok := ctx.Elapsed(); ok {
		fields = append(fields, zap.Duration("elapsed", d))
	}
	l.logger.Debug("response received", fields...)
	return PassThrough(), nil
}

func (l *Logging) OnToolStart(tool string, ctx Context) {
	l.logger.Debug("tool started",
		zap.String("agent_id", ctx.AgentID.Short()),
		zap.String("tool", tool))
}

func (l *Logging) OnToolComplete(tool string, success bool, ctx Context) {
	l.logger.Debug("tool completed",
		zap.String("agent_id", ctx.AgentID.Short()),
		zap.String("tool", tool),
		zap.Bool("success", success))
}
