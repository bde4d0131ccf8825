package middleware

import (
	"strings"

	"go.uber.org/zap"
)

// AnalysisPrompt is injected when a long data dump arrives without analysis.
const AnalysisPrompt = "Please provide a brief summary and analysis of these results, highlighting key findings and any notable patterns."

var (
	defaultDataPatterns = []string{
		"resources found",
		"results:",
		"items returned",
		"data retrieved",
		"records:",
	}
	defaultAnalysisPatterns = []string{
		"Summary:",
		"Analysis:",
		"In summary",
		"Key findings:",
		"Overview:",
	}
)

const defaultMinAnalysisLength = 500

// AutoAnalysis asks the agent to analyze long raw-data responses that carry
// no analysis of their own.
type AutoAnalysis struct {
	Base
	logger           *zap.Logger
	dataPatterns     []string
	analysisPatterns []string
	minLength        int
	prompt           string
}

// NewAutoAnalysis returns the layer with the built-in patterns.
func NewAutoAnalysis(logger *zap.Logger) *AutoAnalysis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoAnalysis{
		logger:           logger.With(zap.String("layer", "auto_analysis")),
		dataPatterns:     defaultDataPatterns,
		analysisPatterns: defaultAnalysisPatterns,
		minLength:        defaultMinAnalysisLength,
		prompt:           AnalysisPrompt,
	}
}

// WithMinLength sets the shortest response considered.
func (a *AutoAnalysis) WithMinLength(n int) *AutoAnalysis {
	a.minLength = n
	return a
}

// WithPrompt replaces the follow-up prompt.
func (a *AutoAnalysis) WithPrompt(p string) *AutoAnalysis {
	a.prompt = p
	return a
}

// AddDataPattern registers another raw-data marker.
func (a *AutoAnalysis) AddDataPattern(p string) *AutoAnalysis {
	a.dataPatterns = append(append([]string(nil), a.dataPatterns...), p)
	return a
}

func (a *AutoAnalysis) Name() string { return "auto_analysis" }

func (a *AutoAnalysis) PostResponse(response string, ctx Context) (Action, error) {
	if len(response) < a.minLength {
		return PassThrough(), nil
	}
	lower := strings.ToLower(response)
	if !containsAny(lower, a.dataPatterns) || containsAny(lower, a.analysisPatterns) {
		return PassThrough(), nil
	}
	a.logger.Debug("requesting analysis of data response",
		zap.String("agent_id", ctx.AgentID.Short()),
		zap.Int("length", len(response)))
	return InjectFollowUp(a.prompt), nil
}

func containsAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Recommended returns the default layer set: logging then token tracking.
func Recommended(logger *zap.Logger) []Layer {
	return []Layer{
		NewLogging(logger),
		NewTokenTracking(DefaultTokenTrackingConfig(), logger),
	}
}
