// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// Collector
// =============================================================================

// Collector records agent, sandbox and transport metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	// Agent
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec
	tokensUsed       *prometheus.CounterVec
	activeAgents     prometheus.Gauge

	// Sandbox
	sandboxExecutions *prometheus.CounterVec
	sandboxDuration   *prometheus.HistogramVec

	// Middleware / injection / tools
	middlewareEvents *prometheus.CounterVec
	injectionsTotal  *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Snapshot cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every metric under namespace on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Total number of completed agent turns",
		},
		[]string{"agent_type", "result"},
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_turn_duration_seconds",
			Help:      "Agent turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"agent_type"},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of agent state transitions",
		},
		[]string{"from", "to"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_used_total",
			Help:      "Total number of model tokens used",
		},
		[]string{"agent_type", "direction"},
	)

	c.activeAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_active",
			Help:      "Number of registered agents",
		},
	)

	c.sandboxExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_executions_total",
			Help:      "Total number of sandbox executions by outcome",
		},
		[]string{"outcome"},
	)

	c.sandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	c.middlewareEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "middleware_events_total",
			Help:      "Total number of middleware outcomes by layer",
		},
		[]string{"layer", "event"},
	)

	c.injectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injections_total",
			Help:      "Total number of message injections by kind",
		},
		[]string{"kind", "event"},
	)

	c.toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	c.toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// Agent
// =============================================================================

// RecordTurn records one terminal turn result ("success", "error",
// "disconnected", "cancelled").
func (c *Collector) RecordTurn(agentType, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(agentType, result).Inc()
	c.turnDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordStateTransition records an agent state change.
func (c *Collector) RecordStateTransition(from, to string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordTokens records model token usage.
func (c *Collector) RecordTokens(agentType string, input, output int) {
	if c == nil {
		return
	}
	c.tokensUsed.WithLabelValues(agentType, "input").Add(float64(input))
	c.tokensUsed.WithLabelValues(agentType, "output").Add(float64(output))
}

// SetActiveAgents sets the number of registered agents.
func (c *Collector) SetActiveAgents(n int) {
	if c == nil {
		return
	}
	c.activeAgents.Set(float64(n))
}

// =============================================================================
// Sandbox
// =============================================================================

// RecordSandboxExecution records one sandbox invocation.
func (c *Collector) RecordSandboxExecution(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.sandboxExecutions.WithLabelValues(outcome).Inc()
	c.sandboxDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// =============================================================================
// Middleware, injections, tools
// =============================================================================

// RecordMiddlewareEvent records a layer outcome ("abort", "error", "modify",
// "suppress", "inject").
func (c *Collector) RecordMiddlewareEvent(layer, event string) {
	if c == nil {
		return
	}
	c.middlewareEvents.WithLabelValues(layer, event).Inc()
}

// RecordInjection records an injection event ("queued", "delivered").
func (c *Collector) RecordInjection(kind, event string) {
	if c == nil {
		return
	}
	c.injectionsTotal.WithLabelValues(kind, event).Inc()
}

// RecordToolCall records one tool invocation.
func (c *Collector) RecordToolCall(tool string, success bool, duration time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// HTTP
// =============================================================================

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return strconv.Itoa(status)
	}
}

// =============================================================================
// Cache
// =============================================================================

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
