package middleware

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/metrics"
)

// PostResponseResult is the combined outcome of all post-response layers.
type PostResponseResult struct {
	FinalResponse string
	Modified      bool
	Suppress      bool
	Injections    []string
}

// FirstInjection returns the injection that will be acted upon, if any.
func (r PostResponseResult) FirstInjection() (string, bool) {
	if len(r.Injections) == 0 {
		return "", false
	}
	return r.Injections[0], true
}

// Stack is an ordered, mutable list of layers.
type Stack struct {
	mu      sync.RWMutex
	layers  []Layer
	enabled bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records per-layer outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Stack) { s.metrics = c }
}

// NewStack returns an enabled stack holding layers.
func NewStack(layers []Layer, opts ...Option) *Stack {
	s := &Stack{
		layers:  append([]Layer(nil), layers...),
		enabled: true,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("component", "middleware"))
	return s
}

// Add appends a layer.
func (s *Stack) Add(l Layer) *Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, l)
	return s
}

// Clear removes all layers.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.layers = nil
	s.mu.Unlock()
}

func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *Stack) IsEmpty() bool { return s.Len() == 0 }

func (s *Stack) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Stack) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Names lists layer names in registration order.
func (s *Stack) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.Name()
	}
	return names
}

func (s *Stack) snapshot() ([]Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Layer(nil), s.layers...), s.enabled
}

// PreSend runs layers in order. An Aborted LayerError stops the chain and is
// returned; any other failure is logged and the last good message is kept.
func (s *Stack) PreSend(message string, ctx Context) (string, error) {
	layers, enabled := s.snapshot()
	if !enabled {
		return message, nil
	}

	current := message
	for _, l := range layers {
		out, err := s.callPreSend(l, current, ctx)
		if err == nil {
			current = out
			s.record(l, "ok")
			continue
		}

		var le *LayerError
		if !errors.As(err, &le) {
			le = Failed("%v", err)
		}
		switch le.Kind {
		case Aborted:
			s.record(l, "abort")
			s.logger.Info("pre-send aborted",
				zap.String("layer", l.Name()),
				zap.String("reason", le.Reason))
			return "", le
		case Skipped:
			s.record(l, "skipped")
		default:
			s.record(l, "error")
			s.logger.Warn("pre-send layer failed",
				zap.String("layer", l.Name()),
				zap.Error(le))
		}
	}
	return current, nil
}

// PostResponse runs layers in reverse order. Modifications accumulate and
// every injection request is collected in order.
func (s *Stack) PostResponse(response string, ctx Context) PostResponseResult {
	res := PostResponseResult{FinalResponse: response}
	layers, enabled := s.snapshot()
	if !enabled {
		return res
	}

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		action, err := s.callPostResponse(l, res.FinalResponse, ctx)
		if err != nil {
			var le *LayerError
			if errors.As(err, &le) && le.Kind == Skipped {
				s.record(l, "skipped")
				continue
			}
			s.record(l, "error")
			s.logger.Warn("post-response layer failed",
				zap.String("layer", l.Name()),
				zap.Error(err))
			continue
		}

		switch action.Kind {
		case ActionModify:
			res.FinalResponse = action.Text
			res.Modified = true
			s.record(l, "modify")
		case ActionInjectFollowUp:
			res.Injections = append(res.Injections, action.Text)
			s.record(l, "inject")
		case ActionSuppressAndInject:
			res.Suppress = true
			res.Injections = append(res.Injections, action.Text)
			s.record(l, "suppress")
		default:
			s.record(l, "ok")
		}
	}
	return res
}

// NotifyToolStart forwards to every ToolObserver layer.
func (s *Stack) NotifyToolStart(tool string, ctx Context) {
	layers, enabled := s.snapshot()
	if !enabled {
		return
	}
	for _, l := range layers {
		if o, ok := l.(ToolObserver); ok {
			s.guard(l, "tool_start", func() { o.OnToolStart(tool, ctx) })
		}
	}
}

// NotifyToolComplete forwards to every ToolObserver layer.
func (s *Stack) NotifyToolComplete(tool string, success bool, ctx Context) {
	layers, enabled := s.snapshot()
	if !enabled {
		return
	}
	for _, l := range layers {
		if o, ok := l.(ToolObserver); ok {
			s.guard(l, "tool_complete", func() { o.OnToolComplete(tool, success, ctx) })
		}
	}
}

func (s *Stack) callPreSend(l Layer, msg string, ctx Context) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Failed("panic in %s: %v", l.Name(), r)
		}
	}()
	return l.PreSend(msg, ctx)
}

func (s *Stack) callPostResponse(l Layer, resp string, ctx Context) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Failed("panic in %s: %v", l.Name(), r)
		}
	}()
	return l.PostResponse(resp, ctx)
}

func (s *Stack) guard(l Layer, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.record(l, "error")
			s.logger.Warn("tool hook panicked",
				zap.String("layer", l.Name()),
				zap.String("hook", hook),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

func (s *Stack) record(l Layer, event string) {
	s.metrics.RecordMiddlewareEvent(l.Name(), event)
}
