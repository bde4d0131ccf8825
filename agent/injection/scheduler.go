package injection

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/metrics"
)

// Scheduler holds pending injections. It is safe for concurrent use; tool
// observers queue from the worker goroutine while the owner polls.
type Scheduler struct {
	mu      sync.Mutex
	pending []Pending
	enabled bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records queue and delivery counts.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

// NewScheduler returns an enabled, empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{enabled: true, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("component", "injection_scheduler"))
	return s
}

// SetEnabled toggles trigger evaluation. Disabled schedulers keep their
// queue but never release anything.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Queue appends p.
func (s *Scheduler) Queue(p Pending) {
	s.mu.Lock()
	s.pending = append(s.pending, p)
	n := len(s.pending)
	s.mu.Unlock()

	s.metrics.RecordInjection(p.Injection.Label(), "queued")
	s.logger.Debug("injection queued",
		zap.String("kind", p.Injection.Label()),
		zap.Stringer("trigger", p.Trigger),
		zap.Uint8("priority", p.Priority),
		zap.Int("pending", n))
}

// QueueInjection queues inj with trigger and priority 0.
func (s *Scheduler) QueueInjection(inj Injection, trigger Trigger) {
	s.Queue(NewPending(inj, trigger))
}

// QueueImmediate queues inj to be released on the next check.
func (s *Scheduler) QueueImmediate(inj Injection) {
	s.Queue(NewPending(inj, Immediate()))
}

func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) HasPending() bool {
	return s.PendingCount() > 0
}

// Clear drops every pending injection.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = nil
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("injections cleared", zap.Int("count", n))
	}
}

// CheckTriggers removes and returns the highest-priority injection whose
// trigger matches ctx. Ties go to the earliest queued.
func (s *Scheduler) CheckTriggers(ctx Context) (string, bool) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return "", false
	}
	best := -1
	for i, p := range s.pending {
		if !p.Trigger.Matches(ctx) {
			continue
		}
		if best < 0 || p.Priority > s.pending[best].Priority {
			best = i
		}
	}
	if best < 0 {
		s.mu.Unlock()
		return "", false
	}
	p := s.pending[best]
	s.pending = append(s.pending[:best], s.pending[best+1:]...)
	s.mu.Unlock()

	s.delivered(p)
	return p.Injection.Format(), true
}

// CheckAllTriggers removes every matching injection and returns them by
// descending priority, FIFO within a priority.
func (s *Scheduler) CheckAllTriggers(ctx Context) []string {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	var ready, keep []Pending
	for _, p := range s.pending {
		if p.Trigger.Matches(ctx) {
			ready = append(ready, p)
		} else {
			keep = append(keep, p)
		}
	}
	s.pending = keep
	s.mu.Unlock()

	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority > ready[j].Priority })
	out := make([]string, 0, len(ready))
	for _, p := range ready {
		s.delivered(p)
		out = append(out, p.Injection.Format())
	}
	return out
}

func (s *Scheduler) delivered(p Pending) {
	s.metrics.RecordInjection(p.Injection.Label(), "delivered")
	s.logger.Debug("injection triggered",
		zap.String("kind", p.Injection.Label()),
		zap.Stringer("trigger", p.Trigger))
}
