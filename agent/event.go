package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/types"
)

// EventType names a UI event.
type EventType string

const (
	EventStateChange    EventType = "state_change"
	EventToolStarted    EventType = "tool_started"
	EventToolCompleted  EventType = "tool_completed"
	EventToolFailed     EventType = "tool_failed"
	EventTokenUsage     EventType = "token_usage"
	EventSwitchToAgent  EventType = "switch_to_agent"
	EventSwitchToParent EventType = "switch_to_parent"
	EventAgentCompleted EventType = "agent_completed"
)

// Event is one UI notification. Only the fields relevant to Type are set.
type Event struct {
	Type         EventType     `json:"type"`
	AgentID      types.AgentID `json:"agent_id"`
	ParentID     types.AgentID `json:"parent_id,omitempty"`
	Tool         string        `json:"tool,omitempty"`
	From         State         `json:"from,omitempty"`
	To           State         `json:"to,omitempty"`
	Message      string        `json:"message,omitempty"`
	Success      bool          `json:"success,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Elapsed      time.Duration `json:"elapsed,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// EventHandler handles one event.
type EventHandler func(Event)

// Publisher is the fire-and-forget side of the bus.
type Publisher interface {
	Publish(e Event)
}

var subscriptionCounter atomic.Int64

// EventBus fans events out to subscribers on its own goroutine. Publish
// never blocks; events are dropped when the buffer is full.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]EventHandler
	all      map[string]EventHandler

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64
	logger   *zap.Logger
}

// NewEventBus starts a bus with the given buffer.
func NewEventBus(buffer int, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	b := &EventBus{
		handlers: make(map[EventType]map[string]EventHandler),
		all:      make(map[string]EventHandler),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "event_bus")),
	}
	go b.processEvents()
	return b
}

// Publish queues e. A zero Timestamp is set to now.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- e:
	default:
		b.dropped.Add(1)
	}
}

// Subscribe registers handler for one event type.
func (b *EventBus) Subscribe(t EventType, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[string]EventHandler)
	}
	id := fmt.Sprintf("%s-%d", t, subscriptionCounter.Add(1))
	b.handlers[t][id] = handler
	return id
}

// SubscribeAll registers handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("all-%d", subscriptionCounter.Add(1))
	b.all[id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.all[id]; ok {
		delete(b.all, id)
		return
	}
	for t, hs := range b.handlers {
		if _, ok := hs[id]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(b.handlers, t)
			}
			return
		}
	}
}

// Dropped returns the number of events lost to a full buffer.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

func (b *EventBus) processEvents() {
	for {
		select {
		case e := <-b.events:
			b.mu.RLock()
			handlers := make([]EventHandler, 0, len(b.handlers[e.Type])+len(b.all))
			for _, h := range b.handlers[e.Type] {
				handlers = append(handlers, h)
			}
			for _, h := range b.all {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, h := range handlers {
				b.dispatch(h, e)
			}
		case <-b.done:
			return
		}
	}
}

func (b *EventBus) dispatch(h EventHandler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", string(e.Type)),
				zap.Any("recover", r))
		}
	}()
	h(e)
}

// Stop ends delivery. Later publishes are discarded.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
