package transcript

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/types"
)

// ErrRecorderClosed is returned by Close when called twice.
var ErrRecorderClosed = errors.New("transcript recorder closed")

// Sink receives transcript writes. *Store implements it.
type Sink interface {
	Append(ctx context.Context, id types.AgentID, agentType types.AgentType, msg types.Message) error
	Clear(ctx context.Context, id types.AgentID) (int64, error)
}

type opKind int

const (
	opAppend opKind = iota
	opClear
)

type op struct {
	kind      opKind
	id        types.AgentID
	agentType types.AgentType
	msg       types.Message
}

// Recorder writes to a Sink from a background goroutine. Record and Clear
// never block: when the queue is full the write is dropped and logged.
type Recorder struct {
	sink    Sink
	queue   chan op
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// RecorderStats counts recorder outcomes.
type RecorderStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Pending int   `json:"pending"`
}

// NewRecorder starts a recorder with the given queue size.
func NewRecorder(sink Sink, queueSize int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:    sink,
		queue:   make(chan op, queueSize),
		logger:  logger.With(zap.String("component", "transcript_recorder")),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record enqueues msg for the agent.
func (r *Recorder) Record(id types.AgentID, agentType types.AgentType, msg types.Message) {
	r.enqueue(op{kind: opAppend, id: id, agentType: agentType, msg: msg})
}

// Clear enqueues removal of the agent's transcript. It is ordered after
// every Record queued before it.
func (r *Recorder) Clear(id types.AgentID) {
	r.enqueue(op{kind: opClear, id: id})
}

func (r *Recorder) enqueue(o op) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- o:
	default:
		r.dropped.Add(1)
		r.logger.Warn("transcript queue full, dropping write",
			zap.String("agent_id", o.id.String()),
			zap.Int("queue_size", cap(r.queue)))
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for o := range r.queue {
		r.apply(o)
	}
}

func (r *Recorder) apply(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch o.kind {
	case opAppend:
		err = r.sink.Append(ctx, o.id, o.agentType, o.msg)
	case opClear:
		_, err = r.sink.Clear(ctx, o.id)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("transcript write failed", zap.String("agent_id", o.id.String()), zap.Error(err))
		return
	}
	r.written.Add(1)
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Pending: len(r.queue),
	}
}

// Close stops accepting writes and waits until the queue drains or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
