// Package channel provides the single-producer/single-consumer mailbox used to
// carry turn results from an agent's worker goroutine to its caller.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when sending to a closed mailbox.
var ErrClosed = errors.New("mailbox is closed")

// RecvState reports the outcome of a non-blocking receive.
type RecvState int

const (
	// Empty means nothing is queued yet and the producer is still attached.
	Empty RecvState = iota
	// Received means a value was dequeued.
	Received
	// Disconnected means the producer closed the mailbox and it is drained.
	Disconnected
)

func (s RecvState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Received:
		return "received"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Mailbox is an unbounded FIFO queue. Send never blocks, so a producer can
// emit any number of status updates without waiting for the consumer.
// Values queued before Close remain receivable after it.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// notify holds at most one wake-up token for a blocked Receive.
	notify chan struct{}

	sends    atomic.Int64
	receives atomic.Int64
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		items:  make([]T, 0, 4),
		notify: make(chan struct{}, 1),
	}
}

// Send appends v. It returns ErrClosed after Close.
func (m *Mailbox[T]) Send(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	m.sends.Add(1)
	m.wake()
	return nil
}

// TryReceive dequeues the oldest value without blocking.
func (m *Mailbox[T]) TryReceive() (T, RecvState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		if m.closed {
			return zero, Disconnected
		}
		return zero, Empty
	}

	v := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	m.receives.Add(1)
	return v, Received
}

// Receive blocks until a value is available, the mailbox is closed and
// drained, or ctx is done.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	for {
		v, state := m.TryReceive()
		switch state {
		case Received:
			return v, nil
		case Disconnected:
			return v, ErrClosed
		}

		select {
		case <-m.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close detaches the producer. Calling Close more than once is safe.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// Drain discards every queued value and returns how many were dropped.
func (m *Mailbox[T]) Drain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = m.items[:0]
	return n
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// IsClosed reports whether Close has been called.
func (m *Mailbox[T]) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox[T]) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Stats returns mailbox statistics.
func (m *Mailbox[T]) Stats() MailboxStats {
	return MailboxStats{
		Length:   m.Len(),
		Sends:    m.sends.Load(),
		Receives: m.receives.Load(),
		Closed:   m.IsClosed(),
	}
}

// MailboxStats contains mailbox statistics.
type MailboxStats struct {
	Length   int   `json:"length"`
	Sends    int64 `json:"sends"`
	Receives int64 `json:"receives"`
	Closed   bool  `json:"closed"`
}
