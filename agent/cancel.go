package agent

import (
	"context"
)

// CancellationToken is a cooperative stop signal. Cancelling is idempotent
// and propagates to every child token, never to the parent.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancellationToken returns a fresh root token.
func NewCancellationToken() *CancellationToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Child returns a token that is cancelled when t is.
func (t *CancellationToken) Child() *CancellationToken {
	ctx, cancel := context.WithCancel(t.ctx)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel signals the token and its descendants.
func (t *CancellationToken) Cancel() { t.cancel() }

// IsCancelled reports whether the token or an ancestor was cancelled.
func (t *CancellationToken) IsCancelled() bool { return t.ctx.Err() != nil }

// Done is closed on cancellation.
func (t *CancellationToken) Done() <-chan struct{} { return t.ctx.Done() }

// Check returns ErrCancelled once the token is cancelled. Runtimes call it
// at their check points.
func (t *CancellationToken) Check() error {
	if t == nil || !t.IsCancelled() {
		return nil
	}
	return ErrCancelled
}

// Bind derives a context from parent that is also cancelled with t.
func (t *CancellationToken) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(t.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
