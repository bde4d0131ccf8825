package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellationToken_Hierarchy(t *testing.T) {
	root := NewCancellationToken()
	child := root.Child()
	grandchild := child.Child()
	sibling := root.Child()

	child.Cancel()
	assert.False(t, root.IsCancelled())
	assert.True(t, child.IsCancelled())
	assert.True(t, grandchild.IsCancelled())
	assert.False(t, sibling.IsCancelled())

	root.Cancel()
	root.Cancel()
	assert.True(t, sibling.IsCancelled())
	assert.ErrorIs(t, sibling.Check(), ErrCancelled)
}

func TestCancellationToken_CheckNil(t *testing.T) {
	var tok *CancellationToken
	assert.NoError(t, tok.Check())
	assert.NoError(t, NewCancellationToken().Check())
}

func TestCancellationToken_Bind(t *testing.T) {
	tok := NewCancellationToken()
	ctx, cancel := tok.Bind(context.Background())
	defer cancel()

	tok.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context not cancelled")
	}

	other := NewCancellationToken()
	ctx2, cancel2 := other.Bind(context.Background())
	cancel2()
	require.Error(t, ctx2.Err())
	assert.False(t, other.IsCancelled())
}
