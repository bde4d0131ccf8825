package middleware

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentdash/types"
)

type funcLayer struct {
	Base
	name string
	pre  func(string, Context) (string, error)
	post func(string, Context) (Action, error)

	toolEvents []string
}

func (f *funcLayer) Name() string { return f.name }

func (f *funcLayer) PreSend(m string, c Context) (string, error) {
	if f.pre == nil {
		return m, nil
	}
	return f.pre(m, c)
}

func (f *funcLayer) PostResponse(r string, c Context) (Action, error) {
	if f.post == nil {
		return PassThrough(), nil
	}
	return f.post(r, c)
}

func (f *funcLayer) OnToolStart(tool string, _ Context) {
	f.toolEvents = append(f.toolEvents, "start:"+tool)
}

func (f *funcLayer) OnToolComplete(tool string, ok bool, _ Context) {
	if ok {
		f.toolEvents = append(f.toolEvents, "done:"+tool)
	} else {
		f.toolEvents = append(f.toolEvents, "fail:"+tool)
	}
}

func testContext() Context {
	return NewContext(types.NewAgentID(), types.TaskManager())
}

func suffix(name, s string) *funcLayer {
	return &funcLayer{
		name: name,
		pre:  func(m string, _ Context) (string, error) { return m + s, nil },
		post: func(r string, _ Context) (Action, error) { return Modify(r + s), nil },
	}
}

func TestStack_PreSendOrder(t *testing.T) {
	s := NewStack([]Layer{suffix("a", "-a"), suffix("b", "-b")})
	out, err := s.PreSend("msg", testContext())
	require.NoError(t, err)
	assert.Equal(t, "msg-a-b", out)
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestStack_PostResponseReverseOrder(t *testing.T) {
	s := NewStack([]Layer{suffix("a", "-a"), suffix("b", "-b")})
	res := s.PostResponse("resp", testContext())
	assert.Equal(t, "resp-b-a", res.FinalResponse)
	assert.True(t, res.Modified)
	assert.False(t, res.Suppress)
}

func TestStack_AbortShortCircuits(t *testing.T) {
	reached := false
	s := NewStack([]Layer{
		&funcLayer{name: "gate", pre: func(string, Context) (string, error) {
			return "", Abort("blocked")
		}},
		&funcLayer{name: "after", pre: func(m string, _ Context) (string, error) {
			reached = true
			return m, nil
		}},
	})

	_, err := s.PreSend("msg", testContext())
	var le *LayerError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, Aborted, le.Kind)
	assert.Equal(t, "Layer chain aborted: blocked", err.Error())
	assert.False(t, reached)
}

func TestStack_ErrorsAreNonFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewStack([]Layer{
		suffix("a", "-a"),
		&funcLayer{name: "broken", pre: func(string, Context) (string, error) {
			return "garbage", errors.New("boom")
		}},
		&funcLayer{name: "skip", pre: func(string, Context) (string, error) {
			return "", Skip("not applicable")
		}},
		suffix("c", "-c"),
	}, WithLogger(zap.New(core)))

	out, err := s.PreSend("msg", testContext())
	require.NoError(t, err)
	assert.Equal(t, "msg-a-c", out)
	assert.Equal(t, 1, logs.FilterMessage("pre-send layer failed").Len())
}

func TestStack_PanicRecovered(t *testing.T) {
	s := NewStack([]Layer{
		&funcLayer{
			name: "panicky",
			pre:  func(string, Context) (string, error) { panic("pre") },
			post: func(string, Context) (Action, error) { panic("post") },
		},
		suffix("b", "-b"),
	})

	out, err := s.PreSend("msg", testContext())
	require.NoError(t, err)
	assert.Equal(t, "msg-b", out)

	res := s.PostResponse("resp", testContext())
	assert.Equal(t, "resp-b", res.FinalResponse)
}

func TestStack_SuppressAndInjections(t *testing.T) {
	s := NewStack([]Layer{
		&funcLayer{name: "first", post: func(string, Context) (Action, error) {
			return InjectFollowUp("second injection"), nil
		}},
		&funcLayer{name: "last", post: func(string, Context) (Action, error) {
			return SuppressAndInject("first injection"), nil
		}},
	})

	res := s.PostResponse("raw model text", testContext())
	assert.True(t, res.Suppress)
	assert.Equal(t, []string{"first injection", "second injection"}, res.Injections)
	first, ok := res.FirstInjection()
	require.True(t, ok)
	assert.Equal(t, "first injection", first)
}

func TestStack_Disabled(t *testing.T) {
	s := NewStack([]Layer{suffix("a", "-a")})
	s.SetEnabled(false)
	assert.False(t, s.Enabled())

	out, err := s.PreSend("msg", testContext())
	require.NoError(t, err)
	assert.Equal(t, "msg", out)
	assert.Equal(t, "resp", s.PostResponse("resp", testContext()).FinalResponse)
}

func TestStack_AddClear(t *testing.T) {
	s := NewStack(nil)
	assert.True(t, s.IsEmpty())
	s.Add(suffix("a", "")).Add(suffix("b", ""))
	assert.Equal(t, 2, s.Len())
	s.Clear()
	assert.True(t, s.IsEmpty())
}

func TestStack_ToolNotifications(t *testing.T) {
	l := &funcLayer{name: "observer"}
	s := NewStack([]Layer{l, &funcLayer{name: "other"}})
	ctx := testContext()

	s.NotifyToolStart("think", ctx)
	s.NotifyToolComplete("think", true, ctx)
	s.NotifyToolComplete("execute_javascript", false, ctx)
	assert.Equal(t, []string{"start:think", "done:think", "fail:execute_javascript"}, l.toolEvents)
}

func TestLayerErrorMessages(t *testing.T) {
	assert.Equal(t, "Layer processing failed: x", Failed("x").Error())
	assert.Equal(t, "Layer skipped: y", Skip("y").Error())
	assert.Equal(t, "Layer chain aborted: z", Abort("z").Error())
}

func TestActionHelpers(t *testing.T) {
	assert.False(t, PassThrough().ModifiesResponse())
	assert.False(t, PassThrough().TriggersInjection())

	m, ok := Modify("new").ModifiedResponse()
	assert.True(t, ok)
	assert.Equal(t, "new", m)

	msg, ok := InjectFollowUp("more").InjectionMessage()
	assert.True(t, ok)
	assert.Equal(t, "more", msg)
	assert.False(t, InjectFollowUp("more").ModifiesResponse())

	sa := SuppressAndInject("x")
	assert.True(t, sa.ModifiesResponse())
	assert.True(t, sa.TriggersInjection())
}

func TestContext(t *testing.T) {
	id := types.NewAgentID()
	ctx := NewContextBuilder().
		AgentID(id).
		AgentType(types.TaskWorker(types.NewAgentID())).
		TokenCount(5000).
		TurnCount(12).
		MessageCount(24).
		LastTool("execute_javascript", false).
		Build()

	assert.Equal(t, id, ctx.AgentID)
	assert.True(t, ctx.IsLongConversation(4000))
	assert.False(t, ctx.IsLongConversation(5000))
	assert.True(t, ctx.ManyTurns(10))
	assert.Equal(t, "execute_javascript", ctx.LastTool)
	assert.False(t, ctx.LastToolSuccess)

	_, ok := ctx.Elapsed()
	assert.False(t, ok)

	ctx.SetMetadata("k", "v")
	copied := ctx.WithTurnCount(13)
	v, ok := copied.Metadata("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	assert.Equal(t, 3, EstimateTokens(strings.Repeat("a", 12)))
}
