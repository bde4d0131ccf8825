package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentdash/agent/injection"
	"github.com/BaSui01/agentdash/agent/middleware"
	"github.com/BaSui01/agentdash/types"
)

// fakeRuntime echoes the message without the preamble unless reply is set.
type fakeRuntime struct {
	mu       sync.Mutex
	messages []string
	calls    atomic.Int32
	reply    func(ctx context.Context, turn Turn) (string, error)
}

func (f *fakeRuntime) Execute(ctx context.Context, turn Turn) (string, error) {
	f.calls.Add(1)
	msg := strings.TrimPrefix(turn.Message, DataFidelityPreamble)
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(ctx, turn)
	}
	turn.Observer.Status("thinking")
	return "echo: " + msg, nil
}

func (f *fakeRuntime) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// fakeFactory hands out one shared fakeRuntime and records specs.
type fakeFactory struct {
	rt    *fakeRuntime
	err   error
	mu    sync.Mutex
	specs []RuntimeSpec
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{rt: &fakeRuntime{}}
}

func (f *fakeFactory) NewRuntime(_ context.Context, spec RuntimeSpec) (Runtime, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rt, nil
}

func (f *fakeFactory) lastSpec() RuntimeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

type stubLayer struct {
	middleware.Base
	pre  func(string) (string, error)
	post func(string) middleware.Action
}

func (stubLayer) Name() string { return "stub" }

func (s stubLayer) PreSend(m string, _ middleware.Context) (string, error) {
	if s.pre == nil {
		return m, nil
	}
	return s.pre(m)
}

func (s stubLayer) PostResponse(r string, _ middleware.Context) (middleware.Action, error) {
	if s.post == nil {
		return middleware.PassThrough(), nil
	}
	return s.post(r), nil
}

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
	Fatalf(format string, args ...any)
}

var testCreds = types.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "us-east-1"}

func newReadyInstance(t testingT, f *fakeFactory, opts ...Option) *Instance {
	t.Helper()
	inst := New(types.TaskManager(), f, opts...)
	require.NoError(t, inst.Initialize(context.Background(), testCreds))
	return inst
}

// pollUntilIdle polls until the in-flight turn is over and returns how many
// polls reported a change.
func pollUntilIdle(t testingT, inst *Instance) int {
	t.Helper()
	changes := 0
	deadline := time.Now().Add(5 * time.Second)
	for inst.IsProcessing() {
		if time.Now().After(deadline) {
			t.Fatalf("turn did not finish")
		}
		if inst.Poll() {
			changes++
		}
		time.Sleep(time.Millisecond)
	}
	return changes
}

func TestInstance_CancelBeforeInitialize(t *testing.T) {
	inst := New(types.TaskManager(), newFakeFactory())
	defer inst.Terminate()

	assert.False(t, inst.Cancel())
	assert.False(t, inst.CanCancel())
	assert.False(t, inst.IsCancelled())
	assert.Equal(t, StateUninitialized, inst.State())
}

func TestInstance_CancelIsIdempotent(t *testing.T) {
	inst := newReadyInstance(t, newFakeFactory())
	defer inst.Terminate()

	assert.True(t, inst.CanCancel())
	assert.True(t, inst.Cancel())
	assert.True(t, inst.Cancel())
	assert.True(t, inst.IsCancelled())
}

func TestInstance_InitializeFailureKeepsState(t *testing.T) {
	f := newFakeFactory()
	f.err = errors.New("no model access")
	inst := New(types.TaskManager(), f)
	defer inst.Terminate()

	err := inst.Initialize(context.Background(), testCreds)
	var ierr *InitializationError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, err.Error(), "no model access")
	assert.Equal(t, StateUninitialized, inst.State())
	assert.False(t, inst.IsInitialized())
}

func TestInstance_SendWithoutRuntime(t *testing.T) {
	inst := New(types.TaskManager(), newFakeFactory())
	defer inst.Terminate()
	assert.ErrorIs(t, inst.Send("hi"), ErrNotInitialized)
	assert.Empty(t, inst.Messages())
}

func TestInstance_OneTerminalResultPerSend(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msgs := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}`), 1, 5).Draw(rt, "messages")

		f := newFakeFactory()
		inst := newReadyInstance(rt, f)
		defer inst.Terminate()

		for _, m := range msgs {
			require.NoError(rt, inst.Send(m))
			changes := pollUntilIdle(rt, inst)
			require.Equal(rt, 1, changes)
		}

		history := inst.Messages()
		require.Len(rt, history, 2*len(msgs))
		for i, m := range msgs {
			assert.Equal(rt, types.RoleUser, history[2*i].Role)
			assert.Equal(rt, m, history[2*i].Content)
			assert.Equal(rt, types.RoleAssistant, history[2*i+1].Role)
			assert.Equal(rt, "echo: "+m, history[2*i+1].Content)
		}
		assert.Equal(rt, msgs, f.rt.received())
		assert.Equal(rt, StateReady, inst.State())
	})
}

func TestInstance_SendWhileProcessingIsRejected(t *testing.T) {
	release := make(chan struct{})
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) {
		<-release
		return "done", nil
	}
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("first"))
	assert.Equal(t, StateProcessing, inst.State())
	assert.Equal(t, "Processing...", inst.StatusMessage())
	assert.Equal(t, PhaseThinking, inst.Phase().Kind)
	assert.ErrorIs(t, inst.Send("second"), ErrAgentBusy)

	close(release)
	pollUntilIdle(t, inst)
	assert.Len(t, inst.Messages(), 2)
	assert.Equal(t, PhaseIdle, inst.Phase().Kind)
}

func TestInstance_AbortMiddlewareNeverDispatches(t *testing.T) {
	f := newFakeFactory()
	layer := stubLayer{pre: func(m string) (string, error) {
		if strings.Contains(m, "forbidden") {
			return "", middleware.Abort("blocked content")
		}
		return m, nil
	}}
	inst := newReadyInstance(t, f, WithMiddleware(layer))
	defer inst.Terminate()

	err := inst.Send("something forbidden")
	var lerr *middleware.LayerError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, middleware.Aborted, lerr.Kind)

	assert.Empty(t, inst.Messages())
	assert.Equal(t, StateReady, inst.State())
	assert.False(t, inst.Poll())
	assert.Zero(t, f.rt.calls.Load())
}

func TestInstance_PreSendRewriteReachesRuntimeOnly(t *testing.T) {
	f := newFakeFactory()
	layer := stubLayer{pre: func(m string) (string, error) { return strings.ToUpper(m), nil }}
	inst := newReadyInstance(t, f, WithMiddleware(layer))
	defer inst.Terminate()

	require.NoError(t, inst.Send("hello"))
	pollUntilIdle(t, inst)

	assert.Equal(t, []string{"HELLO"}, f.rt.received())
	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
}

func TestInstance_SuppressedResponseStaysOutOfHistory(t *testing.T) {
	f := newFakeFactory()
	layer := stubLayer{post: func(r string) middleware.Action {
		if strings.HasPrefix(r, "echo: secret") {
			return middleware.SuppressAndInject("please retry without secrets")
		}
		return middleware.PassThrough()
	}}
	inst := newReadyInstance(t, f, WithMiddleware(layer))
	defer inst.Terminate()

	require.NoError(t, inst.Send("secret"))
	pollUntilIdle(t, inst)

	for _, m := range inst.Messages() {
		assert.NotContains(t, m.Content, "echo: secret")
	}
	require.True(t, inst.HasPendingInjections())

	// The middleware follow-up goes out on the next poll.
	assert.True(t, inst.Poll())
	pollUntilIdle(t, inst)
	assert.Equal(t, []string{"secret", "please retry without secrets"}, f.rt.received())
	assert.False(t, inst.HasPendingInjections())
}

func TestInstance_ModifiedResponseIsStored(t *testing.T) {
	f := newFakeFactory()
	layer := stubLayer{post: func(r string) middleware.Action { return middleware.Modify(r + " [checked]") }}
	inst := newReadyInstance(t, f, WithMiddleware(layer))
	defer inst.Terminate()

	require.NoError(t, inst.Send("x"))
	pollUntilIdle(t, inst)
	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "echo: x [checked]", history[1].Content)
}

func TestInstance_ImmediateInjectionWaitsForTerminalResult(t *testing.T) {
	release := make(chan struct{})
	f := newFakeFactory()
	first := true
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		if first {
			first = false
			<-release
		}
		return "ok", nil
	}
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("work"))
	inst.QueueImmediateInjection(injection.SystemContext("fresh data"))

	for i := 0; i < 5; i++ {
		assert.False(t, inst.Poll())
	}
	assert.EqualValues(t, 1, f.rt.calls.Load())

	close(release)
	require.Equal(t, 1, pollUntilIdle(t, inst))
	assert.EqualValues(t, 1, f.rt.calls.Load())
	assert.Equal(t, StateReady, inst.State())

	assert.True(t, inst.Poll())
	pollUntilIdle(t, inst)
	received := f.rt.received()
	require.Len(t, received, 2)
	assert.Equal(t, "[System Context]\nfresh data", received[1])
	assert.False(t, inst.HasPendingInjections())
}

func TestInstance_ScheduledInjectionFiresWhenIdle(t *testing.T) {
	f := newFakeFactory()
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	inst.QueueInjection(injection.Correction("use UTC"), injection.Immediate())
	assert.True(t, inst.Poll())
	pollUntilIdle(t, inst)
	assert.Equal(t, []string{"[Correction]\nuse UTC"}, f.rt.received())
}

func TestInstance_ReadyInjectionsShareOneTurn(t *testing.T) {
	f := newFakeFactory()
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	inst.QueueInjection(injection.Correction("use UTC"), injection.Immediate())
	inst.Scheduler().Queue(injection.Pending{
		Injection: injection.SystemContext("quota reached"),
		Trigger:   injection.Immediate(),
		Priority:  5,
	})
	inst.QueueInjection(injection.Correction("later"), injection.AfterTurns(10))

	assert.True(t, inst.Poll())
	pollUntilIdle(t, inst)
	assert.Equal(t, []string{"[System Context]\nquota reached\n\n[Correction]\nuse UTC"}, f.rt.received())
	assert.Equal(t, 1, inst.Scheduler().PendingCount())
	assert.False(t, inst.Poll())
}

func TestInstance_InjectMessage(t *testing.T) {
	f := newFakeFactory()
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.InjectMessage("[Correction]\nrecheck totals"))
	pollUntilIdle(t, inst)
	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "echo: [Correction]\nrecheck totals", history[1].Content)
}

func TestInstance_ExecutionErrorIsVisible(t *testing.T) {
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) { return "", errors.New("throttled") }
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("go"))
	pollUntilIdle(t, inst)

	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, "Error: Agent execution failed: throttled", history[1].Content)
	assert.Equal(t, types.StatusFailed, inst.Status().Kind)
	assert.Equal(t, StateReady, inst.State())

	// A later success clears the failure.
	f.rt.reply = nil
	require.NoError(t, inst.Send("again"))
	pollUntilIdle(t, inst)
	assert.Equal(t, types.StatusRunning, inst.Status().Kind)
}

func TestInstance_EmptyResponseIsAnError(t *testing.T) {
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) { return "  ", nil }
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("go"))
	pollUntilIdle(t, inst)
	assert.Equal(t, types.Failed("Agent response was empty"), inst.Status())
}

func TestInstance_WorkerPanicIsRecoverable(t *testing.T) {
	f := newFakeFactory()
	f.rt.reply = func(context.Context, Turn) (string, error) { panic("runtime exploded") }
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("go"))
	pollUntilIdle(t, inst)

	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Contains(t, history[1].Content, "stopped unexpectedly")
	assert.Equal(t, StateReady, inst.State())
	assert.Equal(t, types.StatusFailed, inst.Status().Kind)

	// The instance keeps working.
	f.rt.reply = nil
	require.NoError(t, inst.Send("next"))
	pollUntilIdle(t, inst)
	assert.Equal(t, "echo: next", inst.Messages()[3].Content)
	assert.EqualValues(t, 1, inst.WorkerStats().Panicked)
	assert.Equal(t, types.Running(), inst.Status())
}

func TestInstance_CancellationReachesRuntime(t *testing.T) {
	started := make(chan struct{})
	f := newFakeFactory()
	f.rt.reply = func(ctx context.Context, turn Turn) (string, error) {
		close(started)
		<-turn.Token.Done()
		return "", turn.Token.Check()
	}
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("long task"))
	<-started
	assert.True(t, inst.Cancel())
	pollUntilIdle(t, inst)
	assert.Equal(t, types.StatusFailed, inst.Status().Kind)
	assert.Contains(t, inst.Status().Message, ErrCancelled.Error())

	assert.True(t, inst.ResetCancellationToken())
	assert.False(t, inst.IsCancelled())
	assert.Len(t, inst.Messages(), 2)
}

func TestInstance_ResetCancellationTokenRequiresRuntime(t *testing.T) {
	inst := New(types.TaskManager(), newFakeFactory())
	defer inst.Terminate()
	assert.False(t, inst.ResetCancellationToken())
}

func TestInstance_RepeatedResetAndClear(t *testing.T) {
	f := newFakeFactory()
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("hi"))
	pollUntilIdle(t, inst)
	require.Len(t, inst.Messages(), 2)

	for i := 0; i < 3; i++ {
		inst.ClearConversation()
		assert.False(t, inst.CanCancel())
		assert.Empty(t, inst.Messages())
		inst.Reset()
		assert.False(t, inst.CanCancel())
		assert.Empty(t, inst.Messages())
	}
	assert.Equal(t, StateUninitialized, inst.State())
	assert.False(t, inst.IsInitialized())
}

func TestInstance_ClearDuringTurnAbandonsIt(t *testing.T) {
	release := make(chan struct{})
	f := newFakeFactory()
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		<-release
		return "late", nil
	}
	inst := newReadyInstance(t, f)
	defer inst.Terminate()

	require.NoError(t, inst.Send("slow"))
	tok := inst.Token()
	inst.ClearConversation()
	assert.True(t, tok.IsCancelled())
	assert.False(t, inst.IsProcessing())

	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, inst.Poll())
	assert.Empty(t, inst.Messages())
}

func TestInstance_LazyInitialization(t *testing.T) {
	f := newFakeFactory()
	inst := New(types.TaskManager(), f,
		WithCredentialSource(StaticCredentials(testCreds)),
		WithLogLevel(types.LogTrace),
	)
	defer inst.Terminate()

	assert.False(t, inst.IsInitialized())
	require.NoError(t, inst.Send("hello"))
	pollUntilIdle(t, inst)

	assert.True(t, inst.IsInitialized())
	assert.True(t, inst.CanCancel())
	assert.Equal(t, StateReady, inst.State())
	spec := f.lastSpec()
	assert.Equal(t, "us-east-1", spec.Credentials.Region)
	assert.Equal(t, types.LogTrace, spec.LogLevel)
	assert.Equal(t, inst.ID(), spec.AgentID)
}

type failingCredentials struct{}

func (failingCredentials) Credentials(context.Context) (types.Credentials, error) {
	return types.Credentials{}, errors.New("sso session expired")
}

func TestInstance_LazyInitializationFailure(t *testing.T) {
	inst := New(types.TaskManager(), newFakeFactory(), WithCredentialSource(failingCredentials{}))
	defer inst.Terminate()

	require.NoError(t, inst.Send("hello"))
	pollUntilIdle(t, inst)

	history := inst.Messages()
	require.Len(t, history, 2)
	assert.Contains(t, history[1].Content, "sso session expired")
	assert.Equal(t, StateUninitialized, inst.State())
}

func TestInstance_SetLogLevel(t *testing.T) {
	f := newFakeFactory()
	inst := newReadyInstance(t, f, WithCredentialSource(StaticCredentials(testCreds)))
	defer inst.Terminate()

	inst.SetLogLevel(types.DefaultLogLevel)
	assert.True(t, inst.IsInitialized())

	inst.SetLogLevel(types.LogInfo)
	assert.False(t, inst.IsInitialized())
	assert.Equal(t, types.LogInfo, inst.LogLevel())

	require.NoError(t, inst.Send("again"))
	pollUntilIdle(t, inst)
	assert.Equal(t, types.LogInfo, f.lastSpec().LogLevel)
}

func TestInstance_Terminate(t *testing.T) {
	inst := newReadyInstance(t, newFakeFactory())
	tok := inst.Token()

	inst.Terminate()
	inst.Terminate()

	assert.Equal(t, StateTerminated, inst.State())
	assert.Equal(t, types.StatusCancelled, inst.Status().Kind)
	assert.True(t, tok.IsCancelled())
	assert.ErrorIs(t, inst.Send("hello"), ErrTerminated)
	assert.ErrorIs(t, inst.Initialize(context.Background(), testCreds), ErrTerminated)
	assert.False(t, inst.Poll())
}

func TestInstance_ParentCancelledWorker(t *testing.T) {
	parent := NewCancellationToken()
	parent.Cancel()

	completions := make(chan WorkerCompletion, 1)
	f := newFakeFactory()
	worker := New(types.TaskWorker(types.NewAgentID()), f,
		WithParentToken(parent),
		WithCredentialSource(StaticCredentials(testCreds)),
		WithCompletionHandler(func(c WorkerCompletion) { completions <- c }),
	)
	defer worker.Terminate()

	assert.True(t, worker.CanCancel())
	assert.True(t, worker.IsCancelled())

	require.NoError(t, worker.Send("task"))
	pollUntilIdle(t, worker)

	assert.Equal(t, types.Failed("Cancelled by parent agent"), worker.Status())
	assert.Zero(t, f.rt.calls.Load())

	select {
	case c := <-completions:
		assert.Equal(t, worker.ID(), c.WorkerID)
		assert.False(t, c.OK())
		assert.EqualError(t, c.Err, "Cancelled by parent agent")
	case <-time.After(time.Second):
		t.Fatal("no worker completion")
	}
}

func TestInstance_WorkerTokenIsChildOfParent(t *testing.T) {
	parent := NewCancellationToken()
	worker := New(types.TaskWorker(types.NewAgentID()), newFakeFactory(), WithParentToken(parent))
	defer worker.Terminate()
	require.NoError(t, worker.Initialize(context.Background(), testCreds))

	parent.Cancel()
	assert.True(t, worker.Token().IsCancelled())
}

func TestInstance_ObserverPublishesEvents(t *testing.T) {
	bus := NewEventBus(64, zaptest.NewLogger(t))
	defer bus.Stop()

	var mu sync.Mutex
	var seen []EventType
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	f := newFakeFactory()
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		turn.Observer.ToolStarted("execute_javascript", `{"code":"1"}`)
		turn.Observer.ToolCompleted("execute_javascript", "1", time.Millisecond)
		turn.Observer.ToolStarted("think", "{}")
		turn.Observer.ToolFailed("think", "bad input", time.Millisecond)
		turn.Observer.TokenUsage(10, 20)
		return "done", nil
	}
	inst := newReadyInstance(t, f, WithEventBus(bus), WithLogger(zaptest.NewLogger(t)))
	defer inst.Terminate()

	require.NoError(t, inst.Send("go"))
	pollUntilIdle(t, inst)
	assert.Equal(t, 30, inst.UsedTokens())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return containsAll(seen, EventToolStarted, EventToolCompleted, EventToolFailed, EventTokenUsage, EventStateChange)
	}, time.Second, 5*time.Millisecond)
}

func containsAll(got []EventType, want ...EventType) bool {
	set := make(map[EventType]bool, len(got))
	for _, g := range got {
		set[g] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

type recordingTranscript struct {
	mu      sync.Mutex
	records []string
	cleared int
}

func (r *recordingTranscript) Record(_ types.AgentID, _ types.AgentType, msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%s:%s", msg.Role, msg.Content))
}

func (r *recordingTranscript) Clear(types.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	r.records = nil
}

func TestInstance_TranscriptFollowsHistory(t *testing.T) {
	tr := &recordingTranscript{}
	inst := newReadyInstance(t, newFakeFactory(), WithTranscript(tr))
	defer inst.Terminate()

	require.NoError(t, inst.Send("hi"))
	pollUntilIdle(t, inst)
	inst.AddSystemMessage("note")

	tr.mu.Lock()
	assert.Equal(t, []string{"user:hi", "assistant:echo: hi", "system:note"}, tr.records)
	tr.mu.Unlock()

	inst.ClearConversation()
	tr.mu.Lock()
	assert.Equal(t, 1, tr.cleared)
	assert.Empty(t, tr.records)
	tr.mu.Unlock()
}

func TestInstance_PreambleOverride(t *testing.T) {
	var got string
	f := newFakeFactory()
	f.rt.reply = func(_ context.Context, turn Turn) (string, error) {
		got = turn.Message
		return "ok", nil
	}
	inst := newReadyInstance(t, f, WithPreamble("PRE:"))
	defer inst.Terminate()

	require.NoError(t, inst.Send("body"))
	pollUntilIdle(t, inst)
	assert.Equal(t, "PRE:body", got)
}

func TestInstance_RecommendedLayers(t *testing.T) {
	inst := New(types.TaskManager(), newFakeFactory(), WithRecommendedLayers())
	defer inst.Terminate()
	assert.Equal(t, []string{"logging", "token_tracking"}, inst.Middleware().Names())
}
