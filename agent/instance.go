package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent/injection"
	"github.com/BaSui01/agentdash/agent/middleware"
	"github.com/BaSui01/agentdash/internal/agentlog"
	"github.com/BaSui01/agentdash/internal/channel"
	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/internal/metrics"
	"github.com/BaSui01/agentdash/internal/pool"
	"github.com/BaSui01/agentdash/internal/telemetry"
	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

const (
	processingStatus  = "Processing..."
	cancelledByParent = "Cancelled by parent agent"
	emptyResponse     = "Agent response was empty"
	disconnectedReply = "Error: the agent worker stopped unexpectedly. You can send another message."
)

// DataFidelityPreamble is prepended to every message handed to a runtime.
const DataFidelityPreamble = `<critical_instructions>
When performing calculations or numerical analysis:
1. Always use the actual data returned from tool queries as your source data
2. Show your calculation process explicitly, including:
   - The raw numbers you're using from the query results
   - The mathematical operations you're performing
   - The units you're working with and any unit conversions
3. If you cannot perform a calculation because:
   - The data is missing
   - The data format is unclear
   - You're unsure about the mathematical approach
   - You don't have the right tools
   Then explicitly state:
   'I cannot calculate this because [specific reason]. To perform this calculation, I would need [missing information/tools/clarification].'
4. Never make assumptions about numerical values - only use values explicitly present in the query results

Query result presentation:
1. Show me the exact query results without interpretation
2. Only include resources that are explicitly returned in the query data
</critical_instructions>

`

// Instance drives one agent: one turn at a time on a dedicated worker
// goroutine, polled without blocking by the caller.
//
// Caller operations (Send, Poll, Initialize, Reset, ClearConversation,
// SetLogLevel, Terminate) are serialized. Cancel and the read accessors can
// be called from any goroutine at any time.
type Instance struct {
	id        types.AgentID
	agentType types.AgentType
	createdAt time.Time

	factory     RuntimeFactory
	credentials CredentialSource
	parentToken *CancellationToken
	preamble    string
	vfsID       uuid.UUID
	ownedVFS    *vfs.Registry
	onComplete  func(WorkerCompletion)

	stack      *middleware.Stack
	scheduler  *injection.Scheduler
	worker     *pool.Worker
	events     Publisher
	alog       *agentlog.Logger
	transcript TranscriptRecorder
	metrics    *metrics.Collector
	logger     *zap.Logger
	telemetry  bool
	tracer     trace.Tracer

	opMu sync.Mutex

	mu            sync.RWMutex
	state         State
	status        types.AgentStatus
	phase         ProcessingPhase
	statusMessage string
	logLevel      types.LogLevel
	messages      []types.Message
	slot          *runtimeSlot
	token         *CancellationToken
	generation    uint64
	turn          *activeTurn
	deferred      string
	hasDeferred   bool
	lastTool      string
	lastToolOK    bool
	usedTokens    int
}

// runtimeSlot pairs a runtime with its execution lock.
type runtimeSlot struct {
	mu sync.Mutex
	rt Runtime
}

type activeTurn struct {
	mailbox    *channel.Mailbox[TurnResult]
	generation uint64
	started    time.Time
}

type instanceOptions struct {
	id          types.AgentID
	logger      *zap.Logger
	metrics     *metrics.Collector
	layers      []middleware.Layer
	recommended bool
	scheduler   *injection.Scheduler
	events      Publisher
	alog        *agentlog.Logger
	transcript  TranscriptRecorder
	credentials CredentialSource
	parentToken *CancellationToken
	vfsID       uuid.UUID
	ownedVFS    *vfs.Registry
	logLevel    types.LogLevel
	preamble    *string
	telemetry   bool
	onComplete  func(WorkerCompletion)
}

// Option configures an Instance.
type Option func(*instanceOptions)

// WithID overrides the generated agent id.
func WithID(id types.AgentID) Option {
	return func(o *instanceOptions) { o.id = id }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *instanceOptions) { o.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *instanceOptions) { o.metrics = c }
}

// WithMiddleware appends layers to the instance's stack.
func WithMiddleware(layers ...middleware.Layer) Option {
	return func(o *instanceOptions) { o.layers = append(o.layers, layers...) }
}

// WithRecommendedLayers installs logging and token tracking ahead of any
// layers given through WithMiddleware.
func WithRecommendedLayers() Option {
	return func(o *instanceOptions) { o.recommended = true }
}

func WithScheduler(s *injection.Scheduler) Option {
	return func(o *instanceOptions) { o.scheduler = s }
}

func WithEventBus(p Publisher) Option {
	return func(o *instanceOptions) { o.events = p }
}

// WithAgentLog sets the per-agent log sink.
func WithAgentLog(l *agentlog.Logger) Option {
	return func(o *instanceOptions) { o.alog = l }
}

func WithTranscript(r TranscriptRecorder) Option {
	return func(o *instanceOptions) { o.transcript = r }
}

// WithCredentialSource enables lazy initialization on the first Send.
func WithCredentialSource(c CredentialSource) Option {
	return func(o *instanceOptions) { o.credentials = c }
}

// WithParentToken links the instance to its parent's cancellation token.
func WithParentToken(t *CancellationToken) Option {
	return func(o *instanceOptions) { o.parentToken = t }
}

func WithVFSID(id uuid.UUID) Option {
	return func(o *instanceOptions) { o.vfsID = id }
}

// WithOwnedVFS makes the instance deregister id from registry on Terminate.
func WithOwnedVFS(registry *vfs.Registry, id uuid.UUID) Option {
	return func(o *instanceOptions) {
		o.ownedVFS = registry
		o.vfsID = id
	}
}

func WithLogLevel(l types.LogLevel) Option {
	return func(o *instanceOptions) { o.logLevel = l }
}

// WithPreamble replaces DataFidelityPreamble. An empty string disables it.
func WithPreamble(p string) Option {
	return func(o *instanceOptions) { o.preamble = &p }
}

func WithTelemetry(enabled bool) Option {
	return func(o *instanceOptions) { o.telemetry = enabled }
}

// WithCompletionHandler receives worker terminal results on the worker
// goroutine. Only worker roles report completions.
func WithCompletionHandler(fn func(WorkerCompletion)) Option {
	return func(o *instanceOptions) { o.onComplete = fn }
}

// New creates an Instance in the Uninitialized state.
func New(agentType types.AgentType, factory RuntimeFactory, opts ...Option) *Instance {
	o := instanceOptions{logLevel: types.DefaultLogLevel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id.IsZero() {
		o.id = types.NewAgentID()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	logger := o.logger.With(
		zap.String("agent_id", o.id.String()),
		zap.String("agent_type", string(agentType.Kind)),
	)
	if o.alog == nil {
		o.alog = agentlog.NewNop()
	}
	if o.events == nil {
		o.events = nopPublisher{}
	}
	if o.scheduler == nil {
		o.scheduler = injection.NewScheduler(
			injection.WithLogger(logger),
			injection.WithMetrics(o.metrics),
		)
	}
	preamble := DataFidelityPreamble
	if o.preamble != nil {
		preamble = *o.preamble
	}

	layers := o.layers
	if o.recommended {
		layers = append(middleware.Recommended(logger), layers...)
	}

	a := &Instance{
		id:          o.id,
		agentType:   agentType,
		createdAt:   time.Now(),
		factory:     factory,
		credentials: o.credentials,
		parentToken: o.parentToken,
		preamble:    preamble,
		vfsID:       o.vfsID,
		ownedVFS:    o.ownedVFS,
		onComplete:  o.onComplete,
		stack: middleware.NewStack(layers,
			middleware.WithLogger(logger),
			middleware.WithMetrics(o.metrics),
		),
		scheduler:  o.scheduler,
		events:     o.events,
		alog:       o.alog,
		transcript: o.transcript,
		metrics:    o.metrics,
		logger:     logger,
		telemetry:  o.telemetry,
		tracer:     telemetry.Tracer(o.telemetry),
		state:      StateUninitialized,
		status:     types.Running(),
		phase:      Idle(),
		logLevel:   o.logLevel,
		lastToolOK: true,
	}
	a.worker = pool.NewWorker(pool.WorkerConfig{
		Name:      "agent-" + o.id.Short(),
		QueueSize: 4,
		PanicHandler: func(name string, r any) {
			logger.Error("agent worker panicked",
				zap.String("worker", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		},
	})

	a.alog.SystemMessage("Agent type: " + agentType.String())
	if o.vfsID != uuid.Nil {
		a.alog.SystemMessage("Using VFS with ID: " + o.vfsID.String())
	}
	return a
}

func (a *Instance) ID() types.AgentID               { return a.id }
func (a *Instance) Type() types.AgentType           { return a.agentType }
func (a *Instance) CreatedAt() time.Time            { return a.createdAt }
func (a *Instance) VFSID() uuid.UUID                { return a.vfsID }
func (a *Instance) Middleware() *middleware.Stack   { return a.stack }
func (a *Instance) Scheduler() *injection.Scheduler { return a.scheduler }
func (a *Instance) AgentLog() *agentlog.Logger      { return a.alog }

// Initialize builds the runtime eagerly. It fails with an
// *InitializationError without changing state.
func (a *Instance) Initialize(ctx context.Context, creds types.Credentials) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.RLock()
	state, level := a.state, a.logLevel
	a.mu.RUnlock()
	switch state {
	case StateTerminated:
		return ErrTerminated
	case StateProcessing:
		return ErrAgentBusy
	}

	slot, token, err := a.buildRuntime(ctx, creds, level)
	if err != nil {
		a.alog.Error(err.Error())
		a.logger.Warn("agent initialization failed", zap.Error(err))
		return err
	}

	a.mu.Lock()
	if a.slot != nil && a.token != nil {
		a.token.Cancel()
	}
	a.slot = slot
	a.token = token
	a.generation++
	a.setStateLocked(StateReady)
	a.mu.Unlock()

	a.alog.SystemMessage("Cancellation token captured")
	a.alog.SystemMessage("Agent fully initialized and ready")
	return nil
}

func (a *Instance) buildRuntime(ctx context.Context, creds types.Credentials, level types.LogLevel) (*runtimeSlot, *CancellationToken, error) {
	if a.factory == nil {
		return nil, nil, &InitializationError{Cause: errors.New("no runtime factory configured")}
	}
	rt, err := a.factory.NewRuntime(ctx, RuntimeSpec{
		AgentID:     a.id,
		AgentType:   a.agentType,
		LogLevel:    level,
		Credentials: creds,
		VFSID:       a.vfsID,
		Telemetry:   a.telemetry,
	})
	if err != nil {
		return nil, nil, &InitializationError{Cause: err}
	}
	return &runtimeSlot{rt: rt}, a.newToken(), nil
}

func (a *Instance) newToken() *CancellationToken {
	if a.parentToken != nil {
		return a.parentToken.Child()
	}
	return NewCancellationToken()
}

// Send starts a turn. It returns immediately; results arrive through Poll.
// A middleware abort returns the *middleware.LayerError and leaves the
// conversation untouched.
func (a *Instance) Send(text string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.send(text)
}

// InjectMessage sends text as a system-originated follow-up.
func (a *Instance) InjectMessage(text string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.inject("manual", text)
}

func (a *Instance) inject(kind, text string) error {
	a.alog.Injection(kind, text)
	a.metrics.RecordInjection(kind, "delivered")
	return a.send(text)
}

func (a *Instance) send(text string) error {
	a.mu.RLock()
	state, slot := a.state, a.slot
	mctx := a.layerContextLocked()
	a.mu.RUnlock()

	switch {
	case state == StateTerminated:
		return ErrTerminated
	case state == StateProcessing:
		return ErrAgentBusy
	case slot == nil && a.credentials == nil:
		return ErrNotInitialized
	}

	processed, err := a.stack.PreSend(text, mctx.WithProcessingStart(time.Now()))
	if err != nil {
		a.alog.SystemMessage("Message send aborted by middleware: " + err.Error())
		a.logger.Info("message send aborted by middleware", zap.Error(err))
		return err
	}
	a.alog.SystemMessage("Sending message: " + agentlog.Truncate(processed, agentlog.SentPreviewLen))

	turn := &activeTurn{
		mailbox: channel.NewMailbox[TurnResult](),
		started: time.Now(),
	}

	a.mu.Lock()
	turn.generation = a.generation
	a.appendLocked(types.NewUserMessage(text))
	a.setStateLocked(StateProcessing)
	a.turn = turn
	a.phase = Thinking()
	a.statusMessage = processingStatus
	job := turnJob{
		turn:    turn,
		slot:    a.slot,
		token:   a.token,
		message: processed,
		scope: ctxkeys.Scope{
			AgentID:   a.id,
			AgentType: a.agentType,
			LogLevel:  a.logLevel,
			VFSID:     a.vfsID,
		},
	}
	a.mu.Unlock()

	a.alog.UserMessage(processed)

	if err := a.worker.Submit(context.Background(), func(ctx context.Context) { a.runTurn(ctx, job) }); err != nil {
		// The turn is still owed exactly one terminal result.
		a.logger.Error("failed to schedule agent turn", zap.Error(err))
		_ = turn.mailbox.Send(Failure("Agent execution failed: " + err.Error()))
		turn.mailbox.Close()
	}
	return nil
}

type turnJob struct {
	turn    *activeTurn
	slot    *runtimeSlot
	token   *CancellationToken
	message string
	scope   ctxkeys.Scope
}

// runTurn executes on the agent's worker goroutine.
func (a *Instance) runTurn(ctx context.Context, job turnJob) {
	start := time.Now()
	delivered := false
	finish := func(r TurnResult) {
		delivered = true
		_ = job.turn.mailbox.Send(r)
		a.reportCompletion(r, time.Since(start))
	}
	defer func() {
		if r := recover(); r != nil {
			if !delivered {
				a.reportCompletion(Failure(fmt.Sprintf("agent worker panicked: %v", r)), time.Since(start))
			}
			job.turn.mailbox.Close()
			panic(r)
		}
		job.turn.mailbox.Close()
	}()

	ctx = ctxkeys.WithScope(ctx, job.scope)
	a.alog.SystemMessage("Background execution started")

	if a.parentToken != nil && a.parentToken.IsCancelled() {
		a.alog.SystemMessage("Parent cancelled - aborting worker execution")
		finish(Failure(cancelledByParent))
		return
	}

	slot, token := job.slot, job.token
	if slot == nil {
		a.alog.SystemMessage("Creating runtime (lazy initialization)")
		creds, err := a.credentials.Credentials(ctx)
		if err != nil {
			ierr := &InitializationError{Cause: fmt.Errorf("failed to get credentials: %w", err)}
			a.alog.Error(ierr.Error())
			finish(Failure(ierr.Error()))
			return
		}
		slot, token, err = a.buildRuntime(ctx, creds, job.scope.LogLevel)
		if err != nil {
			a.alog.Error(err.Error())
			finish(Failure(err.Error()))
			return
		}
		a.installRuntime(job.turn.generation, slot, token)
	}

	ctx, span := telemetry.StartTurn(ctx, a.tracer, a.id, a.agentType)
	a.alog.SystemMessage("Executing agent...")
	text, err := a.execute(ctx, slot, Turn{
		Message:  a.preamble + job.message,
		Token:    token,
		Observer: &turnObserver{a: a, turn: job.turn},
	})
	telemetry.EndSpan(span, err)

	switch {
	case err != nil:
		msg := "Agent execution failed: " + err.Error()
		a.alog.Error(msg)
		finish(Failure(msg))
	case strings.TrimSpace(text) == "":
		a.alog.Error(emptyResponse)
		finish(Failure(emptyResponse))
	default:
		a.alog.SystemMessage("Agent execution completed")
		a.alog.AssistantResponse(text)
		finish(Success(text))
	}
}

func (a *Instance) execute(ctx context.Context, slot *runtimeSlot, turn Turn) (string, error) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.rt.Execute(ctx, turn)
}

// installRuntime stores a lazily built runtime unless the instance was reset
// while it was being built.
func (a *Instance) installRuntime(generation uint64, slot *runtimeSlot, token *CancellationToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation || a.slot != nil || a.state == StateTerminated {
		return
	}
	a.slot = slot
	a.token = token
	a.alog.SystemMessage("Cancellation token captured")
}

func (a *Instance) reportCompletion(r TurnResult, elapsed time.Duration) {
	if a.onComplete == nil || !a.agentType.IsWorker() || !r.IsTerminal() {
		return
	}
	c := WorkerCompletion{WorkerID: a.id, Elapsed: elapsed}
	if r.Kind == ResultSuccess {
		c.Result = r.Text
	} else {
		c.Err = &ExecutionError{Message: r.Text}
	}
	a.onComplete(c)
}

// Poll advances the instance without blocking. It returns true when
// something changed: a turn finished or a new one started.
func (a *Instance) Poll() bool {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.status.Kind == types.StatusCancelled {
		if a.turn != nil {
			if n := a.turn.mailbox.Drain(); n > 0 {
				a.logger.Debug("discarded results of cancelled agent", zap.Int("count", n))
			}
		}
		a.mu.Unlock()
		return false
	}

	if a.state != StateProcessing {
		canSend := a.state != StateTerminated && (a.slot != nil || a.credentials != nil)
		if !canSend {
			a.mu.Unlock()
			return false
		}
		if a.hasDeferred {
			msg := a.deferred
			a.deferred, a.hasDeferred = "", false
			a.mu.Unlock()
			a.alog.SystemMessage("Processing deferred injection")
			return a.inject("deferred", msg) == nil
		}
		ictx := injection.Context{TokenCount: a.tokenCountLocked(), TurnCount: len(a.messages) / 2}
		a.mu.Unlock()
		if ready := a.scheduler.CheckAllTriggers(ictx); len(ready) > 0 {
			return a.inject("scheduled", strings.Join(ready, "\n\n")) == nil
		}
		return false
	}
	turn := a.turn
	a.mu.Unlock()

	r, state := turn.mailbox.TryReceive()
	switch state {
	case channel.Empty:
		return false
	case channel.Disconnected:
		a.handleDisconnect(turn)
		return true
	}

	switch r.Kind {
	case ResultStatusUpdate:
		a.mu.Lock()
		if a.turn == turn {
			a.statusMessage = r.Text
		}
		a.mu.Unlock()
		return false
	case ResultSuccess:
		a.handleSuccess(turn, r.Text)
	default:
		a.handleError(turn, r.Text)
	}
	return true
}

func (a *Instance) handleSuccess(turn *activeTurn, text string) {
	a.mu.Lock()
	if a.turn != turn {
		a.mu.Unlock()
		return
	}
	a.finishTurnLocked()
	mctx := a.layerContextLocked()
	a.mu.Unlock()

	res := a.stack.PostResponse(text, mctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if res.Suppress {
		a.alog.SystemMessage("Response suppressed by middleware")
	} else {
		a.appendLocked(types.NewAssistantMessage(res.FinalResponse))
		a.alog.SystemMessage("Response received: " + agentlog.Truncate(res.FinalResponse, agentlog.ResponsePreviewLen))
	}
	if a.status.Kind == types.StatusFailed {
		a.status = types.Running()
	}

	if msg, ok := res.FirstInjection(); ok {
		a.deferInjectionLocked("middleware", msg)
	} else {
		ictx := injection.Context{
			LastToolCompleted: a.lastTool,
			LastToolSuccess:   a.lastToolOK,
			ResponseCompleted: true,
			TokenCount:        a.tokenCountLocked(),
			TurnCount:         len(a.messages) / 2,
		}
		if msg, ok := a.scheduler.CheckTriggers(ictx); ok {
			a.deferInjectionLocked("scheduler", msg)
		}
	}
	a.metrics.RecordTurn(string(a.agentType.Kind), "success", time.Since(turn.started))
}

func (a *Instance) deferInjectionLocked(source, msg string) {
	a.deferred, a.hasDeferred = msg, true
	a.alog.SystemMessage(fmt.Sprintf("Deferred injection from %s: %s", source, agentlog.Truncate(msg, agentlog.InjectionPreviewLen)))
}

func (a *Instance) handleError(turn *activeTurn, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.turn != turn {
		return
	}
	a.finishTurnLocked()
	a.appendLocked(types.NewAssistantMessage("Error: " + msg))
	a.status = types.Failed(msg)
	a.metrics.RecordTurn(string(a.agentType.Kind), "error", time.Since(turn.started))
}

func (a *Instance) handleDisconnect(turn *activeTurn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.turn != turn {
		return
	}
	a.finishTurnLocked()
	a.alog.Error("Response channel disconnected")
	a.logger.Error("agent response channel disconnected")
	a.appendLocked(types.NewAssistantMessage(disconnectedReply))
	a.status = types.Failed(disconnectedReply)
	a.metrics.RecordTurn(string(a.agentType.Kind), "disconnected", time.Since(turn.started))
}

func (a *Instance) finishTurnLocked() {
	a.turn = nil
	a.phase = Idle()
	a.statusMessage = ""
	if a.slot != nil {
		a.setStateLocked(StateReady)
	} else {
		a.setStateLocked(StateUninitialized)
	}
}

// Cancel signals the current token. It returns false when there is none.
func (a *Instance) Cancel() bool {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok == nil {
		a.alog.SystemMessage("Cancel requested but no cancellation token available")
		return false
	}
	tok.Cancel()
	a.alog.SystemMessage("Cancellation requested - stopping agent execution")
	a.logger.Info("agent cancellation requested")
	return true
}

// CanCancel reports whether the instance or its parent holds a token.
func (a *Instance) CanCancel() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token != nil || a.parentToken != nil
}

// IsCancelled reports whether the own or the parent token was cancelled.
func (a *Instance) IsCancelled() bool {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok != nil && tok.IsCancelled() {
		return true
	}
	return a.parentToken != nil && a.parentToken.IsCancelled()
}

// Token returns the current cancellation token, or nil.
func (a *Instance) Token() *CancellationToken {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// ResetCancellationToken replaces a cancelled token on the live runtime,
// keeping the conversation.
func (a *Instance) ResetCancellationToken() bool {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slot == nil {
		a.alog.SystemMessage("Cannot reset token - agent not initialized")
		return false
	}
	a.token = a.newToken()
	if a.status.Kind == types.StatusCancelled && a.state != StateTerminated {
		a.status = types.Running()
	}
	a.alog.SystemMessage("Cancellation token reset - conversation preserved")
	return true
}

// Reset discards the runtime and its token. The next Send re-initializes
// lazily when a credential source is configured.
func (a *Instance) Reset() {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.resetLocked()
}

func (a *Instance) resetLocked() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateTerminated {
		return
	}
	if a.turn != nil {
		// The abandoned turn can still finish; nothing reads its mailbox.
		if a.token != nil {
			a.token.Cancel()
		}
		a.turn = nil
		a.phase = Idle()
		a.statusMessage = ""
	}
	a.slot = nil
	a.token = nil
	a.generation++
	a.setStateLocked(StateUninitialized)
	a.alog.SystemMessage("Runtime reset - will reinitialize on next message")
}

// ClearConversation empties the history and resets the runtime.
func (a *Instance) ClearConversation() {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	a.messages = nil
	a.deferred, a.hasDeferred = "", false
	a.usedTokens = 0
	a.mu.Unlock()

	if a.transcript != nil {
		a.transcript.Clear(a.id)
	}
	a.alog.SystemMessage("Conversation cleared")
	a.resetLocked()
}

// SetLogLevel changes runtime verbosity. A change resets the runtime.
func (a *Instance) SetLogLevel(level types.LogLevel) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	old := a.logLevel
	if old == level {
		a.mu.Unlock()
		return
	}
	a.logLevel = level
	a.mu.Unlock()

	a.alog.SystemMessage(fmt.Sprintf("Runtime log level changed: %s -> %s", old, level))
	a.logger.Info("runtime log level changed",
		zap.Stringer("old_level", old),
		zap.Stringer("new_level", level),
	)
	a.resetLocked()
}

// Terminate cancels any in-flight turn and stops the instance for good.
func (a *Instance) Terminate() {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.state == StateTerminated {
		a.mu.Unlock()
		return
	}
	if a.token != nil {
		a.token.Cancel()
	}
	a.token = nil
	a.slot = nil
	a.phase = Idle()
	a.statusMessage = ""
	a.status = types.Cancelled()
	a.setStateLocked(StateTerminated)
	status := a.status
	a.mu.Unlock()

	a.worker.CloseAsync()
	if a.ownedVFS != nil && a.vfsID != uuid.Nil {
		if a.ownedVFS.Deregister(a.vfsID) {
			a.alog.SystemMessage("Deregistered VFS " + a.vfsID.String())
		}
	}
	a.alog.Terminated(status)
	_ = a.alog.Sync()
}

// AddSystemMessage appends a system note to the history without sending it.
func (a *Instance) AddSystemMessage(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLocked(types.NewMessage(types.RoleSystem, text))
}

// QueueInjection queues a follow-up for the scheduler.
func (a *Instance) QueueInjection(inj injection.Injection, trigger injection.Trigger) {
	a.alog.SystemMessage(fmt.Sprintf("Queueing injection: %s with trigger %s", inj.Label(), trigger))
	a.scheduler.QueueInjection(inj, trigger)
}

// QueueImmediateInjection is delivered on the first poll after the current
// turn ends.
func (a *Instance) QueueImmediateInjection(inj injection.Injection) {
	a.QueueInjection(inj, injection.Immediate())
}

func (a *Instance) HasPendingInjections() bool {
	a.mu.RLock()
	deferred := a.hasDeferred
	a.mu.RUnlock()
	return deferred || a.scheduler.HasPending()
}

// Messages returns a copy of the conversation.
func (a *Instance) Messages() []types.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Instance) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Instance) Status() types.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// SetStatus overrides the user-facing status, e.g. Paused or Completed.
func (a *Instance) SetStatus(s types.AgentStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateTerminated {
		a.status = s
	}
}

func (a *Instance) Phase() ProcessingPhase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

func (a *Instance) StatusMessage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.statusMessage
}

func (a *Instance) IsProcessing() bool {
	return a.State() == StateProcessing
}

func (a *Instance) IsInitialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.slot != nil
}

func (a *Instance) LogLevel() types.LogLevel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logLevel
}

// UsedTokens is the sum of model-reported usage since the last clear.
func (a *Instance) UsedTokens() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.usedTokens
}

// WorkerStats exposes the dedicated worker goroutine's counters.
func (a *Instance) WorkerStats() pool.WorkerStats {
	return a.worker.Stats()
}

func (a *Instance) appendLocked(msg types.Message) {
	a.messages = append(a.messages, msg)
	if a.transcript != nil {
		a.transcript.Record(a.id, a.agentType, msg)
	}
}

func (a *Instance) tokenCountLocked() int {
	n := 0
	for _, m := range a.messages {
		n += middleware.EstimateTokens(m.Content)
	}
	return n
}

func (a *Instance) layerContextLocked() middleware.Context {
	return middleware.NewContext(a.id, a.agentType).
		WithMessageCount(len(a.messages)).
		WithTurnCount(len(a.messages)/2).
		WithTokenCount(a.tokenCountLocked()).
		WithLastTool(a.lastTool, a.lastToolOK)
}

func (a *Instance) setStateLocked(to State) {
	from := a.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		a.logger.Warn("ignored invalid state transition", zap.Error(ErrInvalidTransition{From: from, To: to}))
		return
	}
	a.state = to
	a.alog.StateTransition(string(from), string(to))
	a.metrics.RecordStateTransition(string(from), string(to))
	a.events.Publish(Event{Type: EventStateChange, AgentID: a.id, From: from, To: to})
}
