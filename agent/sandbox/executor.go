// Package sandbox runs untrusted JavaScript snippets in a fresh goja runtime
// per call, bounded by a wall-clock watchdog and a heap ceiling.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/internal/metrics"
	"github.com/BaSui01/agentdash/internal/vfs"
)

// Config bounds one invocation.
type Config struct {
	HeapLimitBytes int64         `json:"heap_limit_bytes"`
	Timeout        time.Duration `json:"timeout"`
	CaptureConsole bool          `json:"capture_console"`
	MaxReadBytes   int           `json:"max_read_bytes"`
	MaxOutputBytes int           `json:"max_output_bytes"`
}

// DefaultConfig returns 256 MiB heap, 30s timeout and console capture on.
func DefaultConfig() Config {
	return Config{
		HeapLimitBytes: 256 * 1024 * 1024,
		Timeout:        30 * time.Second,
		CaptureConsole: true,
		MaxReadBytes:   DefaultMaxReadBytes,
		MaxOutputBytes: 1024 * 1024,
	}
}

// ConfigFrom maps the application config section, keeping defaults for
// zero fields.
func ConfigFrom(c config.SandboxConfig) Config {
	cfg := DefaultConfig()
	if c.HeapLimitBytes > 0 {
		cfg.HeapLimitBytes = c.HeapLimitBytes
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.CaptureConsole = c.CaptureConsole
	if c.MaxReadBytes > 0 {
		cfg.MaxReadBytes = c.MaxReadBytes
	}
	return cfg
}

// ExecutorStats tracks execution statistics.
type ExecutorStats struct {
	TotalExecutions        int64         `json:"total_executions"`
	SuccessExecutions      int64         `json:"success_executions"`
	FailedExecutions       int64         `json:"failed_executions"`
	TimeoutExecutions      int64         `json:"timeout_executions"`
	HeapExceededExecutions int64         `json:"heap_exceeded_executions"`
	TotalDuration          time.Duration `json:"total_duration"`
}

// Executor runs scripts. It holds no per-invocation state and is safe for
// concurrent use.
type Executor struct {
	config   Config
	bindings []Binding
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu    sync.RWMutex
	stats ExecutorStats
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = c }
}

// WithVFS installs the `vfs` binding backed by registry.
func WithVFS(registry *vfs.Registry) Option {
	return func(e *Executor) {
		e.bindings = append(e.bindings, &VFSBinding{Registry: registry, MaxReadBytes: e.config.MaxReadBytes})
	}
}

// WithBinding installs an extra capability binding.
func WithBinding(b Binding) Option {
	return func(e *Executor) { e.bindings = append(e.bindings, b) }
}

// NewExecutor creates an executor with listRegions() always installed.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		config:   cfg,
		bindings: []Binding{RegionsBinding{}},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With(zap.String("component", "sandbox"))
	return e
}

// Config returns the default invocation config.
func (e *Executor) Config() Config { return e.config }

// Execute runs script with the executor's config.
func (e *Executor) Execute(ctx context.Context, script string) *Result {
	return e.ExecuteWith(ctx, script, e.config)
}

type interruptReason int

const (
	interruptTimeout interruptReason = iota + 1
	interruptHeap
	interruptCancelled
)

const heapSampleInterval = 10 * time.Millisecond

// ExecuteWith runs script in a fresh runtime bounded by cfg. It never
// panics and never returns a nil result; failures are reported in the
// Result.
func (e *Executor) ExecuteWith(ctx context.Context, script string, cfg Config) (res *Result) {
	start := time.Now()
	capture := newConsoleCapture(cfg.MaxOutputBytes)
	res = &Result{}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sandbox panic", zap.Any("panic", r))
			res.Success = false
			res.Outcome = OutcomeRuntimeError
			res.Error = fmt.Sprintf("internal error: %v", r)
			capture.appendStderr(res.Error)
		}
		res.Stdout, res.Stderr, res.Truncated = capture.drain()
		res.Elapsed = time.Since(start)
		res.ElapsedMs = res.Elapsed.Milliseconds()
		e.record(res)
	}()

	prog, err := goja.Compile("script.js", script, false)
	if err != nil {
		res.Outcome = OutcomeCompileError
		res.Error = err.Error()
		capture.appendStderr(res.Error)
		return res
	}

	if cfg.HeapLimitBytes > 0 {
		if err := acquireHeapSlot(ctx); err != nil {
			res.Outcome = OutcomeCancelled
			res.Error = "Execution cancelled"
			capture.appendStderr(res.Error)
			return res
		}
		defer releaseHeapSlot()
	}

	vm := goja.New()
	if cfg.CaptureConsole {
		err = installConsole(vm, capture)
	} else {
		err = installLoggingConsole(vm, e.logger)
	}
	for _, b := range e.bindings {
		if err != nil {
			break
		}
		if berr := b.Install(ctx, vm); berr != nil {
			err = fmt.Errorf("install %s binding: %w", b.Name(), berr)
		}
	}
	if err != nil {
		res.Outcome = OutcomeRuntimeError
		res.Error = "Failed to register bindings: " + err.Error()
		capture.appendStderr(res.Error)
		return res
	}

	// Serialization can call back into the script (toJSON, getters,
	// toString), so the watchdog stays armed until it is done.
	stop := e.watch(ctx, vm, cfg)
	defer stop()
	value, runErr := vm.RunProgram(prog)
	var out []byte
	if runErr == nil {
		out, runErr = toJSON(vm, value)
	}
	stop()

	if runErr != nil {
		e.fail(res, capture, runErr, cfg)
		return res
	}

	res.Success = true
	res.Outcome = OutcomeOK
	res.Value = out
	return res
}

// watch starts the watchdog. It interrupts vm on timeout, heap growth past
// the ceiling, or ctx cancellation. The returned func stops it; an
// interrupt after the script finished has no effect.
func (e *Executor) watch(ctx context.Context, vm *goja.Runtime, cfg Config) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		var timeout <-chan time.Time
		if cfg.Timeout > 0 {
			t := time.NewTimer(cfg.Timeout)
			defer t.Stop()
			timeout = t.C
		}

		guard := newHeapGuard(cfg.HeapLimitBytes)
		var sample <-chan time.Time
		if guard != nil {
			tk := time.NewTicker(heapSampleInterval)
			defer tk.Stop()
			sample = tk.C
		}

		for {
			select {
			case <-done:
				return
			case <-timeout:
				vm.Interrupt(interruptTimeout)
				return
			case <-ctx.Done():
				vm.Interrupt(interruptCancelled)
				return
			case <-sample:
				if guard.exceeded() {
					vm.Interrupt(interruptHeap)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (e *Executor) fail(res *Result, capture *consoleCapture, err error, cfg Config) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		reason, _ := interrupted.Value().(interruptReason)
		switch reason {
		case interruptHeap:
			res.Outcome = OutcomeHeapExceeded
			res.Error = fmt.Sprintf("Execution terminated (heap limit exceeded: %d bytes)", cfg.HeapLimitBytes)
		case interruptCancelled:
			res.Outcome = OutcomeCancelled
			res.Error = "Execution cancelled"
		default:
			res.Outcome = OutcomeTimeout
			res.Error = fmt.Sprintf("Execution terminated (timeout: %v)", cfg.Timeout)
		}
		capture.appendStderr(res.Error)
		return
	}

	res.Outcome = OutcomeRuntimeError
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		res.Error = ex.Value().String()
	} else {
		res.Error = err.Error()
	}
	capture.appendStderr(res.Error)
}

// toJSON serializes v with JSON.stringify, falling back to a JSON string of
// String(v) (cyclic objects, BigInt). Undefined and functions yield nil.
// Interrupts are returned so the caller reports the watchdog outcome.
func toJSON(vm *goja.Runtime, v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return nil, nil
	}

	if stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify")); ok {
		out, err := stringify(goja.Undefined(), v)
		if err == nil && !goja.IsUndefined(out) {
			return []byte(out.String()), nil
		}
		if isInterrupt(err) {
			return nil, err
		}
	}

	str, ok := goja.AssertFunction(vm.Get("String"))
	if !ok {
		return nil, errors.New("String is not callable")
	}
	s, err := str(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(s.String())
	if err != nil {
		return nil, err
	}
	return b, nil
}

func isInterrupt(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}

func (e *Executor) record(res *Result) {
	e.mu.Lock()
	e.stats.TotalExecutions++
	e.stats.TotalDuration += res.Elapsed
	if res.Success {
		e.stats.SuccessExecutions++
	} else {
		e.stats.FailedExecutions++
		switch res.Outcome {
		case OutcomeTimeout:
			e.stats.TimeoutExecutions++
		case OutcomeHeapExceeded:
			e.stats.HeapExceededExecutions++
		}
	}
	e.mu.Unlock()

	e.metrics.RecordSandboxExecution(string(res.Outcome), res.Elapsed)
	e.logger.Debug("script executed",
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)))
}

// Stats returns execution statistics.
func (e *Executor) Stats() ExecutorStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
