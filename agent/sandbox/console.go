package sandbox

import (
	"bytes"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/pool"
)

// consoleCapture collects console output of one invocation. Output past
// limit is dropped and marks the capture truncated.
type consoleCapture struct {
	mu        sync.Mutex
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	limit     int
	truncated bool
}

func newConsoleCapture(limit int) *consoleCapture {
	return &consoleCapture{
		stdout: pool.ByteBufferPool.Get(),
		stderr: pool.ByteBufferPool.Get(),
		limit:  limit,
	}
}

func (c *consoleCapture) write(buf *bytes.Buffer, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && buf.Len()+len(line)+1 > c.limit {
		room := c.limit - buf.Len()
		if room > 0 {
			buf.WriteString(line[:min(room, len(line))])
		}
		c.truncated = true
		return
	}
	buf.WriteString(line)
	buf.WriteByte('\n')
}

func (c *consoleCapture) appendStderr(s string) {
	c.mu.Lock()
	c.stderr.WriteString(s)
	c.mu.Unlock()
}

// drain copies the buffers out and returns them to the pool.
func (c *consoleCapture) drain() (stdout, stderr string, truncated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stdout, stderr = c.stdout.String(), c.stderr.String()
	pool.ByteBufferPool.Put(c.stdout)
	pool.ByteBufferPool.Put(c.stderr)
	c.stdout, c.stderr = &bytes.Buffer{}, &bytes.Buffer{}
	return stdout, stderr, c.truncated
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			parts = append(parts, "undefined")
			continue
		}
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// installConsole binds console.log/info/warn/debug to stdout and
// console.error to stderr.
func installConsole(vm *goja.Runtime, c *consoleCapture) error {
	console := vm.NewObject()
	out := func(call goja.FunctionCall) goja.Value {
		c.write(c.stdout, formatArgs(call.Arguments))
		return goja.Undefined()
	}
	for _, name := range []string{"log", "info", "warn", "debug"} {
		if err := console.Set(name, out); err != nil {
			return err
		}
	}
	if err := console.Set("error", func(call goja.FunctionCall) goja.Value {
		c.write(c.stderr, formatArgs(call.Arguments))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return vm.Set("console", console)
}

// installLoggingConsole routes console calls to the process logger when
// capture is off.
func installLoggingConsole(vm *goja.Runtime, logger *zap.Logger) error {
	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "debug", "error"} {
		level := name
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			logger.Debug("script console", zap.String("level", level), zap.String("message", formatArgs(call.Arguments)))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}
