package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/agent/injection"
	"github.com/BaSui01/agentdash/types"
)

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	tm, err := a.manager.CreateTaskManager()
	if err != nil {
		return err
	}
	r := newREPL(a.manager, tm, os.Stdout, cfg.Agent.FrameInterval)
	r.exitOnEOF = true
	a.events.SubscribeAll(r.onEvent)
	return r.run(ctx, os.Stdin)
}

// syncWriter serializes writes from the frame loop and the event bus.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// repl drives one task manager from line input. It polls every agent of the
// manager once per frame and prints new assistant messages.
type repl struct {
	manager   *agent.Manager
	agent     *agent.Instance
	out       io.Writer
	frame     time.Duration
	exitOnEOF bool

	printed int
	status  string
}

func newREPL(m *agent.Manager, inst *agent.Instance, out io.Writer, frame time.Duration) *repl {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	return &repl{manager: m, agent: inst, out: &syncWriter{w: out}, frame: frame}
}

var errQuit = errors.New("quit")

func (r *repl) run(ctx context.Context, in io.Reader) error {
	var lines <-chan string
	if in != nil {
		lines = readLines(in)
	}
	ticker := time.NewTicker(r.frame)
	defer ticker.Stop()

	fmt.Fprintf(r.out, "agentdash %s - task manager %s\n", Version, r.agent.ID().Short())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if r.exitOnEOF {
					return nil
				}
				continue
			}
			if err := r.handle(line); errors.Is(err, errQuit) {
				return nil
			}
		case <-ticker.C:
			r.manager.PollAll()
			r.flush()
		}
	}
}

func readLines(in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func (r *repl) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		r.report(r.agent.Send(line))
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/cancel":
		if r.agent.Cancel() {
			fmt.Fprintln(r.out, "* cancellation requested")
		} else {
			fmt.Fprintln(r.out, "* nothing to cancel")
		}
	case "/clear":
		r.agent.ClearConversation()
		r.printed = 0
		fmt.Fprintln(r.out, "* conversation cleared")
	case "/level":
		level, err := types.ParseLogLevel(strings.TrimSpace(arg))
		if err != nil {
			fmt.Fprintf(r.out, "! %v\n", err)
			return nil
		}
		r.agent.SetLogLevel(level)
		fmt.Fprintf(r.out, "* log level %s\n", level)
	case "/inject":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			fmt.Fprintln(r.out, "! usage: /inject <correction>")
			return nil
		}
		r.report(r.agent.InjectMessage(injection.Correction(arg).Format()))
	default:
		fmt.Fprintf(r.out, "! unknown command %s\n", cmd)
	}
	return nil
}

func (r *repl) report(err error) {
	switch {
	case errors.Is(err, agent.ErrAgentBusy):
		fmt.Fprintln(r.out, "! agent is busy; /cancel stops the running turn")
	case err != nil:
		fmt.Fprintf(r.out, "! %v\n", err)
	}
}

// flush prints assistant messages appended since the last frame and the
// current status line when it changes.
func (r *repl) flush() {
	msgs := r.agent.Messages()
	if len(msgs) < r.printed {
		r.printed = 0
	}
	for _, m := range msgs[r.printed:] {
		if m.Role == types.RoleAssistant {
			fmt.Fprintf(r.out, "\n%s\n\n", m.Content)
		}
	}
	r.printed = len(msgs)

	if s := r.agent.StatusMessage(); s != r.status {
		r.status = s
		if s != "" {
			fmt.Fprintf(r.out, "... %s\n", s)
		}
	}
}

// onEvent prints tool and worker activity from the event bus.
func (r *repl) onEvent(e agent.Event) {
	id := e.AgentID.Short()
	switch e.Type {
	case agent.EventToolStarted:
		fmt.Fprintf(r.out, "  [%s] %s started\n", id, e.Tool)
	case agent.EventToolCompleted:
		fmt.Fprintf(r.out, "  [%s] %s done in %s\n", id, e.Tool, e.Elapsed.Round(time.Millisecond))
	case agent.EventToolFailed:
		fmt.Fprintf(r.out, "  [%s] %s failed: %s\n", id, e.Tool, firstLine(e.Message))
	case agent.EventSwitchToAgent:
		fmt.Fprintf(r.out, "  [%s] worker started\n", id)
	case agent.EventAgentCompleted:
		if !e.ParentID.IsZero() {
			fmt.Fprintf(r.out, "  [%s] worker finished (success=%t)\n", id, e.Success)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
