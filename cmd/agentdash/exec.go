package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/agent/sandbox"
	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/internal/vfs"
)

var errScriptFailed = errors.New("script failed")

func runExec(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "Override the sandbox timeout")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	script, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	res := execScript(ctx, cfg, string(script), *timeout, logger)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return errScriptFailed
	}
	return nil
}

// execScript runs script against a fresh VFS with the default directories.
func execScript(ctx context.Context, cfg *config.Config, script string, timeout time.Duration, logger *zap.Logger) *sandbox.Result {
	registry := vfs.NewRegistry(logger)
	id, _ := registry.Create(cfg.VFS.MaxSize)
	defer registry.Deregister(id)

	sc := sandbox.ConfigFrom(cfg.Sandbox)
	if timeout > 0 {
		sc.Timeout = timeout
	}
	exec := sandbox.NewExecutor(sc,
		sandbox.WithLogger(logger),
		sandbox.WithVFS(registry),
	)
	return exec.Execute(ctxkeys.WithVFSID(ctx, id), script)
}
