// Command agentdash runs the agent execution core from a terminal.
//
// Usage:
//
//	agentdash chat [--config file]          # interactive task manager session
//	agentdash exec [--config file] <file>   # run a script in the sandbox
//	agentdash serve [--config file]         # health, metrics and UI event stream
//	agentdash version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentdash/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage makes main print usage and exit 2.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx, os.Args[2:])
	case "exec":
		err = runExec(ctx, os.Args[2:], os.Stdout)
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		err = errUsage
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		printUsage()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "agentdash %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig parses the shared --config flag plus any command flags already
// defined on fs, then loads and validates the configuration.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func printVersion() {
	fmt.Printf("agentdash %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`agentdash - agent execution core

Usage:
  agentdash <command> [options]

Commands:
  chat      Talk to a task manager agent backed by Bedrock
  exec      Run a JavaScript file in the sandbox and print the result as JSON
  serve     Run a task manager with /healthz, /metrics and /events
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Chat commands:
  /cancel           Cancel the running turn
  /clear            Clear the conversation
  /level <level>    Set the runtime log level (off, info, debug, trace)
  /quit             Exit

Examples:
  agentdash chat --config agentdash.yaml
  agentdash exec scripts/regions.js
  AGENTDASH_SERVER_ADDR=127.0.0.1:9000 agentdash serve`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
