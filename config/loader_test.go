package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Agent.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.Timeout)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agentdash.yaml")

	yamlContent := `
agent:
  log_level: trace
  worker_max_cycles: 5
sandbox:
  timeout: 2s
  heap_limit_bytes: 1048576
bedrock:
  region: eu-west-1
  model_id: amazon.nova-pro-v1:0
redis:
  enabled: true
  addr: "redis.example.com:6379"
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.Agent.LogLevel)
	assert.Equal(t, 5, cfg.Agent.WorkerMaxCycles)
	assert.Equal(t, 100, cfg.Agent.ManagerMaxCycles)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, int64(1048576), cfg.Sandbox.HeapLimitBytes)
	assert.Equal(t, "eu-west-1", cfg.Bedrock.Region)
	assert.Equal(t, "amazon.nova-pro-v1:0", cfg.Bedrock.ModelID)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("agent: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTDASH_SANDBOX_TIMEOUT", "5s")
	t.Setenv("AGENTDASH_SANDBOX_CAPTURE_CONSOLE", "false")
	t.Setenv("AGENTDASH_AGENT_LOG_LEVEL", "info")
	t.Setenv("AGENTDASH_BEDROCK_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("AGENTDASH_LOG_OUTPUT_PATHS", "stdout, /tmp/agentdash.log")
	t.Setenv("AGENTDASH_AGENT_LOG_DIR", "/var/log/agentdash")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.False(t, cfg.Sandbox.CaptureConsole)
	assert.Equal(t, "info", cfg.Agent.LogLevel)
	assert.InDelta(t, 0.5, cfg.Bedrock.RequestsPerSecond, 0.0001)
	assert.Equal(t, []string{"stdout", "/tmp/agentdash.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "/var/log/agentdash", cfg.AgentLog.Dir)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "agentdash.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("vfs:\n  max_size: 1000\n"), 0o644))
	t.Setenv("AGENTDASH_VFS_MAX_SIZE", "2000")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.VFS.MaxSize)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("DASH_SERVER_ADDR", "0.0.0.0:9000")

	cfg, err := NewLoader().WithEnvPrefix("DASH").Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTDASH_SANDBOX_TIMEOUT", "not-a-duration")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Validators(t *testing.T) {
	wantErr := errors.New("nope")
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		WithValidator(func(*Config) error { return wantErr }).
		Load()
	assert.ErrorIs(t, err, wantErr)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.LogLevel = "verbose"
	cfg.Sandbox.Timeout = 0
	cfg.Bedrock.Temperature = 3
	cfg.Database.Enabled = true
	cfg.Database.Driver = "oracle"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.log_level")
	assert.Contains(t, err.Error(), "sandbox.timeout")
	assert.Contains(t, err.Error(), "bedrock.temperature")
	assert.Contains(t, err.Error(), "database.driver")
}

func TestMustLoad(t *testing.T) {
	assert.NotPanics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(db:5432)/n?parseTime=true", d.DSN())

	d.Driver = "sqlite"
	assert.Equal(t, "n", d.DSN())

	d.Driver = "unknown"
	assert.Empty(t, d.DSN())
}
