// =============================================================================
// AgentDash configuration loader
// =============================================================================
// YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentdash.yaml").
//	    WithEnvPrefix("AGENTDASH").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration structure
// =============================================================================

// Config is the complete AgentDash configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Agent     AgentConfig     `yaml:"agent" env:"AGENT"`
	Sandbox   SandboxConfig   `yaml:"sandbox" env:"SANDBOX"`
	VFS       VFSConfig       `yaml:"vfs" env:"VFS"`
	Bedrock   BedrockConfig   `yaml:"bedrock" env:"BEDROCK"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	AgentLog  AgentLogConfig  `yaml:"agent_log" env:"AGENT_LOG"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// AgentConfig configures agent instances.
type AgentConfig struct {
	// Runtime verbosity: off, info, debug, trace
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// Open spans for turns, model calls and tool calls
	Telemetry bool `yaml:"telemetry" env:"TELEMETRY"`
	// Install the Logging and TokenTracking layers on new agents
	RecommendedLayers bool `yaml:"recommended_layers" env:"RECOMMENDED_LAYERS"`
	// TokenTracking summary threshold
	TokenThreshold int `yaml:"token_threshold" env:"TOKEN_THRESHOLD"`
	// Use the tiktoken estimator instead of len/4
	UseTokenizer bool `yaml:"use_tokenizer" env:"USE_TOKENIZER"`
	// Enable the AutoAnalysis layer
	AutoAnalysis bool `yaml:"auto_analysis" env:"AUTO_ANALYSIS"`

	ManagerMaxCycles         int `yaml:"manager_max_cycles" env:"MANAGER_MAX_CYCLES"`
	ManagerMaxToolIterations int `yaml:"manager_max_tool_iterations" env:"MANAGER_MAX_TOOL_ITERATIONS"`
	WorkerMaxCycles          int `yaml:"worker_max_cycles" env:"WORKER_MAX_CYCLES"`
	WorkerMaxToolIterations  int `yaml:"worker_max_tool_iterations" env:"WORKER_MAX_TOOL_ITERATIONS"`

	// Poll cadence of the serve frame loop
	FrameInterval time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
	// Transcript recorder queue
	TranscriptQueueSize int `yaml:"transcript_queue_size" env:"TRANSCRIPT_QUEUE_SIZE"`
}

// SandboxConfig configures the script sandbox.
type SandboxConfig struct {
	HeapLimitBytes int64         `yaml:"heap_limit_bytes" env:"HEAP_LIMIT_BYTES"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CaptureConsole bool          `yaml:"capture_console" env:"CAPTURE_CONSOLE"`
	// Files above this size need an explicit offset/length
	MaxReadBytes int `yaml:"max_read_bytes" env:"MAX_READ_BYTES"`
}

// VFSConfig configures virtual file systems.
type VFSConfig struct {
	MaxSize     int           `yaml:"max_size" env:"MAX_SIZE"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" env:"SNAPSHOT_TTL"`
}

// BedrockConfig configures the model runtime.
type BedrockConfig struct {
	Region            string        `yaml:"region" env:"REGION"`
	Profile           string        `yaml:"profile" env:"PROFILE"`
	ModelID           string        `yaml:"model_id" env:"MODEL_ID"`
	MaxTokens         int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature       float64       `yaml:"temperature" env:"TEMPERATURE"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"BURST"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig configures the VFS snapshot store.
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the transcript store.
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// AgentLogConfig configures per-agent log files.
type AgentLogConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR"`
	Keep    int    `yaml:"keep" env:"KEEP"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration (builder style).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTDASH env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTDASH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration: defaults, then the YAML file, then the
// environment, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults plus environment overrides.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Agent.LogLevel) {
	case "off", "info", "debug", "trace":
	default:
		errs = append(errs, fmt.Errorf("agent.log_level %q is not one of off, info, debug, trace", c.Agent.LogLevel))
	}
	if c.Agent.ManagerMaxCycles <= 0 || c.Agent.WorkerMaxCycles <= 0 {
		errs = append(errs, errors.New("agent max cycles must be positive"))
	}
	if c.Agent.ManagerMaxToolIterations <= 0 || c.Agent.WorkerMaxToolIterations <= 0 {
		errs = append(errs, errors.New("agent max tool iterations must be positive"))
	}
	if c.Agent.FrameInterval <= 0 {
		errs = append(errs, errors.New("agent.frame_interval must be positive"))
	}

	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("sandbox.timeout must be positive"))
	}
	if c.Sandbox.HeapLimitBytes <= 0 {
		errs = append(errs, errors.New("sandbox.heap_limit_bytes must be positive"))
	}
	if c.Sandbox.MaxReadBytes <= 0 {
		errs = append(errs, errors.New("sandbox.max_read_bytes must be positive"))
	}

	if c.VFS.MaxSize <= 0 {
		errs = append(errs, errors.New("vfs.max_size must be positive"))
	}

	if c.Bedrock.Temperature < 0 || c.Bedrock.Temperature > 1 {
		errs = append(errs, errors.New("bedrock.temperature must be between 0 and 1"))
	}
	if c.Bedrock.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("bedrock.requests_per_second must be positive"))
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
		}
	}

	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the driver-specific connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
