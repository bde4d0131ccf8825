package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Agent:     DefaultAgentConfig(),
		Sandbox:   DefaultSandboxConfig(),
		VFS:       DefaultVFSConfig(),
		Bedrock:   DefaultBedrockConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Server:    DefaultServerConfig(),
		AgentLog:  DefaultAgentLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultLogConfig returns the default process logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentdash",
		SampleRate:   0.1,
	}
}

// DefaultAgentConfig returns the default agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		LogLevel:                 "debug",
		Telemetry:                false,
		RecommendedLayers:        true,
		TokenThreshold:           100_000,
		UseTokenizer:             false,
		AutoAnalysis:             false,
		ManagerMaxCycles:         100,
		ManagerMaxToolIterations: 1000,
		WorkerMaxCycles:          20,
		WorkerMaxToolIterations:  200,
		FrameInterval:            16 * time.Millisecond,
		TranscriptQueueSize:      256,
	}
}

// DefaultSandboxConfig returns the default sandbox limits.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		HeapLimitBytes: 256 * 1024 * 1024,
		Timeout:        30 * time.Second,
		CaptureConsole: true,
		MaxReadBytes:   100 * 1024,
	}
}

// DefaultVFSConfig returns the default VFS configuration.
func DefaultVFSConfig() VFSConfig {
	return VFSConfig{
		MaxSize:     100 * 1024 * 1024,
		SnapshotTTL: 24 * time.Hour,
	}
}

// DefaultBedrockConfig returns the default model configuration.
func DefaultBedrockConfig() BedrockConfig {
	return BedrockConfig{
		Region:            "us-east-1",
		ModelID:           "anthropic.claude-3-5-sonnet-20241022-v2:0",
		MaxTokens:         4096,
		Temperature:       0.7,
		RequestsPerSecond: 2,
		Burst:             4,
		Timeout:           5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "agentdash:vfs:",
	}
}

// DefaultDatabaseConfig returns the default transcript database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentdash",
		Name:            "agentdash.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultServerConfig returns the default HTTP configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:8787",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  64,
	}
}

// DefaultAgentLogConfig returns the default per-agent log configuration.
func DefaultAgentLogConfig() AgentLogConfig {
	return AgentLogConfig{
		Enabled: true,
		Dir:     "logs/agents",
		Keep:    50,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentdash",
	}
}
