package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/agent/tools"
	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/internal/telemetry"
	"github.com/BaSui01/agentdash/internal/tlsutil"
	"github.com/BaSui01/agentdash/types"
)

// ClientFunc builds a model client from a resolved AWS config.
type ClientFunc func(aws.Config) ConverseAPI

// Factory builds a Runtime per agent. It implements agent.RuntimeFactory.
type Factory struct {
	bedrock   config.BedrockConfig
	agentCfg  config.AgentConfig
	deps      tools.Deps
	logger    *zap.Logger
	retry     RetryConfig
	newClient ClientFunc
	now       func() time.Time
	limiter   *rate.Limiter
}

var _ agent.RuntimeFactory = (*Factory)(nil)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClientFunc replaces the Bedrock client constructor.
func WithClientFunc(fn ClientFunc) FactoryOption {
	return func(f *Factory) { f.newClient = fn }
}

// WithRetry overrides DefaultRetryConfig.
func WithRetry(r RetryConfig) FactoryOption {
	return func(f *Factory) { f.retry = r }
}

// WithFactoryClock overrides the time used in system prompts.
func WithFactoryClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// NewFactory returns a factory whose runtimes share one request limiter.
// deps.VFSID is ignored; each runtime binds to its spec's VFS.
func NewFactory(bc config.BedrockConfig, ac config.AgentConfig, deps tools.Deps, opts ...FactoryOption) *Factory {
	f := &Factory{
		bedrock:  bc,
		agentCfg: ac,
		deps:     deps,
		logger:   deps.Logger,
		retry:    DefaultRetryConfig(),
		now:      time.Now,
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.newClient = func(cfg aws.Config) ConverseAPI { return bedrockruntime.NewFromConfig(cfg) }
	if bc.RequestsPerSecond > 0 {
		burst := bc.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(bc.RequestsPerSecond), burst)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NewRuntime implements agent.RuntimeFactory.
func (f *Factory) NewRuntime(ctx context.Context, spec agent.RuntimeSpec) (agent.Runtime, error) {
	creds := spec.Credentials
	if !creds.Valid() {
		return nil, errors.New("missing AWS credentials: access key, secret key and region are required")
	}
	if creds.Expired(f.now()) {
		return nil, fmt.Errorf("AWS credentials expired at %s", creds.Expires.Format(time.RFC3339))
	}

	awsCfg, err := f.awsConfig(ctx, creds)
	if err != nil {
		return nil, err
	}

	logger := f.logger.With(
		zap.String("agent_id", spec.AgentID.String()),
		zap.String("agent_type", spec.AgentType.String()),
	)
	deps := f.deps
	deps.Logger = logger
	deps.VFSID = spec.VFSID
	registry, err := tools.NewRegistry(spec.AgentType, deps)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	return New(f.newClient(awsCfg), Options{
		ModelID:      f.bedrock.ModelID,
		SystemPrompt: tools.SystemPrompt(spec.AgentType, f.now()),
		Registry:     registry,
		Limits:       LimitsFor(spec.AgentType, f.agentCfg),
		MaxTokens:    f.bedrock.MaxTokens,
		Temperature:  f.bedrock.Temperature,
		Limiter:      f.limiter,
		Retry:        f.retry,
		Tracer:       telemetry.Tracer(spec.Telemetry),
		Logger:       logger,
		LogLevel:     spec.LogLevel,
	})
}

func (f *Factory) awsConfig(ctx context.Context, creds types.Credentials) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)),
		awsconfig.WithHTTPClient(tlsutil.HTTPClient(f.bedrock.Timeout)),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
