package bedrock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentdash/agent"
	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/types"
)

// refreshWindow is how long before expiry cached credentials are renewed.
const refreshWindow = time.Minute

// ChainCredentials resolves credentials from the AWS default chain
// (environment, shared profile, instance role). Concurrent lookups share
// one resolution and results are cached until shortly before expiry.
type ChainCredentials struct {
	region   string
	profile  string
	provider aws.CredentialsProvider
	now      func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	cached types.Credentials
}

var _ agent.CredentialSource = (*ChainCredentials)(nil)

// ChainOption configures ChainCredentials.
type ChainOption func(*ChainCredentials)

// WithProvider skips the default chain and uses p.
func WithProvider(p aws.CredentialsProvider) ChainOption {
	return func(c *ChainCredentials) { c.provider = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ChainOption {
	return func(c *ChainCredentials) { c.now = now }
}

// NewChainCredentials builds a credential source for cfg's region and profile.
func NewChainCredentials(cfg config.BedrockConfig, opts ...ChainOption) *ChainCredentials {
	c := &ChainCredentials{region: cfg.Region, profile: cfg.Profile, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Credentials implements agent.CredentialSource.
func (c *ChainCredentials) Credentials(ctx context.Context) (types.Credentials, error) {
	c.mu.Lock()
	cached := c.cached
	c.mu.Unlock()
	if cached.Valid() && !cached.Expired(c.now().Add(refreshWindow)) {
		return cached, nil
	}

	v, err, _ := c.group.Do("credentials", func() (any, error) {
		return c.resolve(ctx)
	})
	if err != nil {
		return types.Credentials{}, err
	}
	creds := v.(types.Credentials)
	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *ChainCredentials) resolve(ctx context.Context) (types.Credentials, error) {
	provider := c.provider
	region := c.region
	if provider == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if c.profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(c.profile))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return types.Credentials{}, fmt.Errorf("load aws config: %w", err)
		}
		if cfg.Credentials == nil {
			return types.Credentials{}, fmt.Errorf("no aws credentials found")
		}
		provider = cfg.Credentials
		if region == "" {
			region = cfg.Region
		}
	}

	ac, err := provider.Retrieve(ctx)
	if err != nil {
		return types.Credentials{}, fmt.Errorf("retrieve aws credentials: %w", err)
	}
	creds := types.Credentials{
		AccessKeyID:     ac.AccessKeyID,
		SecretAccessKey: ac.SecretAccessKey,
		SessionToken:    ac.SessionToken,
		Region:          region,
	}
	if ac.CanExpire {
		creds.Expires = ac.Expires
	}
	if !creds.Valid() {
		return types.Credentials{}, fmt.Errorf("incomplete aws credentials (region %q)", region)
	}
	return creds, nil
}
