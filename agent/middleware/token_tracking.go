package middleware

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const (
	// DefaultSummaryThreshold is the token count past which the tracker
	// asks for a context summary.
	DefaultSummaryThreshold = 100_000
	// SummaryPrefix marks summary injections.
	SummaryPrefix = "[Context Summary]\n"

	defaultSummaryPrompt = "The conversation is getting long. Summarize the key facts, decisions and open tasks so far in a compact form."
)

// Estimator counts tokens in text.
type Estimator interface {
	Name() string
	Count(text string) int
}

// LenEstimator is the len/4 heuristic.
type LenEstimator struct{}

func (LenEstimator) Name() string          { return "len4" }
func (LenEstimator) Count(text string) int { return EstimateTokens(text) }

// TiktokenEstimator counts with a BPE encoding loaded on first use. If the
// encoding cannot be loaded it falls back to len/4.
type TiktokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenEstimator uses encoding, cl100k_base when empty.
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenEstimator{encoding: encoding}
}

func (t *TiktokenEstimator) Name() string { return "tiktoken:" + t.encoding }

func (t *TiktokenEstimator) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Err reports the encoding load failure, if any.
func (t *TiktokenEstimator) Err() error { return t.init() }

func (t *TiktokenEstimator) Count(text string) int {
	if err := t.init(); err != nil {
		return EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// TokenTrackingConfig configures TokenTracking.
type TokenTrackingConfig struct {
	Threshold     int
	LogTokens     bool
	InjectSummary bool
	SummaryPrompt string
	Estimator     Estimator
}

// DefaultTokenTrackingConfig returns a 100k threshold with token logging
// and no summary injection.
func DefaultTokenTrackingConfig() TokenTrackingConfig {
	return TokenTrackingConfig{
		Threshold: DefaultSummaryThreshold,
		LogTokens: true,
		Estimator: LenEstimator{},
	}
}

// TokenTracking counts tokens flowing through the agent and flags, once,
// when the conversation crosses the summary threshold.
type TokenTracking struct {
	Base
	cfg    TokenTrackingConfig
	logger *zap.Logger

	sent      atomic.Int64
	received  atomic.Int64
	triggered atomic.Bool
}

// NewTokenTracking builds the layer. Zero fields in cfg take defaults.
func NewTokenTracking(cfg TokenTrackingConfig, logger *zap.Logger) *TokenTracking {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSummaryThreshold
	}
	if cfg.Estimator == nil {
		cfg.Estimator = LenEstimator{}
	}
	if cfg.SummaryPrompt == "" {
		cfg.SummaryPrompt = defaultSummaryPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenTracking{cfg: cfg, logger: logger.With(zap.String("layer", "token_tracking"))}
}

func (t *TokenTracking) Name() string { return "token_tracking" }

func (t *TokenTracking) PreSend(message string, ctx Context) (string, error) {
	n := t.cfg.Estimator.Count(message)
	total := t.sent.Add(int64(n))
	if t.cfg.LogTokens {
		t.logger.Debug("tokens sent",
			zap.String("agent_id", ctx.AgentID.Short()),
			zap.Int("tokens", n),
			zap.Int64("sent_total", total))
	}
	return message, nil
}

func (t *TokenTracking) PostResponse(response string, ctx Context) (Action, error) {
	n := t.cfg.Estimator.Count(response)
	t.received.Add(int64(n))
	total := t.TotalTokens()
	if t.cfg.LogTokens {
		t.logger.Debug("tokens received",
			zap.String("agent_id", ctx.AgentID.Short()),
			zap.Int("tokens", n),
			zap.Int64("total", total))
	}

	if int64(ctx.TokenCount)+total <= int64(t.cfg.Threshold) {
		return PassThrough(), nil
	}
	if !t.triggered.CompareAndSwap(false, true) {
		return PassThrough(), nil
	}
	t.logger.Info("summary threshold reached",
		zap.String("agent_id", ctx.AgentID.Short()),
		zap.Int64("total", total),
		zap.Int("threshold", t.cfg.Threshold))
	if t.cfg.InjectSummary {
		return InjectFollowUp(SummaryPrefix + t.cfg.SummaryPrompt), nil
	}
	return PassThrough(), nil
}

func (t *TokenTracking) SentTokens() int64     { return t.sent.Load() }
func (t *TokenTracking) ReceivedTokens() int64 { return t.received.Load() }
func (t *TokenTracking) TotalTokens() int64    { return t.sent.Load() + t.received.Load() }

// SummaryTriggered reports whether the threshold has been crossed.
func (t *TokenTracking) SummaryTriggered() bool { return t.triggered.Load() }

// Reset zeroes the counters and re-arms the summary trigger.
func (t *TokenTracking) Reset() {
	t.sent.Store(0)
	t.received.Store(0)
	t.triggered.Store(false)
}
