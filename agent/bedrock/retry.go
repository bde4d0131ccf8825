package bedrock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// RetryConfig controls backoff for transient model errors.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryConfig returns 3 retries starting at 1s, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

var retryableCodes = map[string]bool{
	"ThrottlingException":         true,
	"ServiceUnavailableException": true,
	"ModelNotReadyException":      true,
	"ModelTimeoutException":       true,
	"InternalServerException":     true,
	"TooManyRequestsException":    true,
}

// Retryable reports whether a Converse error is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return retryableCodes[apiErr.ErrorCode()]
	}
	return false
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

func (c RetryConfig) do(ctx context.Context, logger *zap.Logger, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.delay(attempt)
			logger.Debug("retrying model call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			return err
		}
		logger.Warn("model call failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return fmt.Errorf("model call failed after %d retries: %w", c.MaxRetries, lastErr)
}
