// Package retry implements exponential backoff with jitter, shared by the
// error recovery and database recovery services.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Policy defines retry behavior.
type Policy struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	Exponential          bool          `yaml:"exponential"`
	Jitter               bool          `yaml:"jitter"`
	RetryablePatterns    []string      `yaml:"retryable_patterns"`
	NonRetryablePatterns []string      `yaml:"non_retryable_patterns"`
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
	Exponential: true,
	Jitter:      true,
	RetryablePatterns: []string{
		"econnreset", "etimedout", "enotfound", "connection",
		"timeout", "network", "temporarily unavailable",
	},
	NonRetryablePatterns: []string{
		"validation", "unauthorized", "forbidden", "not found",
		"unique constraint", "foreign key constraint",
	},
}

// Delay returns the backoff before attempt (0-indexed retry count):
// min(base * 2^attempt, max), plus up to 10% jitter when enabled.
func (p Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	if p.Exponential {
		delay = float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay += delay * 0.1 * rand.Float64()
	}
	return time.Duration(delay)
}

// Retryable reports whether err is worth retrying under this policy.
// Non-retryable patterns win over retryable ones; an error matching
// neither list defaults to retryable.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, pattern := range p.NonRetryablePatterns {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	for _, pattern := range p.RetryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return true
}

// Attempt describes one attempt reported through the OnAttempt callback.
type Attempt struct {
	Number   int
	Err      error
	Duration time.Duration
}

// Do runs op up to MaxAttempts times, sleeping Delay between attempts.
// It stops early when the error is non-retryable or ctx is done, and
// reports every attempt through onAttempt (nil is fine). Returns the last
// error when all attempts fail.
func Do(ctx context.Context, op func(ctx context.Context) error, p Policy, onAttempt func(Attempt)) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		start := time.Now()
		err := op(ctx)
		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt + 1, Err: err, Duration: time.Since(start)})
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
