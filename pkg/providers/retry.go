package providers

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
)

// RetryPolicy retries transient failures with bounded exponential backoff.
// Only errors whose classified reason is in Retryable are retried; anything
// else is returned immediately without sleeping.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
	Retryable  map[FailoverReason]bool

	// sleep and jitter are swapped out in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     true,
	}
}

func RetryPolicyFromConfig(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  time.Duration(cfg.BaseDelay * float64(time.Second)),
		MaxDelay:   time.Duration(cfg.MaxDelay * float64(time.Second)),
		Jitter:     cfg.Jitter,
	}
}

// Delay returns the un-jittered backoff before retry number attempt+1.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p *RetryPolicy) isRetryable(err error) bool {
	fe := ClassifyError(err, "", "")
	if fe == nil {
		return false
	}
	set := p.Retryable
	if set == nil {
		set = DefaultRetryableReasons
	}
	return set[fe.Reason]
}

func (p *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retry budget (MaxRetries retries after the first attempt) is spent. The
// last error is returned unchanged.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.isRetryable(err) || attempt == p.MaxRetries {
			return err
		}

		delay := p.Delay(attempt)
		if p.Jitter {
			f := 0.5 + rand.Float64()
			if p.jitter != nil {
				f = p.jitter()
			}
			delay = time.Duration(float64(delay) * f)
		}

		logger.WarnCF("retry", "Retrying after transient failure", map[string]any{
			"attempt":  attempt + 1,
			"max":      p.MaxRetries,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		if werr := p.wait(ctx, delay); werr != nil {
			return werr
		}
	}
	return lastErr
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, p *RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
