package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lidco/lidco/pkg/logger"
)

// humanDuration formats a time.Duration into a concise human-readable string.
// Examples: "45s", "4m32s", "1h5m", "2h0m".
func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// FallbackChain tries candidates in order until one succeeds.
type FallbackChain struct {
	cooldown *CooldownTracker
}

// FallbackCandidate represents one model/provider to try.
type FallbackCandidate struct {
	Provider string
	Model    string
}

func (c FallbackCandidate) Key() string { return ModelKey(c.Provider, c.Model) }

// FallbackResult contains the successful response and metadata about all attempts.
type FallbackResult struct {
	Response *LLMResponse
	Provider string
	Model    string
	Attempts []FallbackAttempt
}

// FallbackAttempt records one attempt in the fallback chain.
type FallbackAttempt struct {
	Provider string
	Model    string
	Error    error
	Reason   FailoverReason
	Duration time.Duration
	Skipped  bool // true if skipped due to cooldown
}

func NewFallbackChain(cooldown *CooldownTracker) *FallbackChain {
	return &FallbackChain{cooldown: cooldown}
}

// Execute runs the chain for a batch completion.
func (fc *FallbackChain) Execute(
	ctx context.Context,
	candidates []FallbackCandidate,
	run func(ctx context.Context, provider, model string) (*LLMResponse, error),
) (*FallbackResult, error) {
	resp, winner, attempts, err := runChain(ctx, fc, candidates, run)
	if err != nil {
		return nil, err
	}
	return &FallbackResult{
		Response: resp,
		Provider: winner.Provider,
		Model:    winner.Model,
		Attempts: attempts,
	}, nil
}

// runChain is the shared candidate loop for completions and streams.
//
//   - Candidates in cooldown are skipped while at least one other candidate
//     is available; if every candidate is cooling down all are tried.
//   - context.Canceled aborts immediately with no further candidates.
//   - Any other failure, retriable or not, is recorded and the next
//     candidate is tried. The retry budget is spent inside run.
//   - If all fail, a FallbackExhaustedError carrying every attempt is returned.
func runChain[T any](
	ctx context.Context,
	fc *FallbackChain,
	candidates []FallbackCandidate,
	run func(ctx context.Context, provider, model string) (T, error),
) (T, FallbackCandidate, []FallbackAttempt, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, FallbackCandidate{}, nil, errors.New("fallback: no candidates configured")
	}

	anyAvailable := false
	for _, c := range candidates {
		if fc.cooldown.IsAvailable(c.Key()) {
			anyAvailable = true
			break
		}
	}

	attempts := make([]FallbackAttempt, 0, len(candidates))

	for i, candidate := range candidates {
		if errors.Is(ctx.Err(), context.Canceled) {
			return zero, candidate, attempts, context.Canceled
		}

		key := candidate.Key()

		if anyAvailable && !fc.cooldown.IsAvailable(key) {
			remaining := fc.cooldown.CooldownRemaining(key)
			attempts = append(attempts, FallbackAttempt{
				Provider: candidate.Provider,
				Model:    candidate.Model,
				Skipped:  true,
				Reason:   FailoverRateLimit,
				Error:    fmt.Errorf("skipped (cooldown %s remaining)", humanDuration(remaining)),
			})
			continue
		}

		start := time.Now()
		out, err := run(ctx, candidate.Provider, candidate.Model)
		elapsed := time.Since(start)

		if err == nil {
			fc.cooldown.MarkSuccess(key)
			return out, candidate, attempts, nil
		}

		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
			attempts = append(attempts, FallbackAttempt{
				Provider: candidate.Provider,
				Model:    candidate.Model,
				Error:    err,
				Duration: elapsed,
			})
			return zero, candidate, attempts, context.Canceled
		}

		failErr := ClassifyError(err, candidate.Provider, candidate.Model)
		if failErr.IsRetriable() {
			fc.cooldown.MarkFailure(key, failErr.Reason)
		}
		attempts = append(attempts, FallbackAttempt{
			Provider: candidate.Provider,
			Model:    candidate.Model,
			Error:    err,
			Reason:   failErr.Reason,
			Duration: elapsed,
		})

		if i < len(candidates)-1 {
			logger.WarnCF("router", fmt.Sprintf("Model %s failed: %v. Trying next.", candidate.Model, err),
				map[string]any{
					"provider": candidate.Provider,
					"model":    candidate.Model,
					"reason":   string(failErr.Reason),
				})
		}
	}

	return zero, FallbackCandidate{}, attempts, &FallbackExhaustedError{Attempts: attempts}
}

// FallbackExhaustedError indicates all fallback candidates were tried and failed.
type FallbackExhaustedError struct {
	Attempts []FallbackAttempt
}

// LastError returns the most recent non-skipped failure.
func (e *FallbackExhaustedError) LastError() error {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if !e.Attempts[i].Skipped && e.Attempts[i].Error != nil {
			return e.Attempts[i].Error
		}
	}
	if len(e.Attempts) > 0 {
		return e.Attempts[len(e.Attempts)-1].Error
	}
	return nil
}

func (e *FallbackExhaustedError) Unwrap() error { return e.LastError() }

func (e *FallbackExhaustedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("All models failed. Last error: %v", e.LastError()))
	for i, a := range e.Attempts {
		if a.Skipped {
			sb.WriteString(fmt.Sprintf("\n  [%d] %s/%s: %v", i+1, a.Provider, a.Model, a.Error))
			continue
		}
		sb.WriteString(fmt.Sprintf("\n  [%d] %s/%s: %v (reason=%s, %s)",
			i+1, a.Provider, a.Model, a.Error, a.Reason, a.Duration.Round(time.Millisecond)))
	}
	return sb.String()
}
