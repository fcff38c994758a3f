package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

type FailoverReason string

const (
	FailoverAuth         FailoverReason = "auth"
	FailoverBilling      FailoverReason = "billing"
	FailoverRateLimit    FailoverReason = "rate_limit"
	FailoverTimeout      FailoverReason = "timeout"
	FailoverConnection   FailoverReason = "connection"
	FailoverServerError  FailoverReason = "server_error"
	FailoverUnavailable  FailoverReason = "unavailable"
	FailoverModelInvalid FailoverReason = "model_invalid"
	FailoverFormat       FailoverReason = "format"
	FailoverUnknown      FailoverReason = "unknown"
)

// DefaultRetryableReasons is the closed set of transient failure kinds.
var DefaultRetryableReasons = map[FailoverReason]bool{
	FailoverRateLimit:   true,
	FailoverTimeout:     true,
	FailoverConnection:  true,
	FailoverServerError: true,
	FailoverUnavailable: true,
}

// FailoverError is a provider failure tagged with its classified reason.
type FailoverError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Wrapped  error
}

func (e *FailoverError) Error() string {
	return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Reason, e.Wrapped)
}

func (e *FailoverError) Unwrap() error { return e.Wrapped }

// IsRetriable reports whether the failure is transient.
func (e *FailoverError) IsRetriable() bool {
	return DefaultRetryableReasons[e.Reason]
}

var statusPattern = regexp.MustCompile(`(?i)status(?:\s*code)?\s*[:=]?\s*(\d{3})`)

// ClassifyError maps err onto a FailoverReason. It returns nil for a nil
// error and for context.Canceled, which is a caller abort rather than a
// provider failure.
func ClassifyError(err error, provider, model string) *FailoverError {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	var fe *FailoverError
	if errors.As(err, &fe) {
		return fe
	}

	wrap := func(reason FailoverReason, status int) *FailoverError {
		return &FailoverError{Reason: reason, Provider: provider, Model: model, Status: status, Wrapped: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(FailoverTimeout, 0)
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return wrap(reasonForStatus(oaErr.StatusCode), oaErr.StatusCode)
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return wrap(reasonForStatus(anErr.StatusCode), anErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return wrap(FailoverTimeout, 0)
		}
		return wrap(FailoverConnection, 0)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return wrap(FailoverConnection, 0)
	}

	msg := strings.ToLower(err.Error())

	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil && code >= 400 {
			return wrap(reasonForStatus(code), code)
		}
	}

	return wrap(reasonForMessage(msg), 0)
}

func reasonForStatus(code int) FailoverReason {
	switch {
	case code == 401 || code == 403:
		return FailoverAuth
	case code == 402:
		return FailoverBilling
	case code == 408:
		return FailoverTimeout
	case code == 429:
		return FailoverRateLimit
	case code == 400 || code == 404 || code == 422:
		return FailoverModelInvalid
	case code == 503 || code == 529:
		return FailoverUnavailable
	case code == 504 || code == 524:
		return FailoverTimeout
	case code >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

var messagePatterns = []struct {
	reason   FailoverReason
	patterns []string
}{
	{FailoverRateLimit, []string{"rate limit", "rate_limit", "too many requests", "resource_exhausted"}},
	{FailoverUnavailable, []string{"overloaded", "service unavailable", "temporarily unavailable"}},
	{FailoverBilling, []string{"insufficient_quota", "billing", "payment required", "credit balance"}},
	{FailoverTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{FailoverConnection, []string{"connection refused", "connection reset", "no such host", "broken pipe", "eof"}},
	{FailoverAuth, []string{"invalid api key", "invalid_api_key", "unauthorized", "authentication"}},
	{FailoverModelInvalid, []string{"model not found", "does not exist", "unknown model", "invalid model"}},
	{FailoverServerError, []string{"internal server error", "bad gateway"}},
	{FailoverFormat, []string{"invalid request", "tool_use_id", "messages: "}},
}

func reasonForMessage(msg string) FailoverReason {
	for _, mp := range messagePatterns {
		for _, p := range mp.patterns {
			if strings.Contains(msg, p) {
				return mp.reason
			}
		}
	}
	return FailoverUnknown
}
