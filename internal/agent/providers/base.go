package providers

import (
	"context"
	"strings"
	"time"

	"github.com/agentcore/nexus/internal/agent"
	"github.com/agentcore/nexus/internal/backoff"
)

// retryOp is one attempt at a provider call. attempt is 1-indexed;
// lastErr is the previous attempt's error (nil on the first attempt),
// given back so op can apply the rate-limit temperature nudge (§4.4)
// without backoffRetry needing to know anything about request shape.
type retryOp func(attempt int, lastErr error) error

// backoffRetry runs op up to maxRetries times with exponential backoff +
// jitter (internal/backoff.DefaultPolicy). A ContextWindowExceededError
// is never retried here - it escalates to the Agent immediately (§4.4).
// Everything else stops retrying once ClassifyError (or a NoResponseError)
// says the error should not trigger a failover/retry.
func backoffRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, op retryOp) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	policy := backoff.DefaultPolicy()
	if baseDelay > 0 {
		policy.InitialMs = float64(baseDelay / time.Millisecond)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(attempt, lastErr)
		if lastErr == nil {
			return nil
		}
		if agent.IsContextWindowExceeded(lastErr) {
			return lastErr
		}
		if !isRetryableCallErr(lastErr) {
			return lastErr
		}
		if attempt < maxRetries {
			if err := backoff.SleepWithBackoff(ctx, policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// isRetryableCallErr extends ClassifyError's taxonomy with the
// adapter-level NoResponseError, which never reaches ClassifyError's
// string matching since it never carries provider error text.
func isRetryableCallErr(err error) bool {
	if agent.IsNoResponse(err) {
		return true
	}
	return ClassifyError(err).IsRetryable()
}

// nudgeTemperatureOnRateLimit implements §4.4's retry rule: when the
// previous attempt failed with a rate limit and temperature was 0, bump
// it slightly so a model that deterministically re-emits the same empty
// response on retry has a chance to produce something different.
func nudgeTemperatureOnRateLimit(temperature float64, lastErr error) float64 {
	if lastErr == nil || temperature != 0 {
		return temperature
	}
	if ClassifyError(lastErr) != FailoverRateLimit {
		return temperature
	}
	return 0.1
}

// normalizeModelName strips a provider alias prefix such as "anthropic/"
// or "openai/" so Supports can match against the bare model family name
// regardless of how the caller qualified it.
func normalizeModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// matchesAny reports whether name matches any of patterns, where a
// trailing "*" means prefix match and anything else means exact match.
// This is all the feature-detection table (§4.4) needs - model family
// names don't require full glob semantics.
func matchesAny(name string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(name, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if name == p {
			return true
		}
	}
	return false
}
