package models

import (
	"time"

	"github.com/pollyhq/ratekeeper/pkg/constants"
)

// Verdict is the outcome of a single rate limit check. It is ephemeral and
// never persisted; quota exhaustion is ordinary return data, not an error.
type Verdict struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Type distinguishes burst rejections from standard rule rejections.
	Type constants.LimitType

	// Limit is the quota of the rule that produced this verdict.
	Limit int

	// Remaining is the quota left in the current window, never negative.
	Remaining int

	// ResetTime is when the quota replenishes. For sliding windows this is
	// an upper-bound approximation (now + window), acceptable for
	// Retry-After guidance.
	ResetTime time.Time

	// Message carries the client-facing rejection text when Allowed is false.
	Message string

	// Unavailable is set when strict mode turned a store failure into a
	// rejection. The HTTP layer maps it to 503 instead of 429.
	Unavailable bool

	// Degraded is set when the store failed and the fail-open policy let
	// the request through without accounting.
	Degraded bool
}

// RetryAfter returns the whole seconds until ResetTime, at least 1 for
// rejected verdicts so clients always back off.
func (v Verdict) RetryAfter(now time.Time) int {
	secs := int(v.ResetTime.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AllowAll returns an unconditional pass verdict for a rule, used for the
// disabled-limiter escape hatch and whitelisted clients. It touches no
// counters.
func AllowAll(rule Rule, now time.Time) Verdict {
	return Verdict{
		Allowed:   true,
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: rule.Requests,
		ResetTime: now.Add(rule.Window),
	}
}
