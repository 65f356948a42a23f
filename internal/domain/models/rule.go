// Package models defines the core domain types of the ratekeeper service:
// operations, rules, verdicts and violation records.
package models

import (
	"fmt"
	"time"
)

// Operation identifies a rate-limited operation of the poll platform. The
// set is closed: unknown keys are rejected at config-validation time, never
// per request.
type Operation string

const (
	OpAPIGeneral     Operation = "api:general"
	OpPollsCreate    Operation = "polls:create"
	OpPollsVote      Operation = "polls:vote"
	OpPollsView      Operation = "polls:view"
	OpAuthLogin      Operation = "auth:login"
	OpAuthRegister   Operation = "auth:register"
	OpUploadAvatar   Operation = "upload:avatar"
	OpAnalyticsView  Operation = "analytics:view"
	OpAdminDashboard Operation = "admin:dashboard"
	OpAdminReset     Operation = "admin:reset-limits"
)

// AllOperations returns the closed operation set in a stable order.
func AllOperations() []Operation {
	return []Operation{
		OpAPIGeneral,
		OpPollsCreate,
		OpPollsVote,
		OpPollsView,
		OpAuthLogin,
		OpAuthRegister,
		OpUploadAvatar,
		OpAnalyticsView,
		OpAdminDashboard,
		OpAdminReset,
	}
}

// ParseOperation validates s against the closed operation set.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	for _, known := range AllOperations() {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown rate limit operation %q", s)
}

// Algorithm selects the window strategy for a rule.
type Algorithm string

const (
	// AlgorithmFixed is a hard counter reset at discrete window boundaries.
	AlgorithmFixed Algorithm = "fixed"

	// AlgorithmSliding counts requests in a continuously moving trailing
	// interval. Rejected requests never consume quota.
	AlgorithmSliding Algorithm = "sliding"
)

// ParseAlgorithm validates s as a window algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmFixed:
		return AlgorithmFixed, nil
	case AlgorithmSliding:
		return AlgorithmSliding, nil
	}
	return "", fmt.Errorf("unknown rate limit algorithm %q", s)
}

// Rule is the static policy for one operation. Rules are immutable after
// config load.
type Rule struct {
	Key       Operation
	Requests  int
	Window    time.Duration
	Algorithm Algorithm
	Message   string
}

// Validate enforces the rule invariants: positive quota and window.
func (r Rule) Validate() error {
	if r.Requests < 1 {
		return fmt.Errorf("rule %s: requests must be >= 1, got %d", r.Key, r.Requests)
	}
	if r.Window < time.Second {
		return fmt.Errorf("rule %s: window must be >= 1s, got %s", r.Key, r.Window)
	}
	if r.Algorithm != AlgorithmFixed && r.Algorithm != AlgorithmSliding {
		return fmt.Errorf("rule %s: unknown algorithm %q", r.Key, r.Algorithm)
	}
	return nil
}

// WindowSeconds returns the window length in whole seconds.
func (r Rule) WindowSeconds() int {
	return int(r.Window / time.Second)
}

// ExceededMessage returns the client-facing rejection text, honoring a
// per-rule override.
func (r Rule) ExceededMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("Rate limit exceeded. Max %d requests per %d seconds.", r.Requests, r.WindowSeconds())
}

// BurstExceededMessage returns the rejection text for the burst protector.
func BurstExceededMessage(limit int, window time.Duration) string {
	return fmt.Sprintf("Burst limit exceeded. Max %d requests in %d seconds.", limit, int(window/time.Second))
}

// DefaultRules returns the built-in rule table of the poll platform.
// Sliding windows cover the high-frequency read/vote paths; coarser
// operations use fixed windows.
func DefaultRules() map[Operation]Rule {
	rules := map[Operation]Rule{
		OpAPIGeneral:     {Requests: 100, Window: 60 * time.Second, Algorithm: AlgorithmSliding},
		OpPollsCreate:    {Requests: 5, Window: 300 * time.Second, Algorithm: AlgorithmFixed},
		OpPollsVote:      {Requests: 10, Window: 60 * time.Second, Algorithm: AlgorithmSliding},
		OpPollsView:      {Requests: 50, Window: 60 * time.Second, Algorithm: AlgorithmSliding},
		OpAuthLogin:      {Requests: 5, Window: 300 * time.Second, Algorithm: AlgorithmFixed},
		OpAuthRegister:   {Requests: 3, Window: 3600 * time.Second, Algorithm: AlgorithmFixed},
		OpUploadAvatar:   {Requests: 3, Window: 300 * time.Second, Algorithm: AlgorithmFixed},
		OpAnalyticsView:  {Requests: 100, Window: 300 * time.Second, Algorithm: AlgorithmSliding},
		OpAdminDashboard: {Requests: 50, Window: 60 * time.Second, Algorithm: AlgorithmFixed},
		OpAdminReset:     {Requests: 10, Window: 300 * time.Second, Algorithm: AlgorithmFixed},
	}
	for op, rule := range rules {
		rule.Key = op
		rules[op] = rule
	}
	return rules
}
