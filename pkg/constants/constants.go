// Package constants defines system-wide constants for the ratekeeper service.
package constants

import "time"

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type used for values stored in a request context.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation ID.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyUserID carries the authenticated user ID, when present.
	ContextKeyUserID ContextKey = "user_id"

	// ContextKeyAdminSubject carries the admin subject from a verified token.
	ContextKeyAdminSubject ContextKey = "admin_subject"
)

// ================================================================================
// Counter Key Prefixes
// ================================================================================

const (
	// KeyPrefixFixed prefixes fixed-window counter keys.
	KeyPrefixFixed = "ratelimit"

	// KeyPrefixSliding prefixes sliding-window sorted-set keys.
	KeyPrefixSliding = "sliding"

	// KeyPrefixBurst prefixes burst-protection keys (IP scoped).
	KeyPrefixBurst = "burst"
)

// ================================================================================
// Rate Limiting Defaults
// ================================================================================

const (
	// DefaultBurstLimit is the default burst-protection quota.
	DefaultBurstLimit = 50

	// DefaultBurstWindow is the default burst-protection window.
	DefaultBurstWindow = 10 * time.Second

	// FallbackClientIP is used when no usable address can be resolved from
	// a request. Unidentifiable clients share this bucket.
	FallbackClientIP = "127.0.0.1"

	// UserAgentFingerprintLen is the number of leading User-Agent bytes
	// folded into the anonymous identity fingerprint.
	UserAgentFingerprintLen = 50

	// IdentityHashLen is the number of hex characters kept from the
	// fingerprint hash. Truncated and non-reversible; no raw UA is stored.
	IdentityHashLen = 12
)

// ================================================================================
// Store Defaults
// ================================================================================

const (
	// StoreDialTimeout bounds counter-store connection establishment.
	StoreDialTimeout = 2 * time.Second

	// StoreOpTimeout bounds a single counter-store round trip. A check
	// that exceeds it is treated as a store failure, not a hung request.
	StoreOpTimeout = 500 * time.Millisecond

	// StoreMaxRetries bounds per-command retries inside the Redis client.
	StoreMaxRetries = 2
)

// ================================================================================
// Verdict Types
// ================================================================================

// LimitType distinguishes which layer produced a rejection.
type LimitType string

const (
	// LimitTypeStandard marks a verdict from a per-operation rule.
	LimitTypeStandard LimitType = "standard"

	// LimitTypeBurst marks a verdict from the IP burst protector.
	LimitTypeBurst LimitType = "burst"
)
