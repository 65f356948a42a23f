// Package service defines the domain-level contracts between the rate
// limiting engine and its collaborators: the counter store, the identity
// resolver and the audit sink. Implementations live under
// internal/infrastructure.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
)

// CounterStore is the narrow contract the window algorithms require from
// the external key-value store. All methods must be safe for concurrent use
// and bounded by the store adapter's own timeouts; the engine holds no
// in-process mutable counter state.
type CounterStore interface {
	// FixedIncr atomically increments the counter at key, setting the
	// expiry to window only on first creation, and returns the
	// post-increment count together with the remaining TTL.
	FixedIncr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// FixedPeek reads a fixed-window counter without mutating it. A
	// missing key yields count 0.
	FixedPeek(ctx context.Context, key string) (count int64, ttl time.Duration, err error)

	// SlidingEval atomically prunes entries older than now-window, counts
	// the survivors and, only if the count is below limit, records the
	// current request. It returns the count before any addition, so
	// rejected requests never consume quota. The prune/count/add sequence
	// executes as a single unit against the store.
	SlidingEval(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (countBefore int64, err error)

	// SlidingPeek counts live entries in the trailing window without
	// recording anything.
	SlidingPeek(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// Keys returns the keys matching a glob-style pattern. Used only by
	// admin introspection, never on the request hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes counter entries outright and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// IdentityResolver derives the stable client identity for a request and
// answers whitelist membership.
type IdentityResolver interface {
	// Resolve produces the identity for a request. userID may be empty for
	// anonymous clients.
	Resolve(r *http.Request, userID string) models.Identity

	// ClientIP resolves only the client address, honoring trusted proxies
	// and falling back to a shared loopback bucket when nothing usable is
	// present.
	ClientIP(r *http.Request) string

	// IsWhitelisted reports whether ip matches the exact or CIDR whitelist.
	IsWhitelisted(ip string) bool
}

// RateLimitService is the decision facade request handlers call.
type RateLimitService interface {
	// Check runs the full pass: identity resolution, whitelist
	// short-circuit, burst protection, rule lookup and window evaluation.
	// customID optionally narrows the identity (e.g. a poll ID). Store
	// failures are absorbed per the fail-open/fail-closed policy; Check
	// never returns an error.
	Check(ctx context.Context, r *http.Request, op models.Operation, customID string) models.Verdict

	// Status reports the current counters for an IP and operation without
	// incrementing anything.
	Status(ctx context.Context, ip string, op models.Operation) (models.Verdict, error)

	// StatusAll runs Status for every known operation.
	StatusAll(ctx context.Context, ip string) (map[models.Operation]models.Verdict, error)

	// Reset deletes all counter entries recorded for an IP, including
	// burst counters, and returns how many entries were removed.
	Reset(ctx context.Context, ip string) (int64, error)

	// Rule exposes the loaded policy for an operation.
	Rule(op models.Operation) (models.Rule, bool)
}

// AuditService records rejected requests and serves the aggregate stats for
// admin introspection. Record is best-effort: it must never delay or fail
// a verdict.
type AuditService interface {
	Record(ctx context.Context, v models.Violation)
	Stats(ctx context.Context, since time.Time, topN int) (*models.ViolationStats, error)
	Close() error
}
