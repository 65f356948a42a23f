package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/monitoring"
	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

var _ service.RateLimitService = (*Limiter)(nil)

// unavailableMessage is the client-facing text for strict-mode rejections.
const unavailableMessage = "Rate limiting service unavailable"

// Limiter is the decision facade. It owns the check order: disabled escape
// hatch, whitelist, burst protection, then the per-operation rule. All
// counter state lives in the store; the limiter itself is stateless and
// safe for concurrent use.
type Limiter struct {
	enabled bool
	strict  bool
	burstOn bool
	burst   models.Rule
	rules   map[models.Operation]models.Rule

	store    service.CounterStore
	resolver service.IdentityResolver
	audit    service.AuditService
	metrics  *monitoring.Metrics
	tracer   trace.Tracer
	log      logger.Logger

	now func() time.Time
}

// New builds the limiter from configuration. The rule table is materialized
// once; invalid overrides refuse startup.
func New(
	cfg config.RateLimitConfig,
	store service.CounterStore,
	resolver service.IdentityResolver,
	audit service.AuditService,
	metrics *monitoring.Metrics,
	log logger.Logger,
) (*Limiter, error) {
	rules, err := cfg.BuildRules()
	if err != nil {
		return nil, err
	}

	burst := models.Rule{
		Key:       "burst",
		Requests:  cfg.Burst.Limit,
		Window:    cfg.Burst.Window,
		Algorithm: models.AlgorithmSliding,
	}
	if burst.Requests == 0 {
		burst.Requests = constants.DefaultBurstLimit
	}
	if burst.Window == 0 {
		burst.Window = constants.DefaultBurstWindow
	}
	if cfg.Burst.Enabled {
		if err := burst.Validate(); err != nil {
			return nil, errors.ErrConfig("rate_limit.burst: %v", err)
		}
	}

	return &Limiter{
		enabled:  cfg.Enabled,
		strict:   cfg.StrictMode,
		burstOn:  cfg.Burst.Enabled,
		burst:    burst,
		rules:    rules,
		store:    store,
		resolver: resolver,
		audit:    audit,
		metrics:  metrics,
		tracer:   otel.Tracer("ratekeeper/limiter"),
		log:      log.WithComponent("limiter"),
		now:      time.Now,
	}, nil
}

// burstEnabled reports whether the burst layer runs before rule checks.
func (l *Limiter) burstEnabled() bool {
	return l.burstOn && l.burst.Requests > 0 && l.burst.Window > 0
}

// Check implements service.RateLimitService. The authenticated user ID, when
// the caller established one, is read from the request context. Every check
// runs under its own span, attached to the request span when one exists.
func (l *Limiter) Check(ctx context.Context, r *http.Request, op models.Operation, customID string) models.Verdict {
	ctx, span := l.tracer.Start(ctx, "limiter.check",
		trace.WithAttributes(attribute.String("operation", string(op))))
	defer span.End()

	verdict := l.check(ctx, r, op, customID)
	span.SetAttributes(
		attribute.Bool("allowed", verdict.Allowed),
		attribute.String("type", string(verdict.Type)),
	)
	return verdict
}

func (l *Limiter) check(ctx context.Context, r *http.Request, op models.Operation, customID string) models.Verdict {
	now := l.now()
	rule, ok := l.rules[op]
	if !ok {
		// Operations are parsed before reaching the limiter; an unknown one
		// here is a programming error, covered by the general API rule.
		rule = l.rules[models.OpAPIGeneral]
	}

	if !l.enabled {
		return models.AllowAll(rule, now)
	}

	userID, _ := ctx.Value(constants.ContextKeyUserID).(string)
	identity := l.resolver.Resolve(r, userID)

	if l.resolver.IsWhitelisted(identity.IP) {
		l.recordCheck(op, monitoring.ResultAllowed, 0)
		return models.AllowAll(rule, now)
	}

	start := time.Now()

	if l.burstEnabled() {
		verdict, err := l.checkBurst(ctx, identity.IP, now)
		if err != nil {
			return l.failVerdict(ctx, op, l.burst, constants.LimitTypeBurst, now, err)
		}
		if !verdict.Allowed {
			l.reject(ctx, identity, op, verdict, now)
			l.recordCheck(op, monitoring.ResultRejected, time.Since(start))
			return verdict
		}
	}

	key := counterKey(rule.Algorithm, op, identity.Key, customID)
	verdict, err := l.strategy(rule.Algorithm).evaluate(ctx, l.store, key, rule, now)
	if err != nil {
		return l.failVerdict(ctx, op, rule, constants.LimitTypeStandard, now, err)
	}

	if verdict.Allowed {
		l.recordCheck(op, monitoring.ResultAllowed, time.Since(start))
		return verdict
	}
	l.reject(ctx, identity, op, verdict, now)
	l.recordCheck(op, monitoring.ResultRejected, time.Since(start))
	return verdict
}

// checkBurst runs the IP-scoped sliding burst window. It is deliberately
// coarser than rule identities: one hot IP is throttled no matter how many
// users or user agents it presents.
func (l *Limiter) checkBurst(ctx context.Context, ip string, now time.Time) (models.Verdict, error) {
	key := constants.KeyPrefixBurst + ":" + ip
	before, err := l.store.SlidingEval(ctx, key, now, l.burst.Window, l.burst.Requests)
	if err != nil {
		return models.Verdict{}, err
	}

	allowed := before < int64(l.burst.Requests)
	remaining := 0
	if allowed {
		remaining = l.burst.Requests - int(before) - 1
	}
	verdict := models.Verdict{
		Allowed:   allowed,
		Type:      constants.LimitTypeBurst,
		Limit:     l.burst.Requests,
		Remaining: remaining,
		ResetTime: now.Add(l.burst.Window),
	}
	if !allowed {
		verdict.Message = models.BurstExceededMessage(l.burst.Requests, l.burst.Window)
	}
	return verdict, nil
}

// failVerdict absorbs a counter store failure per the configured fail
// policy. Fail-open admits the request without accounting; strict mode
// rejects with an Unavailable verdict the HTTP layer maps to 503.
func (l *Limiter) failVerdict(ctx context.Context, op models.Operation, rule models.Rule, limitType constants.LimitType, now time.Time, err error) models.Verdict {
	if l.metrics != nil {
		l.metrics.RecordStoreError()
	}
	l.recordCheck(op, monitoring.ResultError, 0)

	if l.strict {
		l.log.Error(ctx, "counter store unavailable, rejecting in strict mode", err,
			logger.String("operation", string(op)),
		)
		return models.Verdict{
			Allowed:     false,
			Unavailable: true,
			Type:        limitType,
			Limit:       rule.Requests,
			Remaining:   0,
			ResetTime:   now.Add(rule.Window),
			Message:     unavailableMessage,
		}
	}

	l.log.Warn(ctx, "counter store unavailable, failing open",
		logger.String("operation", string(op)),
		logger.String("error", err.Error()),
	)
	return models.Verdict{
		Allowed:   true,
		Degraded:  true,
		Type:      limitType,
		Limit:     rule.Requests,
		Remaining: rule.Requests - 1,
		ResetTime: now.Add(rule.Window),
	}
}

// reject fans a rejection out to the audit sink and the logs. The verdict
// is already final; nothing here may delay or change it.
func (l *Limiter) reject(ctx context.Context, identity models.Identity, op models.Operation, verdict models.Verdict, now time.Time) {
	if l.metrics != nil {
		l.metrics.RecordRejection(string(op), verdict.Type)
	}
	if l.audit != nil {
		l.audit.Record(ctx, models.Violation{
			Identity:  identity.Key,
			IP:        identity.IP,
			Operation: string(op),
			Type:      verdict.Type,
			Limit:     verdict.Limit,
			BlockedAt: now,
		})
	}
	l.log.Warn(ctx, "request rejected",
		logger.String("operation", string(op)),
		logger.String("identity", identity.Key),
		logger.String("type", string(verdict.Type)),
		logger.Int("limit", verdict.Limit),
	)
}

// Status implements service.RateLimitService. It scans for every counter an
// IP has under the operation and reports the most consumed one, touching no
// counters.
func (l *Limiter) Status(ctx context.Context, ip string, op models.Operation) (models.Verdict, error) {
	rule, ok := l.rules[op]
	if !ok {
		return models.Verdict{}, errors.ErrNotFound(fmt.Sprintf("no rule for operation %s", op))
	}
	now := l.now()

	var worst int64
	ttl := rule.Window

	fixedKeys, err := l.store.Keys(ctx, fmt.Sprintf("%s:%s:*%s*", constants.KeyPrefixFixed, op, ip))
	if err != nil {
		return models.Verdict{}, err
	}
	for _, key := range fixedKeys {
		count, keyTTL, err := l.store.FixedPeek(ctx, key)
		if err != nil {
			return models.Verdict{}, err
		}
		if count > worst {
			worst = count
			ttl = keyTTL
		}
	}

	slidingKeys, err := l.store.Keys(ctx, fmt.Sprintf("%s:%s:*%s*", constants.KeyPrefixSliding, op, ip))
	if err != nil {
		return models.Verdict{}, err
	}
	for _, key := range slidingKeys {
		count, err := l.store.SlidingPeek(ctx, key, now, rule.Window)
		if err != nil {
			return models.Verdict{}, err
		}
		if count > worst {
			worst = count
			ttl = rule.Window
		}
	}

	remaining := rule.Requests - int(worst)
	if remaining < 0 {
		remaining = 0
	}
	return models.Verdict{
		Allowed:   worst < int64(rule.Requests),
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: now.Add(ttl),
	}, nil
}

// StatusAll implements service.RateLimitService.
func (l *Limiter) StatusAll(ctx context.Context, ip string) (map[models.Operation]models.Verdict, error) {
	result := make(map[models.Operation]models.Verdict, len(l.rules))
	for _, op := range models.AllOperations() {
		verdict, err := l.Status(ctx, ip, op)
		if err != nil {
			return nil, err
		}
		result[op] = verdict
	}
	return result, nil
}

// Reset implements service.RateLimitService. It clears rule counters of
// every identity containing the IP plus the burst counter.
func (l *Limiter) Reset(ctx context.Context, ip string) (int64, error) {
	patterns := []string{
		fmt.Sprintf("%s:*%s*", constants.KeyPrefixFixed, ip),
		fmt.Sprintf("%s:*%s*", constants.KeyPrefixSliding, ip),
		fmt.Sprintf("%s:%s", constants.KeyPrefixBurst, ip),
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, pattern := range patterns {
		matched, err := l.store.Keys(ctx, pattern)
		if err != nil {
			return 0, err
		}
		for _, key := range matched {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := l.store.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	l.log.Info(ctx, "rate limits reset",
		logger.String("ip", ip),
		logger.Int64("removed", removed),
	)
	return removed, nil
}

// Rule implements service.RateLimitService.
func (l *Limiter) Rule(op models.Operation) (models.Rule, bool) {
	rule, ok := l.rules[op]
	return rule, ok
}

func (l *Limiter) strategy(algorithm models.Algorithm) windowStrategy {
	if algorithm == models.AlgorithmSliding {
		return slidingWindow{}
	}
	return fixedWindow{}
}

func (l *Limiter) recordCheck(op models.Operation, result string, duration time.Duration) {
	if l.metrics != nil {
		l.metrics.RecordCheck(string(op), result, duration)
	}
}

// counterKey builds the store key for one rule evaluation. The identity key
// embeds the plain client IP, which is what lets admin introspection find
// and reset counters by IP pattern.
func counterKey(algorithm models.Algorithm, op models.Operation, identityKey, customID string) string {
	prefix := constants.KeyPrefixFixed
	if algorithm == models.AlgorithmSliding {
		prefix = constants.KeyPrefixSliding
	}
	key := fmt.Sprintf("%s:%s:%s", prefix, op, identityKey)
	if customID != "" {
		key += ":" + customID
	}
	return key
}
