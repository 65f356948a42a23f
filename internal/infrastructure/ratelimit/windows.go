package ratelimit

import (
	"context"
	"time"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/constants"
)

// windowStrategy evaluates one rule against one counter key. evaluate
// consumes quota (when its algorithm consumes on this outcome); peek never
// mutates anything.
type windowStrategy interface {
	evaluate(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error)
	peek(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error)
}

// fixedWindow counts requests against hard window boundaries. The counter
// increments even for rejected requests, so a client hammering a full
// window keeps pushing its observed count past the limit; the window still
// resets on schedule because the expiry is armed only on first creation.
type fixedWindow struct{}

func (fixedWindow) evaluate(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error) {
	count, ttl, err := store.FixedIncr(ctx, key, rule.Window)
	if err != nil {
		return models.Verdict{}, err
	}

	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	verdict := models.Verdict{
		Allowed:   count <= int64(rule.Requests),
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: now.Add(ttl),
	}
	if !verdict.Allowed {
		verdict.Message = rule.ExceededMessage()
	}
	return verdict, nil
}

func (fixedWindow) peek(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error) {
	count, ttl, err := store.FixedPeek(ctx, key)
	if err != nil {
		return models.Verdict{}, err
	}
	if count == 0 {
		ttl = rule.Window
	}
	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return models.Verdict{
		Allowed:   count < int64(rule.Requests),
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: now.Add(ttl),
	}, nil
}

// slidingWindow counts requests in a continuously trailing interval. A
// rejected request is never recorded, so waiting out the window always
// restores the full quota.
type slidingWindow struct{}

func (slidingWindow) evaluate(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error) {
	before, err := store.SlidingEval(ctx, key, now, rule.Window, rule.Requests)
	if err != nil {
		return models.Verdict{}, err
	}

	allowed := before < int64(rule.Requests)
	remaining := 0
	if allowed {
		// This request was just recorded; report what is left after it.
		remaining = rule.Requests - int(before) - 1
	}
	verdict := models.Verdict{
		Allowed:   allowed,
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: now.Add(rule.Window),
	}
	if !allowed {
		verdict.Message = rule.ExceededMessage()
	}
	return verdict, nil
}

func (slidingWindow) peek(ctx context.Context, store service.CounterStore, key string, rule models.Rule, now time.Time) (models.Verdict, error) {
	count, err := store.SlidingPeek(ctx, key, now, rule.Window)
	if err != nil {
		return models.Verdict{}, err
	}
	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return models.Verdict{
		Allowed:   count < int64(rule.Requests),
		Type:      constants.LimitTypeStandard,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: now.Add(rule.Window),
	}, nil
}
