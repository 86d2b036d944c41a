// Package ratelimit implements the sliding-window token bucket (C8,
// §4.8): a per-(user, operation) quota backed by vesper.RateLimitStore,
// fail-closed by default when the backing store is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/oculusnoob/vesper-memory"
)

// Tier enumerates the subscription tiers the quota table covers.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierPremium   Tier = "premium"
	TierUnlimited Tier = "unlimited"
)

// Operation enumerates the rate-limited operation names.
type Operation string

const (
	OpStore      Operation = "store"
	OpRetrieve   Operation = "retrieve"
	OpListRecent Operation = "list_recent"
	OpGetStats   Operation = "get_stats"
)

// window is the sliding-window duration every tier shares (§4.8).
const window = 60 * time.Second

// unlimitedQuota stands in for "effectively no limit" (10^6 per §4.8).
const unlimitedQuota = 1_000_000

// failClosedRetryAfter is the retry-after advertised when the backing
// store is unreachable and the operator has not opted into fail-open.
const failClosedRetryAfter = 30

// quotas is the per-tier, per-operation limit table from §4.8.
var quotas = map[Tier]map[Operation]int{
	TierStandard: {
		OpStore: 100, OpRetrieve: 300, OpListRecent: 60, OpGetStats: 30,
	},
	TierPremium: {
		OpStore: 500, OpRetrieve: 1000, OpListRecent: 200, OpGetStats: 100,
	},
	TierUnlimited: {
		OpStore: unlimitedQuota, OpRetrieve: unlimitedQuota, OpListRecent: unlimitedQuota, OpGetStats: unlimitedQuota,
	},
}

// Quota returns the configured limit for (tier, op), or 0 if the tier is
// unrecognized.
func Quota(tier Tier, op Operation) int {
	return quotas[tier][op]
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen lets requests through when the backing store is
// unreachable, instead of the default fail-closed rejection.
func WithFailOpen() Option {
	return func(l *Limiter) { l.failOpen = true }
}

// WithNonce overrides the nonce generator (default: vesper.NewID),
// mainly useful for deterministic tests.
func WithNonce(f func() string) Option {
	return func(l *Limiter) { l.nonce = f }
}

// Limiter enforces the sliding-window quota described in §4.8.
type Limiter struct {
	store    vesper.RateLimitStore
	failOpen bool
	nonce    func() string
}

// New builds a Limiter over store.
func New(store vesper.RateLimitStore, opts ...Option) *Limiter {
	l := &Limiter{store: store, nonce: vesper.NewID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Headers are the response headers a denial (or any decision) should
// carry, per §4.8.
type Headers struct {
	Limit             int
	Remaining         int
	ResetSeconds      int64
	RetryAfterSeconds int
}

// Allow records one request against the sliding window for (userID, op)
// under tier and reports whether it is within quota; the quota is shared
// across namespaces. On a backing-store failure the policy is fail-closed (reject,
// retry-after 30s) unless the Limiter was built WithFailOpen.
func (l *Limiter) Allow(ctx context.Context, namespace, userID string, tier Tier, op Operation) (Headers, error) {
	limit := Quota(tier, op)
	if limit <= 0 {
		limit = Quota(TierStandard, op)
	}

	now := vesper.NowUnix()
	windowStart := now - int64(window.Seconds())
	key := fmt.Sprintf("%s:%s", userID, op)

	count, err := l.store.RecordAndCount(ctx, key, now, windowStart, l.nonce(), int64(2*window.Seconds()))
	if err != nil {
		if l.failOpen {
			return Headers{Limit: limit, Remaining: limit, ResetSeconds: int64(window.Seconds())}, nil
		}
		return Headers{Limit: limit, Remaining: 0, RetryAfterSeconds: failClosedRetryAfter},
			&vesper.RateLimitedError{Limit: limit, Remaining: 0, RetryAfterSeconds: failClosedRetryAfter, FailClosed: true}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	headers := Headers{Limit: limit, Remaining: remaining, ResetSeconds: int64(window.Seconds())}
	if count > limit {
		headers.RetryAfterSeconds = int(window.Seconds())
		return headers, &vesper.RateLimitedError{Limit: limit, Remaining: 0, RetryAfterSeconds: headers.RetryAfterSeconds}
	}
	return headers, nil
}
