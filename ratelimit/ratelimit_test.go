package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/oculusnoob/vesper-memory"
	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
)

func newTestStore(t *testing.T) *cachesqlite.Store {
	t.Helper()
	s := cachesqlite.New(":memory:")
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllowWithinQuota(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store)

	headers, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpGetStats)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if headers.Limit != 30 {
		t.Errorf("Limit = %d, want 30", headers.Limit)
	}
	if headers.Remaining != 29 {
		t.Errorf("Remaining = %d, want 29", headers.Remaining)
	}
}

func TestAllowDeniesBeyondQuota(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store)

	var lastErr error
	for i := 0; i < Quota(TierStandard, OpGetStats)+1; i++ {
		_, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpGetStats)
		lastErr = err
	}
	if lastErr == nil {
		t.Fatal("expected the request beyond quota to be denied")
	}
	var rlErr *vesper.RateLimitedError
	if !errors.As(lastErr, &rlErr) {
		t.Fatalf("expected *vesper.RateLimitedError, got %T", lastErr)
	}
	if rlErr.RetryAfterSeconds <= 0 {
		t.Errorf("RetryAfterSeconds = %d, want > 0", rlErr.RetryAfterSeconds)
	}
}

func TestAllowKeysAreIndependentPerOperation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store)

	for i := 0; i < Quota(TierStandard, OpGetStats); i++ {
		if _, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpGetStats); err != nil {
			t.Fatalf("Allow get_stats #%d: %v", i, err)
		}
	}
	// A different operation must have its own, unexhausted budget.
	if _, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpStore); err != nil {
		t.Fatalf("expected store operation to have independent quota: %v", err)
	}
}

func TestAllowFailsClosedWhenStoreUnreachable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.Close()
	l := New(store)

	_, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpStore)
	var rlErr *vesper.RateLimitedError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected fail-closed *vesper.RateLimitedError, got %T (%v)", err, err)
	}
	if !rlErr.FailClosed {
		t.Error("expected FailClosed=true")
	}
	if rlErr.RetryAfterSeconds != failClosedRetryAfter {
		t.Errorf("RetryAfterSeconds = %d, want %d", rlErr.RetryAfterSeconds, failClosedRetryAfter)
	}
}

func TestAllowFailsOpenWhenConfigured(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.Close()
	l := New(store, WithFailOpen())

	if _, err := l.Allow(ctx, "ns1", "user1", TierStandard, OpStore); err != nil {
		t.Fatalf("expected fail-open Limiter to allow through, got %v", err)
	}
}
