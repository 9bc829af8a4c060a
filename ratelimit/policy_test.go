package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

var sealKey = Key{Host: "API.example.test", Bucket: "/api/v1/emissions/seal"}

func TestAdaptivePolicy_BeforeCallAllowsWhenNoState(t *testing.T) {
	policy := NewAdaptivePolicy(NewMemoryStateStore(), 0, 0)

	if err := policy.BeforeCall(context.Background(), sealKey); err != nil {
		t.Fatalf("expected no error when no state exists, got %v", err)
	}
}

func TestAdaptivePolicy_AfterCallParsesHeadersAndPersistsState(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store, 0, 0)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	err := policy.AfterCall(context.Background(), sealKey, ResponseMeta{
		StatusCode: 200,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "49",
			"X-RateLimit-Reset":     "1700000045",
		},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := store.Get(context.Background(), Key{Host: "api.example.test", Bucket: sealKey.Bucket})
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Remaining != 49 {
		t.Fatalf("expected remaining 49, got %d", state.Remaining)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(now.Add(45*time.Second)) {
		t.Fatalf("expected reset at +45s, got %+v", state.ResetAt)
	}
	if state.ThrottledUntil != nil {
		t.Fatalf("expected no throttle window")
	}
}

func TestAdaptivePolicy_AfterCall429UsesRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store, 0, 0)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	if err := policy.AfterCall(context.Background(), sealKey, ResponseMeta{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "10"},
	}); err != nil {
		t.Fatalf("after call throttled: %v", err)
	}

	err := policy.BeforeCall(context.Background(), sealKey)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 10*time.Second {
		t.Fatalf("expected 10s window, got %s", throttled.RetryAfter)
	}
}

func TestAdaptivePolicy_AdaptiveBackoffWithoutRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store, 0, 0)
	policy.InitialBackoff = 2 * time.Second
	policy.MaxBackoff = 30 * time.Second
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	if err := policy.AfterCall(context.Background(), sealKey, ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("first throttled call: %v", err)
	}
	now = now.Add(3 * time.Second)
	if err := policy.AfterCall(context.Background(), sealKey, ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("second throttled call: %v", err)
	}

	state, err := store.Get(context.Background(), sealKey)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", state.Attempts)
	}
	if got := state.ThrottledUntil.Sub(now); got != 4*time.Second {
		t.Fatalf("expected adaptive delay of 4s, got %s", got)
	}

	if err := policy.AfterCall(context.Background(), sealKey, ResponseMeta{StatusCode: 200}); err != nil {
		t.Fatalf("successful call: %v", err)
	}
	state, _ = store.Get(context.Background(), sealKey)
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected success to reset throttling, got %+v", state)
	}
}

func TestAdaptivePolicy_WaitSleepsThroughShortWindow(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store, 0, 0)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }
	var slept time.Duration
	policy.sleep = func(_ context.Context, delay time.Duration) error {
		slept = delay
		return nil
	}

	until := now.Add(5 * time.Second)
	if err := store.Upsert(context.Background(), State{Key: sealKey, ThrottledUntil: &until}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	if err := policy.Wait(context.Background(), sealKey); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if slept != 5*time.Second {
		t.Fatalf("expected to sleep 5s, got %s", slept)
	}

	long := now.Add(time.Hour)
	if err := store.Upsert(context.Background(), State{Key: sealKey, ThrottledUntil: &long}); err != nil {
		t.Fatalf("seed long window: %v", err)
	}
	if err := policy.Wait(context.Background(), sealKey); err == nil {
		t.Fatalf("expected windows beyond MaxWait to fail fast")
	}
}

func TestAdaptivePolicy_WaitHonoursCancelledContext(t *testing.T) {
	policy := NewAdaptivePolicy(nil, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := policy.Wait(ctx, sealKey); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}
