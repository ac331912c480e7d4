package segment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestCachedAccessCheckerCachesResult(t *testing.T) {
	inner := &fakeAccess{result: true}
	checker := NewCachedAccessChecker(newTestRedis(t), inner, time.Minute, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := checker.HasAccess(ctx, "user_1", "exp_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got {
			t.Fatal("expected access")
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected a single upstream call, got %d", inner.calls)
	}
}

func TestCachedAccessCheckerCachesNegative(t *testing.T) {
	inner := &fakeAccess{result: false}
	checker := NewCachedAccessChecker(newTestRedis(t), inner, time.Minute, nil)

	ctx := context.Background()
	if got, err := checker.HasAccess(ctx, "user_1", "exp_1"); err != nil || got {
		t.Fatalf("expected no access, got %v err %v", got, err)
	}
	if got, err := checker.HasAccess(ctx, "user_1", "exp_1"); err != nil || got {
		t.Fatalf("expected cached no access, got %v err %v", got, err)
	}
	if inner.calls != 1 {
		t.Errorf("expected a single upstream call, got %d", inner.calls)
	}
}

func TestCachedAccessCheckerDistinctKeys(t *testing.T) {
	inner := &fakeAccess{result: true}
	checker := NewCachedAccessChecker(newTestRedis(t), inner, time.Minute, nil)

	ctx := context.Background()
	if _, err := checker.HasAccess(ctx, "user_1", "exp_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := checker.HasAccess(ctx, "user_2", "exp_1"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("different users must not share cache entries, got %d calls", inner.calls)
	}
}

func TestCachedAccessCheckerWithoutRedis(t *testing.T) {
	inner := &fakeAccess{result: true}
	checker := NewCachedAccessChecker(nil, inner, time.Minute, nil)

	got, err := checker.HasAccess(context.Background(), "user_1", "exp_1")
	if err != nil || !got {
		t.Fatalf("expected pass-through result, got %v err %v", got, err)
	}
}
