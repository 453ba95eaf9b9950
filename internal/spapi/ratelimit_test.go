package spapi

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_BurstThenThrottle(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionFailFast, map[string]string{
		"/test/route": "1,3",
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// burst capacity admits immediately
	for i := 0; i < 3; i++ {
		if err := rl.Admit(ctx, "/test/route"); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	// bucket drained
	err = rl.Admit(ctx, "/test/route")
	if err == nil {
		t.Fatal("fourth admit succeeded with empty bucket")
	}
	e := AsError(err)
	if e.Kind != KindRateLimitExceeded {
		t.Errorf("kind = %s", e.Kind)
	}
	if e.RetryAfter <= 0 || e.RetryAfter > 1100*time.Millisecond {
		t.Errorf("retry_after = %v, want about a token interval", e.RetryAfter)
	}
}

func TestRateLimiter_FailFastDoesNotConsume(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionFailFast, map[string]string{
		"/r": "0.1,1",
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := rl.Admit(ctx, "/r"); err != nil {
		t.Fatal(err)
	}
	// repeated rejections must not push the refill time further out
	first := AsError(rl.Admit(ctx, "/r")).RetryAfter
	second := AsError(rl.Admit(ctx, "/r")).RetryAfter
	if second > first+100*time.Millisecond {
		t.Errorf("rejections consumed tokens: %v then %v", first, second)
	}
}

func TestRateLimiter_WaitMode(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionWait, map[string]string{
		"/r": "50,1",
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Admit(ctx, "/r"); err != nil {
			t.Fatal(err)
		}
	}
	// two waits of ~20ms each after the initial token
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("wait mode admitted too fast: %v", elapsed)
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionWait, map[string]string{
		"/r": "0.01,1",
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := rl.Admit(ctx, "/r"); err != nil {
		t.Fatal(err)
	}
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = rl.Admit(cctx, "/r")
	if err == nil {
		t.Fatal("admit succeeded past an expired context")
	}
	if AsError(err).Kind != KindTimeout {
		t.Errorf("kind = %s", AsError(err).Kind)
	}
}

func TestRateLimiter_RouteLookup(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionWait, nil)
	if err != nil {
		t.Fatal(err)
	}
	// exact match
	if spec := rl.lookup("/orders/v0/orders"); spec.Rate != 0.0167 {
		t.Errorf("exact lookup = %+v", spec)
	}
	// more specific template wins over the shorter one
	if spec := rl.lookup("/orders/v0/orders/{orderId}/orderItems"); spec.Rate != 0.5 {
		t.Errorf("template lookup = %+v", spec)
	}
	// unmatched suffixes fall back to the longest prefix
	if spec := rl.lookup("/feeds/2021-06-30/feeds/{feedId}"); spec.Rate != 15 {
		t.Errorf("prefix lookup = %+v", spec)
	}
	// unknown routes get the default
	if spec := rl.lookup("/something/else"); spec != defaultLimit {
		t.Errorf("default lookup = %+v", spec)
	}
}

func TestRateLimiter_SharedBucketPerRoute(t *testing.T) {
	rl, err := NewRateLimiter(AdmissionFailFast, map[string]string{"/r": "0.1,1"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := rl.Admit(ctx, "/r"); err != nil {
		t.Fatal(err)
	}
	// same route template shares the drained bucket
	if err := rl.Admit(ctx, "/r"); err == nil {
		t.Error("second admit on drained shared bucket succeeded")
	}
	// a different route has its own bucket
	if err := rl.Admit(ctx, "/other"); err != nil {
		t.Errorf("other route rejected: %v", err)
	}
}

func TestNewRateLimiter_BadConfig(t *testing.T) {
	if _, err := NewRateLimiter("sometimes", nil); err == nil {
		t.Error("unknown mode accepted")
	}
	for _, bad := range []string{"fast", "1", "0,5", "1,-2", "x,y"} {
		if _, err := NewRateLimiter(AdmissionWait, map[string]string{"/r": bad}); err == nil {
			t.Errorf("override %q accepted", bad)
		}
	}
}
