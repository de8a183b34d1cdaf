package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{Threshold: threshold, Cooldown: time.Minute})
	b.now = clock.now
	return b, clock
}

func fail(ctx context.Context) (int, error) { return 0, errors.New("commit failed") }
func succeed(ctx context.Context) (int, error) { return 1, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(3)
	v, err := BreakVal(context.Background(), b, succeed)
	if err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = BreakVal(ctx, b, fail)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := BreakVal(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if called {
		t.Error("fn must not run while open")
	}
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
	if !IsTransient(err) || ClassifyError(err) != "transient" {
		t.Error("ErrBreakerOpen should classify as transient")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()
	_, _ = BreakVal(ctx, b, fail)
	_, _ = BreakVal(ctx, b, fail)
	_, _ = BreakVal(ctx, b, succeed)
	_, _ = BreakVal(ctx, b, fail)
	_, _ = BreakVal(ctx, b, fail)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	ctx := context.Background()

	t.Run("probe succeeds", func(t *testing.T) {
		b, clock := newTestBreaker(1)
		_, _ = BreakVal(ctx, b, fail)
		clock.t = clock.t.Add(time.Minute)

		if _, err := BreakVal(ctx, b, succeed); err != nil {
			t.Fatalf("probe rejected: %v", err)
		}
		if b.State() != BreakerClosed {
			t.Errorf("expected closed, got %s", b.State())
		}
	})

	t.Run("probe fails", func(t *testing.T) {
		b, clock := newTestBreaker(1)
		_, _ = BreakVal(ctx, b, fail)
		clock.t = clock.t.Add(time.Minute)

		_, _ = BreakVal(ctx, b, fail)
		if b.State() != BreakerOpen {
			t.Fatalf("expected open, got %s", b.State())
		}
		clock.t = clock.t.Add(30 * time.Second)
		if _, err := BreakVal(ctx, b, succeed); !errors.Is(err, ErrBreakerOpen) {
			t.Errorf("cooldown should restart after a failed probe, got %v", err)
		}
	})
}

func TestBreaker_ShouldTrip(t *testing.T) {
	ignored := errors.New("bad record")
	b := NewBreaker(BreakerConfig{
		Threshold:  1,
		ShouldTrip: func(err error) bool { return !errors.Is(err, ignored) },
	})
	for i := 0; i < 5; i++ {
		_, _ = BreakVal(context.Background(), b, func(context.Context) (int, error) { return 0, ignored })
	}
	if b.State() != BreakerClosed {
		t.Errorf("non-tripping errors opened the breaker")
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var seen []string
	b, clock := newTestBreaker(1)
	b.cfg.OnStateChange = func(from, to BreakerState) {
		seen = append(seen, from.String()+"->"+to.String())
	}
	ctx := context.Background()
	_, _ = BreakVal(ctx, b, fail)
	clock.t = clock.t.Add(time.Minute)
	_, _ = BreakVal(ctx, b, succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, seen[i], want[i])
		}
	}
}
