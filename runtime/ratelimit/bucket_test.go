package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestLimiter_CheckExhaustsAndRefills(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(map[string]BucketConfig{
		"Acme": {Capacity: 5, Window: 10 * time.Second},
	}, BucketConfig{}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if !l.Check("acme") {
			t.Fatalf("check %d denied, want allowed", i+1)
		}
	}
	if l.Check("acme") {
		t.Fatalf("check beyond capacity allowed")
	}

	clock.Advance(2 * time.Second)
	if !l.Check("acme") {
		t.Errorf("expected one token after a fifth of the window")
	}
	if l.Check("acme") {
		t.Errorf("expected a single refilled token")
	}

	clock.Advance(10 * time.Second)
	if got := l.Tokens("acme"); got != 5 {
		t.Errorf("tokens after full window = %v, want 5", got)
	}
	for i := 0; i < 5; i++ {
		if !l.Check("ACME") {
			t.Fatalf("check %d after refill denied", i+1)
		}
	}
}

func TestLimiter_Config(t *testing.T) {
	l := NewLimiter(map[string]BucketConfig{"slack": {Capacity: 1, Window: time.Second}}, BucketConfig{})

	tests := []struct {
		name string
		want BucketConfig
	}{
		{"slack", BucketConfig{Capacity: 1, Window: time.Second}},
		{"GitHub", DefaultBuckets["github"]},
		{"unknown-crm", DefaultBucket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Config(tt.name); got != tt.want {
				t.Errorf("Config(%q) = %+v, want %+v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLimiter_WaitBlocksUntilRefill(t *testing.T) {
	l := NewLimiter(map[string]BucketConfig{"fast": {Capacity: 1, Window: 50 * time.Millisecond}}, BucketConfig{})

	if err := l.Wait(context.Background(), "fast"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(context.Background(), "fast"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second wait returned after %s, expected to block for a refill", elapsed)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewLimiter(map[string]BucketConfig{"slow": {Capacity: 1, Window: time.Hour}}, BucketConfig{})
	l.Check("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
