package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}
	clock.Advance(3 * time.Second)
	if got := clock.Since(start); got != 3*time.Second {
		t.Errorf("Since() = %v, want 3s", got)
	}

	clock.Set(start)
	clock.AutoAdvance(250 * time.Millisecond)
	first := clock.Now()
	second := clock.Now()
	if d := second.Sub(first); d != 250*time.Millisecond {
		t.Errorf("auto advance = %v, want 250ms", d)
	}
	if got := clock.Since(first); got != 500*time.Millisecond {
		t.Errorf("Since() = %v, want 500ms", got)
	}
}

var _ Clock = RealClock{}
var _ Clock = (*MockClock)(nil)
