package engine

import (
	"testing"
	"time"
)

func TestRateGovernorBoundsEmissions(t *testing.T) {
	var gov RateGovernor
	base := time.Now()

	// One second of ticks every 10ms against a 30fps ceiling.
	emitted := 0
	for i := 0; i < 100; i++ {
		if gov.ShouldEmit(base.Add(time.Duration(i)*10*time.Millisecond), 30) {
			emitted++
		}
	}
	if emitted > 31 {
		t.Fatalf("emitted %d frames in one second under a 30fps ceiling", emitted)
	}
	if emitted < 25 {
		t.Fatalf("emitted only %d frames, governor is over-throttling", emitted)
	}
}

func TestRateGovernorUnboundedWhenCeilingUnset(t *testing.T) {
	var gov RateGovernor
	base := time.Now()
	for i := 0; i < 50; i++ {
		if !gov.ShouldEmit(base, 0) {
			t.Fatal("zero ceiling must never throttle")
		}
		if !gov.ShouldEmit(base, -1) {
			t.Fatal("negative ceiling must never throttle")
		}
	}
}

func TestRateGovernorReset(t *testing.T) {
	var gov RateGovernor
	now := time.Now()
	if !gov.ShouldEmit(now, 10) {
		t.Fatal("first emission must pass")
	}
	if gov.ShouldEmit(now, 10) {
		t.Fatal("immediate second emission must be throttled")
	}
	gov.Reset()
	if !gov.ShouldEmit(now, 10) {
		t.Fatal("emission after Reset must pass")
	}
}

func TestFrameBudget(t *testing.T) {
	if got := FrameBudget(0); got != 0 {
		t.Fatalf("budget for 0 fps: got %v want 0", got)
	}
	if got := FrameBudget(50); got != 20*time.Millisecond {
		t.Fatalf("budget for 50 fps: got %v want 20ms", got)
	}
}
