package engine

import (
	"testing"
	"time"
)

func TestWarnLimiterOncePerInterval(t *testing.T) {
	w := newWarnLimiter()
	base := time.Now()

	if !w.Allow(base) {
		t.Fatal("first warning must be allowed")
	}
	for i := 1; i < 10; i++ {
		if w.Allow(base.Add(time.Duration(i) * 50 * time.Millisecond)) {
			t.Fatalf("warning %d admitted inside the interval", i)
		}
	}
	if !w.Allow(base.Add(time.Second + time.Millisecond)) {
		t.Fatal("warning after the interval must be allowed")
	}
}
