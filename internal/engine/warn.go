package engine

import "time"

// warnLimiter admits at most one warning per interval, so a flood of bad
// frames cannot flood the status surface.
type warnLimiter struct {
	interval time.Duration
	last     time.Time
}

func newWarnLimiter() *warnLimiter {
	return &warnLimiter{interval: time.Second}
}

func (w *warnLimiter) Allow(now time.Time) bool {
	if !w.last.IsZero() && now.Sub(w.last) < w.interval {
		return false
	}
	w.last = now
	return true
}
