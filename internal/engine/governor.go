package engine

import "time"

// RateGovernor bounds how often frames are emitted, independent of how fast
// the transport delivers them. It is not safe for concurrent use; each run
// loop owns its own governor.
type RateGovernor struct {
	lastEmit time.Time
}

// ShouldEmit reports whether an event at now fits under the ceiling and, if
// so, advances the window. A ceiling of zero or less means unbounded.
func (g *RateGovernor) ShouldEmit(now time.Time, fpsCeiling int) bool {
	if fpsCeiling <= 0 {
		return true
	}
	interval := time.Second / time.Duration(fpsCeiling)
	if now.Sub(g.lastEmit) < interval {
		return false
	}
	g.lastEmit = now
	return true
}

// Reset clears the window, so the next event is always emitted.
func (g *RateGovernor) Reset() {
	g.lastEmit = time.Time{}
}

// FrameBudget is the target loop duration for a sender pacing itself to
// fpsCeiling; zero means no pacing.
func FrameBudget(fpsCeiling int) time.Duration {
	if fpsCeiling <= 0 {
		return 0
	}
	return time.Second / time.Duration(fpsCeiling)
}
