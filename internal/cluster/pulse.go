package cluster

import "time"

// DefaultInterval is the fixed heartbeat period for the membership
// protocol (spec §4.1): no drift correction, a slow node simply beats
// less often and its own liveness decay slows with it.
const DefaultInterval = 1 * time.Second

// Pulse is a countdown relative to a wall-clock instant rather than a
// ticker: Beat only fires once "now" has caught up to the deadline, and
// then it schedules the next deadline off of the old one, not off of
// "now" — so after a pause Beat returns true on every call until the
// deadline has caught up with "now" again.
type Pulse struct {
	interval time.Duration
	deadline time.Time
	now      func() time.Time
}

// NewPulse creates a Pulse with the given interval, armed to fire on the
// first Beat call.
func NewPulse(interval time.Duration) *Pulse {
	return &Pulse{
		interval: interval,
		deadline: time.Now(),
		now:      time.Now,
	}
}

// Beat reports whether the interval has elapsed, advancing the internal
// deadline by exactly one interval when it has.
func (p *Pulse) Beat() bool {
	if p.now().Before(p.deadline) {
		return false
	}
	p.deadline = p.deadline.Add(p.interval)
	return true
}
