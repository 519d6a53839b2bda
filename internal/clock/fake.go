package clock

import "time"

// FakeClock is a manually advanced Clock for tests. Overdue
// classification and day counting depend on the current instant, so
// tests pin it here instead of reading the wall clock.
type FakeClock struct {
	now time.Time
}

// NewFakeClock starts the clock at t, normalized to UTC the same way
// the real clock reports time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d. Overdue day boundaries are UTC
// midnights, so advancing by whole days crosses exactly one boundary
// per day.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
