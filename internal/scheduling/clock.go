package scheduling

import "time"

// Clock supplies the current UTC time. Every due-timestamp decision in the
// engine goes through it, which is what makes the recurrence math testable
// with a pinned time.
type Clock interface {
	UTCNow() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) UTCNow() time.Time {
	return time.Now().UTC()
}

// FixedClock always reports the same instant. Tests advance it explicitly.
type FixedClock struct {
	Now time.Time
}

func (c *FixedClock) UTCNow() time.Time {
	return c.Now
}

func (c *FixedClock) Set(t time.Time) {
	c.Now = t
}
