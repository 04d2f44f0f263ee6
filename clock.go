package serial

import "time"

// Clock is a monotonically increasing counter that wraps around at 2^32.
// Its unit must match the timeout passed to ReadCRTerminated.
type Clock interface {
	Now() uint32
}

// ClockFunc adapts a plain function to a Clock.
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 { return f() }

// TimeAfter reports whether a is later than b, correct across wraparound
// as long as the two are less than 2^31 ticks apart.
func TimeAfter(a, b uint32) bool {
	return int32(b-a) < 0
}

// MonotonicClock counts milliseconds since its creation, truncated to 32 bits.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Millis converts d to clock ticks, saturating at the largest timeout that
// still orders correctly.
func Millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > 1<<31-1:
		return 1<<31 - 1
	}
	return uint32(ms)
}
