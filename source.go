package serial

import "runtime"

// PollStatus tags the outcome of a single ByteSource poll.
type PollStatus uint8

const (
	PollNoData   PollStatus = iota // nothing available yet
	PollByte                       // Byte holds the value read
	PollOverflow                   // the device lost data
)

func (s PollStatus) String() string {
	switch s {
	case PollNoData:
		return "no-data"
	case PollByte:
		return "byte"
	case PollOverflow:
		return "overflow"
	}
	return "unknown"
}

// Poll is the result of one non-blocking read from a ByteSource.
type Poll struct {
	Status PollStatus
	Byte   byte
}

// ByteSource is a character device that can be polled without blocking.
type ByteSource interface {
	Poll() Poll
}

// SourceFunc adapts a plain function to a ByteSource.
type SourceFunc func() Poll

func (f SourceFunc) Poll() Poll { return f() }

// pollUntil spins on src until it yields something other than PollNoData or
// the deadline passes. The deadline is only consulted after an empty poll.
func pollUntil(src ByteSource, clk Clock, deadline uint32) (Poll, bool) {
	for {
		p := src.Poll()
		if p.Status != PollNoData {
			return p, true
		}
		if TimeAfter(clk.Now(), deadline) {
			return p, false
		}
		runtime.Gosched()
	}
}

// DiscardLine consumes bytes from src up to and including the next carriage
// return. It returns the number of bytes dropped, not counting the
// terminator. Use it after ErrBufferOverflow to realign on a line boundary.
func DiscardLine(src ByteSource, clk Clock, timeout uint32) (int, error) {
	deadline := clk.Now() + timeout
	for n := 0; ; n++ {
		p, ok := pollUntil(src, clk, deadline)
		switch {
		case !ok:
			return n, ErrTimeout
		case p.Status == PollOverflow:
			return n, ErrDeviceOverflow
		case p.Byte == CR:
			return n, nil
		}
	}
}
