package serial

import "errors"

// CR terminates a line. It is consumed and never stored.
const CR = '\r'

var (
	ErrTimeout        = errors.New("serial: timeout waiting for line")
	ErrBufferOverflow = errors.New("serial: line exceeds buffer")
	ErrDeviceOverflow = errors.New("serial: device overflow")
)

// ReadCRTerminated reads a carriage-return terminated line from src into buf,
// giving up once timeout clock ticks have passed.
//
// On success it returns the length of the line. Otherwise:
//   - ErrTimeout: no complete line arrived, buf[0] is 0.
//   - ErrBufferOverflow: len(buf)-1 bytes arrived without a terminator; they
//     are kept and buf[len(buf)-1] is 0. The rest of the line stays in src.
//   - ErrDeviceOverflow: src lost data after n bytes; buf[n] is 0.
//
// buf is NUL-terminated on every return unless it is empty.
func ReadCRTerminated(src ByteSource, clk Clock, buf []byte, timeout uint32) (int, error) {
	if len(buf) == 0 {
		return 0, ErrBufferOverflow
	}
	deadline := clk.Now() + timeout
	for i := 0; i < len(buf)-1; i++ {
		p, ok := pollUntil(src, clk, deadline)
		switch {
		case !ok:
			buf[0] = 0
			return 0, ErrTimeout
		case p.Status == PollOverflow:
			buf[i] = 0
			return i, ErrDeviceOverflow
		case p.Byte == CR:
			buf[i] = 0
			return i, nil
		}
		buf[i] = p.Byte
	}
	buf[len(buf)-1] = 0
	return len(buf) - 1, ErrBufferOverflow
}
