// Package serial reads carriage-return terminated lines from a character
// device under a hard deadline, without allocating and without ever blocking
// forever.
//
// The core is ReadCRTerminated, which polls a ByteSource against a wrapping
// 32-bit Clock and fills a caller-provided buffer. Every return leaves the
// buffer NUL-terminated and yields either the line length or one of
// ErrTimeout, ErrBufferOverflow and ErrDeviceOverflow.
//
// SerialReader adapts a Linux serial port to a ByteSource:
//   - Raw termios configuration, non-blocking single-byte polls
//   - Receive overruns reported through the kernel's TIOCGICOUNT counters
//   - A ReadLinesLoop that resynchronises after oversized lines
//   - PTY-based tests for reliability
//
// This package does **not** support Windows.
//
// Example usage:
//
//	reader, err := serial.Open(serial.Config{
//	    Device:      "/dev/ttyUSB0",
//	    BaudRate:    115200,
//	    ReadTimeout: 500 * time.Millisecond,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	buf := make([]byte, 64)
//	n, err := reader.ReadLine(buf)
//	switch {
//	case err == nil:
//	    fmt.Println("Received:", string(buf[:n]))
//	case errors.Is(err, serial.ErrTimeout):
//	    // nothing complete arrived, call again
//	case errors.Is(err, serial.ErrBufferOverflow):
//	    serial.DiscardLine(reader, serial.NewMonotonicClock(), 500)
//	default:
//	    log.Println("Read error:", err)
//	}
package serial
