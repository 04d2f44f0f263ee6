package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	DefaultReadTimeout = time.Second
	DefaultLineSize    = 256
)

// SerialReader exposes a Linux serial port as a non-blocking ByteSource and
// reads carriage-return terminated lines from it.
// Poll, ReadLine and ReadLinesLoop must be driven from a single goroutine;
// Close may be called from any goroutine.
type SerialReader struct {
	file      *os.File
	raw       syscall.RawConn
	clock     Clock
	log       *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
	config    Config

	icount   bool  // driver reports TIOCGICOUNT
	overruns int64 // last overrun + buf_overrun total seen
	err      error // sticky hard read error
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration // per line, default 1s
	LineSize    int           // ReadLinesLoop buffer including the NUL, default 256
	Logger      *zap.Logger   // default no-op
	Clock       Clock         // default MonotonicClock
}

func (c *Config) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.LineSize <= 1 {
		c.LineSize = DefaultLineSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = NewMonotonicClock()
	}
}

// Open opens a serial port using the provided Config and returns a SerialReader.
// The port is configured for raw, non-blocking operation.
func Open(cfg Config) (*SerialReader, error) {
	cfg.setDefaults()

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("get termios: %w", err), unix.Close(fd))
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baudToUnix(cfg.BaudRate)

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return nil, multierr.Append(fmt.Errorf("set termios: %w", err), unix.Close(fd))
	}

	file := os.NewFile(uintptr(fd), cfg.Device)
	raw, err := file.SyscallConn()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("raw conn: %w", err), file.Close())
	}

	s := &SerialReader{
		file:   file,
		raw:    raw,
		clock:  cfg.Clock,
		log:    cfg.Logger.With(zap.String("device", cfg.Device)),
		done:   make(chan struct{}),
		config: cfg,
	}

	var (
		ic    icounter
		icErr error
	)
	if err := raw.Control(func(fd uintptr) { icErr = getICount(int(fd), &ic) }); err != nil {
		icErr = err
	}
	if icErr == nil {
		s.icount = true
		s.overruns = ic.overruns()
	} else {
		s.log.Debug("overrun counters unavailable", zap.Error(icErr))
	}
	return s, nil
}

// Poll reads at most one byte without blocking. It reports PollOverflow when
// the driver's overrun counters advanced since the previous poll, or when the
// port failed; in the latter case Err returns the cause.
func (s *SerialReader) Poll() Poll {
	if s.err != nil {
		return Poll{Status: PollOverflow}
	}

	var (
		b       [1]byte
		n       int
		rerr    error
		overrun bool
	)
	cerr := s.raw.Control(func(fd uintptr) {
		if s.icount {
			var ic icounter
			if err := getICount(int(fd), &ic); err == nil {
				if o := ic.overruns(); o != s.overruns {
					s.log.Debug("receive overrun", zap.Int64("lost", o-s.overruns))
					s.overruns = o
					overrun = true
					return
				}
			}
		}
		n, rerr = unix.Read(int(fd), b[:])
	})

	switch {
	case cerr != nil:
		s.err = fmt.Errorf("control: %w", cerr)
	case overrun:
		return Poll{Status: PollOverflow}
	case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EINTR):
		return Poll{Status: PollNoData}
	case rerr != nil:
		s.err = fmt.Errorf("read: %w", rerr)
	case n == 0:
		s.err = io.EOF
	default:
		return Poll{Status: PollByte, Byte: b[0]}
	}
	return Poll{Status: PollOverflow}
}

// Err returns the hard error that made the port unreadable, if any.
func (s *SerialReader) Err() error {
	return s.err
}

// WriteLine writes a line (with specified newline) to the serial port.
func (s *SerialReader) WriteLine(line string, newline string) error {
	_, err := s.file.WriteString(line + newline)
	return err
}

// ReadLine reads one CR-terminated line into buf within Config.ReadTimeout.
// Results follow ReadCRTerminated; a device overflow caused by a hard read
// error wraps that error too.
func (s *SerialReader) ReadLine(buf []byte) (int, error) {
	n, err := ReadCRTerminated(s, s.clock, buf, Millis(s.config.ReadTimeout))
	if errors.Is(err, ErrDeviceOverflow) && s.err != nil {
		err = fmt.Errorf("%w: %w", err, s.err)
	}
	return n, err
}

// DiscardLine drops input up to and including the next carriage return,
// waiting at most Config.ReadTimeout on the reader's clock.
func (s *SerialReader) DiscardLine() (int, error) {
	n, err := DiscardLine(s, s.clock, Millis(s.config.ReadTimeout))
	if errors.Is(err, ErrDeviceOverflow) && s.err != nil {
		err = fmt.Errorf("%w: %w", err, s.err)
	}
	return n, err
}

// ReadLinesLoop continuously reads lines from the serial port and invokes onLine for each complete line.
// Timeouts are retried. Oversized lines and receive overruns are logged and
// the reader resynchronises on the next terminator. If the port fails,
// onError is called and the loop exits. Close stops the loop.
func (s *SerialReader) ReadLinesLoop(onLine func(string), onError func(error)) {
	buf := make([]byte, s.config.LineSize)
	for {
		if s.closed() {
			return
		}
		n, err := s.ReadLine(buf)
		switch {
		case err == nil:
			onLine(string(buf[:n]))
			continue
		case errors.Is(err, ErrTimeout):
			continue
		case s.closed():
			return
		case s.err != nil:
			onError(err)
			return
		case errors.Is(err, ErrBufferOverflow):
			s.log.Warn("line too long, discarding", zap.ByteString("prefix", buf[:n]))
		default:
			s.log.Warn("receive overrun, discarding line", zap.ByteString("partial", buf[:n]))
		}

		dropped, err := s.DiscardLine()
		s.log.Debug("resync", zap.Int("dropped", dropped), zap.Error(err))
		if s.err != nil && !s.closed() {
			onError(err)
			return
		}
	}
}

func (s *SerialReader) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close closes the serial port and stops any ReadLinesLoop.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *SerialReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.file.Close()
	})
	return err
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	default:
		return unix.B115200 // fallback
	}
}

// tiocgicount is TIOCGICOUNT from asm-generic/ioctls.h.
const tiocgicount = 0x545D

// icounter mirrors struct serial_icounter_struct from linux/serial.h.
type icounter struct {
	cts, dsr, rng, dcd int32
	rx, tx             int32
	frame, overrun     int32
	parity, brk        int32
	bufOverrun         int32
	reserved           [9]int32
}

func (ic *icounter) overruns() int64 {
	return int64(ic.overrun) + int64(ic.bufOverrun)
}

var getICount = func(fd int, ic *icounter) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), tiocgicount, uintptr(unsafe.Pointer(ic)))
	if errno != 0 {
		return errno
	}
	return nil
}
