//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	serial "github.com/luhtfiimanal/go-serial-crline"
)

type ReadCommand struct {
	Device   string        `required:"" help:"Serial device path." type:"path"`
	Baud     int           `default:"115200" help:"Baud rate."`
	Timeout  time.Duration `default:"1s" help:"Per-line read timeout."`
	LineSize int           `default:"256" help:"Line buffer capacity, including the terminating NUL."`
	Count    uint64        `help:"Exit after this many lines (0 = unlimited)."`
	Send     string        `help:"Command to send, CR-terminated, before reading."`

	Verbose bool `help:"Verbose output"`
}

func (c *ReadCommand) Validate() error {
	if c.LineSize < 2 {
		return fmt.Errorf("line-size must be at least 2, got %d", c.LineSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

type stats struct {
	lines, bytes, skipped uint64
}

func (c *ReadCommand) Run() (err error) {
	log := zap.Must(zap.NewProduction())
	if c.Verbose {
		log = zap.Must(zap.NewDevelopment())
	}
	defer log.Sync() //nolint:errcheck

	reader, err := serial.Open(serial.Config{
		Device:      c.Device,
		BaudRate:    c.Baud,
		ReadTimeout: c.Timeout,
		LineSize:    c.LineSize,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.Device, err)
	}
	defer func() { err = multierr.Append(err, reader.Close()) }()

	if c.Send != "" {
		if err := reader.WriteLine(c.Send, "\r"); err != nil {
			return fmt.Errorf("sending command: %w", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	begin := time.Now()
	st, err := c.readLines(reader, os.Stdout, sigs)
	log.Info("done",
		zap.Uint64("lines", st.lines),
		zap.Uint64("skipped", st.skipped),
		zap.String("received", humanize.Bytes(st.bytes)),
		zap.Duration("elapsed", time.Since(begin)),
	)
	return err
}

func (c *ReadCommand) readLines(reader *serial.SerialReader, out io.Writer, sigs <-chan os.Signal) (stats, error) {
	var st stats
	buf := make([]byte, c.LineSize)
	for c.Count == 0 || st.lines < c.Count {
		select {
		case <-sigs:
			return st, nil
		default:
		}

		n, err := reader.ReadLine(buf)
		switch {
		case err == nil:
			st.lines++
			st.bytes += uint64(n) + 1
			if _, err := fmt.Fprintln(out, string(buf[:n])); err != nil {
				return st, err
			}
			continue
		case errors.Is(err, serial.ErrTimeout):
			continue
		case reader.Err() != nil:
			return st, err
		}

		st.skipped++
		st.bytes += uint64(n)
		dropped, derr := reader.DiscardLine()
		st.bytes += uint64(dropped)
		if derr == nil {
			st.bytes++
		}
		if reader.Err() != nil {
			return st, derr
		}
	}
	return st, nil
}
