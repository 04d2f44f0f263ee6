//go:build linux

package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	serial "github.com/luhtfiimanal/go-serial-crline"
)

func TestReadCommand_Validate(t *testing.T) {
	require.Error(t, (&ReadCommand{LineSize: 1}).Validate())
	require.Error(t, (&ReadCommand{LineSize: 8, Timeout: -time.Second}).Validate())
	require.NoError(t, (&ReadCommand{LineSize: 8, Timeout: time.Second}).Validate())
}

func TestReadCommand_ReadLines(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cmd := &ReadCommand{
		Device:   slave.Name(),
		Baud:     115200,
		Timeout:  200 * time.Millisecond,
		LineSize: 8,
		Count:    2,
	}
	reader, err := serial.Open(serial.Config{
		Device:      cmd.Device,
		BaudRate:    cmd.Baud,
		ReadTimeout: cmd.Timeout,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	_, err = master.Write([]byte("one\rmuch-too-long\rtwo\rthree\r"))
	require.NoError(t, err)

	var out bytes.Buffer
	st, err := cmd.readLines(reader, &out, make(chan os.Signal))
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\n", out.String())
	require.Equal(t, uint64(2), st.lines)
	require.Equal(t, uint64(1), st.skipped)
	require.Equal(t, uint64(4+4+14), st.bytes)
}

func TestReadCommand_StopsOnSignal(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cmd := &ReadCommand{Timeout: 20 * time.Millisecond, LineSize: 16}
	reader, err := serial.Open(serial.Config{Device: slave.Name(), BaudRate: 9600, ReadTimeout: cmd.Timeout})
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	st, err := cmd.readLines(reader, &bytes.Buffer{}, sigs)
	require.NoError(t, err)
	require.Zero(t, st.lines)
}
