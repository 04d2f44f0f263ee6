//go:build linux

package main

import (
	"github.com/alecthomas/kong"
)

var CLI ReadCommand

func main() {
	kongCtx := kong.Parse(
		&CLI,
		kong.Name("crline"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Description(`print carriage-return terminated lines from a serial device

Each line is read under a per-line timeout. Oversized lines and receive overruns are skipped up to the next terminator.
		`),
	)
	err := kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}
