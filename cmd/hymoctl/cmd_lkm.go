//go:build linux

package main

import (
	"fmt"
	"io"

	"github.com/hymofs/overlay"
	"github.com/hymofs/overlay/kernel"
)

func cmdLKM(stdout, stderr io.Writer, client kernel.Client, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "hymoctl: lkm requires a subcommand: load, unload, autoload")
		return 2
	}

	sub, rest := args[0], args[1:]

	switch sub {
	case "load":
		if err := overlay.LoadLKM(); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}

		fmt.Fprintln(stdout, "loaded.")

		return 0

	case "unload":
		if err := overlay.UnloadLKM(client); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}

		fmt.Fprintln(stdout, "unloaded.")

		return 0

	case "autoload":
		return cmdLKMAutoload(stdout, stderr, rest)

	default:
		fmt.Fprintf(stderr, "hymoctl: unknown lkm subcommand %q\n", sub)
		return 2
	}
}

func cmdLKMAutoload(stdout, stderr io.Writer, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stdout, overlay.GetLKMAutoload())
		return 0
	}

	switch args[0] {
	case "on":
		if err := overlay.SetLKMAutoload(true); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}
	case "off":
		if err := overlay.SetLKMAutoload(false); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "hymoctl: lkm autoload expects \"on\" or \"off\", got %q\n", args[0])
		return 2
	}

	return 0
}
