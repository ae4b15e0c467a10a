//go:build linux

package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/hymofs/overlay"
	"github.com/hymofs/overlay/magicmount"
)

// cmdMagicMount runs the bind-mount fallback planner: scans modules into a
// union tree and, with --apply, realizes it against the live filesystem from
// PID 1's mount namespace.
func cmdMagicMount(stdout, stderr io.Writer, cfg Config, args []string, debugf func(format string, args ...any)) int {
	flags := flag.NewFlagSet("magic-mount", flag.ContinueOnError)
	flags.Usage = func() {}

	apply := flags.Bool("apply", false, "Realize the computed union tree against the live filesystem")
	extra := flags.String("extra-partitions", "", "Comma-separated extra partitions to hoist to root")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	opts := magicmount.ScanOptions{
		ModuleDir:       cfg.ModuleDir,
		ExtraPartitions: magicmount.ParsePartitions(*extra),
	}

	root, stats, err := magicmount.ScanModules(opts, debugf)
	if err != nil {
		fmt.Fprintln(stderr, "hymoctl: scanning modules:", err)
		return 1
	}

	if root == nil {
		fmt.Fprintln(stdout, "no modules found, nothing to mount.")
		return 0
	}

	fmt.Fprintf(stdout, "%s\n", stats)

	if !*apply {
		return 0
	}

	if unix.Geteuid() != 0 {
		fmt.Fprintln(stderr, "hymoctl: magic-mount --apply must run as root")
		return 1
	}

	if err := magicmount.EnterPID1MountNamespace(); err != nil {
		fmt.Fprintln(stderr, "hymoctl: entering pid1 mount namespace:", err)
		return 1
	}

	tempRoot := magicmount.SelectTempDir(debugf)
	if err := overlay.MkdirAll(tempRoot); err != nil {
		fmt.Fprintln(stderr, "hymoctl: preparing scratch dir:", err)
		return 1
	}

	ex := magicmount.NewExecutor()
	ex.Debugf = debugf

	if err := ex.Run(root, tempRoot); err != nil {
		fmt.Fprintln(stderr, "hymoctl: mounting:", err)
		fmt.Fprintf(stdout, "%s\n", ex.Stats)

		return 1
	}

	fmt.Fprintf(stdout, "%s\n", ex.Stats)
	fmt.Fprintln(stdout, "applied.")

	return 0
}
