//go:build linux

package main

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hymofs/overlay/kernel"
)

const programName = "hymoctl"

// Run is hymoctl's entry point, isolated from global state (stdout/stderr/
// os.Args) so it can be driven directly from tests. Returns the process
// exit code.
func Run(stdout, stderr io.Writer, args []string) int {
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flagConfig := flags.String("config", "", "Use specified config `file`")
	flags.String("module-dir", "", "Override the module root directory")
	flags.String("storage-root", "", "Override the per-module content root")
	flags.StringArray("partitions", nil, "Additional partitions to scan, beyond the builtin set")
	flags.Bool("ignore-protocol-mismatch", false, "Proceed even on a kernel/module protocol version mismatch")
	flags.Bool("debug", false, "Print verbose tracing to stderr")
	flagHelp := flags.BoolP("help", "h", false, "Show help")

	if len(args) < 2 {
		fmt.Fprintln(stderr, usage())
		return 2
	}

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if *flagHelp {
		fmt.Fprintln(stdout, usage())
		return 0
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 2
	}

	cfg, err := LoadConfig(LoadConfigInput{ConfigPath: *flagConfig, CLIFlags: flags})
	if err != nil {
		fmt.Fprintln(stderr, "hymoctl:", err)
		return 1
	}

	debugf := newDebugf(stderr, cfg.Debug)
	client := kernel.NewIoctlClient()

	sub, subArgs := rest[0], rest[1:]

	switch sub {
	case "status":
		return cmdStatus(stdout, client)
	case "plan":
		return cmdPlan(stdout, stderr, cfg, client, subArgs, debugf)
	case "magic-mount":
		return cmdMagicMount(stdout, stderr, cfg, subArgs, debugf)
	case "hide":
		return cmdHide(stdout, stderr, client, subArgs)
	case "lkm":
		return cmdLKM(stdout, stderr, client, subArgs)
	default:
		fmt.Fprintf(stderr, "hymoctl: unknown command %q\n\n%s\n", sub, usage())
		return 2
	}
}

func usage() string {
	return `usage: hymoctl [flags] <command> [args]

commands:
  status                     Check kernel shim availability and protocol version
  plan [--apply]              Compute (and optionally apply) the kernel-shim module plan
  magic-mount [--apply]        Compute (and optionally apply) the bind-mount union plan
  hide add|remove|list <path>  Manage user-authored hide rules
  lkm load|unload|autoload     Load/unload the kernel shim module, manage autoload

flags:
  --config file                  Use specified config file
  --module-dir dir                Override the module root directory
  --storage-root dir               Override the per-module content root
  --partitions name                 Additional partition to scan (repeatable)
  --ignore-protocol-mismatch        Proceed even on a protocol version mismatch
  --debug                           Print verbose tracing to stderr`
}
