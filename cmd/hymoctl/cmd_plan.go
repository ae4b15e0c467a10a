//go:build linux

package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/hymofs/overlay"
	"github.com/hymofs/overlay/kernel"
)

func cmdStatus(stdout io.Writer, client kernel.Client) int {
	status := client.CheckStatus()

	fmt.Fprintf(stdout, "kernel shim: %s\n", status)

	if status == kernel.StatusAvailable {
		return 0
	}

	return 1
}

// cmdPlan computes the kernel-shim participation plan and, with --apply,
// pushes the resulting rule set to the kernel (the emission pass).
func cmdPlan(stdout, stderr io.Writer, cfg Config, client kernel.Client, args []string, debugf func(format string, args ...any)) int {
	flags := flag.NewFlagSet("plan", flag.ContinueOnError)
	flags.Usage = func() {}

	apply := flags.Bool("apply", false, "Push the computed plan to the kernel shim")
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	params := cfg.ToParams()

	modules, err := overlay.ScanModules(params.ModuleDir)
	if err != nil {
		fmt.Fprintln(stderr, "hymoctl: scanning modules:", err)
		return 1
	}

	plan := kernel.GeneratePlan(client, params, modules)

	fmt.Fprintf(stdout, "hymofs modules (%d):\n", len(plan.HymofsModuleIDs))
	for _, id := range plan.HymofsModuleIDs {
		fmt.Fprintf(stdout, "  %s\n", id)
	}

	if !*apply {
		return 0
	}

	if err := kernel.UpdateMappings(client, params, modules, plan); err != nil {
		fmt.Fprintln(stderr, "hymoctl: applying plan:", err)
		return 1
	}

	state := overlay.RuntimeState{
		StorageMode:     "hymofs",
		MountPoint:      "/",
		HymofsModuleIDs: plan.HymofsModuleIDs,
		PID:             processPID(),
	}
	if err := state.Save(); err != nil {
		debugf("hymoctl: saving runtime state: %v", err)
	}

	fmt.Fprintln(stdout, "applied.")

	return 0
}
