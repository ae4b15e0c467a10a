//go:build linux

// Command hymoctl drives the HymoFS overlay planners from the shell:
// inspecting kernel-shim status, running the kernel-shim or bind-mount
// realization passes, managing user hide rules, and loading/unloading the
// kernel shim module.
package main

import "os"

func main() {
	os.Exit(Run(os.Stdout, os.Stderr, os.Args))
}
