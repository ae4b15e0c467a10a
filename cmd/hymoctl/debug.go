//go:build linux

package main

import (
	"fmt"
	"io"
)

// newDebugf returns a logging callback that writes to w when enabled is
// true, and discards everything otherwise. The same callback is passed to
// every magicmount entry point and to cmdPlan per invocation; the overlay and
// kernel packages take no logging callback.
func newDebugf(w io.Writer, enabled bool) func(format string, args ...any) {
	if !enabled {
		return func(string, ...any) {}
	}

	return func(format string, args ...any) {
		fmt.Fprintf(w, "[debug] "+format+"\n", args...)
	}
}
