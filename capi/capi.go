//go:build linux

// Command capi exposes a minimal C ABI over package kernel for linking from
// NDK/CMake-built native code, mirroring the original project's
// hymo_minimal C API surface: status check, clear rules, fix mounts, and
// toggle enabled — nothing else. Build with
// `go build -buildmode=c-archive -o libhymo_minimal.a ./capi`.
package main

/*
// HymoFS status: 0=Available, 1=NotPresent, 2=KernelTooOld, 3=ModuleTooOld
int hymo_check_status(void);

// Clear all HymoFS rules. Returns 0 on success, -1 on error.
int hymo_clear_rules(void);

// Fix mount namespace (reorder mnt_id). Returns 0 on success, -1 on error.
int hymo_fix_mounts(void);

// Set HymoFS enabled state. enabled: 0=off, non-zero=on. Returns 0 on success.
int hymo_set_enabled(int enabled);
*/
import "C"

import (
	"sync"

	"github.com/hymofs/overlay/kernel"
)

var (
	clientOnce sync.Once
	client     *kernel.IoctlClient
)

func sharedClient() *kernel.IoctlClient {
	clientOnce.Do(func() {
		client = kernel.NewIoctlClient()
	})

	return client
}

//export hymo_check_status
func hymo_check_status() C.int {
	return C.int(sharedClient().CheckStatus())
}

//export hymo_clear_rules
func hymo_clear_rules() C.int {
	if sharedClient().ClearRules() {
		return 0
	}

	return -1
}

//export hymo_fix_mounts
func hymo_fix_mounts() C.int {
	if sharedClient().FixMounts() {
		return 0
	}

	return -1
}

//export hymo_set_enabled
func hymo_set_enabled(enabled C.int) C.int {
	if sharedClient().SetEnabled(enabled != 0) {
		return 0
	}

	return -1
}

func main() {}
