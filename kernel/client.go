//go:build linux

package kernel

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Status is the outcome of the protocol handshake performed when the kernel
// handle is first acquired (spec §4.1, §6).
type Status int

const (
	StatusAvailable Status = iota
	StatusNotPresent
	StatusKernelTooOld
	StatusModuleTooOld
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusKernelTooOld:
		return "kernel-too-old"
	case StatusModuleTooOld:
		return "module-too-old"
	default:
		return "not-present"
	}
}

// Client is the kernel control-channel surface the planners and CLI talk to.
// A concrete *IoctlClient implements it over golang.org/x/sys/unix; tests
// substitute a fake.
type Client interface {
	CheckStatus() Status
	IsAvailable() bool
	BootstrapWithMask(mask uint64) Status
	LastErrno() error

	ClearRules() bool
	AddRule(src, target string, dtype DirentType) bool
	AddMergeRule(src, target string) bool
	DeleteRule(path string) bool
	HidePath(path string) bool
	HideOverlayXattrs(path string) bool
	SetMirrorPath(path string) bool
	SetDebug(enabled bool) bool
	SetStealth(enabled bool) bool
	SetEnabled(enabled bool) bool
	GetActiveRules() ([]string, error)

	FixMounts() bool
	SetUname(sysname, nodename, release, version, machine, domainname string) bool
	SetHookMask(mask uint64) bool
}

// IoctlClient is the default Client, backed by the HymoFS kernel shim's
// reboot(2)-acquired control handle.
//
// A single IoctlClient is meant to live for the lifetime of one planner run
// or one hymoctl invocation: the fd it acquires is never explicitly closed
// (its lifetime is tied to the process, as with the original handle), and
// the handshake status is cached so repeated calls don't re-acquire it.
type IoctlClient struct {
	mu       sync.Mutex
	fd       int
	status   Status
	errno    error
	acquired bool
}

// NewIoctlClient returns an IoctlClient with no handle acquired yet. The
// handle is acquired lazily on first use (CheckStatus/IsAvailable/etc.),
// mirroring the original implementation's "first call wins" caching.
func NewIoctlClient() *IoctlClient {
	return &IoctlClient{fd: -1}
}

// hookMaskFromEnv reads HYMO_HOOK_MASK, falling back to HookMaskAll when
// unset or unparsable (spec §6 Open Questions: env override for bring-up).
func hookMaskFromEnv() uint64 {
	v := os.Getenv("HYMO_HOOK_MASK")
	if v == "" {
		return HookMaskAll
	}

	mask, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return HookMaskAll
	}

	return mask
}

// acquire performs the reboot(2) handle acquisition and version handshake
// exactly once per IoctlClient, caching the resulting status.
func (c *IoctlClient) acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquired {
		return
	}
	c.acquired = true

	mask := hookMaskFromEnv()

	fd, _, errno := unix.Syscall6(unix.SYS_REBOOT, magic1, magic2, cmdGetFDWithMask, uintptr(mask), 0, 0)
	if errno != 0 || int(fd) < 0 {
		fd, _, errno = unix.Syscall6(unix.SYS_REBOOT, magic1, magic2, cmdGetFD, 0, 0, 0)
	}

	if errno != 0 || int(fd) < 0 {
		c.status = StatusNotPresent
		c.errno = fmt.Errorf("kernel: acquiring hymofs handle: %w", errno)
		c.fd = -1

		return
	}

	c.fd = int(fd)
	c.status = c.handshakeLocked()
}

// handshakeLocked issues GET_VERSION against the freshly-acquired fd and
// classifies the result. Caller holds c.mu.
func (c *IoctlClient) handshakeLocked() Status {
	var version int32

	call := hymoIoctlCall{
		Cmd: cmdGetVersion,
		Arg: uint64(uintptr(unsafe.Pointer(&version))),
	}

	if err := c.dispatchLocked(&call); err != nil {
		c.errno = err
		return StatusNotPresent
	}

	return classifyVersion(version)
}

// classifyVersion maps a GET_VERSION reply against ProtocolVersion (spec
// §4.1): a lower version means the kernel shim predates this client's
// expectations, a higher version means the client (module) is the one
// that's behind.
func classifyVersion(version int32) Status {
	switch {
	case version == ProtocolVersion:
		return StatusAvailable
	case version < ProtocolVersion:
		return StatusKernelTooOld
	default:
		return StatusModuleTooOld
	}
}

// dispatchLocked issues the unified HYMO_IOC_CALL ioctl with call as the
// payload. Caller holds c.mu and must have a valid c.fd.
func (c *IoctlClient) dispatchLocked(call *hymoIoctlCall) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), hymoIOCCall, uintptr(unsafe.Pointer(call)))
	if errno != 0 {
		return fmt.Errorf("kernel: ioctl cmd=%d: %w", call.Cmd, errno)
	}

	return nil
}

// dispatch acquires the handle if necessary and issues cmd with arg as the
// payload pointer (0 if the command takes no payload).
func (c *IoctlClient) dispatch(cmd uint32, arg uintptr) bool {
	c.acquire()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusAvailable || c.fd < 0 {
		return false
	}

	call := hymoIoctlCall{Cmd: cmd, Arg: uint64(arg)}
	if err := c.dispatchLocked(&call); err != nil {
		c.errno = err
		return false
	}

	return true
}

// CheckStatus acquires the handle if necessary and returns the cached
// handshake status.
func (c *IoctlClient) CheckStatus() Status {
	c.acquire()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// IsAvailable reports whether the kernel shim is present and protocol
// versions match.
func (c *IoctlClient) IsAvailable() bool {
	return c.CheckStatus() == StatusAvailable
}

// BootstrapWithMask forces re-acquisition of the handle with an explicit
// hook mask, bypassing HYMO_HOOK_MASK. The legacy acquisition form is not
// tried if the masked one fails.
func (c *IoctlClient) BootstrapWithMask(mask uint64) Status {
	c.mu.Lock()
	c.acquired = false
	c.fd = -1
	c.mu.Unlock()

	fd, _, errno := unix.Syscall6(unix.SYS_REBOOT, magic1, magic2, cmdGetFDWithMask, uintptr(mask), 0, 0)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.acquired = true

	if errno != 0 || int(fd) < 0 {
		c.status = StatusNotPresent
		c.errno = fmt.Errorf("kernel: bootstrapping hymofs handle: %w", errno)
		c.fd = -1

		return c.status
	}

	c.fd = int(fd)
	c.status = c.handshakeLocked()

	return c.status
}

// LastErrno returns the most recent error observed acquiring the handle or
// dispatching a command, or nil.
func (c *IoctlClient) LastErrno() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.errno
}

// withCString runs fn with a NUL-terminated copy of s, keeping it alive
// until fn returns so a kernel-side dereference during the ioctl is safe.
func withCString(s string, fn func(ptr uintptr)) {
	buf := append([]byte(s), 0)
	fn(uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
}

// ClearRules removes every rule currently installed in the kernel (spec §4.5
// full-reload precondition).
func (c *IoctlClient) ClearRules() bool {
	return c.dispatch(cmdClearAll, 0)
}

// AddRule installs a leaf redirection from src to target of the given dirent
// type (spec §3 add_rules).
func (c *IoctlClient) AddRule(src, target string, dtype DirentType) bool {
	ok := false

	withCString(src, func(srcPtr uintptr) {
		withCString(target, func(targetPtr uintptr) {
			arg := syscallArg{Src: srcPtr, Target: targetPtr, Type: int32(dtype)}
			ok = c.dispatch(cmdAddRule, uintptr(unsafe.Pointer(&arg)))
		})
	})

	return ok
}

// AddMergeRule installs a directory-merge rule from src to target (spec §3
// merge_rules).
func (c *IoctlClient) AddMergeRule(src, target string) bool {
	ok := false

	withCString(src, func(srcPtr uintptr) {
		withCString(target, func(targetPtr uintptr) {
			arg := syscallArg{Src: srcPtr, Target: targetPtr}
			ok = c.dispatch(cmdAddMergeRule, uintptr(unsafe.Pointer(&arg)))
		})
	})

	return ok
}

// DeleteRule removes any rule targeting path.
func (c *IoctlClient) DeleteRule(path string) bool {
	ok := false

	withCString(path, func(ptr uintptr) {
		arg := syscallArg{Src: ptr}
		ok = c.dispatch(cmdDelRule, uintptr(unsafe.Pointer(&arg)))
	})

	return ok
}

// HidePath installs a whiteout hide rule over path (spec §3 hide_rules).
func (c *IoctlClient) HidePath(path string) bool {
	ok := false

	withCString(path, func(ptr uintptr) {
		arg := syscallArg{Src: ptr}
		ok = c.dispatch(cmdHideRule, uintptr(unsafe.Pointer(&arg)))
	})

	return ok
}

// HideOverlayXattrs instructs the kernel to suppress overlay-identifying
// extended attributes under path, so probing tools can't fingerprint the
// shim (spec §4.1).
func (c *IoctlClient) HideOverlayXattrs(path string) bool {
	ok := false

	withCString(path, func(ptr uintptr) {
		arg := syscallArg{Src: ptr}
		ok = c.dispatch(cmdHideOverlayXattrs, uintptr(unsafe.Pointer(&arg)))
	})

	return ok
}

// SetMirrorPath tells the kernel where the mirrored/original root content
// lives, used as the fallback read side for paths with no rule.
func (c *IoctlClient) SetMirrorPath(path string) bool {
	ok := false

	withCString(path, func(ptr uintptr) {
		arg := syscallArg{Src: ptr}
		ok = c.dispatch(cmdSetMirrorPath, uintptr(unsafe.Pointer(&arg)))
	})

	return ok
}

func (c *IoctlClient) setBool(cmd uint32, enabled bool) bool {
	v := int32(0)
	if enabled {
		v = 1
	}

	return c.dispatch(cmd, uintptr(unsafe.Pointer(&v)))
}

// SetDebug toggles kernel-side debug logging.
func (c *IoctlClient) SetDebug(enabled bool) bool { return c.setBool(cmdSetDebug, enabled) }

// SetStealth toggles suppression of shim-identifying artifacts (mountinfo
// entries, xattrs) beyond HideOverlayXattrs.
func (c *IoctlClient) SetStealth(enabled bool) bool { return c.setBool(cmdSetStealth, enabled) }

// SetEnabled toggles whether the kernel applies the installed rule set at
// all; a full reload always finishes with SetEnabled(true) (spec §4.5).
func (c *IoctlClient) SetEnabled(enabled bool) bool { return c.setBool(cmdSetEnabled, enabled) }

// GetActiveRules asks the kernel to dump the currently installed rule set as
// newline-separated text, growing the scratch buffer until it fits.
func (c *IoctlClient) GetActiveRules() ([]string, error) {
	size := 8192

	for attempt := 0; attempt < 6; attempt++ {
		buf := make([]byte, size)
		arg := syscallListArg{Buf: uintptr(unsafe.Pointer(&buf[0])), Size: uint64(size)}

		if !c.dispatch(cmdListRules, uintptr(unsafe.Pointer(&arg))) {
			return nil, c.LastErrno()
		}

		runtime.KeepAlive(buf)

		n := indexNUL(buf)
		if n < len(buf)-1 {
			return splitNonEmptyLines(string(buf[:n])), nil
		}

		size *= 2
	}

	return nil, fmt.Errorf("kernel: active rule set too large to retrieve")
}

// FixMounts asks the kernel shim to re-derive its mount-id ordering so newly
// bind-mounted content is visible through the overlay (spec §4.1
// reorder_mnt_id).
func (c *IoctlClient) FixMounts() bool {
	return c.dispatch(cmdReorderMntID, 0)
}

// SetUname pushes a spoofed uname(2) response for processes observed through
// the shim.
func (c *IoctlClient) SetUname(sysname, nodename, release, version, machine, domainname string) bool {
	var u spoofUname

	copyCString(u.Sysname[:], sysname)
	copyCString(u.Nodename[:], nodename)
	copyCString(u.Release[:], release)
	copyCString(u.Version[:], version)
	copyCString(u.Machine[:], machine)
	copyCString(u.Domainname[:], domainname)

	return c.dispatch(cmdSetUname, uintptr(unsafe.Pointer(&u)))
}

// SetHookMask updates which runtime hooks the kernel shim keeps active,
// without re-acquiring the handle (spec §6).
func (c *IoctlClient) SetHookMask(mask uint64) bool {
	m := mask
	return c.dispatch(cmdSetHookMask, uintptr(unsafe.Pointer(&m)))
}

func copyCString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}

	return len(b)
}

func splitNonEmptyLines(s string) []string {
	var out []string

	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}

	return out
}
