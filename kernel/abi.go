//go:build linux

package kernel

// This file reproduces the HymoFS kernel ABI byte- and bit-exact (spec §9):
// the magic reboot-syscall tuple, the command number table, and the wire
// structs passed as the unified ioctl's payload pointer. None of this is
// negotiable — it is the contract with an unmodifiable kernel counterpart.

// Magic reboot-syscall tuple (spec §4.1, §6).
const (
	magic1 = 0x48594D4F // "HYMO"
	magic2 = 0x524F4F54 // "ROOT"

	cmdGetFD         = 0x48021
	cmdGetFDWithMask = 0x48022
)

// ProtocolVersion is the compile-time expected HymoFS protocol version
// (spec §4.1, §6).
const ProtocolVersion = 12

// Command numbers sent as the cmd field of the unified HYMO_IOC_CALL ioctl
// (spec §6).
const (
	cmdClearAll           = 100
	cmdGetVersion         = 101
	cmdSetDebug           = 102
	cmdReorderMntID       = 103
	cmdSetStealth         = 104
	cmdSetEnabled         = 105
	cmdListRules          = 106
	cmdSetMirrorPath      = 107
	cmdAddMergeRule       = 108
	cmdAddRule            = 109
	cmdHideRule           = 110
	cmdHideOverlayXattrs  = 111
	cmdDelRule            = 112
	cmdAddSpoofKstat      = 113
	cmdUpdateSpoofKstat   = 114
	cmdSetUname           = 115
	cmdSetCmdline         = 116
	cmdSetHookMask        = 117
)

// hymoIoctlCall mirrors `struct hymo_ioctl_call` in hymo_magic.h:
//
//	struct hymo_ioctl_call {
//	    uint32_t cmd;
//	    uint32_t reserved;
//	    uint64_t arg;
//	};
type hymoIoctlCall struct {
	Cmd      uint32
	Reserved uint32
	Arg      uint64
}

// ioctlCallSize is sizeof(hymo_ioctl_call) on a 64-bit target (16 bytes: two
// uint32 fields followed by a naturally-aligned uint64).
const ioctlCallSize = 16

// hymoIOCMagic / hymoIOCCallNr are the ioctl-number components for the
// unified call (HYMO_IOC_MAGIC 'H', nr 22 per hymo_magic.h).
const (
	hymoIOCMagic  = 'H'
	hymoIOCCallNr = 22
)

// Linux ioctl number encoding (include/uapi/asm-generic/ioctl.h), reproduced
// here because golang.org/x/sys/unix does not expose a generic _IOW/_IOR/_IOWR
// helper usable for a custom out-of-tree ioctl.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
)

func iow(typ, nr, size uint32) uint32 {
	return (iocWrite << iocDirShift) | (size << iocSizeShift) | (typ << iocTypeShift) | (nr << iocNrShift)
}

// hymoIOCCall is `_IOW(HYMO_IOC_MAGIC, 22, struct hymo_ioctl_call)` — the
// single ioctl number every command is funneled through (spec §6).
var hymoIOCCall = uintptr(iow(hymoIOCMagic, hymoIOCCallNr, ioctlCallSize))

// syscallArg mirrors `struct hymo_syscall_arg`:
//
//	struct hymo_syscall_arg {
//	    const char* src;
//	    const char* target;
//	    int type;
//	};
//
// Src/Target hold the address of a NUL-terminated byte slice kept alive by
// the caller across the ioctl (see withCString in client.go).
type syscallArg struct {
	Src    uintptr
	Target uintptr
	Type   int32
}

// syscallListArg mirrors `struct hymo_syscall_list_arg`:
//
//	struct hymo_syscall_list_arg {
//	    char* buf;
//	    size_t size;
//	};
type syscallListArg struct {
	Buf  uintptr
	Size uint64
}

// unameLen mirrors HYMO_UNAME_LEN.
const unameLen = 65

// spoofUname mirrors `struct hymo_spoof_uname`.
type spoofUname struct {
	Sysname    [unameLen]byte
	Nodename   [unameLen]byte
	Release    [unameLen]byte
	Version    [unameLen]byte
	Machine    [unameLen]byte
	Domainname [unameLen]byte
	Err        int32
}

// Hook mask bits (spec §6, hymo_magic.h). Exposed for callers that want to
// compose a custom mask rather than HookMaskAll.
const (
	HookDirents        = 1 << 0
	HookFilenameLookup = 1 << 1
	HookShowMountinfo  = 1 << 2
	HookSetxattr       = 1 << 3
	HookGetxattr       = 1 << 4
	HookListxattr      = 1 << 5
	HookRename         = 1 << 6
	HookUnlink         = 1 << 7
	HookReadlink       = 1 << 8
	HookCmdline        = 1 << 9
)

// HookMaskAll enables every runtime hook, the default bootstrap mask.
const HookMaskAll = HookDirents | HookFilenameLookup | HookShowMountinfo | HookSetxattr |
	HookGetxattr | HookListxattr | HookRename | HookUnlink | HookReadlink | HookCmdline

// DirentType identifies the kind of a leaf entry for an add rule (spec §3).
// Values match the POSIX dirent DT_* constants referenced by the original
// implementation.
type DirentType int32

const (
	DTUnknown DirentType = 0
	DTFifo    DirentType = 1
	DTChr     DirentType = 2
	DTDir     DirentType = 4
	DTBlk     DirentType = 6
	DTReg     DirentType = 8
	DTLnk     DirentType = 10
	DTSock    DirentType = 12
)
