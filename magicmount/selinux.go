//go:build linux

package magicmount

import "golang.org/x/sys/unix"

const (
	xattrSelinux = "security.selinux"
	xattrOpaque  = "trusted.overlay.opaque"
)

// lgetxattr reads the named extended attribute of path (not following
// symlinks) into buf, returning the number of bytes written.
func lgetxattr(path, name string, buf []byte) (int, error) {
	return unix.Lgetxattr(path, name, buf)
}

func lsetxattr(path, name string, value []byte) error {
	return unix.Lsetxattr(path, name, value, 0)
}

// GetContext reads the SELinux security context of path, or ("", false) if
// it has none.
func GetContext(path string) (string, bool) {
	size, err := unix.Lgetxattr(path, xattrSelinux, nil)
	if err != nil || size <= 0 {
		return "", false
	}

	buf := make([]byte, size)

	n, err := unix.Lgetxattr(path, xattrSelinux, buf)
	if err != nil {
		return "", false
	}

	return string(buf[:n]), true
}

// SetContext sets the SELinux security context of path.
func SetContext(path, ctx string, debugf func(format string, args ...any)) error {
	if debugf == nil {
		debugf = func(string, ...any) {}
	}

	debugf("magicmount: set_selinux(%s, %q)", path, ctx)

	if err := lsetxattr(path, xattrSelinux, []byte(ctx)); err != nil {
		debugf("magicmount: set_selinux %s: %v", path, err)
		return err
	}

	return nil
}

// CopyContext copies src's SELinux context onto dst, best-effort: a missing
// or unreadable source context is not an error.
func CopyContext(src, dst string, debugf func(format string, args ...any)) {
	ctx, ok := GetContext(src)
	if !ok {
		return
	}

	_ = SetContext(dst, ctx, debugf)
}
