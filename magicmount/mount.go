//go:build linux

package magicmount

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hymofs/overlay"
)

// MountSource is the device name reported for the scratch tmpfs mount
// (cosmetic: shows up in /proc/mounts).
const MountSource = "hymo-magic-mount"

// Executor realizes a union tree built by ScanModules against the live
// filesystem, via a tmpfs scratch area that is assembled off to the side
// and then MS_MOVE'd into place one directory at a time.
type Executor struct {
	Debugf func(format string, args ...any)
	Stats  Stats
}

// NewExecutor returns an Executor with a no-op logger; set Debugf to wire in
// a real sink.
func NewExecutor() *Executor {
	return &Executor{Debugf: func(string, ...any) {}}
}

func (ex *Executor) logf(format string, args ...any) {
	if ex.Debugf != nil {
		ex.Debugf(format, args...)
	}
}

// Run mounts tempRoot as a scratch tmpfs, realizes root's tree against "/"
// using it as working storage, then detaches the scratch mount. tempRoot's
// parent must already exist (see SelectTempDir).
func (ex *Executor) Run(root *Node, tempRoot string) error {
	workdir := filepath.Join(tempRoot, "workdir")
	if err := overlay.MkdirAll(workdir); err != nil {
		return fmt.Errorf("magicmount: creating scratch dir %q: %w", workdir, err)
	}

	ex.logf("magicmount: mounting tmpfs: %s (source=%s)", workdir, MountSource)

	if err := unix.Mount(MountSource, workdir, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("magicmount: mounting scratch tmpfs %q: %w", workdir, err)
	}

	_ = unix.Mount("", workdir, "", unix.MS_REC|unix.MS_PRIVATE, "")

	err := ex.mountNode(root, "/", workdir, false)

	_ = unix.Unmount(workdir, unix.MNT_DETACH)
	_ = os.Remove(workdir)

	if err != nil {
		ex.Stats.recordFailure("")
		return err
	}

	return nil
}

func (ex *Executor) mountNode(node *Node, path, wpath string, hasTmpfs bool) error {
	switch node.Type {
	case NodeRegular:
		return ex.mountRegularFile(node, path, wpath, hasTmpfs)
	case NodeSymlink:
		if node.ModulePath == "" {
			return fmt.Errorf("magicmount: no module path for symlink %s", path)
		}

		if err := ex.cloneSymlink(node.ModulePath, wpath); err != nil {
			return err
		}

		ex.Stats.NodesMounted++

		return nil
	case NodeWhiteout:
		ex.logf("magicmount: whiteout: %s", path)
		ex.Stats.NodesWhiteout++

		return nil
	case NodeDirectory:
		return ex.mountDirectory(node, "/", wpath, hasTmpfs)
	default:
		return nil
	}
}

func (ex *Executor) mountRegularFile(node *Node, path, wpath string, hasTmpfs bool) error {
	target := path
	if hasTmpfs {
		target = wpath

		f, err := os.OpenFile(wpath, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("magicmount: creating %q: %w", wpath, err)
		}
		f.Close()
	}

	if node.ModulePath == "" {
		return fmt.Errorf("magicmount: no module path for %s", path)
	}

	ex.logf("magicmount: bind %s -> %s", node.ModulePath, target)

	if err := unix.Mount(node.ModulePath, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("magicmount: bind %s -> %s: %w", node.ModulePath, target, err)
	}

	_ = unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, "")

	ex.Stats.NodesMounted++

	return nil
}

func (ex *Executor) cloneSymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("magicmount: readlink %q: %w", src, err)
	}

	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("magicmount: symlink %s -> %s: %w", dst, target, err)
	}

	CopyContext(src, dst, ex.Debugf)
	ex.logf("magicmount: clone_symlink: %s -> %s", dst, target)

	return nil
}

func (ex *Executor) mirrorEntry(srcBase, dstBase, name string) error {
	src := filepath.Join(srcBase, name)
	dst := filepath.Join(dstBase, name)

	info, err := os.Lstat(src)
	if err != nil {
		ex.logf("magicmount: lstat %s: %v", src, err)
		return nil
	}

	switch {
	case info.Mode().IsRegular():
		return ex.mirrorFile(src, dst, info)
	case info.IsDir():
		return ex.mirrorDir(src, dst, info)
	case info.Mode()&os.ModeSymlink != 0:
		return ex.cloneSymlink(src, dst)
	default:
		return nil
	}
}

func (ex *Executor) mirrorFile(src, dst string, info os.FileInfo) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("magicmount: creating %q: %w", dst, err)
	}
	f.Close()

	if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("magicmount: bind %s -> %s: %w", src, dst, err)
	}

	return nil
}

func (ex *Executor) mirrorDir(src, dst string, info os.FileInfo) error {
	if err := os.Mkdir(dst, info.Mode().Perm()); err != nil && !os.IsExist(err) {
		return fmt.Errorf("magicmount: mkdir %q: %w", dst, err)
	}

	_ = os.Chmod(dst, info.Mode().Perm())

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		_ = os.Chown(dst, int(st.Uid), int(st.Gid))
	}

	CopyContext(src, dst, ex.Debugf)

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("magicmount: reading %q: %w", src, err)
	}

	for _, e := range entries {
		if err := ex.mirrorEntry(src, dst, e.Name()); err != nil {
			return err
		}
	}

	return nil
}

// needTmpfsForChild reports whether realizing child under the real
// directory real_path requires first materializing a tmpfs copy of the
// parent: true whenever the real filesystem's shape under that name
// disagrees with what the union tree wants there.
func needTmpfsForChild(child *Node, realPath string) bool {
	path := filepath.Join(realPath, child.Name)

	switch child.Type {
	case NodeSymlink:
		return true
	case NodeWhiteout:
		return overlay.Exists(path)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return true
	}

	realType, ok := nodeTypeFromStat(info)
	if !ok {
		return true
	}

	return realType != child.Type || realType == NodeSymlink
}

func checkNeedTmpfs(node *Node, path string, hasTmpfs bool) bool {
	if !hasTmpfs && node.Replace && node.ModulePath != "" {
		return true
	}

	for _, child := range node.Children {
		if needTmpfsForChild(child, path) {
			return true
		}
	}

	return false
}

func (ex *Executor) setupTmpfsDir(wpath, path, modulePath string) error {
	if err := overlay.MkdirAll(wpath); err != nil {
		return fmt.Errorf("magicmount: creating %q: %w", wpath, err)
	}

	var (
		info os.FileInfo
		err  error
		meta string
	)

	if info, err = os.Stat(path); err == nil {
		meta = path
	} else if modulePath != "" {
		if info, err = os.Stat(modulePath); err == nil {
			meta = modulePath
		}
	}

	if meta == "" {
		return fmt.Errorf("magicmount: no metadata source for %s", path)
	}

	_ = os.Chmod(wpath, info.Mode().Perm())

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		_ = os.Chown(wpath, int(st.Uid), int(st.Gid))
	}

	CopyContext(meta, wpath, ex.Debugf)

	return nil
}

func (ex *Executor) processChild(child *Node, path, wpath string, hasTmpfs bool) error {
	if child.Skip {
		child.done = true
		return nil
	}

	child.done = true

	if child.Type == NodeDirectory {
		return ex.mountDirectory(child, path, wpath, hasTmpfs)
	}

	return ex.mountNode(child, filepath.Join(path, child.Name), filepath.Join(wpath, child.Name), hasTmpfs)
}

func (ex *Executor) recordChildFailure(child *Node, parent *Node) {
	moduleName := parent.ModuleName
	if child != nil && child.ModuleName != "" {
		moduleName = child.ModuleName
	}

	ex.Stats.recordFailure(moduleName)
}

// mountDirectory realizes node (a directory) rooted at basePath/node.Name,
// using baseWork/node.Name as tmpfs scratch space once a tmpfs copy becomes
// necessary. When it does, the assembled replacement directory is MS_MOVE'd
// over the original in one atomic step at the end.
func (ex *Executor) mountDirectory(node *Node, basePath, baseWork string, hasTmpfs bool) error {
	path := filepath.Join(basePath, node.Name)
	wpath := filepath.Join(baseWork, node.Name)

	createTmpfs := checkNeedTmpfs(node, path, hasTmpfs)
	nowTmpfs := hasTmpfs || createTmpfs

	if nowTmpfs {
		if err := ex.setupTmpfsDir(wpath, path, node.ModulePath); err != nil {
			return err
		}
	}

	if createTmpfs {
		if err := unix.Mount(wpath, wpath, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("magicmount: bind self %s: %w", wpath, err)
		}
	}

	if overlay.Exists(path) && !node.Replace {
		entries, err := os.ReadDir(path)
		if err != nil {
			if nowTmpfs {
				return fmt.Errorf("magicmount: reading %q: %w", path, err)
			}
		} else {
			for _, e := range entries {
				child := node.findChild(e.Name())

				var childErr error
				if child != nil {
					childErr = ex.processChild(child, path, wpath, nowTmpfs)
				} else if nowTmpfs {
					childErr = ex.mirrorEntry(path, wpath, e.Name())
				}

				if childErr != nil {
					ex.recordChildFailure(child, node)

					if nowTmpfs {
						return childErr
					}
				}
			}
		}
	}

	for _, child := range node.Children {
		if child.Skip || child.done {
			continue
		}

		if err := ex.processChild(child, path, wpath, nowTmpfs); err != nil {
			ex.recordChildFailure(child, node)

			if nowTmpfs {
				return err
			}
		}
	}

	if createTmpfs {
		_ = unix.Mount("", wpath, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, "")

		if err := unix.Mount(wpath, path, "", unix.MS_MOVE, ""); err != nil {
			ex.Stats.recordFailure(node.ModuleName)
			return fmt.Errorf("magicmount: move %s -> %s: %w", wpath, path, err)
		}

		ex.logf("magicmount: moved tmpfs: %s -> %s", wpath, path)
		_ = unix.Mount("", path, "", unix.MS_REC|unix.MS_PRIVATE, "")
	}

	ex.Stats.NodesMounted++

	return nil
}
