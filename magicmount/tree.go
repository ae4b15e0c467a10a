//go:build linux

package magicmount

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hymofs/overlay"
)

// NodeType classifies one entry in the in-memory union tree.
type NodeType int

const (
	NodeRegular NodeType = iota
	NodeDirectory
	NodeSymlink
	NodeWhiteout
)

func (t NodeType) String() string {
	switch t {
	case NodeDirectory:
		return "directory"
	case NodeSymlink:
		return "symlink"
	case NodeWhiteout:
		return "whiteout"
	default:
		return "regular"
	}
}

// Node is one path component of the union tree the bind-mount planner
// builds before realizing it against the live filesystem.
//
// A Node with no ModulePath is a pure structural node (the synthesized root
// and the "system" node that every partition hangs off of); one with a
// ModulePath came from a specific module's content directory.
type Node struct {
	Name       string
	Type       NodeType
	Children   []*Node
	ModulePath string
	ModuleName string
	Replace    bool // opaque directory: module content fully replaces the real one
	Skip       bool
	done       bool
}

func newNode(name string, typ NodeType) *Node {
	return &Node{Name: name, Type: typ}
}

func (n *Node) addChild(c *Node) {
	n.Children = append(n.Children, c)
}

func (n *Node) findChild(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// takeChild removes and returns the named child, or nil if absent.
func (n *Node) takeChild(name string) *Node {
	for i, c := range n.Children {
		if c.Name == name {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return c
		}
	}

	return nil
}

// nodeTypeFromStat classifies a lstat'd entry, treating a character device
// with a zero rdev as a whiteout marker (spec §3 whiteout semantics).
func nodeTypeFromStat(info os.FileInfo) (NodeType, bool) {
	mode := info.Mode()

	if mode&os.ModeCharDevice != 0 {
		if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Rdev == 0 {
			return NodeWhiteout, true
		}

		return 0, false
	}

	switch {
	case mode.IsRegular():
		return NodeRegular, true
	case mode.IsDir():
		return NodeDirectory, true
	case mode&os.ModeSymlink != 0:
		return NodeSymlink, true
	default:
		return 0, false
	}
}

func isDirOpaque(path string) bool {
	buf := make([]byte, 8)

	n, err := lgetxattr(path, xattrOpaque, buf)
	return err == nil && n > 0 && buf[0] == 'y'
}

// createNodeFromPath lstats path and builds the corresponding Node, or
// returns (nil, nil) for an entry whose type the union tree doesn't model
// (fifo, socket, block device, or character device with a non-zero rdev).
func createNodeFromPath(name, path, moduleName string, stats *Stats) (*Node, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("magicmount: lstat %q: %w", path, err)
	}

	typ, ok := nodeTypeFromStat(info)
	if !ok {
		return nil, nil
	}

	n := newNode(name, typ)
	n.ModulePath = path
	n.ModuleName = moduleName
	n.Replace = typ == NodeDirectory && isDirOpaque(path)
	stats.NodesTotal++

	return n, nil
}

func isModuleDisabled(modDir string) bool {
	for _, marker := range [...]string{"disable", "remove", "skip_mount"} {
		if overlay.Exists(filepath.Join(modDir, marker)) {
			return true
		}
	}

	return false
}

// collectModuleFiles merges module content at dir into the corresponding
// subtree of node, recursing into directories; it reports whether dir (or
// any descendant) contributed at least one node.
func collectModuleFiles(node *Node, dir, moduleName string, stats *Stats) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("magicmount: reading %q: %w", dir, err)
	}

	any := false

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		child := node.findChild(e.Name())
		if child == nil {
			child, err = createNodeFromPath(e.Name(), path, moduleName, stats)
			if err != nil {
				return false, err
			}
			if child == nil {
				continue
			}
			node.addChild(child)
		}

		if child.Type == NodeDirectory {
			sub, err := collectModuleFiles(child, path, moduleName, stats)
			if err != nil {
				return false, err
			}
			if sub || child.Replace {
				any = true
			}
		} else {
			any = true
		}
	}

	return any, nil
}

// symlinkPartitions are builtin partitions only merged into root when
// /system/<name> is itself a symlink (the stock layout hasn't already
// absorbed them as real directories).
var symlinkPartitions = []string{"vendor", "system_ext", "product"}

// plainPartitions are merged into root purely based on /<name> existing.
var plainPartitions = []string{"odm"}

func addPartitionNodes(root, system *Node) error {
	for _, name := range symlinkPartitions {
		if !overlay.IsDir("/"+name) || !overlay.IsSymlink(filepath.Join("/system", name)) {
			continue
		}

		if child := system.takeChild(name); child != nil {
			root.addChild(child)
		}
	}

	for _, name := range plainPartitions {
		if !overlay.IsDir("/" + name) {
			continue
		}

		if child := system.takeChild(name); child != nil {
			root.addChild(child)
		}
	}

	return nil
}

// ScanOptions configures ScanModules.
type ScanOptions struct {
	// ModuleDir is the module root directory to scan.
	ModuleDir string

	// ExtraPartitions are additional partition names (beyond the builtin
	// vendor/system_ext/product/odm set) to hoist out of "system" and into
	// root, provided the corresponding real directory exists.
	ExtraPartitions []string
}

// ScanModules walks every enabled module's "system" directory, merging
// their content into a single union tree, and returns that tree along with
// scan statistics. A nil tree means no module contributed any content (the
// returned Stats still count the modules scanned): the caller should skip
// mounting entirely.
func ScanModules(opts ScanOptions, debugf func(format string, args ...any)) (*Node, Stats, error) {
	if debugf == nil {
		debugf = func(string, ...any) {}
	}

	var stats Stats

	root := newNode("", NodeDirectory)
	system := newNode("system", NodeDirectory)

	entries, err := os.ReadDir(opts.ModuleDir)
	if err != nil {
		return nil, stats, fmt.Errorf("magicmount: reading module dir %q: %w", opts.ModuleDir, err)
	}

	hasAny := false

	for _, e := range entries {
		modPath := filepath.Join(opts.ModuleDir, e.Name())
		if !overlay.IsDir(modPath) || isModuleDisabled(modPath) {
			continue
		}

		sysPath := filepath.Join(modPath, "system")
		if !overlay.IsDir(sysPath) {
			continue
		}

		debugf("magicmount: scanning module %s", e.Name())
		stats.ModulesTotal++

		sub, err := collectModuleFiles(system, sysPath, e.Name(), &stats)
		if err != nil {
			return nil, stats, err
		}
		if sub {
			hasAny = true
		}
	}

	if !hasAny {
		return nil, stats, nil
	}

	stats.NodesTotal += 2 // root + system

	extra := append(append([]string{}, opts.ExtraPartitions...))
	for _, name := range extra {
		if !overlay.IsDir("/" + name) {
			continue
		}

		if child := system.takeChild(name); child != nil {
			root.addChild(child)
		}
	}

	if err := addPartitionNodes(root, system); err != nil {
		return nil, stats, err
	}

	root.addChild(system)

	return root, stats, nil
}
