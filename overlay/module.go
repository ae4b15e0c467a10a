//go:build linux

package overlay

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reserved module directory names that are never treated as modules.
const (
	reservedHymo      = "hymo"
	reservedLostFound = "lost+found"
	reservedGit       = ".git"
)

// Marker files that disable a module entirely.
const (
	disableFileName   = "disable"
	removeFileName    = "remove"
	skipMountFileName = "skip_mount"
)

// Per-module config file names.
const (
	modulePropFileName = "module.prop"
	hymoRulesFileName  = "hymo_rules.conf"
)

// ModuleRule is a single per-path override inside a module's hymo_rules.conf.
//
// Mode is one of "hymofs", "none", or "hide". Path is an absolute virtual
// path as written by the module author (not yet resolved against symlinked
// ancestors).
type ModuleRule struct {
	Path string
	Mode string
}

// Module is an immutable record describing one module directory under the
// module root.
//
// Mode is the raw value read from module.prop's "mode" key (defaulting to
// "auto" when absent or the file is missing). Normalization of "auto",
// "overlay", and "magic" into "hymofs" is a planner concern (see package
// kernel), not an inventory concern — the original implementation reads the
// field permissively and only interprets it downstream.
type Module struct {
	ID         string
	SourcePath string
	Mode       string
	Rules      []ModuleRule
}

// ScanModules enumerates module directories under root and returns them
// sorted by ID in descending lexicographic order.
//
// Descending order fixes priority: modules sorting later are processed first
// by the kernel-shim planner's reverse emission walk (see
// kernel.UpdateMappings), so their rules are overridden by earlier-sorted,
// higher-priority modules.
//
// Directories named "hymo", "lost+found", or ".git" are never modules. A
// directory containing any of "disable", "remove", or "skip_mount" is
// skipped. A missing root directory yields an empty, non-error result.
func ScanModules(root string) ([]Module, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("overlay: scanning module root %q: %w", root, err)
	}

	modules := make([]Module, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if id == reservedHymo || id == reservedLostFound || id == reservedGit {
			continue
		}

		modPath := filepath.Join(root, id)
		if isModuleDisabled(modPath) {
			continue
		}

		mod := Module{
			ID:         id,
			SourcePath: modPath,
			Mode:       "auto",
		}

		mod.Rules = parseModuleRules(modPath)

		if mode, ok := parseModulePropMode(modPath); ok {
			mod.Mode = mode
		}

		modules = append(modules, mod)
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].ID > modules[j].ID })

	return modules, nil
}

func isModuleDisabled(modPath string) bool {
	for _, marker := range [...]string{disableFileName, removeFileName, skipMountFileName} {
		if _, err := os.Stat(filepath.Join(modPath, marker)); err == nil {
			return true
		}
	}

	return false
}

// parseModulePropMode reads the "mode" key from module.prop. A malformed or
// missing file is not an error: the module falls back to its zero-value
// default ("auto"), matching the permissive line scanning the original
// implementation does.
func parseModulePropMode(modPath string) (string, bool) {
	f, err := os.Open(filepath.Join(modPath, modulePropFileName))
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		if key == "mode" {
			return value, true
		}
	}

	return "", false
}

// parseModuleRules reads hymo_rules.conf: non-blank, non-"#" lines of the
// form "path = mode". Whitespace around both path and mode is trimmed; mode
// is lowercased. Malformed lines (no "=") are skipped; a missing file yields
// no rules.
func parseModuleRules(modPath string) []ModuleRule {
	f, err := os.Open(filepath.Join(modPath, hymoRulesFileName))
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []ModuleRule

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rawPath, rawMode, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		path := strings.TrimSpace(rawPath)
		mode := strings.ToLower(strings.TrimSpace(rawMode))

		rules = append(rules, ModuleRule{Path: path, Mode: mode})
	}

	return rules
}
