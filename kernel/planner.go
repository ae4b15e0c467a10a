//go:build linux

package kernel

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hymofs/overlay"
)

// Plan is the outcome of the participation pass: which modules qualify for
// kernel-shim (as opposed to bind-mount) realization.
type Plan struct {
	HymofsModuleIDs []string
}

// normalizeDefaultMode folds the user-facing "auto"/"overlay"/"magic" module
// modes into the single internal "hymofs" mode; "none" and "hide" pass
// through unchanged.
func normalizeDefaultMode(mode string) string {
	switch mode {
	case "auto", "overlay", "magic":
		return "hymofs"
	default:
		return mode
	}
}

// resolveMode finds the mode that applies to pathStr among rules, using
// longest-prefix match with a '/'-boundary requirement. Ties (equal prefix
// length) keep whichever rule was seen first: the comparison below is a
// strict '>', not '>=', so a later rule of equal length never displaces an
// earlier one.
func resolveMode(rules []overlay.ModuleRule, pathStr, defaultMode string) string {
	mode := defaultMode
	maxLen := 0

	for _, rule := range rules {
		matches := pathStr == rule.Path ||
			(len(pathStr) > len(rule.Path) &&
				strings.HasPrefix(pathStr, rule.Path) &&
				pathStr[len(rule.Path)] == '/')

		if matches && len(rule.Path) > maxLen {
			maxLen = len(rule.Path)
			mode = rule.Mode
		}
	}

	return mode
}

func hasFiles(path string) bool {
	if !overlay.IsDir(path) {
		return false
	}

	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

func hasMeaningfulContent(base string, partitions []string) bool {
	for _, part := range partitions {
		p := filepath.Join(base, part)
		if overlay.Exists(p) && hasFiles(p) {
			return true
		}
	}

	return false
}

func virtualPath(base, full string) string {
	rel, err := filepath.Rel(base, full)
	if err != nil {
		return full
	}

	return "/" + filepath.ToSlash(rel)
}

// scanPartitionActive reports whether any entry under dir resolves to
// "hymofs" or "auto" mode, recursing into every directory regardless of its
// own resolved mode (mirroring a plain recursive directory walk with no
// pruning).
func scanPartitionActive(contentPath, dir string, rules []overlay.ModuleRule, defaultMode string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		vp := virtualPath(contentPath, full)

		mode := resolveMode(rules, vp, defaultMode)
		if mode == "hymofs" || mode == "auto" {
			return true
		}

		if e.IsDir() && scanPartitionActive(contentPath, full, rules, defaultMode) {
			return true
		}
	}

	return false
}

// GeneratePlan runs the participation pass: deciding which modules are
// realized through the kernel shim rather than left for the bind-mount
// fallback planner.
//
// When the kernel shim isn't available (and protocol mismatches aren't
// explicitly tolerated via Params.IgnoreProtocolMismatch), GeneratePlan
// returns an empty Plan — every module falls through to magicmount instead.
func GeneratePlan(client Client, params overlay.Params, modules []overlay.Module) Plan {
	var plan Plan

	status := client.CheckStatus()
	useHymofs := status == StatusAvailable ||
		(params.IgnoreProtocolMismatch && (status == StatusKernelTooOld || status == StatusModuleTooOld))

	if !useHymofs {
		return plan
	}

	targetPartitions := params.TargetPartitions()

	for _, module := range modules {
		contentPath := filepath.Join(params.StorageRoot, module.ID)

		if !overlay.Exists(contentPath) {
			continue
		}
		if !hasMeaningfulContent(contentPath, targetPartitions) {
			continue
		}

		defaultMode := normalizeDefaultMode(module.Mode)

		if len(module.Rules) == 0 {
			if defaultMode == "none" {
				continue
			}

			plan.HymofsModuleIDs = append(plan.HymofsModuleIDs, module.ID)
			continue
		}

		hymofsActive := false

		for _, part := range targetPartitions {
			partRoot := filepath.Join(contentPath, part)
			if !overlay.Exists(partRoot) {
				continue
			}

			if scanPartitionActive(contentPath, partRoot, module.Rules, defaultMode) {
				hymofsActive = true
				break
			}
		}

		if hymofsActive {
			plan.HymofsModuleIDs = append(plan.HymofsModuleIDs, module.ID)
		}
	}

	return plan
}

type addRuleEntry struct {
	Src, Target string
	DType       DirentType
}

type mergeRuleEntry struct {
	Src, Target string
}

// walkModuleMappings recurses through dir (a module's partition root or a
// descendant of it), classifying every entry and appending the resulting
// kernel rule to the matching accumulator.
//
// A directory whose resolved mode qualifies for hymofs realization AND whose
// resolve.ResolvePathForHymofs target already exists as a real directory
// becomes a merge rule and its recursion is pruned — the kernel handles
// merging its children itself. Every other directory (whether its own mode
// disqualifies it, or it qualifies but has no existing real counterpart) is
// recursed into exactly as a plain walk would.
func walkModuleMappings(modPath, dir string, rules []overlay.ModuleRule, defaultMode string, addRules *[]addRuleEntry, mergeRules *[]mergeRuleEntry, hideRules *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		vp := virtualPath(modPath, full)

		mode := resolveMode(rules, vp, defaultMode)
		if mode != "hymofs" && mode != "auto" {
			if e.IsDir() {
				walkModuleMappings(modPath, full, rules, defaultMode, addRules, mergeRules, hideRules)
			}

			continue
		}

		info, err := os.Lstat(full)
		if err != nil {
			continue
		}

		if info.IsDir() {
			finalVirtual := ResolvePathForHymofs(vp)
			if overlay.IsDir(finalVirtual) {
				*mergeRules = append(*mergeRules, mergeRuleEntry{Src: finalVirtual, Target: full})
				continue
			}

			walkModuleMappings(modPath, full, rules, defaultMode, addRules, mergeRules, hideRules)
			continue
		}

		isSymlink := info.Mode()&os.ModeSymlink != 0

		switch {
		case info.Mode().IsRegular() || isSymlink:
			if isSymlink && overlay.IsDir(vp) {
				// Safety rail: never replace an existing directory with a
				// symlink leaf rule.
				continue
			}

			dtype := DTReg
			if isSymlink {
				dtype = DTLnk
			}

			finalVirtual := ResolvePathForHymofs(vp)
			*addRules = append(*addRules, addRuleEntry{Src: finalVirtual, Target: full, DType: dtype})

		case info.Mode()&os.ModeCharDevice != 0:
			if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Rdev == 0 {
				*hideRules = append(*hideRules, ResolvePathForHymofs(vp))
			}
		}
	}
}

// UpdateMappings runs the emission pass: clears every kernel rule, then
// rebuilds the full rule set from scratch for the modules plan selected, in
// reverse module order (lowest priority first) so that higher-priority
// modules overwrite lower-priority ones as the kernel applies each
// add/merge/hide call in turn. Finishes by pushing every user-authored hide
// rule (so user hides always win last) and re-enabling the shim.
//
// If client.IsAvailable reports false, including on a protocol version
// mismatch with Params.IgnoreProtocolMismatch set, UpdateMappings sends
// nothing and returns nil.
func UpdateMappings(client Client, params overlay.Params, modules []overlay.Module, plan Plan) error {
	if !client.IsAvailable() {
		return nil
	}

	client.ClearRules()

	targetPartitions := params.TargetPartitions()

	isHymofsModule := func(id string) bool {
		for _, x := range plan.HymofsModuleIDs {
			if x == id {
				return true
			}
		}

		return false
	}

	var (
		addRules   []addRuleEntry
		mergeRules []mergeRuleEntry
		hideRules  []string
	)

	for _, module := range modules {
		if !isHymofsModule(module.ID) {
			continue
		}

		for _, rule := range module.Rules {
			if rule.Mode == "hide" {
				hideRules = append(hideRules, ResolvePathForHymofs(rule.Path))
			}
		}
	}

	for i := len(modules) - 1; i >= 0; i-- {
		module := modules[i]
		if !isHymofsModule(module.ID) {
			continue
		}

		modPath := filepath.Join(params.StorageRoot, module.ID)
		defaultMode := normalizeDefaultMode(module.Mode)

		for _, part := range targetPartitions {
			partRoot := filepath.Join(modPath, part)
			if !overlay.Exists(partRoot) {
				continue
			}

			walkModuleMappings(modPath, partRoot, module.Rules, defaultMode, &addRules, &mergeRules, &hideRules)
		}
	}

	for _, r := range addRules {
		client.AddRule(r.Src, r.Target, r.DType)
	}

	for _, r := range mergeRules {
		client.AddMergeRule(r.Src, r.Target)
	}

	for _, p := range hideRules {
		client.HidePath(p)
	}

	if _, _, err := overlay.ApplyUserHideRules(client); err != nil {
		return err
	}

	client.SetEnabled(true)

	return nil
}
