//go:build linux

package overlay

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UserHideRulesFile is the fixed on-disk location of the user-authored hide
// rule list (see spec §6 filesystem layout).
const UserHideRulesFile = "/data/adb/hymo/user_hide_rules"

// UserHideRule is one user-authored absolute path to suppress in the union.
type UserHideRule struct {
	Path string
}

// KernelHider is the minimal kernel-control-client surface the user hide-rule
// store needs: whether the kernel shim is reachable, and pushing one hide
// rule to it. kernel.Client satisfies this interface.
type KernelHider interface {
	IsAvailable() bool
	HidePath(path string) bool
}

// LoadUserHideRules reads UserHideRulesFile: one absolute path per
// non-empty, non-"#" line. A missing file yields an empty, non-error result.
func LoadUserHideRules() ([]UserHideRule, error) {
	return loadUserHideRulesFrom(UserHideRulesFile)
}

func loadUserHideRulesFrom(path string) ([]UserHideRule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("overlay: opening user hide rules: %w", err)
	}
	defer f.Close()

	var rules []UserHideRule

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "/") {
			rules = append(rules, UserHideRule{Path: line})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("overlay: reading user hide rules: %w", err)
	}

	return rules, nil
}

// SaveUserHideRules overwrites UserHideRulesFile with rules, one path per
// line, creating the parent directory if necessary.
func SaveUserHideRules(rules []UserHideRule) error {
	return saveUserHideRulesTo(UserHideRulesFile, rules)
}

func saveUserHideRulesTo(path string, rules []UserHideRule) error {
	dir := filepath.Dir(path)
	if err := MkdirAll(dir); err != nil {
		return fmt.Errorf("overlay: creating %q: %w", dir, err)
	}

	var b strings.Builder
	for _, rule := range rules {
		b.WriteString(rule.Path)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("overlay: writing user hide rules: %w", err)
	}

	return nil
}

// AddUserHideRule validates path, appends it to the user hide-rule file (a
// no-op if already present), and — when client is non-nil and the kernel
// shim is available — pushes the rule to the kernel immediately.
//
// A kernel push failure does not undo the file write: the rule is still
// considered saved, matching the original implementation's "saved to file"
// fallback behavior.
func AddUserHideRule(client KernelHider, path string) error {
	return addUserHideRuleAt(UserHideRulesFile, client, path)
}

func addUserHideRuleAt(rulesFile string, client KernelHider, path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("overlay: hide rule path %q must be absolute", path)
	}

	rules, err := loadUserHideRulesFrom(rulesFile)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if rule.Path == path {
			return nil
		}
	}

	rules = append(rules, UserHideRule{Path: path})

	if err := saveUserHideRulesTo(rulesFile, rules); err != nil {
		return err
	}

	if client != nil && client.IsAvailable() {
		client.HidePath(path)
	}

	return nil
}

// RemoveUserHideRule removes path from the user hide-rule file.
//
// It only updates the file: the kernel cannot distinguish user- from
// module-origin rules at the rule level, so any corresponding kernel-side
// rule persists until the next full reload (see kernel.UpdateMappings).
func RemoveUserHideRule(path string) error {
	return removeUserHideRuleAt(UserHideRulesFile, path)
}

func removeUserHideRuleAt(rulesFile string, path string) error {
	rules, err := loadUserHideRulesFrom(rulesFile)
	if err != nil {
		return err
	}

	kept := rules[:0]

	for _, rule := range rules {
		if rule.Path != path {
			kept = append(kept, rule)
		}
	}

	if len(kept) == len(rules) {
		return fmt.Errorf("overlay: hide rule %q not found", path)
	}

	return saveUserHideRulesTo(rulesFile, kept)
}

// ListUserHideRules returns the current user hide-rule file content.
func ListUserHideRules() ([]UserHideRule, error) {
	return LoadUserHideRules()
}

// ApplyUserHideRules pushes every stored user hide rule to the kernel. It is
// called as the final step of the kernel-shim planner's emission pass (see
// kernel.UpdateMappings) so that user-authored hides always win as the
// last-applied layer.
func ApplyUserHideRules(client KernelHider) (applied, failed int, err error) {
	return applyUserHideRulesFrom(UserHideRulesFile, client)
}

func applyUserHideRulesFrom(rulesFile string, client KernelHider) (applied, failed int, err error) {
	rules, err := loadUserHideRulesFrom(rulesFile)
	if err != nil {
		return 0, 0, err
	}

	if len(rules) == 0 {
		return 0, 0, nil
	}

	if client == nil || !client.IsAvailable() {
		return 0, 0, nil
	}

	for _, rule := range rules {
		if client.HidePath(rule.Path) {
			applied++
		} else {
			failed++
		}
	}

	return applied, failed, nil
}
