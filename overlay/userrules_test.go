//go:build linux

package overlay

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeHider struct {
	available bool
	hidden    []string
	fail      map[string]bool
}

func (f *fakeHider) IsAvailable() bool { return f.available }

func (f *fakeHider) HidePath(path string) bool {
	if f.fail[path] {
		return false
	}
	f.hidden = append(f.hidden, path)
	return true
}

func TestLoadUserHideRules_MissingFileYieldsEmpty(t *testing.T) {
	rules, err := loadUserHideRulesFrom(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("loadUserHideRulesFrom() error = %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules, got %v", rules)
	}
}

func TestSaveAndLoadUserHideRules_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "user_hide_rules")

	want := []UserHideRule{{Path: "/system/bin/su"}, {Path: "/vendor/etc/foo"}}
	if err := saveUserHideRulesTo(path, want); err != nil {
		t.Fatalf("saveUserHideRulesTo() error = %v", err)
	}

	got, err := loadUserHideRulesFrom(path)
	if err != nil {
		t.Fatalf("loadUserHideRulesFrom() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loadUserHideRulesFrom() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoadUserHideRules_SkipsBlankAndCommentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	content := "# a comment\n\n/system/bin/su\nrelative/not/absolute\n/vendor/etc/foo\n"

	if err := MkdirAll(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := loadUserHideRulesFrom(path)
	if err != nil {
		t.Fatalf("loadUserHideRulesFrom() error = %v", err)
	}
	if len(rules) != 2 || rules[0].Path != "/system/bin/su" || rules[1].Path != "/vendor/etc/foo" {
		t.Fatalf("loadUserHideRulesFrom() = %v", rules)
	}
}

func TestAddUserHideRuleAt_RejectsRelativePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")

	if err := addUserHideRuleAt(path, nil, "relative/path"); err == nil {
		t.Fatal("expected error for relative path, got nil")
	}
}

func TestAddUserHideRuleAt_DedupesAndPushesToKernel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	client := &fakeHider{available: true}

	if err := addUserHideRuleAt(path, client, "/system/bin/su"); err != nil {
		t.Fatalf("addUserHideRuleAt() error = %v", err)
	}
	if err := addUserHideRuleAt(path, client, "/system/bin/su"); err != nil {
		t.Fatalf("addUserHideRuleAt() duplicate error = %v", err)
	}

	rules, err := loadUserHideRulesFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule after dedup, got %v", rules)
	}
	if len(client.hidden) != 2 {
		t.Fatalf("expected kernel push on each add call, got %v", client.hidden)
	}
}

func TestAddUserHideRuleAt_NilClientSkipsKernelPush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")

	if err := addUserHideRuleAt(path, nil, "/system/bin/su"); err != nil {
		t.Fatalf("addUserHideRuleAt() error = %v", err)
	}

	rules, err := loadUserHideRulesFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected rule saved despite nil client, got %v", rules)
	}
}

func TestRemoveUserHideRuleAt_RemovesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	if err := saveUserHideRulesTo(path, []UserHideRule{{Path: "/a"}, {Path: "/b"}}); err != nil {
		t.Fatal(err)
	}

	if err := removeUserHideRuleAt(path, "/a"); err != nil {
		t.Fatalf("removeUserHideRuleAt() error = %v", err)
	}

	rules, err := loadUserHideRulesFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Path != "/b" {
		t.Fatalf("loadUserHideRulesFrom() = %v, want [/b]", rules)
	}
}

func TestRemoveUserHideRuleAt_NotFoundErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	if err := saveUserHideRulesTo(path, []UserHideRule{{Path: "/a"}}); err != nil {
		t.Fatal(err)
	}

	if err := removeUserHideRuleAt(path, "/missing"); err == nil {
		t.Fatal("expected error removing a rule that does not exist")
	}
}

func TestApplyUserHideRulesFrom_NoRulesIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")

	applied, failed, err := applyUserHideRulesFrom(path, &fakeHider{available: true})
	if err != nil {
		t.Fatalf("applyUserHideRulesFrom() error = %v", err)
	}
	if applied != 0 || failed != 0 {
		t.Fatalf("applied=%d failed=%d, want 0,0", applied, failed)
	}
}

func TestApplyUserHideRulesFrom_UnavailableClientSkipsPush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	if err := saveUserHideRulesTo(path, []UserHideRule{{Path: "/a"}}); err != nil {
		t.Fatal(err)
	}

	applied, failed, err := applyUserHideRulesFrom(path, &fakeHider{available: false})
	if err != nil {
		t.Fatalf("applyUserHideRulesFrom() error = %v", err)
	}
	if applied != 0 || failed != 0 {
		t.Fatalf("applied=%d failed=%d, want 0,0 when kernel unavailable", applied, failed)
	}
}

func TestApplyUserHideRulesFrom_CountsSuccessAndFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_hide_rules")
	if err := saveUserHideRulesTo(path, []UserHideRule{{Path: "/a"}, {Path: "/b"}}); err != nil {
		t.Fatal(err)
	}

	client := &fakeHider{available: true, fail: map[string]bool{"/b": true}}

	applied, failed, err := applyUserHideRulesFrom(path, client)
	if err != nil {
		t.Fatalf("applyUserHideRulesFrom() error = %v", err)
	}
	if applied != 1 || failed != 1 {
		t.Fatalf("applied=%d failed=%d, want 1,1", applied, failed)
	}
}
