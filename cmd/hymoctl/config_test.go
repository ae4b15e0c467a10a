//go:build linux

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ModuleDir == "" || cfg.StorageRoot == "" {
		t.Fatalf("DefaultConfig() = %+v, want non-empty ModuleDir/StorageRoot", cfg)
	}
}

func TestParseConfigFile_AcceptsJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
		// a comment hujson must strip
		"module_dir": "/custom/modules",
		"partitions": ["oplus_product"],
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfigFile(path)
	if err != nil {
		t.Fatalf("parseConfigFile() error = %v", err)
	}
	if cfg.ModuleDir != "/custom/modules" {
		t.Fatalf("ModuleDir = %q, want /custom/modules", cfg.ModuleDir)
	}
	if len(cfg.Partitions) != 1 || cfg.Partitions[0] != "oplus_product" {
		t.Fatalf("Partitions = %v", cfg.Partitions)
	}
}

func TestParseConfigFile_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"bogus_field": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := parseConfigFile(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestMergeConfig_LayerOverridesSetFieldsOnly(t *testing.T) {
	base := Config{ModuleDir: "/base/modules", StorageRoot: "/base/storage"}
	layer := Config{ModuleDir: "/layer/modules"}

	merged := mergeConfig(base, layer)
	if merged.ModuleDir != "/layer/modules" {
		t.Fatalf("ModuleDir = %q, want layer override", merged.ModuleDir)
	}
	if merged.StorageRoot != "/base/storage" {
		t.Fatalf("StorageRoot = %q, want base value preserved", merged.StorageRoot)
	}
}

func TestMergeConfig_IgnoreProtocolMismatchOnlySetsTrue(t *testing.T) {
	base := Config{IgnoreProtocolMismatch: true}
	layer := Config{IgnoreProtocolMismatch: false}

	merged := mergeConfig(base, layer)
	if !merged.IgnoreProtocolMismatch {
		t.Fatal("expected a false layer value to not clear a true base value")
	}
}

func TestApplyCLIFlags_OnlyAppliesChangedFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("module-dir", "", "")
	flags.String("storage-root", "", "")
	flags.StringArray("partitions", nil, "")
	flags.Bool("ignore-protocol-mismatch", false, "")
	flags.Bool("debug", false, "")

	if err := flags.Parse([]string{"--module-dir=/flagged/modules"}); err != nil {
		t.Fatal(err)
	}

	cfg := Config{StorageRoot: "/untouched"}
	applyCLIFlags(&cfg, flags)

	if cfg.ModuleDir != "/flagged/modules" {
		t.Fatalf("ModuleDir = %q, want /flagged/modules", cfg.ModuleDir)
	}
	if cfg.StorageRoot != "/untouched" {
		t.Fatalf("StorageRoot = %q, want untouched", cfg.StorageRoot)
	}
}

func TestLoadConfig_ExplicitConfigPathOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"module_dir": "/explicit/modules"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(LoadConfigInput{ConfigPath: path})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ModuleDir != "/explicit/modules" {
		t.Fatalf("ModuleDir = %q, want /explicit/modules", cfg.ModuleDir)
	}
	// Fields not set by the explicit file keep the built-in default.
	if cfg.StorageRoot != DefaultConfig().StorageRoot {
		t.Fatalf("StorageRoot = %q, want default preserved", cfg.StorageRoot)
	}
}

func TestLoadConfig_MissingExplicitConfigPathErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.jsonc")

	_, err := LoadConfig(LoadConfigInput{ConfigPath: path})
	if err == nil {
		t.Fatal("expected an error for a missing explicit config path")
	}
	if !errors.Is(err, errConfigNotFound) {
		t.Fatalf("error = %v, want wrapping errConfigNotFound", err)
	}
}

func TestToParams(t *testing.T) {
	cfg := Config{ModuleDir: "/m", StorageRoot: "/s", Partitions: []string{"oem2"}, IgnoreProtocolMismatch: true}
	params := cfg.ToParams()

	if params.ModuleDir != "/m" || params.StorageRoot != "/s" || !params.IgnoreProtocolMismatch {
		t.Fatalf("ToParams() = %+v", params)
	}
	if len(params.Partitions) != 1 || params.Partitions[0] != "oem2" {
		t.Fatalf("Partitions = %v", params.Partitions)
	}
}
