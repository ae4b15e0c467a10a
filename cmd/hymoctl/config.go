//go:build linux

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/hymofs/overlay"
)

// Config holds hymoctl's resolved configuration, assembled with the same
// precedence as the sandbox tooling this project is patterned on: built-in
// defaults, then a global config file, then an explicit --config file, then
// CLI flags.
type Config struct {
	ModuleDir              string   `json:"module_dir,omitempty"`
	StorageRoot            string   `json:"storage_root,omitempty"`
	Partitions             []string `json:"partitions,omitempty"`
	IgnoreProtocolMismatch bool     `json:"ignore_protocol_mismatch,omitempty"`
	Debug                  bool     `json:"-"`
}

// ToParams adapts Config into the shape the overlay/kernel packages expect.
func (c Config) ToParams() overlay.Params {
	return overlay.Params{
		ModuleDir:              c.ModuleDir,
		StorageRoot:            c.StorageRoot,
		Partitions:             c.Partitions,
		IgnoreProtocolMismatch: c.IgnoreProtocolMismatch,
	}
}

// DefaultConfig returns hymoctl's built-in defaults.
func DefaultConfig() Config {
	return Config{
		ModuleDir:   overlay.DefaultModuleDir,
		StorageRoot: overlay.DefaultModuleDir,
	}
}

const globalConfigPath = "/data/adb/hymo/config.jsonc"

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	ConfigPath string
	CLIFlags   *pflag.FlagSet
}

// LoadConfig loads hymoctl's configuration: defaults, then the global config
// file if present, then an explicit --config file if given, then CLI flag
// overrides (highest precedence, applied last).
//
// Both .json and .jsonc are accepted; comments are stripped via
// tailscale/hujson before decoding.
func LoadConfig(input LoadConfigInput) (Config, error) {
	cfg := DefaultConfig()

	if overlay.Exists(globalConfigPath) {
		global, err := parseConfigFile(globalConfigPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfig(cfg, global)
	}

	if input.ConfigPath != "" {
		if !overlay.Exists(input.ConfigPath) {
			return Config{}, fmt.Errorf("%w: %s (global config looked for under %s)",
				errConfigNotFound, input.ConfigPath, defaultConfigDir())
		}

		explicit, err := parseConfigFile(input.ConfigPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfig(cfg, explicit)
	}

	if input.CLIFlags != nil {
		applyCLIFlags(&cfg, input.CLIFlags)
	}

	return cfg, nil
}

func parseConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

func mergeConfig(base, layer Config) Config {
	if layer.ModuleDir != "" {
		base.ModuleDir = layer.ModuleDir
	}
	if layer.StorageRoot != "" {
		base.StorageRoot = layer.StorageRoot
	}
	if len(layer.Partitions) > 0 {
		base.Partitions = layer.Partitions
	}
	if layer.IgnoreProtocolMismatch {
		base.IgnoreProtocolMismatch = true
	}

	return base
}

func applyCLIFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("module-dir") {
		v, _ := flags.GetString("module-dir")
		cfg.ModuleDir = v
	}

	if flags.Changed("storage-root") {
		v, _ := flags.GetString("storage-root")
		cfg.StorageRoot = v
	}

	if flags.Changed("partitions") {
		v, _ := flags.GetStringArray("partitions")
		cfg.Partitions = v
	}

	if flags.Changed("ignore-protocol-mismatch") {
		v, _ := flags.GetBool("ignore-protocol-mismatch")
		cfg.IgnoreProtocolMismatch = v
	}

	if flags.Changed("debug") {
		v, _ := flags.GetBool("debug")
		cfg.Debug = v
	}
}

var errConfigNotFound = errors.New("hymoctl: config file not found")

func defaultConfigDir() string {
	return filepath.Dir(globalConfigPath)
}
