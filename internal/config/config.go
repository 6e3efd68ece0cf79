// Package config loads this module's own server settings — cache
// directory, per-language LS commands, and default tool timeout — from
// a YAML file distinct from the externally-owned project descriptor.
// Grounded on agents.LoadGlobalConfig's "loud defaults" pattern: a
// missing file is not an error, and every field left unset in a present
// file is filled from the same defaults a missing file would produce.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/lspsymbols/internal/langreg"
	"github.com/lexcodex/lspsymbols/internal/symbolcache"
)

// DefaultFileName is where the module looks for its own settings,
// relative to the project root, distinct from `.serena/project.yml`.
const DefaultFileName = ".serena/symbolsrv.yml"

const (
	defaultCacheDir           = ".serena/symbolcache"
	defaultToolTimeoutSeconds = 240
)

// LanguageServerSetting overrides or extends one language's registry
// entry. Extensions is only required when introducing a language the
// default registry does not already know.
type LanguageServerSetting struct {
	Command               string   `yaml:"command"`
	Args                  []string `yaml:"args"`
	Extensions            []string `yaml:"extensions"`
	StartupTimeoutSeconds int      `yaml:"startup_timeout_seconds"`
}

// Config is the module's own process settings.
type Config struct {
	CacheDir              string                          `yaml:"cache_dir"`
	DefaultToolTimeoutSec int                              `yaml:"default_tool_timeout_seconds"`
	CacheSchemaVersion    int                              `yaml:"cache_schema_version"`
	LanguageServers       map[string]LanguageServerSetting `yaml:"language_servers"`
}

// Default returns the settings a missing config file implies.
func Default() *Config {
	return &Config{
		CacheDir:              defaultCacheDir,
		DefaultToolTimeoutSec: defaultToolTimeoutSeconds,
		CacheSchemaVersion:    symbolcache.SchemaVersion,
		LanguageServers:       map[string]LanguageServerSetting{},
	}
}

// Load reads path and fills any field the file leaves unset from
// Default(). A missing file is not an error: Load returns Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-value scalar fields a partially-specified
// file leaves out, the same shape as agents.LoadGlobalConfig's
// AgentPaths backfill.
func applyDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir
	}
	if cfg.DefaultToolTimeoutSec == 0 {
		cfg.DefaultToolTimeoutSec = defaultToolTimeoutSeconds
	}
	if cfg.CacheSchemaVersion == 0 {
		cfg.CacheSchemaVersion = symbolcache.SchemaVersion
	}
	if cfg.LanguageServers == nil {
		cfg.LanguageServers = map[string]LanguageServerSetting{}
	}
}

// Save writes cfg to path, creating its parent directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// DefaultToolTimeout returns the configured default tool timeout as a
// Duration. internal/dispatch does not read it: the dispatcher's default
// is its own fixed 240s constant.
func (c *Config) DefaultToolTimeout() time.Duration {
	return time.Duration(c.DefaultToolTimeoutSec) * time.Second
}

// BuildRegistry starts from langreg.NewDefaultRegistry and layers this
// config's per-language overrides on top: an override merges onto the
// existing Descriptor (so a command-only override doesn't need to
// re-list extensions the default registry already knows), or introduces
// a brand-new language when Extensions is given for an unknown key.
func (c *Config) BuildRegistry() (*langreg.Registry, error) {
	registry := langreg.NewDefaultRegistry()
	for key, setting := range c.LanguageServers {
		descriptor, exists := registry.Descriptor(key)
		if !exists {
			if len(setting.Extensions) == 0 {
				return nil, fmt.Errorf("config: language server %q is new to the registry and needs extensions", key)
			}
			descriptor = langreg.Descriptor{LanguageKey: key}
		}
		if setting.Command != "" {
			descriptor.Command = setting.Command
		}
		if len(setting.Args) > 0 {
			descriptor.Args = setting.Args
		}
		if len(setting.Extensions) > 0 {
			descriptor.Extensions = setting.Extensions
		}
		if setting.StartupTimeoutSeconds > 0 {
			descriptor.StartupTimeout = time.Duration(setting.StartupTimeoutSeconds) * time.Second
		}
		registry.Register(descriptor)
	}
	return registry, nil
}
