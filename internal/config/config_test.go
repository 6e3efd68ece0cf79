package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, defaultCacheDir, cfg.CacheDir)
	assert.Equal(t, defaultToolTimeoutSeconds, cfg.DefaultToolTimeoutSec)
}

func TestLoadFillsUnsetFieldsFromDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbolsrv.yml")
	require.NoError(t, os.WriteFile(path, []byte("cache_dir: /tmp/custom\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", cfg.CacheDir)
	assert.Equal(t, defaultToolTimeoutSeconds, cfg.DefaultToolTimeoutSec)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbolsrv.yml")
	require.NoError(t, os.WriteFile(path, []byte("cache_dir: [unterminated\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "symbolsrv.yml")
	cfg := Default()
	cfg.CacheDir = "custom-cache"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-cache", loaded.CacheDir)
}

func TestBuildRegistryOverridesExistingLanguage(t *testing.T) {
	cfg := Default()
	cfg.LanguageServers["python"] = LanguageServerSetting{Command: "pyright-langserver", Args: []string{"--stdio"}}

	registry, err := cfg.BuildRegistry()
	require.NoError(t, err)

	lsCfg, ok := registry.ConfigFor("python")
	require.True(t, ok)
	assert.Equal(t, "pyright-langserver", lsCfg.Command)

	key, ok := registry.LanguageForPath("main.py")
	require.True(t, ok)
	assert.Equal(t, "python", key)
}

func TestBuildRegistryRequiresExtensionsForNewLanguage(t *testing.T) {
	cfg := Default()
	cfg.LanguageServers["zig"] = LanguageServerSetting{Command: "zls"}

	_, err := cfg.BuildRegistry()
	assert.Error(t, err)
}

func TestBuildRegistryAddsNewLanguageWithExtensions(t *testing.T) {
	cfg := Default()
	cfg.LanguageServers["zig"] = LanguageServerSetting{Command: "zls", Extensions: []string{"zig"}}

	registry, err := cfg.BuildRegistry()
	require.NoError(t, err)

	key, ok := registry.LanguageForPath("main.zig")
	require.True(t, ok)
	assert.Equal(t, "zig", key)
}
