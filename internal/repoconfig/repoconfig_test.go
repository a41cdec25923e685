package repoconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.CacheSize)
	assert.Equal(t, "", cfg.DefaultNamespace)
	assert.Equal(t, defaultCheckAll, cfg.DefaultCheckOptions)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cache-size: 128\ndefault-namespace: jcr\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.CacheSize)
	assert.Equal(t, "jcr", cfg.DefaultNamespace)
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cache-size: 128\n"), 0o644))
	t.Setenv("CONTENTREPO_CACHE_SIZE", "9000")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.CacheSize)
}

func TestLoadLocalConfigMissingFileReturnsEmpty(t *testing.T) {
	cfg := LoadLocalConfig(t.TempDir())
	assert.Equal(t, &LocalConfig{}, cfg)
}

func TestLoadLocalConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("default-namespace: jcr\ncache-size: 7\n"), 0o644))

	cfg := LoadLocalConfig(dir)
	assert.Equal(t, "jcr", cfg.DefaultNamespace)
	assert.Equal(t, 7, cfg.CacheSize)
}
