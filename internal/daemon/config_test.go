package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMountConfigMissingReturnsNil(t *testing.T) {
	cfg, err := LoadMountConfig(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestMountConfigDefaultsResolveAgainstStateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "treemount.yaml"), []byte("root-tree: \"\"\n"), 0o600))

	cfg, err := LoadMountConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, filepath.Join(dir, "overlay.db"), cfg.Overlay)
	assert.Equal(t, filepath.Join(dir, "journal.ndjson"), cfg.Journal)
	assert.Equal(t, "127.0.0.1:0", cfg.NFSAddr)
	assert.Equal(t, 30, cfg.SweepIntervalSec)
	assert.False(t, cfg.LoggingEnabled())
}

func TestMountConfigAbsolutePathsKept(t *testing.T) {
	dir := t.TempDir()
	yaml := "overlay: /var/lib/tm/overlay.db\nobject-dir: /srv/objects\nlogging: Debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "treemount.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadMountConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/var/lib/tm/overlay.db", cfg.Overlay)
	assert.Equal(t, "/srv/objects", cfg.ObjectDir)
	assert.True(t, cfg.LoggingEnabled())
	assert.Equal(t, "debug", cfg.LogLevel())
}

func TestSaveMountConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &MountConfig{RootTree: "ab12", NFSAddr: "127.0.0.1:2049"}
	require.NoError(t, SaveMountConfig(dir, in))

	cfg, err := LoadMountConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "ab12", cfg.RootTree)
	assert.Equal(t, "127.0.0.1:2049", cfg.NFSAddr)
}

func TestConfigDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("TREEMOUNT_CONFIG_DIR", "/tmp/tm-test-config")
	assert.Equal(t, "/tmp/tm-test-config", ConfigDir())
	assert.Equal(t, "/tmp/tm-test-config/daemon.log", LogPath())
}
