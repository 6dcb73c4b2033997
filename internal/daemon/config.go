package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// getConfigDir returns the config directory path.
// Uses TREEMOUNT_CONFIG_DIR env var if set, otherwise defaults to
// ~/.treemount. Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("TREEMOUNT_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".treemount")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() string {
	return getConfigDir()
}

// LockPath returns the lock file path guarding single-daemon-per-overlay.
func LockPath(overlayPath string) string {
	return overlayPath + ".lock"
}

// LogPath returns the daemon log file path.
// Uses TREEMOUNT_DAEMON_LOG env var if set.
func LogPath() string {
	if envPath := os.Getenv("TREEMOUNT_DAEMON_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "daemon.log")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// mountConfigFileName is the per-mount config file looked up inside a
// mount's state directory.
const mountConfigFileName = "treemount.yaml"

// MountConfig is one mount's configuration, read from
// {stateDir}/treemount.yaml.
type MountConfig struct {
	// ObjectDir is the content-addressed object store root (trees/ and
	// blobs/ named by hex hash).
	ObjectDir string `yaml:"object-dir"`

	// Overlay is the SQLite overlay database path. Default:
	// {stateDir}/overlay.db.
	Overlay string `yaml:"overlay"`

	// Journal is the append-only mutation log path. Default:
	// {stateDir}/journal.ndjson.
	Journal string `yaml:"journal"`

	// RootTree is the hex hash of the source-control tree the mount
	// projects. Empty means an empty, fully materialized mount.
	RootTree string `yaml:"root-tree"`

	// NFSAddr is the TCP address the NFS server listens on.
	// Default: 127.0.0.1:0 (ephemeral port).
	NFSAddr string `yaml:"nfs-addr"`

	// Logging is the logging level: none, warn, info, debug, trace
	// (case insensitive).
	Logging string `yaml:"logging"`

	// SweepIntervalSec is how often the idle-inode sweep runs. 0 uses the
	// default; negative disables the sweep.
	SweepIntervalSec int `yaml:"sweep-interval"`

	// stateDir is where the config was loaded from; relative paths in the
	// config resolve against it.
	stateDir string
}

// ApplyDefaults fills zero-value fields with their defaults, resolving
// relative paths against stateDir.
func (cfg *MountConfig) ApplyDefaults(stateDir string) {
	cfg.stateDir = stateDir
	if cfg.Overlay == "" {
		cfg.Overlay = "overlay.db"
	}
	if cfg.Journal == "" {
		cfg.Journal = "journal.ndjson"
	}
	if cfg.NFSAddr == "" {
		cfg.NFSAddr = "127.0.0.1:0"
	}
	if cfg.SweepIntervalSec == 0 {
		cfg.SweepIntervalSec = 30
	}
	cfg.Overlay = cfg.resolve(cfg.Overlay)
	cfg.Journal = cfg.resolve(cfg.Journal)
	if cfg.ObjectDir != "" {
		cfg.ObjectDir = cfg.resolve(cfg.ObjectDir)
	}
}

func (cfg *MountConfig) resolve(p string) string {
	if filepath.IsAbs(p) || cfg.stateDir == "" {
		return p
	}
	return filepath.Join(cfg.stateDir, p)
}

// StateDir returns the directory this config was loaded from.
func (cfg *MountConfig) StateDir() string { return cfg.stateDir }

// LoggingEnabled returns whether logging is enabled (any level other than
// "none" or empty).
func (cfg *MountConfig) LoggingEnabled() bool {
	level := strings.ToLower(cfg.Logging)
	return level != "" && level != "none"
}

// LogLevel returns the normalized (lowercase) logging level.
func (cfg *MountConfig) LogLevel() string {
	return strings.ToLower(cfg.Logging)
}

// LoadMountConfig loads {stateDir}/treemount.yaml.
// Returns nil if the config file does not exist.
func LoadMountConfig(stateDir string) (*MountConfig, error) {
	if stateDir == "" {
		return nil, nil
	}
	configPath := filepath.Join(stateDir, mountConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg MountConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	cfg.ApplyDefaults(stateDir)
	return &cfg, nil
}

// SaveMountConfig writes cfg to {stateDir}/treemount.yaml, creating
// stateDir if needed.
func SaveMountConfig(stateDir string, cfg *MountConfig) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := []byte("# treemount mount configuration\n\n")
	return os.WriteFile(filepath.Join(stateDir, mountConfigFileName), append(header, data...), 0o600)
}
