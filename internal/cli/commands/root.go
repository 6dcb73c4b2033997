package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"treemount/internal/daemon"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	ts, err := strconv.ParseInt(date, 10, 64)
	if err != nil {
		return fmt.Sprintf("%s (commit: %s)", version, commit)
	}
	return fmt.Sprintf("%s (%s, commit: %s)", version, time.Unix(ts, 0).Format("2006-01-02"), commit)
}

var loggingFlag string

// addLoggingFlag registers the shared --logging flag on a command's flag
// set.
func addLoggingFlag(fs *pflag.FlagSet) {
	fs.StringVar(&loggingFlag, "logging", "", "Logging level: none, warn, info, debug, trace")
}

// applyLogging configures the process logger from the --logging flag,
// falling back to the mount config's level when the flag is unset.
func applyLogging(cfg *daemon.MountConfig) {
	level := loggingFlag
	if level == "" && cfg != nil {
		level = cfg.Logging
	}
	if level == "" || strings.EqualFold(level, "none") {
		return
	}
	log.SetOutput(os.Stderr)
	if parsed, err := log.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
}

var rootCmd = &cobra.Command{
	Use:   "treemount",
	Short: "Mount a source-control tree as a live, writable filesystem",
	Long: `treemount projects a content-addressed source-control tree as a live,
writable directory tree over NFS. Unmodified contents are fetched lazily
from the object store; local modifications land in a per-mount overlay.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := daemon.EnsureConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("treemount version {{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfigArg loads the mount config named by the --state-dir flag
// value, failing with an actionable message when absent.
func loadConfigArg(stateDir string) (*daemon.MountConfig, error) {
	cfg, err := daemon.LoadMountConfig(stateDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no treemount.yaml in %s (run 'treemount init' first)", stateDir)
	}
	return cfg, nil
}
