package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"treemount/internal/daemon"
)

var initCmd = &cobra.Command{
	Use:   "init <state-dir>",
	Short: "Initialize a mount state directory",
	Long: `Creates a mount state directory with a default treemount.yaml.

The state directory holds the overlay database, the journal, and the mount
configuration. Point --object-dir at a content-addressed object store and
--root-tree at the hex hash of the tree to project; omit both for an empty,
fully local mount.

Examples:
  treemount init ./state --object-dir /srv/objects --root-tree 4fe1...
  treemount init ./scratch`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var (
	initObjectDir string
	initRootTree  string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initObjectDir, "object-dir", "", "Content-addressed object store root")
	initCmd.Flags().StringVar(&initRootTree, "root-tree", "", "Hex hash of the tree to project")
}

func runInit(cmd *cobra.Command, args []string) error {
	stateDir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if existing, err := daemon.LoadMountConfig(stateDir); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%s is already initialized", stateDir)
	}
	if initRootTree != "" && initObjectDir == "" {
		return fmt.Errorf("--root-tree requires --object-dir")
	}
	if initObjectDir != "" {
		if initObjectDir, err = filepath.Abs(initObjectDir); err != nil {
			return err
		}
		if _, err := os.Stat(initObjectDir); err != nil {
			return fmt.Errorf("object store not found: %s", initObjectDir)
		}
	}

	cfg := &daemon.MountConfig{
		ObjectDir: initObjectDir,
		RootTree:  initRootTree,
	}
	if err := daemon.SaveMountConfig(stateDir, cfg); err != nil {
		return err
	}
	fmt.Printf("Initialized %s\n", stateDir)
	return nil
}
