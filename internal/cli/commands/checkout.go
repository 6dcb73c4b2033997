package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"treemount/internal/daemon"
	"treemount/internal/inode"
	"treemount/internal/objectstore"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <tree-hash> -s <state-dir>",
	Short: "Switch the mount to a different source-control tree",
	Long: `Switches the mount's tracked tree to the given hash, preserving local
modifications that don't conflict with the move.

Conflicting paths are reported and left untouched unless --force is given.
--dry-run reports conflicts without changing anything. The mount must not
be served while checkout runs; checkout opens the overlay exclusively.

Examples:
  treemount checkout 4fe1... -s ./state
  treemount checkout 4fe1... -s ./state --dry-run
  treemount checkout 4fe1... -s ./state --force`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckout,
}

var (
	checkoutStateDir string
	checkoutDryRun   bool
	checkoutForce    bool
)

func init() {
	rootCmd.AddCommand(checkoutCmd)
	checkoutCmd.Flags().StringVarP(&checkoutStateDir, "state-dir", "s", "", "Mount state directory (required)")
	checkoutCmd.MarkFlagRequired("state-dir")
	checkoutCmd.Flags().BoolVar(&checkoutDryRun, "dry-run", false, "Report conflicts without applying anything")
	checkoutCmd.Flags().BoolVar(&checkoutForce, "force", false, "Apply the target tree over conflicts, discarding local changes")
	addLoggingFlag(checkoutCmd.Flags())
}

// parseHash decodes a hex tree/blob hash argument.
func parseHash(s string) (objectstore.Hash, error) {
	var h objectstore.Hash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != objectstore.HashSize {
		return h, fmt.Errorf("bad hash %q: want %d hex bytes", s, objectstore.HashSize)
	}
	copy(h[:], raw)
	return h, nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	if checkoutDryRun && checkoutForce {
		return fmt.Errorf("--dry-run and --force are mutually exclusive")
	}
	toHash, err := parseHash(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfigArg(checkoutStateDir)
	if err != nil {
		return err
	}
	applyLogging(cfg)

	d := daemon.New(cfg)
	ctx := cmd.Context()
	if err := d.Open(ctx); err != nil {
		return err
	}
	defer d.Shutdown()

	toTree, err := d.ObjectStore().GetTree(ctx, toHash)
	if err != nil {
		return fmt.Errorf("fetch target tree: %w", err)
	}
	var fromTree *objectstore.Tree
	if cfg.RootTree != "" {
		fromHash, err := parseHash(cfg.RootTree)
		if err != nil {
			return err
		}
		if fromTree, err = d.ObjectStore().GetTree(ctx, fromHash); err != nil {
			return fmt.Errorf("fetch current tree: %w", err)
		}
	}

	result, err := d.InodeMap().Root().Checkout(ctx, fromTree, toTree, inode.CheckoutOptions{
		DryRun: checkoutDryRun,
		Force:  checkoutForce,
	})
	if err != nil {
		return err
	}

	for _, c := range result.Conflicts {
		fmt.Printf("conflict: %-20s %s\n", c.Kind, c.Path)
	}
	switch {
	case checkoutDryRun:
		fmt.Printf("Dry run: %d conflicts.\n", len(result.Conflicts))
		return nil
	case len(result.Conflicts) > 0 && !checkoutForce:
		return fmt.Errorf("%d conflicts; re-run with --force to discard local changes", len(result.Conflicts))
	}

	cfg.RootTree = args[0]
	if err := saveTrackedTree(checkoutStateDir, cfg); err != nil {
		return err
	}
	fmt.Printf("Checked out %s (%d entries applied).\n", args[0], result.Applied)
	return nil
}

// saveTrackedTree persists the mount's new tracked revision so the next
// open and the next status/checkout start from it.
func saveTrackedTree(stateDir string, cfg *daemon.MountConfig) error {
	return daemon.SaveMountConfig(stateDir, cfg)
}
