package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info -s <state-dir>",
	Short: "Show a mount's configuration and journal position",
	RunE:  runInfo,
}

var infoStateDir string

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoStateDir, "state-dir", "s", "", "Mount state directory (required)")
	infoCmd.MarkFlagRequired("state-dir")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigArg(infoStateDir)
	if err != nil {
		return err
	}

	fmt.Printf("State dir:    %s\n", cfg.StateDir())
	fmt.Printf("Overlay:      %s\n", cfg.Overlay)
	fmt.Printf("Journal:      %s\n", cfg.Journal)
	if cfg.ObjectDir != "" {
		fmt.Printf("Object store: %s\n", cfg.ObjectDir)
	} else {
		fmt.Printf("Object store: (none — fully local mount)\n")
	}
	if cfg.RootTree != "" {
		fmt.Printf("Tracked tree: %s\n", cfg.RootTree)
	} else {
		fmt.Printf("Tracked tree: (none)\n")
	}
	fmt.Printf("NFS address:  %s\n", cfg.NFSAddr)
	return nil
}
