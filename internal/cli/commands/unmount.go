package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"treemount/internal/daemon"
)

var unmountCmd = &cobra.Command{
	Use:   "unmount <mount-point>",
	Short: "Unmount a mounted tree",
	Long: `Unmounts a treemount mount point. The serving process notices the
kernel client disconnect and keeps running; interrupt it to release the
overlay lock.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnmount,
}

func init() {
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	mountPoint, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if err := daemon.UnmountNetFS(mountPoint); err != nil {
		return err
	}
	fmt.Printf("Unmounted %s\n", mountPoint)
	return nil
}
