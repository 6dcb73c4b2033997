package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"treemount/internal/daemon"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mount-point> -s <state-dir>",
	Short: "Mount a tree at the given mount point",
	Long: `Serves the state directory's tree over NFS and mounts it at the given
mount point. Runs in the foreground until interrupted; on SIGINT/SIGTERM
the mount point is unmounted and the overlay closed cleanly.

Examples:
  treemount mount ./src -s ./state
  treemount mount /mnt/repo --state-dir ~/mounts/repo --logging debug`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var mountStateDir string

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().StringVarP(&mountStateDir, "state-dir", "s", "", "Mount state directory (required)")
	mountCmd.MarkFlagRequired("state-dir")
	addLoggingFlag(mountCmd.Flags())
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}
	cfg, err := loadConfigArg(mountStateDir)
	if err != nil {
		return err
	}
	applyLogging(cfg)

	if info, err := os.Stat(mountPoint); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("mount point exists and is not a directory: %s", mountPoint)
		}
	} else if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	d := daemon.New(cfg)
	if err := d.Open(cmd.Context()); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	ready := make(chan int, 1)
	go func() {
		serveErr <- d.Serve(func(port int) { ready <- port })
	}()

	var port int
	select {
	case port = <-ready:
	case err := <-serveErr:
		d.Shutdown()
		return fmt.Errorf("NFS server failed to start: %w", err)
	}

	if err := daemon.MountNetFS("127.0.0.1", port, mountPoint); err != nil {
		d.Shutdown()
		return err
	}
	fmt.Printf("Mounted at %s (NFS port %d). Interrupt to unmount.\n", mountPoint, port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-serveErr:
		// Server died under the mount; unmount before reporting.
		if uerr := daemon.UnmountNetFS(mountPoint); uerr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", uerr)
		}
		d.Shutdown()
		return fmt.Errorf("NFS server stopped: %w", err)
	}

	if err := daemon.UnmountNetFS(mountPoint); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	d.Shutdown()
	fmt.Println("Unmounted.")
	return nil
}
