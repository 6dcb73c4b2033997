package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"treemount/internal/common"
	"treemount/internal/daemon"
	"treemount/internal/ignore"
	"treemount/internal/inode"
	"treemount/internal/objectstore"
)

var statusCmd = &cobra.Command{
	Use:   "status -s <state-dir>",
	Short: "Show local modifications against the tracked tree",
	Long: `Diffs the mount's live contents against its tracked source-control
tree and lists every changed path, honoring .gitignore files.

Output prefixes: M modified, ? untracked, ! ignored (with --ignored),
R removed, E error.`,
	RunE: runStatus,
}

var (
	statusStateDir string
	statusIgnored  bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusStateDir, "state-dir", "s", "", "Mount state directory (required)")
	statusCmd.MarkFlagRequired("state-dir")
	statusCmd.Flags().BoolVar(&statusIgnored, "ignored", false, "Also list ignored paths")
	addLoggingFlag(statusCmd.Flags())
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigArg(statusStateDir)
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

	var target *objectstore.Tree
	if cfg.RootTree != "" {
		h, err := parseHash(cfg.RootTree)
		if err != nil {
			return err
		}
		if target, err = d.ObjectStore().GetTree(ctx, h); err != nil {
			return fmt.Errorf("fetch tracked tree: %w", err)
		}
	}

	type line struct {
		prefix string
		path   common.RelativePath
		detail string
	}
	var lines []line
	add := func(prefix string, path common.RelativePath) {
		lines = append(lines, line{prefix: prefix, path: path})
	}

	d.InodeMap().Root().Diff(ctx, target, ignore.Empty, inode.DiffOptions{IncludeIgnored: statusIgnored}, inode.DiffCallbacks{
		Untracked: func(path common.RelativePath, isDir bool) { add("?", path) },
		Ignored: func(path common.RelativePath, isDir bool) {
			if statusIgnored {
				add("!", path)
			}
		},
		Modified: func(path common.RelativePath) { add("M", path) },
		Removed: func(path common.RelativePath, isDir bool) { add("R", path) },
		Error: func(path common.RelativePath, err error) {
			lines = append(lines, line{prefix: "E", path: path, detail: err.Error()})
		},
	})

	sort.Slice(lines, func(i, j int) bool { return lines[i].path < lines[j].path })
	for _, l := range lines {
		if l.detail != "" {
			fmt.Printf("%s %s (%s)\n", l.prefix, l.path, l.detail)
			continue
		}
		fmt.Printf("%s %s\n", l.prefix, l.path)
	}
	if len(lines) == 0 {
		fmt.Println("Clean: no local modifications.")
	}
	return nil
}
