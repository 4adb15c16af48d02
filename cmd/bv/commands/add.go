package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blobvault/pkg/catalog"
	"blobvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var (
	addName    string
	addPrefix  string
	addExclude []string
)

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Import a file or directory as blobs",
	Long: `Import a file as one blob, or every file under a directory as one blob each.
Directory imports honour .bvignore and skip the repository itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetPath := args[0] // 用户输入的路径，可能是文件，也可能是目录
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		start := time.Now()

		info, err := os.Stat(targetPath)
		if err != nil {
			return err
		}

		// 1. 单个文件
		if !info.IsDir() {
			name := addName
			if name == "" {
				name = filepath.ToSlash(filepath.Clean(targetPath))
			}
			entry, err := svc.AddFile(ctx, name, targetPath)
			if err != nil {
				return fmt.Errorf("failed to add %s: %w", targetPath, err)
			}
			fmt.Fprintf(out, "Added %s (%s) in %s\n", entry.Name, exporter.FormatSize(entry.Size), time.Since(start).Round(time.Millisecond))
			return nil
		}

		// 2. 目录：每个文件一个 blob，名字为 prefix + 相对路径
		var total uint64
		added, err := svc.AddDir(ctx, addPrefix, targetPath, addExclude, func(e *catalog.Entry) {
			total += e.Size
			fmt.Fprintf(out, "Adding: %s (%s)\n", e.Name, exporter.FormatSize(e.Size))
		})
		if err != nil {
			return err
		}
		if len(added) == 0 {
			fmt.Fprintln(out, "No files added.")
			return nil
		}
		fmt.Fprintf(out, "Added %d files (%s) in %s\n", len(added), exporter.FormatSize(total), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "blob name for a single file (default: the path)")
	addCmd.Flags().StringVar(&addPrefix, "prefix", "", "name prefix for directory imports")
	addCmd.Flags().StringSliceVar(&addExclude, "exclude", nil, "extra .bvignore-style patterns to skip (repeatable)")
	rootCmd.AddCommand(addCmd)
}
