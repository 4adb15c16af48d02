package commands

import (
	"fmt"

	"blobvault/pkg/catalog"

	"github.com/spf13/cobra"
)

var exportPrefix string

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Restore blobs as files under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		n, err := svc.Export(cmd.Context(), exportPrefix, args[0], func(e catalog.Entry, path string) {
			fmt.Fprintf(out, "Restored %s -> %s\n", e.Name, path)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d blobs to %s\n", n, args[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPrefix, "prefix", "", "only export blobs whose name starts with prefix")
	rootCmd.AddCommand(exportCmd)
}
