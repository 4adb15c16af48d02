package commands

import (
	"fmt"
	"time"

	"blobvault/pkg/exporter"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List blobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix string
		if len(args) > 0 {
			prefix = args[0]
		}
		entries, err := svc.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No blobs.")
			return nil
		}

		out := tablewriter.NewWriter(cmd.OutOrStdout())
		out.SetHeader([]string{"Name", "Size", "Root", "Version", "Updated"})
		out.SetAutoWrapText(false)
		out.SetBorder(false)
		for _, e := range entries {
			root := e.RootKey
			if len(root) > 8 {
				root = root[:8]
			}
			out.Append([]string{
				e.Name,
				exporter.FormatSize(e.Size),
				root,
				fmt.Sprintf("%d", e.Version),
				e.UpdatedAt.Format(time.DateTime),
			})
		}
		out.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
