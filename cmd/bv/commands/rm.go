package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Remove blobs and free their blocks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			if err := svc.Remove(cmd.Context(), name); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rm '%s'\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
