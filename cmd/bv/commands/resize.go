package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resizeCmd = &cobra.Command{
	Use:   "resize <name> <size>",
	Short: "Truncate or zero-extend a blob",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", args[1], err)
		}
		if err := svc.Resize(cmd.Context(), args[0], size); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resized %s to %d bytes\n", args[0], size)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resizeCmd)
}
