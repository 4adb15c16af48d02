package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statTree bool

var statCmd = &cobra.Command{
	Use:   "stat <name>",
	Short: "Show blob metadata and tree shape",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if statTree {
			return svc.PrintTree(ctx, args[0], out)
		}

		st, err := svc.Stat(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Name:    %s\n", st.Entry.Name)
		fmt.Fprintf(out, "Root:    %s\n", st.Entry.RootKey)
		fmt.Fprintf(out, "Size:    %d bytes\n", st.Entry.Size)
		fmt.Fprintf(out, "Depth:   %d\n", st.Depth)
		fmt.Fprintf(out, "Leaves:  %d\n", st.NumLeaves)
		fmt.Fprintf(out, "Version: %d\n", st.Entry.Version)
		fmt.Fprintf(out, "Updated: %s\n", st.Entry.UpdatedAt.Format(time.RFC3339))
		if len(st.Entry.Attrs) > 0 {
			fmt.Fprintf(out, "Attrs:   %s\n", st.Entry.Attrs)
		}
		return nil
	},
}

func init() {
	statCmd.Flags().BoolVar(&statTree, "tree", false, "print per-level node counts")
	rootCmd.AddCommand(statCmd)
}
