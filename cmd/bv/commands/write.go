package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"blobvault/pkg/catalog"

	"github.com/spf13/cobra"
)

var (
	writeOffset uint64
	writeFile   string
	writeCreate bool
)

var writeCmd = &cobra.Command{
	Use:   "write <name>",
	Short: "Write bytes into a blob at an offset",
	Long: `Write stdin (or --file) into the blob at --offset. Writing past the end
grows the blob; the gap is zero-filled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		var in io.Reader = cmd.InOrStdin()
		if writeFile != "" {
			f, err := os.Open(writeFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		if writeCreate {
			h, err := svc.Create(ctx, name, nil)
			switch {
			case err == nil:
				h.Close()
			case !errors.Is(err, catalog.ErrEntryExists):
				return err
			}
		}

		n, err := svc.WriteAt(ctx, name, in, writeOffset)
		if err != nil {
			return fmt.Errorf("write failed after %d bytes: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s at offset %d\n", n, name, writeOffset)
		return nil
	},
}

func init() {
	writeCmd.Flags().Uint64Var(&writeOffset, "offset", 0, "byte offset to write at")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "read data from file instead of stdin")
	writeCmd.Flags().BoolVar(&writeCreate, "create", false, "create the blob if it does not exist")
	rootCmd.AddCommand(writeCmd)
}
