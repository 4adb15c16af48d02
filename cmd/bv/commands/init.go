package commands

import (
	"errors"
	"fmt"

	"blobvault/pkg/app"
	"blobvault/pkg/repo"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a BlobVault repository",
	Long:  `Create an empty BlobVault repository. The block size is fixed at init time (blockstore.block_size).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		repoPath := viper.GetString("repo.path")

		sb, err := app.Init(cmd.Context())
		if errors.Is(err, repo.ErrAlreadyInitialized) {
			fmt.Fprintf(out, "BlobVault repository already exists in %s\n", repoPath)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Initialized empty BlobVault repository in %s (block size %d, storage %s)\n",
			repoPath, sb.BlockSize, sb.StorageType)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
