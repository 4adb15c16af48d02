package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"blobvault/pkg/app"
	"blobvault/pkg/config"
	"blobvault/pkg/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	BV  *app.App
	svc *service.BlobService
)

var rootCmd = &cobra.Command{
	Use:          "bv",
	Short:        "BlobVault: resizable blobs on fixed-size blocks",
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 跳过 init 命令的依赖检查 (因为它就是去创建环境的)
		if cmd.Name() == "init" || cmd.Name() == "help" || BV != nil {
			return nil
		}

		// 统一初始化 App
		application, err := app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to open repository: %w", err)
		}
		setApp(application)
		return nil
	},
}

func setApp(a *app.App) {
	BV = a
	svc = nil
	if a != nil {
		svc = service.NewBlobService(a)
	}
}

// Execute 是入口
func Execute() error {
	return execute(context.Background())
}

// execute 运行命令，并在结束后 (包括出错时) 关闭 App
func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if BV != nil {
		err = errors.Join(err, BV.Close())
		setApp(nil)
	}
	return err
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.bv/config.yaml or $HOME/.bv/config.yaml)")

	// 2. 仓库路径可用 --repo 覆盖
	rootCmd.PersistentFlags().String("repo", "", "repository directory (default ./.bv)")
	if err := viper.BindPFlag("repo.path", rootCmd.PersistentFlags().Lookup("repo")); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
