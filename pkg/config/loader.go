package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀: BV_STORAGE_TYPE 对应 storage.type
const EnvPrefix = "BV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	return LoadInto(viper.GetViper(), cfgFile)
}

// LoadInto 与 Load 相同，但作用于指定的 Viper 实例 (测试用)
func LoadInto(v *viper.Viper, cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	SetDefaults(v)

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		v.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> 当前目录下的 .bv -> 用户主目录下的 .bv
		v.AddConfigPath(".")
		v.AddConfigPath(".bv")
		v.AddConfigPath(filepath.Join(home, ".bv"))

		v.SetConfigType("yaml")
		v.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (BV_STORAGE_TYPE 等)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果只是没找到配置文件，但可能有环境变量，不算错
		// 但如果是配置文件格式错，那就是错
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return nil
}

// SetDefaults 写入所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	wd, _ := os.Getwd()
	repoDir := filepath.Join(wd, ".bv")

	// 仓库与存储
	v.SetDefault("repo.path", repoDir)
	v.SetDefault("storage.type", "disk")
	// 留空时为 <repo.path>/blocks
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.compression", false)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("blockstore.block_size", 32*1024)

	// 缓存
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", time.Hour)

	// 节点层
	v.SetDefault("nodestore.cache_size", 1024)
	v.SetDefault("nodestore.flush_workers", 8)

	// 目录数据库
	v.SetDefault("catalog.driver", "sqlite")
	// sqlite 留空时为 <repo.path>/catalog.db
	v.SetDefault("catalog.dsn", "")

	// 日志与指标
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("metrics.textfile", "")
}
