// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"blobvault/pkg/blob"
	"blobvault/pkg/catalog"
	"blobvault/pkg/datatree"
	"blobvault/pkg/logger"
	"blobvault/pkg/nodestore"
	"blobvault/pkg/repo"
	"blobvault/pkg/storage"
	"blobvault/pkg/storage/bolt"
	"blobvault/pkg/storage/cache"
	"blobvault/pkg/storage/compress"
	"blobvault/pkg/storage/disk"
	"blobvault/pkg/storage/memory"
	"blobvault/pkg/storage/metrics"
	"blobvault/pkg/storage/s3"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Store      storage.Store // 装饰后的块存储 (metrics -> cache -> compress -> backend)
	Nodes      *nodestore.Store
	Trees      *datatree.Store
	Blobs      *blob.Store
	Catalog    *catalog.Repository
	Superblock *repo.Superblock
	Registry   *prometheus.Registry
	Logger     *zap.Logger
	RepoPath   string

	db *catalog.DB
}

// Init 创建新仓库：写 superblock 并建好 catalog 表
func Init(ctx context.Context) (*repo.Superblock, error) {
	repoPath := viper.GetString("repo.path")
	blockSize := viper.GetUint32("blockstore.block_size")
	if _, err := nodestore.NewLayout(blockSize); err != nil {
		return nil, err
	}

	sb := repo.NewSuperblock(blockSize, viper.GetString("storage.type"))
	if err := repo.Init(repoPath, sb); err != nil {
		return nil, err
	}

	db, err := catalog.Open(ctx, catalogConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init catalog: %w", err)
	}
	return &sb, db.Close()
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 仓库与 superblock (Single Source of Truth)
	repoPath := viper.GetString("repo.path")
	sb, err := repo.Read(repoPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if configured := viper.GetUint32("blockstore.block_size"); configured != sb.BlockSize {
		log.Warn("configured block size ignored, using the repository's",
			zap.Uint32("configured", configured),
			zap.Uint32("repository", sb.BlockSize))
	}

	// 2. 存储层 (Dependency Injection)
	base, err := initStore(ctx, repoPath, log)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	store, err := decorate(base, reg, log)
	if err != nil {
		_ = storage.Close(base)
		return nil, err
	}

	// 3. 节点层 -> 树 -> blob
	layout, err := nodestore.NewLayout(sb.BlockSize)
	if err != nil {
		_ = storage.Close(store)
		return nil, err
	}
	nodes, err := nodestore.NewStore(store, layout, nodestore.Options{
		CacheSize:    viper.GetInt("nodestore.cache_size"),
		FlushWorkers: viper.GetInt("nodestore.flush_workers"),
		Logger:       log.Named("nodestore"),
	})
	if err != nil {
		_ = storage.Close(store)
		return nil, err
	}
	trees := datatree.NewStore(nodes, log.Named("datatree"))

	// 4. 元数据目录
	db, err := catalog.Open(ctx, catalogConfig())
	if err != nil {
		_ = storage.Close(store)
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	return &App{
		Store:      store,
		Nodes:      nodes,
		Trees:      trees,
		Blobs:      blob.NewStore(trees, log.Named("blob")),
		Catalog:    catalog.NewRepository(db),
		Superblock: sb,
		Registry:   reg,
		Logger:     log,
		RepoPath:   repoPath,
		db:         db,
	}, nil
}

// Close 释放存储与数据库连接，并按配置导出指标
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.Store != nil {
		errs = append(errs, storage.Close(a.Store))
	}
	if path := viper.GetString("metrics.textfile"); path != "" && a.Registry != nil {
		if err := prometheus.WriteToTextfile(path, a.Registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// initStore 按 storage.type 构造底层块存储
func initStore(ctx context.Context, repoPath string, log *zap.Logger) (storage.Store, error) {
	storeType := viper.GetString("storage.type")
	path := viper.GetString("storage.path")
	if path == "" {
		path = filepath.Join(repoPath, "blocks")
	}

	switch storeType {
	case "", "disk":
		store, err := disk.NewAdapter(path)
		if err != nil {
			return nil, fmt.Errorf("failed to init disk storage: %w", err)
		}
		return store, nil

	case "bolt":
		store, err := bolt.Open(bolt.Options{Path: filepath.Join(path, "blocks.db")})
		if err != nil {
			return nil, fmt.Errorf("failed to init bolt storage: %w", err)
		}
		return store, nil

	case "memory":
		return memory.NewStore(), nil

	case "s3":
		store, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		}, log.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", storeType)
	}
}

// decorate 由内到外包装：compress -> redis cache -> metrics
func decorate(base storage.Store, reg prometheus.Registerer, log *zap.Logger) (storage.Store, error) {
	store := base

	if viper.GetBool("storage.compression") {
		c, err := compress.New(store)
		if err != nil {
			return nil, err
		}
		store = c
	}

	if url := viper.GetString("cache.redis_url"); url != "" {
		c, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("cache.ttl"),
		}, log.Named("cache"))
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		log.Debug("redis block cache enabled")
		store = c
	}

	return metrics.New(store, reg)
}

func catalogConfig() catalog.Config {
	cfg := catalog.Config{
		Driver: viper.GetString("catalog.driver"),
		DSN:    viper.GetString("catalog.dsn"),
		Debug:  viper.GetString("logger.level") == "debug",
	}
	if cfg.DSN == "" && (cfg.Driver == "" || cfg.Driver == "sqlite") {
		cfg.DSN = filepath.Join(viper.GetString("repo.path"), "catalog.db")
	}
	return cfg
}
