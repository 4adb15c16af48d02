package service

import (
	"fmt"
	"testing"

	"blobvault/pkg/app"
	"blobvault/pkg/blob"
	"blobvault/pkg/catalog"
	"blobvault/pkg/datatree"
	"blobvault/pkg/nodestore"
	"blobvault/pkg/storage/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestApp 是所有 Service 测试共享的基础设施初始化逻辑
// 它返回构建好的 App 实例：内存块存储 + 内存 sqlite
func setupTestApp(t *testing.T) *app.App {
	t.Helper()
	log := zaptest.NewLogger(t)

	// 1. Store: 每叶 64 字节、每个内部节点 4 个孩子，很快就会长出多层树
	store := memory.NewStore()
	layout, err := nodestore.NewLayout(72)
	require.NoError(t, err)
	nodes, err := nodestore.NewStore(store, layout, nodestore.Options{Logger: log})
	require.NoError(t, err)
	trees := datatree.NewStore(nodes, log)

	// 2. DB & Catalog
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	catalogDB := catalog.NewWithConn(db)
	require.NoError(t, catalogDB.AutoMigrate())

	return &app.App{
		Store:    store,
		Nodes:    nodes,
		Trees:    trees,
		Blobs:    blob.NewStore(trees, log),
		Catalog:  catalog.NewRepository(catalogDB),
		Logger:   log,
		RepoPath: t.TempDir(),
	}
}
