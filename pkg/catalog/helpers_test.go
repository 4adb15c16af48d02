package catalog

import (
	"context"
	"fmt"
	"testing"

	"blobvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo 构建隔离的测试环境
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 与 Open 一致：sqlite 单连接，避免共享缓存下的表锁错误
	sqlDB.SetMaxOpenConns(1)

	catalogDB := NewWithConn(db)
	require.NoError(t, catalogDB.AutoMigrate())
	return NewRepository(catalogDB)
}

// mustCreate 强制创建条目，失败则终止
func mustCreate(t *testing.T, repo *Repository, name string, size uint64) *Entry {
	t.Helper()
	e := &Entry{Name: name, RootKey: types.NewBlockID().String(), Size: size}
	require.NoError(t, repo.Create(context.Background(), e))
	return e
}
