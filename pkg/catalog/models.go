package catalog

import (
	"time"

	"gorm.io/datatypes"
)

// Entry 把一个名字映射到 blob 当前的根节点。
// 树增高或降低时根节点会变，所以每次修改后都要更新 RootKey
type Entry struct {
	// Name 是主键，例如 "models/resnet.bin"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// RootKey 根节点 BlockID 的 hex
	RootKey string `gorm:"type:char(32);not null"`

	// Size 最近一次 Flush 时的字节数
	Size uint64 `gorm:"not null;default:0"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	// Attrs 导入来源、mode 等非结构化信息
	Attrs datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 强制指定表名
func (Entry) TableName() string {
	return "entries"
}
