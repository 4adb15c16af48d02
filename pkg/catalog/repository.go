package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrEntryNotFound    = errors.New("catalog entry not found")
	ErrEntryExists      = errors.New("catalog entry already exists")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Get 按名字查找
func (r *Repository) Get(ctx context.Context, name string) (*Entry, error) {
	var e Entry
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&e).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List 按名字排序返回所有以 prefix 开头的条目
func (r *Repository) List(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	q := r.db.GetConn().WithContext(ctx).Order("name ASC")
	if prefix != "" {
		q = q.Where("name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// Create 新建条目；名字已存在时返回 ErrEntryExists
func (r *Repository) Create(ctx context.Context, e *Entry) error {
	e.Version = 1
	if err := r.db.GetConn().WithContext(ctx).Create(e).Error; err != nil {
		//兼容性,处理不同数据库(PG与SQLite)的唯一约束错误
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("%w: %s", ErrEntryExists, e.Name)
		}
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// Update 原子更新根节点与大小 (CAS - Compare And Swap)
// oldVersion: 你之前读到的版本号。如果数据库里现在的版本号不等于这个，说明有人抢先改了，更新失败。
func (r *Repository) Update(ctx context.Context, name, rootKey string, size uint64, oldVersion int64) error {
	// SQL: UPDATE entries SET root_key = ?, size = ?, version = version + 1 WHERE name = ? AND version = ?
	result := r.db.GetConn().WithContext(ctx).Model(&Entry{}).
		Where("name = ? AND version = ?", name, oldVersion).
		Updates(map[string]any{
			"root_key":   rootKey,
			"size":       size,
			"version":    gorm.Expr("version + 1"), // 版本号自增
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update entry: %w", result.Error)
	}

	// 关键检查：如果影响行数为 0，要么不存在，要么 version 不匹配
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, name); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s@%d", ErrConcurrentUpdate, name, oldVersion)
	}
	return nil
}

// Delete 删除条目
func (r *Repository) Delete(ctx context.Context, name string) error {
	result := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		Delete(&Entry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
