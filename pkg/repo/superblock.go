// Package repo reads and writes the repository superblock.
package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/renameio"
	"github.com/google/uuid"
)

const (
	// DirName 仓库元数据目录
	DirName = ".bv"
	// SuperblockName 仓库根目录下的 superblock 文件名
	SuperblockName = "superblock"
	// FormatVersion 当前仓库格式版本
	FormatVersion uint16 = 1
)

var (
	ErrNotRepository      = errors.New("not a blobvault repository (run 'bv init')")
	ErrAlreadyInitialized = errors.New("repository already initialized")
	ErrUnsupportedFormat  = errors.New("unsupported repository format")
)

// Superblock 记录一经初始化就不能再改变的仓库参数
type Superblock struct {
	FormatVersion uint16    `cbor:"format_version"`
	RepoID        string    `cbor:"repo_id"`
	BlockSize     uint32    `cbor:"block_size"`
	StorageType   string    `cbor:"storage_type"`
	CreatedAt     time.Time `cbor:"created_at"`
}

// 规范编码：Map Key 排序，时间为 Unix 整数，禁止不定长编码
var encOptions = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	Time:        cbor.TimeUnix,
	TimeTag:     cbor.EncTagNone,
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小，防止恶意构造的头部耗尽内存
	MaxArrayElements: 1000,
	MaxMapPairs:      1000,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// NewSuperblock 为新仓库生成 superblock
func NewSuperblock(blockSize uint32, storageType string) Superblock {
	return Superblock{
		FormatVersion: FormatVersion,
		RepoID:        uuid.NewString(),
		BlockSize:     blockSize,
		StorageType:   storageType,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

// Path 返回 superblock 文件路径
func Path(repoDir string) string {
	return filepath.Join(repoDir, SuperblockName)
}

// Init 原子写入 superblock；已存在时返回 ErrAlreadyInitialized
func Init(repoDir string, sb Superblock) error {
	if _, err := os.Stat(Path(repoDir)); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, repoDir)
	}
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		return fmt.Errorf("failed to create repo dir: %w", err)
	}

	data, err := em.Marshal(sb)
	if err != nil {
		return fmt.Errorf("failed to encode superblock: %w", err)
	}
	// 先写临时文件再 rename，掉电也不会留下半个 superblock
	if err := renameio.WriteFile(Path(repoDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}
	return nil
}

// Read 读取并校验 superblock
func Read(repoDir string) (*Superblock, error) {
	data, err := os.ReadFile(Path(repoDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, repoDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}

	var sb Superblock
	if err := dm.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("failed to decode superblock: %w", err)
	}
	if sb.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, sb.FormatVersion)
	}
	if sb.BlockSize == 0 {
		return nil, fmt.Errorf("%w: block size is zero", ErrUnsupportedFormat)
	}
	return &sb, nil
}
