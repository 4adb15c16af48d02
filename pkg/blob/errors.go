package blob

import (
	"errors"

	"blobvault/pkg/datatree"
)

var (
	// ErrInvalidRange 读取越过了 blob 末尾
	ErrInvalidRange = datatree.ErrInvalidRange
	// ErrNotFound blob 的根节点不存在
	ErrNotFound = datatree.ErrTreeNotFound
	// ErrConsistencyViolation 写入后树的实际大小与预期不符，说明存在逻辑缺陷
	ErrConsistencyViolation = errors.New("blob consistency violation")
	// ErrRemoved blob 已被删除，不能再使用
	ErrRemoved = errors.New("blob has been removed")
)
