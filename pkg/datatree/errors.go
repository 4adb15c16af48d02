package datatree

import "errors"

var (
	// ErrInvalidRange 请求的叶子区间越界
	ErrInvalidRange = errors.New("invalid leaf range")
	// ErrInvalidOperation 当前结构不允许该操作 (例如删除唯一的叶子)
	ErrInvalidOperation = errors.New("invalid tree operation")
	// ErrTreeNotFound 根节点不存在
	ErrTreeNotFound = errors.New("tree not found")
)
