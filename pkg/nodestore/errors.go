package nodestore

import "errors"

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrCorruptBlock = errors.New("corrupt block")
	ErrLayout       = errors.New("invalid node layout")
)
