// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// BlockIDSize 是块标识符的字节长度
const BlockIDSize = 16

// BlockID identifies one physical block (and the node stored in it).
// It is assigned when the block is created and never derived from content,
// because nodes are mutated in place.
type BlockID [BlockIDSize]byte

// NewBlockID returns a fresh random identifier.
func NewBlockID() BlockID {
	return BlockID(uuid.New())
}

// ParseBlockID 解析 32 个十六进制字符
func ParseBlockID(s string) (BlockID, error) {
	var id BlockID
	if len(s) != 2*BlockIDSize {
		return id, fmt.Errorf("invalid block id %q: want %d hex chars, got %d", s, 2*BlockIDSize, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid block id %q: %w", s, err)
	}
	return id, nil
}

// BlockIDFromBytes copies b into a BlockID.
func BlockIDFromBytes(b []byte) (BlockID, error) {
	var id BlockID
	if len(b) != BlockIDSize {
		return id, fmt.Errorf("invalid block id length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id BlockID) String() string { return hex.EncodeToString(id[:]) }

// Short 返回前 8 个字符，用于日志和 CLI 输出
func (id BlockID) Short() string { return id.String()[:8] }

func (id BlockID) IsZero() bool { return id == BlockID{} }

func (id BlockID) Bytes() []byte { return id[:] }
