package nodestore

import (
	"encoding/binary"
	"fmt"

	"blobvault/pkg/types"
)

// encode 将节点序列化为一个完整的物理块 (长度 = BlockSize，尾部补零)
func (l Layout) encode(n Node) []byte {
	buf := make([]byte, l.BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], FormatVersion)
	buf[2] = n.Depth()

	switch node := n.(type) {
	case *Leaf:
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(node.data)))
		copy(buf[HeaderSize:], node.data)
	case *Inner:
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(node.children)))
		off := HeaderSize
		for _, child := range node.children {
			copy(buf[off:off+childIDSize], child[:])
			off += childIDSize
		}
	}
	return buf
}

// decode 解析物理块，任何不符合当前 Layout 的内容都视为损坏
func (l Layout) decode(id types.BlockID, buf []byte) (Node, error) {
	if uint32(len(buf)) != l.BlockSize {
		return nil, fmt.Errorf("%w: block %s has %d bytes, want %d", ErrCorruptBlock, id.Short(), len(buf), l.BlockSize)
	}
	if v := binary.LittleEndian.Uint16(buf[0:2]); v != FormatVersion {
		return nil, fmt.Errorf("%w: block %s has unknown format version %d", ErrCorruptBlock, id.Short(), v)
	}
	depth := buf[2]
	size := binary.LittleEndian.Uint32(buf[4:8])
	state := nodeState{id: id, persisted: true}

	if depth == 0 {
		if size > l.MaxBytesPerLeaf {
			return nil, fmt.Errorf("%w: leaf %s claims %d bytes, capacity is %d", ErrCorruptBlock, id.Short(), size, l.MaxBytesPerLeaf)
		}
		data := make([]byte, size)
		copy(data, buf[HeaderSize:HeaderSize+size])
		return &Leaf{nodeState: state, maxBytes: l.MaxBytesPerLeaf, data: data}, nil
	}

	if size == 0 || size > l.MaxChildren {
		return nil, fmt.Errorf("%w: inner node %s has %d children, allowed 1..%d", ErrCorruptBlock, id.Short(), size, l.MaxChildren)
	}
	children := make([]types.BlockID, size)
	off := HeaderSize
	for i := range children {
		copy(children[i][:], buf[off:off+childIDSize])
		off += childIDSize
	}
	return &Inner{nodeState: state, depth: depth, maxChildren: l.MaxChildren, children: children}, nil
}
