package nodestore

import (
	"fmt"

	"blobvault/pkg/types"
)

// Kind 区分节点类型
type Kind uint8

const (
	KindLeaf Kind = iota
	KindInner
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInner:
		return "inner"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node 是 Leaf 与 Inner 的封闭联合体，算法通过 Kind() 或 type switch 区分
type Node interface {
	ID() types.BlockID
	Kind() Kind
	// Depth 叶子为 0，inner 节点 >= 1
	Depth() uint8
	// Dirty 自上次 Flush 以来是否被修改过
	Dirty() bool

	state() *nodeState
}

// nodeState 是两种节点共享的元信息
type nodeState struct {
	id        types.BlockID
	dirty     bool
	persisted bool // 后端已经有这个块 (Flush 时用 Store 而不是 Create)
}

func (s *nodeState) ID() types.BlockID { return s.id }
func (s *nodeState) Dirty() bool { return s.dirty }
func (s *nodeState) state() *nodeState { return s }
func (s *nodeState) markDirty() { s.dirty = true }

// Leaf 持有一段原始数据，长度 <= MaxBytesPerLeaf
type Leaf struct {
	nodeState
	maxBytes uint32
	data     []byte
}

func (l *Leaf) Kind() Kind { return KindLeaf }
func (l *Leaf) Depth() uint8 { return 0 }

// Size 已使用的字节数
func (l *Leaf) Size() uint32 { return uint32(len(l.data)) }

// MaxBytes 叶子容量
func (l *Leaf) MaxBytes() uint32 { return l.maxBytes }

// Data 返回内部数据的只读视图
func (l *Leaf) Data() []byte { return l.data }

// Read 从 off 开始复制 len(dst) 字节
func (l *Leaf) Read(dst []byte, off uint32) {
	if uint64(off)+uint64(len(dst)) > uint64(len(l.data)) {
		panic(fmt.Sprintf("leaf read out of range: off=%d len=%d size=%d", off, len(dst), len(l.data)))
	}
	copy(dst, l.data[off:])
}

// Write 覆盖 [off, off+len(src))，不能越过当前 Size
func (l *Leaf) Write(src []byte, off uint32) {
	if uint64(off)+uint64(len(src)) > uint64(len(l.data)) {
		panic(fmt.Sprintf("leaf write out of range: off=%d len=%d size=%d", off, len(src), len(l.data)))
	}
	copy(l.data[off:], src)
	l.markDirty()
}

// Resize 改变已使用长度，新增部分补零
func (l *Leaf) Resize(n uint32) {
	if n > l.maxBytes {
		panic(fmt.Sprintf("leaf resize %d exceeds capacity %d", n, l.maxBytes))
	}
	cur := uint32(len(l.data))
	switch {
	case n == cur:
		return
	case n < cur:
		l.data = l.data[:n:n]
	default:
		grown := make([]byte, n)
		copy(grown, l.data)
		l.data = grown
	}
	l.markDirty()
}

// Inner 持有有序的子节点 id 列表
type Inner struct {
	nodeState
	depth       uint8
	maxChildren uint32
	children    []types.BlockID
}

func (n *Inner) Kind() Kind { return KindInner }
func (n *Inner) Depth() uint8 { return n.depth }

func (n *Inner) NumChildren() uint32 { return uint32(len(n.children)) }

func (n *Inner) Child(i uint32) types.BlockID { return n.children[i] }

func (n *Inner) LastChild() types.BlockID { return n.children[len(n.children)-1] }

// Children 返回子节点列表的副本
func (n *Inner) Children() []types.BlockID {
	out := make([]types.BlockID, len(n.children))
	copy(out, n.children)
	return out
}

// Full 是否已达到扇出上限
func (n *Inner) Full() bool { return uint32(len(n.children)) >= n.maxChildren }

// AddChild 在末尾追加一个子节点
func (n *Inner) AddChild(id types.BlockID) {
	if n.Full() {
		panic(fmt.Sprintf("inner node %s already has %d children", n.id.Short(), len(n.children)))
	}
	n.children = append(n.children, id)
	n.markDirty()
}

// RemoveLastChild 删除最后一个子节点引用 (不删除子节点本身)
func (n *Inner) RemoveLastChild() {
	if len(n.children) == 0 {
		panic(fmt.Sprintf("inner node %s has no children", n.id.Short()))
	}
	n.children = n.children[:len(n.children)-1]
	n.markDirty()
}
