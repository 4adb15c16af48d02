// Package datatree implements a balanced multiway tree of fixed-size leaves
// that only grows and shrinks at its right edge.
package datatree

import (
	"context"
	"fmt"

	"blobvault/pkg/nodestore"
	"blobvault/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OnExistingLeaf 访问一个已存在的叶子
type OnExistingLeaf func(index uint64, leaf *nodestore.Leaf) error

// OnCreateLeaf 返回新叶子的完整内容
type OnCreateLeaf func(index uint64) ([]byte, error)

// DataTree 持有当前根节点。
// 不是并发安全的：同一时间只能有一个调用方修改同一棵树
type DataTree struct {
	nodes  *nodestore.Store
	layout nodestore.Layout
	root   nodestore.Node
	// dirty 记录所有新建或修改过、尚未 Flush 的节点
	dirty map[types.BlockID]nodestore.Node
	// removed 是已经脱离树、等 Flush 时才从后端删除的节点
	removed []nodestore.Node
	log     *zap.Logger
}

func newDataTree(nodes *nodestore.Store, root nodestore.Node, log *zap.Logger) *DataTree {
	t := &DataTree{
		nodes:  nodes,
		layout: nodes.Layout(),
		root:   root,
		dirty:  make(map[types.BlockID]nodestore.Node),
		log:    log,
	}
	t.track(root)
	return t
}

// Key 返回当前根节点 id。树增高或降低后会变化
func (t *DataTree) Key() types.BlockID { return t.root.ID() }

// Depth 根节点深度，单叶子树为 0
func (t *DataTree) Depth() uint8 { return t.root.Depth() }

func (t *DataTree) MaxBytesPerLeaf() uint32 { return t.layout.MaxBytesPerLeaf }

func (t *DataTree) track(n nodestore.Node) {
	if n.Dirty() {
		t.dirty[n.ID()] = n
	}
}

func (t *DataTree) forget(n nodestore.Node) {
	delete(t.dirty, n.ID())
}

// load 优先返回本树尚未 Flush 的节点
func (t *DataTree) load(ctx context.Context, id types.BlockID) (nodestore.Node, error) {
	if n, ok := t.dirty[id]; ok {
		return n, nil
	}
	return t.nodes.Load(ctx, id)
}

// loadChild 加载子节点并校验深度
func (t *DataTree) loadChild(ctx context.Context, parent *nodestore.Inner, i uint32) (nodestore.Node, error) {
	child, err := t.load(ctx, parent.Child(i))
	if err != nil {
		return nil, err
	}
	if child.Depth() != parent.Depth()-1 {
		return nil, fmt.Errorf("%w: node %s at depth %d has child %s at depth %d",
			nodestore.ErrCorruptBlock, parent.ID().Short(), parent.Depth(), child.ID().Short(), child.Depth())
	}
	return child, nil
}

// NumLeaves 沿最右路径下降：除最后一个子节点外其余子树都是满的
func (t *DataTree) NumLeaves(ctx context.Context) (uint64, error) {
	var total uint64
	n := t.root
	for {
		inner, ok := n.(*nodestore.Inner)
		if !ok {
			return total + 1, nil
		}
		total += uint64(inner.NumChildren()-1) * t.layout.LeavesPerFullChild(inner.Depth())
		last, err := t.loadChild(ctx, inner, inner.NumChildren()-1)
		if err != nil {
			return 0, err
		}
		n = last
	}
}

// NumStoredBytes 所有叶子已使用字节之和，O(depth)
func (t *DataTree) NumStoredBytes(ctx context.Context) (uint64, error) {
	var total uint64
	n := t.root
	for {
		switch node := n.(type) {
		case *nodestore.Leaf:
			return total + uint64(node.Size()), nil
		case *nodestore.Inner:
			full := uint64(node.NumChildren()-1) * t.layout.LeavesPerFullChild(node.Depth())
			total += full * uint64(t.layout.MaxBytesPerLeaf)
			last, err := t.loadChild(ctx, node, node.NumChildren()-1)
			if err != nil {
				return 0, err
			}
			n = last
		}
	}
}

// rightSpine 返回从根到最后一个叶子父节点的 inner 节点路径 (自顶向下)
func (t *DataTree) rightSpine(ctx context.Context) ([]*nodestore.Inner, error) {
	var spine []*nodestore.Inner
	n := t.root
	for {
		inner, ok := n.(*nodestore.Inner)
		if !ok {
			return spine, nil
		}
		spine = append(spine, inner)
		if inner.Depth() == 1 {
			return spine, nil
		}
		last, err := t.loadChild(ctx, inner, inner.NumChildren()-1)
		if err != nil {
			return nil, err
		}
		n = last
	}
}

// AddDataLeaf 在末尾追加一个空叶子
func (t *DataTree) AddDataLeaf(ctx context.Context) (*nodestore.Leaf, error) {
	spine, err := t.rightSpine(ctx)
	if err != nil {
		return nil, err
	}
	leaf, _, err := t.appendLeaf(spine, nil)
	return leaf, err
}

// appendLeaf 把 data 作为新叶子挂到树的末尾，返回更新后的最右路径，
// 连续追加时调用方复用它，不需要每次从根重新下降
func (t *DataTree) appendLeaf(spine []*nodestore.Inner, data []byte) (*nodestore.Leaf, []*nodestore.Inner, error) {
	leaf, err := t.nodes.CreateLeaf(data)
	if err != nil {
		return nil, nil, err
	}
	t.track(leaf)

	// 1. 找到最右路径上最低的、还有空位的 inner 节点
	pos := len(spine) - 1
	for pos >= 0 && spine[pos].Full() {
		pos--
	}

	// 2. 整棵树已满：新建根，两个孩子分别是旧根和新链
	if pos < 0 {
		oldRoot := t.root
		top, chain, err := t.createChainOfInnerNodes(oldRoot.Depth(), leaf)
		if err != nil {
			return nil, nil, err
		}
		newRoot, err := t.nodes.CreateInner(oldRoot.Depth()+1, oldRoot.ID(), top.ID())
		if err != nil {
			return nil, nil, err
		}
		t.track(newRoot)
		t.root = newRoot
		t.log.Debug("tree grew",
			zap.String("old_root", oldRoot.ID().Short()),
			zap.String("new_root", newRoot.ID().Short()),
			zap.Uint8("depth", newRoot.Depth()))

		return leaf, append([]*nodestore.Inner{newRoot}, chain...), nil
	}

	// 3. 在 pos 处挂一条刚好到达叶子层的新链
	parent := spine[pos]
	top, chain, err := t.createChainOfInnerNodes(parent.Depth()-1, leaf)
	if err != nil {
		return nil, nil, err
	}
	parent.AddChild(top.ID())
	t.track(parent)

	return leaf, append(spine[:pos+1], chain...), nil
}

// createChainOfInnerNodes 自底向上建立 depth 层单孩子 inner 节点，最底层挂 leaf。
// 返回链顶节点以及自顶向下的 inner 节点列表；depth 为 0 时链顶就是 leaf
func (t *DataTree) createChainOfInnerNodes(depth uint8, leaf *nodestore.Leaf) (nodestore.Node, []*nodestore.Inner, error) {
	chain := make([]*nodestore.Inner, depth)
	var top nodestore.Node = leaf
	for d := uint8(1); d <= depth; d++ {
		inner, err := t.nodes.CreateInner(d, top.ID())
		if err != nil {
			return nil, nil, err
		}
		t.track(inner)
		chain[depth-d] = inner
		top = inner
	}
	return top, chain, nil
}

// RemoveLastDataLeaf 删除最后一个叶子及其因此变空的祖先，
// 然后只要根是只有一个孩子的 inner 节点，就用这个孩子替换根
func (t *DataTree) RemoveLastDataLeaf(ctx context.Context) error {
	spine, err := t.rightSpine(ctx)
	if err != nil {
		return err
	}
	single := true
	for _, n := range spine {
		if n.NumChildren() > 1 {
			single = false
			break
		}
	}
	if single {
		return fmt.Errorf("%w: cannot remove the only leaf", ErrInvalidOperation)
	}

	// 1. 删除叶子
	bottom := spine[len(spine)-1]
	leaf, err := t.loadChild(ctx, bottom, bottom.NumChildren()-1)
	if err != nil {
		return err
	}
	if err := t.removeNode(ctx, leaf); err != nil {
		return err
	}
	bottom.RemoveLastChild()
	t.track(bottom)

	// 2. 向上删除变空的祖先 (根至少还剩一个孩子，因为这不是唯一的叶子)
	for i := len(spine) - 1; i > 0 && spine[i].NumChildren() == 0; i-- {
		if err := t.removeNode(ctx, spine[i]); err != nil {
			return err
		}
		spine[i-1].RemoveLastChild()
		t.track(spine[i-1])
	}

	// 3. 降低树高
	return t.ifRootHasOnlyOneChildReplaceRootWithItsChild(ctx)
}

func (t *DataTree) ifRootHasOnlyOneChildReplaceRootWithItsChild(ctx context.Context) error {
	for {
		root, ok := t.root.(*nodestore.Inner)
		if !ok || root.NumChildren() != 1 {
			return nil
		}
		child, err := t.loadChild(ctx, root, 0)
		if err != nil {
			return err
		}
		if err := t.removeNode(ctx, root); err != nil {
			return err
		}
		t.root = child
		t.log.Debug("tree shrank",
			zap.String("old_root", root.ID().Short()),
			zap.String("new_root", child.ID().Short()),
			zap.Uint8("depth", child.Depth()))
	}
}

// removeNode 把节点摘出树，块本身留到 Flush 再删
func (t *DataTree) removeNode(_ context.Context, n nodestore.Node) error {
	t.forget(n)
	t.removed = append(t.removed, n)
	return nil
}

// TraverseLeaves 按索引递增顺序访问 [begin, end) 中的每个叶子恰好一次。
// 已存在的叶子交给 onExisting，超出当前末尾的叶子会被追加，内容来自 onCreate
func (t *DataTree) TraverseLeaves(ctx context.Context, begin, end uint64, onExisting OnExistingLeaf, onCreate OnCreateLeaf) error {
	if begin > end {
		return fmt.Errorf("%w: begin %d > end %d", ErrInvalidRange, begin, end)
	}
	numLeaves, err := t.NumLeaves(ctx)
	if err != nil {
		return err
	}
	if begin > numLeaves {
		return fmt.Errorf("%w: begin %d beyond leaf count %d", ErrInvalidRange, begin, numLeaves)
	}

	// 1. 已存在部分：按 leavesPerFullChild 下降
	if existingEnd := min(end, numLeaves); begin < existingEnd {
		if err := t.traverseExisting(ctx, t.root, 0, begin, existingEnd, onExisting); err != nil {
			return err
		}
	}
	if end <= numLeaves {
		return nil
	}

	// 2. 需要新建的部分：沿最右路径连续追加
	if onCreate == nil {
		return fmt.Errorf("%w: range [%d,%d) exceeds %d leaves", ErrInvalidRange, begin, end, numLeaves)
	}
	spine, err := t.rightSpine(ctx)
	if err != nil {
		return err
	}
	for i := max(begin, numLeaves); i < end; i++ {
		data, err := onCreate(i)
		if err != nil {
			return err
		}
		if _, spine, err = t.appendLeaf(spine, data); err != nil {
			return err
		}
	}
	return nil
}

// traverseExisting 访问以 n 为根的子树中 [begin, end) 的叶子 (相对索引)，
// base 是这棵子树第一个叶子的绝对索引
func (t *DataTree) traverseExisting(ctx context.Context, n nodestore.Node, base, begin, end uint64, fn OnExistingLeaf) error {
	switch node := n.(type) {
	case *nodestore.Leaf:
		err := fn(base, node)
		t.track(node)
		return err

	case *nodestore.Inner:
		per := t.layout.LeavesPerFullChild(node.Depth())
		first := begin / per
		last := (end - 1) / per
		if last >= uint64(node.NumChildren()) {
			return fmt.Errorf("%w: leaf %d not under node %s", ErrInvalidRange, base+end-1, node.ID().Short())
		}
		for i := first; i <= last; i++ {
			child, err := t.loadChild(ctx, node, uint32(i))
			if err != nil {
				return err
			}
			childStart := i * per
			childBegin := max(begin, childStart) - childStart
			childEnd := min(end, childStart+per) - childStart
			if err := t.traverseExisting(ctx, child, base+childStart, childBegin, childEnd, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush 持久化所有尚未写出的节点，然后删除已经摘出树的块；不改变树的结构
func (t *DataTree) Flush(ctx context.Context) error {
	if len(t.dirty) > 0 {
		nodes := make([]nodestore.Node, 0, len(t.dirty))
		for _, n := range t.dirty {
			nodes = append(nodes, n)
		}
		if err := t.nodes.Flush(ctx, nodes); err != nil {
			return err
		}
		clear(t.dirty)
	}
	return t.removePending(ctx)
}

// removePending 删除 removed 中的块。新的结构必须已经写出
func (t *DataTree) removePending(ctx context.Context) error {
	if len(t.removed) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(removeWorkers)
	for _, n := range t.removed {
		g.Go(func() error { return t.nodes.Remove(gctx, n) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	t.log.Debug("removed detached nodes", zap.Int("count", len(t.removed)))
	t.removed = nil
	return nil
}

// Discard 丢弃上次 Flush 之后的全部修改。后端保持上次 Flush 时的状态，
// 之后这棵树不可再用
func (t *DataTree) Discard() {
	nodes := make([]nodestore.Node, 0, len(t.dirty)+len(t.removed))
	for _, n := range t.dirty {
		nodes = append(nodes, n)
	}
	nodes = append(nodes, t.removed...)
	t.nodes.Forget(nodes...)
	if len(nodes) > 0 {
		t.log.Debug("discarded unflushed nodes", zap.Int("count", len(nodes)))
	}
	clear(t.dirty)
	t.removed = nil
	t.root = nil
}

// Walk 深度优先、从左到右访问每一个节点
func (t *DataTree) Walk(ctx context.Context, fn func(n nodestore.Node) error) error {
	return t.walk(ctx, t.root, fn)
}

func (t *DataTree) walk(ctx context.Context, n nodestore.Node, fn func(n nodestore.Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	inner, ok := n.(*nodestore.Inner)
	if !ok {
		return nil
	}
	for i := uint32(0); i < inner.NumChildren(); i++ {
		child, err := t.loadChild(ctx, inner, i)
		if err != nil {
			return err
		}
		if err := t.walk(ctx, child, fn); err != nil {
			return err
		}
	}
	return nil
}
