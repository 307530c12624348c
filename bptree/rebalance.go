package bptree

import (
	"bptreestore/internal/diskmgr"
	"bptreestore/internal/node"

	"github.com/golang/glog"
)

// coalesceOrRedistribute restores the min-size invariant for the
// underflowed node at pageID: it merges with a sibling when their combined
// size fits one node, otherwise borrows a single entry from whichever
// sibling is picked, and recurses upward if a merge shrinks the parent
// below its own minimum.
func (t *Tree[K, V]) coalesceOrRedistribute(pageID int64) {
	f, ok := t.pool.Fetch(pageID)
	if !ok {
		return
	}
	parentID := node.ParentPageID(f.Data)
	isLeaf := node.PageType(f.Data) == node.Leaf
	t.pool.Unpin(pageID, false)

	if parentID == diskmgr.InvalidPageID {
		t.adjustRoot(pageID)
		return
	}

	pf, ok := t.pool.Fetch(parentID)
	if !ok {
		return
	}
	parent, err := node.LoadInternalView(pf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(parentID, false)
		glog.Errorf("bptree[%s]: coalesceOrRedistribute: %v", t.name, err)
		return
	}
	nodeIdx := parent.ValueIndex(pageID)
	siblingIdx := nodeIdx - 1
	if nodeIdx == 0 {
		siblingIdx = 1
	}
	siblingID := parent.ValueAt(siblingIdx)
	t.pool.Unpin(parentID, false)

	if isLeaf {
		t.coalesceOrRedistributeLeaf(pageID, siblingID, parentID, nodeIdx, siblingIdx)
	} else {
		t.coalesceOrRedistributeInternal(pageID, siblingID, parentID, nodeIdx, siblingIdx)
	}
}

func (t *Tree[K, V]) coalesceOrRedistributeLeaf(pageID, siblingID, parentID int64, nodeIdx, siblingIdx int) {
	nf, ok := t.pool.Fetch(pageID)
	if !ok {
		return
	}
	nodeView, err := node.LoadLeafView(nf.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(pageID, false)
		glog.Errorf("bptree[%s]: coalesceOrRedistributeLeaf: %v", t.name, err)
		return
	}
	sf, ok := t.pool.Fetch(siblingID)
	if !ok {
		t.pool.Unpin(pageID, false)
		return
	}
	sibView, err := node.LoadLeafView(sf.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(pageID, false)
		t.pool.Unpin(siblingID, false)
		glog.Errorf("bptree[%s]: coalesceOrRedistributeLeaf: %v", t.name, err)
		return
	}

	if nodeView.Size()+sibView.Size() <= nodeView.MaxSize() {
		var left, right *node.LeafView[K, V]
		var leftID, rightID int64
		var rightIdx int
		if nodeIdx == 0 {
			left, right, leftID, rightID, rightIdx = nodeView, sibView, pageID, siblingID, siblingIdx
		} else {
			left, right, leftID, rightID, rightIdx = sibView, nodeView, siblingID, pageID, nodeIdx
		}
		right.MoveAllTo(left)
		t.pool.Unpin(leftID, true)
		t.pool.Unpin(rightID, true)
		glog.V(2).Infof("bptree[%s]: coalesced leaf %d into %d", t.name, rightID, leftID)
		t.pool.Delete(rightID)
		t.removeFromParent(parentID, rightIdx)
		return
	}

	if nodeIdx == 0 {
		sibView.MoveFirstToEndOf(nodeView)
		t.setParentSeparator(parentID, siblingIdx, sibView.KeyAt(0))
	} else {
		sibView.MoveLastToFrontOf(nodeView)
		t.setParentSeparator(parentID, nodeIdx, nodeView.KeyAt(0))
	}
	t.pool.Unpin(pageID, true)
	t.pool.Unpin(siblingID, true)
}

func (t *Tree[K, V]) coalesceOrRedistributeInternal(pageID, siblingID, parentID int64, nodeIdx, siblingIdx int) {
	nf, ok := t.pool.Fetch(pageID)
	if !ok {
		return
	}
	nodeView, err := node.LoadInternalView(nf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(pageID, false)
		glog.Errorf("bptree[%s]: coalesceOrRedistributeInternal: %v", t.name, err)
		return
	}
	sf, ok := t.pool.Fetch(siblingID)
	if !ok {
		t.pool.Unpin(pageID, false)
		return
	}
	sibView, err := node.LoadInternalView(sf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(pageID, false)
		t.pool.Unpin(siblingID, false)
		glog.Errorf("bptree[%s]: coalesceOrRedistributeInternal: %v", t.name, err)
		return
	}

	if nodeView.Size()+sibView.Size() <= nodeView.MaxSize() {
		var left, right *node.InternalView[K]
		var leftID, rightID int64
		var rightIdx int
		if nodeIdx == 0 {
			left, right, leftID, rightID, rightIdx = nodeView, sibView, pageID, siblingID, siblingIdx
		} else {
			left, right, leftID, rightID, rightIdx = sibView, nodeView, siblingID, pageID, nodeIdx
		}
		middleKey := t.parentKeyAt(parentID, rightIdx)
		right.MoveAllTo(left, middleKey, t.pool)
		t.pool.Unpin(leftID, true)
		t.pool.Unpin(rightID, true)
		glog.V(2).Infof("bptree[%s]: coalesced internal node %d into %d", t.name, rightID, leftID)
		t.pool.Delete(rightID)
		t.removeFromParent(parentID, rightIdx)
		return
	}

	if nodeIdx == 0 {
		middleKey := t.parentKeyAt(parentID, siblingIdx)
		sibView.MoveFirstToEndOf(nodeView, middleKey, t.pool, t.cmp)
	} else {
		middleKey := t.parentKeyAt(parentID, nodeIdx)
		sibView.MoveLastToFrontOf(nodeView, middleKey, t.pool, t.cmp)
	}
	t.pool.Unpin(pageID, true)
	t.pool.Unpin(siblingID, true)
}

func (t *Tree[K, V]) parentKeyAt(parentID int64, slot int) K {
	var zero K
	pf, ok := t.pool.Fetch(parentID)
	if !ok {
		return zero
	}
	parent, err := node.LoadInternalView(pf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(parentID, false)
		glog.Errorf("bptree[%s]: parentKeyAt: %v", t.name, err)
		return zero
	}
	key := parent.KeyAt(slot)
	t.pool.Unpin(parentID, false)
	return key
}

func (t *Tree[K, V]) setParentSeparator(parentID int64, slot int, key K) {
	pf, ok := t.pool.Fetch(parentID)
	if !ok {
		return
	}
	parent, err := node.LoadInternalView(pf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(parentID, false)
		glog.Errorf("bptree[%s]: setParentSeparator: %v", t.name, err)
		return
	}
	parent.SetKeyAt(slot, key)
	t.pool.Unpin(parentID, true)
}

// removeFromParent deletes the entry at idx from the node at parentID
// (after a coalesce swallowed one of its children), recursing upward if
// that removal underflows the parent in turn.
func (t *Tree[K, V]) removeFromParent(parentID int64, idx int) {
	pf, ok := t.pool.Fetch(parentID)
	if !ok {
		return
	}
	parent, err := node.LoadInternalView(pf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(parentID, false)
		glog.Errorf("bptree[%s]: removeFromParent: %v", t.name, err)
		return
	}
	parent.Remove(idx)
	newSize := parent.Size()
	minSize := parent.MinSize()
	t.pool.Unpin(parentID, true)

	if newSize < minSize {
		t.coalesceOrRedistribute(parentID)
	}
}

// adjustRoot collapses a root that has shrunk to the point of being
// removable: an empty leaf root means the whole index is now empty, and an
// internal root with a single remaining child promotes that child to root.
func (t *Tree[K, V]) adjustRoot(rootPageID int64) {
	f, ok := t.pool.Fetch(rootPageID)
	if !ok {
		return
	}

	if node.PageType(f.Data) == node.Leaf {
		leaf := node.NewLeafView[K, V](f.Data, t.keyCodec, t.valCodec)
		if leaf.Size() == 0 {
			t.pool.Unpin(rootPageID, false)
			t.pool.Delete(rootPageID)
			t.header.UpdateRecord(t.name, diskmgr.InvalidPageID)
			glog.V(2).Infof("bptree[%s]: root emptied, index now empty", t.name)
			return
		}
		t.pool.Unpin(rootPageID, false)
		return
	}

	root := node.NewInternalView[K](f.Data, t.keyCodec)
	if root.Size() != 1 {
		t.pool.Unpin(rootPageID, false)
		return
	}
	onlyChild := root.RemoveAndReturnOnlyChild()
	t.pool.Unpin(rootPageID, true)
	t.pool.Delete(rootPageID)

	if cf, ok := t.pool.Fetch(onlyChild); ok {
		node.SetParentPageID(cf.Data, diskmgr.InvalidPageID)
		t.pool.Unpin(onlyChild, true)
	}
	t.header.UpdateRecord(t.name, onlyChild)
	glog.V(2).Infof("bptree[%s]: root collapsed, new root %d", t.name, onlyChild)
}
