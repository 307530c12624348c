package bptree

import (
	"bptreestore/internal/buffer"
	"bptreestore/internal/diskmgr"
	"bptreestore/internal/node"

	"github.com/golang/glog"
)

// Iterator is a forward cursor over an index's leaf chain. It holds a pin on
// its current leaf frame for its entire lifetime — from the Begin/BeginAt/End
// call that produced it until Close is called — so the page it is parked on
// can never be evicted or deallocated out from under it. Close must be
// called when the caller is done with the iterator, the same way a C++
// destructor releases the pin this type is modeled on.
type Iterator[K any, V any] struct {
	tree   *Tree[K, V]
	pageID int64
	frame  *buffer.Frame
	slot   int
}

func closedIterator[K any, V any](t *Tree[K, V]) *Iterator[K, V] {
	return &Iterator[K, V]{tree: t, pageID: diskmgr.InvalidPageID}
}

// Begin returns an iterator pinned on the index's first entry.
func (t *Tree[K, V]) Begin() *Iterator[K, V] {
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		return closedIterator(t)
	}
	leafID, err := t.leftmostLeafID(rootID)
	if err != nil {
		glog.Errorf("bptree[%s]: Begin: %v", t.name, err)
		return closedIterator(t)
	}
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return closedIterator(t)
	}
	if _, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec); err != nil {
		t.pool.Unpin(leafID, false)
		glog.Errorf("bptree[%s]: Begin: %v", t.name, err)
		return closedIterator(t)
	}
	return &Iterator[K, V]{tree: t, pageID: leafID, frame: f, slot: 0}
}

// BeginAt returns an iterator pinned on the first entry whose key is greater
// than or equal to key.
func (t *Tree[K, V]) BeginAt(key K) *Iterator[K, V] {
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		return closedIterator(t)
	}
	leafID, err := t.findLeafID(rootID, key)
	if err != nil {
		glog.Errorf("bptree[%s]: BeginAt: %v", t.name, err)
		return closedIterator(t)
	}
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return closedIterator(t)
	}
	leaf, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(leafID, false)
		glog.Errorf("bptree[%s]: BeginAt: %v", t.name, err)
		return closedIterator(t)
	}
	slot := leaf.KeyIndex(key, t.cmp)
	if slot < leaf.Size() {
		return &Iterator[K, V]{tree: t, pageID: leafID, frame: f, slot: slot}
	}

	next := leaf.NextPageID()
	t.pool.Unpin(leafID, false)
	if next == diskmgr.InvalidPageID {
		return closedIterator(t)
	}
	return t.pinLeafStart(next)
}

// pinLeafStart fetches and pins leafID, positioning the cursor at its first
// entry. Used when a lower-bound search lands past the end of a leaf.
func (t *Tree[K, V]) pinLeafStart(leafID int64) *Iterator[K, V] {
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return closedIterator(t)
	}
	if _, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec); err != nil {
		t.pool.Unpin(leafID, false)
		glog.Errorf("bptree[%s]: pinLeafStart: %v", t.name, err)
		return closedIterator(t)
	}
	return &Iterator[K, V]{tree: t, pageID: leafID, frame: f, slot: 0}
}

// End returns an iterator pinned on the index's last entry. Like
// Begin/BeginAt, this is not a past-the-end sentinel: IsEnd on the result of
// End is false unless the index is empty. Advancing past the last entry, or
// calling IsEnd on an index with no entries, is what produces the terminal
// state that IsEnd reports.
func (t *Tree[K, V]) End() *Iterator[K, V] {
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		return closedIterator(t)
	}
	pageID := rootID
	for {
		f, ok := t.pool.Fetch(pageID)
		if !ok {
			return closedIterator(t)
		}
		if node.PageType(f.Data) == node.Leaf {
			leaf := node.NewLeafView[K, V](f.Data, t.keyCodec, t.valCodec)
			n := leaf.Size()
			if n == 0 {
				t.pool.Unpin(pageID, false)
				return closedIterator(t)
			}
			return &Iterator[K, V]{tree: t, pageID: pageID, frame: f, slot: n - 1}
		}
		v := node.NewInternalView[K](f.Data, t.keyCodec)
		next := v.ValueAt(v.Size() - 1)
		t.pool.Unpin(pageID, false)
		pageID = next
	}
}

// Close releases the pin this iterator holds, if any. It is idempotent and
// safe to call on an already-closed or never-advanced-past-end iterator.
func (it *Iterator[K, V]) Close() {
	if it.frame == nil {
		return
	}
	it.tree.pool.Unpin(it.pageID, false)
	it.frame = nil
	it.pageID = diskmgr.InvalidPageID
}

// IsEnd reports whether the cursor has run off the end of the leaf chain.
func (it *Iterator[K, V]) IsEnd() bool {
	return it.frame == nil
}

// Key returns the key at the cursor. Calling it when IsEnd is true panics,
// same as dereferencing past the end of any other Go iterator.
func (it *Iterator[K, V]) Key() K {
	k, _ := it.item()
	return k
}

// Value returns the value at the cursor.
func (it *Iterator[K, V]) Value() V {
	_, v := it.item()
	return v
}

func (it *Iterator[K, V]) item() (K, V) {
	leaf := node.NewLeafView[K, V](it.frame.Data, it.tree.keyCodec, it.tree.valCodec)
	return leaf.GetItem(it.slot)
}

// Next advances the cursor by one entry, crossing into the next leaf (and
// releasing the pin on the one being left) when the current one is
// exhausted.
func (it *Iterator[K, V]) Next() {
	if it.IsEnd() {
		return
	}
	leaf := node.NewLeafView[K, V](it.frame.Data, it.tree.keyCodec, it.tree.valCodec)
	n := leaf.Size()
	if it.slot+1 < n {
		it.slot++
		return
	}

	next := leaf.NextPageID()
	oldPageID := it.pageID
	it.frame = nil
	it.pageID = diskmgr.InvalidPageID
	if next == diskmgr.InvalidPageID {
		it.tree.pool.Unpin(oldPageID, false)
		return
	}

	nf, ok := it.tree.pool.Fetch(next)
	it.tree.pool.Unpin(oldPageID, false)
	if !ok {
		return
	}
	if _, err := node.LoadLeafView(nf.Data, it.tree.keyCodec, it.tree.valCodec); err != nil {
		it.tree.pool.Unpin(next, false)
		glog.Errorf("bptree[%s]: Next: %v", it.tree.name, err)
		return
	}
	it.pageID = next
	it.frame = nf
	it.slot = 0
}
