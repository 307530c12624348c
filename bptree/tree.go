// Package bptree implements a disk-backed B+tree index on top of the
// buffer pool, node layout, and header page packages: find/insert/remove
// with recursive split on overflow and coalesce-or-redistribute on
// underflow, plus a forward range iterator over the leaf chain.
package bptree

import (
	"fmt"

	"bptreestore/internal/buffer"
	"bptreestore/internal/diskmgr"
	"bptreestore/internal/header"
	"bptreestore/internal/node"

	"github.com/golang/glog"
)

// Codec and Comparator are re-exported so callers never need to import the
// node package directly to build a tree.
type Codec[T any] = node.Codec[T]
type Comparator[K any] = node.Comparator[K]

var (
	Int64Codec      = node.Int64Codec
	IntCompare      = node.IntCompare[int64]
	FixedStringCodec = node.FixedStringCodec
	StringCompare    = node.StringCompare
)

// Config names the index and bounds how many entries each node type may
// hold before it must split. Both bounds must leave room for one entry
// beyond the limit: a node is allowed to grow to size+1 transiently between
// insertion and the resulting split.
type Config struct {
	Name            string
	MaxLeafSize     int
	MaxInternalSize int
}

// Tree is a named B+tree index, identified by Config.Name in the shared
// header page so its root survives a process restart.
type Tree[K any, V any] struct {
	pool     *buffer.Pool
	header   *header.Page
	name     string
	keyCodec Codec[K]
	valCodec Codec[V]
	cmp      Comparator[K]
	maxLeaf  int
	maxInt   int
}

// New builds a handle onto the named index, backed by pool and hp. It does
// not itself create the index's root page — that happens lazily on the
// first Insert if the header has no record for cfg.Name yet.
func New[K any, V any](pool *buffer.Pool, hp *header.Page, cfg Config, keyCodec Codec[K], valCodec Codec[V], cmp Comparator[K]) *Tree[K, V] {
	return &Tree[K, V]{
		pool:     pool,
		header:   hp,
		name:     cfg.Name,
		keyCodec: keyCodec,
		valCodec: valCodec,
		cmp:      cmp,
		maxLeaf:  cfg.MaxLeafSize,
		maxInt:   cfg.MaxInternalSize,
	}
}

// IsEmpty reports whether the index has no root page yet.
func (t *Tree[K, V]) IsEmpty() bool {
	_, ok := t.header.GetRoot(t.name)
	return !ok
}

func (t *Tree[K, V]) findLeafID(rootID int64, key K) (int64, error) {
	pageID := rootID
	for {
		f, ok := t.pool.Fetch(pageID)
		if !ok {
			return diskmgr.InvalidPageID, fmt.Errorf("bptree: failed to fetch page %d", pageID)
		}
		if node.PageType(f.Data) == node.Leaf {
			t.pool.Unpin(pageID, false)
			return pageID, nil
		}
		v, err := node.LoadInternalView(f.Data, t.keyCodec)
		if err != nil {
			t.pool.Unpin(pageID, false)
			return diskmgr.InvalidPageID, err
		}
		next := v.Lookup(key, t.cmp)
		t.pool.Unpin(pageID, false)
		pageID = next
	}
}

func (t *Tree[K, V]) leftmostLeafID(rootID int64) (int64, error) {
	pageID := rootID
	for {
		f, ok := t.pool.Fetch(pageID)
		if !ok {
			return diskmgr.InvalidPageID, fmt.Errorf("bptree: failed to fetch page %d", pageID)
		}
		if node.PageType(f.Data) == node.Leaf {
			t.pool.Unpin(pageID, false)
			return pageID, nil
		}
		v, err := node.LoadInternalView(f.Data, t.keyCodec)
		if err != nil {
			t.pool.Unpin(pageID, false)
			return diskmgr.InvalidPageID, err
		}
		next := v.ValueAt(0)
		t.pool.Unpin(pageID, false)
		pageID = next
	}
}

// GetValue returns the value stored under key, if present.
func (t *Tree[K, V]) GetValue(key K) (V, bool) {
	var zero V
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		return zero, false
	}
	leafID, err := t.findLeafID(rootID, key)
	if err != nil {
		glog.Errorf("bptree: GetValue(%v): %v", key, err)
		return zero, false
	}
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return zero, false
	}
	leaf, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(leafID, false)
		glog.Errorf("bptree: GetValue(%v): %v", key, err)
		return zero, false
	}
	var out V
	found := leaf.Lookup(key, &out, t.cmp)
	t.pool.Unpin(leafID, false)
	if !found {
		return zero, false
	}
	return out, true
}

// Insert adds (key, value) to the index. It fails if key is already
// present.
func (t *Tree[K, V]) Insert(key K, value V) error {
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		f, pageID, ok := t.pool.New()
		if !ok {
			return fmt.Errorf("bptree: out of buffer frames allocating root")
		}
		leaf := node.NewLeafView(f.Data, t.keyCodec, t.valCodec)
		leaf.Init(pageID, diskmgr.InvalidPageID, t.maxLeaf)
		leaf.Insert(key, value, t.cmp)
		t.pool.Unpin(pageID, true)
		return t.header.InsertRecord(t.name, pageID)
	}

	leafID, err := t.findLeafID(rootID, key)
	if err != nil {
		return err
	}
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return fmt.Errorf("bptree: failed to fetch leaf %d", leafID)
	}
	leaf, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(leafID, false)
		return err
	}

	var existing V
	if leaf.Lookup(key, &existing, t.cmp) {
		t.pool.Unpin(leafID, false)
		return fmt.Errorf("bptree: key already present")
	}

	leaf.Insert(key, value, t.cmp)
	if leaf.Size() <= t.maxLeaf {
		t.pool.Unpin(leafID, true)
		return nil
	}

	sf, sibID, ok := t.pool.New()
	if !ok {
		t.pool.Unpin(leafID, true)
		return fmt.Errorf("bptree: out of buffer frames splitting leaf %d", leafID)
	}
	sibling := node.NewLeafView(sf.Data, t.keyCodec, t.valCodec)
	sibling.Init(sibID, leaf.ParentPageID(), t.maxLeaf)
	leaf.MoveHalfTo(sibling)
	middleKey := sibling.KeyAt(0)

	t.pool.Unpin(leafID, true)
	t.pool.Unpin(sibID, true)
	glog.V(2).Infof("bptree[%s]: leaf %d split, new sibling %d", t.name, leafID, sibID)
	return t.insertIntoParent(leafID, middleKey, sibID)
}

// insertIntoParent links newPageID into oldPageID's parent under the given
// separator key, splitting that parent (and recursing upward) if it
// overflows, or creating a brand-new root if oldPageID had none.
func (t *Tree[K, V]) insertIntoParent(oldPageID int64, key K, newPageID int64) error {
	of, ok := t.pool.Fetch(oldPageID)
	if !ok {
		return fmt.Errorf("bptree: failed to fetch %d", oldPageID)
	}
	parentID := node.ParentPageID(of.Data)
	t.pool.Unpin(oldPageID, false)

	if parentID == diskmgr.InvalidPageID {
		rf, rootID, ok := t.pool.New()
		if !ok {
			return fmt.Errorf("bptree: out of buffer frames allocating new root")
		}
		root := node.NewInternalView(rf.Data, t.keyCodec)
		root.Init(rootID, diskmgr.InvalidPageID, t.maxInt)
		root.PopulateNewRoot(oldPageID, key, newPageID)
		t.pool.Unpin(rootID, true)

		if of2, ok := t.pool.Fetch(oldPageID); ok {
			node.SetParentPageID(of2.Data, rootID)
			t.pool.Unpin(oldPageID, true)
		}
		if nf, ok := t.pool.Fetch(newPageID); ok {
			node.SetParentPageID(nf.Data, rootID)
			t.pool.Unpin(newPageID, true)
		}
		glog.V(2).Infof("bptree[%s]: new root %d", t.name, rootID)
		return t.header.UpdateRecord(t.name, rootID)
	}

	pf, ok := t.pool.Fetch(parentID)
	if !ok {
		return fmt.Errorf("bptree: failed to fetch parent %d", parentID)
	}
	parent, err := node.LoadInternalView(pf.Data, t.keyCodec)
	if err != nil {
		t.pool.Unpin(parentID, false)
		return err
	}
	parent.InsertNodeAfter(oldPageID, key, newPageID)

	if nf, ok := t.pool.Fetch(newPageID); ok {
		node.SetParentPageID(nf.Data, parentID)
		t.pool.Unpin(newPageID, true)
	}

	if parent.Size() <= t.maxInt {
		t.pool.Unpin(parentID, true)
		return nil
	}

	sf, sibID, ok := t.pool.New()
	if !ok {
		t.pool.Unpin(parentID, true)
		return fmt.Errorf("bptree: out of buffer frames splitting internal node %d", parentID)
	}
	sibling := node.NewInternalView(sf.Data, t.keyCodec)
	sibling.Init(sibID, parent.ParentPageID(), t.maxInt)
	parent.MoveHalfTo(sibling, t.pool)
	middleKey := sibling.KeyAt(0)

	t.pool.Unpin(parentID, true)
	t.pool.Unpin(sibID, true)
	glog.V(2).Infof("bptree[%s]: internal node %d split, new sibling %d", t.name, parentID, sibID)
	return t.insertIntoParent(parentID, middleKey, sibID)
}

// Remove deletes key, if present, rebalancing the tree on underflow.
func (t *Tree[K, V]) Remove(key K) error {
	rootID, ok := t.header.GetRoot(t.name)
	if !ok {
		return nil
	}
	leafID, err := t.findLeafID(rootID, key)
	if err != nil {
		return err
	}
	f, ok := t.pool.Fetch(leafID)
	if !ok {
		return fmt.Errorf("bptree: failed to fetch leaf %d", leafID)
	}
	leaf, err := node.LoadLeafView(f.Data, t.keyCodec, t.valCodec)
	if err != nil {
		t.pool.Unpin(leafID, false)
		return err
	}
	newSize := leaf.RemoveAndDeleteRecord(key, t.cmp)
	minSize := leaf.MinSize()
	t.pool.Unpin(leafID, true)

	if newSize < minSize {
		t.coalesceOrRedistribute(leafID)
	}
	return nil
}
