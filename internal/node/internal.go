package node

import (
	"encoding/binary"

	"bptreestore/internal/buffer"
	"bptreestore/internal/diskmgr"
)

// InternalView interprets a page as an internal node: slot 0 holds a child
// pointer under a dummy, unused key; slots 1..size-1 hold (separator key,
// child pointer) pairs. Lookup for a target key walks the separators and
// returns the child that may contain it.
type InternalView[K any] struct {
	data     []byte
	keyCodec Codec[K]
}

// NewInternalView wraps data (typically a frame's Data slice) with keyCodec.
// It does not initialize the buffer or check the discriminant byte; use it
// only for a frame about to be formatted fresh via Init. To interpret a page
// that is supposed to already hold an internal node, use LoadInternalView.
func NewInternalView[K any](data []byte, keyCodec Codec[K]) *InternalView[K] {
	return &InternalView[K]{data: data, keyCodec: keyCodec}
}

// LoadInternalView wraps data after checking that it is in fact formatted as
// an internal node, returning a *TypeError if not — the page may have been
// deallocated and reused under a different node type.
func LoadInternalView[K any](data []byte, keyCodec Codec[K]) (*InternalView[K], error) {
	if err := checkType(data, Internal); err != nil {
		return nil, err
	}
	return NewInternalView(data, keyCodec), nil
}

func (v *InternalView[K]) entrySize() int { return v.keyCodec.Size + 8 }

func (v *InternalView[K]) entryOffset(i int) int {
	return HeaderSize + i*v.entrySize()
}

// Init formats a freshly allocated page as an empty internal node.
func (v *InternalView[K]) Init(pageID, parentID int64, maxSize int) {
	setPageType(v.data, Internal)
	writeSize(v.data, 0)
	writeMaxSize(v.data, maxSize)
	SetParentPageID(v.data, parentID)
	writeSelfPageID(v.data, pageID)
}

func (v *InternalView[K]) Size() int         { return readSize(v.data) }
func (v *InternalView[K]) MaxSize() int      { return readMaxSize(v.data) }
func (v *InternalView[K]) MinSize() int      { return MinSize(v.MaxSize()) }
func (v *InternalView[K]) PageID() int64     { return readSelfPageID(v.data) }
func (v *InternalView[K]) ParentPageID() int64 { return ParentPageID(v.data) }

func (v *InternalView[K]) SetParentPageID(pageID int64) {
	SetParentPageID(v.data, pageID)
}

func (v *InternalView[K]) setSize(n int) { writeSize(v.data, n) }

// IsLeaf reports false always; provided for symmetry with LeafView where
// callers branch on node type after reading PageType.
func (v *InternalView[K]) IsLeaf() bool { return false }

func (v *InternalView[K]) KeyAt(i int) K {
	off := v.entryOffset(i)
	return v.keyCodec.Decode(v.data[off : off+v.keyCodec.Size])
}

func (v *InternalView[K]) SetKeyAt(i int, key K) {
	off := v.entryOffset(i)
	copy(v.data[off:off+v.keyCodec.Size], v.keyCodec.Encode(key))
}

func (v *InternalView[K]) ValueAt(i int) int64 {
	off := v.entryOffset(i) + v.keyCodec.Size
	return int64(binary.LittleEndian.Uint64(v.data[off:]))
}

func (v *InternalView[K]) SetValueAt(i int, child int64) {
	off := v.entryOffset(i) + v.keyCodec.Size
	binary.LittleEndian.PutUint64(v.data[off:], uint64(child))
}

func (v *InternalView[K]) shiftEntriesRight(from, count int) {
	shiftRight(v.data, HeaderSize, v.entrySize(), from, count)
}

func (v *InternalView[K]) shiftEntriesLeft(from, count int) {
	shiftLeft(v.data, HeaderSize, v.entrySize(), from, count)
}

// KeyIndex returns the first slot (starting at 1, skipping the dummy key at
// slot 0) whose key equals key, or -1.
func (v *InternalView[K]) KeyIndex(key K, cmp Comparator[K]) int {
	n := v.Size()
	for i := 1; i < n; i++ {
		if cmp(v.KeyAt(i), key) == 0 {
			return i
		}
	}
	return -1
}

// ValueIndex returns the first slot whose child pointer equals value, or -1.
func (v *InternalView[K]) ValueIndex(value int64) int {
	n := v.Size()
	for i := 0; i < n; i++ {
		if v.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup returns the child that may hold key: the last child whose
// separator is not greater than key.
func (v *InternalView[K]) Lookup(key K, cmp Comparator[K]) int64 {
	n := v.Size()
	for i := 1; i < n; i++ {
		if cmp(v.KeyAt(i), key) > 0 {
			return v.ValueAt(i - 1)
		}
	}
	return v.ValueAt(n - 1)
}

// PopulateNewRoot formats this (empty) node as the new root created when the
// previous root split: slot 0 keeps the old root as a child, slot 1 records
// the new separator and its right-hand sibling.
func (v *InternalView[K]) PopulateNewRoot(oldChild int64, newKey K, newValue int64) {
	v.SetValueAt(0, oldChild)
	v.SetKeyAt(1, newKey)
	v.SetValueAt(1, newValue)
	v.setSize(2)
	SetParentPageID(v.data, diskmgr.InvalidPageID)
}

// InsertNodeAfter inserts (newKey, newValue) immediately after the entry
// whose child pointer is oldChild, shifting later entries right.
func (v *InternalView[K]) InsertNodeAfter(oldChild int64, newKey K, newValue int64) {
	idx := v.ValueIndex(oldChild)
	n := v.Size()
	v.shiftEntriesRight(idx+1, n)
	v.SetKeyAt(idx+1, newKey)
	v.SetValueAt(idx+1, newValue)
	v.setSize(n + 1)
}

// Remove deletes the entry at index, shifting later entries left.
func (v *InternalView[K]) Remove(index int) {
	n := v.Size()
	v.shiftEntriesLeft(index+1, n)
	v.setSize(n - 1)
}

// RemoveAndReturnOnlyChild empties a node down to zero entries and returns
// its sole remaining child — used when the root shrinks to one child.
func (v *InternalView[K]) RemoveAndReturnOnlyChild() int64 {
	child := v.ValueAt(0)
	v.setSize(0)
	return child
}

// reparent updates the parent pointer of a child page, whatever its node
// type, by writing the shared header field directly.
func reparent(pool *buffer.Pool, childPageID, newParent int64) {
	frame, ok := pool.Fetch(childPageID)
	if !ok {
		return
	}
	SetParentPageID(frame.Data, newParent)
	pool.Unpin(childPageID, true)
}

// updateParentSeparator finds the separator equal to oldKey in the node at
// parentID and rewrites it to newKey.
func updateParentSeparator[K any](pool *buffer.Pool, parentID int64, oldKey, newKey K, keyCodec Codec[K], cmp Comparator[K]) {
	if parentID == diskmgr.InvalidPageID {
		return
	}
	frame, ok := pool.Fetch(parentID)
	if !ok {
		return
	}
	parent, err := LoadInternalView(frame.Data, keyCodec)
	if err != nil {
		pool.Unpin(parentID, false)
		return
	}
	idx := parent.KeyIndex(oldKey, cmp)
	if idx >= 0 {
		parent.SetKeyAt(idx, newKey)
	}
	pool.Unpin(parentID, idx >= 0)
}

// MoveHalfTo moves this node's upper half of entries to recipient (a fresh
// sibling), reparenting each moved child to recipient.
func (v *InternalView[K]) MoveHalfTo(recipient *InternalView[K], pool *buffer.Pool) {
	n := v.Size()
	start := MinSize(v.MaxSize())
	count := n - start
	for i := 0; i < count; i++ {
		recipient.SetKeyAt(i, v.KeyAt(start+i))
		recipient.SetValueAt(i, v.ValueAt(start+i))
	}
	recipient.setSize(count)
	v.setSize(start)
	for i := 0; i < count; i++ {
		reparent(pool, recipient.ValueAt(i), recipient.PageID())
	}
}

// MoveAllTo merges this node into recipient during a coalesce: the dummy
// key at slot 0 is overwritten with middleKey (the separator that used to
// stand between the two siblings in their parent) before every entry is
// appended to recipient, and every moved child is reparented.
func (v *InternalView[K]) MoveAllTo(recipient *InternalView[K], middleKey K, pool *buffer.Pool) {
	v.SetKeyAt(0, middleKey)
	n := v.Size()
	base := recipient.Size()
	for i := 0; i < n; i++ {
		recipient.SetKeyAt(base+i, v.KeyAt(i))
		recipient.SetValueAt(base+i, v.ValueAt(i))
	}
	recipient.setSize(base + n)
	for i := 0; i < n; i++ {
		reparent(pool, recipient.ValueAt(base+i), recipient.PageID())
	}
	v.setSize(0)
}

// MoveFirstToEndOf borrows this node's first entry onto the end of
// recipient (a left sibling short on entries), fixing up the shared
// parent's separator in place.
func (v *InternalView[K]) MoveFirstToEndOf(recipient *InternalView[K], middleKey K, pool *buffer.Pool, cmp Comparator[K]) {
	n := v.Size()
	newMiddleKey := v.KeyAt(1)
	movedChild := v.ValueAt(0)
	v.shiftEntriesLeft(1, n)
	v.setSize(n - 1)

	m := recipient.Size()
	recipient.SetKeyAt(m, middleKey)
	recipient.SetValueAt(m, movedChild)
	recipient.setSize(m + 1)

	updateParentSeparator(pool, v.ParentPageID(), middleKey, newMiddleKey, v.keyCodec, cmp)
	reparent(pool, movedChild, recipient.PageID())
}

// MoveLastToFrontOf borrows this node's last entry onto the front of
// recipient (a right sibling short on entries), fixing up the shared
// parent's separator in place.
func (v *InternalView[K]) MoveLastToFrontOf(recipient *InternalView[K], middleKey K, pool *buffer.Pool, cmp Comparator[K]) {
	n := v.Size()
	movedKey := v.KeyAt(n - 1)
	movedChild := v.ValueAt(n - 1)
	v.setSize(n - 1)

	m := recipient.Size()
	recipient.shiftEntriesRight(0, m)
	recipient.SetValueAt(0, movedChild)
	recipient.SetKeyAt(1, middleKey)
	recipient.setSize(m + 1)

	updateParentSeparator(pool, v.ParentPageID(), middleKey, movedKey, v.keyCodec, cmp)
	reparent(pool, movedChild, recipient.PageID())
}
