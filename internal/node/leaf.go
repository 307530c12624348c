package node

import "bptreestore/internal/diskmgr"

// LeafView interprets a page as a leaf node: slots 0..size-1 hold ordered
// (key, value) pairs, plus a next-leaf page pointer for forward iteration.
type LeafView[K any, V any] struct {
	data     []byte
	keyCodec Codec[K]
	valCodec Codec[V]
}

// NewLeafView wraps data with the given key/value codecs. It does not
// initialize the buffer or check the discriminant byte; use it only for a
// frame about to be formatted fresh via Init. To interpret a page that is
// supposed to already hold a leaf, use LoadLeafView.
func NewLeafView[K any, V any](data []byte, keyCodec Codec[K], valCodec Codec[V]) *LeafView[K, V] {
	return &LeafView[K, V]{data: data, keyCodec: keyCodec, valCodec: valCodec}
}

// LoadLeafView wraps data after checking that it is in fact formatted as a
// leaf node, returning a *TypeError if not — the page may have been
// deallocated and reused under a different node type.
func LoadLeafView[K any, V any](data []byte, keyCodec Codec[K], valCodec Codec[V]) (*LeafView[K, V], error) {
	if err := checkType(data, Leaf); err != nil {
		return nil, err
	}
	return NewLeafView(data, keyCodec, valCodec), nil
}

func (v *LeafView[K, V]) entrySize() int { return v.keyCodec.Size + v.valCodec.Size }

func (v *LeafView[K, V]) entryOffset(i int) int {
	return HeaderSize + i*v.entrySize()
}

// Init formats a freshly allocated page as an empty leaf node.
func (v *LeafView[K, V]) Init(pageID, parentID int64, maxSize int) {
	setPageType(v.data, Leaf)
	writeSize(v.data, 0)
	writeMaxSize(v.data, maxSize)
	SetParentPageID(v.data, parentID)
	writeSelfPageID(v.data, pageID)
	writeNextPageID(v.data, diskmgr.InvalidPageID)
}

func (v *LeafView[K, V]) Size() int           { return readSize(v.data) }
func (v *LeafView[K, V]) MaxSize() int        { return readMaxSize(v.data) }
func (v *LeafView[K, V]) MinSize() int        { return MinSize(v.MaxSize()) }
func (v *LeafView[K, V]) PageID() int64       { return readSelfPageID(v.data) }
func (v *LeafView[K, V]) ParentPageID() int64 { return ParentPageID(v.data) }
func (v *LeafView[K, V]) NextPageID() int64   { return readNextPageID(v.data) }

func (v *LeafView[K, V]) SetParentPageID(pageID int64) { SetParentPageID(v.data, pageID) }
func (v *LeafView[K, V]) SetNextPageID(pageID int64)   { writeNextPageID(v.data, pageID) }

func (v *LeafView[K, V]) setSize(n int) { writeSize(v.data, n) }

// IsLeaf reports true always; provided for symmetry with InternalView where
// callers branch on node type after reading PageType.
func (v *LeafView[K, V]) IsLeaf() bool { return true }

func (v *LeafView[K, V]) KeyAt(i int) K {
	off := v.entryOffset(i)
	return v.keyCodec.Decode(v.data[off : off+v.keyCodec.Size])
}

func (v *LeafView[K, V]) SetKeyAt(i int, key K) {
	off := v.entryOffset(i)
	copy(v.data[off:off+v.keyCodec.Size], v.keyCodec.Encode(key))
}

func (v *LeafView[K, V]) ValueAt(i int) V {
	off := v.entryOffset(i) + v.keyCodec.Size
	return v.valCodec.Decode(v.data[off : off+v.valCodec.Size])
}

func (v *LeafView[K, V]) SetValueAt(i int, val V) {
	off := v.entryOffset(i) + v.keyCodec.Size
	copy(v.data[off:off+v.valCodec.Size], v.valCodec.Encode(val))
}

// GetItem returns the (key, value) pair at index i, for iteration.
func (v *LeafView[K, V]) GetItem(i int) (K, V) {
	return v.KeyAt(i), v.ValueAt(i)
}

func (v *LeafView[K, V]) shiftEntriesRight(from, count int) {
	shiftRight(v.data, HeaderSize, v.entrySize(), from, count)
}

func (v *LeafView[K, V]) shiftEntriesLeft(from, count int) {
	shiftLeft(v.data, HeaderSize, v.entrySize(), from, count)
}

// KeyIndex returns the first index with key >= input — the lower bound used
// to position a range iterator.
func (v *LeafView[K, V]) KeyIndex(key K, cmp Comparator[K]) int {
	n := v.Size()
	for i := 0; i < n; i++ {
		if cmp(v.KeyAt(i), key) >= 0 {
			return i
		}
	}
	return n
}

// Lookup does an exact-match search and, on a hit, writes the matching
// value to out and returns true.
func (v *LeafView[K, V]) Lookup(key K, out *V, cmp Comparator[K]) bool {
	n := v.Size()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(v.KeyAt(mid), key)
		switch {
		case c == 0:
			*out = v.ValueAt(mid)
			return true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Insert places (key, value) in sorted position. Duplicate rejection is the
// caller's responsibility; Insert assumes key is not already present.
func (v *LeafView[K, V]) Insert(key K, value V, cmp Comparator[K]) {
	idx := v.KeyIndex(key, cmp)
	n := v.Size()
	v.shiftEntriesRight(idx, n)
	v.SetKeyAt(idx, key)
	v.SetValueAt(idx, value)
	v.setSize(n + 1)
}

// RemoveAndDeleteRecord deletes the entry matching key, if present, and
// returns the node's size afterward (unchanged if key was absent).
func (v *LeafView[K, V]) RemoveAndDeleteRecord(key K, cmp Comparator[K]) int {
	n := v.Size()
	idx := v.KeyIndex(key, cmp)
	if idx >= n || cmp(v.KeyAt(idx), key) != 0 {
		return n
	}
	v.shiftEntriesLeft(idx+1, n)
	v.setSize(n - 1)
	return n - 1
}

// MoveHalfTo moves this leaf's upper half of entries to recipient (a fresh
// right sibling created by a split), splicing the forward-iteration chain
// so recipient inherits this leaf's old successor and this leaf now points
// to recipient.
func (v *LeafView[K, V]) MoveHalfTo(recipient *LeafView[K, V]) {
	n := v.Size()
	start := MinSize(v.MaxSize())
	count := n - start
	for i := 0; i < count; i++ {
		recipient.SetKeyAt(i, v.KeyAt(start+i))
		recipient.SetValueAt(i, v.ValueAt(start+i))
	}
	recipient.setSize(count)
	v.setSize(start)
	recipient.SetNextPageID(v.NextPageID())
	v.SetNextPageID(recipient.PageID())
}

// MoveAllTo merges this leaf into recipient during a coalesce: every entry
// is appended to recipient and recipient inherits this leaf's successor
// pointer.
func (v *LeafView[K, V]) MoveAllTo(recipient *LeafView[K, V]) {
	n := v.Size()
	base := recipient.Size()
	for i := 0; i < n; i++ {
		recipient.SetKeyAt(base+i, v.KeyAt(i))
		recipient.SetValueAt(base+i, v.ValueAt(i))
	}
	recipient.setSize(base + n)
	recipient.SetNextPageID(v.NextPageID())
	v.setSize(0)
}

// MoveFirstToEndOf borrows this leaf's first entry onto the end of
// recipient, a left sibling short on entries. The caller is responsible
// for refreshing the shared parent's separator, since a leaf carries no
// separator key of its own — it's just the new first key of this leaf.
func (v *LeafView[K, V]) MoveFirstToEndOf(recipient *LeafView[K, V]) {
	key, val := v.GetItem(0)
	n := v.Size()
	v.shiftEntriesLeft(1, n)
	v.setSize(n - 1)

	m := recipient.Size()
	recipient.SetKeyAt(m, key)
	recipient.SetValueAt(m, val)
	recipient.setSize(m + 1)
}

// MoveLastToFrontOf borrows this leaf's last entry onto the front of
// recipient, a right sibling short on entries. The caller is responsible
// for refreshing the shared parent's separator to the moved key.
func (v *LeafView[K, V]) MoveLastToFrontOf(recipient *LeafView[K, V]) {
	n := v.Size()
	key, val := v.GetItem(n - 1)
	v.setSize(n - 1)

	m := recipient.Size()
	recipient.shiftEntriesRight(0, m)
	recipient.SetKeyAt(0, key)
	recipient.SetValueAt(0, val)
	recipient.setSize(m + 1)
}
