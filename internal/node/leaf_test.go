package node

import (
	"testing"

	"bptreestore/internal/diskmgr"
)

func newLeaf(maxSize int) *LeafView[int64, int64] {
	data := make([]byte, diskmgr.PageSize)
	v := NewLeafView(data, Int64Codec, Int64Codec)
	v.Init(1, diskmgr.InvalidPageID, maxSize)
	return v
}

func TestLeafInsertKeepsOrder(t *testing.T) {
	l := newLeaf(4)
	l.Insert(30, 300, IntCompare[int64])
	l.Insert(10, 100, IntCompare[int64])
	l.Insert(20, 200, IntCompare[int64])

	if l.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", l.Size())
	}
	for i, want := range []int64{10, 20, 30} {
		if got := l.KeyAt(i); got != want {
			t.Fatalf("KeyAt(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestLeafLookupHitAndMiss(t *testing.T) {
	l := newLeaf(4)
	l.Insert(10, 100, IntCompare[int64])
	l.Insert(20, 200, IntCompare[int64])

	var out int64
	if !l.Lookup(20, &out, IntCompare[int64]) || out != 200 {
		t.Fatalf("Lookup(20) = (%d, ok), want (200, true)", out)
	}
	if l.Lookup(99, &out, IntCompare[int64]) {
		t.Fatalf("Lookup(99) unexpectedly hit")
	}
}

func TestLeafRemoveAndDeleteRecord(t *testing.T) {
	l := newLeaf(4)
	l.Insert(10, 100, IntCompare[int64])
	l.Insert(20, 200, IntCompare[int64])
	l.Insert(30, 300, IntCompare[int64])

	if got := l.RemoveAndDeleteRecord(20, IntCompare[int64]); got != 2 {
		t.Fatalf("RemoveAndDeleteRecord(20) = %d, want 2", got)
	}
	var out int64
	if l.Lookup(20, &out, IntCompare[int64]) {
		t.Fatalf("20 still present after removal")
	}
	if got := l.RemoveAndDeleteRecord(999, IntCompare[int64]); got != 2 {
		t.Fatalf("removing an absent key changed size: got %d, want 2", got)
	}
}

func TestLoadLeafViewRejectsAnInternalPage(t *testing.T) {
	data := make([]byte, diskmgr.PageSize)
	iv := NewInternalView(data, Int64Codec)
	iv.Init(1, diskmgr.InvalidPageID, 4)

	if _, err := LoadLeafView(data, Int64Codec, Int64Codec); err == nil {
		t.Fatalf("LoadLeafView succeeded on a page formatted as internal")
	}
}

func TestLeafMoveHalfToSplicesNextPointer(t *testing.T) {
	left := newLeaf(4)
	for i := int64(0); i < 5; i++ {
		left.Insert(i, i*10, IntCompare[int64])
	}
	rightData := make([]byte, diskmgr.PageSize)
	right := NewLeafView(rightData, Int64Codec, Int64Codec)
	right.Init(2, diskmgr.InvalidPageID, 4)
	left.SetNextPageID(99) // simulate an existing successor

	left.MoveHalfTo(right)

	if left.NextPageID() != 2 {
		t.Fatalf("left.NextPageID() = %d, want 2 (right's page id)", left.NextPageID())
	}
	if right.NextPageID() != 99 {
		t.Fatalf("right.NextPageID() = %d, want 99 (left's old successor)", right.NextPageID())
	}
	if left.Size()+right.Size() != 5 {
		t.Fatalf("entries lost during split: left=%d right=%d", left.Size(), right.Size())
	}
	if left.Size() != MinSize(4) {
		t.Fatalf("left.Size() = %d, want %d", left.Size(), MinSize(4))
	}
}

func TestLeafMoveAllToMerges(t *testing.T) {
	left := newLeaf(4)
	left.Insert(10, 100, IntCompare[int64])
	right := newLeaf(4)
	right.Init(2, diskmgr.InvalidPageID, 4)
	right.Insert(20, 200, IntCompare[int64])
	right.SetNextPageID(77)

	right.MoveAllTo(left)

	if right.Size() != 0 {
		t.Fatalf("right.Size() = %d after merge, want 0", right.Size())
	}
	if left.Size() != 2 {
		t.Fatalf("left.Size() = %d after merge, want 2", left.Size())
	}
	if left.NextPageID() != 77 {
		t.Fatalf("left.NextPageID() = %d, want 77", left.NextPageID())
	}
}

func TestLeafRedistributeFirstAndLast(t *testing.T) {
	left := newLeaf(4)
	left.Insert(10, 100, IntCompare[int64])
	left.Insert(20, 200, IntCompare[int64])
	right := newLeaf(4)
	right.Init(2, diskmgr.InvalidPageID, 4)
	right.Insert(30, 300, IntCompare[int64])

	right.MoveFirstToEndOf(left)
	if left.Size() != 3 || right.Size() != 0 {
		t.Fatalf("after MoveFirstToEndOf: left=%d right=%d, want 3/0", left.Size(), right.Size())
	}
	if got := left.KeyAt(2); got != 30 {
		t.Fatalf("left.KeyAt(2) = %d, want 30", got)
	}

	left.MoveLastToFrontOf(right)
	if left.Size() != 2 || right.Size() != 1 {
		t.Fatalf("after MoveLastToFrontOf: left=%d right=%d, want 2/1", left.Size(), right.Size())
	}
	if got := right.KeyAt(0); got != 30 {
		t.Fatalf("right.KeyAt(0) = %d, want 30", got)
	}
}
