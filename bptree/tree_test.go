package bptree

import (
	"testing"

	"bptreestore/internal/buffer"
	"bptreestore/internal/diskmgr"
	"bptreestore/internal/header"

	"github.com/stretchr/testify/require"
)

type memDiskManager struct {
	pages  map[int64][]byte
	nextID int64
}

func newMemDiskManager() *memDiskManager {
	dm := &memDiskManager{pages: make(map[int64][]byte)}
	dm.pages[diskmgr.HeaderPageID] = make([]byte, diskmgr.PageSize)
	dm.nextID = diskmgr.HeaderPageID + 1
	return dm
}

func (m *memDiskManager) AllocatePage() (int64, error) {
	id := m.nextID
	m.nextID++
	return id, nil
}

func (m *memDiskManager) DeallocatePage(pageID int64) error {
	delete(m.pages, pageID)
	return nil
}

func (m *memDiskManager) ReadPage(pageID int64, buf []byte) error {
	data, ok := m.pages[pageID]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, data)
	return nil
}

func (m *memDiskManager) WritePage(pageID int64, buf []byte) error {
	data := make([]byte, len(buf))
	copy(data, buf)
	m.pages[pageID] = data
	return nil
}

func (m *memDiskManager) Sync() error  { return nil }
func (m *memDiskManager) Close() error { return nil }

func newTestTree(t *testing.T, maxLeaf, maxInt int) *Tree[int64, int64] {
	dm := newMemDiskManager()
	pool := buffer.NewPool(buffer.Config{PoolSize: 64}, dm)
	hp, err := header.New(pool)
	require.NoError(t, err)
	t.Cleanup(hp.Close)
	return New(pool, hp, Config{Name: "t", MaxLeafSize: maxLeaf, MaxInternalSize: maxInt}, Int64Codec, Int64Codec, IntCompare)
}

func TestInsertAndGetValueRoundTrip(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := int64(0); i < 50; i++ {
		require.NoError(t, tree.Insert(i, i*10))
	}
	for i := int64(0); i < 50; i++ {
		v, ok := tree.GetValue(i)
		require.True(t, ok, "missing key %d", i)
		require.Equal(t, i*10, v)
	}
	_, ok := tree.GetValue(999)
	require.False(t, ok)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	require.NoError(t, tree.Insert(5, 50))
	require.Error(t, tree.Insert(5, 99))
	v, ok := tree.GetValue(5)
	require.True(t, ok)
	require.Equal(t, int64(50), v, "a failed duplicate insert must not overwrite the original value")
}

func TestIteratorWalksSortedOrder(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	keys := []int64{40, 10, 30, 20, 50, 5, 35, 15, 25, 45}
	for _, k := range keys {
		require.NoError(t, tree.Insert(k, k))
	}

	it := tree.Begin()
	defer it.Close()
	var got []int64
	for !it.IsEnd() {
		got = append(got, it.Key())
		it.Next()
	}
	require.Equal(t, []int64{5, 10, 15, 20, 25, 30, 35, 40, 45, 50}, got)
}

func TestIteratorBeginAt(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(k, k*2))
	}

	it := tree.BeginAt(25)
	require.False(t, it.IsEnd())
	require.Equal(t, int64(30), it.Key())
	require.Equal(t, int64(60), it.Value())
	it.Close()

	it = tree.BeginAt(999)
	require.True(t, it.IsEnd())
	it.Close()
}

func TestIteratorEndIsLastEntryNotSentinel(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for _, k := range []int64{10, 20, 30} {
		require.NoError(t, tree.Insert(k, k))
	}
	end := tree.End()
	require.False(t, end.IsEnd())
	require.Equal(t, int64(30), end.Key())
	end.Next()
	require.True(t, end.IsEnd())
	end.Close()
}

func TestEndOnEmptyTree(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	b := tree.Begin()
	require.True(t, b.IsEnd())
	b.Close()
	e := tree.End()
	require.True(t, e.IsEnd())
	e.Close()
}

func TestRemoveTriggersMergeAndRedistribute(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := int64(0); i < 30; i++ {
		require.NoError(t, tree.Insert(i, i))
	}

	for i := int64(0); i < 25; i++ {
		require.NoError(t, tree.Remove(i))
	}

	for i := int64(0); i < 25; i++ {
		_, ok := tree.GetValue(i)
		require.False(t, ok, "key %d should have been removed", i)
	}
	for i := int64(25); i < 30; i++ {
		v, ok := tree.GetValue(i)
		require.True(t, ok, "key %d should still be present", i)
		require.Equal(t, i, v)
	}

	it := tree.Begin()
	defer it.Close()
	var got []int64
	for !it.IsEnd() {
		got = append(got, it.Key())
		it.Next()
	}
	require.Equal(t, []int64{25, 26, 27, 28, 29}, got)
}

func TestRemoveEverythingCollapsesToEmptyIndex(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := int64(0); i < 20; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	for i := int64(0); i < 20; i++ {
		require.NoError(t, tree.Remove(i))
	}
	require.True(t, tree.IsEmpty())
	b := tree.Begin()
	require.True(t, b.IsEnd())
	b.Close()

	// The index must still accept fresh inserts after being emptied out.
	require.NoError(t, tree.Insert(100, 1000))
	v, ok := tree.GetValue(100)
	require.True(t, ok)
	require.Equal(t, int64(1000), v)
}

func TestIteratorHoldsPinAcrossCalls(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, tree.Insert(i, i))
	}

	it := tree.Begin()
	require.False(t, it.IsEnd())
	require.False(t, tree.pool.Delete(it.pageID),
		"the page an iterator is parked on must stay pinned and refuse deletion")

	it.Close()
	require.True(t, it.IsEnd(), "Close must leave the iterator in the terminal state")
}

func TestRemoveAbsentKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	require.NoError(t, tree.Insert(1, 1))
	require.NoError(t, tree.Remove(999))
	v, ok := tree.GetValue(1)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
}
