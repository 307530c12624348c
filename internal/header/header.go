// Package header persists the mapping from an index's name to its current
// root page id on the well-known header page, and fronts lookups with a
// read-through cache so a hot index's root doesn't cost a buffer pool fetch
// on every operation.
package header

import (
	"encoding/binary"
	"fmt"
	"sync"

	"bptreestore/internal/buffer"
	"bptreestore/internal/diskmgr"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/golang/glog"
)

// record layout on the header page: [2-byte name length][name][8-byte
// root page id], preceded by a 4-byte record count.
const countOffset = 0
const recordsOffset = 4

// Page owns the name-to-root-page-id directory. It is not a general key
// space: it exists purely to let callers recover a B+tree's root after a
// restart, identified by the name the tree was created with.
type Page struct {
	mu    sync.Mutex
	pool  *buffer.Pool
	cache *ristretto.Cache[string, int64]
}

// New builds a Page backed by pool's well-known header page id, with an
// in-process cache in front of GetRoot lookups.
func New(pool *buffer.Pool) (*Page, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("header: failed to build cache: %w", err)
	}
	return &Page{pool: pool, cache: cache}, nil
}

// Close releases the cache's background goroutines.
func (p *Page) Close() {
	p.cache.Close()
}

func readRecords(data []byte) map[string]int64 {
	recs := make(map[string]int64)
	count := binary.LittleEndian.Uint32(data[countOffset:])
	off := recordsOffset
	for i := uint32(0); i < count; i++ {
		nameLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		name := string(data[off : off+nameLen])
		off += nameLen
		rootID := int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		recs[name] = rootID
	}
	return recs
}

func writeRecords(data []byte, recs map[string]int64) error {
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[countOffset:], uint32(len(recs)))
	off := recordsOffset
	for name, rootID := range recs {
		need := 2 + len(name) + 8
		if off+need > diskmgr.PageSize {
			return fmt.Errorf("header: directory exceeds one page (%d indexes)", len(recs))
		}
		binary.LittleEndian.PutUint16(data[off:], uint16(len(name)))
		off += 2
		copy(data[off:], name)
		off += len(name)
		binary.LittleEndian.PutUint64(data[off:], uint64(rootID))
		off += 8
	}
	return nil
}

// InsertRecord adds a brand-new (name -> rootID) entry.
func (p *Page) InsertRecord(name string, rootID int64) error {
	return p.writeRecord(name, rootID)
}

// UpdateRecord overwrites name's root id, e.g. after a root split or a
// root collapsing to a single child.
func (p *Page) UpdateRecord(name string, rootID int64) error {
	return p.writeRecord(name, rootID)
}

func (p *Page) writeRecord(name string, rootID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pool.Fetch(diskmgr.HeaderPageID)
	if !ok {
		return fmt.Errorf("header: failed to fetch header page")
	}
	recs := readRecords(frame.Data)
	recs[name] = rootID
	err := writeRecords(frame.Data, recs)
	p.pool.Unpin(diskmgr.HeaderPageID, err == nil)
	if err != nil {
		return err
	}
	p.cache.Set(name, rootID, 1)
	glog.V(2).Infof("header: %s -> root page %d", name, rootID)
	return nil
}

// GetRoot returns name's current root page id, consulting the cache before
// falling back to the header page itself. A record whose root id is
// InvalidPageID (an index that was emptied out by deletions) reports as
// absent, same as a name never inserted.
func (p *Page) GetRoot(name string) (int64, bool) {
	if rootID, ok := p.cache.Get(name); ok {
		if rootID == diskmgr.InvalidPageID {
			return diskmgr.InvalidPageID, false
		}
		return rootID, true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pool.Fetch(diskmgr.HeaderPageID)
	if !ok {
		return diskmgr.InvalidPageID, false
	}
	recs := readRecords(frame.Data)
	p.pool.Unpin(diskmgr.HeaderPageID, false)

	rootID, ok := recs[name]
	if !ok || rootID == diskmgr.InvalidPageID {
		return diskmgr.InvalidPageID, false
	}
	p.cache.Set(name, rootID, 1)
	return rootID, true
}
