// Package buffer implements the page cache: a fixed array of frames backed
// by a DiskManager, pinned and evicted under a single coarse latch.
package buffer

import (
	"sync"

	"bptreestore/internal/diskmgr"
	"bptreestore/internal/replacer"

	"github.com/golang/glog"
)

// Config configures a Pool. There is deliberately no env var or flag
// binding here; callers build it directly.
type Config struct {
	PoolSize int
}

// Pool owns the frame array and the page-id-to-frame-index mapping, and
// delegates victim selection to a Replacer. Every public method that reads
// or changes frame, page-table or free-list state acquires mu on entry and
// releases it on every exit path; Size reads only the fixed frame count and
// does not lock.
type Pool struct {
	mu        sync.Mutex
	frames    []*Frame
	pageTable map[int64]int
	freeList  []int
	replacer  replacer.Replacer
	dm        diskmgr.DiskManager
}

// NewPool builds a pool of cfg.PoolSize frames, all initially free.
func NewPool(cfg Config, dm diskmgr.DiskManager) *Pool {
	p := &Pool{
		frames:    make([]*Frame, cfg.PoolSize),
		pageTable: make(map[int64]int, cfg.PoolSize),
		freeList:  make([]int, cfg.PoolSize),
		replacer:  replacer.NewLRU(),
		dm:        dm,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		p.frames[i] = newFrame()
		p.freeList[i] = i
	}
	return p
}

// Size returns the pool's fixed frame capacity.
func (p *Pool) Size() int {
	return len(p.frames)
}

// victim secures a frame index for reuse: a free frame first, else the
// replacer's least-recently-unpinned candidate. Caller holds mu.
func (p *Pool) victim() (int, bool) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, true
	}
	return p.replacer.Victim()
}

// evict prepares frame idx to hold a different page: flushes it if dirty
// and removes its old page-table entry. Caller holds mu.
func (p *Pool) evict(idx int) {
	f := p.frames[idx]
	if f.PageID == diskmgr.InvalidPageID {
		return
	}
	if f.IsDirty {
		if err := p.dm.WritePage(f.PageID, f.Data); err != nil {
			glog.Errorf("buffer: failed to flush victim page %d from frame %d: %v", f.PageID, idx, err)
		}
	}
	delete(p.pageTable, f.PageID)
}

// Fetch returns the frame holding pageID, loading it from disk if
// necessary. The frame is pinned; the caller must Unpin exactly once per
// successful Fetch.
func (p *Pool) Fetch(pageID int64) (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		f.PinCount++
		p.replacer.Pin(idx)
		glog.V(2).Infof("buffer: HIT page=%d frame=%d pinCount=%d", pageID, idx, f.PinCount)
		return f, true
	}

	idx, ok := p.victim()
	if !ok {
		glog.Errorf("buffer: fetch page=%d failed, all %d frames pinned", pageID, len(p.frames))
		return nil, false
	}
	glog.V(2).Infof("buffer: MISS page=%d -> frame=%d", pageID, idx)

	p.evict(idx)

	f := p.frames[idx]
	p.pageTable[pageID] = idx
	f.PageID = pageID
	f.PinCount = 1
	f.IsDirty = false
	p.replacer.Pin(idx)
	for i := range f.Data {
		f.Data[i] = 0
	}
	if err := p.dm.ReadPage(pageID, f.Data); err != nil {
		glog.Errorf("buffer: failed to read page %d: %v", pageID, err)
	}
	return f, true
}

// New allocates a fresh page identifier from the disk manager and returns a
// pinned, zeroed frame for it. On failure (all frames pinned) it returns
// (nil, InvalidPageID, false).
func (p *Pool) New() (*Frame, int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.victim()
	if !ok {
		glog.Errorf("buffer: new page failed, all %d frames pinned", len(p.frames))
		return nil, diskmgr.InvalidPageID, false
	}

	p.evict(idx)

	pageID, err := p.dm.AllocatePage()
	if err != nil {
		glog.Errorf("buffer: disk allocator failed: %v", err)
		p.freeList = append(p.freeList, idx)
		return nil, diskmgr.InvalidPageID, false
	}

	f := p.frames[idx]
	p.pageTable[pageID] = idx
	f.PageID = pageID
	f.PinCount = 1
	f.IsDirty = false
	p.replacer.Pin(idx)
	for i := range f.Data {
		f.Data[i] = 0
	}
	glog.V(2).Infof("buffer: NEW page=%d -> frame=%d", pageID, idx)
	return f, pageID, true
}

// Unpin decrements pageID's pin count and ORs dirtyHint into its dirty
// flag, so a single clean unpin can never clear prior dirtiness.
func (p *Pool) Unpin(pageID int64, dirtyHint bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[idx]
	if f.PinCount > 0 {
		f.PinCount--
		if f.PinCount == 0 {
			p.replacer.Unpin(idx)
		}
	}
	f.IsDirty = f.IsDirty || dirtyHint
	return true
}

// Flush writes pageID's frame to disk if resident, clearing its dirty flag.
// Pin state is unaffected.
func (p *Pool) Flush(pageID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pageID == diskmgr.InvalidPageID {
		return false
	}
	idx, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[idx]
	if err := p.dm.WritePage(pageID, f.Data); err != nil {
		glog.Errorf("buffer: failed to flush page %d: %v", pageID, err)
		return false
	}
	f.IsDirty = false
	return true
}

// FlushAll writes every resident dirty page to disk.
func (p *Pool) FlushAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	glog.V(2).Infof("buffer: flushing all — %d resident pages", len(p.pageTable))
	for pageID, idx := range p.pageTable {
		f := p.frames[idx]
		if !f.IsDirty {
			continue
		}
		if err := p.dm.WritePage(pageID, f.Data); err != nil {
			glog.Errorf("buffer: failed to flush page %d during flush-all: %v", pageID, err)
			continue
		}
		f.IsDirty = false
	}
}

// Delete returns pageID's frame to the free list. It is idempotent for an
// invalid or non-resident page id, and refuses (returns false) while the
// page is pinned.
func (p *Pool) Delete(pageID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pageID == diskmgr.InvalidPageID {
		return true
	}
	idx, ok := p.pageTable[pageID]
	if !ok {
		return true
	}
	f := p.frames[idx]
	if f.PinCount > 0 {
		return false
	}
	if f.IsDirty {
		if err := p.dm.WritePage(pageID, f.Data); err != nil {
			glog.Errorf("buffer: failed to flush page %d before delete: %v", pageID, err)
			return false
		}
	}
	if err := p.dm.DeallocatePage(pageID); err != nil {
		glog.Errorf("buffer: failed to deallocate page %d: %v", pageID, err)
	}

	p.replacer.Pin(idx) // remove from the eviction-eligible set, if present
	delete(p.pageTable, pageID)
	f.reset()
	p.freeList = append(p.freeList, idx)
	return true
}
