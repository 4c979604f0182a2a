package godb

// BufferPool provides methods to cache pages that have been read from
// disk. It has a fixed capacity to limit the total amount of memory used
// by GoDB. It is also the primary way in which transactions are enforced:
// every access path that exposes a page funnels through GetPage, which
// acquires the corresponding page lock before touching the cache.
//
// The pool is FORCE/NO-STEAL: dirty pages never leave memory except on
// commit (or an explicit administrative flush), and commit forces every
// page the transaction dirtied through the log and out to disk.

import (
	"container/list"
	"fmt"
	"sync"
)

type BufferPool struct {
	mu       sync.Mutex
	numPages int
	pages    map[any]Page

	// recency list of page keys, least recently used at the front
	lru    *list.List
	lruPos map[any]*list.Element

	lockMgr *LockManager
	logFile *LogFile

	runningTids map[TransactionID]struct{}
}

// Create a new BufferPool with the specified number of pages
func NewBufferPool(numPages int) (*BufferPool, error) {
	if numPages <= 0 {
		return nil, GoDBError{IllegalOperationError, "buffer pool must hold at least one page"}
	}
	return &BufferPool{
		numPages:    numPages,
		pages:       make(map[any]Page),
		lru:         list.New(),
		lruPos:      make(map[any]*list.Element),
		lockMgr:     NewLockManager(),
		runningTids: make(map[TransactionID]struct{}),
	}, nil
}

// UseLogFile attaches a log file to the pool. When set, commit-time
// flushes write a (tid, before-image, after-image) record and force the
// log before the data page goes to disk.
func (bp *BufferPool) UseLogFile(lf *LogFile) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.logFile = lf
}

// LockManager exposes the pool's lock manager, e.g. for tests that
// inspect lock state directly.
func (bp *BufferPool) LockManager() *LockManager {
	return bp.lockMgr
}

// Begin a new transaction. Returns an error if the transaction is
// already running.
func (bp *BufferPool) BeginTransaction(tid TransactionID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if _, running := bp.runningTids[tid]; running {
		return GoDBError{IllegalTransactionError, fmt.Sprintf("transaction %d is already running", tid)}
	}
	bp.runningTids[tid] = struct{}{}
	return nil
}

// Commit the transaction: flush every page it dirtied through the log
// and out to disk, then release its locks.
func (bp *BufferPool) CommitTransaction(tid TransactionID) {
	bp.transactionComplete(tid, true)
}

// Abort the transaction: discard its dirty pages, re-reading the
// authoritative copies from disk, then release its locks. Because the
// pool is NO-STEAL none of the transaction's writes have reached disk,
// so the re-read restores the pre-transaction state.
func (bp *BufferPool) AbortTransaction(tid TransactionID) {
	bp.transactionComplete(tid, false)
}

func (bp *BufferPool) transactionComplete(tid TransactionID, commit bool) {
	bp.mu.Lock()
	for key, p := range bp.pages {
		if p.dirtier() != tid {
			continue
		}
		if commit {
			if err := bp.flushPageLocked(p); err != nil {
				DPrintf("commit of transaction %d: flush of page %v failed: %v", tid, key, err)
			}
		} else {
			fresh, err := p.getFile().readPage(p.pageNo())
			if err != nil {
				// the disk copy could not be read; dropping the cached
				// page still restores the pre-transaction state, since
				// the next GetPage re-reads it from disk
				bp.removePageLocked(key)
				continue
			}
			bp.pages[key] = fresh
		}
	}
	delete(bp.runningTids, tid)
	bp.mu.Unlock()

	bp.lockMgr.ReleaseAll(tid)
}

// Retrieve the specified page from the specified DBFile (e.g., a HeapFile), on
// behalf of the specified transaction. The page's lock is acquired first,
// blocking if necessary; a deadlock involving this transaction surfaces
// as a transaction-aborted error. If the page is not cached it is read
// from disk, evicting a clean page when the pool is full. A pool full of
// dirty pages is an error (NO-STEAL).
func (bp *BufferPool) GetPage(file DBFile, pageNo int, tid TransactionID, perm RWPerm) (Page, error) {
	bp.mu.Lock()
	_, running := bp.runningTids[tid]
	bp.mu.Unlock()
	if !running {
		return nil, GoDBError{IllegalTransactionError, fmt.Sprintf("transaction %d is not running", tid)}
	}

	key := file.pageKey(pageNo)
	if err := bp.lockMgr.Lock(key, tid, perm); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if p, cached := bp.pages[key]; cached {
		bp.touchLocked(key)
		return p, nil
	}

	if len(bp.pages) >= bp.numPages {
		if err := bp.evictPage(); err != nil {
			return nil, err
		}
	}
	p, err := file.readPage(pageNo)
	if err != nil {
		return nil, err
	}
	bp.installLocked(key, p)
	return p, nil
}

// evictPage scans the recency list from least to most recently used and
// discards the first clean page. Dirty pages are never evicted
// (NO-STEAL); if every resident page is dirty the pool is stuck and an
// error is returned.
func (bp *BufferPool) evictPage() error {
	for e := bp.lru.Front(); e != nil; e = e.Next() {
		key := e.Value
		if p := bp.pages[key]; p != nil && !p.isDirty() {
			bp.removePageLocked(key)
			return nil
		}
	}
	return GoDBError{BufferPoolFullError, "buffer pool is full of dirty pages"}
}

func (bp *BufferPool) installLocked(key any, p Page) {
	bp.pages[key] = p
	if pos, ok := bp.lruPos[key]; ok {
		bp.lru.MoveToBack(pos)
	} else {
		bp.lruPos[key] = bp.lru.PushBack(key)
	}
}

func (bp *BufferPool) touchLocked(key any) {
	if pos, ok := bp.lruPos[key]; ok {
		bp.lru.MoveToBack(pos)
	}
}

func (bp *BufferPool) removePageLocked(key any) {
	delete(bp.pages, key)
	if pos, ok := bp.lruPos[key]; ok {
		bp.lru.Remove(pos)
		delete(bp.lruPos, key)
	}
}

// RemovePage drops the page with the given key from the cache without
// flushing it. Used by abort/recovery paths; the next GetPage re-reads
// the page from disk.
func (bp *BufferPool) RemovePage(key any) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.removePageLocked(key)
}

// flushPageLocked writes one dirty page to disk. When a log file is
// attached, a before/after image record is written and forced first.
// After the write the page is clean and its before-image is refreshed to
// the just-written contents.
func (bp *BufferPool) flushPageLocked(p Page) error {
	if !p.isDirty() {
		return nil
	}
	if bp.logFile != nil {
		after, err := p.toBytes()
		if err != nil {
			return err
		}
		if err := bp.logFile.LogWrite(p.dirtier(), p.getBeforeImage(), after); err != nil {
			return err
		}
		if err := bp.logFile.Force(); err != nil {
			return err
		}
	}
	if err := p.getFile().flushPage(p); err != nil {
		return err
	}
	p.setDirty(0, false)
	return p.setBeforeImage()
}

// Testing method -- iterate through all pages in the buffer pool
// and flush them using [DBFile.flushPage]. Note that this breaks
// NO-STEAL if called while transactions are in flight.
func (bp *BufferPool) FlushAllPages() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for key, p := range bp.pages {
		if err := bp.flushPageLocked(p); err != nil {
			DPrintf("flush of page %v failed: %v", key, err)
		}
	}
}

// FlushPage forces the page with the given key to disk along the
// log-then-write path. Breaks NO-STEAL if used mid-transaction.
func (bp *BufferPool) FlushPage(key any) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	p, ok := bp.pages[key]
	if !ok {
		return nil
	}
	return bp.flushPageLocked(p)
}

// FlushPages forces every page dirtied by tid to disk. Breaks NO-STEAL
// if used before the transaction commits.
func (bp *BufferPool) FlushPages(tid TransactionID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range bp.pages {
		if p.dirtier() == tid {
			if err := bp.flushPageLocked(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsertTuple adds t to the given file on behalf of tid, marking every
// modified page dirty and (re)installing it in the cache.
func (bp *BufferPool) InsertTuple(file DBFile, t *Tuple, tid TransactionID) ([]Page, error) {
	pages, err := file.insertTuple(t, tid)
	if err != nil {
		return nil, err
	}
	bp.markDirty(file, pages, tid)
	return pages, nil
}

// DeleteTuple removes t from the given file on behalf of tid, marking
// every modified page dirty and (re)installing it in the cache.
func (bp *BufferPool) DeleteTuple(file DBFile, t *Tuple, tid TransactionID) ([]Page, error) {
	pages, err := file.deleteTuple(t, tid)
	if err != nil {
		return nil, err
	}
	bp.markDirty(file, pages, tid)
	return pages, nil
}

func (bp *BufferPool) markDirty(file DBFile, pages []Page, tid TransactionID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.setDirty(tid, true)
		bp.installLocked(file.pageKey(p.pageNo()), p)
	}
}

// numResident returns the number of cached pages; never exceeds the
// configured capacity.
func (bp *BufferPool) numResident() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pages)
}
