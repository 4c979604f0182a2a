package godb

// Page-granularity strict two-phase locking. Locks are acquired through
// the buffer pool on every page access and held until the owning
// transaction completes. A blocked acquisition records wait-for edges and
// runs cycle detection; when the requester is part of a cycle it is
// chosen as the deadlock victim and receives a transaction-aborted error.

import (
	"fmt"
	"sync"
)

// Permissions used to when reading / locking pages. ReadPerm maps to a
// shared lock, WritePerm to an exclusive lock.
type RWPerm int

const (
	ReadPerm  RWPerm = iota
	WritePerm RWPerm = iota
)

// lockEntry is the lock record for one page: the holding transactions and
// the held mode. If perm is WritePerm the holder set has exactly one
// member; if ReadPerm it has at least one.
type lockEntry struct {
	perm    RWPerm
	holders map[TransactionID]struct{}
}

// LockManager tracks page locks and the wait-for graph for all
// transactions in the system. All state transitions happen under its
// monitor; waiters block on the condition variable and re-evaluate the
// grant condition on every wakeup.
type LockManager struct {
	mu   sync.Mutex
	cond *sync.Cond

	locks    map[any]*lockEntry
	holdings map[TransactionID]map[any]struct{}

	// waitsFor[a][b] means a is blocked on a lock b holds
	waitsFor map[TransactionID]map[TransactionID]struct{}
}

func NewLockManager() *LockManager {
	lm := &LockManager{
		locks:    make(map[any]*lockEntry),
		holdings: make(map[TransactionID]map[any]struct{}),
		waitsFor: make(map[TransactionID]map[TransactionID]struct{}),
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

// Lock blocks until tid holds the page identified by key with the
// requested permission, or returns a transaction-aborted error if
// waiting would complete a deadlock cycle involving tid. Spurious
// wakeups are harmless: the grant condition is re-evaluated on every
// pass.
func (lm *LockManager) Lock(key any, tid TransactionID, perm RWPerm) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		granted, err := lm.acquire(key, tid, perm)
		if err != nil {
			return err
		}
		if granted {
			delete(lm.waitsFor, tid)
			return nil
		}
		lm.cond.Wait()
	}
}

// acquire attempts a single non-blocking acquisition under lm.mu.
// Returns (true, nil) when granted, (false, nil) when the caller should
// wait, and a DeadlockError when the wait would close a cycle.
func (lm *LockManager) acquire(key any, tid TransactionID, perm RWPerm) (bool, error) {
	e := lm.locks[key]
	if e == nil {
		lm.locks[key] = &lockEntry{perm: perm, holders: map[TransactionID]struct{}{tid: {}}}
		lm.recordHolding(key, tid)
		return true, nil
	}

	if _, holds := e.holders[tid]; holds {
		if len(e.holders) == 1 {
			// sole holder: upgrade in place if needed
			if perm == WritePerm && e.perm == ReadPerm {
				e.perm = WritePerm
			}
			return true, nil
		}
		if perm == ReadPerm {
			return true, nil
		}
		// upgrade requested while other transactions share the lock:
		// wait for them to drain
	} else if e.perm == ReadPerm && perm == ReadPerm {
		e.holders[tid] = struct{}{}
		lm.recordHolding(key, tid)
		return true, nil
	}

	// conflict: record wait-for edges to every current holder and check
	// whether waiting would deadlock
	edges := lm.waitsFor[tid]
	if edges == nil {
		edges = make(map[TransactionID]struct{})
		lm.waitsFor[tid] = edges
	}
	for holder := range e.holders {
		if holder != tid {
			edges[holder] = struct{}{}
		}
	}
	if lm.wouldDeadlock(tid) {
		delete(lm.waitsFor, tid)
		return false, GoDBError{DeadlockError, fmt.Sprintf("transaction %d aborted: deadlock detected", tid)}
	}
	return false, nil
}

// wouldDeadlock runs a DFS over the wait-for graph starting from tid,
// reporting whether tid can reach itself. Vertices are popped from the
// recursion stack on return so transitive, non-cyclic waits are not
// misreported.
func (lm *LockManager) wouldDeadlock(tid TransactionID) bool {
	onStack := make(map[TransactionID]bool)
	visited := make(map[TransactionID]bool)

	var dfs func(t TransactionID) bool
	dfs = func(t TransactionID) bool {
		onStack[t] = true
		visited[t] = true
		for next := range lm.waitsFor[t] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				return true
			}
		}
		onStack[t] = false
		return false
	}

	return dfs(tid)
}

func (lm *LockManager) recordHolding(key any, tid TransactionID) {
	held := lm.holdings[tid]
	if held == nil {
		held = make(map[any]struct{})
		lm.holdings[tid] = held
	}
	held[key] = struct{}{}
}

// Release drops tid's hold on the page identified by key and wakes all
// waiters. Deleting the record when the holder set empties keeps the lock
// table bounded by the set of currently locked pages.
func (lm *LockManager) Release(key any, tid TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(key, tid)
	lm.cond.Broadcast()
}

func (lm *LockManager) releaseLocked(key any, tid TransactionID) {
	e := lm.locks[key]
	if e == nil {
		return
	}
	delete(e.holders, tid)
	if len(e.holders) == 0 {
		delete(lm.locks, key)
	}
	if held := lm.holdings[tid]; held != nil {
		delete(held, key)
	}
}

// ReleaseAll drops every lock tid holds and removes its wait-for edges.
// Called at transaction completion (commit or abort).
func (lm *LockManager) ReleaseAll(tid TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for key := range lm.holdings[tid] {
		lm.releaseLocked(key, tid)
	}
	delete(lm.holdings, tid)
	delete(lm.waitsFor, tid)
	for _, edges := range lm.waitsFor {
		delete(edges, tid)
	}
	lm.cond.Broadcast()
}

// HoldsLock reports whether tid currently holds a lock on the page
// identified by key, at any permission.
func (lm *LockManager) HoldsLock(key any, tid TransactionID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	e := lm.locks[key]
	if e == nil {
		return false
	}
	_, ok := e.holders[tid]
	return ok
}

// locksHeld returns the number of locks tid currently holds.
func (lm *LockManager) locksHeld(tid TransactionID) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.holdings[tid])
}
