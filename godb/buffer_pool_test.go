package godb

import (
	"path/filepath"
	"testing"
	"time"
)

// makePagesOnDisk flushes n empty pages to the heap file so tests can
// read them through the pool without going through insert.
func makePagesOnDisk(t *testing.T, hf *HeapFile, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		hp, err := newHeapPage(hf.Descriptor(), i, hf)
		if err != nil {
			t.Fatalf(err.Error())
		}
		if err := hf.flushPage(hp); err != nil {
			t.Fatalf(err.Error())
		}
	}
}

// NO-STEAL eviction: with capacity 2, the pool must evict the clean page
// and keep the dirty one.
func TestBufferPoolEvictionNoSteal(t *testing.T) {
	td, _, _, _, _, _ := makeTestVars(t)

	bp, err := NewBufferPool(2)
	if err != nil {
		t.Fatalf(err.Error())
	}
	hf, err := NewHeapFile(filepath.Join(t.TempDir(), "evict.dat"), &td, bp)
	if err != nil {
		t.Fatalf(err.Error())
	}
	makePagesOnDisk(t, hf, 3)

	t1, t2, t3 := NewTID(), NewTID(), NewTID()
	for _, tid := range []TransactionID{t1, t2, t3} {
		if err := bp.BeginTransaction(tid); err != nil {
			t.Fatalf(err.Error())
		}
	}

	p1, err := bp.GetPage(hf, 0, t1, ReadPerm)
	if err != nil {
		t.Fatalf(err.Error())
	}
	if _, err := bp.GetPage(hf, 1, t2, ReadPerm); err != nil {
		t.Fatalf(err.Error())
	}

	// t1 upgrades its page and dirties it
	if _, err := bp.GetPage(hf, 0, t1, WritePerm); err != nil {
		t.Fatalf(err.Error())
	}
	p1.setDirty(t1, true)

	// pulling a third page must evict the clean page 1, not dirty page 0
	if _, err := bp.GetPage(hf, 2, t3, ReadPerm); err != nil {
		t.Fatalf(err.Error())
	}

	if bp.numResident() > 2 {
		t.Errorf("pool exceeded its capacity: %d resident", bp.numResident())
	}
	if _, resident := bp.pages[hf.pageKey(0)]; !resident {
		t.Errorf("dirty page 0 must not be evicted")
	}
	if _, resident := bp.pages[hf.pageKey(1)]; resident {
		t.Errorf("clean page 1 should have been evicted")
	}
	if _, resident := bp.pages[hf.pageKey(2)]; !resident {
		t.Errorf("page 2 should be resident")
	}
	if !p1.isDirty() {
		t.Errorf("page 0 should still be dirty")
	}
}

func TestBufferPoolAllDirtyFails(t *testing.T) {
	td, _, _, _, _, _ := makeTestVars(t)

	bp, err := NewBufferPool(2)
	if err != nil {
		t.Fatalf(err.Error())
	}
	hf, err := NewHeapFile(filepath.Join(t.TempDir(), "dirty.dat"), &td, bp)
	if err != nil {
		t.Fatalf(err.Error())
	}
	makePagesOnDisk(t, hf, 3)

	tid := NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		t.Fatalf(err.Error())
	}
	for i := 0; i < 2; i++ {
		p, err := bp.GetPage(hf, i, tid, WritePerm)
		if err != nil {
			t.Fatalf(err.Error())
		}
		p.setDirty(tid, true)
	}

	if _, err := bp.GetPage(hf, 2, tid, ReadPerm); err == nil {
		t.Errorf("a pool full of dirty pages must refuse to evict")
	}
}

// Abort restoration: after an abort, the resident page is re-read from
// disk and no longer contains the aborted insert.
func TestBufferPoolAbortRestoresPage(t *testing.T) {
	_, t1, _, hf, bp, tid := makeTestVars(t)

	// page 0 exists on disk, empty and committed
	makePagesOnDisk(t, hf, 1)

	insertTupleForTest(t, bp, hf, &t1, tid)
	if got := countTuples(t, hf, tid); got != 1 {
		t.Fatalf("expected the inserted tuple to be visible, got %d tuples", got)
	}

	bp.AbortTransaction(tid)

	tid2 := NewTID()
	if err := bp.BeginTransaction(tid2); err != nil {
		t.Fatalf(err.Error())
	}
	p, err := bp.GetPage(hf, 0, tid2, ReadPerm)
	if err != nil {
		t.Fatalf(err.Error())
	}
	if p.isDirty() {
		t.Errorf("restored page should be clean")
	}
	if got := countTuples(t, hf, tid2); got != 0 {
		t.Errorf("aborted insert should not be visible, got %d tuples", got)
	}
}

// Commit flushes dirtied pages: a fresh pool over the same file sees the
// data.
func TestBufferPoolCommitPersists(t *testing.T) {
	td, t1, t2, hf, bp, tid := makeTestVars(t)

	insertTupleForTest(t, bp, hf, &t1, tid)
	insertTupleForTest(t, bp, hf, &t2, tid)
	bp.CommitTransaction(tid)

	bp2, err := NewBufferPool(10)
	if err != nil {
		t.Fatalf(err.Error())
	}
	hf2, err := NewHeapFile(hf.BackingFile(), &td, bp2)
	if err != nil {
		t.Fatalf(err.Error())
	}
	tid2 := NewTID()
	if err := bp2.BeginTransaction(tid2); err != nil {
		t.Fatalf(err.Error())
	}
	if got := countTuples(t, hf2, tid2); got != 2 {
		t.Errorf("committed tuples should be on disk, got %d", got)
	}
}

// Inserting then deleting the same tuple and committing leaves the page
// with the slot bit cleared and the data durable on disk.
func TestBufferPoolInsertDeleteCommit(t *testing.T) {
	td, t1, _, hf, bp, tid := makeTestVars(t)

	insertTupleForTest(t, bp, hf, &t1, tid)
	if _, err := bp.DeleteTuple(hf, &t1, tid); err != nil {
		t.Fatalf(err.Error())
	}
	bp.CommitTransaction(tid)

	bp2, err := NewBufferPool(10)
	if err != nil {
		t.Fatalf(err.Error())
	}
	hf2, err := NewHeapFile(hf.BackingFile(), &td, bp2)
	if err != nil {
		t.Fatalf(err.Error())
	}
	tid2 := NewTID()
	if err := bp2.BeginTransaction(tid2); err != nil {
		t.Fatalf(err.Error())
	}
	if got := countTuples(t, hf2, tid2); got != 0 {
		t.Errorf("expected an empty table after insert+delete+commit, got %d tuples", got)
	}
}

func TestBufferPoolTransactionLifecycle(t *testing.T) {
	_, _, _, hf, bp, tid := makeTestVars(t)
	makePagesOnDisk(t, hf, 1)

	if err := bp.BeginTransaction(tid); err == nil {
		t.Errorf("beginning a running transaction should fail")
	}

	other := NewTID()
	if _, err := bp.GetPage(hf, 0, other, ReadPerm); err == nil {
		t.Errorf("GetPage without BeginTransaction should fail")
	}

	bp.CommitTransaction(tid)
	if bp.LockManager().locksHeld(tid) != 0 {
		t.Errorf("completed transaction should hold no locks")
	}
}

// A later writer sees the contents committed by an earlier transaction
// alongside its own insert.
func TestBufferPoolCommitThenWrite(t *testing.T) {
	_, t1, t2, hf, bp, tid := makeTestVars(t)

	insertTupleForTest(t, bp, hf, &t1, tid)
	bp.CommitTransaction(tid)

	tid2 := NewTID()
	if err := bp.BeginTransaction(tid2); err != nil {
		t.Fatalf(err.Error())
	}
	insertTupleForTest(t, bp, hf, &t2, tid2)
	if got := countTuples(t, hf, tid2); got != 2 {
		t.Errorf("second writer should see both tuples, got %d", got)
	}
	bp.CommitTransaction(tid2)
}

// A writer blocked on another transaction's page lock proceeds once the
// holder commits.
func TestBufferPoolBlockedWriterProceedsAfterCommit(t *testing.T) {
	_, _, _, hf, bp, tid := makeTestVars(t)
	makePagesOnDisk(t, hf, 1)

	if _, err := bp.GetPage(hf, 0, tid, WritePerm); err != nil {
		t.Fatalf(err.Error())
	}

	tid2 := NewTID()
	if err := bp.BeginTransaction(tid2); err != nil {
		t.Fatalf(err.Error())
	}
	got := make(chan error, 1)
	go func() {
		_, err := bp.GetPage(hf, 0, tid2, WritePerm)
		got <- err
	}()

	select {
	case <-got:
		t.Fatalf("second writer should block while the page is locked")
	case <-time.After(50 * time.Millisecond):
	}

	bp.CommitTransaction(tid)
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf(err.Error())
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked writer did not proceed after commit")
	}
	bp.CommitTransaction(tid2)
}
