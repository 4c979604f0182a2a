package godb

import (
	"bytes"
	"testing"
)

func TestHeapPageNumSlots(t *testing.T) {
	td, _, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	tupleSize := td.bytesPerTuple()
	want := (PageSize * 8) / (tupleSize*8 + 1)
	if hp.getNumSlots() != want {
		t.Errorf("expected %d slots, got %d", want, hp.getNumSlots())
	}
	// header plus slots must fit in the page
	if hp.headerSize()+hp.getNumSlots()*tupleSize > PageSize {
		t.Errorf("header and slots overflow the page")
	}
}

func TestHeapPageInsert(t *testing.T) {
	td, t1, t2, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	if _, err := hp.insertTuple(&t1); err != nil {
		t.Fatalf(err.Error())
	}
	if _, err := hp.insertTuple(&t2); err != nil {
		t.Fatalf(err.Error())
	}

	if hp.getNumSlots()-hp.getNumEmptySlots() != 2 {
		t.Errorf("expected 2 used slots")
	}
	if hp.usedSlotCount() != 2 {
		t.Errorf("header bitmap disagrees with used slot count")
	}
	iter := hp.tupleIter()
	got, err := iter()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if got == nil || !got.equals(&t1) {
		t.Errorf("first slot should hold the first inserted tuple")
	}
}

func TestHeapPageInsertSchemaMismatch(t *testing.T) {
	td, _, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	bad := Tuple{
		Desc:   TupleDesc{Fields: []FieldType{{Fname: "x", Ftype: IntType}}},
		Fields: []DBValue{IntField{1}},
	}
	if _, err := hp.insertTuple(&bad); err == nil {
		t.Errorf("inserting a tuple with the wrong schema should fail")
	}
}

func TestHeapPageFull(t *testing.T) {
	td, t1, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	for i := 0; i < hp.getNumSlots(); i++ {
		tup := t1
		if _, err := hp.insertTuple(&tup); err != nil {
			t.Fatalf(err.Error())
		}
	}
	tup := t1
	if _, err := hp.insertTuple(&tup); err == nil {
		t.Errorf("inserting into a full page should fail")
	}
}

func TestHeapPageDelete(t *testing.T) {
	td, t1, t2, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	tupA, tupB := t1, t2
	if _, err := hp.insertTuple(&tupA); err != nil {
		t.Fatalf(err.Error())
	}
	if _, err := hp.insertTuple(&tupB); err != nil {
		t.Fatalf(err.Error())
	}

	if err := hp.deleteTuple(tupA.Rid); err != nil {
		t.Fatalf(err.Error())
	}
	if hp.usedSlotCount() != 1 {
		t.Errorf("expected 1 used slot after delete")
	}
	// double delete
	if err := hp.deleteTuple(tupA.Rid); err == nil {
		t.Errorf("deleting an unused slot should fail")
	}
	// wrong page
	if err := hp.deleteTuple(RecordID{pageNo: 7, slotNo: 0}); err == nil {
		t.Errorf("deleting a rid for another page should fail")
	}
}

// Deleting a tuple clears only its header bit; the slot bytes stay in the
// image.
func TestHeapPageDeletePreservesSlotBytes(t *testing.T) {
	td, t1, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	tup := t1
	if _, err := hp.insertTuple(&tup); err != nil {
		t.Fatalf(err.Error())
	}
	before, err := hp.toBytes()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if err := hp.deleteTuple(tup.Rid); err != nil {
		t.Fatalf(err.Error())
	}
	after, err := hp.toBytes()
	if err != nil {
		t.Fatalf(err.Error())
	}

	off := hp.slotOffset(0)
	if !bytes.Equal(before[off:off+hp.tupleSize], after[off:off+hp.tupleSize]) {
		t.Errorf("delete should not rewrite slot bytes")
	}
	if after[0]&1 != 0 {
		t.Errorf("delete should clear the slot's header bit")
	}
}

// Serialization round trip: a page image decodes and re-encodes to the
// identical byte string.
func TestHeapPageSerialization(t *testing.T) {
	td, t1, t2, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	tupA, tupB, tupC := t1, t2, t1
	for _, tup := range []*Tuple{&tupA, &tupB, &tupC} {
		if _, err := hp.insertTuple(tup); err != nil {
			t.Fatalf(err.Error())
		}
	}
	// leave a hole so the bitmap is not a prefix of ones
	if err := hp.deleteTuple(tupB.Rid); err != nil {
		t.Fatalf(err.Error())
	}

	image, err := hp.toBytes()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if len(image) != PageSize {
		t.Fatalf("page image is %d bytes, expected %d", len(image), PageSize)
	}

	hp2, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}
	if err := hp2.initFromBuffer(bytes.NewBuffer(image)); err != nil {
		t.Fatalf(err.Error())
	}
	image2, err := hp2.toBytes()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if !bytes.Equal(image, image2) {
		t.Errorf("decode/encode round trip changed the page image")
	}
	if hp2.usedSlotCount() != 2 {
		t.Errorf("expected 2 used slots after round trip, got %d", hp2.usedSlotCount())
	}

	iter := hp2.tupleIter()
	first, err := iter()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if first == nil || !first.equals(&t1) {
		t.Errorf("round-tripped page lost its first tuple")
	}
}

func TestHeapPageDirty(t *testing.T) {
	td, _, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	if hp.isDirty() {
		t.Errorf("fresh page should be clean")
	}
	tid := NewTID()
	hp.setDirty(tid, true)
	if !hp.isDirty() || hp.dirtier() != tid {
		t.Errorf("dirty page should record its last writer")
	}
	hp.setDirty(tid, false)
	if hp.isDirty() || hp.dirtier() != 0 {
		t.Errorf("cleaned page should have no dirtier")
	}
}

func TestHeapPageBeforeImage(t *testing.T) {
	td, t1, _, hf, _, _ := makeTestVars(t)
	hp, err := newHeapPage(&td, 0, hf)
	if err != nil {
		t.Fatalf(err.Error())
	}

	empty := hp.getBeforeImage()

	tup := t1
	if _, err := hp.insertTuple(&tup); err != nil {
		t.Fatalf(err.Error())
	}
	if !bytes.Equal(hp.getBeforeImage(), empty) {
		t.Errorf("before-image should not move until setBeforeImage is called")
	}

	if err := hp.setBeforeImage(); err != nil {
		t.Fatalf(err.Error())
	}
	current, err := hp.toBytes()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if !bytes.Equal(hp.getBeforeImage(), current) {
		t.Errorf("setBeforeImage should capture the current image")
	}
}
