package godb

import (
	"bytes"
	"fmt"
	"math/bits"
)

/* heapPage implements the Page interface for pages of HeapFiles.

All tuples in GoDB are fixed length, so given a TupleDesc it is possible
to figure out how many tuple "slots" fit on a page. A page is PageSize
bytes and begins with a header bitmap with one bit per slot (bit i of
header byte i/8, low bit first; 1 means the slot holds a tuple). The
bitmap is followed by numSlots fixed-width tuple slots; trailing bytes
are zero.

numSlots is the largest n such that ceil(n/8) + n*tupleSize <= PageSize,
i.e. n = (PageSize*8) / (tupleSize*8 + 1).

The byte image is the canonical persisted form of the page: the page
keeps its full image in memory and mutates it in place, so serializing a
page returns exactly the bytes it was loaded from plus any mutations.
Deleting a tuple only clears its header bit; the slot bytes are left
behind. Each page also carries, in memory only, a dirty flag with the
last writer's transaction id, and a before-image snapshot of its bytes
used for abort restoration and log records.
*/

type heapPage struct {
	desc      *TupleDesc
	pgNo      int
	file      *HeapFile
	numSlots  int
	tupleSize int
	numUsed   int
	data      []byte
	tuples    []*Tuple
	dirty     bool
	dirtyTid  TransactionID
	beforeImg []byte
}

// Construct a new, empty heap page for the given file position.
func newHeapPage(desc *TupleDesc, pgNo int, f *HeapFile) (*heapPage, error) {
	tupleSize := desc.bytesPerTuple()
	if tupleSize <= 0 {
		return nil, GoDBError{MalformedDataError, "descriptor has no fields"}
	}
	numSlots := (PageSize * 8) / (tupleSize*8 + 1)
	if numSlots <= 0 {
		return nil, GoDBError{MalformedDataError, fmt.Sprintf("tuple of %d bytes does not fit in a %d byte page", tupleSize, PageSize)}
	}
	h := &heapPage{
		desc:      desc,
		pgNo:      pgNo,
		file:      f,
		numSlots:  numSlots,
		tupleSize: tupleSize,
		data:      make([]byte, PageSize),
		tuples:    make([]*Tuple, numSlots),
	}
	h.beforeImg = append([]byte(nil), h.data...)
	return h, nil
}

// headerSize is the number of bytes occupied by the slot bitmap.
func (h *heapPage) headerSize() int {
	return (h.numSlots + 7) / 8
}

func (h *heapPage) slotOffset(slot int) int {
	return h.headerSize() + slot*h.tupleSize
}

func (h *heapPage) isSlotUsed(slot int) bool {
	return h.data[slot/8]&(1<<(slot%8)) != 0
}

func (h *heapPage) markSlotUsed(slot int, used bool) {
	if used {
		h.data[slot/8] |= 1 << (slot % 8)
	} else {
		h.data[slot/8] &^= 1 << (slot % 8)
	}
}

func (h *heapPage) getNumSlots() int {
	return h.numSlots
}

func (h *heapPage) getNumEmptySlots() int {
	return h.numSlots - h.numUsed
}

// Insert the tuple into a free slot on the page, or return an error if
// there are no free slots or the tuple does not conform to the page's
// schema. Sets the tuple's rid and returns it.
func (h *heapPage) insertTuple(t *Tuple) (recordID, error) {
	if !t.Desc.equals(h.desc) {
		return nil, GoDBError{TypeMismatchError, "tuple descriptor does not match page descriptor"}
	}
	for slot := 0; slot < h.numSlots; slot++ {
		if h.isSlotUsed(slot) {
			continue
		}
		var buf bytes.Buffer
		if err := t.writeTo(&buf); err != nil {
			return nil, err
		}
		if buf.Len() != h.tupleSize {
			return nil, GoDBError{TypeMismatchError, fmt.Sprintf("serialized tuple is %d bytes, slot is %d", buf.Len(), h.tupleSize)}
		}
		copy(h.data[h.slotOffset(slot):], buf.Bytes())
		h.markSlotUsed(slot, true)
		h.numUsed++

		t.Rid = RecordID{h.pgNo, slot}
		stored := &Tuple{Desc: *h.desc, Fields: t.Fields, Rid: t.Rid}
		h.tuples[slot] = stored
		return t.Rid, nil
	}
	return nil, GoDBError{PageFullError, "no free slots on page"}
}

// Delete the tuple at the specified record ID, or return an error if the
// ID does not reference a live tuple on this page. Only the header bit is
// cleared; the slot bytes remain until overwritten.
func (h *heapPage) deleteTuple(rid recordID) error {
	id, ok := rid.(RecordID)
	if !ok {
		return GoDBError{TupleNotFoundError, "supplied rid is not a heap file record id"}
	}
	if id.pageNo != h.pgNo {
		return GoDBError{TupleNotFoundError, fmt.Sprintf("rid references page %d, not page %d", id.pageNo, h.pgNo)}
	}
	if id.slotNo < 0 || id.slotNo >= h.numSlots {
		return GoDBError{TupleNotFoundError, fmt.Sprintf("slot %d out of range", id.slotNo)}
	}
	if !h.isSlotUsed(id.slotNo) {
		return GoDBError{TupleNotFoundError, "slot is not in use"}
	}
	h.markSlotUsed(id.slotNo, false)
	h.tuples[id.slotNo] = nil
	h.numUsed--
	return nil
}

// Page method - return whether or not the page is dirty
func (h *heapPage) isDirty() bool {
	return h.dirty
}

// Page method - mark the page as dirty, recording the last writer, or
// clear the flag.
func (h *heapPage) setDirty(tid TransactionID, dirty bool) {
	if dirty {
		h.dirty = true
		h.dirtyTid = tid
	} else {
		h.dirty = false
		h.dirtyTid = 0
	}
}

func (h *heapPage) dirtier() TransactionID {
	if !h.dirty {
		return 0
	}
	return h.dirtyTid
}

// Page method - return the corresponding HeapFile for this page.
func (h *heapPage) getFile() DBFile {
	return h.file
}

func (h *heapPage) pageNo() int {
	return h.pgNo
}

// toBuffer serializes the page to a fresh buffer of exactly PageSize
// bytes. Since the page mutates its byte image in place this is a copy
// of the image.
func (h *heapPage) toBuffer() (*bytes.Buffer, error) {
	return bytes.NewBuffer(append([]byte(nil), h.data...)), nil
}

func (h *heapPage) toBytes() ([]byte, error) {
	return append([]byte(nil), h.data...), nil
}

// getBeforeImage returns the byte snapshot captured by the last
// setBeforeImage (or page construction/load).
func (h *heapPage) getBeforeImage() []byte {
	return append([]byte(nil), h.beforeImg...)
}

// setBeforeImage captures the page's current bytes as the new snapshot.
// Called after a commit-time flush so the next modification logs against
// the committed state.
func (h *heapPage) setBeforeImage() error {
	h.beforeImg = append([]byte(nil), h.data...)
	return nil
}

// Read the contents of the heapPage from the supplied buffer, which must
// hold a full page image.
func (h *heapPage) initFromBuffer(buf *bytes.Buffer) error {
	if buf.Len() < PageSize {
		return GoDBError{MalformedDataError, fmt.Sprintf("page image is %d bytes, expected %d", buf.Len(), PageSize)}
	}
	copy(h.data, buf.Next(PageSize))

	h.numUsed = 0
	for slot := 0; slot < h.numSlots; slot++ {
		if !h.isSlotUsed(slot) {
			h.tuples[slot] = nil
			continue
		}
		off := h.slotOffset(slot)
		t, err := readTupleFrom(bytes.NewBuffer(h.data[off:off+h.tupleSize]), h.desc)
		if err != nil {
			return err
		}
		t.Rid = RecordID{h.pgNo, slot}
		h.tuples[slot] = t
		h.numUsed++
	}
	return h.setBeforeImage()
}

// usedSlotCount counts the set bits in the header bitmap. It always
// equals numSlots - getNumEmptySlots().
func (h *heapPage) usedSlotCount() int {
	n := 0
	for _, b := range h.data[:h.headerSize()] {
		n += bits.OnesCount8(b)
	}
	return n
}

// Return a function that iterates through the tuples of the heap page in
// slot order. The iterator is not restartable; request a new one to
// rescan.
func (h *heapPage) tupleIter() func() (*Tuple, error) {
	slot := 0
	return func() (*Tuple, error) {
		for {
			if slot >= h.numSlots {
				return nil, nil
			}
			t := h.tuples[slot]
			slot++
			if t == nil {
				continue
			}
			return t, nil
		}
	}
}
