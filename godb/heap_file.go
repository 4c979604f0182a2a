package godb

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// RecordID locates a tuple on disk: the page it lives on and the slot
// within that page.
type RecordID struct {
	pageNo int
	slotNo int
}

// A HeapFile is an unordered collection of tuples stored as a sequence of
// heap pages in a regular OS file. Page k occupies bytes
// [k*PageSize, (k+1)*PageSize).
//
// HeapFile is a public class because external callers may wish to instantiate
// database tables using the method [LoadFromCSV]
type HeapFile struct {
	backingFile string
	tableID     int
	td          *TupleDesc
	bufPool     *BufferPool

	// guards file extension so two inserts cannot append over the same
	// page number
	extendLock sync.Mutex
}

// Create a HeapFile.
// Parameters
// - fromFile: backing file for the HeapFile.  May be empty or a previously created heap file.
// - td: the TupleDesc for the HeapFile.
// - bp: the BufferPool that is used to store pages read from the HeapFile
// May return an error if the file cannot be opened or created.
func NewHeapFile(fromFile string, td *TupleDesc, bp *BufferPool) (*HeapFile, error) {
	file, err := os.OpenFile(fromFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open backing file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(fromFile)
	if err != nil {
		return nil, err
	}
	hash := fnv.New32a()
	hash.Write([]byte(abs))

	return &HeapFile{
		backingFile: fromFile,
		tableID:     int(hash.Sum32()),
		td:          td.copy(),
		bufPool:     bp,
	}, nil
}

// Return the name of the backing file
func (f *HeapFile) BackingFile() string {
	return f.backingFile
}

// TableID returns the stable id of this table, a hash of the backing
// file's absolute path.
func (f *HeapFile) TableID() int {
	return f.tableID
}

// Return the number of pages in the heap file. The file length is always
// a multiple of PageSize.
func (f *HeapFile) NumPages() int {
	info, err := os.Stat(f.backingFile)
	if err != nil {
		return 0
	}
	return int(info.Size() / int64(PageSize))
}

// Load the contents of a heap file from a specified CSV file.  Parameters are as follows:
// - hasHeader:  whether or not the CSV file has a header
// - sep: the character to use to separate fields
// - skipLastField: if true, the final field is skipped (some TPC datasets include a trailing separator on each line)
// Returns an error if the field cannot be opened or if a line is malformed
func (f *HeapFile) LoadFromCSV(file *os.File, hasHeader bool, sep string, skipLastField bool) error {
	scanner := bufio.NewScanner(file)
	cnt := 0
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, sep)
		if skipLastField {
			fields = fields[0 : len(fields)-1]
		}
		numFields := len(fields)
		cnt++
		desc := f.Descriptor()
		if desc == nil || desc.Fields == nil {
			return GoDBError{MalformedDataError, "Descriptor was nil"}
		}
		if numFields != len(desc.Fields) {
			return GoDBError{MalformedDataError, fmt.Sprintf("LoadFromCSV:  line %d (%s) does not have expected number of fields (expected %d, got %d)", cnt, line, len(desc.Fields), numFields)}
		}
		if cnt == 1 && hasHeader {
			continue
		}
		var newFields []DBValue
		for fno, field := range fields {
			switch desc.Fields[fno].Ftype {
			case IntType:
				field = strings.TrimSpace(field)
				floatVal, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return GoDBError{TypeMismatchError, fmt.Sprintf("LoadFromCSV: couldn't convert value %s to int, tuple %d", field, cnt)}
				}
				newFields = append(newFields, IntField{int64(floatVal)})
			case StringType:
				if len(field) > StringLength-4 {
					field = field[0 : StringLength-4]
				}
				newFields = append(newFields, StringField{field})
			}
		}
		newT := Tuple{*desc, newFields, nil}

		tid := NewTID()
		bp := f.bufPool
		if err := bp.BeginTransaction(tid); err != nil {
			return err
		}
		if _, err := bp.InsertTuple(f, &newT, tid); err != nil {
			bp.AbortTransaction(tid)
			return err
		}
		bp.CommitTransaction(tid)
	}
	return nil
}

// Read the specified page number from the HeapFile on disk. This method is
// called by the [BufferPool.GetPage] method when it cannot find the page
// in its cache. Fails if the page's byte range lies past end of file.
func (f *HeapFile) readPage(pageNo int) (Page, error) {
	file, err := os.Open(f.backingFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	offset := int64(pageNo) * int64(PageSize)
	if pageNo < 0 || offset+int64(PageSize) > info.Size() {
		return nil, GoDBError{TupleNotFoundError, fmt.Sprintf("page %d is past the end of %s", pageNo, f.backingFile)}
	}

	data := make([]byte, PageSize)
	if _, err := file.ReadAt(data, offset); err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", pageNo, err)
	}

	page, err := newHeapPage(f.td, pageNo, f)
	if err != nil {
		return nil, err
	}
	if err := page.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		return nil, fmt.Errorf("failed to initialize heap page: %w", err)
	}
	return page, nil
}

// Force the specified page back to the backing file at the appropriate
// location. The write is synchronous from the caller's perspective.
// Clearing the dirty flag is the buffer pool's responsibility.
func (f *HeapFile) flushPage(p Page) error {
	page, ok := p.(*heapPage)
	if !ok {
		return GoDBError{TypeMismatchError, "flushPage: not a heap page"}
	}

	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := page.toBytes()
	if err != nil {
		return err
	}
	if _, err := file.WriteAt(data, int64(page.pgNo)*int64(PageSize)); err != nil {
		return err
	}
	return nil
}

// Add the tuple to the HeapFile. Scans existing pages in order through
// the buffer pool, requesting write permission on each, and inserts into
// the first page with a free slot. If every page is full, a freshly
// zeroed page is appended to the file and the tuple inserted there.
// Returns the pages that were modified; callers go through
// [BufferPool.InsertTuple], which marks them dirty.
func (f *HeapFile) insertTuple(t *Tuple, tid TransactionID) ([]Page, error) {
	if len(t.Fields) != len(f.td.Fields) {
		return nil, GoDBError{TypeMismatchError, "tuple has wrong number of fields for this file"}
	}

	pageNo := 0
	for {
		numPages := f.NumPages()
		for ; pageNo < numPages; pageNo++ {
			p, err := f.bufPool.GetPage(f, pageNo, tid, WritePerm)
			if err != nil {
				return nil, err
			}
			hp := p.(*heapPage)
			if hp.getNumEmptySlots() == 0 {
				continue
			}
			if _, err := hp.insertTuple(t); err != nil {
				return nil, err
			}
			return []Page{hp}, nil
		}

		// every existing page is full; extend the file by one zeroed
		// page, then loop to insert into it through the buffer pool.
		// Another transaction may slip in and fill the new page first,
		// in which case the scan continues from it.
		if err := f.extend(); err != nil {
			return nil, err
		}
	}
}

// extend appends one zeroed page to the backing file. Extension is
// serialized so concurrent inserts cannot write over the same offset.
func (f *HeapFile) extend() error {
	f.extendLock.Lock()
	defer f.extendLock.Unlock()

	newPageNo := f.NumPages()
	page, err := newHeapPage(f.td, newPageNo, f)
	if err != nil {
		return err
	}
	return f.flushPage(page)
}

// Remove the provided tuple from the HeapFile. Uses the [Tuple.Rid] field
// of t to find the containing page, requests it with write permission,
// and deletes the tuple. Returns the page that was modified.
func (f *HeapFile) deleteTuple(t *Tuple, tid TransactionID) ([]Page, error) {
	rid, ok := t.Rid.(RecordID)
	if !ok {
		return nil, GoDBError{TupleNotFoundError, "tuple has no record id"}
	}

	p, err := f.bufPool.GetPage(f, rid.pageNo, tid, WritePerm)
	if err != nil {
		return nil, err
	}
	hp := p.(*heapPage)
	if err := hp.deleteTuple(rid); err != nil {
		return nil, err
	}
	return []Page{hp}, nil
}

// [Operator] descriptor method -- return the TupleDesc for this HeapFile
// Supplied as argument to NewHeapFile.
func (f *HeapFile) Descriptor() *TupleDesc {
	return f.td
}

// [Operator] iterator method
// Return a function that iterates through the records in the heap file in
// page order, obtaining each page from the buffer pool with read
// permission. The iterator holds only the current page's slot cursor: it
// does not prefetch beyond the current page, and page locks acquired
// along the way are retained until the transaction completes (the
// iterator never releases them).
func (f *HeapFile) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	pageNo := 0
	var pageIter func() (*Tuple, error)

	return func() (*Tuple, error) {
		for {
			if pageIter == nil {
				if pageNo >= f.NumPages() {
					return nil, nil
				}
				p, err := f.bufPool.GetPage(f, pageNo, tid, ReadPerm)
				if err != nil {
					return nil, err
				}
				pageIter = p.(*heapPage).tupleIter()
			}

			t, err := pageIter()
			if err != nil {
				return nil, err
			}
			if t != nil {
				t.Desc = *f.td
				return t, nil
			}
			pageIter = nil
			pageNo++
		}
	}, nil
}

// internal strucuture to use as key for a heap page
type heapHash struct {
	FileName string
	PageNo   int
}

// This method returns a key for a page to use in a map object, used by
// BufferPool to determine if a page is cached or not.
func (f *HeapFile) pageKey(pgNo int) any {
	return heapHash{
		FileName: f.backingFile,
		PageNo:   pgNo,
	}
}
