package godb

// Shared types and constants for the godb package: configuration knobs,
// error codes, transaction ids, and the interfaces implemented by pages,
// database files, and operators.

import (
	"fmt"
	"log"
	"sync/atomic"
)

// PageSize is the number of bytes in a page. It may be lowered by tests
// before any files are created; all pages in a database must share it.
var PageSize int = 4096

// StringLength is the on-disk size of a string field in bytes, including
// the 4 byte length prefix.
var StringLength int = 128

const Debug = false

func DPrintf(format string, a ...any) {
	if Debug {
		log.Printf(format, a...)
	}
}

type GoDBErrorCode int

const (
	TupleNotFoundError GoDBErrorCode = iota
	PageFullError
	IncompatibleTypesError
	TypeMismatchError
	MalformedDataError
	BufferPoolFullError
	ParseError
	DuplicateTableError
	NoSuchTableError
	AmbiguousNameError
	IllegalOperationError
	DeadlockError
	IllegalTransactionError
)

type GoDBError struct {
	code      GoDBErrorCode
	errString string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("code %d;  err: %s", e.code, e.errString)
}

// IsTransactionAborted reports whether err is a deadlock abort raised by
// the lock manager. Callers seeing true must finish the transaction with
// [BufferPool.AbortTransaction] and not issue further operations on it.
func IsTransactionAborted(err error) bool {
	ge, ok := err.(GoDBError)
	return ok && ge.code == DeadlockError
}

// TransactionID identifies a running transaction. The zero value means
// "no transaction" and is never returned by NewTID.
type TransactionID int

var nextTID int64

func NewTID() TransactionID {
	return TransactionID(atomic.AddInt64(&nextTID, 1))
}

type BoolOp int

const (
	OpGt BoolOp = iota
	OpLt
	OpGe
	OpLe
	OpEq
	OpNeq
	OpLike
)

var BoolOpMap = map[string]BoolOp{
	">":    OpGt,
	"<":    OpLt,
	">=":   OpGe,
	"<=":   OpLe,
	"=":    OpEq,
	"<>":   OpNeq,
	"!=":   OpNeq,
	"like": OpLike,
}

// Page is the unit of caching and locking. Pages are mutated only while
// the caller holds the appropriate page lock; the buffer pool owns the
// resident copy.
type Page interface {
	isDirty() bool
	setDirty(tid TransactionID, dirty bool)
	// dirtier returns the last-writer transaction id, or zero if clean.
	dirtier() TransactionID
	getFile() DBFile
	pageNo() int
	toBytes() ([]byte, error)
	// getBeforeImage returns the byte snapshot taken at the last
	// setBeforeImage (or construction).
	getBeforeImage() []byte
	setBeforeImage() error
}

// DBFile is the interface for database files, e.g. a HeapFile. A DBFile
// is also a leaf Operator: its Iterator scans all tuples in the file.
type DBFile interface {
	Descriptor() *TupleDesc
	Iterator(tid TransactionID) (func() (*Tuple, error), error)

	readPage(pageNo int) (Page, error)
	flushPage(p Page) error
	// insertTuple and deleteTuple return the pages they modified;
	// callers go through [BufferPool.InsertTuple] / [BufferPool.DeleteTuple],
	// which mark those pages dirty.
	insertTuple(t *Tuple, tid TransactionID) ([]Page, error)
	deleteTuple(t *Tuple, tid TransactionID) ([]Page, error)
	pageKey(pgNo int) any
	NumPages() int
}

// Operator is a node in a query plan. Iterator returns a fresh pull
// iterator over the operator's results; the iterator returns (nil, nil)
// at end of stream. Requesting a new iterator rewinds the operator.
type Operator interface {
	Descriptor() *TupleDesc
	Iterator(tid TransactionID) (func() (*Tuple, error), error)
}
