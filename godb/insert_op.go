package godb

type InsertOp struct {
	insertFile DBFile
	child      Operator
	bufPool    *BufferPool
	res        *TupleDesc
}

// Construct an insert operator that inserts the records in the child
// Operator into the specified DBFile through the buffer pool.
func NewInsertOp(insertFile DBFile, child Operator, bp *BufferPool) *InsertOp {
	return &InsertOp{
		insertFile: insertFile,
		child:      child,
		bufPool:    bp,
		res: &TupleDesc{[]FieldType{{
			Fname: "count",
			Ftype: IntType,
		}}},
	}
}

// The insert TupleDesc is a one column descriptor with an integer field named "count"
func (i *InsertOp) Descriptor() *TupleDesc {
	return i.res
}

// Return an iterator function whose first call drains the child iterator,
// inserting each tuple into the DBFile via [BufferPool.InsertTuple], and
// returns a one-field tuple with the number of tuples inserted. All
// subsequent calls return end-of-stream.
func (iop *InsertOp) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := iop.child.Iterator(tid)
	if err != nil {
		return nil, err
	}

	done := false
	return func() (*Tuple, error) {
		if done {
			return nil, nil
		}
		done = true

		count := int64(0)
		for {
			t, err := childIter()
			if err != nil {
				return nil, err
			}
			if t == nil {
				break
			}
			if _, err := iop.bufPool.InsertTuple(iop.insertFile, t, tid); err != nil {
				return nil, err
			}
			count++
		}
		return &Tuple{
			Desc:   *iop.res,
			Fields: []DBValue{IntField{count}},
		}, nil
	}, nil
}
