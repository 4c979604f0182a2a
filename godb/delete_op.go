package godb

type DeleteOp struct {
	deleteFile DBFile
	child      Operator
	bufPool    *BufferPool
	res        *TupleDesc
}

// Construct a delete operator. The delete operator deletes the records in
// the child Operator from the specified DBFile through the buffer pool.
func NewDeleteOp(deleteFile DBFile, child Operator, bp *BufferPool) *DeleteOp {
	return &DeleteOp{
		deleteFile: deleteFile,
		child:      child,
		bufPool:    bp,
		res: &TupleDesc{[]FieldType{{
			Fname: "count",
			Ftype: IntType,
		}}},
	}
}

// The delete TupleDesc is a one column descriptor with an integer field named
// "count".
func (i *DeleteOp) Descriptor() *TupleDesc {
	return i.res
}

// Return an iterator function whose first call drains the child iterator,
// deleting each of its tuples from the DBFile via
// [BufferPool.DeleteTuple], and returns a one-field tuple with the number
// of tuples deleted. All subsequent calls return end-of-stream.
func (dop *DeleteOp) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := dop.child.Iterator(tid)
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
			if _, err := dop.bufPool.DeleteTuple(dop.deleteFile, t, tid); err != nil {
				return nil, err
			}
			count++
		}
		return &Tuple{
			Desc:   *dop.res,
			Fields: []DBValue{IntField{count}},
		}, nil
	}, nil
}
