package godb

type LimitOp struct {
	// Required fields for parser
	child     Operator
	limitTups Expr
}

// Construct a new limit operator. lim is how many tuples to return and child is
// the child operator.
func NewLimitOp(lim Expr, child Operator) *LimitOp {
	return &LimitOp{
		child:     child,
		limitTups: lim,
	}
}

// Return a TupleDescriptor for this limit.
func (l *LimitOp) Descriptor() *TupleDesc {
	return l.child.Descriptor()
}

// Limit operator implementation. Iterates over the results of the child
// iterator, emitting at most the first lim tuples.
func (l *LimitOp) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	limVal, err := l.limitTups.EvalExpr(nil)
	if err != nil {
		return nil, err
	}
	lim, ok := limVal.(IntField)
	if !ok {
		return nil, GoDBError{TypeMismatchError, "limit must be an integer"}
	}
	childIter, err := l.child.Iterator(tid)
	if err != nil {
		return nil, err
	}

	count := int64(0)
	return func() (*Tuple, error) {
		if count >= lim.Value {
			return nil, nil
		}
		t, err := childIter()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		count++
		return t, nil
	}, nil
}
