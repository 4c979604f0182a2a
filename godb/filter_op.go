package godb

type Filter struct {
	op    BoolOp
	left  Expr
	right Expr
	child Operator
}

// Construct a filter operator that emits the child's tuples for which
// field op constExpr holds.
func NewFilter(constExpr Expr, op BoolOp, field Expr, child Operator) (*Filter, error) {
	return &Filter{op, field, constExpr, child}, nil
}

// Return a TupleDescriptor for this filter op.
func (f *Filter) Descriptor() *TupleDesc {
	return f.child.Descriptor()
}

// Filter operator implementation. Iterates over the results of the child
// iterator and returns a tuple if it satisfies the predicate.
func (f *Filter) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := f.child.Iterator(tid)
	if err != nil {
		return nil, err
	}

	return func() (*Tuple, error) {
		for {
			t, err := childIter()
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, nil
			}

			leftVal, err := f.left.EvalExpr(t)
			if err != nil {
				return nil, err
			}
			rightVal, err := f.right.EvalExpr(t)
			if err != nil {
				return nil, err
			}
			if leftVal.EvalPred(rightVal, f.op) {
				return t, nil
			}
		}
	}, nil
}
