package godb

type EqualityJoin struct {
	// Expressions that when applied to tuples from the left or right operators,
	// respectively, return the value of the left or right side of the join
	leftField, rightField Expr

	left, right *Operator // Operators for the two inputs of the join
}

// Constructor for an equality join between two operators.
//
// Returns an error if the two join expressions have different types.
func NewJoin(left Operator, leftField Expr, right Operator, rightField Expr) (*EqualityJoin, error) {
	if leftField.GetExprType().Ftype != rightField.GetExprType().Ftype {
		return nil, GoDBError{TypeMismatchError, "join fields must have the same type"}
	}
	return &EqualityJoin{leftField, rightField, &left, &right}, nil
}

// Return a TupleDesc for this join. The returned descriptor contains the
// fields of the left operator followed by the fields of the right.
func (joinOp *EqualityJoin) Descriptor() *TupleDesc {
	return (*joinOp.left).Descriptor().merge((*joinOp.right).Descriptor())
}

// Tuple-at-a-time nested loops join. The outer (left) side advances one
// tuple whenever the inner (right) side is exhausted, and a fresh inner
// iterator is requested for each outer tuple. Requesting a new join
// iterator resets both sides and drops the current outer tuple.
func (joinOp *EqualityJoin) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	leftIter, err := (*joinOp.left).Iterator(tid)
	if err != nil {
		return nil, err
	}

	var outer *Tuple
	var outerVal DBValue
	var innerIter func() (*Tuple, error)

	return func() (*Tuple, error) {
		for {
			if outer == nil {
				t, err := leftIter()
				if err != nil {
					return nil, err
				}
				if t == nil {
					return nil, nil
				}
				outer = t
				outerVal, err = joinOp.leftField.EvalExpr(outer)
				if err != nil {
					return nil, err
				}
				innerIter, err = (*joinOp.right).Iterator(tid)
				if err != nil {
					return nil, err
				}
			}

			inner, err := innerIter()
			if err != nil {
				return nil, err
			}
			if inner == nil {
				outer = nil
				continue
			}

			innerVal, err := joinOp.rightField.EvalExpr(inner)
			if err != nil {
				return nil, err
			}
			if outerVal.EvalPred(innerVal, OpEq) {
				return joinTuples(outer, inner), nil
			}
		}
	}, nil
}
