package godb

import (
	"golang.org/x/exp/slices"
)

type OrderBy struct {
	orderBy   []Expr // OrderBy should include these two fields (used by parser)
	child     Operator
	ascending []bool
}

// Construct an order by operator. orderByFields is a list of expressions
// that can be extracted from the child operator's tuples, and the
// ascending bitmap indicates whether the ith field in the orderByFields
// list should be in ascending (true) or descending (false) order.
func NewOrderBy(orderByFields []Expr, child Operator, ascending []bool) (*OrderBy, error) {
	if len(orderByFields) != len(ascending) {
		return nil, GoDBError{IllegalOperationError, "one sort direction is required per order by field"}
	}
	return &OrderBy{
		orderBy:   orderByFields,
		child:     child,
		ascending: ascending,
	}, nil
}

// Return the tuple descriptor.
//
// Note that the order by just changes the order of the child tuples, not the
// fields that are emitted.
func (o *OrderBy) Descriptor() *TupleDesc {
	return o.child.Descriptor()
}

// Return a function that iterates through the results of the child
// iterator in the order specified in the constructor. The sort is
// blocking: the child is drained in full and sorted in memory before the
// first tuple is emitted.
func (o *OrderBy) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := o.child.Iterator(tid)
	if err != nil {
		return nil, err
	}

	var all []*Tuple
	for {
		t, err := childIter()
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}
		all = append(all, t)
	}

	var sortErr error
	slices.SortStableFunc(all, func(a, b *Tuple) int {
		for i, expr := range o.orderBy {
			cmp, err := a.compareField(b, expr)
			if err != nil {
				sortErr = err
				return 0
			}
			if cmp == OrderedEqual {
				continue
			}
			less := cmp == OrderedLessThan
			if o.ascending[i] == less {
				return -1
			}
			return 1
		}
		return 0
	})
	if sortErr != nil {
		return nil, sortErr
	}

	i := 0
	return func() (*Tuple, error) {
		if i >= len(all) {
			return nil, nil
		}
		t := all[i]
		i++
		return t, nil
	}, nil
}
