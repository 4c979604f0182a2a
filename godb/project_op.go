package godb

type Project struct {
	selectFields []Expr // required fields for parser
	outputNames  []string
	child        Operator
	distinct     bool
}

// Construct a projection operator. selectFields is a list of expressions
// that represents the fields to be selected, outputNames are names by
// which the selected fields are named (must be the same length as
// selectFields), distinct notes whether the projection reports only
// distinct results, and child is the child operator.
func NewProjectOp(selectFields []Expr, outputNames []string, distinct bool, child Operator) (Operator, error) {
	if len(selectFields) != len(outputNames) {
		return nil, GoDBError{IllegalOperationError, "one output name is required per selected field"}
	}
	return &Project{
		selectFields: selectFields,
		outputNames:  outputNames,
		distinct:     distinct,
		child:        child,
	}, nil
}

// Return a TupleDescriptor for this projection: one field per selected
// expression, renamed to the corresponding output name.
func (p *Project) Descriptor() *TupleDesc {
	desc := &TupleDesc{Fields: make([]FieldType, len(p.selectFields))}
	for i := range p.selectFields {
		ft := p.selectFields[i].GetExprType()
		ft.Fname = p.outputNames[i]
		desc.Fields[i] = ft
	}
	return desc
}

// Project operator implementation. Iterates over the results of the child
// iterator, projecting out the selected fields from each tuple. With
// distinct set, previously seen result tuples are suppressed.
func (p *Project) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := p.child.Iterator(tid)
	if err != nil {
		return nil, err
	}
	desc := *p.Descriptor()
	var seen map[any]struct{}
	if p.distinct {
		seen = make(map[any]struct{})
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

			out := &Tuple{
				Desc:   desc,
				Fields: make([]DBValue, len(p.selectFields)),
			}
			for i, field := range p.selectFields {
				v, err := field.EvalExpr(t)
				if err != nil {
					return nil, err
				}
				out.Fields[i] = v
			}

			if p.distinct {
				key := out.tupleKey()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			return out, nil
		}
	}, nil
}
