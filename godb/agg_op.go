package godb

import (
	"fmt"
	"strings"
)

// AggOp names a supported aggregate function.
type AggOp int

const (
	AggCount AggOp = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (op AggOp) String() string {
	switch op {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "unknown"
}

// AggOpFromName maps a SQL function name (case-insensitive) to an AggOp.
func AggOpFromName(name string) (AggOp, error) {
	switch strings.ToLower(name) {
	case "count":
		return AggCount, nil
	case "sum":
		return AggSum, nil
	case "avg":
		return AggAvg, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	}
	return 0, GoDBError{ParseError, fmt.Sprintf("unknown aggregate function %s", name)}
}

// Aggregator is the grouped aggregation operator. It is eager: requesting
// an iterator drains the child in full, folding each tuple into a
// per-group state, then emits one result tuple per group from an
// in-memory list.
//
// The output schema is (groupField, aggResult) when grouping and just
// (aggResult) otherwise; the aggregate result is always an integer.
type Aggregator struct {
	op       AggOp
	aggField Expr
	groupBy  Expr // nil when aggregating the whole input as one group
	child    Operator
}

// NewAggregator constructs an aggregation over aggField, grouped by
// groupBy (which may be nil for a single ungrouped aggregate).
// Aggregating a string field with any operator other than COUNT is an
// invalid-argument error.
func NewAggregator(op AggOp, aggField Expr, groupBy Expr, child Operator) (*Aggregator, error) {
	if aggField.GetExprType().Ftype == StringType && op != AggCount {
		return nil, GoDBError{IllegalOperationError, fmt.Sprintf("cannot compute %s over a string field", op)}
	}
	return &Aggregator{op: op, aggField: aggField, groupBy: groupBy, child: child}, nil
}

func (a *Aggregator) newAggState() AggState {
	switch a.op {
	case AggSum:
		return &SumAggState{}
	case AggAvg:
		return &AvgAggState{}
	case AggMin:
		return &MinAggState{}
	case AggMax:
		return &MaxAggState{}
	default:
		return &CountAggState{}
	}
}

func (a *Aggregator) aggAlias() string {
	return fmt.Sprintf("%s(%s)", a.op, a.aggField.GetExprType().Fname)
}

func (a *Aggregator) Descriptor() *TupleDesc {
	aggField := FieldType{a.aggAlias(), "", IntType}
	if a.groupBy == nil {
		return &TupleDesc{Fields: []FieldType{aggField}}
	}
	return &TupleDesc{Fields: []FieldType{a.groupBy.GetExprType(), aggField}}
}

// Iterator drains the child, grouping tuples by the group-by value (or a
// single sentinel group when ungrouped), and returns a restartable
// iterator over the finalized group results in first-seen order.
func (a *Aggregator) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	childIter, err := a.child.Iterator(tid)
	if err != nil {
		return nil, err
	}

	states := make(map[any]AggState)
	groupVals := make(map[any]DBValue)
	var groupOrder []any

	for {
		t, err := childIter()
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}

		var key any
		if a.groupBy == nil {
			key = struct{}{}
		} else {
			gv, err := a.groupBy.EvalExpr(t)
			if err != nil {
				return nil, err
			}
			key = gv
			groupVals[key] = gv
		}

		state := states[key]
		if state == nil {
			state = a.newAggState()
			if err := state.Init(a.aggAlias(), a.aggField); err != nil {
				return nil, err
			}
			states[key] = state
			groupOrder = append(groupOrder, key)
		}
		state.AddTuple(t)
	}

	desc := a.Descriptor()
	results := make([]*Tuple, 0, len(groupOrder))
	for _, key := range groupOrder {
		aggTup := states[key].Finalize()
		if a.groupBy == nil {
			aggTup.Desc = *desc
			results = append(results, aggTup)
			continue
		}
		results = append(results, &Tuple{
			Desc:   *desc,
			Fields: []DBValue{groupVals[key], aggTup.Fields[0]},
		})
	}

	i := 0
	return func() (*Tuple, error) {
		if i >= len(results) {
			return nil, nil
		}
		t := results[i]
		i++
		return t, nil
	}, nil
}
