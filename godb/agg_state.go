package godb

import (
	"math"
)

// interface for an aggregation state
type AggState interface {
	// Initializes an aggregation state. Is supplied with an alias and an
	// expr to evaluate an input tuple into a DBValue.
	Init(alias string, expr Expr) error

	// Makes an copy of the aggregation state.
	Copy() AggState

	// Adds an tuple to the aggregation state.
	AddTuple(*Tuple)

	// Returns the final result of the aggregation as a tuple.
	Finalize() *Tuple

	// Gets the tuple description of the tuple that Finalize() returns.
	GetTupleDesc() *TupleDesc
}

// Implements the aggregation state for COUNT. Works for any field type;
// it is the only state a string field may be aggregated with.
type CountAggState struct {
	alias string
	expr  Expr
	count int
}

func (a *CountAggState) Copy() AggState {
	return &CountAggState{a.alias, a.expr, a.count}
}

func (a *CountAggState) Init(alias string, expr Expr) error {
	a.count = 0
	a.expr = expr
	a.alias = alias
	return nil
}

func (a *CountAggState) AddTuple(t *Tuple) {
	a.count++
}

func (a *CountAggState) Finalize() *Tuple {
	td := a.GetTupleDesc()
	return &Tuple{*td, []DBValue{IntField{int64(a.count)}}, nil}
}

func (a *CountAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{a.alias, "", IntType}}}
}

// Implements the aggregation state for SUM
type SumAggState struct {
	alias string
	expr  Expr
	sum   int64
}

func (a *SumAggState) Copy() AggState {
	return &SumAggState{a.alias, a.expr, a.sum}
}

func (a *SumAggState) Init(alias string, expr Expr) error {
	a.alias = alias
	a.expr = expr
	a.sum = 0
	return nil
}

func (a *SumAggState) AddTuple(t *Tuple) {
	v, err := a.expr.EvalExpr(t)
	if err != nil {
		return
	}
	if f, ok := v.(IntField); ok {
		a.sum += f.Value
	}
}

func (a *SumAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{a.alias, "", IntType}}}
}

func (a *SumAggState) Finalize() *Tuple {
	return &Tuple{*a.GetTupleDesc(), []DBValue{IntField{a.sum}}, nil}
}

// Implements the aggregation state for AVG. The state is the running
// (mean, count) pair; each added value folds in as
// mean = (mean*count + v) / (count+1). The division truncates: AVG over
// integers yields an integer, matching the engine's only numeric type.
type AvgAggState struct {
	alias string
	expr  Expr
	mean  int64
	count int64
}

func (a *AvgAggState) Copy() AggState {
	return &AvgAggState{a.alias, a.expr, a.mean, a.count}
}

func (a *AvgAggState) Init(alias string, expr Expr) error {
	a.alias = alias
	a.expr = expr
	a.mean = 0
	a.count = 0
	return nil
}

func (a *AvgAggState) AddTuple(t *Tuple) {
	v, err := a.expr.EvalExpr(t)
	if err != nil {
		return
	}
	f, ok := v.(IntField)
	if !ok {
		return
	}
	a.mean = (a.mean*a.count + f.Value) / (a.count + 1)
	a.count++
}

func (a *AvgAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{a.alias, "", IntType}}}
}

func (a *AvgAggState) Finalize() *Tuple {
	return &Tuple{*a.GetTupleDesc(), []DBValue{IntField{a.mean}}, nil}
}

// Implements the aggregation state for MAX over integers.
type MaxAggState struct {
	alias string
	expr  Expr
	max   int64
}

func (a *MaxAggState) Copy() AggState {
	return &MaxAggState{a.alias, a.expr, a.max}
}

func (a *MaxAggState) Init(alias string, expr Expr) error {
	a.alias = alias
	a.expr = expr
	a.max = math.MinInt32
	return nil
}

func (a *MaxAggState) AddTuple(t *Tuple) {
	v, err := a.expr.EvalExpr(t)
	if err != nil {
		return
	}
	if f, ok := v.(IntField); ok && f.Value > a.max {
		a.max = f.Value
	}
}

func (a *MaxAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{a.alias, "", IntType}}}
}

func (a *MaxAggState) Finalize() *Tuple {
	return &Tuple{*a.GetTupleDesc(), []DBValue{IntField{a.max}}, nil}
}

// Implements the aggregation state for MIN over integers. The running
// minimum starts at the maximum representable field value.
type MinAggState struct {
	alias string
	expr  Expr
	min   int64
}

func (a *MinAggState) Copy() AggState {
	return &MinAggState{a.alias, a.expr, a.min}
}

func (a *MinAggState) Init(alias string, expr Expr) error {
	a.alias = alias
	a.expr = expr
	a.min = math.MaxInt32
	return nil
}

func (a *MinAggState) AddTuple(t *Tuple) {
	v, err := a.expr.EvalExpr(t)
	if err != nil {
		return
	}
	if f, ok := v.(IntField); ok && f.Value < a.min {
		a.min = f.Value
	}
}

func (a *MinAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{a.alias, "", IntType}}}
}

func (a *MinAggState) Finalize() *Tuple {
	return &Tuple{*a.GetTupleDesc(), []DBValue{IntField{a.min}}, nil}
}
