package godb

import (
	"fmt"
)

// Expr represents an expression that can be evaluated against a tuple,
// e.g. a field reference or a constant. Operators apply expressions to
// the tuples flowing through them.
type Expr interface {
	// EvalExpr returns the value of the expression on the supplied tuple.
	EvalExpr(t *Tuple) (DBValue, error)
	// GetExprType returns the type of the expression's result, including
	// the field name and table qualifier when the expression is a field
	// reference.
	GetExprType() FieldType
}

// FieldExpr extracts a named field from a tuple.
type FieldExpr struct {
	selectField FieldType
}

func NewFieldExpr(field FieldType) *FieldExpr {
	return &FieldExpr{field}
}

func (f *FieldExpr) EvalExpr(t *Tuple) (DBValue, error) {
	outTup, err := t.project([]FieldType{f.selectField})
	if err != nil {
		return nil, err
	}
	if len(outTup.Fields) != 1 {
		return nil, GoDBError{AmbiguousNameError, fmt.Sprintf("field %s is ambiguous", f.selectField.Fname)}
	}
	return outTup.Fields[0], nil
}

func (f *FieldExpr) GetExprType() FieldType {
	return f.selectField
}

// ConstExpr evaluates to a constant value regardless of its input tuple.
type ConstExpr struct {
	val       DBValue
	constType DBType
}

func NewConstExpr(val DBValue, constType DBType) *ConstExpr {
	return &ConstExpr{val, constType}
}

func (c *ConstExpr) EvalExpr(_ *Tuple) (DBValue, error) {
	return c.val, nil
}

func (c *ConstExpr) GetExprType() FieldType {
	return FieldType{"const", "", c.constType}
}
