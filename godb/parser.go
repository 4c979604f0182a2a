package godb

// Translates a supported subset of SQL into operator trees: single-table
// SELECT with WHERE conjunctions, aggregates with an optional GROUP BY,
// ORDER BY and LIMIT; INSERT ... VALUES; and DELETE with an optional
// WHERE. Parsing proper is delegated to sqlparser; this file only walks
// the AST and assembles operators.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Parse translates query into an executable operator tree rooted at the
// returned Operator. Mutation statements (INSERT, DELETE) yield their
// driver operators, whose result is a single affected-row-count tuple.
func Parse(c *Catalog, query string) (Operator, error) {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return nil, GoDBError{ParseError, err.Error()}
	}

	switch stmt := stmt.(type) {
	case *sqlparser.Select:
		return parseSelect(c, stmt)
	case *sqlparser.Insert:
		return parseInsert(c, stmt)
	case *sqlparser.Delete:
		return parseDelete(c, stmt)
	}
	return nil, GoDBError{ParseError, fmt.Sprintf("unsupported statement type %T", stmt)}
}

func parseSelect(c *Catalog, stmt *sqlparser.Select) (Operator, error) {
	plan, err := parseFrom(c, stmt.From)
	if err != nil {
		return nil, err
	}

	if stmt.Where != nil {
		plan, err = applyWhere(plan, stmt.Where.Expr)
		if err != nil {
			return nil, err
		}
	}

	plan, err = applySelectExprs(plan, stmt)
	if err != nil {
		return nil, err
	}

	if len(stmt.OrderBy) > 0 {
		var exprs []Expr
		var ascending []bool
		for _, order := range stmt.OrderBy {
			e, err := columnExpr(plan.Descriptor(), order.Expr)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
			ascending = append(ascending, order.Direction != sqlparser.DescScr)
		}
		plan, err = NewOrderBy(exprs, plan, ascending)
		if err != nil {
			return nil, err
		}
	}

	if stmt.Limit != nil && stmt.Limit.Rowcount != nil {
		lim, err := literalValue(stmt.Limit.Rowcount, IntType)
		if err != nil {
			return nil, err
		}
		plan = NewLimitOp(NewConstExpr(lim, IntType), plan)
	}

	return plan, nil
}

// parseFrom resolves a single-table FROM clause into its heap file,
// applying any alias to the scan's descriptor.
func parseFrom(c *Catalog, from sqlparser.TableExprs) (Operator, error) {
	if len(from) != 1 {
		return nil, GoDBError{ParseError, "exactly one table is required in FROM"}
	}
	aliased, ok := from[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, GoDBError{ParseError, fmt.Sprintf("unsupported FROM clause %T", from[0])}
	}
	tableName, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return nil, GoDBError{ParseError, "subqueries in FROM are not supported"}
	}
	hf, err := c.GetTable(tableName.Name.String())
	if err != nil {
		return nil, err
	}
	if alias := aliased.As.String(); alias != "" {
		hf.Descriptor().setTableAlias(alias)
	}
	return hf, nil
}

// applyWhere wraps plan in one Filter per conjunct of a WHERE clause.
func applyWhere(plan Operator, where sqlparser.Expr) (Operator, error) {
	switch e := where.(type) {
	case *sqlparser.AndExpr:
		left, err := applyWhere(plan, e.Left)
		if err != nil {
			return nil, err
		}
		return applyWhere(left, e.Right)
	case *sqlparser.ComparisonExpr:
		op, ok := BoolOpMap[strings.ToLower(e.Operator)]
		if !ok {
			return nil, GoDBError{ParseError, fmt.Sprintf("unsupported comparison operator %s", e.Operator)}
		}
		field, err := columnExpr(plan.Descriptor(), e.Left)
		if err != nil {
			return nil, err
		}
		val, err := literalValue(e.Right, field.GetExprType().Ftype)
		if err != nil {
			return nil, err
		}
		return NewFilter(NewConstExpr(val, field.GetExprType().Ftype), op, field, plan)
	}
	return nil, GoDBError{ParseError, fmt.Sprintf("unsupported WHERE clause %T", where)}
}

// applySelectExprs resolves the select list: a bare *, a projection of
// named columns, or a single aggregate with an optional GROUP BY column.
func applySelectExprs(plan Operator, stmt *sqlparser.Select) (Operator, error) {
	if len(stmt.SelectExprs) == 1 {
		if _, star := stmt.SelectExprs[0].(*sqlparser.StarExpr); star {
			return plan, nil
		}
	}

	var projectExprs []Expr
	var projectNames []string
	var agg *Aggregator

	for _, se := range stmt.SelectExprs {
		aliased, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, GoDBError{ParseError, fmt.Sprintf("unsupported select expression %T", se)}
		}
		switch e := aliased.Expr.(type) {
		case *sqlparser.ColName:
			field, err := columnExpr(plan.Descriptor(), e)
			if err != nil {
				return nil, err
			}
			name := aliased.As.String()
			if name == "" {
				name = field.GetExprType().Fname
			}
			projectExprs = append(projectExprs, field)
			projectNames = append(projectNames, name)
		case *sqlparser.FuncExpr:
			if agg != nil {
				return nil, GoDBError{ParseError, "only one aggregate per query is supported"}
			}
			var err error
			agg, err = buildAggregate(plan, stmt, e)
			if err != nil {
				return nil, err
			}
		default:
			return nil, GoDBError{ParseError, fmt.Sprintf("unsupported select expression %T", aliased.Expr)}
		}
	}

	if agg != nil {
		if len(projectExprs) > 1 || (len(projectExprs) == 1 && agg.groupBy == nil) {
			return nil, GoDBError{ParseError, "non-aggregate select columns must match the GROUP BY column"}
		}
		return agg, nil
	}
	return NewProjectOp(projectExprs, projectNames, stmt.Distinct != "", plan)
}

func buildAggregate(plan Operator, stmt *sqlparser.Select, fn *sqlparser.FuncExpr) (*Aggregator, error) {
	op, err := AggOpFromName(fn.Name.String())
	if err != nil {
		return nil, err
	}

	var aggField Expr
	if len(fn.Exprs) != 1 {
		return nil, GoDBError{ParseError, fmt.Sprintf("%s takes exactly one argument", fn.Name.String())}
	}
	switch arg := fn.Exprs[0].(type) {
	case *sqlparser.StarExpr:
		if op != AggCount {
			return nil, GoDBError{ParseError, fmt.Sprintf("%s(*) is not supported", fn.Name.String())}
		}
		aggField = NewFieldExpr(plan.Descriptor().Fields[0])
	case *sqlparser.AliasedExpr:
		aggField, err = columnExpr(plan.Descriptor(), arg.Expr)
		if err != nil {
			return nil, err
		}
	default:
		return nil, GoDBError{ParseError, fmt.Sprintf("unsupported aggregate argument %T", arg)}
	}

	var groupBy Expr
	if len(stmt.GroupBy) > 1 {
		return nil, GoDBError{ParseError, "at most one GROUP BY column is supported"}
	}
	if len(stmt.GroupBy) == 1 {
		groupBy, err = columnExpr(plan.Descriptor(), stmt.GroupBy[0])
		if err != nil {
			return nil, err
		}
	}

	return NewAggregator(op, aggField, groupBy, plan)
}

func parseInsert(c *Catalog, stmt *sqlparser.Insert) (Operator, error) {
	hf, err := c.GetTable(stmt.Table.Name.String())
	if err != nil {
		return nil, err
	}
	td := hf.Descriptor()

	rows, ok := stmt.Rows.(sqlparser.Values)
	if !ok {
		return nil, GoDBError{ParseError, "INSERT requires a VALUES list"}
	}
	var tuples []*Tuple
	for _, row := range rows {
		if len(row) != len(td.Fields) {
			return nil, GoDBError{ParseError, fmt.Sprintf("expected %d values, got %d", len(td.Fields), len(row))}
		}
		fields := make([]DBValue, len(row))
		for i, expr := range row {
			v, err := literalValue(expr, td.Fields[i].Ftype)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		tuples = append(tuples, &Tuple{Desc: *td, Fields: fields})
	}

	return NewInsertOp(hf, &tupleListOp{desc: td, tuples: tuples}, c.BufferPool()), nil
}

func parseDelete(c *Catalog, stmt *sqlparser.Delete) (Operator, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, GoDBError{ParseError, "exactly one table is required in DELETE"}
	}
	aliased, ok := stmt.TableExprs[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, GoDBError{ParseError, "unsupported DELETE target"}
	}
	tableName, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return nil, GoDBError{ParseError, "unsupported DELETE target"}
	}
	hf, err := c.GetTable(tableName.Name.String())
	if err != nil {
		return nil, err
	}

	var child Operator = hf
	if stmt.Where != nil {
		child, err = applyWhere(child, stmt.Where.Expr)
		if err != nil {
			return nil, err
		}
	}
	return NewDeleteOp(hf, child, c.BufferPool()), nil
}

// columnExpr resolves an AST column reference against a descriptor.
func columnExpr(td *TupleDesc, expr sqlparser.Expr) (Expr, error) {
	col, ok := expr.(*sqlparser.ColName)
	if !ok {
		return nil, GoDBError{ParseError, fmt.Sprintf("expected a column reference, got %T", expr)}
	}
	want := FieldType{
		Fname:          col.Name.Lowered(),
		TableQualifier: col.Qualifier.Name.String(),
		Ftype:          UnknownType,
	}
	i, err := findFieldInTd(want, td)
	if err != nil {
		return nil, err
	}
	return NewFieldExpr(td.Fields[i]), nil
}

// literalValue converts an AST literal to a DBValue of the wanted type.
func literalValue(expr sqlparser.Expr, want DBType) (DBValue, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return nil, GoDBError{ParseError, fmt.Sprintf("expected a literal, got %T", expr)}
	}
	switch val.Type {
	case sqlparser.IntVal:
		if want != IntType {
			return nil, GoDBError{TypeMismatchError, "integer literal used where a string is required"}
		}
		n, err := strconv.ParseInt(string(val.Val), 10, 64)
		if err != nil {
			return nil, GoDBError{ParseError, err.Error()}
		}
		return IntField{n}, nil
	case sqlparser.StrVal:
		if want != StringType {
			return nil, GoDBError{TypeMismatchError, "string literal used where an integer is required"}
		}
		return StringField{string(val.Val)}, nil
	}
	return nil, GoDBError{ParseError, fmt.Sprintf("unsupported literal type %v", val.Type)}
}

// tupleListOp is a leaf operator over an in-memory tuple list, used as
// the child of an InsertOp built from a VALUES clause.
type tupleListOp struct {
	desc   *TupleDesc
	tuples []*Tuple
}

func (op *tupleListOp) Descriptor() *TupleDesc {
	return op.desc
}

func (op *tupleListOp) Iterator(_ TransactionID) (func() (*Tuple, error), error) {
	i := 0
	return func() (*Tuple, error) {
		if i >= len(op.tuples) {
			return nil, nil
		}
		t := op.tuples[i]
		i++
		return t, nil
	}, nil
}
