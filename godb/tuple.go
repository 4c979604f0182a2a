package godb

//This file defines methods for working with tuples, including defining
// the types DBType, FieldType, TupleDesc, DBValue, and Tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DBType is the type of a tuple field, in GoDB, e.g., IntType or StringType
type DBType int

const (
	IntType     DBType = iota
	StringType  DBType = iota
	UnknownType DBType = iota //used internally, during parsing, because sometimes the type is unknown
)

func (t DBType) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// byteLength is the number of bytes a field of this type occupies on a
// page: 4 for an integer, StringLength for a string.
func (t DBType) byteLength() int {
	switch t {
	case IntType:
		return 4
	case StringType:
		return StringLength
	}
	return 0
}

// FieldType is the type of a field in a tuple, e.g., its name, table, and [godb.DBType].
// TableQualifier may or may not be an emtpy string, depending on whether the table
// was specified in the query
type FieldType struct {
	Fname          string
	TableQualifier string
	Ftype          DBType
}

// TupleDesc is "type" of the tuple, e.g., the field names and types
type TupleDesc struct {
	Fields []FieldType
}

// Compare two tuple descs, and return true iff they have the same ordered
// list of field types. Field names and qualifiers do not participate in
// equality; a page accepts any tuple whose types line up with its schema.
func (d1 *TupleDesc) equals(d2 *TupleDesc) bool {
	if len(d1.Fields) != len(d2.Fields) {
		return false
	}
	for i := range d1.Fields {
		if d1.Fields[i].Ftype != d2.Fields[i].Ftype {
			return false
		}
	}
	return true
}

// bytesPerTuple returns the fixed on-disk size of a tuple conforming to
// this descriptor, the sum of its field widths.
func (td *TupleDesc) bytesPerTuple() int {
	sz := 0
	for _, f := range td.Fields {
		sz += f.Ftype.byteLength()
	}
	return sz
}

// Given a FieldType f and a TupleDesc desc, find the best
// matching field in desc for f.  A match is defined as
// having the same Ftype and the same name, preferring a match
// with the same TableQualifier if f has a TableQualifier
func findFieldInTd(field FieldType, desc *TupleDesc) (int, error) {
	best := -1
	for i, f := range desc.Fields {
		if f.Fname == field.Fname && (f.Ftype == field.Ftype || field.Ftype == UnknownType) {
			if field.TableQualifier == "" && best != -1 {
				return 0, GoDBError{AmbiguousNameError, fmt.Sprintf("select name %s is ambiguous", f.Fname)}
			}
			if f.TableQualifier == field.TableQualifier || best == -1 {
				best = i
			}
		}
	}
	if best != -1 {
		return best, nil
	}
	return -1, GoDBError{IncompatibleTypesError, fmt.Sprintf("field %s.%s not found", field.TableQualifier, field.Fname)}
}

// Make a copy of a tuple desc. Slice contents are copied, so mutating the
// copy's fields does not affect the original.
func (td *TupleDesc) copy() *TupleDesc {
	fields := make([]FieldType, len(td.Fields))
	copy(fields, td.Fields)
	return &TupleDesc{Fields: fields}
}

// Assign the TableQualifier of every field in the TupleDesc to be the
// supplied alias. Used by the parser when a table is aliased.
func (td *TupleDesc) setTableAlias(alias string) {
	fields := make([]FieldType, len(td.Fields))
	copy(fields, td.Fields)
	for i := range fields {
		fields[i].TableQualifier = alias
	}
	td.Fields = fields
}

// Merge two TupleDescs together.  The resulting TupleDesc
// should consist of the fields of desc2
// appended onto the fields of desc.
func (desc *TupleDesc) merge(desc2 *TupleDesc) *TupleDesc {
	fields := make([]FieldType, 0, len(desc.Fields)+len(desc2.Fields))
	fields = append(fields, desc.Fields...)
	fields = append(fields, desc2.Fields...)
	return &TupleDesc{Fields: fields}
}

// ================== Tuple Methods ======================

// Interface for tuple field values
type DBValue interface {
	EvalPred(v DBValue, op BoolOp) bool
}

// Integer field value. Values are held as int64 in memory but occupy 4
// bytes (big-endian two's complement) on disk.
type IntField struct {
	Value int64
}

// String field value
type StringField struct {
	Value string
}

func (f IntField) EvalPred(v DBValue, op BoolOp) bool {
	other, ok := v.(IntField)
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return f.Value > other.Value
	case OpLt:
		return f.Value < other.Value
	case OpGe:
		return f.Value >= other.Value
	case OpLe:
		return f.Value <= other.Value
	case OpEq:
		return f.Value == other.Value
	case OpNeq:
		return f.Value != other.Value
	}
	return false
}

func (f StringField) EvalPred(v DBValue, op BoolOp) bool {
	other, ok := v.(StringField)
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return f.Value > other.Value
	case OpLt:
		return f.Value < other.Value
	case OpGe:
		return f.Value >= other.Value
	case OpLe:
		return f.Value <= other.Value
	case OpEq:
		return f.Value == other.Value
	case OpNeq:
		return f.Value != other.Value
	case OpLike:
		s := other.Value
		if strings.HasPrefix(s, "%") && strings.HasSuffix(s, "%") && len(s) >= 2 {
			return strings.Contains(f.Value, s[1:len(s)-1])
		}
		if strings.HasPrefix(s, "%") {
			return strings.HasSuffix(f.Value, s[1:])
		}
		if strings.HasSuffix(s, "%") {
			return strings.HasPrefix(f.Value, s[:len(s)-1])
		}
		return f.Value == s
	}
	return false
}

// Tuple represents the contents of a tuple read from a database
// It includes the tuple descriptor, and the value of the fields
type Tuple struct {
	Desc   TupleDesc
	Fields []DBValue
	Rid    recordID //used to track the page and position this page was read from
}

type recordID interface {
}

// Serialize the contents of the tuple into a byte array. Since all tuples
// are of fixed size, this method simply writes the fields in sequential
// order into the supplied buffer.
//
// Integers are written as 4 byte big-endian two's complement values.
// Strings are written as a 4 byte big-endian length followed by the
// string's bytes, zero padded to StringLength bytes total. Strings longer
// than StringLength-4 bytes are truncated.
func (t *Tuple) writeTo(b *bytes.Buffer) error {
	for _, field := range t.Fields {
		switch v := field.(type) {
		case IntField:
			if err := binary.Write(b, binary.BigEndian, int32(v.Value)); err != nil {
				return err
			}
		case StringField:
			s := v.Value
			if len(s) > StringLength-4 {
				s = s[:StringLength-4]
			}
			if err := binary.Write(b, binary.BigEndian, int32(len(s))); err != nil {
				return err
			}
			padded := make([]byte, StringLength-4)
			copy(padded, s)
			if _, err := b.Write(padded); err != nil {
				return err
			}
		default:
			return GoDBError{TypeMismatchError, fmt.Sprintf("unsupported field type: %T", field)}
		}
	}
	return nil
}

// Read the contents of a tuple with the specified [TupleDesc] from the
// specified buffer, returning a Tuple. Inverse of [Tuple.writeTo].
func readTupleFrom(b *bytes.Buffer, desc *TupleDesc) (*Tuple, error) {
	t := &Tuple{Desc: *desc}
	for _, f := range desc.Fields {
		switch f.Ftype {
		case IntType:
			var v int32
			if err := binary.Read(b, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, IntField{int64(v)})
		case StringType:
			var n int32
			if err := binary.Read(b, binary.BigEndian, &n); err != nil {
				return nil, err
			}
			content := make([]byte, StringLength-4)
			if _, err := io.ReadFull(b, content); err != nil {
				return nil, err
			}
			if n < 0 || int(n) > StringLength-4 {
				return nil, GoDBError{MalformedDataError, fmt.Sprintf("string length %d out of range", n)}
			}
			t.Fields = append(t.Fields, StringField{string(content[:n])})
		default:
			return nil, GoDBError{TypeMismatchError, fmt.Sprintf("cannot deserialize field of type %v", f.Ftype)}
		}
	}
	return t, nil
}

// Compare two tuples for equality.  Equality means that the TupleDescs are equal
// and all of the fields are equal.
func (t1 *Tuple) equals(t2 *Tuple) bool {
	if t1 == nil && t2 == nil {
		return true
	}
	if t1 == nil || t2 == nil {
		return false
	}
	if len(t1.Fields) != len(t2.Fields) {
		return false
	}
	if !t1.Desc.equals(&t2.Desc) {
		return false
	}
	for i := range t1.Fields {
		if t1.Fields[i] != t2.Fields[i] {
			return false
		}
	}
	return true
}

// Merge two tuples together, producing a new tuple with the fields of t2
// appended to t1, with a descriptor merged in the same order.
func joinTuples(t1 *Tuple, t2 *Tuple) *Tuple {
	if t1 == nil {
		return t2
	}
	if t2 == nil {
		return t1
	}
	return &Tuple{
		Desc:   *t1.Desc.merge(&t2.Desc),
		Fields: append(append([]DBValue{}, t1.Fields...), t2.Fields...),
	}
}

type orderByState int

const (
	OrderedLessThan    orderByState = iota
	OrderedEqual       orderByState = iota
	OrderedGreaterThan orderByState = iota
)

// Apply the supplied expression to both t and t2, and compare the results,
// returning an orderByState value.
func (t *Tuple) compareField(t2 *Tuple, field Expr) (orderByState, error) {
	v1, err := field.EvalExpr(t)
	if err != nil {
		return OrderedEqual, err
	}
	v2, err := field.EvalExpr(t2)
	if err != nil {
		return OrderedEqual, err
	}
	return compareFields(v1, v2)
}

func compareFields(v1, v2 DBValue) (orderByState, error) {
	switch a := v1.(type) {
	case IntField:
		if b, ok := v2.(IntField); ok {
			switch {
			case a.Value > b.Value:
				return OrderedGreaterThan, nil
			case a.Value == b.Value:
				return OrderedEqual, nil
			default:
				return OrderedLessThan, nil
			}
		}
	case StringField:
		if b, ok := v2.(StringField); ok {
			switch {
			case a.Value > b.Value:
				return OrderedGreaterThan, nil
			case a.Value == b.Value:
				return OrderedEqual, nil
			default:
				return OrderedLessThan, nil
			}
		}
	}
	return OrderedEqual, GoDBError{TypeMismatchError, fmt.Sprintf("unsupported field comparison between %T and %T", v1, v2)}
}

// Project out the supplied fields from the tuple. Returns a new Tuple
// with just the fields named in fields.
//
// Does not require a match on TableQualifier, but prefers fields that
// do match on TableQualifier.
func (t *Tuple) project(fields []FieldType) (*Tuple, error) {
	projected := &Tuple{}
	for _, field := range fields {
		matched := -1
		for i, descField := range t.Desc.Fields {
			if field.Fname == descField.Fname && field.TableQualifier == descField.TableQualifier {
				matched = i
				break
			}
		}
		if matched == -1 {
			for i, descField := range t.Desc.Fields {
				if field.Fname == descField.Fname {
					matched = i
					break
				}
			}
		}
		if matched == -1 {
			return nil, GoDBError{IncompatibleTypesError, fmt.Sprintf("field %s.%s not found", field.TableQualifier, field.Fname)}
		}
		projected.Fields = append(projected.Fields, t.Fields[matched])
		projected.Desc.Fields = append(projected.Desc.Fields, t.Desc.Fields[matched])
	}
	return projected, nil
}

// Compute a key for the tuple to be used in a map structure
func (t *Tuple) tupleKey() any {
	var buf bytes.Buffer
	t.writeTo(&buf)
	return buf.String()
}

var winWidth int = 120

func fmtCol(v string, ncols int) string {
	colWid := winWidth / ncols
	nextLen := len(v) + 3
	remLen := colWid - nextLen
	if remLen > 0 {
		spacesRight := remLen / 2
		spacesLeft := remLen - spacesRight
		return strings.Repeat(" ", spacesLeft) + v + strings.Repeat(" ", spacesRight) + " |"
	} else {
		return " " + v[0:colWid-4] + " |"
	}
}

// Return a string representing the header of a table for a tuple with the
// supplied TupleDesc.
//
// Aligned indicates if the tuple should be foramtted in a tabular format
func (d *TupleDesc) HeaderString(aligned bool) string {
	outstr := ""
	for i, f := range d.Fields {
		tableName := ""
		if f.TableQualifier != "" {
			tableName = f.TableQualifier + "."
		}

		if aligned {
			outstr = fmt.Sprintf("%s %s", outstr, fmtCol(tableName+f.Fname, len(d.Fields)))
		} else {
			sep := ","
			if i == 0 {
				sep = ""
			}
			outstr = fmt.Sprintf("%s%s%s", outstr, sep, tableName+f.Fname)
		}
	}
	return outstr
}

// Return a string representing the tuple
// Aligned indicates if the tuple should be formatted in a tabular format
func (t *Tuple) PrettyPrintString(aligned bool) string {
	outstr := ""
	for i, f := range t.Fields {
		str := ""
		switch f := f.(type) {
		case IntField:
			str = strconv.FormatInt(f.Value, 10)
		case StringField:
			str = f.Value
		}
		if aligned {
			outstr = fmt.Sprintf("%s %s", outstr, fmtCol(str, len(t.Fields)))
		} else {
			sep := ","
			if i == 0 {
				sep = ""
			}
			outstr = fmt.Sprintf("%s%s%s", outstr, sep, str)
		}
	}
	return outstr
}
