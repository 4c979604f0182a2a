package godb

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/d4l3k/messagediff"
)

func TestTupleDescEquals(t *testing.T) {
	td1 := TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: StringType},
		{Fname: "age", Ftype: IntType},
	}}
	// same types, different names: equal
	td2 := TupleDesc{Fields: []FieldType{
		{Fname: "n", TableQualifier: "t", Ftype: StringType},
		{Fname: "a", Ftype: IntType},
	}}
	td3 := TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: IntType},
		{Fname: "age", Ftype: IntType},
	}}

	if !td1.equals(&td2) {
		t.Errorf("descriptors with equal type sequences should be equal")
	}
	if td1.equals(&td3) {
		t.Errorf("descriptors with different type sequences should not be equal")
	}
	if td1.equals(&TupleDesc{Fields: td1.Fields[:1]}) {
		t.Errorf("descriptors of different length should not be equal")
	}
}

func TestTupleDescMergeAndCopy(t *testing.T) {
	td1 := TupleDesc{Fields: []FieldType{{Fname: "a", Ftype: IntType}}}
	td2 := TupleDesc{Fields: []FieldType{{Fname: "b", Ftype: StringType}}}

	merged := td1.merge(&td2)
	if len(merged.Fields) != 2 || merged.Fields[0].Fname != "a" || merged.Fields[1].Fname != "b" {
		t.Errorf("merge should concatenate fields in order")
	}
	if merged.bytesPerTuple() != 4+StringLength {
		t.Errorf("merged tuple size should be the sum of field widths")
	}

	cp := td1.copy()
	cp.Fields[0].Fname = "renamed"
	if td1.Fields[0].Fname != "a" {
		t.Errorf("mutating a copy should not affect the original")
	}
}

func TestTupleSerialization(t *testing.T) {
	td := TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: StringType},
		{Fname: "age", Ftype: IntType},
	}}
	in := Tuple{Desc: td, Fields: []DBValue{StringField{"sam"}, IntField{-25}}}

	var buf bytes.Buffer
	if err := in.writeTo(&buf); err != nil {
		t.Fatalf(err.Error())
	}
	if buf.Len() != td.bytesPerTuple() {
		t.Fatalf("serialized tuple is %d bytes, expected %d", buf.Len(), td.bytesPerTuple())
	}

	// string layout: 4 byte big-endian length, then content, then zeros
	raw := buf.Bytes()
	if n := binary.BigEndian.Uint32(raw[:4]); n != 3 {
		t.Errorf("expected string length prefix 3, got %d", n)
	}
	if string(raw[4:7]) != "sam" {
		t.Errorf("string content not at expected offset")
	}
	for _, b := range raw[7:StringLength] {
		if b != 0 {
			t.Errorf("string padding should be zero")
			break
		}
	}
	// integer is big-endian two's complement at the end
	if got := int32(binary.BigEndian.Uint32(raw[StringLength:])); got != -25 {
		t.Errorf("expected -25, got %d", got)
	}

	out, err := readTupleFrom(&buf, &td)
	if err != nil {
		t.Fatalf(err.Error())
	}
	if diff, equal := messagediff.PrettyDiff(in.Fields, out.Fields); !equal {
		t.Errorf("round trip changed the tuple: %s", diff)
	}
}

func TestTupleJoinAndProject(t *testing.T) {
	td1 := TupleDesc{Fields: []FieldType{{Fname: "a", Ftype: IntType}}}
	td2 := TupleDesc{Fields: []FieldType{{Fname: "b", Ftype: StringType}}}
	t1 := Tuple{Desc: td1, Fields: []DBValue{IntField{1}}}
	t2 := Tuple{Desc: td2, Fields: []DBValue{StringField{"x"}}}

	joined := joinTuples(&t1, &t2)
	if len(joined.Fields) != 2 {
		t.Fatalf("joined tuple should have 2 fields")
	}

	proj, err := joined.project([]FieldType{{Fname: "b"}})
	if err != nil {
		t.Fatalf(err.Error())
	}
	if len(proj.Fields) != 1 || proj.Fields[0] != (StringField{"x"}) {
		t.Errorf("projection should extract the named field")
	}

	if _, err := joined.project([]FieldType{{Fname: "missing"}}); err == nil {
		t.Errorf("projecting a missing field should fail")
	}
}

func TestTupleCompareField(t *testing.T) {
	td := TupleDesc{Fields: []FieldType{{Fname: "v", Ftype: IntType}}}
	lo := Tuple{Desc: td, Fields: []DBValue{IntField{3}}}
	hi := Tuple{Desc: td, Fields: []DBValue{IntField{8}}}
	f := NewFieldExpr(td.Fields[0])

	if got, err := lo.compareField(&hi, f); err != nil || got != OrderedLessThan {
		t.Errorf("3 should order below 8")
	}
	if got, err := hi.compareField(&lo, f); err != nil || got != OrderedGreaterThan {
		t.Errorf("8 should order above 3")
	}
	if got, err := lo.compareField(&lo, f); err != nil || got != OrderedEqual {
		t.Errorf("a tuple should order equal to itself")
	}
}

func TestEvalPred(t *testing.T) {
	a, b := IntField{3}, IntField{5}
	if !a.EvalPred(b, OpLt) || a.EvalPred(b, OpGt) || !a.EvalPred(b, OpNeq) {
		t.Errorf("integer predicate evaluation is wrong")
	}
	s := StringField{"database"}
	if !s.EvalPred(StringField{"data%"}, OpLike) {
		t.Errorf("prefix LIKE should match")
	}
	if !s.EvalPred(StringField{"%base"}, OpLike) {
		t.Errorf("suffix LIKE should match")
	}
	if s.EvalPred(StringField{"%xyz%"}, OpLike) {
		t.Errorf("non-matching LIKE should not match")
	}
	// comparing across types is false, not an error
	if a.EvalPred(s, OpEq) {
		t.Errorf("cross-type comparison should be false")
	}
}

func TestTupleStringTruncation(t *testing.T) {
	td := TupleDesc{Fields: []FieldType{{Fname: "s", Ftype: StringType}}}
	long := make([]byte, StringLength*2)
	for i := range long {
		long[i] = 'a'
	}
	in := Tuple{Desc: td, Fields: []DBValue{StringField{string(long)}}}

	var buf bytes.Buffer
	if err := in.writeTo(&buf); err != nil {
		t.Fatalf(err.Error())
	}
	out, err := readTupleFrom(&buf, &td)
	if err != nil {
		t.Fatalf(err.Error())
	}
	got := out.Fields[0].(StringField).Value
	if len(got) != StringLength-4 {
		t.Errorf("over-long strings should be truncated to %d bytes, got %d", StringLength-4, len(got))
	}
}
