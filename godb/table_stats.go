package godb

// Per-table statistics for the query optimizer: one histogram per column
// for selectivity estimation, a HyperLogLog sketch per column for
// distinct-value counts, and the page count for scan costing.

import (
	"encoding/binary"
	"fmt"

	boom "github.com/tylertreat/BoomFilters"
)

// NumHistBuckets is the bucket count used for every column histogram.
const NumHistBuckets = 100

// hllErrorRate bounds the relative error of distinct-value estimates.
const hllErrorRate = 0.01

type TableStats struct {
	td         *TupleDesc
	numTuples  int
	numPages   int
	ioCostPage int

	intHists map[string]*IntHistogram
	strHists map[string]*StringHistogram
	distinct map[string]*boom.HyperLogLog
}

// ComputeTableStats scans the file twice under its own transaction:
// once to find each integer column's range, and once to populate the
// histograms and distinct-value sketches.
func ComputeTableStats(f *HeapFile, bp *BufferPool, ioCostPerPage int) (*TableStats, error) {
	td := f.Descriptor()
	stats := &TableStats{
		td:         td,
		numPages:   f.NumPages(),
		ioCostPage: ioCostPerPage,
		intHists:   make(map[string]*IntHistogram),
		strHists:   make(map[string]*StringHistogram),
		distinct:   make(map[string]*boom.HyperLogLog),
	}

	tid := NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		return nil, err
	}

	mins := make(map[string]int64)
	maxs := make(map[string]int64)
	err := scanTuples(f, tid, func(t *Tuple) {
		stats.numTuples++
		for i, ft := range td.Fields {
			v, ok := t.Fields[i].(IntField)
			if !ok {
				continue
			}
			if cur, seen := mins[ft.Fname]; !seen || v.Value < cur {
				mins[ft.Fname] = v.Value
			}
			if cur, seen := maxs[ft.Fname]; !seen || v.Value > cur {
				maxs[ft.Fname] = v.Value
			}
		}
	})
	if err != nil {
		bp.AbortTransaction(tid)
		return nil, err
	}

	for _, ft := range td.Fields {
		switch ft.Ftype {
		case IntType:
			min, max := mins[ft.Fname], maxs[ft.Fname]
			hist, err := NewIntHistogram(NumHistBuckets, min, max)
			if err != nil {
				bp.AbortTransaction(tid)
				return nil, err
			}
			stats.intHists[ft.Fname] = hist
		case StringType:
			hist, err := NewStringHistogram(NumHistBuckets)
			if err != nil {
				bp.AbortTransaction(tid)
				return nil, err
			}
			stats.strHists[ft.Fname] = hist
		}
		hll, err := boom.NewDefaultHyperLogLog(hllErrorRate)
		if err != nil {
			bp.AbortTransaction(tid)
			return nil, err
		}
		stats.distinct[ft.Fname] = hll
	}

	err = scanTuples(f, tid, func(t *Tuple) {
		for i, ft := range td.Fields {
			switch v := t.Fields[i].(type) {
			case IntField:
				stats.intHists[ft.Fname].AddValue(v.Value)
				// the sketch indexes registers by the top bits of a
				// 32-bit FNV-1 hash, which the last input byte barely
				// reaches; scramble the value so every key byte varies
				x := uint64(v.Value)
				x ^= x >> 30
				x *= 0xbf58476d1ce4e5b9
				x ^= x >> 27
				x *= 0x94d049bb133111eb
				x ^= x >> 31
				var key [8]byte
				binary.BigEndian.PutUint64(key[:], x)
				stats.distinct[ft.Fname].Add(key[:])
			case StringField:
				stats.strHists[ft.Fname].AddValue(v.Value)
				stats.distinct[ft.Fname].Add([]byte(v.Value))
			}
		}
	})
	if err != nil {
		bp.AbortTransaction(tid)
		return nil, err
	}

	bp.CommitTransaction(tid)
	return stats, nil
}

func scanTuples(f *HeapFile, tid TransactionID, visit func(*Tuple)) error {
	iter, err := f.Iterator(tid)
	if err != nil {
		return err
	}
	for {
		t, err := iter()
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		visit(t)
	}
}

// EstimateSelectivity returns the estimated fraction of the table's
// tuples satisfying (field op v).
func (s *TableStats) EstimateSelectivity(field string, op BoolOp, v DBValue) (float64, error) {
	switch c := v.(type) {
	case IntField:
		hist, ok := s.intHists[field]
		if !ok {
			return 0, GoDBError{IncompatibleTypesError, fmt.Sprintf("no integer histogram for field %s", field)}
		}
		return hist.EstimateSelectivity(op, c.Value), nil
	case StringField:
		hist, ok := s.strHists[field]
		if !ok {
			return 0, GoDBError{IncompatibleTypesError, fmt.Sprintf("no string histogram for field %s", field)}
		}
		return hist.EstimateSelectivity(op, c.Value), nil
	}
	return 0, GoDBError{TypeMismatchError, fmt.Sprintf("unsupported constant type %T", v)}
}

// EstimateScanCost returns the cost of a full sequential scan: one page
// read per page in the file.
func (s *TableStats) EstimateScanCost() float64 {
	return float64(s.numPages) * float64(s.ioCostPage)
}

// EstimateTableCardinality returns the expected number of tuples a scan
// with the given selectivity produces.
func (s *TableStats) EstimateTableCardinality(selectivity float64) int {
	return int(float64(s.numTuples) * selectivity)
}

// DistinctValues returns the estimated number of distinct values in the
// named column.
func (s *TableStats) DistinctValues(field string) (uint64, error) {
	hll, ok := s.distinct[field]
	if !ok {
		return 0, GoDBError{IncompatibleTypesError, fmt.Sprintf("no statistics for field %s", field)}
	}
	return hll.Count(), nil
}

// TotalTuples returns the number of tuples seen by the stats scan.
func (s *TableStats) TotalTuples() int {
	return s.numTuples
}
