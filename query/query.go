// Package query provides the query execution operators that sit on top of
// the heap file and join hash table layers: sequential scan, filter,
// project, and hash join. Plan nodes describe what to run; executors are
// the pull-based iterators that actually run it, one tuple at a time.
package query

import (
	"github.com/samber/lo"

	"github.com/minirel-go/minirel/heap"
	"github.com/minirel-go/minirel/joinhash"
	"github.com/minirel-go/minirel/tuple"
)

// Tuple represents a database record as a slice of column values.
type Tuple = [][]byte

// Executor pulls tuples one at a time from a running plan.
type Executor interface {
	// Next returns the next tuple. Returns (nil, false, nil) once exhausted.
	Next() (Tuple, bool, error)
}

// PlanNode describes a query operator; Start begins execution.
type PlanNode interface {
	Start() (Executor, error)
}

// SeqScan scans every live record of Table, decoding each as a tuple and
// keeping only those for which WhileCond returns true. A nil WhileCond
// keeps every record.
type SeqScan struct {
	Table     *heap.Heap
	WhileCond func(Tuple) bool
}

func (ss *SeqScan) Start() (Executor, error) {
	return &execSeqScan{cursor: ss.Table.NewCursor(), whileCond: ss.WhileCond}, nil
}

type execSeqScan struct {
	cursor    *heap.Cursor
	whileCond func(Tuple) bool
}

func (e *execSeqScan) Next() (Tuple, bool, error) {
	for {
		_, rec, ok, err := e.cursor.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		var t Tuple
		tuple.Decode(rec, &t)
		if e.whileCond != nil && !e.whileCond(t) {
			continue
		}
		return t, true, nil
	}
}

// Filter drops tuples from InnerPlan for which Cond returns false.
type Filter struct {
	InnerPlan PlanNode
	Cond      func(Tuple) bool
}

func (f *Filter) Start() (Executor, error) {
	inner, err := f.InnerPlan.Start()
	if err != nil {
		return nil, err
	}
	return &execFilter{inner: inner, cond: f.Cond}, nil
}

type execFilter struct {
	inner Executor
	cond  func(Tuple) bool
}

func (e *execFilter) Next() (Tuple, bool, error) {
	for {
		t, ok, err := e.inner.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if e.cond(t) {
			return t, true, nil
		}
	}
}

// Project reorders/narrows InnerPlan's tuples to ColumnIndices. An
// out-of-range index yields an empty column rather than an error.
type Project struct {
	InnerPlan     PlanNode
	ColumnIndices []int
}

func (p *Project) Start() (Executor, error) {
	inner, err := p.InnerPlan.Start()
	if err != nil {
		return nil, err
	}
	return &execProject{inner: inner, columnIndices: p.ColumnIndices}, nil
}

type execProject struct {
	inner         Executor
	columnIndices []int
}

func (e *execProject) Next() (Tuple, bool, error) {
	in, ok, err := e.inner.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := lo.Map(e.columnIndices, func(colIdx int, _ int) []byte {
		if colIdx < 0 || colIdx >= len(in) {
			return []byte{}
		}
		return append([]byte(nil), in[colIdx]...)
	})
	return out, true, nil
}

// HashJoin is the equi-join operator: it builds a joinhash.Table from
// BuildPlan keyed on BuildAttr, then for each ProbePlan tuple probes that
// table and emits one concatenated output tuple per match.
type HashJoin struct {
	BuildPlan PlanNode
	BuildAttr joinhash.AttrDesc
	ProbePlan PlanNode
	ProbeAttr joinhash.AttrDesc
	HTSize    int
}

func (hj *HashJoin) Start() (Executor, error) {
	buildExec, err := hj.BuildPlan.Start()
	if err != nil {
		return nil, err
	}

	htsize := hj.HTSize
	if htsize < 1 {
		htsize = 1
	}
	table := joinhash.New(htsize, hj.BuildAttr)

	var built []Tuple
	for {
		t, ok, err := buildExec.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		// The build side here is an in-memory tuple stream, not a heap file,
		// so there is no real RID to hand the hash table: PageNo is repurposed
		// as the index into built, SlotNo unused.
		rid := joinhash.RID{PageNo: int64(len(built)), SlotNo: 0}
		table.Build(encodeAttr(t, hj.BuildAttr), rid)
		built = append(built, t)
	}

	probeExec, err := hj.ProbePlan.Start()
	if err != nil {
		table.Close()
		return nil, err
	}

	return &execHashJoin{
		table:     table,
		built:     built,
		probeAttr: hj.ProbeAttr,
		probe:     probeExec,
	}, nil
}

// encodeAttr pulls the join column's bytes out of a decoded tuple. Here
// AttrDesc.Offset is repurposed as a column index rather than a byte
// offset into a raw record (contrast joinhash.AttrDesc.Extract, which reads
// raw on-disk records); build and probe sides must agree on that index.
func encodeAttr(t Tuple, attr joinhash.AttrDesc) []byte {
	if attr.Offset < 0 || attr.Offset >= len(t) {
		return nil
	}
	return t[attr.Offset]
}

type execHashJoin struct {
	table     *joinhash.Table
	built     []Tuple
	probeAttr joinhash.AttrDesc
	probe     Executor

	pending  []joinhash.RID
	probeTup Tuple
}

func (e *execHashJoin) Next() (Tuple, bool, error) {
	for {
		if len(e.pending) > 0 {
			rid := e.pending[0]
			e.pending = e.pending[1:]
			matched := e.built[rid.PageNo]
			out := make(Tuple, 0, len(e.probeTup)+len(matched))
			out = append(out, e.probeTup...)
			out = append(out, matched...)
			return out, true, nil
		}

		t, ok, err := e.probe.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			e.table.Close()
			return nil, false, nil
		}
		e.probeTup = t
		e.pending = e.table.Probe(encodeAttr(t, e.probeAttr))
	}
}
