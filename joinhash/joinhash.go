// Package joinhash implements the join hash table used by the hash-join
// query operator: an in-memory, open-chained hash table keyed on one
// attribute value per record, storing record identifiers for later
// fetching through the buffer pool.
package joinhash

import (
	"bytes"
	"encoding/binary"
	"math"
)

// AttrType is the join attribute's type.
type AttrType int

const (
	Integer AttrType = iota
	Float
	String
)

// AttrDesc describes the join attribute within a record: its byte offset,
// its length (meaningful only for String), and its type.
type AttrDesc struct {
	Offset int
	Len    int
	Type   AttrType
}

// RID is a record identifier, opaque to the hash table — it is whatever the
// caller hands in, passed through unexamined.
type RID struct {
	PageNo int64
	SlotNo int
}

type bucket struct {
	key  []byte // raw bytes of the attribute value, owned copy
	rid  RID
	next *bucket
}

// Table is an in-memory hash table built from one side of a join and
// probed once per row of the other side. It owns its buckets and any
// string copies; it borrows nothing from the caller.
type Table struct {
	htsize int
	attr   AttrDesc
	chains []*bucket
	counts []int
}

// New allocates a hash table of htsize chain heads for the given join
// attribute descriptor.
func New(htsize int, attr AttrDesc) *Table {
	if htsize < 1 {
		htsize = 1
	}
	return &Table{
		htsize: htsize,
		attr:   attr,
		chains: make([]*bucket, htsize),
		counts: make([]int, htsize),
	}
}

// hash mixes the table size into the attribute value to scatter small
// integers across buckets instead of clustering them in the low end of the
// range; the final index is |value| mod htsize.
func (t *Table) hash(key []byte) int {
	var value int64
	switch t.attr.Type {
	case Integer:
		v := int64(int32(binary.BigEndian.Uint32(key)))
		value = v*31 + int64(t.htsize)
	case Float:
		bits := binary.BigEndian.Uint32(key)
		f := math.Float32frombits(bits)
		value = int64(f*float32(t.htsize)) * 31
	case String:
		for _, c := range key {
			value = 31*value + int64(c)
		}
	}
	if value < 0 {
		value = -value
	}
	return int(value % int64(t.htsize))
}

// Extract pulls the join attribute's bytes out of a raw on-disk record
// using Offset/Len. Callers working with already-decoded in-memory tuples
// (one []byte per column) do not need Extract — they already have the
// column's bytes.
func (a AttrDesc) Extract(record []byte) []byte {
	switch a.Type {
	case Integer, Float:
		return record[a.Offset : a.Offset+4]
	default:
		return record[a.Offset : a.Offset+a.Len]
	}
}

// Build hashes key and prepends a new bucket to that chain, copying key by
// value so the table never holds a reference into the caller's buffer.
// key must already be the extracted attribute value (see AttrDesc.Extract),
// matching Probe's key-based contract.
func (t *Table) Build(key []byte, rid RID) {
	idx := t.hash(key)

	owned := make([]byte, len(key))
	copy(owned, key)

	t.chains[idx] = &bucket{key: owned, rid: rid, next: t.chains[idx]}
	t.counts[idx]++
}

// Probe hashes key and walks its chain, appending the rid of every bucket
// whose stored key matches by the type's natural equality. Chains prepend,
// so matches are returned in reverse insertion order; duplicate keys on the
// build side yield duplicate rids back to the caller.
func (t *Table) Probe(key []byte) []RID {
	idx := t.hash(key)
	out := make([]RID, 0, t.counts[idx])
	for b := t.chains[idx]; b != nil; b = b.next {
		if bytes.Equal(b.key, key) {
			out = append(out, b.rid)
		}
	}
	return out
}

// Close releases all bucket storage (including owned key copies) and the
// bucket-head array. The Go garbage collector does the actual reclamation;
// Close exists so a Table has an explicit end of its one-hash-join
// lifetime rather than lingering referenced until its next GC cycle.
func (t *Table) Close() {
	t.chains = nil
	t.counts = nil
}
