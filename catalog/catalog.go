// Package catalog is the minimal system catalog: it remembers, across
// process restarts, which heap file backs each table and what columns that
// table has. It stores its own bookkeeping in an ordinary heap file,
// encoded the same way as any other row, and rebuilds its in-memory name
// index by scanning that file once at Open time.
package catalog

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/minirel-go/minirel/bufpool"
	"github.com/minirel-go/minirel/heap"
	"github.com/minirel-go/minirel/pagefile"
	"github.com/minirel-go/minirel/tuple"
)

var (
	// ErrTableNotFound is returned by Lookup for an unknown table name.
	ErrTableNotFound = errors.New("catalog: table not found")
	// ErrTableExists is returned by CreateTable for a name already registered.
	ErrTableExists = errors.New("catalog: table already exists")
)

// ColumnType is the closed set of column types the catalog records.
type ColumnType int

const (
	ColumnTypeInt ColumnType = iota
	ColumnTypeVarchar
	ColumnTypeFloat
)

func (ct ColumnType) String() string {
	switch ct {
	case ColumnTypeInt:
		return "INT"
	case ColumnTypeVarchar:
		return "VARCHAR"
	case ColumnTypeFloat:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name string
	Type ColumnType
	Size int // meaningful for Varchar only
}

// TableSchema is everything the catalog knows about one table: where its
// heap file's head page lives and what its columns are.
type TableSchema struct {
	Name    string
	Head    pagefile.PageNo
	Columns []ColumnDef
}

// ColumnIndex returns the position of name within schema's columns, or -1.
func (s *TableSchema) ColumnIndex(name string) int {
	idx := lo.IndexOf(lo.Map(s.Columns, func(c ColumnDef, _ int) string { return c.Name }), name)
	return idx
}

// Catalog is a single heap file of encoded catalog rows plus an in-memory
// name index, built by scanning that heap file once at Open time.
type Catalog struct {
	pool    *bufpool.Pool
	file    bufpool.File
	records *heap.Heap
	byName  map[string]*TableSchema
}

// Create formats a brand-new, empty catalog heap file.
func Create(pool *bufpool.Pool, file bufpool.File) (*Catalog, error) {
	h, err := heap.Create(pool, file)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create")
	}
	return &Catalog{pool: pool, file: file, records: h, byName: map[string]*TableSchema{}}, nil
}

// Open reattaches to a catalog heap file rooted at head and rebuilds the
// in-memory name index by scanning it once.
func Open(pool *bufpool.Pool, file bufpool.File, head pagefile.PageNo) (*Catalog, error) {
	c := &Catalog{pool: pool, file: file, records: heap.Open(pool, file, head), byName: map[string]*TableSchema{}}
	err := c.records.Scan(func(_ heap.RID, rec []byte) error {
		schema, decodeErr := decodeSchema(rec)
		if decodeErr != nil {
			return decodeErr
		}
		c.byName[schema.Name] = schema
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open: rebuild index")
	}
	return c, nil
}

// HeadPage returns the catalog heap file's head page, for persisting
// alongside the data file's own bootstrap page.
func (c *Catalog) HeadPage() pagefile.PageNo { return c.records.HeadPage() }

// CreateTable allocates a fresh heap file for tableName (in tableFile,
// typically another pagefile.File opened by the caller) and records its
// schema in the catalog.
func (c *Catalog) CreateTable(tableName string, columns []ColumnDef, tableFile bufpool.File) (*TableSchema, error) {
	if _, exists := c.byName[tableName]; exists {
		return nil, ErrTableExists
	}

	dataHeap, err := heap.Create(c.pool, tableFile)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create table: allocate heap")
	}

	schema := &TableSchema{Name: tableName, Head: dataHeap.HeadPage(), Columns: columns}
	if _, err := c.records.Insert(encodeSchema(schema)); err != nil {
		return nil, errors.Wrap(err, "catalog: create table: persist schema")
	}
	c.byName[tableName] = schema
	return schema, nil
}

// Lookup returns the schema registered for tableName.
func (c *Catalog) Lookup(tableName string) (*TableSchema, error) {
	schema, ok := c.byName[tableName]
	if !ok {
		return nil, ErrTableNotFound
	}
	return schema, nil
}

// encodeSchema serializes a TableSchema as a memcmpable-encoded tuple:
// [name, head_page, column_count, (name, type, size)...].
func encodeSchema(s *TableSchema) []byte {
	elems := make([][]byte, 0, 3+3*len(s.Columns))
	elems = append(elems, []byte(s.Name), int64Bytes(int64(s.Head)), int64Bytes(int64(len(s.Columns))))
	for _, col := range s.Columns {
		elems = append(elems, []byte(col.Name), int64Bytes(int64(col.Type)), int64Bytes(int64(col.Size)))
	}
	var out []byte
	tuple.Encode(elems, &out)
	return out
}

func decodeSchema(rec []byte) (*TableSchema, error) {
	var elems [][]byte
	tuple.Decode(rec, &elems)
	if len(elems) < 3 {
		return nil, errors.New("catalog: malformed schema record")
	}
	name := string(elems[0])
	head := pagefile.PageNo(bytesInt64(elems[1]))
	count := int(bytesInt64(elems[2]))

	expected := 3 + 3*count
	if len(elems) != expected {
		return nil, errors.New("catalog: malformed schema record: column count mismatch")
	}

	columns := make([]ColumnDef, count)
	for i := 0; i < count; i++ {
		base := 3 + 3*i
		columns[i] = ColumnDef{
			Name: string(elems[base]),
			Type: ColumnType(bytesInt64(elems[base+1])),
			Size: int(bytesInt64(elems[base+2])),
		}
	}
	return &TableSchema{Name: name, Head: head, Columns: columns}, nil
}

func int64Bytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func bytesInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
