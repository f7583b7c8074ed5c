package query

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minirel-go/minirel/bufpool"
	"github.com/minirel-go/minirel/heap"
	"github.com/minirel-go/minirel/joinhash"
	"github.com/minirel-go/minirel/pagefile"
	"github.com/minirel-go/minirel/tuple"
)

func newTestTable(t *testing.T, rows [][]byte) *heap.Heap {
	t.Helper()
	tmp, err := os.CreateTemp("", "query_*.db")
	require.NoError(t, err)
	tmp.Close()
	t.Cleanup(func() { os.Remove(tmp.Name()) })

	f, err := pagefile.Open(tmp.Name())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	pool, err := bufpool.New(4)
	require.NoError(t, err)

	h, err := heap.Create(pool, f)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := h.Insert(r)
		require.NoError(t, err)
	}
	return h
}

func encodeRow(cols ...string) []byte {
	elems := make([][]byte, len(cols))
	for i, c := range cols {
		elems[i] = []byte(c)
	}
	var out []byte
	tuple.Encode(elems, &out)
	return out
}

func peopleTable(t *testing.T) *heap.Heap {
	return newTestTable(t, [][]byte{
		encodeRow("1", "Alice", "Smith", "30"),
		encodeRow("2", "Bob", "Johnson", "25"),
		encodeRow("3", "Charlie", "Williams", "35"),
	})
}

func drain(t *testing.T, exec Executor) []Tuple {
	t.Helper()
	var out []Tuple
	for {
		tup, ok, err := exec.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, tup)
	}
	return out
}

func TestSeqScanYieldsAllRows(t *testing.T) {
	table := peopleTable(t)
	exec, err := (&SeqScan{Table: table}).Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Len(t, rows, 3)
	require.Equal(t, []byte("Alice"), rows[0][1])
}

func TestProjectSingleColumn(t *testing.T) {
	table := peopleTable(t)
	project := &Project{
		InnerPlan:     &SeqScan{Table: table},
		ColumnIndices: []int{1},
	}
	exec, err := project.Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Equal(t, []Tuple{{[]byte("Alice")}, {[]byte("Bob")}, {[]byte("Charlie")}}, rows)
}

func TestProjectColumnsInDifferentOrder(t *testing.T) {
	table := peopleTable(t)
	project := &Project{
		InnerPlan:     &SeqScan{Table: table},
		ColumnIndices: []int{2, 1},
	}
	exec, err := project.Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Equal(t, []Tuple{
		{[]byte("Smith"), []byte("Alice")},
		{[]byte("Johnson"), []byte("Bob")},
		{[]byte("Williams"), []byte("Charlie")},
	}, rows)
}

func TestProjectOutOfRangeColumnYieldsEmpty(t *testing.T) {
	table := peopleTable(t)
	project := &Project{
		InnerPlan:     &SeqScan{Table: table},
		ColumnIndices: []int{1, 10},
	}
	exec, err := project.Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Len(t, row, 2)
		require.NotEmpty(t, row[0])
		require.Empty(t, row[1])
	}
}

func TestProjectWithFilter(t *testing.T) {
	table := peopleTable(t)
	filter := &Filter{
		InnerPlan: &SeqScan{Table: table},
		Cond: func(tup Tuple) bool {
			return len(tup) > 3 && string(tup[3]) >= "30"
		},
	}
	project := &Project{InnerPlan: filter, ColumnIndices: []int{1, 2}}
	exec, err := project.Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Equal(t, []Tuple{
		{[]byte("Alice"), []byte("Smith")},
		{[]byte("Charlie"), []byte("Williams")},
	}, rows)
}

// Build on 3 customers keyed {1,5,9} and probe with 4 orders whose
// customer_id is {1,5,9,5}; every order joins its one customer, and Bob
// (customer 5) is joined with exactly the two orders 101 and 103.
func TestHashJoinMatchesOnEqualKeys(t *testing.T) {
	customers := newTestTable(t, [][]byte{
		encodeRow("1", "Alice"),
		encodeRow("5", "Bob"),
		encodeRow("9", "Carol"),
	})
	orders := newTestTable(t, [][]byte{
		encodeRow("100", "1"),
		encodeRow("101", "5"),
		encodeRow("102", "9"),
		encodeRow("103", "5"),
	})

	join := &HashJoin{
		BuildPlan: &SeqScan{Table: customers},
		BuildAttr: joinhash.AttrDesc{Offset: 0, Type: joinhash.String},
		ProbePlan: &SeqScan{Table: orders},
		ProbeAttr: joinhash.AttrDesc{Offset: 1, Type: joinhash.String},
		HTSize:    4,
	}
	exec, err := join.Start()
	require.NoError(t, err)

	rows := drain(t, exec)
	require.Len(t, rows, 4)

	var bobOrders [][]byte
	for _, row := range rows {
		// row = [order_id, order_customer_id, customer_id, customer_name]
		if string(row[3]) == "Bob" {
			bobOrders = append(bobOrders, row[0])
		}
	}
	require.ElementsMatch(t, [][]byte{[]byte("101"), []byte("103")}, bobOrders)
}

func TestHashJoinNoMatchesYieldsNothing(t *testing.T) {
	left := newTestTable(t, [][]byte{encodeRow("1")})
	right := newTestTable(t, [][]byte{encodeRow("2")})

	join := &HashJoin{
		BuildPlan: &SeqScan{Table: left},
		BuildAttr: joinhash.AttrDesc{Offset: 0, Type: joinhash.String},
		ProbePlan: &SeqScan{Table: right},
		ProbeAttr: joinhash.AttrDesc{Offset: 0, Type: joinhash.String},
		HTSize:    4,
	}
	exec, err := join.Start()
	require.NoError(t, err)
	require.Empty(t, drain(t, exec))
}
