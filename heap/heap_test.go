package heap

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minirel-go/minirel/bufpool"
	"github.com/minirel-go/minirel/pagefile"
)

func newTestHeap(t *testing.T, nFrames int) (*Heap, *pagefile.File, *bufpool.Pool) {
	t.Helper()
	tmp, err := os.CreateTemp("", "heap_*.db")
	require.NoError(t, err)
	tmp.Close()
	t.Cleanup(func() { os.Remove(tmp.Name()) })

	f, err := pagefile.Open(tmp.Name())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	pool, err := bufpool.New(nFrames)
	require.NoError(t, err)

	h, err := Create(pool, f)
	require.NoError(t, err)
	return h, f, pool
}

func TestInsertFetchRoundTrip(t *testing.T) {
	h, _, _ := newTestHeap(t, 4)

	rid, err := h.Insert([]byte("row one"))
	require.NoError(t, err)

	got, err := h.Fetch(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("row one"), got)
}

func TestDeleteTombstonesRID(t *testing.T) {
	h, _, _ := newTestHeap(t, 4)

	rid, err := h.Insert([]byte("gone soon"))
	require.NoError(t, err)
	require.NoError(t, h.Delete(rid))

	_, err = h.Fetch(rid)
	require.ErrorIs(t, err, ErrTombstoned)

	err = h.Delete(rid)
	require.ErrorIs(t, err, ErrTombstoned)
}

func TestInsertOverflowsToNewPage(t *testing.T) {
	h, _, _ := newTestHeap(t, 2)

	rids := make([]RID, 0, 300)
	for i := 0; i < 300; i++ {
		rid, err := h.Insert([]byte(fmt.Sprintf("record-%04d", i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	pages := map[pagefile.PageNo]bool{}
	for _, r := range rids {
		pages[r.Page] = true
	}
	require.Greater(t, len(pages), 1, "300 records must overflow beyond the head page")

	for i, r := range rids {
		got, err := h.Fetch(r)
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("record-%04d", i)), got)
	}
}

func TestScanYieldsEveryLiveRecordOnce(t *testing.T) {
	h, _, _ := newTestHeap(t, 3)

	var rids []RID
	for i := 0; i < 50; i++ {
		rid, err := h.Insert([]byte(fmt.Sprintf("r%02d", i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.NoError(t, h.Delete(rids[10]))
	require.NoError(t, h.Delete(rids[20]))

	seen := map[RID][]byte{}
	err := h.Scan(func(rid RID, rec []byte) error {
		seen[rid] = append([]byte(nil), rec...)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 48)
	require.NotContains(t, seen, rids[10])
	require.NotContains(t, seen, rids[20])
	require.Equal(t, []byte("r05"), seen[rids[5]])
}

func TestScanStopsOnYieldError(t *testing.T) {
	h, _, _ := newTestHeap(t, 3)
	for i := 0; i < 5; i++ {
		_, err := h.Insert([]byte(fmt.Sprintf("r%d", i)))
		require.NoError(t, err)
	}

	stop := fmt.Errorf("stop here")
	count := 0
	err := h.Scan(func(rid RID, rec []byte) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, count)
}

func TestCursorMatchesScan(t *testing.T) {
	h, _, _ := newTestHeap(t, 3)
	for i := 0; i < 40; i++ {
		_, err := h.Insert([]byte(fmt.Sprintf("c%02d", i)))
		require.NoError(t, err)
	}

	cur := h.NewCursor()
	var got [][]byte
	for {
		_, rec, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, rec)
	}
	require.Len(t, got, 40)
	require.Equal(t, []byte("c00"), got[0])
	require.Equal(t, []byte("c39"), got[39])

	var scanned [][]byte
	require.NoError(t, h.Scan(func(_ RID, rec []byte) error {
		scanned = append(scanned, append([]byte(nil), rec...))
		return nil
	}))
	require.Equal(t, scanned, got)
}

func TestOpenReattachesToExistingHeadPage(t *testing.T) {
	h, f, pool := newTestHeap(t, 4)
	rid, err := h.Insert([]byte("persisted"))
	require.NoError(t, err)

	reopened := Open(pool, f, h.HeadPage())
	got, err := reopened.Fetch(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}
