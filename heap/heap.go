package heap

import (
	"github.com/pkg/errors"

	"github.com/minirel-go/minirel/bufpool"
	"github.com/minirel-go/minirel/pagefile"
)

// ErrTombstoned is returned by Fetch for a RID whose record has been
// deleted.
var ErrTombstoned = errors.New("heap: record tombstoned")

// ErrRecordTooLarge is returned by Insert when a single record cannot fit
// on an empty page (heap files never split a record across pages).
var ErrRecordTooLarge = errors.New("heap: record larger than one page")

// RID identifies a record by the page it lives on and its slot within that
// page's pointer array. Once issued, a RID is stable for the life of the
// record: it is never reused or renumbered, so a caller may hold one
// across later inserts and deletes in the same heap file.
type RID struct {
	Page pagefile.PageNo
	Slot int
}

// Heap is an unordered, singly-linked chain of slotted pages holding
// variable-length records, read and written only through a bufpool.Pool.
// Records are appended to the first page with room; once the chain fills,
// a new page is allocated and linked on instead of reorganizing existing
// pages.
type Heap struct {
	pool *bufpool.Pool
	file bufpool.File
	head pagefile.PageNo
}

// Create allocates the heap file's first page and returns a Heap rooted at
// it.
func Create(pool *bufpool.Pool, file bufpool.File) (*Heap, error) {
	pageNo, buf, err := pool.AllocPage(file)
	if err != nil {
		return nil, errors.Wrap(err, "heap: create")
	}
	newPage(buf).init(int64(pagefile.InvalidPageNo))
	if err := pool.UnpinPage(file, pageNo, true); err != nil {
		return nil, errors.Wrap(err, "heap: create: unpin")
	}
	return &Heap{pool: pool, file: file, head: pageNo}, nil
}

// Open reopens a heap file whose first page is already known, e.g. from the
// catalog.
func Open(pool *bufpool.Pool, file bufpool.File, head pagefile.PageNo) *Heap {
	return &Heap{pool: pool, file: file, head: head}
}

// HeadPage returns the page number the catalog should persist to reopen
// this heap file later.
func (h *Heap) HeadPage() pagefile.PageNo { return h.head }

// Insert appends record to the first page (starting at the head) with
// enough free space, allocating and linking a new page if none has room.
func (h *Heap) Insert(record []byte) (RID, error) {
	pn := h.head
	for {
		buf, err := h.pool.ReadPage(h.file, pn)
		if err != nil {
			return RID{}, errors.Wrap(err, "heap: insert: read page")
		}
		pg := newPage(buf)

		if pg.freeSpace() >= pointerSize+len(record) {
			slot := pg.insert(record)
			if err := h.pool.UnpinPage(h.file, pn, true); err != nil {
				return RID{}, errors.Wrap(err, "heap: insert: unpin")
			}
			return RID{Page: pn, Slot: slot}, nil
		}

		next := pagefile.PageNo(pg.nextPage())
		if next != pagefile.InvalidPageNo {
			if err := h.pool.UnpinPage(h.file, pn, false); err != nil {
				return RID{}, errors.Wrap(err, "heap: insert: unpin")
			}
			pn = next
			continue
		}

		newPn, newBuf, err := h.pool.AllocPage(h.file)
		if err != nil {
			_ = h.pool.UnpinPage(h.file, pn, false)
			return RID{}, errors.Wrap(err, "heap: insert: allocate overflow page")
		}
		overflow := newPage(newBuf)
		overflow.init(int64(pagefile.InvalidPageNo))
		if overflow.freeSpace() < pointerSize+len(record) {
			_ = h.pool.UnpinPage(h.file, pn, false)
			_ = h.pool.UnpinPage(h.file, newPn, false)
			return RID{}, ErrRecordTooLarge
		}
		slot := overflow.insert(record)
		pg.setNextPage(int64(newPn))

		if err := h.pool.UnpinPage(h.file, pn, true); err != nil {
			return RID{}, errors.Wrap(err, "heap: insert: unpin head")
		}
		if err := h.pool.UnpinPage(h.file, newPn, true); err != nil {
			return RID{}, errors.Wrap(err, "heap: insert: unpin overflow")
		}
		return RID{Page: newPn, Slot: slot}, nil
	}
}

// Fetch returns a copy of the record identified by rid.
func (h *Heap) Fetch(rid RID) ([]byte, error) {
	buf, err := h.pool.ReadPage(h.file, rid.Page)
	if err != nil {
		return nil, errors.Wrap(err, "heap: fetch")
	}
	defer h.pool.UnpinPage(h.file, rid.Page, false)

	rec, ok := newPage(buf).data(rid.Slot)
	if !ok {
		return nil, ErrTombstoned
	}
	return append([]byte(nil), rec...), nil
}

// Delete tombstones the record identified by rid. Its slot is never
// reused, so any RID captured elsewhere (e.g. in a join hash table built
// before the delete) fails cleanly on a later Fetch rather than resolving
// to an unrelated record.
func (h *Heap) Delete(rid RID) error {
	buf, err := h.pool.ReadPage(h.file, rid.Page)
	if err != nil {
		return errors.Wrap(err, "heap: delete")
	}
	ok := newPage(buf).tombstone(rid.Slot)
	if uerr := h.pool.UnpinPage(h.file, rid.Page, true); uerr != nil {
		return errors.Wrap(uerr, "heap: delete: unpin")
	}
	if !ok {
		return ErrTombstoned
	}
	return nil
}

// Cursor is a lazy, pull-based iterator over a heap file's live records,
// pinning at most one page at a time.
type Cursor struct {
	h    *Heap
	pn   pagefile.PageNo
	slot int
}

// NewCursor starts a cursor at the heap file's head page.
func (h *Heap) NewCursor() *Cursor {
	return &Cursor{h: h, pn: h.head, slot: 0}
}

// Next returns the next live record, or ok=false once the chain is
// exhausted.
func (c *Cursor) Next() (rid RID, rec []byte, ok bool, err error) {
	for c.pn != pagefile.InvalidPageNo {
		buf, err := c.h.pool.ReadPage(c.h.file, c.pn)
		if err != nil {
			return RID{}, nil, false, errors.Wrap(err, "heap: cursor: read page")
		}
		pg := newPage(buf)
		n := pg.numSlots()

		for c.slot < n {
			data, present := pg.data(c.slot)
			slot := c.slot
			c.slot++
			if !present {
				continue
			}
			out := append([]byte(nil), data...)
			rid := RID{Page: c.pn, Slot: slot}
			if err := c.h.pool.UnpinPage(c.h.file, c.pn, false); err != nil {
				return RID{}, nil, false, errors.Wrap(err, "heap: cursor: unpin")
			}
			return rid, out, true, nil
		}

		next := pagefile.PageNo(pg.nextPage())
		if err := c.h.pool.UnpinPage(c.h.file, c.pn, false); err != nil {
			return RID{}, nil, false, errors.Wrap(err, "heap: cursor: unpin")
		}
		c.pn = next
		c.slot = 0
	}
	return RID{}, nil, false, nil
}

// Scan walks every live record from the head page to the end of the chain,
// calling yield with each record's RID and a borrowed view of its bytes
// (valid only for the duration of the call). Scan stops and returns
// yield's error if it returns one.
func (h *Heap) Scan(yield func(RID, []byte) error) error {
	pn := h.head
	for pn != pagefile.InvalidPageNo {
		buf, err := h.pool.ReadPage(h.file, pn)
		if err != nil {
			return errors.Wrap(err, "heap: scan: read page")
		}
		pg := newPage(buf)
		next := pagefile.PageNo(pg.nextPage())
		n := pg.numSlots()

		for slot := 0; slot < n; slot++ {
			rec, ok := pg.data(slot)
			if !ok {
				continue
			}
			if err := yield(RID{Page: pn, Slot: slot}, rec); err != nil {
				h.pool.UnpinPage(h.file, pn, false)
				return err
			}
		}

		if err := h.pool.UnpinPage(h.file, pn, false); err != nil {
			return errors.Wrap(err, "heap: scan: unpin")
		}
		pn = next
	}
	return nil
}
