// Package bufpool implements the buffer pool manager at the heart of
// minirel: a fixed-capacity cache of pages, backed by clock replacement,
// mediating between on-disk paged files (pagefile.File) and in-memory
// operators that pin pages, mutate them in place, and unpin.
package bufpool

import (
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/minirel-go/minirel/pagefile"
)

// File is the capability the pool consumes: something that reads, writes,
// allocates, and disposes fixed-size pages by number. pagefile.File
// satisfies it; the pool never implements it.
type File interface {
	ReadPage(pageNo pagefile.PageNo, dest []byte) error
	WritePage(pageNo pagefile.PageNo, src []byte) error
	AllocatePage() (pagefile.PageNo, error)
	DisposePage(pageNo pagefile.PageNo) error
}

// Sentinel errors covering every way a pool operation can fail against its
// own invariants. Underlying file-layer I/O errors (a short read, a disk
// full on write) are not folded into a distinct sentinel: the pool wraps
// and propagates whatever the file layer returns, preserving its kind via
// errors.Is/errors.Cause.
var (
	ErrBufferExceeded = errors.New("bufpool: BUFFER_EXCEEDED: every frame is pinned")
	ErrPageNotPinned  = errors.New("bufpool: PAGE_NOT_PINNED: unpin on a frame with pin_count == 0")
	ErrPagePinned     = errors.New("bufpool: PAGE_PINNED: flushFile/disposePage saw a pinned page")
	ErrHashNotFound   = errors.New("bufpool: HASH_NOT_FOUND: page is not resident")
	ErrHashTblError   = errors.New("bufpool: HASH_TBL_ERROR: directory insert failed")
	ErrBadBuffer      = errors.New("bufpool: BAD_BUFFER: invariant violation")
)

// frame is one frame descriptor. frameNo is stable for the life of the
// pool; every other field is reset to its zero value when valid becomes
// false, so an invalid frame never carries stale identity or dirty state.
type frame struct {
	frameNo  int
	valid    bool
	dirty    bool
	refBit   bool
	pinCount int
	file     File
	pageNo   pagefile.PageNo
	buf      []byte
}

func (f *frame) clear() {
	f.valid = false
	f.dirty = false
	f.refBit = false
	f.pinCount = 0
	f.file = nil
	f.pageNo = 0
}

// Stats are the pool's observable counters — disk reads, disk writes, and
// reference-bit clears — kept in memory only and reset on restart.
type Stats struct {
	DiskReads  uint64
	DiskWrites uint64
	RefClears  uint64
}

func (s Stats) String() string {
	return strings.Join([]string{
		"reads=" + humanize.Comma(int64(s.DiskReads)),
		"writes=" + humanize.Comma(int64(s.DiskWrites)),
		"ref_clears=" + humanize.Comma(int64(s.RefClears)),
	}, " ")
}

// Pool is the buffer pool manager: a fixed array of page-sized frames, a
// parallel frame-descriptor table, and a directory kept in sync with both,
// plus the clock hand driving eviction.
//
// Pool assumes a single-threaded cooperative scheduling model — there is no
// internal locking. Concurrent use from more than one goroutine is not
// supported.
type Pool struct {
	frames    []*frame
	dir       *directory
	clockHand int
	nFrames   int
	pageSize  int64
	stats     Stats
	log       *slog.Logger
}

// minFramePageSizeGranularity mirrors pagefile's page-size alignment
// requirement so a pool's frames and the files it serves can never
// disagree about page size without one of them rejecting it up front.
const minFramePageSizeGranularity = 512

// New constructs a pool with a fixed capacity of nFrames, with frames sized
// for pagefile's default page size.
func New(nFrames int) (*Pool, error) {
	return NewSize(nFrames, pagefile.PageSize)
}

// NewSize constructs a pool with a fixed capacity of nFrames, with frames
// sized to hold pageSize bytes each. Every file registered with the pool
// must have been opened with the same page size.
func NewSize(nFrames int, pageSize int64) (*Pool, error) {
	if nFrames < 1 {
		return nil, errors.New("bufpool: n_frames must be >= 1")
	}
	if pageSize <= 0 || pageSize%minFramePageSizeGranularity != 0 {
		return nil, errors.New("bufpool: page_size must be positive and a multiple of 512")
	}
	frames := make([]*frame, nFrames)
	for i := range frames {
		frames[i] = &frame{frameNo: i, buf: make([]byte, pageSize)}
	}
	return &Pool{
		frames:    frames,
		dir:       newDirectory(nFrames),
		clockHand: nFrames - 1,
		nFrames:   nFrames,
		pageSize:  pageSize,
		log:       slog.Default(),
	}, nil
}

// PageSize returns the page size every frame in this pool was sized for.
func (p *Pool) PageSize() int64 { return p.pageSize }

// Stats returns a snapshot of the pool's observable counters.
func (p *Pool) Stats() Stats { return p.stats }

// Size returns the fixed number of frames the pool was constructed with.
func (p *Pool) Size() int { return p.nFrames }

// evict runs the clock (second-chance) replacement policy and returns a
// frame index ready for immediate reuse. The caller MUST re-populate every
// field of the returned frame before it is observable to another
// ReadPage/AllocPage call — straightforward since frame mutation is never
// interleaved across goroutines.
func (p *Pool) evict() (int, error) {
	scanned := 0
	for scanned < 2*p.nFrames {
		p.clockHand = (p.clockHand + 1) % p.nFrames
		scanned++
		f := p.frames[p.clockHand]

		if !f.valid {
			return p.clockHand, nil
		}

		if f.refBit {
			f.refBit = false
			p.stats.RefClears++
			continue
		}

		if f.pinCount == 0 {
			if f.dirty {
				if err := f.file.WritePage(f.pageNo, f.buf); err != nil {
					// A failed write-back aborts eviction; the frame stays
					// installed rather than silently losing the dirty page.
					return 0, errors.Wrap(err, "bufpool: evict: write back dirty victim")
				}
				f.dirty = false
				p.stats.DiskWrites++
			}
			p.dir.remove(f.file, f.pageNo)
			p.log.Debug("bufpool: evicted frame", "frame", f.frameNo, "page", int64(f.pageNo))
			return p.clockHand, nil
		}
		// Pinned and not referenced: not a candidate, keep scanning.
	}
	return 0, ErrBufferExceeded
}

// ReadPage resolves (file, pageNo) and pins it, returning a slice over the
// resident frame's bytes. The slice is borrowed for the pinned interval —
// the caller must not retain it past UnpinPage.
func (p *Pool) ReadPage(file File, pageNo pagefile.PageNo) ([]byte, error) {
	if frameNo, ok := p.dir.lookup(file, pageNo); ok {
		f := p.frames[frameNo]
		f.refBit = true
		f.pinCount++
		p.log.Debug("bufpool: read hit", "frame", f.frameNo, "page", int64(pageNo))
		return f.buf, nil
	}

	frameNo, err := p.evict()
	if err != nil {
		return nil, err
	}
	f := p.frames[frameNo]

	if err := file.ReadPage(pageNo, f.buf); err != nil {
		f.clear()
		return nil, errors.Wrap(err, "bufpool: read page")
	}
	p.stats.DiskReads++

	f.valid = true
	f.dirty = false
	f.refBit = false
	f.pinCount = 1
	f.file = file
	f.pageNo = pageNo

	if err := p.dir.insert(file, pageNo, frameNo); err != nil {
		return nil, err
	}
	p.log.Debug("bufpool: read miss", "frame", f.frameNo, "page", int64(pageNo))
	return f.buf, nil
}

// UnpinPage decrements the pin count of (file, pageNo). If dirtyFlag is
// true, it is ORed into the frame's dirty bit — a pin that wrote must not
// be undone by a later clean unpin.
func (p *Pool) UnpinPage(file File, pageNo pagefile.PageNo, dirtyFlag bool) error {
	frameNo, ok := p.dir.lookup(file, pageNo)
	if !ok {
		return ErrHashNotFound
	}
	f := p.frames[frameNo]
	if f.pinCount == 0 {
		return ErrPageNotPinned
	}
	f.pinCount--
	if dirtyFlag {
		f.dirty = true
	}
	return nil
}

// AllocPage allocates a new page in file and returns it pinned
// (pin_count=1, dirty=false) with an uninitialised buffer — the caller must
// write it before unpinning with dirty=true.
func (p *Pool) AllocPage(file File) (pagefile.PageNo, []byte, error) {
	pageNo, err := file.AllocatePage()
	if err != nil {
		return pagefile.InvalidPageNo, nil, errors.Wrap(err, "bufpool: alloc: file allocate")
	}

	frameNo, err := p.evict()
	if err != nil {
		return pagefile.InvalidPageNo, nil, err
	}
	f := p.frames[frameNo]

	f.valid = true
	f.dirty = false
	f.refBit = false
	f.pinCount = 1
	f.file = file
	f.pageNo = pageNo

	if err := p.dir.insert(file, pageNo, frameNo); err != nil {
		return pagefile.InvalidPageNo, nil, err
	}
	p.log.Debug("bufpool: allocated page", "frame", f.frameNo, "page", int64(pageNo))
	return pageNo, f.buf, nil
}

// DisposePage disposes of (file, pageNo). A pinned page cannot be disposed
// out from under whoever holds it — the pin count must drop to zero first.
func (p *Pool) DisposePage(file File, pageNo pagefile.PageNo) error {
	if frameNo, ok := p.dir.lookup(file, pageNo); ok {
		f := p.frames[frameNo]
		if f.pinCount > 0 {
			return ErrPagePinned
		}
		p.dir.remove(file, pageNo)
		f.clear()
	}
	if err := file.DisposePage(pageNo); err != nil {
		return errors.Wrap(err, "bufpool: dispose page")
	}
	return nil
}

// FlushFile walks all frames belonging to file, writes back dirty ones,
// and removes their directory entries.
func (p *Pool) FlushFile(file File) error {
	for _, f := range p.frames {
		if f.valid && f.file == file {
			if f.pinCount > 0 {
				return ErrPagePinned
			}
			if f.dirty {
				if err := file.WritePage(f.pageNo, f.buf); err != nil {
					return errors.Wrap(err, "bufpool: flush: write back")
				}
				f.dirty = false
				p.stats.DiskWrites++
			}
			p.dir.remove(file, f.pageNo)
			f.clear()
		} else if !f.valid && f.file == file {
			// An invalid frame still claiming to belong to file indicates
			// prior invariant corruption: clear() always zeroes file
			// alongside valid, so this should be unreachable.
			return ErrBadBuffer
		}
	}
	return nil
}

// Close shuts the pool down: it best-effort writes back every valid, dirty
// frame (errors are logged, not propagated) and releases the frame table
// and directory.
func (p *Pool) Close() {
	for _, f := range p.frames {
		if f.valid && f.dirty {
			if err := f.file.WritePage(f.pageNo, f.buf); err != nil {
				p.log.Error("bufpool: destructor write-back failed", "page", int64(f.pageNo), "err", err)
				continue
			}
			f.dirty = false
			p.stats.DiskWrites++
		}
	}
	p.frames = nil
	p.dir = nil
}

// PrintSelf dumps the frame table in human-readable form for debugging.
// The output format is not a stable interface.
func (p *Pool) PrintSelf() string {
	var b strings.Builder
	b.WriteString("buffer pool (" + p.stats.String() + "):\n")
	for _, f := range p.frames {
		b.WriteString("  frame ")
		b.WriteString(humanize.Comma(int64(f.frameNo)))
		if f.valid {
			b.WriteString(" valid page=" + humanize.Comma(int64(f.pageNo)))
			b.WriteString(" pin=" + humanize.Comma(int64(f.pinCount)))
			if f.dirty {
				b.WriteString(" dirty")
			}
			if f.refBit {
				b.WriteString(" ref")
			}
		} else {
			b.WriteString(" free")
		}
		b.WriteString("\n")
	}
	return b.String()
}
