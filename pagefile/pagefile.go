// Package pagefile implements the paged file abstraction the buffer pool
// consumes: a file is a sequence of fixed-size pages addressable by a
// non-negative page number, supporting allocation, read, write, and
// disposal.
package pagefile

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PageSize is the default page size in bytes, used by Open and by callers
// that don't need a configurable page size. Pages are opaque to the buffer
// pool; their interpretation is entirely up to the layer storing records in
// them.
const PageSize = 4096

// minPageSizeGranularity is the block size page sizes must be a multiple
// of, matching typical disk/filesystem I/O alignment.
const minPageSizeGranularity = 512

// PageNo addresses a page within a File. Page numbers are dense and start
// at 0; disposed pages leave a hole that is never reused by Allocate.
type PageNo int64

// InvalidPageNo marks the absence of a page.
const InvalidPageNo PageNo = -1

// ErrBadPage is returned when a read or write targets a page number that
// does not exist in the file.
var ErrBadPage = errors.New("pagefile: bad page number")

// ErrBadPageSize is returned by OpenSize for a non-positive page size, or
// one that isn't a multiple of minPageSizeGranularity.
var ErrBadPageSize = errors.New("pagefile: page size must be positive and a multiple of 512")

// File is a single paged heap file backed by an *os.File. Its identity (for
// the buffer pool's directory) is the *File pointer itself — two distinct
// File values never collide even if they happen to address the same page
// number. id is a debug-only tag, never used for identity or equality.
type File struct {
	id       uuid.UUID
	f        *os.File
	pageSize int64
	numPages int64
	disposed map[PageNo]bool
}

// Open opens (creating if necessary) a paged file at path using the
// default page size.
func Open(path string) (*File, error) {
	return OpenSize(path, PageSize)
}

// OpenSize opens (creating if necessary) a paged file at path whose pages
// are pageSize bytes each. Every reader of this file (in particular, the
// buffer pool it's registered with) must agree on the same page size.
func OpenSize(path string, pageSize int64) (*File, error) {
	if pageSize <= 0 || pageSize%minPageSizeGranularity != 0 {
		return nil, ErrBadPageSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pagefile: open")
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pagefile: stat")
	}
	return &File{
		id:       uuid.New(),
		f:        f,
		pageSize: pageSize,
		numPages: stat.Size() / pageSize,
		disposed: make(map[PageNo]bool),
	}, nil
}

// PageSize returns the page size this file was opened with.
func (f *File) PageSize() int64 { return f.pageSize }

// ID is a human-legible debug tag for this file handle. It must never be
// used to determine file identity or equality — that's the *File pointer.
func (f *File) ID() uuid.UUID { return f.id }

// ReadPage reads one page's worth of bytes for pageNo into dest. len(dest)
// must equal this file's page size.
func (f *File) ReadPage(pageNo PageNo, dest []byte) error {
	if int64(len(dest)) != f.pageSize {
		return errors.New("pagefile: dest buffer must match the file's page size")
	}
	if pageNo < 0 || int64(pageNo) >= f.numPages {
		return ErrBadPage
	}
	off := int64(pageNo) * f.pageSize
	if _, err := f.f.ReadAt(dest, off); err != nil && err != io.EOF {
		return errors.Wrapf(err, "pagefile: read page %d", pageNo)
	}
	return nil
}

// WritePage writes one page's worth of bytes from src to pageNo. len(src)
// must equal this file's page size.
func (f *File) WritePage(pageNo PageNo, src []byte) error {
	if int64(len(src)) != f.pageSize {
		return errors.New("pagefile: src buffer must match the file's page size")
	}
	if pageNo < 0 || int64(pageNo) >= f.numPages {
		return ErrBadPage
	}
	off := int64(pageNo) * f.pageSize
	if _, err := f.f.WriteAt(src, off); err != nil {
		return errors.Wrapf(err, "pagefile: write page %d", pageNo)
	}
	return nil
}

// AllocatePage extends the file by one page and returns its number. The new
// page's on-disk contents are unspecified until written.
func (f *File) AllocatePage() (PageNo, error) {
	pageNo := PageNo(f.numPages)
	off := int64(pageNo) * f.pageSize
	if _, err := f.f.WriteAt(make([]byte, f.pageSize), off); err != nil {
		return InvalidPageNo, errors.Wrapf(err, "pagefile: allocate page %d", pageNo)
	}
	f.numPages++
	return pageNo, nil
}

// DisposePage marks pageNo deallocated. Disposed page numbers are never
// reclaimed or reused by AllocatePage — there is no free-space map.
func (f *File) DisposePage(pageNo PageNo) error {
	if pageNo < 0 || int64(pageNo) >= f.numPages {
		return ErrBadPage
	}
	f.disposed[pageNo] = true
	return nil
}

// Sync flushes the OS file to stable storage.
func (f *File) Sync() error {
	return errors.Wrap(f.f.Sync(), "pagefile: sync")
}

// Close closes the underlying OS file. The caller must flush the buffer
// pool (bufpool.Pool.FlushFile) before closing — pagefile does not track
// pinned pages.
func (f *File) Close() error {
	return errors.Wrap(f.f.Close(), "pagefile: close")
}
