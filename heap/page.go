// Package heap implements the heap file record layer consumed by query
// operators: variable-length records stored in slotted pages, addressed by
// a stable (PageNo, Slot) record identifier, read and written exclusively
// through the buffer pool. Deletion tombstones a slot rather than shifting
// the slot array, so a RID never changes meaning once handed out.
package heap

import "encoding/binary"

// HeaderSize is the fixed page header: 2 bytes NumSlots, 2 bytes
// FreeSpaceOffset, 8 bytes NextPage.
const HeaderSize = 12

// pointerSize is one slot-array entry: 2 bytes offset, 2 bytes length.
const pointerSize = 4

// page is a slotted page view over a borrowed buffer (typically a frame
// returned by bufpool.Pool). It never copies or owns buf.
//
// Layout: buf[0:HeaderSize] is the header; buf[HeaderSize:] is the body,
// holding the slot-pointer array growing forward from the start and record
// data growing backward from the end.
type page struct {
	buf []byte
}

func newPage(buf []byte) *page { return &page{buf: buf} }

func (p *page) body() []byte { return p.buf[HeaderSize:] }

func (p *page) numSlots() int {
	return int(binary.LittleEndian.Uint16(p.buf[0:2]))
}

func (p *page) setNumSlots(n int) {
	binary.LittleEndian.PutUint16(p.buf[0:2], uint16(n))
}

func (p *page) freeSpaceOffset() int {
	return int(binary.LittleEndian.Uint16(p.buf[2:4]))
}

func (p *page) setFreeSpaceOffset(v int) {
	binary.LittleEndian.PutUint16(p.buf[2:4], uint16(v))
}

func (p *page) nextPage() int64 {
	return int64(binary.LittleEndian.Uint64(p.buf[4:12]))
}

func (p *page) setNextPage(pn int64) {
	binary.LittleEndian.PutUint64(p.buf[4:12], uint64(pn))
}

// init formats an empty page with no slots, full free space, and no next
// page (sentinel -1, written by the caller as pagefile.InvalidPageNo).
func (p *page) init(noNext int64) {
	p.setNumSlots(0)
	p.setFreeSpaceOffset(len(p.body()))
	p.setNextPage(noNext)
}

func (p *page) pointerAt(slot int) (offset, length int) {
	b := p.body()
	base := slot * pointerSize
	return int(binary.LittleEndian.Uint16(b[base : base+2])),
		int(binary.LittleEndian.Uint16(b[base+2 : base+4]))
}

func (p *page) setPointerAt(slot, offset, length int) {
	b := p.body()
	base := slot * pointerSize
	binary.LittleEndian.PutUint16(b[base:base+2], uint16(offset))
	binary.LittleEndian.PutUint16(b[base+2:base+4], uint16(length))
}

// freeSpace reports bytes available for one more slot entry plus its data.
func (p *page) freeSpace() int {
	return p.freeSpaceOffset() - p.numSlots()*pointerSize
}

// insert appends data as a new, never-reused slot at the end of the live
// slot array and returns its index. The caller must have checked
// freeSpace() >= pointerSize+len(data).
func (p *page) insert(data []byte) int {
	slot := p.numSlots()
	newOffset := p.freeSpaceOffset() - len(data)
	copy(p.body()[newOffset:newOffset+len(data)], data)
	p.setNumSlots(slot + 1)
	p.setFreeSpaceOffset(newOffset)
	p.setPointerAt(slot, newOffset, len(data))
	return slot
}

// data returns the record stored at slot, or ok=false if slot is out of
// range or tombstoned (length == 0).
func (p *page) data(slot int) (rec []byte, ok bool) {
	if slot < 0 || slot >= p.numSlots() {
		return nil, false
	}
	offset, length := p.pointerAt(slot)
	if length == 0 {
		return nil, false
	}
	return p.body()[offset : offset+length], true
}

// tombstone marks slot's pointer length 0, making its record unreachable
// through data() while leaving every other slot's index unchanged — a RID
// must remain either meaningful or cleanly dead for the life of the heap
// file. Returns false if slot was already empty or out of range.
func (p *page) tombstone(slot int) bool {
	if slot < 0 || slot >= p.numSlots() {
		return false
	}
	_, length := p.pointerAt(slot)
	if length == 0 {
		return false
	}
	offset, _ := p.pointerAt(slot)
	p.setPointerAt(slot, offset, 0)
	return true
}
