package bufpool

import (
	"fmt"
	"hash/fnv"

	"github.com/minirel-go/minirel/pagefile"
)

// dirEntry is one (file, pageNo) -> frameNo mapping, chained on hash
// collision.
type dirEntry struct {
	file   File
	pageNo pagefile.PageNo
	frame  int
	next   *dirEntry
}

// directory is an open-chained hash table keyed on (file identity, page_no),
// capacity fixed at construction to ⌈1.2 · n_frames⌉ since the live entry
// count is bounded by n_frames and no rehashing is ever required.
type directory struct {
	buckets []*dirEntry
	count   int
}

func newDirectory(nFrames int) *directory {
	capacity := (nFrames*12 + 9) / 10 // ceil(1.2 * nFrames)
	if capacity < 1 {
		capacity = 1
	}
	return &directory{buckets: make([]*dirEntry, capacity)}
}

// hashKey mixes both the file identity and the page number so that
// sequential scans of different files do not collide.
func (d *directory) hashKey(file File, pageNo pagefile.PageNo) int {
	h := fnv.New64a()
	fmt.Fprintf(h, "%p", file)
	sum := h.Sum64()
	sum ^= uint64(pageNo) * 0x9E3779B97F4A7C15
	return int(sum % uint64(len(d.buckets)))
}

// lookup returns the frame index for (file, pageNo), or ok=false on a miss.
func (d *directory) lookup(file File, pageNo pagefile.PageNo) (frame int, ok bool) {
	idx := d.hashKey(file, pageNo)
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.file == file && e.pageNo == pageNo {
			return e.frame, true
		}
	}
	return 0, false
}

// insert adds a (file, pageNo) -> frame mapping. Returns ErrHashTblError if
// an entry for the same key already exists (a caller bug: insert is only
// ever called after a confirmed miss).
func (d *directory) insert(file File, pageNo pagefile.PageNo, frame int) error {
	idx := d.hashKey(file, pageNo)
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.file == file && e.pageNo == pageNo {
			return ErrHashTblError
		}
	}
	d.buckets[idx] = &dirEntry{file: file, pageNo: pageNo, frame: frame, next: d.buckets[idx]}
	d.count++
	return nil
}

// remove deletes the (file, pageNo) mapping if present; a no-op otherwise.
func (d *directory) remove(file File, pageNo pagefile.PageNo) {
	idx := d.hashKey(file, pageNo)
	var prev *dirEntry
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.file == file && e.pageNo == pageNo {
			if prev == nil {
				d.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			d.count--
			return
		}
		prev = e
	}
}

// len reports the number of live directory entries, which must always
// equal the number of valid frames — the directory and the frame table
// never disagree about which pages are resident.
func (d *directory) len() int {
	return d.count
}
