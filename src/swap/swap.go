// Package swap implements the backing store the frame table evicts
// anonymous and dirty-but-unmapped pages to: a dedicated block device
// addressed one page-sized slot at a time, with a bitmap tracking
// which slots are in use.
package swap

import "github.com/jacobsa/syncutil"

import "defs"
import "fs"
import "mem"

/// Swap_t is the page-grained swap backend. A slot number is a sector
/// number on the swap device; since mem.PGSIZE == fs.BSIZE, one page
/// occupies exactly one sector.
type Swap_t struct {
	mu    syncutil.InvariantMutex
	inuse []bool // GUARDED_BY(mu): inuse[slot]
	nfree int    // GUARDED_BY(mu)

	disk fs.Disk_i
	bm   fs.Blockmem_i
}

/// MkSwap constructs a swap backend of nslots page-sized slots on
/// disk, using bm to allocate the transient buffers Store/Read copy
/// through.
func MkSwap(disk fs.Disk_i, bm fs.Blockmem_i, nslots int) *Swap_t {
	sw := &Swap_t{
		inuse: make([]bool, nslots),
		nfree: nslots,
		disk:  disk,
		bm:    bm,
	}
	sw.mu = syncutil.NewInvariantMutex(sw.checkInvariants)
	return sw
}

func (sw *Swap_t) checkInvariants() {
	n := 0
	for _, b := range sw.inuse {
		if !b {
			n++
		}
	}
	if n != sw.nfree {
		panic("swap: nfree out of sync with inuse bitmap")
	}
}

/// Store writes pg to a freshly allocated slot and returns it. Returns
/// ENOSWAP if the device is full.
func (sw *Swap_t) Store(pg *mem.Bytepg_t) (int, defs.Err_t) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	slot := -1
	for i, b := range sw.inuse {
		if !b {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, defs.ENOSWAP
	}
	sw.inuse[slot] = true
	sw.nfree--

	blk := fs.MkBlock_newpage(slot, "swap", sw.bm, sw.disk, nil)
	defer blk.Free_page()
	copy(blk.Data[:], pg[:])
	blk.Write()
	return slot, 0
}

/// Read copies slot's contents into pg. The slot remains allocated;
/// callers that are done with it must still call Free.
func (sw *Swap_t) Read(slot int, pg *mem.Bytepg_t) defs.Err_t {
	sw.mu.Lock()
	if !sw.inuse[slot] {
		sw.mu.Unlock()
		panic("swap: read of free slot")
	}
	sw.mu.Unlock()

	blk := fs.MkBlock_newpage(slot, "swap", sw.bm, sw.disk, nil)
	defer blk.Free_page()
	blk.Read()
	copy(pg[:], blk.Data[:])
	return 0
}

/// Free releases slot back to the free pool.
func (sw *Swap_t) Free(slot int) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.inuse[slot] {
		panic("swap: double free of slot")
	}
	sw.inuse[slot] = false
	sw.nfree++
}

/// Nfree reports the number of free slots remaining.
func (sw *Swap_t) Nfree() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.nfree
}
