// Package spt implements the supplemental page table: the per-process
// record of what backs each virtual page that isn't currently
// resident, and how to make it resident on a page fault. Tag_t, the
// descriptor's source, is tracked separately from residency (Resident)
// rather than folded into one enum value, because eviction needs to
// know a resident page's *origin* (file-backed vs. anonymous) to
// decide whether to write it back, discard it, or swap it out while
// the page is still marked ON_FRAME to every other reader.
package spt

import "time"

import "github.com/jacobsa/syncutil"
import "github.com/jacobsa/timeutil"

import "defs"
import "fdops"
import "frame"
import "mem"
import "swap"

/// Tag_t names where a virtual page's contents currently live.
type Tag_t int

const (
	ALL_ZERO          Tag_t = iota // never touched; materializes to a zeroed frame
	IN_SWAP                        // contents live in a swap slot
	FROM_FILE_MAPPED                // backed by an mmap'd file, shared or private
	FROM_FILE_SEGMENT               // backed by a loadable executable segment
)

/// Spe_t is one virtual page's supplemental descriptor. Source is the
/// page's resting description; Resident and Pa report whether (and
/// where) it's currently sitting in a physical frame. Tag reports
/// ON_FRAME to callers that only care about current residency.
type Spe_t struct {
	spt *Spt_t

	Source Tag_t
	Vaddr  uintptr

	Resident bool
	Pa       mem.Pa_t
	last     time.Time

	SwapSlot int // valid when Source == IN_SWAP

	File     fdops.Fdops_i // valid when Source is a FROM_FILE_* tag
	FileOff  int
	FileLen  int // bytes of the page actually backed by File; the rest is zero-fill
	Writable bool
	dirty    bool
}

/// ON_FRAME is the tag Tag() reports for a resident page, regardless
/// of its resting Source.
const ON_FRAME Tag_t = -1

/// Tag reports the descriptor's current state: ON_FRAME if resident,
/// otherwise its resting Source.
func (spe *Spe_t) Tag() Tag_t {
	if spe.Resident {
		return ON_FRAME
	}
	return spe.Source
}

/// LastAccess implements frame.Owner_i.
func (spe *Spe_t) LastAccess() time.Time {
	return spe.last
}

/// Evict implements frame.Owner_i: called by the frame table with its
/// lock held when spe's frame is chosen as an eviction victim. It
/// writes pg out per spe's source (file writeback, swap, or discard)
/// and marks the page non-resident.
func (spe *Spe_t) Evict(pg *mem.Bytepg_t) defs.Err_t {
	switch spe.Source {
	case FROM_FILE_MAPPED:
		if spe.dirty {
			buf := mkFixedbuf(pg[:spe.FileLen])
			if _, err := spe.File.Pwrite(buf, spe.FileOff); err != 0 {
				return err
			}
		}
		// clean mapped pages are simply discarded; Load re-reads them.
	case FROM_FILE_SEGMENT, ALL_ZERO:
		if spe.dirty {
			slot, err := spe.spt.sw.Store(pg)
			if err != 0 {
				return err
			}
			spe.SwapSlot = slot
			spe.Source = IN_SWAP
		}
		// clean, never-written segment/zero pages are re-derived on fault.
	case IN_SWAP:
		slot, err := spe.spt.sw.Store(pg)
		if err != 0 {
			return err
		}
		spe.SwapSlot = slot
	}
	spe.Resident = false
	spe.dirty = false
	return 0
}

/// Spt_t is one process's supplemental page table.
type Spt_t struct {
	mu    syncutil.InvariantMutex
	pages map[uintptr]*Spe_t // GUARDED_BY(mu): virtual page number -> descriptor
	ft    *frame.Frametable_t
	sw    *swap.Swap_t
	clock timeutil.Clock
}

/// MkSpt constructs an empty supplemental page table backed by ft and
/// sw. If clock is nil the real wall clock is used.
func MkSpt(ft *frame.Frametable_t, sw *swap.Swap_t, clock timeutil.Clock) *Spt_t {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	spt := &Spt_t{
		pages: make(map[uintptr]*Spe_t),
		ft:    ft,
		sw:    sw,
		clock: clock,
	}
	spt.mu = syncutil.NewInvariantMutex(spt.checkInvariants)
	return spt
}

func (spt *Spt_t) checkInvariants() {
	for va, spe := range spt.pages {
		if spe.Vaddr != va {
			panic("spt: descriptor stored under wrong key")
		}
		if spe.Resident && spe.Source == IN_SWAP {
			panic("spt: resident page still tagged IN_SWAP")
		}
	}
}

/// InstallZero installs a lazily zero-filled anonymous page at vaddr.
func (spt *Spt_t) InstallZero(vaddr uintptr, writable bool) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	spt.pages[vaddr] = &Spe_t{spt: spt, Source: ALL_ZERO, Vaddr: vaddr, Writable: writable}
}

/// InstallMapped installs a page backed by an mmap'd file region.
func (spt *Spt_t) InstallMapped(vaddr uintptr, file fdops.Fdops_i, fileoff, filelen int, writable bool) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	spt.pages[vaddr] = &Spe_t{
		spt: spt, Source: FROM_FILE_MAPPED, Vaddr: vaddr,
		File: file, FileOff: fileoff, FileLen: filelen, Writable: writable,
	}
}

/// InstallSegment installs a page backed by a loadable executable
/// segment; bytes past filelen within the page are zero-filled.
func (spt *Spt_t) InstallSegment(vaddr uintptr, file fdops.Fdops_i, fileoff, filelen int, writable bool) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	spt.pages[vaddr] = &Spe_t{
		spt: spt, Source: FROM_FILE_SEGMENT, Vaddr: vaddr,
		File: file, FileOff: fileoff, FileLen: filelen, Writable: writable,
	}
}

/// Lookup returns the descriptor for vaddr's page, or nil if none is
/// installed (an unmapped access).
func (spt *Spt_t) Lookup(vaddr uintptr) *Spe_t {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	return spt.pages[vaddr]
}

/// Remove drops vaddr's descriptor, reclaiming its frame or swap slot
/// first. Used by munmap and process teardown.
func (spt *Spt_t) Remove(vaddr uintptr) defs.Err_t {
	spt.mu.Lock()
	spe, ok := spt.pages[vaddr]
	if !ok {
		spt.mu.Unlock()
		return 0
	}
	delete(spt.pages, vaddr)
	spt.mu.Unlock()

	if spe.Resident {
		if spe.Source == FROM_FILE_MAPPED && spe.dirty {
			pg := spt.ft.PageOf(spe.Pa)
			buf := mkFixedbuf(pg[:spe.FileLen])
			if _, err := spe.File.Pwrite(buf, spe.FileOff); err != 0 {
				return err
			}
		}
		spt.ft.Free(spe.Pa)
	} else if spe.Source == IN_SWAP {
		spt.sw.Free(spe.SwapSlot)
	}
	return 0
}

/// FreeAll reclaims every descriptor's frame or swap slot and empties
/// the table. Called once at process teardown, after every mmap
/// region has already been unmapped, so only anonymous and
/// executable-segment pages remain.
func (spt *Spt_t) FreeAll() {
	spt.mu.Lock()
	vaddrs := make([]uintptr, 0, len(spt.pages))
	for va := range spt.pages {
		vaddrs = append(vaddrs, va)
	}
	spt.mu.Unlock()

	for _, va := range vaddrs {
		spt.Remove(va)
	}
}

/// Load makes vaddr's page resident, allocating a frame and filling it
/// per the descriptor's source, and returns the descriptor. Called by
/// the page-fault handler.
func (spt *Spt_t) Load(vaddr uintptr) (*Spe_t, defs.Err_t) {
	spt.mu.Lock()
	spe, ok := spt.pages[vaddr]
	spt.mu.Unlock()
	if !ok {
		return nil, defs.EFAULT
	}
	if spe.Resident {
		spe.last = spt.clock.Now()
		return spe, 0
	}

	pa, pg, err := spt.ft.Allocate(spe)
	if err != 0 {
		return nil, err
	}

	switch spe.Source {
	case ALL_ZERO:
		for i := range pg {
			pg[i] = 0
		}
	case IN_SWAP:
		if err := spt.sw.Read(spe.SwapSlot, pg); err != 0 {
			return nil, err
		}
		spt.sw.Free(spe.SwapSlot)
	case FROM_FILE_MAPPED, FROM_FILE_SEGMENT:
		for i := range pg {
			pg[i] = 0
		}
		buf := mkFixedbuf(pg[:spe.FileLen])
		if _, err := spe.File.Pread(buf, spe.FileOff); err != 0 {
			return nil, err
		}
	}

	spe.Pa = pa
	spe.Resident = true
	spe.dirty = false
	spe.last = spt.clock.Now()
	return spe, 0
}

/// MarkDirty records that resident page vaddr has been written,
/// needed so Evict knows whether a FROM_FILE_MAPPED page must be
/// written back or can simply be dropped.
func (spt *Spt_t) MarkDirty(vaddr uintptr) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	if spe, ok := spt.pages[vaddr]; ok {
		spe.dirty = true
	}
}

/// fixedbuf_t adapts a plain kernel byte slice to fdops.Userio_i,
/// letting the page-fault handler call Pread/Pwrite without depending
/// on the vm package's real user-buffer type (which would import spt,
/// creating a cycle).
type fixedbuf_t struct {
	buf []uint8
	off int
}

func mkFixedbuf(buf []uint8) *fixedbuf_t {
	return &fixedbuf_t{buf: buf}
}

func (fb *fixedbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, fb.buf[fb.off:])
	fb.off += n
	return n, 0
}

func (fb *fixedbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(fb.buf[fb.off:], src)
	fb.off += n
	return n, 0
}

func (fb *fixedbuf_t) Remain() int {
	return len(fb.buf) - fb.off
}

func (fb *fixedbuf_t) Totalsz() int {
	return len(fb.buf)
}
