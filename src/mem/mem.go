// Package mem is the kernel's physical-frame allocator. It manages a
// fixed-size pool of refcounted page-sized frames and hands them out
// to the frame table, page tables, and the block cache. There is no
// real MMU backing this pool: Pa_t is a frame index into Physmem_t's
// own backing array, not a hardware physical address, and Dmap simply
// indexes into that array instead of walking a direct map. The
// refcounting and free-list algorithm is otherwise the allocator's own.
package mem

import "sync"
import "sync/atomic"
import "unsafe"
import "fmt"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t is a frame number: an index into Physmem_t.Pgs, not a real
/// physical address.
type Pa_t uintptr

/// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of ints, the unit Physmem_t allocates.
type Pg_t [PGSIZE / 8]int

/// Page_i abstracts physical page allocation so that callers (the
/// block cache, the frame table) don't depend on Physmem_t directly.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

/// Pg2bytes reinterprets a page of ints as a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg reinterprets a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

/// Physpg_t is one slot in the frame pool: a refcount, a free-list
/// link, and the page's own backing storage.
type Physpg_t struct {
	Refcnt int32
	nexti  uint32
	page   Pg_t
}

/// Physmem_t manages the simulated pool of physical frames. The
/// kernel has a single CPU (spec concurrency model), so unlike the
/// teacher's per-CPU free-list sharding, one mutex-guarded free list
/// suffices.
type Physmem_t struct {
	sync.Mutex
	Pgs     []Physpg_t
	freei   uint32
	freelen int32
	Dmapinit bool
}

func (phys *Physmem_t) _refpg_new() (*Pg_t, Pa_t, bool) {
	return phys._phys_new(&phys.freei, &phys.freelen)
}

/// Refaddr returns the refcount pointer for the given frame.
func (phys *Physmem_t) Refaddr(p_pg Pa_t) *int32 {
	return &phys.Pgs[p_pg].Refcnt
}

/// Refcnt returns the current reference count of a frame.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	return int(atomic.LoadInt32(phys.Refaddr(p_pg)))
}

/// Refup increments the reference count of a frame.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	c := atomic.AddInt32(phys.Refaddr(p_pg), 1)
	if c <= 0 {
		panic("refup: non-positive refcount")
	}
}

// returns true if p_pg should be added to the free list
func (phys *Physmem_t) _refdec(p_pg Pa_t) bool {
	c := atomic.AddInt32(phys.Refaddr(p_pg), -1)
	if c < 0 {
		panic("refdown: negative refcount")
	}
	return c == 0
}

/// Refdown decrements the reference count of a frame. It returns true
/// when the frame was freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	return phys._phys_put(p_pg)
}

/// Zeropg is a global zero-filled page template used for allocations.
var Zeropg *Pg_t

/// Refpg_new allocates a zeroed frame. Its refcount starts at zero;
/// the caller is responsible for Refup'ing it.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	pg, p_pg, ok := phys._refpg_new()
	if !ok {
		return nil, 0, false
	}
	*pg = *Zeropg
	return pg, p_pg, true
}

/// Refpg_new_nozero allocates an uninitialized frame.
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	pg, p_pg, ok := phys._refpg_new()
	if !ok {
		return nil, 0, false
	}
	return pg, p_pg, true
}

func (phys *Physmem_t) _phys_new(fl *uint32, cnt *int32) (*Pg_t, Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()

	ff := *fl
	if ff == ^uint32(0) {
		return nil, 0, false
	}
	p_pg := Pa_t(ff)
	*fl = phys.Pgs[ff].nexti
	if phys.Pgs[ff].Refcnt < 0 {
		panic("negative ref count")
	}
	*cnt--
	if *cnt < 0 {
		panic("free count underflow")
	}
	return &phys.Pgs[ff].page, p_pg, true
}

func (phys *Physmem_t) _phys_insert(fl *uint32, idx uint32, cnt *int32) {
	phys.Lock()
	defer phys.Unlock()
	phys.Pgs[idx].nexti = *fl
	*fl = idx
	*cnt++
}

// returns true iff p_pg was added to the free list
func (phys *Physmem_t) _phys_put(p_pg Pa_t) bool {
	if !phys._refdec(p_pg) {
		return false
	}
	phys._phys_insert(&phys.freei, uint32(p_pg), &phys.freelen)
	return true
}

/// Dmap returns the frame's backing storage. Named Dmap for
/// continuity with the teacher's direct-map accessor, though here
/// it's a plain slice index rather than a hardware address
/// translation.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := p
	if int(idx) >= len(phys.Pgs) {
		panic("frame number out of range")
	}
	return &phys.Pgs[idx].page
}

/// Dmap8 returns a byte slice view of the frame's backing storage.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	return Pg2bytes(pg)[:]
}

/// Pgcount reports the number of free frames.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

/// Phys_init initializes the global physical memory allocator with n
/// simulated frames, the software stand-in for probing the machine's
/// installed RAM.
func Phys_init(n int) *Physmem_t {
	phys := Physmem
	phys.Pgs = make([]Physpg_t, n)
	for i := range phys.Pgs {
		phys.Pgs[i].Refcnt = 0
		phys.Pgs[i].nexti = uint32(i + 1)
	}
	phys.Pgs[n-1].nexti = ^uint32(0)
	phys.freei = 0
	phys.freelen = int32(n)
	phys.Dmapinit = true

	Zeropg = &Pg_t{}
	fmt.Printf("Reserved %v frames (%vMB)\n", n, n>>8)
	return phys
}
