// Package frame implements the physical-frame table: the registry of
// which frame backs which owner's virtual page, and the LRU eviction
// policy that runs when the frame pool is exhausted. Frame never
// imports the supplemental-page-table package; Owner_i is the seam
// that lets spt register itself as an evictable owner without
// creating an import cycle back from frame to spt.
package frame

import "time"

import "github.com/jacobsa/syncutil"
import "github.com/jacobsa/timeutil"

import "defs"
import "mem"

/// Owner_i is implemented by whatever structure tracks a frame's
/// virtual-page mapping (spt.Spe_t). Evict is called with the frame
/// table lock held and must write the page out (to its file or to
/// swap) or discard it per the owner's own source tag, then record
/// that the page is no longer resident.
type Owner_i interface {
	LastAccess() time.Time
	Evict(pg *mem.Bytepg_t) defs.Err_t
}

/// Frame_t is one entry in the table: a physical frame currently
/// mapped to some owner's virtual page.
type Frame_t struct {
	Pa    mem.Pa_t
	Owner Owner_i
	inuse bool
}

/// Frametable_t hands out physical frames to page-fault handlers and
/// evicts the least-recently-used resident page when the pool is
/// exhausted.
type Frametable_t struct {
	mu    syncutil.InvariantMutex
	ents  []Frame_t // GUARDED_BY(mu)
	phys  *mem.Physmem_t
	clock timeutil.Clock
}

/// MkFrametable constructs a table of at most ncapacity resident
/// frames, backed by phys. A nil clock is replaced by the real wall
/// clock; eviction itself compares the owners' LastAccess values and
/// does not read the table's clock.
func MkFrametable(phys *mem.Physmem_t, ncapacity int, clock timeutil.Clock) *Frametable_t {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	ft := &Frametable_t{
		ents:  make([]Frame_t, ncapacity),
		phys:  phys,
		clock: clock,
	}
	ft.mu = syncutil.NewInvariantMutex(ft.checkInvariants)
	return ft
}

func (ft *Frametable_t) checkInvariants() {
	seen := make(map[mem.Pa_t]bool)
	for i := range ft.ents {
		e := &ft.ents[i]
		if !e.inuse {
			continue
		}
		if e.Owner == nil {
			panic("frame: in-use entry with nil owner")
		}
		if seen[e.Pa] {
			panic("frame: duplicate frame number in table")
		}
		seen[e.Pa] = true
	}
}

func (ft *Frametable_t) alloc() (int, bool) {
	for i := range ft.ents {
		if !ft.ents[i].inuse {
			return i, true
		}
	}
	return 0, false
}

// evict picks the resident entry whose owner was least recently
// touched, tells that owner to give the page up, and returns the now
// free slot. Caller holds ft.mu.
func (ft *Frametable_t) evict() (int, defs.Err_t) {
	victim := -1
	for i := range ft.ents {
		if !ft.ents[i].inuse {
			continue
		}
		if victim == -1 || ft.ents[i].Owner.LastAccess().Before(ft.ents[victim].Owner.LastAccess()) {
			victim = i
		}
	}
	if victim == -1 {
		panic("frame: nothing to evict")
	}
	e := &ft.ents[victim]
	pg := ft.phys.Dmap(e.Pa)
	bpg := mem.Pg2bytes(pg)
	if err := e.Owner.Evict(bpg); err != 0 {
		return 0, err
	}
	ft.phys.Refdown(e.Pa)
	e.inuse = false
	e.Owner = nil
	return victim, 0
}

/// Allocate hands owner a fresh, zeroed frame, evicting the
/// least-recently-used resident page first if the pool is full.
func (ft *Frametable_t) Allocate(owner Owner_i) (mem.Pa_t, *mem.Bytepg_t, defs.Err_t) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	idx, ok := ft.alloc()
	if !ok {
		var err defs.Err_t
		idx, err = ft.evict()
		if err != 0 {
			return 0, nil, err
		}
	}
	pg, pa, ok := ft.phys.Refpg_new()
	if !ok {
		return 0, nil, defs.ENOMEM
	}
	ft.phys.Refup(pa)
	e := &ft.ents[idx]
	e.Pa = pa
	e.Owner = owner
	e.inuse = true
	return pa, mem.Pg2bytes(pg), 0
}

/// Free releases the frame backing pa, dropping owner's mapping
/// without writing the page anywhere (the caller has already decided
/// the contents don't need preserving).
func (ft *Frametable_t) Free(pa mem.Pa_t) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i := range ft.ents {
		e := &ft.ents[i]
		if e.inuse && e.Pa == pa {
			ft.phys.Refdown(e.Pa)
			e.inuse = false
			e.Owner = nil
			return
		}
	}
}

/// PageOf returns the backing storage for frame pa, for callers (spt's
/// munmap path) that need to write a resident page's bytes out without
/// going through the eviction path.
func (ft *Frametable_t) PageOf(pa mem.Pa_t) *mem.Bytepg_t {
	return mem.Pg2bytes(ft.phys.Dmap(pa))
}

/// Nresident reports how many frames are currently resident, mostly
/// useful for tests asserting eviction actually happened.
func (ft *Frametable_t) Nresident() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for i := range ft.ents {
		if ft.ents[i].inuse {
			n++
		}
	}
	return n
}
