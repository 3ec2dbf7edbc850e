package fs

import "mem"

// / physBlockmem_t adapts the kernel's frame pool to Blockmem_i so the
// / block cache can allocate page-sized buffers for cached sectors.
type physBlockmem_t struct {
	phys *mem.Physmem_t
}

func mkPhysBlockmem(phys *mem.Physmem_t) *physBlockmem_t {
	return &physBlockmem_t{phys: phys}
}

/// MkPhysBlockmem exports the cache's own frame-pool adapter so other
/// packages that need a Blockmem_i over the same physical pool (the
/// swap backend's transient page buffers) don't have to reimplement
/// it.
func MkPhysBlockmem(phys *mem.Physmem_t) Blockmem_i {
	return mkPhysBlockmem(phys)
}

func (pb *physBlockmem_t) Alloc() (mem.Pa_t, *mem.Bytepg_t, bool) {
	pg, pa, ok := pb.phys.Refpg_new_nozero()
	if !ok {
		return 0, nil, false
	}
	pb.phys.Refup(pa)
	return pa, mem.Pg2bytes(pg), true
}

func (pb *physBlockmem_t) Free(pa mem.Pa_t) {
	pb.phys.Refdown(pa)
}

func (pb *physBlockmem_t) Refup(pa mem.Pa_t) {
	pb.phys.Refup(pa)
}
