// Package vm implements a process's virtual address space: the
// supplemental-page-table-backed page-fault handler, stack growth,
// and memory-mapped files. There is no real hardware page table here
// (mem.Pa_t is a simulated frame index); "installing a mapping" means
// recording an spt.Spe_t and fetching its backing bytes through the
// frame table when a caller needs to touch them.
package vm

import "sync"

import "defs"
import "fd"
import "fdops"
import "frame"
import "mem"
import "spt"
import "stat"
import "swap"
import "util"

/// mapping_t records one active mmap region: its base address, page
/// count, and the reopened file descriptor backing it.
type mapping_t struct {
	base   uintptr
	npages int
	file   *fd.Fd_t
}

/// Vm_t is one process's address space: its supplemental page table
/// plus the set of live mmap regions layered on top of it.
type Vm_t struct {
	mu  sync.Mutex // GUARDED_BY: maps
	spt *spt.Spt_t
	ft  *frame.Frametable_t

	maps map[defs.Mapid_t]*mapping_t

	// USERMIN..stacktop bound the addresses mmap and the stack-growth
	// heuristic will install pages within.
	USERMIN  uintptr
	stacktop uintptr
}

/// MkVm constructs an empty address space backed by ft and sw.
func MkVm(ft *frame.Frametable_t, sw *swap.Swap_t, usermin, stacktop uintptr) *Vm_t {
	return &Vm_t{
		spt:      spt.MkSpt(ft, sw, nil),
		ft:       ft,
		maps:     make(map[defs.Mapid_t]*mapping_t),
		USERMIN:  usermin,
		stacktop: stacktop,
	}
}

/// stackFaultSlack is how far below the saved stack pointer an
/// unmapped fault is still treated as ordinary stack growth, modeling
/// a push instruction touching memory just below esp before esp
/// itself is adjusted.
const stackFaultSlack = 32

/// Pgfault services a page fault at faultaddr, with stackptr the
/// user stack pointer saved at trap entry and iswrite reporting
/// whether the faulting access was a store. It returns EFAULT when the
/// process should be terminated: an unmapped address outside the
/// stack-growth window, or a store to a non-writable page.
func (vm *Vm_t) Pgfault(faultaddr uintptr, stackptr uintptr, iswrite bool) defs.Err_t {
	pgva := util.Rounddown(faultaddr, uintptr(mem.PGSIZE))

	if vm.spt.Lookup(pgva) == nil {
		lowbound := stackptr - stackFaultSlack
		if faultaddr < lowbound || faultaddr >= vm.stacktop {
			return defs.EFAULT
		}
		vm.spt.InstallZero(pgva, true)
	}

	spe, err := vm.spt.Load(pgva)
	if err != 0 {
		return err
	}
	if iswrite {
		if !spe.Writable {
			return defs.EFAULT
		}
		vm.spt.MarkDirty(pgva)
	}
	return 0
}

/// Translate returns the current backing bytes for the page containing
/// vaddr, faulting it in first if necessary. Used by the user-buffer
/// helpers in userbuf.go to read or write user memory a page at a
/// time.
func (vm *Vm_t) Translate(vaddr uintptr, forwrite bool) (*mem.Bytepg_t, int, defs.Err_t) {
	pgva := util.Rounddown(vaddr, uintptr(mem.PGSIZE))
	poff := int(vaddr - pgva)

	spe := vm.spt.Lookup(pgva)
	if spe == nil {
		return nil, 0, defs.EFAULT
	}
	spe, err := vm.spt.Load(pgva)
	if err != 0 {
		return nil, 0, err
	}
	if forwrite {
		if !spe.Writable {
			return nil, 0, defs.EFAULT
		}
		vm.spt.MarkDirty(pgva)
	}
	return vm.ft.PageOf(spe.Pa), poff, 0
}

/// Mmap validates and installs a memory-mapped view of f starting at
/// base, one FROM_FILE_MAPPED SPE per page, and returns a per-process
/// map identifier. base must be page-aligned, nonzero, and free of any
/// existing mapping for the whole length of the file. Mmap does not
/// check the descriptor number; the syscall layer rejects fd 0, 1 and
/// 2 before calling it.
func (vm *Vm_t) Mmap(f *fd.Fd_t, base uintptr) (defs.Mapid_t, defs.Err_t) {
	if base == 0 || base%uintptr(mem.PGSIZE) != 0 || base < vm.USERMIN {
		return defs.Mapid_t{}, defs.EINVAL
	}
	if !f.Fops.Mmapi() {
		return defs.Mapid_t{}, defs.EINVAL
	}

	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return defs.Mapid_t{}, err
	}
	length := int(st.Size())
	if length == 0 {
		return defs.Mapid_t{}, defs.EINVAL
	}
	npages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE

	vm.mu.Lock()
	defer vm.mu.Unlock()
	for i := 0; i < npages; i++ {
		if vm.spt.Lookup(base+uintptr(i*mem.PGSIZE)) != nil {
			return defs.Mapid_t{}, defs.EINVAL
		}
	}

	reopened, err := fd.Copyfd(f)
	if err != 0 {
		return defs.Mapid_t{}, err
	}
	writable := reopened.Perms&fd.FD_WRITE != 0
	for i := 0; i < npages; i++ {
		va := base + uintptr(i*mem.PGSIZE)
		foff := i * mem.PGSIZE
		filelen := util.Min(mem.PGSIZE, length-foff)
		vm.spt.InstallMapped(va, reopened.Fops, foff, filelen, writable)
	}

	id := defs.NewMapid()
	vm.maps[id] = &mapping_t{base: base, npages: npages, file: reopened}
	return id, 0
}

/// Munmap writes back any dirty pages of the mapping through its
/// file, frees every SPE the mapping installed, closes the reopened
/// file handle, and forgets the mapping.
func (vm *Vm_t) Munmap(id defs.Mapid_t) defs.Err_t {
	vm.mu.Lock()
	m, ok := vm.maps[id]
	if ok {
		delete(vm.maps, id)
	}
	vm.mu.Unlock()
	if !ok {
		return defs.ENOENT
	}

	for i := 0; i < m.npages; i++ {
		va := m.base + uintptr(i*mem.PGSIZE)
		if err := vm.spt.Remove(va); err != 0 {
			return err
		}
	}
	return m.file.Fops.Close()
}

/// LoadSegment installs a loadable executable segment: pages backed
/// by [fileoff, fileoff+filelen) of file, zero-padded past filelen up
/// to the segment's memory size, treated as copy-on-first-load
/// (subsequent eviction routes to swap, not back to the file).
func (vm *Vm_t) LoadSegment(file fdops.Fdops_i, base uintptr, fileoff, filelen, memsz int, writable bool) {
	npages := util.Roundup(memsz, mem.PGSIZE) / mem.PGSIZE
	for i := 0; i < npages; i++ {
		va := base + uintptr(i*mem.PGSIZE)
		off := i * mem.PGSIZE
		var flen int
		if off < filelen {
			flen = util.Min(mem.PGSIZE, filelen-off)
		}
		vm.spt.InstallSegment(va, file, fileoff+off, flen, writable)
	}
}

/// Teardown frees every installed SPE and unmaps every live mmap
/// region, called once at process exit.
func (vm *Vm_t) Teardown() {
	vm.mu.Lock()
	ids := make([]defs.Mapid_t, 0, len(vm.maps))
	for id := range vm.maps {
		ids = append(ids, id)
	}
	vm.mu.Unlock()
	for _, id := range ids {
		vm.Munmap(id)
	}
	vm.spt.FreeAll()
}

/// InstallZero exposes the supplemental page table's zero-page
/// installer directly, used by process startup to lay down the
/// initial user stack page.
func (vm *Vm_t) InstallZero(vaddr uintptr, writable bool) {
	vm.spt.InstallZero(vaddr, writable)
}
