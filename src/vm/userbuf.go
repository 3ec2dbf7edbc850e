package vm

import "defs"
import "mem"
import "ustr"
import "util"

/// Userbuf_t adapts a range of user virtual memory to fdops.Userio_i,
/// faulting pages in (and, on write, marking them dirty) a page at a
/// time as the transfer crosses page boundaries.
type Userbuf_t struct {
	vm      *Vm_t
	userva  uintptr
	len     int
	off     int
}

/// Mkuserbuf constructs a Userbuf_t over [userva, userva+len) in vm's
/// address space.
func (vm *Vm_t) Mkuserbuf(userva uintptr, len int) *Userbuf_t {
	return &Userbuf_t{vm: vm, userva: userva, len: len}
}

func (ub *Userbuf_t) walk(buf []uint8, forwrite bool, into bool) (int, defs.Err_t) {
	done := 0
	for done < len(buf) && ub.off < ub.len {
		va := ub.userva + uintptr(ub.off)
		pg, poff, err := ub.vm.Translate(va, forwrite)
		if err != 0 {
			return done, err
		}
		n := util.Min(len(buf)-done, util.Min(mem.PGSIZE-poff, ub.len-ub.off))
		if into {
			copy(pg[poff:poff+n], buf[done:done+n])
		} else {
			copy(buf[done:done+n], pg[poff:poff+n])
		}
		done += n
		ub.off += n
	}
	return done, 0
}

/// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.walk(dst, false, false)
}

/// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.walk(src, true, true)
}

/// Remain reports how many bytes of the buffer remain untransferred.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

/// Totalsz reports the buffer's total size.
func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

/// Userstr reads a NUL-terminated string from user memory starting at
/// userva, walking byte by byte until a terminator or an invalid
/// address is reached, and failing if it exceeds max bytes.
func (vm *Vm_t) Userstr(userva uintptr, max int) (ustr.Ustr, defs.Err_t) {
	var out ustr.Ustr
	for i := 0; i < max; i++ {
		pg, poff, err := vm.Translate(userva+uintptr(i), false)
		if err != 0 {
			return nil, defs.EFAULT
		}
		b := pg[poff]
		if b == 0 {
			return out, 0
		}
		out = append(out, b)
	}
	return nil, defs.ENAMETOOLONG
}

/// Userreadn reads an n-byte little-endian integer from user memory at
/// userva, n in {1,2,4,8}.
func (vm *Vm_t) Userreadn(userva uintptr, n int) (int, defs.Err_t) {
	buf := make([]uint8, n)
	ub := vm.Mkuserbuf(userva, n)
	if _, err := ub.Uioread(buf); err != 0 {
		return 0, err
	}
	return util.Readn(buf, n, 0), 0
}

/// Userwriten writes val as an n-byte little-endian integer into user
/// memory at userva.
func (vm *Vm_t) Userwriten(userva uintptr, n int, val int) defs.Err_t {
	buf := make([]uint8, n)
	util.Writen(buf, n, 0, val)
	ub := vm.Mkuserbuf(userva, n)
	_, err := ub.Uiowrite(buf)
	return err
}

/// Uservaddr reports whether userva names an address with an
/// installed supplemental-page-table entry, without faulting it in.
/// Used to validate argument-slot addresses before they're read.
func (vm *Vm_t) Uservaddr(userva uintptr) bool {
	pgva := util.Rounddown(userva, uintptr(mem.PGSIZE))
	return vm.spt.Lookup(pgva) != nil
}

/// Fakeubuf_t adapts a plain kernel byte slice to fdops.Userio_i, the
/// way the boot harness and in-kernel console I/O present a buffer
/// that isn't really user memory.
type Fakeubuf_t struct {
	buf []uint8
	off int
}

/// Mkfakeubuf wraps buf for use where a Userio_i is expected.
func Mkfakeubuf(buf []uint8) *Fakeubuf_t {
	return &Fakeubuf_t{buf: buf}
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, fb.buf[fb.off:])
	fb.off += n
	return n, 0
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(fb.buf[fb.off:], src)
	fb.off += n
	return n, 0
}

func (fb *Fakeubuf_t) Remain() int {
	return len(fb.buf) - fb.off
}

func (fb *Fakeubuf_t) Totalsz() int {
	return len(fb.buf)
}
