// Package fdops defines the interfaces file-descriptor backends and
// user-buffer implementations share, breaking the import cycle
// between fd, fs, and vm: none of them depend on each other, they all
// depend on fdops.
package fdops

import "defs"
import "stat"

// Userio_i abstracts a transfer to or from a buffer the caller already
// has the right to access: either real user memory (vm.Userbuf_t) or
// a plain kernel byte slice dressed up to look like one (used by the
// boot harness and by in-kernel read/write on console fds).
type Userio_i interface {
	// Uioread copies from the underlying buffer into dst.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies src into the underlying buffer.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain reports how many bytes are left untransferred.
	Remain() int
	// Totalsz reports the buffer's total size.
	Totalsz() int
}

// Ready_t is a bitmask of readiness conditions used by Pollmsg_t.
type Ready_t uint

const (
	R_READ  Ready_t = 1 << iota // readable without blocking
	R_WRITE                     // writable without blocking
	R_ERROR                     // an error condition is pending
	R_HUP                       // the peer has closed its end
)

// Pollmsg_t asks a backend which of the requested Ready_t conditions
// currently hold.
type Pollmsg_t struct {
	Events Ready_t
}

// Fdops_i is the set of operations every open file descriptor backend
// implements: regular files, directories, and the console. fd.Fd_t
// holds one as Fops and forwards syscalls to it.
type Fdops_i interface {
	// Close releases the backend's resources. Called once per
	// descriptor, even when the descriptor was dup'd.
	Close() defs.Err_t
	// Reopen increments whatever reference count backs the
	// descriptor, used when the descriptor is duplicated.
	Reopen() defs.Err_t
	// Read transfers from the backend into dst starting at the
	// descriptor's current offset, which it advances.
	Read(dst Userio_i) (int, defs.Err_t)
	// Write transfers from src into the backend starting at the
	// descriptor's current offset, which it advances.
	Write(src Userio_i) (int, defs.Err_t)
	// Lseek repositions the descriptor's offset and returns the new
	// value.
	Lseek(off int, whence int) (int, defs.Err_t)
	// Fstat fills st with the backend's metadata.
	Fstat(st *stat.Stat_t) defs.Err_t
	// Truncate resizes the backing file to newlen bytes.
	Truncate(newlen uint) defs.Err_t
	// Pread transfers up to dst.Remain() bytes starting at file offset offset,
	// independent of and without disturbing the descriptor's own
	// offset. Used by the page-fault handler to materialize
	// file-backed pages.
	Pread(dst Userio_i, offset int) (int, defs.Err_t)
	// Pwrite is Pread's write counterpart, used to write back a
	// dirty file-backed page during eviction.
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)
	// Mmapi returns true if this backend may be mapped into a
	// process's address space.
	Mmapi() bool
}
