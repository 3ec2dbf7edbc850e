package fd

import "sync"

import "bpath"
import "defs"
import "fdops"
import "ustr"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// Fd_t represents an open file descriptor.
type Fd_t struct {
       // fops is an interface implemented via a "pointer receiver", thus fops
       // is a reference, not a value
       Fops  fdops.Fdops_i /// descriptor operations
       Perms int           /// permission bits
}

/// Copyfd duplicates an open file descriptor by reopening it.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	err := nfd.Fops.Reopen()
	if err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
       sync.Mutex // to serialize chdirs
       Fd   *Fd_t    /// current directory fd
       Path ustr.Ustr /// canonical path
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	} else {
		full := append(cwd.Path, '/')
		return append(full, p...)
	}
}

/// Canonicalpath resolves path components relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	p1 := cwd.Fullpath(p)
	return bpath.Canonicalize(p1)
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	c := &Cwd_t{}
	c.Fd = fd
	c.Path = ustr.MkUstrRoot()
	return c
}

/// firstFd is the first descriptor number a process's own opens
/// allocate; 0, 1, and 2 are reserved for console I/O.
const firstFd = 3

/// slot_t pairs an allocated descriptor number with its Fd_t.
type slot_t struct {
	num int
	fd  *Fd_t
}

/// Fdtable_t is one process's table of open file descriptors, indexed
/// by a monotonically increasing counter starting at firstFd.
type Fdtable_t struct {
	sync.Mutex
	slots []slot_t
	next  int
}

/// MkFdtable constructs an empty descriptor table.
func MkFdtable() *Fdtable_t {
	return &Fdtable_t{next: firstFd}
}

/// Insert appends fd to the table and returns its new descriptor
/// number.
func (ft *Fdtable_t) Insert(fd *Fd_t) int {
	ft.Lock()
	defer ft.Unlock()
	n := ft.next
	ft.next++
	ft.slots = append(ft.slots, slot_t{num: n, fd: fd})
	return n
}

/// Lookup returns the descriptor registered under num, or nil if none
/// is open there.
func (ft *Fdtable_t) Lookup(num int) *Fd_t {
	ft.Lock()
	defer ft.Unlock()
	for i := range ft.slots {
		if ft.slots[i].num == num {
			return ft.slots[i].fd
		}
	}
	return nil
}

/// Close closes and removes the descriptor registered under num.
/// Returns defs.EBADF if num isn't open.
func (ft *Fdtable_t) Close(num int) defs.Err_t {
	ft.Lock()
	for i := range ft.slots {
		if ft.slots[i].num == num {
			f := ft.slots[i].fd
			ft.slots = append(ft.slots[:i], ft.slots[i+1:]...)
			ft.Unlock()
			return f.Fops.Close()
		}
	}
	ft.Unlock()
	return defs.EBADF
}

/// CloseAll closes every open descriptor, used at process exit.
func (ft *Fdtable_t) CloseAll() {
	ft.Lock()
	slots := ft.slots
	ft.slots = nil
	ft.Unlock()
	for _, s := range slots {
		s.fd.Fops.Close()
	}
}
