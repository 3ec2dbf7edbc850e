// Package scall implements the syscall dispatcher: table-driven
// decode of the syscall number and its arguments from the user stack,
// per-argument validation, and the handlers that translate each
// syscall into calls against fs, vm, and proc. A handler failure
// classified as a bad-argument violation terminates the calling
// process with exit status -1, matching every other validation
// failure; anything else (not-found, denied, out-of-resource) returns
// a conventional failure value to the caller.
package scall

import "defs"
import "fs"
import "proc"
import "stat"
import "ustr"

// wordsz is the size in bytes of one argument slot on the user stack.
const wordsz = 8

// maxPathLen bounds how far Userstr will walk looking for a path's
// terminating NUL before giving up with ENAMETOOLONG.
const maxPathLen = 1024

type handler_t func(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t)

type syscallent_t struct {
	nargs int
	fn    handler_t
}

var table [defs.SYS_NSYSCALLS]syscallent_t

func init() {
	table[defs.SYS_HALT] = syscallent_t{0, sysHalt}
	table[defs.SYS_EXIT] = syscallent_t{1, sysExit}
	table[defs.SYS_EXEC] = syscallent_t{1, sysExec}
	table[defs.SYS_WAIT] = syscallent_t{1, sysWait}
	table[defs.SYS_CREATE] = syscallent_t{1, sysCreate}
	table[defs.SYS_REMOVE] = syscallent_t{1, sysRemove}
	table[defs.SYS_OPEN] = syscallent_t{2, sysOpen}
	table[defs.SYS_FILESIZE] = syscallent_t{1, sysFilesize}
	table[defs.SYS_READ] = syscallent_t{3, sysRead}
	table[defs.SYS_WRITE] = syscallent_t{3, sysWrite}
	table[defs.SYS_SEEK] = syscallent_t{2, sysSeek}
	table[defs.SYS_TELL] = syscallent_t{1, sysTell}
	table[defs.SYS_CLOSE] = syscallent_t{1, sysClose}
	table[defs.SYS_MMAP] = syscallent_t{2, sysMmap}
	table[defs.SYS_MUNMAP] = syscallent_t{1, sysMunmap}
	table[defs.SYS_CHDIR] = syscallent_t{1, sysChdir}
	table[defs.SYS_MKDIR] = syscallent_t{1, sysMkdir}
	table[defs.SYS_READDIR] = syscallent_t{3, sysReaddir}
	table[defs.SYS_ISDIR] = syscallent_t{1, sysIsdir}
	table[defs.SYS_INUMBER] = syscallent_t{1, sysInumber}
}

// Syscall_t is the dispatcher's fixed set of kernel services: the
// mounted filesystem, the process table (for wait), and the console.
// One Syscall_t is shared by every process.
type Syscall_t struct {
	fs      *fs.Fs_t
	pt      *proc.Proctable_t
	console *Console_t
}

// MkSyscall constructs a dispatcher bound to fs, pt, and console.
func MkSyscall(fsys *fs.Fs_t, pt *proc.Proctable_t, console *Console_t) *Syscall_t {
	return &Syscall_t{fs: fsys, pt: pt, console: console}
}

// readWord validates and reads the n'th argument slot (0 is the
// syscall number itself) from the user stack at sp.
func (s *Syscall_t) readWord(p *proc.Proc_t, sp uintptr, n int) (int, bool) {
	va := sp + uintptr(n*wordsz)
	if !p.Vm.Uservaddr(va) {
		return 0, false
	}
	v, err := p.Vm.Userreadn(va, wordsz)
	if err != 0 {
		return 0, false
	}
	return v, true
}

// terminates reports whether err belongs to the BadArgument class:
// invalid pointer, string too long, or any other malformed argument.
// These terminate the calling process; everything else is returned as
// a conventional failure value.
func terminates(err defs.Err_t) bool {
	switch err {
	case defs.EFAULT, defs.ENAMETOOLONG, defs.EINVAL:
		return true
	default:
		return false
	}
}

// Dispatch reads the syscall number and its arguments from the user
// stack at sp, validates them, and invokes the handler. The returned
// int is the value the trap-frame's return register should receive;
// a process terminated by validation failure or a BadArgument handler
// result returns defs.ExitFailure.
func (s *Syscall_t) Dispatch(p *proc.Proc_t, sp uintptr) int {
	sysnoRaw, ok := s.readWord(p, sp, 0)
	if !ok {
		p.Exit(defs.ExitFailure)
		return defs.ExitFailure
	}
	sysno := defs.Sysno_t(sysnoRaw)
	if sysno < 0 || sysno >= defs.SYS_NSYSCALLS {
		p.Exit(defs.ExitFailure)
		return defs.ExitFailure
	}

	ent := table[sysno]
	var args [3]int
	for i := 0; i < ent.nargs; i++ {
		v, ok := s.readWord(p, sp, i+1)
		if !ok {
			p.Exit(defs.ExitFailure)
			return defs.ExitFailure
		}
		args[i] = v
	}

	ret, err := ent.fn(s, p, args)
	if err != 0 {
		if terminates(err) {
			p.Exit(defs.ExitFailure)
			return defs.ExitFailure
		}
		return -1
	}
	return ret
}

// readPath validates and reads a NUL-terminated path string starting
// at user address va.
func (s *Syscall_t) readPath(p *proc.Proc_t, va uintptr) (ustr.Ustr, defs.Err_t) {
	return p.Vm.Userstr(va, maxPathLen)
}

func sysHalt(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	return 0, 0
}

func sysExit(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	status := args[0]
	p.Exit(status)
	return status, 0
}

// sysExec always fails: the ELF loader is out of this module's scope,
// so every exec attempt is reported as a load failure. A bad path
// pointer still terminates the caller like any other BadArgument
// violation, but the load failure itself is a conventional -1 return:
// the calling process survives, only a real exec would have replaced
// it.
func sysExec(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	if _, err := s.readPath(p, uintptr(args[0])); err != 0 {
		return -1, err
	}
	return -1, 0
}

func sysWait(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	status, err := s.pt.Wait(p, defs.Pid_t(args[0]))
	if err != 0 {
		return -1, 0
	}
	return status, 0
}

func sysCreate(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	path, err := s.readPath(p, uintptr(args[0]))
	if err != 0 {
		return -1, err
	}
	nf, err := s.fs.Create(p.Cwd, path)
	if err != 0 {
		return -1, err
	}
	return p.Fdtable.Insert(nf), 0
}

func sysRemove(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	path, err := s.readPath(p, uintptr(args[0]))
	if err != 0 {
		return -1, err
	}
	if err := s.fs.Remove(p.Cwd, path); err != 0 {
		return -1, err
	}
	return 0, 0
}

func sysOpen(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	path, err := s.readPath(p, uintptr(args[0]))
	if err != 0 {
		return -1, err
	}
	nf, err := s.fs.Open(p.Cwd, path, args[1])
	if err != 0 {
		return -1, err
	}
	return p.Fdtable.Insert(nf), 0
}

func sysFilesize(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	f := p.Fdtable.Lookup(args[0])
	if f == nil {
		return -1, defs.EBADF
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return -1, err
	}
	return int(st.Size()), 0
}

func sysRead(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	fdn, va, count := args[0], uintptr(args[1]), args[2]
	if count < 0 {
		return -1, defs.EINVAL
	}
	ub := p.Vm.Mkuserbuf(va, count)
	if fdn == defs.FD_STDIN {
		return s.console.Read(ub)
	}
	f := p.Fdtable.Lookup(fdn)
	if f == nil {
		return -1, defs.EBADF
	}
	return f.Fops.Read(ub)
}

func sysWrite(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	fdn, va, count := args[0], uintptr(args[1]), args[2]
	if count < 0 {
		return -1, defs.EINVAL
	}
	ub := p.Vm.Mkuserbuf(va, count)
	if fdn == defs.FD_STDOUT {
		return s.console.Write(ub)
	}
	f := p.Fdtable.Lookup(fdn)
	if f == nil {
		return -1, defs.EBADF
	}
	return f.Fops.Write(ub)
}

func sysSeek(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	f := p.Fdtable.Lookup(args[0])
	if f == nil {
		return -1, defs.EBADF
	}
	return f.Fops.Lseek(args[1], defs.SEEK_SET)
}

func sysTell(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	f := p.Fdtable.Lookup(args[0])
	if f == nil {
		return -1, defs.EBADF
	}
	return f.Fops.Lseek(0, defs.SEEK_CUR)
}

func sysClose(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	if err := p.Fdtable.Close(args[0]); err != 0 {
		return -1, err
	}
	return 0, 0
}

func sysMmap(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	fdn := args[0]
	if fdn < defs.FD_FIRST {
		return -1, defs.EINVAL
	}
	f := p.Fdtable.Lookup(fdn)
	if f == nil {
		return -1, defs.EBADF
	}
	id, err := p.Vm.Mmap(f, uintptr(args[1]))
	if err != 0 {
		return -1, err
	}
	return p.AddMapping(id), 0
}

func sysMunmap(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	id, ok := p.TakeMapping(args[0])
	if !ok {
		return -1, defs.ENOENT
	}
	if err := p.Vm.Munmap(id); err != 0 {
		return -1, err
	}
	return 0, 0
}

func sysChdir(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	path, err := s.readPath(p, uintptr(args[0]))
	if err != 0 {
		return -1, err
	}
	if err := s.fs.Chdir(p.Cwd, path); err != 0 {
		return -1, err
	}
	return 0, 0
}

func sysMkdir(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	path, err := s.readPath(p, uintptr(args[0]))
	if err != 0 {
		return -1, err
	}
	if err := s.fs.Mkdir(p.Cwd, path); err != 0 {
		return -1, err
	}
	return 0, 0
}

// sysReaddir writes the directory entry at the fd's current position
// into the user buffer [va, va+buflen) as a NUL-terminated name,
// advancing the position by one. It returns 1 when an entry was
// written, 0 at end-of-directory.
func sysReaddir(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	fdn, va, buflen := args[0], uintptr(args[1]), args[2]
	f := p.Fdtable.Lookup(fdn)
	if f == nil {
		return -1, defs.EBADF
	}
	names, err := fs.Readdir(f)
	if err != 0 {
		return -1, err
	}
	idx, err := f.Fops.Lseek(0, defs.SEEK_CUR)
	if err != 0 {
		return -1, err
	}
	if idx >= len(names) {
		return 0, 0
	}
	name := names[idx]
	if len(name)+1 > buflen {
		return -1, defs.ENAMETOOLONG
	}
	buf := append(append(make([]uint8, 0, len(name)+1), name...), 0)
	ub := p.Vm.Mkuserbuf(va, len(buf))
	if _, err := ub.Uiowrite(buf); err != 0 {
		return -1, err
	}
	if _, err := f.Fops.Lseek(1, defs.SEEK_CUR); err != 0 {
		return -1, err
	}
	return 1, 0
}

func sysIsdir(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	f := p.Fdtable.Lookup(args[0])
	if f == nil {
		return -1, defs.EBADF
	}
	if fs.Isdir(f) {
		return 1, 0
	}
	return 0, 0
}

func sysInumber(s *Syscall_t, p *proc.Proc_t, args [3]int) (int, defs.Err_t) {
	f := p.Fdtable.Lookup(args[0])
	if f == nil {
		return -1, defs.EBADF
	}
	n := fs.Inumber(f)
	if n < 0 {
		return -1, defs.EBADF
	}
	return n, 0
}
