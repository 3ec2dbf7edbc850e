// Package proc implements the parent/child exit-status rendezvous: a
// process table keyed by pid, Exit tearing down everything a process
// held, and Wait blocking a parent until its child's exit slot is set.
package proc

import "sync"

import "defs"
import "fd"
import "fs"
import "vm"

// Proc_t is one process's kernel-visible state: its open descriptors,
// its address space, its working directory, and (if it is running an
// executable image) the descriptor deny-write protects.
type Proc_t struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t

	Fdtable *fd.Fdtable_t
	Cwd     *fd.Cwd_t
	Vm      *vm.Vm_t
	Exe     *fd.Fd_t

	pt *Proctable_t

	mapsMu  sync.Mutex // GUARDED_BY: maps, nextMap
	maps    map[int]defs.Mapid_t
	nextMap int

	mu     sync.Mutex // GUARDED_BY: status, exited, waited
	status int
	exited bool
	waited bool
	done   chan struct{}
}

// Proctable_t is the system-wide pid -> Proc_t registry. Entries are
// never removed: a second Wait on an already-reaped pid must still
// find its Proc_t to report -1, per spec.
type Proctable_t struct {
	mu    sync.Mutex
	procs map[defs.Pid_t]*Proc_t
	next  defs.Pid_t
}

// MkProctable returns an empty process table. Pid 0 is never handed
// out, so a zero Pid_t reliably means "no such process".
func MkProctable() *Proctable_t {
	return &Proctable_t{procs: make(map[defs.Pid_t]*Proc_t), next: 1}
}

// Spawn registers a new process, parented at ppid, and returns it.
// When exe is non-nil it is the process's running executable image:
// Spawn denies writes to it for the process's lifetime.
func (pt *Proctable_t) Spawn(ppid defs.Pid_t, vm *vm.Vm_t, cwd *fd.Cwd_t, exe *fd.Fd_t) *Proc_t {
	if exe != nil {
		fs.DenyWrite(exe)
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()
	pid := pt.next
	pt.next++
	p := &Proc_t{
		Pid:     pid,
		Ppid:    ppid,
		Fdtable: fd.MkFdtable(),
		Cwd:     cwd,
		Vm:      vm,
		Exe:     exe,
		pt:      pt,
		maps:    make(map[int]defs.Mapid_t),
		done:    make(chan struct{}),
	}
	pt.procs[pid] = p
	return p
}

// Find returns the process registered under pid, or nil.
func (pt *Proctable_t) Find(pid defs.Pid_t) *Proc_t {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.procs[pid]
}

// AddMapping registers id under a fresh small integer, the form mmap's
// syscall ABI returns to user code, and returns that integer.
func (p *Proc_t) AddMapping(id defs.Mapid_t) int {
	p.mapsMu.Lock()
	defer p.mapsMu.Unlock()
	n := p.nextMap
	p.nextMap++
	p.maps[n] = id
	return n
}

// TakeMapping looks up and forgets the mapping registered under n,
// the reverse of AddMapping, used by munmap. ok is false if n names no
// live mapping.
func (p *Proc_t) TakeMapping(n int) (defs.Mapid_t, bool) {
	p.mapsMu.Lock()
	defer p.mapsMu.Unlock()
	id, ok := p.maps[n]
	if ok {
		delete(p.maps, n)
	}
	return id, ok
}

// Exit writes status into p's exit slot and releases every resource p
// held: its open descriptors, its address space (unmapping every
// memory map and writing back dirty pages), and its executable image
// (re-enabling writes to it). Exit may be called only once per
// process.
func (p *Proc_t) Exit(status int) {
	p.Fdtable.CloseAll()
	p.Vm.Teardown()
	if p.Exe != nil {
		fs.AllowWrite(p.Exe)
		p.Exe.Fops.Close()
	}
	if p.Cwd != nil && p.Cwd.Fd != nil {
		fs.UnmarkCwd(p.Cwd.Fd)
	}

	p.mu.Lock()
	p.status = status
	p.exited = true
	p.mu.Unlock()
	close(p.done)
}

// Wait blocks parent until the child registered under pid has exited,
// then returns its exit status. pid naming a process that is not
// parent's child returns defs.ECHILD. A second Wait on the same
// already-reaped child returns (-1, 0), matching the spec's "subsequent
// waits on the same identifier return -1".
func (pt *Proctable_t) Wait(parent *Proc_t, pid defs.Pid_t) (int, defs.Err_t) {
	child := pt.Find(pid)
	if child == nil || child.Ppid != parent.Pid {
		return -1, defs.ECHILD
	}

	<-child.done

	child.mu.Lock()
	defer child.mu.Unlock()
	if child.waited {
		return -1, 0
	}
	child.waited = true
	return child.status, 0
}
