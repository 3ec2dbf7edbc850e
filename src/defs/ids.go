package defs

import "github.com/google/uuid"

// Tid_t identifies the kernel thread executing a process's current
// syscall. Pid_t identifies a process for wait/exit rendezvous.
type Tid_t int
type Pid_t int

// Mapid_t identifies a memory-mapped region within one process. It is
// a uuid rather than a reused small integer so that a stale id used
// after munmap fails a type-safe lookup instead of silently aliasing
// whatever mapping was assigned the same reused integer next.
type Mapid_t uuid.UUID

// NewMapid returns a fresh, globally unique mapping identifier.
func NewMapid() Mapid_t {
	return Mapid_t(uuid.New())
}
