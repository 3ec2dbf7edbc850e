// Package limits defines system-wide resource ceilings for open
// inodes, open file descriptors, swap slots, and mapped regions. Each
// is a single shared budget that callers draw from and return; there
// are no per-process quotas. No other package in this module draws
// from these counters.
package limits

import "sync/atomic"

/// Lhits counts limit hits, for diagnostics.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically drawn down
/// and given back.
type Sysatomic_t struct {
	v atomic.Int64
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	s.v.Add(int64(n))
}

/// Taken tries to decrement the limit by the provided amount. It
/// returns true on success, leaving the limit unchanged on failure.
func (s *Sysatomic_t) Taken(n uint) bool {
	if s.v.Add(-int64(n)) >= 0 {
		return true
	}
	s.v.Add(int64(n))
	Lhits++
	return false
}

/// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Remain reports the limit's current value.
func (s *Sysatomic_t) Remain() int64 {
	return s.v.Load()
}

/// Syslimit_t tracks the system-wide resource ceilings this kernel
/// polices.
type Syslimit_t struct {
	// open inodes across all processes
	Vnodes Sysatomic_t
	// open file descriptors across all processes
	Openfds Sysatomic_t
	// swap bitmap slots
	Swapslots Sysatomic_t
	// per-process mmap regions, summed system-wide
	Mapregions Sysatomic_t
}

/// Syslimit describes the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	sl := &Syslimit_t{}
	sl.Vnodes.Given(20000)
	sl.Openfds.Given(1024)
	sl.Swapslots.Given(8192)
	sl.Mapregions.Given(4096)
	return sl
}
