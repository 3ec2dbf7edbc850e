package defs

// Device identifiers for the small set of special files the fd layer
// recognizes. Only the console is modeled; the teacher's fuller set
// (sockets, /dev/null, raw disk, stat/prof pseudo-files) belongs to
// subsystems this module doesn't implement.
const (
	D_CONSOLE int = 1 // console device
)
