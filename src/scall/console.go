package scall

import "mem"

import "circbuf"
import "defs"
import "fdops"

// Console_t backs file descriptors 0 and 1. Its input queue is filled
// and its output buffer drained by the keyboard-interrupt handler and
// display driver, both external collaborators outside this module's
// scope; Console_t only implements the queue/buffer the syscalls read
// and write.
type Console_t struct {
	in  circbuf.Circbuf_t
	out circbuf.Circbuf_t
}

// MkConsole constructs a Console_t with page-sized input and output
// buffers, backed by the global physical-frame pool.
func MkConsole() *Console_t {
	c := &Console_t{}
	c.in.Cb_init(mem.PGSIZE, mem.Physmem)
	c.out.Cb_init(mem.PGSIZE, mem.Physmem)
	return c
}

// Read services fd 0: copies queued input characters into dst.
func (c *Console_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return c.in.Copyout(dst)
}

// Write services fd 1: queues src into the output buffer.
func (c *Console_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return c.out.Copyin(src)
}
