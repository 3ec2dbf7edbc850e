package vm

import "testing"

import "github.com/stretchr/testify/require"

import "defs"
import "fd"
import "fdops"
import "frame"
import "fs"
import "mem"
import "stat"
import "swap"

type fakeFile struct {
	data    []byte
	reopens int
	closed  int
	mmapok  bool
}

func (f *fakeFile) Close() defs.Err_t  { f.closed++; return 0 }
func (f *fakeFile) Reopen() defs.Err_t { f.reopens++; return 0 }
func (f *fakeFile) Read(dst fdops.Userio_i) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFile) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFile) Lseek(off, whence int) (int, defs.Err_t)    { return 0, 0 }
func (f *fakeFile) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wsize(uint(len(f.data)))
	return 0
}
func (f *fakeFile) Truncate(newlen uint) defs.Err_t { return 0 }
func (f *fakeFile) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	end := offset + dst.Remain()
	if end > len(f.data) {
		end = len(f.data)
	}
	if offset >= len(f.data) {
		return 0, 0
	}
	return dst.Uiowrite(f.data[offset:end])
}
func (f *fakeFile) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	n := src.Remain()
	for len(f.data) < offset+n {
		f.data = append(f.data, 0)
	}
	buf := make([]byte, n)
	got, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	copy(f.data[offset:], buf[:got])
	return got, 0
}
func (f *fakeFile) Mmapi() bool { return f.mmapok }

const usermin = uintptr(0x1000 * 16)
const stacktop = uintptr(0x1000 * 32)

type testDisk struct{ blocks map[int][]byte }

func mkTestDisk() *testDisk { return &testDisk{blocks: make(map[int][]byte)} }
func (d *testDisk) Stats() string { return "" }
func (d *testDisk) Start(req *fs.Bdev_req_t) bool {
	for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
		switch req.Cmd {
		case fs.BDEV_WRITE:
			buf := make([]byte, fs.BSIZE)
			for i := range buf {
				buf[i] = byte(b.Data[i])
			}
			d.blocks[b.Block] = buf
		case fs.BDEV_READ:
			buf, ok := d.blocks[b.Block]
			if !ok {
				buf = make([]byte, fs.BSIZE)
			}
			for i := range buf {
				b.Data[i] = uint8(buf[i])
			}
		}
	}
	return false
}

func mkTestVm(t *testing.T) *Vm_t {
	t.Helper()
	phys := mem.Phys_init(64)
	ft := frame.MkFrametable(phys, 16, nil)
	sw := swap.MkSwap(mkTestDisk(), fs.MkPhysBlockmem(phys), 16)
	return MkVm(ft, sw, usermin, stacktop)
}

func TestPgfaultStackGrowthInstallsZeroPage(t *testing.T) {
	vm := mkTestVm(t)
	addr := stacktop - uintptr(mem.PGSIZE)
	err := vm.Pgfault(addr, addr, false)
	require.Equal(t, defs.Err_t(0), err)
}

func TestPgfaultOutsideStackWindowFaults(t *testing.T) {
	vm := mkTestVm(t)
	err := vm.Pgfault(0x0, stacktop-uintptr(mem.PGSIZE), false)
	require.Equal(t, defs.EFAULT, err)
}

func TestPgfaultWriteToReadOnlyFaults(t *testing.T) {
	vm := mkTestVm(t)
	vm.InstallZero(usermin, false)
	err := vm.Pgfault(usermin, usermin, true)
	require.Equal(t, defs.EFAULT, err)
}

func TestMmapRejectsUnalignedBase(t *testing.T) {
	vm := mkTestVm(t)
	f := &fd.Fd_t{Fops: &fakeFile{mmapok: true, data: make([]byte, 10)}, Perms: fd.FD_READ}
	_, err := vm.Mmap(f, usermin+1)
	require.Equal(t, defs.EINVAL, err)
}

func TestMmapMunmapRoundtrip(t *testing.T) {
	vm := mkTestVm(t)
	backing := &fakeFile{mmapok: true, data: []byte("some file contents")}
	f := &fd.Fd_t{Fops: backing, Perms: fd.FD_READ | fd.FD_WRITE}

	id, err := vm.Mmap(f, usermin)
	require.Equal(t, defs.Err_t(0), err)

	pg, off, err := vm.Translate(usermin, false)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 0, off)
	require.Equal(t, byte('s'), byte(pg[0]))

	require.Equal(t, defs.Err_t(0), vm.Munmap(id))
	require.Equal(t, 1, backing.closed)

	_, _, err = vm.Translate(usermin, false)
	require.Equal(t, defs.EFAULT, err)
}

func TestTeardownUnmapsEverything(t *testing.T) {
	vm := mkTestVm(t)
	backing := &fakeFile{mmapok: true, data: make([]byte, 100)}
	f := &fd.Fd_t{Fops: backing, Perms: fd.FD_READ}
	_, err := vm.Mmap(f, usermin)
	require.Equal(t, defs.Err_t(0), err)

	vm.Teardown()
	require.Equal(t, 1, backing.closed)
}
