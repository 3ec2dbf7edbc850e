package scall

import "context"
import "os"
import "testing"
import "time"

import "github.com/stretchr/testify/require"

import "defs"
import "frame"
import "fs"
import "mem"
import "proc"
import "swap"
import "vm"

const (
	usermin   = uintptr(0x10000)
	stacktop  = uintptr(0x10000 + 16*4096)
	stackAddr = stacktop - uintptr(mem.PGSIZE)
	pathAddr  = usermin
	dataAddr  = usermin + uintptr(mem.PGSIZE)
	readAddr  = usermin + 2*uintptr(mem.PGSIZE)
)

type testDisk struct{ blocks map[int][]byte }

func mkTestDisk() *testDisk       { return &testDisk{blocks: make(map[int][]byte)} }
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

type testSetup struct {
	s  *Syscall_t
	p  *proc.Proc_t
	fs *fs.Fs_t
}

func mkTestSetup(t *testing.T) *testSetup {
	t.Helper()
	nsectors := 2048
	tmp, err := os.CreateTemp("", "kernos-scall-*.img")
	require.NoError(t, err)
	require.NoError(t, tmp.Truncate(int64(nsectors*fs.BSIZE)))
	path := tmp.Name()
	require.NoError(t, tmp.Close())
	t.Cleanup(func() { os.Remove(path) })

	disk, uerr := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, uerr)
	t.Cleanup(func() { disk.Close() })

	fsphys := mem.Phys_init(nsectors + 64)
	fsys := fs.MkFS(&osDisk{f: disk}, fsphys, nil, nsectors, true)
	fsys.Start(context.Background(), time.Hour)
	t.Cleanup(func() { fsys.Stop() })
	cwd := fsys.MkRootCwd()

	vmphys := mem.Phys_init(64)
	ft := frame.MkFrametable(vmphys, 32, nil)
	sw := swap.MkSwap(mkTestDisk(), fs.MkPhysBlockmem(vmphys), 32)
	theVm := vm.MkVm(ft, sw, usermin, stacktop)
	theVm.InstallZero(stackAddr, true)
	theVm.InstallZero(pathAddr, true)
	theVm.InstallZero(dataAddr, true)
	theVm.InstallZero(readAddr, true)

	pt := proc.MkProctable()
	p := pt.Spawn(0, theVm, cwd, nil)

	s := MkSyscall(fsys, pt, MkConsole())
	return &testSetup{s: s, p: p, fs: fsys}
}

// osDisk adapts a plain *os.File to fs.Disk_i the same way the
// harness package's driver does, without importing it (scall_test
// doesn't need the harness package's higher-level wrappers).
type osDisk struct{ f *os.File }

func (d *osDisk) Stats() string { return "" }

func (d *osDisk) Start(req *fs.Bdev_req_t) bool {
	switch req.Cmd {
	case fs.BDEV_READ:
		blk := req.Blks.FrontBlock()
		d.f.Seek(int64(blk.Block*fs.BSIZE), 0)
		buf := make([]byte, fs.BSIZE)
		d.f.Read(buf)
		for i := range buf {
			blk.Data[i] = uint8(buf[i])
		}
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			d.f.Seek(int64(b.Block*fs.BSIZE), 0)
			buf := make([]byte, fs.BSIZE)
			for i := range buf {
				buf[i] = byte(b.Data[i])
			}
			d.f.Write(buf)
		}
	case fs.BDEV_FLUSH:
		d.f.Sync()
	}
	return false
}

func writeWord(ts *testSetup, sp uintptr, n int, val int) {
	if err := ts.p.Vm.Userwriten(sp+uintptr(n*wordsz), wordsz, val); err != 0 {
		panic(err)
	}
}

func writeBytes(ts *testSetup, va uintptr, data []byte) {
	ub := ts.p.Vm.Mkuserbuf(va, len(data))
	if _, err := ub.Uiowrite(data); err != 0 {
		panic(err)
	}
}

func writePath(ts *testSetup, va uintptr, path string) {
	writeBytes(ts, va, append([]byte(path), 0))
}

func TestDispatchUnknownSyscallTerminates(t *testing.T) {
	ts := mkTestSetup(t)
	writeWord(ts, stackAddr, 0, 9999)
	ret := ts.s.Dispatch(ts.p, stackAddr)
	require.Equal(t, defs.ExitFailure, ret)
}

func TestDispatchBadStackPointerTerminates(t *testing.T) {
	ts := mkTestSetup(t)
	ret := ts.s.Dispatch(ts.p, 0xbaadf00d)
	require.Equal(t, defs.ExitFailure, ret)
}

func TestCreateWriteCloseOpenReadRoundtrip(t *testing.T) {
	ts := mkTestSetup(t)

	writePath(ts, pathAddr, "/hello")
	writeWord(ts, stackAddr, 0, int(defs.SYS_CREATE))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	fdnum := ts.s.Dispatch(ts.p, stackAddr)
	require.GreaterOrEqual(t, fdnum, defs.FD_FIRST)

	data := []byte("kernel data")
	writeBytes(ts, dataAddr, data)
	writeWord(ts, stackAddr, 0, int(defs.SYS_WRITE))
	writeWord(ts, stackAddr, 1, fdnum)
	writeWord(ts, stackAddr, 2, int(dataAddr))
	writeWord(ts, stackAddr, 3, len(data))
	n := ts.s.Dispatch(ts.p, stackAddr)
	require.Equal(t, len(data), n)

	writeWord(ts, stackAddr, 0, int(defs.SYS_CLOSE))
	writeWord(ts, stackAddr, 1, fdnum)
	require.Equal(t, 0, ts.s.Dispatch(ts.p, stackAddr))

	writePath(ts, pathAddr, "/hello")
	writeWord(ts, stackAddr, 0, int(defs.SYS_OPEN))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	writeWord(ts, stackAddr, 2, defs.O_RDONLY)
	fdnum2 := ts.s.Dispatch(ts.p, stackAddr)
	require.GreaterOrEqual(t, fdnum2, defs.FD_FIRST)

	writeWord(ts, stackAddr, 0, int(defs.SYS_READ))
	writeWord(ts, stackAddr, 1, fdnum2)
	writeWord(ts, stackAddr, 2, int(readAddr))
	writeWord(ts, stackAddr, 3, len(data))
	nread := ts.s.Dispatch(ts.p, stackAddr)
	require.Equal(t, len(data), nread)

	got := make([]byte, len(data))
	ub := ts.p.Vm.Mkuserbuf(readAddr, len(data))
	gotN, err := ub.Uioread(got)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, len(data), gotN)
	require.Equal(t, data, got)
}

func TestMkdirChdirIsdir(t *testing.T) {
	ts := mkTestSetup(t)

	writePath(ts, pathAddr, "/sub")
	writeWord(ts, stackAddr, 0, int(defs.SYS_MKDIR))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	require.Equal(t, 0, ts.s.Dispatch(ts.p, stackAddr))

	writePath(ts, pathAddr, "/sub")
	writeWord(ts, stackAddr, 0, int(defs.SYS_OPEN))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	writeWord(ts, stackAddr, 2, defs.O_RDONLY)
	fdnum := ts.s.Dispatch(ts.p, stackAddr)
	require.GreaterOrEqual(t, fdnum, defs.FD_FIRST)

	writeWord(ts, stackAddr, 0, int(defs.SYS_ISDIR))
	writeWord(ts, stackAddr, 1, fdnum)
	require.Equal(t, 1, ts.s.Dispatch(ts.p, stackAddr))

	writePath(ts, pathAddr, "/sub")
	writeWord(ts, stackAddr, 0, int(defs.SYS_CHDIR))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	require.Equal(t, 0, ts.s.Dispatch(ts.p, stackAddr))
}

func TestRemoveMissingPathReturnsFailure(t *testing.T) {
	ts := mkTestSetup(t)
	writePath(ts, pathAddr, "/nope")
	writeWord(ts, stackAddr, 0, int(defs.SYS_REMOVE))
	writeWord(ts, stackAddr, 1, int(pathAddr))
	require.Equal(t, -1, ts.s.Dispatch(ts.p, stackAddr))
}

func TestCloseUnknownFdReturnsFailure(t *testing.T) {
	ts := mkTestSetup(t)
	writeWord(ts, stackAddr, 0, int(defs.SYS_CLOSE))
	writeWord(ts, stackAddr, 1, 999)
	require.Equal(t, -1, ts.s.Dispatch(ts.p, stackAddr))
}
