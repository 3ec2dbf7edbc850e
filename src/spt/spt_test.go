package spt

import "testing"

import "github.com/stretchr/testify/require"

import "defs"
import "fdops"
import "frame"
import "fs"
import "mem"
import "stat"
import "swap"

// fakeFile is a minimal in-memory fdops.Fdops_i backing FROM_FILE_*
// descriptors in tests: only Pread/Pwrite are exercised by spt.
type fakeFile struct {
	data []byte
}

func (f *fakeFile) Close() defs.Err_t                           { return 0 }
func (f *fakeFile) Reopen() defs.Err_t                          { return 0 }
func (f *fakeFile) Read(dst fdops.Userio_i) (int, defs.Err_t)   { return 0, 0 }
func (f *fakeFile) Write(src fdops.Userio_i) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFile) Lseek(off, whence int) (int, defs.Err_t)     { return 0, 0 }
func (f *fakeFile) Fstat(st *stat.Stat_t) defs.Err_t            { return 0 }
func (f *fakeFile) Truncate(newlen uint) defs.Err_t             { return 0 }
func (f *fakeFile) Mmapi() bool                                 { return true }

func (f *fakeFile) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	end := offset + dst.Remain()
	if end > len(f.data) {
		end = len(f.data)
	}
	if offset > len(f.data) {
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

// fakeDisk is an in-memory stand-in for the swap device.
type fakeDisk struct{ blocks map[int][]byte }

func mkFakeDisk() *fakeDisk { return &fakeDisk{blocks: make(map[int][]byte)} }

func (d *fakeDisk) Stats() string { return "" }

func (d *fakeDisk) Start(req *fs.Bdev_req_t) bool {
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

func mkTestSpt(t *testing.T, frames, slots int) (*Spt_t, *frame.Frametable_t) {
	t.Helper()
	phys := mem.Phys_init(frames + slots + 16)
	ft := frame.MkFrametable(phys, frames, nil)
	sw := swap.MkSwap(mkFakeDisk(), fs.MkPhysBlockmem(phys), slots)
	return MkSpt(ft, sw, nil), ft
}

func TestInstallZeroLoadIsZeroed(t *testing.T) {
	s, ft := mkTestSpt(t, 4, 4)
	s.InstallZero(0x1000, true)

	spe, err := s.Load(0x1000)
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, spe.Resident)
	require.Equal(t, ON_FRAME, spe.Tag())
	require.Equal(t, mem.Bytepg_t{}, *ft.PageOf(spe.Pa))
}

func TestUnmappedLoadFaults(t *testing.T) {
	s, _ := mkTestSpt(t, 4, 4)
	_, err := s.Load(0xdead)
	require.Equal(t, defs.EFAULT, err)
}

func TestMappedFileLoadReadsBytes(t *testing.T) {
	s, ft := mkTestSpt(t, 4, 4)
	f := &fakeFile{data: []byte("hello world")}
	s.InstallMapped(0x2000, f, 0, len(f.data), true)

	spe, err := s.Load(0x2000)
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, spe.Resident)
	require.Equal(t, f.data, ft.PageOf(spe.Pa)[:len(f.data)])
}

func TestEvictWritesBackDirtyMappedPage(t *testing.T) {
	s, ft := mkTestSpt(t, 1, 4)
	f := &fakeFile{data: make([]byte, mem.PGSIZE)}
	s.InstallMapped(0x3000, f, 0, mem.PGSIZE, true)

	spe, err := s.Load(0x3000)
	require.Equal(t, defs.Err_t(0), err)
	pg := ft.PageOf(spe.Pa)
	pg[0] = 0xAB
	s.MarkDirty(0x3000)

	// forcing a second page into a one-frame table evicts the first.
	s.InstallZero(0x4000, true)
	_, err = s.Load(0x4000)
	require.Equal(t, defs.Err_t(0), err)

	require.False(t, spe.Resident)
	require.Equal(t, uint8(0xAB), f.data[0])
}

func TestEvictSwapsOutDirtyAnonymousPage(t *testing.T) {
	s, _ := mkTestSpt(t, 1, 4)
	s.InstallZero(0x5000, true)
	spe, err := s.Load(0x5000)
	require.Equal(t, defs.Err_t(0), err)
	s.MarkDirty(0x5000)

	s.InstallZero(0x6000, true)
	_, err = s.Load(0x6000)
	require.Equal(t, defs.Err_t(0), err)

	require.False(t, spe.Resident)
	require.Equal(t, IN_SWAP, spe.Source)

	spe2, err := s.Load(0x5000)
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, spe2.Resident)
}

func TestRemoveFreesResidentFrame(t *testing.T) {
	s, ft := mkTestSpt(t, 4, 4)
	s.InstallZero(0x7000, true)
	_, err := s.Load(0x7000)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 1, ft.Nresident())

	require.Equal(t, defs.Err_t(0), s.Remove(0x7000))
	require.Equal(t, 0, ft.Nresident())
	require.Nil(t, s.Lookup(0x7000))
}
