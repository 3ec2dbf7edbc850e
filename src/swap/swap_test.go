package swap

import "testing"

import "github.com/stretchr/testify/require"

import "defs"
import "fs"
import "mem"

// fakeDisk is an in-memory stand-in for the swap device: each block
// number maps to a page-sized byte slice.
type fakeDisk struct {
	blocks map[int][]byte
}

func mkFakeDisk() *fakeDisk {
	return &fakeDisk{blocks: make(map[int][]byte)}
}

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

func mkTestSwap(t *testing.T, nslots int) *Swap_t {
	t.Helper()
	phys := mem.Phys_init(nslots + 16)
	bm := fs.MkPhysBlockmem(phys)
	return MkSwap(mkFakeDisk(), bm, nslots)
}

func TestStoreReadRoundTrip(t *testing.T) {
	sw := mkTestSwap(t, 4)

	var pg mem.Bytepg_t
	for i := range pg {
		pg[i] = uint8(i % 255)
	}
	slot, err := sw.Store(&pg)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 3, sw.Nfree())

	var got mem.Bytepg_t
	require.Equal(t, defs.Err_t(0), sw.Read(slot, &got))
	require.Equal(t, pg, got)

	sw.Free(slot)
	require.Equal(t, 4, sw.Nfree())
}

func TestStoreExhaustion(t *testing.T) {
	sw := mkTestSwap(t, 2)
	var pg mem.Bytepg_t

	_, err := sw.Store(&pg)
	require.Equal(t, defs.Err_t(0), err)
	_, err = sw.Store(&pg)
	require.Equal(t, defs.Err_t(0), err)

	_, err = sw.Store(&pg)
	require.Equal(t, defs.ENOSWAP, err)
}

func TestFreeThenReallocate(t *testing.T) {
	sw := mkTestSwap(t, 1)
	var pg mem.Bytepg_t

	slot, err := sw.Store(&pg)
	require.Equal(t, defs.Err_t(0), err)
	sw.Free(slot)

	slot2, err := sw.Store(&pg)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, slot, slot2)
}

func TestDoubleFreePanics(t *testing.T) {
	sw := mkTestSwap(t, 1)
	var pg mem.Bytepg_t
	slot, _ := sw.Store(&pg)
	sw.Free(slot)
	require.Panics(t, func() { sw.Free(slot) })
}
