package fs

import "sync"

import "defs"
import "mem"
import "util"

/// NDIRECT is the number of direct block pointers an inode carries.
const NDIRECT = 12

/// ptrsize is the on-disk width, in bytes, of one block pointer.
const ptrsize = 4

/// IPB is the number of block pointers that fit in one indirect
/// sector: sector-size ÷ sizeof(pointer).
const IPB = BSIZE / ptrsize

/// iblocks is the total number of pointer slots an inode carries: 12
/// direct, 1 indirect, 1 double-indirect.
const iblocks = NDIRECT + 2

/// indirectSlot and dindirectSlot are the pointer-slot indices of the
/// inode's indirect and double-indirect blocks.
const (
	indirectSlot  = NDIRECT
	dindirectSlot = NDIRECT + 1
)

/// INODEMAGIC identifies a formatted inode sector.
const INODEMAGIC = 0x494E4F44

// Field offsets within an inode's sector: iblocks 4-byte pointers,
// then a 4-byte length, a 4-byte magic, and a 1-byte directory flag.
// The remainder of the sector is zero-padded.
const (
	off_length = iblocks * ptrsize
	off_magic  = off_length + 4
	off_isdir  = off_magic + 4
)

/// ino_disk_t is the on-disk inode image: a view over one sector.
type ino_disk_t struct {
	data *mem.Bytepg_t
}

func (d *ino_disk_t) block(i int) int {
	return util.Readn(d.data[:], ptrsize, i*ptrsize)
}

func (d *ino_disk_t) setblock(i int, v int) {
	util.Writen(d.data[:], ptrsize, i*ptrsize, v)
}

func (d *ino_disk_t) size() int {
	return util.Readn(d.data[:], 4, off_length)
}

func (d *ino_disk_t) setsize(v int) {
	util.Writen(d.data[:], 4, off_length, v)
}

func (d *ino_disk_t) magic() int {
	return util.Readn(d.data[:], 4, off_magic)
}

func (d *ino_disk_t) setmagic() {
	util.Writen(d.data[:], 4, off_magic, INODEMAGIC)
}

func (d *ino_disk_t) isdir() bool {
	return util.Readn(d.data[:], 1, off_isdir) != 0
}

func (d *ino_disk_t) setisdir(v bool) {
	n := 0
	if v {
		n = 1
	}
	util.Writen(d.data[:], 1, off_isdir, n)
}

/// Imemnode_t is the in-memory image of an inode: the on-disk fields
/// plus the bookkeeping every opener shares. One instance exists per
/// open sector, found through Fs_t.openInodes and reference-counted by
/// opencnt; the invariant denywrite <= opencnt holds at every release
/// point.
type Imemnode_t struct {
	fs     *Fs_t
	sector int

	mu      sync.Mutex // GUARDED_BY: disk, opencnt, removed, denywrite
	disk    ino_disk_t
	opencnt int
	removed bool
	denywrite int
	cwdcnt    int
}

func mkImemnode(fs *Fs_t, sector int) *Imemnode_t {
	ino := &Imemnode_t{fs: fs, sector: sector}
	ino.disk.data = &mem.Bytepg_t{}
	fs.bcache.Read(sector, ino.disk.data[:])
	return ino
}

// flush writes the inode's in-memory image back through the cache.
// Caller holds ino.mu.
func (ino *Imemnode_t) flush() {
	ino.fs.bcache.Write(ino.sector, ino.disk.data[:])
}

/// Size returns the inode's current length in bytes.
func (ino *Imemnode_t) Size() int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.size()
}

/// IsDir reports whether the inode's own on-disk sector is formatted
/// as a directory, independent of how its containing directory entry
/// tagged it; Remove's empty-check cross-checks the two.
func (ino *Imemnode_t) IsDir() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.isdir()
}

/// mkinode formats a freshly allocated sector as an empty inode of the
/// given type.
func mkinode(fs *Fs_t, sector int, isdir bool) {
	var data mem.Bytepg_t
	d := ino_disk_t{data: &data}
	d.setmagic()
	d.setsize(0)
	d.setisdir(isdir)
	fs.bcache.Write(sector, data[:])
}

// blockFor translates logical block index idx to a physical sector,
// per the direct/indirect/double-indirect map described for file
// addressing. If alloc is false, a hole (unallocated pointer) reads
// back as sector 0, signaling the caller to zero-fill. If alloc is
// true, any missing intermediate or leaf sector is allocated and
// zeroed first.
func (ino *Imemnode_t) blockFor(idx int, alloc bool) (int, defs.Err_t) {
	switch {
	case idx < NDIRECT:
		return ino.derefSlot(idx, alloc)
	case idx < NDIRECT+IPB:
		return ino.blockForIndirect(indirectSlot, idx-NDIRECT, alloc)
	default:
		idx2 := idx - NDIRECT - IPB
		outer := idx2 / IPB
		inner := idx2 % IPB
		indsec, err := ino.blockForPtr(dindirectSlot, outer, alloc)
		if err != 0 || indsec == 0 {
			return 0, err
		}
		return ino.blockForSector(indsec, inner, alloc)
	}
}

// derefSlot resolves (and optionally allocates) one of the inode's
// direct block pointers.
func (ino *Imemnode_t) derefSlot(idx int, alloc bool) (int, defs.Err_t) {
	cur := ino.disk.block(idx)
	if cur != 0 {
		return cur, 0
	}
	if !alloc {
		return 0, 0
	}
	sec, err := ino.allocZeroed()
	if err != 0 {
		return 0, err
	}
	ino.disk.setblock(idx, sec)
	return sec, 0
}

// blockForPtr resolves (and optionally allocates) the pointer at index
// idx within the indirect sector referenced by inode slot slot.
func (ino *Imemnode_t) blockForPtr(slot, idx int, alloc bool) (int, defs.Err_t) {
	indsec := ino.disk.block(slot)
	if indsec == 0 {
		if !alloc {
			return 0, 0
		}
		sec, err := ino.allocZeroed()
		if err != 0 {
			return 0, err
		}
		ino.disk.setblock(slot, sec)
		indsec = sec
	}
	return ino.blockForSector(indsec, idx, alloc)
}

func (ino *Imemnode_t) blockForIndirect(slot, idx int, alloc bool) (int, defs.Err_t) {
	return ino.blockForPtr(slot, idx, alloc)
}

// blockForSector resolves (and optionally allocates) pointer idx
// within the indirect sector sec, writing the updated pointer back
// through the cache when a new leaf is allocated.
func (ino *Imemnode_t) blockForSector(sec, idx int, alloc bool) (int, defs.Err_t) {
	buf := make([]uint8, BSIZE)
	ino.fs.bcache.Read(sec, buf)
	cur := util.Readn(buf, ptrsize, idx*ptrsize)
	if cur != 0 {
		return cur, 0
	}
	if !alloc {
		return 0, 0
	}
	leaf, err := ino.allocZeroed()
	if err != 0 {
		return 0, err
	}
	util.Writen(buf, ptrsize, idx*ptrsize, leaf)
	ino.fs.bcache.Write(sec, buf)
	return leaf, 0
}

// allocZeroed allocates one sector from the free-map and writes zeros
// into it so reads past the old EOF within an extended file, or
// reads through a freshly allocated indirect sector, see zeros rather
// than stale disk contents.
func (ino *Imemnode_t) allocZeroed() (int, defs.Err_t) {
	sec, err := ino.fs.freemap.Allocate(1)
	if err != 0 {
		return 0, err
	}
	zero := make([]uint8, BSIZE)
	ino.fs.bcache.Write(sec, zero)
	return sec, 0
}

/// ReadAt copies up to len(buf) bytes starting at byte offset off into
/// buf, stopping at EOF, and returns the number of bytes copied.
func (ino *Imemnode_t) ReadAt(buf []uint8, off int) (int, defs.Err_t) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	sz := ino.disk.size()
	if off >= sz {
		return 0, 0
	}
	n := util.Min(len(buf), sz-off)
	got := 0
	for got < n {
		idx := (off + got) / BSIZE
		secoff := (off + got) % BSIZE
		want := util.Min(n-got, BSIZE-secoff)

		sec, err := ino.blockFor(idx, false)
		if err != 0 {
			return got, err
		}
		if sec == 0 {
			for i := 0; i < want; i++ {
				buf[got+i] = 0
			}
		} else {
			scratch := make([]uint8, BSIZE)
			ino.fs.bcache.Read(sec, scratch)
			copy(buf[got:got+want], scratch[secoff:secoff+want])
		}
		got += want
	}
	return got, 0
}

/// WriteAt copies buf into the file starting at byte offset off,
/// growing the file first (under the global inode-extension lock) if
/// the write extends past the current length. Returns 0 bytes written
/// without error while the inode's deny-write counter is non-zero.
func (ino *Imemnode_t) WriteAt(buf []uint8, off int) (int, defs.Err_t) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.denywrite > 0 {
		return 0, 0
	}

	newlen := off + len(buf)
	if newlen > ino.disk.size() {
		if err := ino.growTo(newlen); err != 0 {
			return 0, err
		}
	}

	got := 0
	for got < len(buf) {
		idx := (off + got) / BSIZE
		secoff := (off + got) % BSIZE
		want := util.Min(len(buf)-got, BSIZE-secoff)

		sec, err := ino.blockFor(idx, true)
		if err != 0 {
			return got, err
		}
		scratch := make([]uint8, BSIZE)
		if secoff != 0 || want != BSIZE {
			ino.fs.bcache.Read(sec, scratch)
		}
		copy(scratch[secoff:secoff+want], buf[got:got+want])
		ino.fs.bcache.Write(sec, scratch)
		got += want
	}
	ino.flush()
	return got, 0
}

// growTo extends the inode to at least newlen bytes. It re-checks the
// current size after acquiring the global extension lock (the size
// check in WriteAt happened unlocked against this specific lock) so
// two concurrent growers never both allocate the same tail blocks.
func (ino *Imemnode_t) growTo(newlen int) defs.Err_t {
	ino.fs.extLock.Lock()
	defer ino.fs.extLock.Unlock()

	cur := ino.disk.size()
	if newlen <= cur {
		return 0
	}
	// Touch every block up to the new length so intervening holes
	// are allocated and zeroed, not just the final one.
	lastidx := (newlen - 1) / BSIZE
	firstnew := cur / BSIZE
	for idx := firstnew; idx <= lastidx; idx++ {
		if _, err := ino.blockFor(idx, true); err != 0 {
			return err
		}
	}
	ino.disk.setsize(newlen)
	ino.flush()
	return 0
}

/// Truncate resizes the file to newlen bytes. Shrinking frees the data
/// sectors no longer covered (see freeFrom for the indirect structures).
/// Growing only records the new length: no sectors are allocated, and
/// unallocated sectors in the added range read back as zeros.
func (ino *Imemnode_t) Truncate(newlen int) defs.Err_t {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	cur := ino.disk.size()
	if newlen >= cur {
		ino.disk.setsize(newlen)
		ino.flush()
		return 0
	}
	ino.freeFrom(newlen, cur)
	ino.disk.setsize(newlen)
	ino.flush()
	return 0
}

// freeFrom releases every data sector covering bytes [newlen, cur) back
// to the free-map. The indirect block is released once newlen lies
// within the direct range; the double-indirect block, together with the
// indirect blocks it points to, is released only when newlen is 0.
// Caller holds ino.mu.
func (ino *Imemnode_t) freeFrom(newlen, cur int) {
	firstidx := newlen / BSIZE
	if newlen%BSIZE != 0 {
		firstidx++
	}
	lastidx := (cur - 1) / BSIZE
	for idx := firstidx; idx <= lastidx; idx++ {
		ino.freeBlock(idx)
	}
	if firstidx <= NDIRECT {
		if ind := ino.disk.block(indirectSlot); ind != 0 && newlen <= NDIRECT*BSIZE {
			ino.fs.freemap.Release(ind, 1)
			ino.disk.setblock(indirectSlot, 0)
		}
	}
	if newlen == 0 {
		if dind := ino.disk.block(dindirectSlot); dind != 0 {
			buf := make([]uint8, BSIZE)
			ino.fs.bcache.Read(dind, buf)
			for i := 0; i < IPB; i++ {
				if indsec := util.Readn(buf, ptrsize, i*ptrsize); indsec != 0 {
					ino.fs.freemap.Release(indsec, 1)
				}
			}
			ino.fs.freemap.Release(dind, 1)
			ino.disk.setblock(dindirectSlot, 0)
		}
	}
}

func (ino *Imemnode_t) freeBlock(idx int) {
	sec, err := ino.blockFor(idx, false)
	if err != 0 || sec == 0 {
		return
	}
	ino.fs.freemap.Release(sec, 1)
	switch {
	case idx < NDIRECT:
		ino.disk.setblock(idx, 0)
	case idx < NDIRECT+IPB:
		ino.clearIndirectPtr(indirectSlot, idx-NDIRECT)
	default:
		idx2 := idx - NDIRECT - IPB
		outer := idx2 / IPB
		inner := idx2 % IPB
		if dind := ino.disk.block(dindirectSlot); dind != 0 {
			buf := make([]uint8, BSIZE)
			ino.fs.bcache.Read(dind, buf)
			indsec := util.Readn(buf, ptrsize, outer*ptrsize)
			if indsec != 0 {
				ino.clearSectorPtr(indsec, inner)
			}
		}
	}
}

func (ino *Imemnode_t) clearIndirectPtr(slot, idx int) {
	indsec := ino.disk.block(slot)
	if indsec == 0 {
		return
	}
	ino.clearSectorPtr(indsec, idx)
}

func (ino *Imemnode_t) clearSectorPtr(sec, idx int) {
	buf := make([]uint8, BSIZE)
	ino.fs.bcache.Read(sec, buf)
	util.Writen(buf, ptrsize, idx*ptrsize, 0)
	ino.fs.bcache.Write(sec, buf)
}

/// FreeAll releases every sector the inode owns, including the inode
/// sector itself. Called once, when the last opener closes an inode
/// already marked removed.
func (ino *Imemnode_t) FreeAll() {
	ino.mu.Lock()
	sz := ino.disk.size()
	if sz > 0 {
		ino.freeFrom(0, sz)
	}
	if dind := ino.disk.block(dindirectSlot); dind != 0 {
		ino.fs.freemap.Release(dind, 1)
	}
	if ind := ino.disk.block(indirectSlot); ind != 0 {
		ino.fs.freemap.Release(ind, 1)
	}
	ino.mu.Unlock()
	ino.fs.freemap.Release(ino.sector, 1)
}

/// Open increments the inode's open count.
func (ino *Imemnode_t) Open() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.opencnt++
}

/// Close decrements the inode's open count and reports whether this
/// was the last opener of an inode marked removed — the caller (Fs_t)
/// is then responsible for FreeAll and dropping it from the open list.
func (ino *Imemnode_t) Close() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.opencnt--
	if ino.opencnt < 0 {
		panic("inode: close without open")
	}
	return ino.opencnt == 0 && ino.removed
}

/// MarkRemoved flags the inode as unlinked from its directory; its
/// sectors are reclaimed once the last opener closes it.
func (ino *Imemnode_t) MarkRemoved() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.removed = true
}

/// DenyWrite increments the inode's deny-write counter, used while an
/// executable image backs a running process.
func (ino *Imemnode_t) DenyWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.denywrite++
	if ino.denywrite > ino.opencnt {
		panic("inode: denywrite exceeds opencnt")
	}
}

/// AllowWrite decrements the inode's deny-write counter.
func (ino *Imemnode_t) AllowWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.denywrite == 0 {
		panic("inode: allowwrite without denywrite")
	}
	ino.denywrite--
}

/// CwdRef increments the inode's current-working-directory refcount,
/// taken while some process's Cwd_t points at this inode.
func (ino *Imemnode_t) CwdRef() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.cwdcnt++
}

/// CwdUnref decrements the inode's current-working-directory refcount.
func (ino *Imemnode_t) CwdUnref() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.cwdcnt == 0 {
		panic("inode: cwdunref without cwdref")
	}
	ino.cwdcnt--
}

/// IsCwd reports whether any process currently has this inode as its
/// working directory.
func (ino *Imemnode_t) IsCwd() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.cwdcnt > 0
}
