package fs

import "mem"
import "util"

// / Superblock_t represents the on-disk super block of a filesystem.
// / There is no journal: the cache's periodic flush and flush-on-shutdown
// / are the only durability mechanism (see cache.go).
type Superblock_t struct {
	Data *mem.Bytepg_t
}

// Field layout within the superblock's single sector, each an 8-byte
// little-endian integer.
const (
	sb_magic        = 0
	sb_freemapblock = 1
	sb_freemaplen   = 2
	sb_rootblock    = 3
	sb_lastblock    = 4
)

// / SBMAGIC identifies a formatted filesystem.
const SBMAGIC = 0x62697363757421 // "biscuit!" squeezed into 7 bytes

func fieldr(data *mem.Bytepg_t, n int) int {
	return util.Readn(data[:], 8, n*8)
}

func fieldw(data *mem.Bytepg_t, n int, v int) {
	util.Writen(data[:], 8, n*8, v)
}

/// Magic returns the superblock's format identifier.
func (sb *Superblock_t) Magic() int {
	return fieldr(sb.Data, sb_magic)
}

/// SetMagic stamps the superblock's format identifier.
func (sb *Superblock_t) SetMagic() {
	fieldw(sb.Data, sb_magic, SBMAGIC)
}

/// Freemapblock returns the starting sector of the free-map file's
/// first data sector.
func (sb *Superblock_t) Freemapblock() int {
	return fieldr(sb.Data, sb_freemapblock)
}

/// SetFreemapblock records the free-map's starting sector.
func (sb *Superblock_t) SetFreemapblock(n int) {
	fieldw(sb.Data, sb_freemapblock, n)
}

/// Freemaplen returns the number of sectors occupied by the free-map.
func (sb *Superblock_t) Freemaplen() int {
	return fieldr(sb.Data, sb_freemaplen)
}

/// SetFreemaplen records the free-map's length in sectors.
func (sb *Superblock_t) SetFreemaplen(n int) {
	fieldw(sb.Data, sb_freemaplen, n)
}

/// Rootblock returns the root directory inode's sector (fixed at 1).
func (sb *Superblock_t) Rootblock() int {
	return fieldr(sb.Data, sb_rootblock)
}

/// SetRootblock records the root directory inode's sector.
func (sb *Superblock_t) SetRootblock(n int) {
	fieldw(sb.Data, sb_rootblock, n)
}

/// Lastblock returns the address of the last sector on the device.
func (sb *Superblock_t) Lastblock() int {
	return fieldr(sb.Data, sb_lastblock)
}

/// SetLastblock stores the address of the last sector on the device.
func (sb *Superblock_t) SetLastblock(n int) {
	fieldw(sb.Data, sb_lastblock, n)
}
