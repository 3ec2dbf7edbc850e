package fs

import "defs"
import "ustr"
import "util"

// Directory content is a sequence of fixed-size entries stored as the
// directory inode's ordinary byte payload — no separate on-disk
// structure, just ReadAt/WriteAt at entry-aligned offsets.
const (
	DIRENTSZ     = 64
	dirent_child = 0 // 4-byte child-inode sector
	dirent_inuse = 4 // 1-byte in-use flag
	dirent_isdir = 5 // 1-byte: child is itself a directory
	dirent_name  = 6 // NAMELEN bytes, NUL-padded
	NAMELEN      = DIRENTSZ - dirent_name
)

/// NDIRENTS is the number of directory entries that fit in one sector.
const NDIRENTS = BSIZE / DIRENTSZ

/// Dirdata_t is a byte view of one or more consecutive directory
/// entries, addressed by entry index within the buffer. Dir_t reads and
/// writes one entry at a time through a DIRENTSZ-byte Dirdata_t.
type Dirdata_t []uint8

/// Filename returns the j'th entry's name.
func (d Dirdata_t) Filename(j int) ustr.Ustr {
	off := j*DIRENTSZ + dirent_name
	return ustr.MkUstrSlice(d[off : off+NAMELEN])
}

func (d Dirdata_t) setFilename(j int, name ustr.Ustr) {
	off := j*DIRENTSZ + dirent_name
	for i := range d[off : off+NAMELEN] {
		d[off+i] = 0
	}
	copy(d[off:off+NAMELEN], name)
}

/// Childsec returns the j'th entry's child-inode sector.
func (d Dirdata_t) Childsec(j int) int {
	return util.Readn(d, ptrsize, j*DIRENTSZ+dirent_child)
}

func (d Dirdata_t) setChildsec(j int, sec int) {
	util.Writen(d, ptrsize, j*DIRENTSZ+dirent_child, sec)
}

/// Inuse reports whether the j'th entry names a live directory entry.
func (d Dirdata_t) Inuse(j int) bool {
	return d[j*DIRENTSZ+dirent_inuse] != 0
}

func (d Dirdata_t) setInuse(j int, v bool) {
	if v {
		d[j*DIRENTSZ+dirent_inuse] = 1
	} else {
		d[j*DIRENTSZ+dirent_inuse] = 0
	}
}

/// Isdir reports whether the j'th entry's child inode is a directory.
func (d Dirdata_t) Isdir(j int) bool {
	return d[j*DIRENTSZ+dirent_isdir] != 0
}

func (d Dirdata_t) setIsdir(j int, v bool) {
	if v {
		d[j*DIRENTSZ+dirent_isdir] = 1
	} else {
		d[j*DIRENTSZ+dirent_isdir] = 0
	}
}

/// Dir_t views an inode as a directory: a flat array of fixed-size
/// entries, resolved one at a time left to right.
type Dir_t struct {
	ino *Imemnode_t
}

func mkDir(ino *Imemnode_t) *Dir_t {
	return &Dir_t{ino: ino}
}

func (d *Dir_t) nentries() int {
	return d.ino.Size() / DIRENTSZ
}

func (d *Dir_t) readEntry(i int) Dirdata_t {
	buf := make([]uint8, DIRENTSZ)
	d.ino.ReadAt(buf, i*DIRENTSZ)
	return Dirdata_t(buf)
}

func (d *Dir_t) writeEntry(i int, e Dirdata_t) defs.Err_t {
	_, err := d.ino.WriteAt(e, i*DIRENTSZ)
	return err
}

/// Lookup scans for a matching in-use entry and returns its child
/// sector and whether that child is itself a directory.
func (d *Dir_t) Lookup(name ustr.Ustr) (int, bool, bool) {
	n := d.nentries()
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.Inuse(0) && e.Filename(0).Eq(name) {
			return e.Childsec(0), e.Isdir(0), true
		}
	}
	return 0, false, false
}

/// Add appends a new entry mapping name to childsec, reusing a freed
/// slot if one exists. Returns EEXIST if name is already present.
func (d *Dir_t) Add(name ustr.Ustr, childsec int, isdir bool) defs.Err_t {
	if len(name) > NAMELEN {
		return defs.ENAMETOOLONG
	}
	n := d.nentries()
	free := -1
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.Inuse(0) {
			if e.Filename(0).Eq(name) {
				return defs.EEXIST
			}
		} else if free == -1 {
			free = i
		}
	}
	idx := free
	if idx == -1 {
		idx = n
	}
	e := make(Dirdata_t, DIRENTSZ)
	e.setInuse(0, true)
	e.setChildsec(0, childsec)
	e.setIsdir(0, isdir)
	e.setFilename(0, name)
	return d.writeEntry(idx, e)
}

/// Remove marks name's entry free. Returns ENOENT if no such entry
/// exists.
func (d *Dir_t) Remove(name ustr.Ustr) defs.Err_t {
	n := d.nentries()
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.Inuse(0) && e.Filename(0).Eq(name) {
			e.setInuse(0, false)
			return d.writeEntry(i, e)
		}
	}
	return defs.ENOENT
}

/// IsEmpty reports whether the directory has no live entries.
func (d *Dir_t) IsEmpty() bool {
	n := d.nentries()
	for i := 0; i < n; i++ {
		if d.readEntry(i).Inuse(0) {
			return false
		}
	}
	return true
}

/// List returns the names of every live entry, in on-disk order.
func (d *Dir_t) List() []ustr.Ustr {
	n := d.nentries()
	var names []ustr.Ustr
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.Inuse(0) {
			names = append(names, e.Filename(0))
		}
	}
	return names
}
