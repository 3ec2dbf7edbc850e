// Package fs implements the on-disk filesystem: a write-back block
// cache, multi-level indexed inodes, directories stored as inode
// payload, and the path-resolution and syscall-facing operations
// (create, open, remove, mkdir, chdir) that sit on top of them.
package fs

import "context"
import "sync"
import "time"

import "github.com/jacobsa/timeutil"

import "bpath"
import "defs"
import "fd"
import "fdops"
import "hashtable"
import "mem"
import "stat"
import "ustr"

const (
	rootSector     = 1
	freemapSectorStart = 2
)

/// Fs_t is the whole mounted filesystem: the cache every layer reads
/// and writes through, the free-space bitmap, the superblock, and the
/// table of currently-open inodes, plus the filesystem's global locks.
type Fs_t struct {
	bcache  *Bcache_t
	sb      *Superblock_t
	freemap *Freemap_t

	openLock   sync.Mutex // open-inode list lock
	openInodes *hashtable.Hashtable_t // sector(int) -> *Imemnode_t

	extLock sync.Mutex // inode-extension lock, global
	fslock  sync.Mutex // coarse file-system lock

	rootSector int
}

/// MkFS mounts the filesystem found on disk, or — if fresh is true —
/// formats a brand new one spanning nsectors sectors first. phys backs
/// the block cache's page allocations; clock (nil for the real wall
/// clock) drives the cache's LRU timestamps.
func MkFS(disk Disk_i, phys *mem.Physmem_t, clock timeutil.Clock, nsectors int, fresh bool) *Fs_t {
	bc := MkCache(disk, phys, clock)
	fs := &Fs_t{
		bcache:     bc,
		openInodes: hashtable.MkHash(64),
		rootSector: rootSector,
	}
	if fresh {
		fs.format(nsectors)
	} else {
		fs.mount()
	}
	return fs
}

// format lays out a brand new filesystem: an empty free-map bitmap
// covering every sector on the device, an empty root directory at
// rootSector, and a superblock describing both.
func (fs *Fs_t) format(nsectors int) {
	bitmaplen := roundupBits(nsectors) / bitsPerSector
	ones := make([]uint8, BSIZE)
	for i := range ones {
		ones[i] = 0xff
	}
	for i := 0; i < bitmaplen; i++ {
		fs.bcache.Write(freemapSectorStart+i, ones)
	}

	fs.freemap = mkFreemap(fs.bcache, freemapSectorStart, bitmaplen, nsectors)
	for i := 0; i < freemapSectorStart+bitmaplen; i++ {
		fs.freemap.setbit(i, false)
	}

	mkinode(fs, rootSector, true)

	fs.sb = &Superblock_t{Data: &mem.Bytepg_t{}}
	fs.sb.SetMagic()
	fs.sb.SetFreemapblock(freemapSectorStart)
	fs.sb.SetFreemaplen(bitmaplen)
	fs.sb.SetRootblock(rootSector)
	fs.sb.SetLastblock(nsectors - 1)
	fs.bcache.Write(0, fs.sb.Data[:])
}

// mount reads an existing superblock and reconstructs the free-map
// view over it.
func (fs *Fs_t) mount() {
	fs.sb = &Superblock_t{Data: &mem.Bytepg_t{}}
	fs.bcache.Read(0, fs.sb.Data[:])
	if fs.sb.Magic() != SBMAGIC {
		panic("fs: bad superblock magic")
	}
	nbits := fs.sb.Lastblock() + 1
	fs.freemap = mkFreemap(fs.bcache, fs.sb.Freemapblock(), fs.sb.Freemaplen(), nbits)
	fs.rootSector = fs.sb.Rootblock()
}

/// Start launches the block cache's background flush/read-ahead task.
func (fs *Fs_t) Start(ctx context.Context, tick time.Duration) {
	fs.bcache.Start(ctx, tick)
}

/// Stop halts the background task and flushes every dirty cache entry.
func (fs *Fs_t) Stop() {
	fs.bcache.Stop()
}

/// Sync flushes every dirty block-cache entry to disk immediately,
/// without waiting for the background task's next tick.
func (fs *Fs_t) Sync() defs.Err_t {
	return fs.bcache.FlushAll()
}

func (fs *Fs_t) getInode(sector int) *Imemnode_t {
	fs.openLock.Lock()
	defer fs.openLock.Unlock()
	if v, ok := fs.openInodes.Get(sector); ok {
		ino := v.(*Imemnode_t)
		ino.Open()
		return ino
	}
	ino := mkImemnode(fs, sector)
	ino.Open()
	fs.openInodes.Set(sector, ino)
	return ino
}

func (fs *Fs_t) putInode(ino *Imemnode_t) {
	if ino.Close() {
		fs.openLock.Lock()
		fs.openInodes.Del(ino.sector)
		fs.openLock.Unlock()
		ino.FreeAll()
	}
}

// namei resolves an already-canonical absolute path to its inode
// sector, walking one directory lookup at a time from the root.
func (fs *Fs_t) namei(path ustr.Ustr) (int, bool, defs.Err_t) {
	if path.Eq(ustr.MkUstrRoot()) {
		return fs.rootSector, true, 0
	}
	sector := fs.rootSector
	isdir := true
	for _, seg := range bpath.Segments(path) {
		if !isdir {
			return 0, false, defs.ENOTDIR
		}
		ino := fs.getInode(sector)
		dir := mkDir(ino)
		child, childIsDir, found := dir.Lookup(seg)
		fs.putInode(ino)
		if !found {
			return 0, false, defs.ENOENT
		}
		sector, isdir = child, childIsDir
	}
	return sector, isdir, 0
}

// create links a new, empty inode of the requested type into its
// parent directory and returns its sector.
func (fs *Fs_t) create(cwd *fd.Cwd_t, path ustr.Ustr, isdir bool) (int, defs.Err_t) {
	dirpath, name := bpath.Split_path(cwd.Fullpath(path))
	if len(name) == 0 {
		return 0, defs.EEXIST
	}
	parentSector, parentIsDir, err := fs.namei(dirpath)
	if err != 0 {
		return 0, err
	}
	if !parentIsDir {
		return 0, defs.ENOTDIR
	}

	parent := fs.getInode(parentSector)
	defer fs.putInode(parent)
	dir := mkDir(parent)

	if _, _, found := dir.Lookup(name); found {
		return 0, defs.EEXIST
	}

	newsec, err := fs.freemap.Allocate(1)
	if err != 0 {
		return 0, err
	}
	mkinode(fs, newsec, isdir)
	if err := dir.Add(name, newsec, isdir); err != 0 {
		fs.freemap.Release(newsec, 1)
		return 0, err
	}
	return newsec, 0
}

/// Create makes a new regular file at path (relative to cwd if not
/// absolute) and returns it open for reading and writing.
func (fs *Fs_t) Create(cwd *fd.Cwd_t, path ustr.Ustr) (*fd.Fd_t, defs.Err_t) {
	fs.fslock.Lock()
	defer fs.fslock.Unlock()
	sector, err := fs.create(cwd, path, false)
	if err != 0 {
		return nil, err
	}
	ino := fs.getInode(sector)
	return &fd.Fd_t{Fops: &filefops_t{fs: fs, ino: ino}, Perms: fd.FD_READ | fd.FD_WRITE}, 0
}

/// Mkdir creates a new, empty directory at path.
func (fs *Fs_t) Mkdir(cwd *fd.Cwd_t, path ustr.Ustr) defs.Err_t {
	fs.fslock.Lock()
	defer fs.fslock.Unlock()
	_, err := fs.create(cwd, path, true)
	return err
}

/// Open resolves path and returns it as an open descriptor, honoring
/// O_CREAT/O_EXCL/O_TRUNC in flags.
func (fs *Fs_t) Open(cwd *fd.Cwd_t, path ustr.Ustr, flags int) (*fd.Fd_t, defs.Err_t) {
	fs.fslock.Lock()
	defer fs.fslock.Unlock()

	full := cwd.Canonicalpath(path)
	sector, isdir, err := fs.namei(full)
	if err == defs.ENOENT {
		if flags&defs.O_CREAT == 0 {
			return nil, defs.ENOENT
		}
		sector, err = fs.create(cwd, path, false)
		isdir = false
		if err != 0 {
			return nil, err
		}
	} else if err != 0 {
		return nil, err
	} else if flags&defs.O_EXCL != 0 && flags&defs.O_CREAT != 0 {
		return nil, defs.EEXIST
	}

	wantswrite := flags&(defs.O_WRONLY|defs.O_RDWR) != 0
	if isdir && wantswrite {
		return nil, defs.EISDIR
	}

	ino := fs.getInode(sector)
	if flags&defs.O_TRUNC != 0 && !isdir {
		ino.Truncate(0)
	}

	perms := 0
	if flags&defs.O_WRONLY != 0 {
		perms = fd.FD_WRITE
	} else if flags&defs.O_RDWR != 0 {
		perms = fd.FD_READ | fd.FD_WRITE
	} else {
		perms = fd.FD_READ
	}
	return &fd.Fd_t{Fops: &filefops_t{fs: fs, ino: ino, isdir: isdir}, Perms: perms}, 0
}

/// Remove unlinks path's directory entry, whether it names a regular
/// file or a directory. A directory target must be empty.
func (fs *Fs_t) Remove(cwd *fd.Cwd_t, path ustr.Ustr) defs.Err_t {
	fs.fslock.Lock()
	defer fs.fslock.Unlock()

	dirpath, name := bpath.Split_path(cwd.Fullpath(path))
	if len(name) == 0 {
		return defs.EINVAL
	}
	parentSector, _, err := fs.namei(dirpath)
	if err != 0 {
		return err
	}
	parent := fs.getInode(parentSector)
	defer fs.putInode(parent)
	dir := mkDir(parent)

	childSector, childIsDir, found := dir.Lookup(name)
	if !found {
		return defs.ENOENT
	}
	if childIsDir {
		childIno := fs.getInode(childSector)
		if !childIno.IsDir() {
			fs.putInode(childIno)
			panic("fs: directory entry and inode disagree on directory-ness")
		}
		empty := mkDir(childIno).IsEmpty()
		isCwd := childIno.IsCwd()
		fs.putInode(childIno)
		if !empty {
			return defs.ENOTEMPTY
		}
		if isCwd {
			return defs.EBUSY
		}
	}
	if err := dir.Remove(name); err != 0 {
		return err
	}
	childIno := fs.getInode(childSector)
	childIno.MarkRemoved()
	fs.putInode(childIno)
	return 0
}

/// Chdir resolves path and, if it names a directory, switches cwd to
/// it.
func (fs *Fs_t) Chdir(cwd *fd.Cwd_t, path ustr.Ustr) defs.Err_t {
	fs.fslock.Lock()
	full := cwd.Canonicalpath(path)
	sector, isdir, err := fs.namei(full)
	fs.fslock.Unlock()
	if err != 0 {
		return err
	}
	if !isdir {
		return defs.ENOTDIR
	}

	ino := fs.getInode(sector)
	ino.CwdRef()
	newfd := &fd.Fd_t{Fops: &filefops_t{fs: fs, ino: ino, isdir: true}, Perms: fd.FD_READ}

	cwd.Lock()
	defer cwd.Unlock()
	old := cwd.Fd
	cwd.Fd = newfd
	cwd.Path = full
	if old != nil {
		old.Fops.(*filefops_t).ino.CwdUnref()
		old.Fops.Close()
	}
	return 0
}

/// MkRootCwd opens the root directory and wraps it as a Cwd_t rooted
/// at "/", the starting point for every process's first process.
func (fs *Fs_t) MkRootCwd() *fd.Cwd_t {
	ino := fs.getInode(fs.rootSector)
	ino.CwdRef()
	rootfd := &fd.Fd_t{Fops: &filefops_t{fs: fs, ino: ino, isdir: true}, Perms: fd.FD_READ}
	return fd.MkRootCwd(rootfd)
}

/// UnmarkCwd releases a process's hold on its working-directory inode
/// and closes the descriptor, called once at process exit. Descriptors
/// not backed by this package (as in unit tests that fake out the cwd)
/// are simply closed.
func UnmarkCwd(f *fd.Fd_t) {
	if ff, ok := f.Fops.(*filefops_t); ok {
		ff.ino.CwdUnref()
	}
	f.Fops.Close()
}

/// Stat resolves path and fills st with its metadata, without opening
/// a lasting descriptor.
func (fs *Fs_t) Stat(cwd *fd.Cwd_t, path ustr.Ustr, st *stat.Stat_t) defs.Err_t {
	fs.fslock.Lock()
	full := cwd.Canonicalpath(path)
	sector, isdir, err := fs.namei(full)
	fs.fslock.Unlock()
	if err != 0 {
		return err
	}
	ino := fs.getInode(sector)
	defer fs.putInode(ino)
	fillStat(st, ino, isdir)
	return 0
}

func fillStat(st *stat.Stat_t, ino *Imemnode_t, isdir bool) {
	st.Wino(uint(ino.sector))
	st.Wsize(uint(ino.Size()))
	if isdir {
		st.Wmode(stat.IFDIR)
	} else {
		st.Wmode(0)
	}
}

/// Readdir lists the entries of an open directory descriptor.
func Readdir(f *fd.Fd_t) ([]ustr.Ustr, defs.Err_t) {
	ff, ok := f.Fops.(*filefops_t)
	if !ok || !ff.isdir {
		return nil, defs.ENOTDIR
	}
	return mkDir(ff.ino).List(), 0
}

/// Isdir reports whether the open descriptor names a directory, per
/// the inode's own on-disk directory bit.
func Isdir(f *fd.Fd_t) bool {
	ff, ok := f.Fops.(*filefops_t)
	return ok && ff.ino.IsDir()
}

/// Inumber returns the inode sector backing the open descriptor.
func Inumber(f *fd.Fd_t) int {
	ff, ok := f.Fops.(*filefops_t)
	if !ok {
		return -1
	}
	return ff.ino.sector
}

/// DenyWrite and AllowWrite expose an open descriptor's inode deny
/// write counter, used while an executable image backs a running
/// process.
func DenyWrite(f *fd.Fd_t) {
	f.Fops.(*filefops_t).ino.DenyWrite()
}

func AllowWrite(f *fd.Fd_t) {
	f.Fops.(*filefops_t).ino.AllowWrite()
}

/// filefops_t adapts an open inode to fdops.Fdops_i, the common
/// backend interface regular files and directories share.
type filefops_t struct {
	fs    *Fs_t
	ino   *Imemnode_t
	isdir bool

	mu  sync.Mutex // GUARDED_BY: off
	off int
}

func (f *filefops_t) Close() defs.Err_t {
	f.fs.putInode(f.ino)
	return 0
}

func (f *filefops_t) Reopen() defs.Err_t {
	f.ino.Open()
	return 0
}

func (f *filefops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if f.isdir {
		return 0, defs.EISDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]uint8, dst.Remain())
	n, err := f.ino.ReadAt(buf, f.off)
	if err != 0 {
		return 0, err
	}
	wrote, err := dst.Uiowrite(buf[:n])
	f.off += wrote
	return wrote, err
}

func (f *filefops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if f.isdir {
		return 0, defs.EISDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	wrote, err := f.ino.WriteAt(buf[:n], f.off)
	f.off += wrote
	return wrote, err
}

func (f *filefops_t) Lseek(off int, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = f.ino.Size() + off
	default:
		return 0, defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, defs.EINVAL
	}
	return f.off, 0
}

func (f *filefops_t) Fstat(st *stat.Stat_t) defs.Err_t {
	fillStat(st, f.ino, f.isdir)
	return 0
}

func (f *filefops_t) Truncate(newlen uint) defs.Err_t {
	if f.isdir {
		return defs.EISDIR
	}
	return f.ino.Truncate(int(newlen))
}

func (f *filefops_t) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	buf := make([]uint8, dst.Remain())
	n, err := f.ino.ReadAt(buf, offset)
	if err != 0 {
		return 0, err
	}
	return dst.Uiowrite(buf[:n])
}

func (f *filefops_t) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	return f.ino.WriteAt(buf[:n], offset)
}

func (f *filefops_t) Mmapi() bool {
	return !f.isdir
}
