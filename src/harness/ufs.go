// Package ufs is a disk-backed test harness: it boots a fs.Fs_t on
// top of a regular file standing in for the block device, and exposes
// the small set of convenience wrappers the package's tests drive the
// filesystem through (create/read/write a file, mkdir, stat, list).
package ufs

import "context"
import "os"
import "time"

import "defs"
import "fd"
import "fs"
import "mem"
import "stat"
import "ustr"
import "vm"

//
// FS
//

// flushInterval is the background task's tick period while booted
// under the harness — short, since tests don't want to wait out the
// real default.
const flushInterval = 10 * time.Millisecond

/// Ufs_t wraps the underlying filesystem and block device.
type Ufs_t struct {
	ahci *ahci_disk_t
	fs   *fs.Fs_t
	cwd  *fd.Cwd_t
}

func mkData(v uint8, n int) *vm.Fakeubuf_t {
	hdata := make([]uint8, n)
	for i := range hdata {
		hdata[i] = v
	}
	return vm.Mkfakeubuf(hdata)
}

/// MkBuf returns a Fakeubuf_t initialized with b.
func MkBuf(b []byte) *vm.Fakeubuf_t {
	hdata := make([]uint8, len(b))
	for i := range hdata {
		hdata[i] = uint8(b[i])
	}
	return vm.Mkfakeubuf(hdata)
}

/// Sync forces every dirty cache entry out to disk immediately,
/// without waiting for the background flusher's next tick.
func (ufs *Ufs_t) Sync() defs.Err_t {
	return ufs.fs.Sync()
}

/// MkFile creates a new file at p and writes ub into it if provided.
func (ufs *Ufs_t) MkFile(p ustr.Ustr, ub *vm.Fakeubuf_t) defs.Err_t {
	f, err := ufs.fs.Create(ufs.cwd, p)
	if err != 0 {
		return err
	}
	if ub != nil {
		_, err := f.Fops.Write(ub)
		if err != 0 || ub.Remain() != 0 {
			f.Fops.Close()
			return err
		}
	}
	return f.Fops.Close()
}

/// MkDir creates a directory at p.
func (ufs *Ufs_t) MkDir(p ustr.Ustr) defs.Err_t {
	return ufs.fs.Mkdir(ufs.cwd, p)
}

/// Update overwrites file p with ub starting at offset zero.
func (ufs *Ufs_t) Update(p ustr.Ustr, ub *vm.Fakeubuf_t) defs.Err_t {
	f, err := ufs.fs.Open(ufs.cwd, p, defs.O_RDWR)
	if err != 0 {
		return err
	}
	_, err = f.Fops.Write(ub)
	if err != 0 || ub.Remain() != 0 {
		f.Fops.Close()
		return err
	}
	return f.Fops.Close()
}

/// Append appends ub to the file at p.
func (ufs *Ufs_t) Append(p ustr.Ustr, ub *vm.Fakeubuf_t) defs.Err_t {
	f, err := ufs.fs.Open(ufs.cwd, p, defs.O_RDWR)
	if err != 0 {
		return err
	}
	if _, err = f.Fops.Lseek(0, defs.SEEK_END); err != 0 {
		f.Fops.Close()
		return err
	}
	_, err = f.Fops.Write(ub)
	if err != 0 || ub.Remain() != 0 {
		f.Fops.Close()
		return err
	}
	return f.Fops.Close()
}

/// Unlink removes the file or empty directory at p.
func (ufs *Ufs_t) Unlink(p ustr.Ustr) defs.Err_t {
	return ufs.fs.Remove(ufs.cwd, p)
}

/// Stat retrieves the stat information for p.
func (ufs *Ufs_t) Stat(p ustr.Ustr) (*stat.Stat_t, defs.Err_t) {
	st := &stat.Stat_t{}
	if err := ufs.fs.Stat(ufs.cwd, p, st); err != 0 {
		return nil, err
	}
	return st, 0
}

/// Read reads the entire file at p into memory.
func (ufs *Ufs_t) Read(p ustr.Ustr) ([]byte, defs.Err_t) {
	st, err := ufs.Stat(p)
	if err != 0 {
		return nil, err
	}
	f, err := ufs.fs.Open(ufs.cwd, p, defs.O_RDONLY)
	if err != 0 {
		return nil, err
	}
	hdata := make([]uint8, st.Size())
	ub := vm.Mkfakeubuf(hdata)

	n, err := f.Fops.Read(ub)
	if err != 0 || uint(n) != st.Size() {
		f.Fops.Close()
		return nil, err
	}
	v := make([]byte, st.Size())
	for i := range hdata {
		v[i] = byte(hdata[i])
	}
	f.Fops.Close()
	return v, 0
}

/// Ls returns a map of child names to stats for directory p.
func (ufs *Ufs_t) Ls(p ustr.Ustr) (map[string]*stat.Stat_t, defs.Err_t) {
	d, err := ufs.fs.Open(ufs.cwd, p, defs.O_RDONLY)
	if err != 0 {
		return nil, err
	}
	names, err := fs.Readdir(d)
	d.Fops.Close()
	if err != 0 {
		return nil, err
	}
	res := make(map[string]*stat.Stat_t, len(names))
	for _, name := range names {
		st, err := ufs.Stat(p.Extend(name))
		if err != 0 {
			return nil, err
		}
		res[string(name)] = st
	}
	return res, 0
}

func openDisk(d string) *ahci_disk_t {
	a := &ahci_disk_t{}
	f, uerr := os.OpenFile(d, os.O_RDWR, 0755)
	if uerr != nil {
		panic(uerr)
	}
	a.f = f
	return a
}

func diskSectors(f *os.File) int {
	fi, err := f.Stat()
	if err != nil {
		panic(err)
	}
	return int(fi.Size() / fs.BSIZE)
}

func boot(dst string, nsectors int, fresh bool) *Ufs_t {
	ufs := &Ufs_t{}
	ufs.ahci = openDisk(dst)
	if nsectors == 0 {
		nsectors = diskSectors(ufs.ahci.f)
	}
	// +64 frames beyond the disk's own sector count so the cache's 64
	// entries and the harness's own buffers never starve the pool.
	phys := mem.Phys_init(nsectors + 64)
	ufs.fs = fs.MkFS(ufs.ahci, phys, nil, nsectors, fresh)
	ufs.fs.Start(context.Background(), flushInterval)
	ufs.cwd = ufs.fs.MkRootCwd()
	return ufs
}

/// BootFS formats dst — which must already hold at least
/// nsectors*fs.BSIZE bytes — as a brand-new filesystem.
func BootFS(dst string, nsectors int) *Ufs_t {
	return boot(dst, nsectors, true)
}

/// BootMemFS mounts the filesystem already persisted on dst, as if the
/// kernel had just rebooted.
func BootMemFS(dst string) *Ufs_t {
	return boot(dst, 0, false)
}

/// ShutdownFS stops the background task, flushes every dirty cache
/// entry, and closes the disk image.
func ShutdownFS(ufs *Ufs_t) {
	ufs.fs.Stop()
	ufs.ahci.close()
}
