package ufs

import "os"
import "testing"

import "github.com/stretchr/testify/require"

import "defs"
import "fs"
import "ustr"

// mkDisk creates a temp file padded to nsectors*fs.BSIZE bytes and
// returns its path. The caller is responsible for removing it.
func mkDisk(t *testing.T, nsectors int) string {
	t.Helper()
	f, err := os.CreateTemp("", "kernos-fs-*.img")
	require.NoError(t, err)
	path := f.Name()
	require.NoError(t, f.Truncate(int64(nsectors*fs.BSIZE)))
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(path) })
	return path
}

func TestCreateReadWrite(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	data := []byte("hello, kernos")
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/hello"), MkBuf(data)))

	got, err := u.Read(ustr.Ustr("/hello"))
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, data, got)
}

func TestMkdirAndLs(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	require.Equal(t, defs.Err_t(0), u.MkDir(ustr.Ustr("/d")))
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/d/a"), MkBuf([]byte("aaa"))))
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/d/b"), MkBuf([]byte("bb"))))

	ents, err := u.Ls(ustr.Ustr("/d"))
	require.Equal(t, defs.Err_t(0), err)
	require.Len(t, ents, 2)
	require.Equal(t, uint(3), ents["a"].Size())
	require.Equal(t, uint(2), ents["b"].Size())
}

func TestUnlink(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/f"), MkBuf([]byte("x"))))
	require.Equal(t, defs.Err_t(0), u.Unlink(ustr.Ustr("/f")))

	_, err := u.Stat(ustr.Ustr("/f"))
	require.Equal(t, defs.ENOENT, err)
}

func TestRemoveNonemptyDirFails(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	require.Equal(t, defs.Err_t(0), u.MkDir(ustr.Ustr("/d")))
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/d/a"), nil))
	require.Equal(t, defs.ENOTEMPTY, u.Unlink(ustr.Ustr("/d")))

	require.Equal(t, defs.Err_t(0), u.Unlink(ustr.Ustr("/d/a")))
	require.Equal(t, defs.Err_t(0), u.Unlink(ustr.Ustr("/d")))
}

func TestUpdateAndAppend(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/f"), MkBuf([]byte("1234"))))
	require.Equal(t, defs.Err_t(0), u.Update(ustr.Ustr("/f"), MkBuf([]byte("ab"))))

	got, _ := u.Read(ustr.Ustr("/f"))
	require.Equal(t, []byte("ab34"), got)

	require.Equal(t, defs.Err_t(0), u.Append(ustr.Ustr("/f"), MkBuf([]byte("Z"))))
	got, _ = u.Read(ustr.Ustr("/f"))
	require.Equal(t, []byte("ab34Z"), got)
}

// TestLargeFileCrossesIndirectBlocks writes a file large enough to
// need the inode's indirect block, exercising the direct/indirect
// boundary in the block-mapping logic.
func TestLargeFileCrossesIndirectBlocks(t *testing.T) {
	path := mkDisk(t, 4096)
	u := BootFS(path, 4096)
	defer ShutdownFS(u)

	n := (fs.NDIRECT+4)*fs.BSIZE + 17
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/big"), MkBuf(data)))

	got, err := u.Read(ustr.Ustr("/big"))
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, data, got)
}

func TestRemountPreservesData(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/persist"), MkBuf([]byte("still here"))))
	require.Equal(t, defs.Err_t(0), u.Sync())
	ShutdownFS(u)

	u2 := BootMemFS(path)
	defer ShutdownFS(u2)
	got, err := u2.Read(ustr.Ustr("/persist"))
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, []byte("still here"), got)
}

func TestStatModeDir(t *testing.T) {
	path := mkDisk(t, 2048)
	u := BootFS(path, 2048)
	defer ShutdownFS(u)

	require.Equal(t, defs.Err_t(0), u.MkDir(ustr.Ustr("/d")))
	st, err := u.Stat(ustr.Ustr("/d"))
	require.Equal(t, defs.Err_t(0), err)
	require.NotZero(t, st.Mode())
}
