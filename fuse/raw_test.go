package fuse

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/filesystem"
	"github.com/brettbedarf/slowfs/internal/mocks"
	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func header(ino uint64) fuse.InHeader {
	h := fuse.InHeader{NodeId: ino}
	h.Caller.Uid = 1000
	h.Caller.Gid = 100
	h.Caller.Pid = 7
	return h
}

var testCaller = slowfs.Caller{Uid: 1000, Gid: 100, Pid: 7}

func newMockRaw() (*FuseRaw, *mocks.MockOperations) {
	ops := &mocks.MockOperations{}
	return NewFuseRaw(ops, config.NewDefaultConfig()), ops
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want fuse.Status
	}{
		{nil, fuse.OK},
		{slowfs.ErrNotFound, fuse.Status(syscall.ENOENT)},
		{slowfs.ErrIsDirectory, fuse.Status(syscall.EISDIR)},
		{slowfs.ErrNotDirectory, fuse.Status(syscall.ENOTDIR)},
		{slowfs.ErrDirectoryNotEmpty, fuse.Status(syscall.ENOTEMPTY)},
		{slowfs.ErrNameExists, fuse.Status(syscall.EEXIST)},
		{slowfs.ErrInvalidArgument, fuse.Status(syscall.EINVAL)},
		{slowfs.ErrNotSupported, fuse.Status(syscall.ENOSYS)},
		{errors.New("mystery"), fuse.Status(syscall.EIO)},
	}
	for _, tt := range tests {
		raw, ops := newMockRaw()
		ops.On("Unlink", uint64(1), "x").Return(tt.err)
		h := header(1)
		assert.Equal(t, tt.want, raw.Unlink(nil, &h, "x"), "err %v", tt.err)
	}
}

func TestLookupFillsEntry(t *testing.T) {
	t.Parallel()

	raw, ops := newMockRaw()
	attr := fuse.Attr{Ino: 5, Mode: syscall.S_IFREG | 0o644, Size: 3}
	ops.On("Lookup", uint64(1), "f").Return(attr, nil)

	h := header(1)
	var out fuse.EntryOut
	require.Equal(t, fuse.OK, raw.Lookup(nil, &h, "f", &out))
	assert.Equal(t, uint64(5), out.NodeId)
	assert.Equal(t, attr, out.Attr)
	assert.Equal(t, uint64(1), out.EntryValid, "entry timeout from config")
	assert.Equal(t, uint64(1), out.AttrValid)

	ops.On("Lookup", uint64(1), "missing").Return(nil, slowfs.ErrNotFound)
	assert.Equal(t, fuse.Status(syscall.ENOENT), raw.Lookup(nil, &h, "missing", &out))
}

func TestCreatePassesCallerAndUmask(t *testing.T) {
	t.Parallel()

	raw, ops := newMockRaw()
	ops.On("Create", uint64(1), "f", uint32(syscall.S_IFREG|0o644), testCaller).
		Return(fuse.Attr{Ino: 9, Mode: syscall.S_IFREG | 0o644}, nil)

	in := fuse.CreateIn{InHeader: header(1), Mode: syscall.S_IFREG | 0o666, Umask: 0o022}
	var out fuse.CreateOut
	require.Equal(t, fuse.OK, raw.Create(nil, &in, "f", &out))
	assert.Equal(t, uint64(9), out.NodeId)
	assert.Equal(t, uint64(9), out.Fh, "handle is the inode")
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), out.OpenFlags)
	ops.AssertExpectations(t)
}

func TestOpenWithoutDirectIO(t *testing.T) {
	t.Parallel()

	ops := &mocks.MockOperations{}
	cfg := config.NewDefaultConfig()
	cfg.DirectIO = false
	raw := NewFuseRaw(ops, cfg)
	ops.On("Open", uint64(4)).Return(nil)

	in := fuse.OpenIn{InHeader: header(4)}
	var out fuse.OpenOut
	require.Equal(t, fuse.OK, raw.Open(nil, &in, &out))
	assert.Equal(t, uint64(4), out.Fh)
	assert.Zero(t, out.OpenFlags)
}

func TestAttrChanges(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	in := fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_MODE | fuse.FATTR_SIZE | fuse.FATTR_ATIME | fuse.FATTR_ATIME_NOW | fuse.FATTR_MTIME
	in.Mode = 0o600
	in.Size = 42
	in.Mtime = 100
	in.Mtimensec = 5
	in.Uid = 99 // not valid, ignored

	got := attrChanges(&in, now)
	mode, size, mtime := uint32(0o600), uint64(42), time.Unix(100, 5)
	want := slowfs.AttrChanges{Mode: &mode, Size: &size, Atime: &now, Mtime: &mtime}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attrChanges() mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, attrChanges(&fuse.SetAttrIn{}, now).IsEmpty())
}

func TestRenameFlags(t *testing.T) {
	t.Parallel()

	raw, ops := newMockRaw()
	ops.On("Rename", uint64(1), "a", uint64(2), "b").Return(nil)
	ops.On("RenameNoReplace", uint64(1), "a", uint64(2), "b").
		Return(fmt.Errorf("rename over %q: %w", "b", slowfs.ErrNameExists))

	in := fuse.RenameIn{InHeader: header(1), Newdir: 2}
	assert.Equal(t, fuse.OK, raw.Rename(nil, &in, "a", "b"))

	in.Flags = unix.RENAME_NOREPLACE
	assert.Equal(t, fuse.Status(syscall.EEXIST), raw.Rename(nil, &in, "a", "b"))

	in.Flags = unix.RENAME_EXCHANGE
	assert.Equal(t, fuse.EINVAL, raw.Rename(nil, &in, "a", "b"))
	ops.AssertNumberOfCalls(t, "Rename", 1)
	ops.AssertNumberOfCalls(t, "RenameNoReplace", 1)
}

func TestReleaseLogsOnly(t *testing.T) {
	t.Parallel()

	raw, ops := newMockRaw()
	ops.On("Release", uint64(3)).Return(slowfs.ErrNotFound)
	in := fuse.ReleaseIn{InHeader: header(3), Fh: 3}
	raw.Release(nil, &in)
	ops.AssertExpectations(t)
}

func TestUnsupportedThroughBridge(t *testing.T) {
	t.Parallel()

	raw := NewFuseRaw(filesystem.NewFS(nil), nil)
	h := header(slowfs.RootIno)
	var out fuse.EntryOut
	assert.Equal(t, fuse.Status(syscall.ENOSYS), raw.Symlink(nil, &h, "target", "link", &out))
	_, st := raw.Readlink(nil, &h)
	assert.Equal(t, fuse.Status(syscall.ENOSYS), st)
	mk := fuse.MknodIn{InHeader: header(slowfs.RootIno), Mode: syscall.S_IFIFO | 0o644}
	assert.Equal(t, fuse.Status(syscall.ENOSYS), raw.Mknod(nil, &mk, "fifo", &out))
}

func TestReadWriteThroughBridge(t *testing.T) {
	t.Parallel()

	fs := filesystem.NewFS(nil, filesystem.WithWriteFault(nil))
	raw := NewFuseRaw(fs, nil)

	in := fuse.CreateIn{InHeader: header(slowfs.RootIno), Mode: 0o644}
	var created fuse.CreateOut
	require.Equal(t, fuse.OK, raw.Create(nil, &in, "f", &created))
	ino := created.NodeId

	w := fuse.WriteIn{InHeader: header(ino), Fh: ino, Offset: 4}
	n, st := raw.Write(nil, &w, []byte("data"))
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, uint32(4), n)

	rd := fuse.ReadIn{InHeader: header(ino), Fh: ino, Offset: 0, Size: 100}
	res, st := raw.Read(nil, &rd, make([]byte, 100))
	require.Equal(t, fuse.OK, st)
	data, st := res.Bytes(make([]byte, 100))
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, []byte("\x00\x00\x00\x00data"), data)

	var attr fuse.AttrOut
	ga := fuse.GetAttrIn{InHeader: header(ino)}
	require.Equal(t, fuse.OK, raw.GetAttr(nil, &ga, &attr))
	assert.Equal(t, uint64(8), attr.Size)

	raw.Release(nil, &fuse.ReleaseIn{InHeader: header(ino), Fh: ino})
	assert.Equal(t, int64(0), fs.OpenHandles(ino))

	var st2 fuse.StatfsOut
	h := header(slowfs.RootIno)
	require.Equal(t, fuse.OK, raw.StatFs(nil, &h, &st2))
	assert.Equal(t, uint64(2), st2.Files)
}

func TestFillDir(t *testing.T) {
	t.Parallel()

	fs := filesystem.NewFS(nil)
	for _, name := range []string{"a", "b", "c"} {
		_, err := fs.Mkdir(slowfs.RootIno, name, 0o755, testCaller)
		require.NoError(t, err)
	}

	stream, err := fs.ReadDir(slowfs.RootIno, 0)
	require.NoError(t, err)
	var got []fuse.DirEntry
	n := fillDir(stream, func(de slowfs.DirEntry) bool {
		if len(got) == 2 {
			return false // buffer full
		}
		got = append(got, dirEntry(de))
		return true
	})
	require.Equal(t, 2, n)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o755), got[0].Mode)

	// the kernel resumes from the last offset it received
	stream, err = fs.ReadDir(slowfs.RootIno, got[1].Off)
	require.NoError(t, err)
	var rest []string
	fillDir(stream, func(de slowfs.DirEntry) bool {
		rest = append(rest, de.Name)
		return true
	})
	assert.Equal(t, []string{"c"}, rest)
}

func TestReadDirErrors(t *testing.T) {
	t.Parallel()

	raw, ops := newMockRaw()
	ops.On("ReadDir", uint64(5), uint64(0)).Return(nil, slowfs.ErrNotDirectory)
	in := fuse.ReadIn{InHeader: header(5)}
	assert.Equal(t, fuse.Status(syscall.ENOTDIR), raw.ReadDir(nil, &in, nil))
	assert.Equal(t, fuse.Status(syscall.ENOTDIR), raw.ReadDirPlus(nil, &in, nil))

	ops.On("GetAttr", uint64(6)).Return(nil, slowfs.ErrNotFound)
	open := fuse.OpenIn{InHeader: header(6)}
	var out fuse.OpenOut
	assert.Equal(t, fuse.Status(syscall.ENOENT), raw.OpenDir(nil, &open, &out))
}
