package filesystem

import (
	"bytes"
	"math"
	"syscall"
	"testing"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/internal/util"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	t.Parallel()

	t.Run("gap past end is zero filled", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")

		n, err := fs.Write(ino, 10, []byte("hi"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		attr, err := fs.GetAttr(ino)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), attr.Size)
		assert.Equal(t, uint64(1), attr.Blocks)

		data, err := fs.Read(ino, 0, 12)
		require.NoError(t, err)
		assert.Equal(t, append(make([]byte, 10), "hi"...), data)
	})

	t.Run("overwrite in place", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("hello world"))
		require.NoError(t, err)
		_, err = fs.Write(ino, 6, []byte("WORLD"))
		require.NoError(t, err)

		data, err := fs.Read(ino, 0, 64)
		require.NoError(t, err)
		assert.Equal(t, "hello WORLD", string(data))
	})

	t.Run("read ranges", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("0123456789"))
		require.NoError(t, err)

		tests := []struct {
			name   string
			offset int64
			length int
			want   string
		}{
			{"middle", 2, 3, "234"},
			{"clipped at end", 8, 10, "89"},
			{"at end", 10, 5, ""},
			{"past end", 100, 5, ""},
			{"zero length", 0, 0, ""},
		}
		for _, tt := range tests {
			data, err := fs.Read(ino, tt.offset, tt.length)
			require.NoError(t, err, tt.name)
			assert.NotNil(t, data, tt.name)
			assert.Equal(t, tt.want, string(data), tt.name)
		}
	})

	t.Run("read returns a copy", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("abc"))
		require.NoError(t, err)

		data, err := fs.Read(ino, 0, 3)
		require.NoError(t, err)
		data[0] = 'X'
		again, err := fs.Read(ino, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("directories", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		dir := createDir(t, fs, slowfs.RootIno, "d")
		_, err := fs.Read(dir, 0, 1)
		assert.ErrorIs(t, err, slowfs.ErrIsDirectory)
		_, err = fs.Write(dir, 0, []byte("x"))
		assert.ErrorIs(t, err, slowfs.ErrIsDirectory)
	})

	t.Run("negative offsets", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Read(ino, -1, 1)
		assert.ErrorIs(t, err, slowfs.ErrInvalidArgument)
		_, err = fs.Write(ino, -1, []byte("x"))
		assert.ErrorIs(t, err, slowfs.ErrInvalidArgument)
	})

	t.Run("oversized length is clipped", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("abc"))
		require.NoError(t, err)

		data, err := fs.Read(ino, 1, math.MaxInt)
		require.NoError(t, err)
		assert.Equal(t, []byte("bc"), data)
	})

	t.Run("offset overflowing the end", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, math.MaxInt64, []byte("x"))
		assert.ErrorIs(t, err, slowfs.ErrInvalidArgument)
		assert.Equal(t, 0, fs.table.mustGet(t, ino).Size())
	})

	t.Run("write stamps mtime", func(t *testing.T) {
		t.Parallel()
		clock := time.Unix(1_600_000_000, 0)
		fs := NewFS(createTestConfig(), WithClock(func() time.Time { return clock }))
		ino := createFile(t, fs, slowfs.RootIno, "f")

		clock = clock.Add(time.Minute)
		_, err := fs.Write(ino, 0, []byte("x"))
		require.NoError(t, err)
		attr, err := fs.GetAttr(ino)
		require.NoError(t, err)
		assert.Equal(t, uint64(clock.Unix()), attr.Mtime)
		assert.Equal(t, uint64(clock.Add(-time.Minute).Unix()), attr.Atime)
	})
}

func TestSetAttr(t *testing.T) {
	t.Parallel()

	t.Run("truncate then extend reads zeros", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("secretdata"))
		require.NoError(t, err)

		attr, err := fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(3))})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), attr.Size)

		attr, err = fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(8))})
		require.NoError(t, err)
		assert.Equal(t, uint64(8), attr.Size)

		data, err := fs.Read(ino, 0, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte("sec\x00\x00\x00\x00\x00"), data)
	})

	t.Run("write after truncate does not resurrect bytes", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, bytes.Repeat([]byte("z"), 16))
		require.NoError(t, err)
		_, err = fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(0))})
		require.NoError(t, err)

		_, err = fs.Write(ino, 12, []byte("!"))
		require.NoError(t, err)
		data, err := fs.Read(ino, 0, 16)
		require.NoError(t, err)
		assert.Equal(t, append(make([]byte, 12), '!'), data)
	})

	t.Run("mode keeps type bits", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		dir := createDir(t, fs, slowfs.RootIno, "d")
		attr, err := fs.SetAttr(dir, slowfs.AttrChanges{Mode: util.Pointer(uint32(syscall.S_IFREG | 0o700))})
		require.NoError(t, err)
		assert.Equal(t, uint32(syscall.S_IFDIR|0o700), attr.Mode)
	})

	t.Run("ownership and times", func(t *testing.T) {
		t.Parallel()
		clock := time.Unix(1_650_000_000, 0)
		fs := NewFS(createTestConfig(), WithClock(func() time.Time { return clock }))
		ino := createFile(t, fs, slowfs.RootIno, "f")
		before, err := fs.GetAttr(ino)
		require.NoError(t, err)

		atime := time.Unix(1_000_000_000, 500)
		mtime := time.Unix(1_100_000_000, 0)
		clock = clock.Add(time.Hour)
		got, err := fs.SetAttr(ino, slowfs.AttrChanges{
			Uid:   util.Pointer(uint32(0)),
			Gid:   util.Pointer(uint32(5)),
			Rdev:  util.Pointer(uint32(7)),
			Atime: &atime,
			Mtime: &mtime,
		})
		require.NoError(t, err)

		want := before
		want.Uid, want.Gid, want.Rdev = 0, 5, 7
		want.SetTimes(&atime, &mtime, &clock)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("SetAttr() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("size change stamps mtime unless given", func(t *testing.T) {
		t.Parallel()
		clock := time.Unix(1_650_000_000, 0)
		fs := NewFS(createTestConfig(), WithClock(func() time.Time { return clock }))
		ino := createFile(t, fs, slowfs.RootIno, "f")

		clock = clock.Add(time.Hour)
		attr, err := fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(4))})
		require.NoError(t, err)
		assert.Equal(t, uint64(clock.Unix()), attr.Mtime)

		explicit := time.Unix(5, 0)
		attr, err = fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(1)), Mtime: &explicit})
		require.NoError(t, err)
		assert.Equal(t, uint64(5), attr.Mtime)
	})

	t.Run("empty change set is a getattr", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		before, err := fs.GetAttr(ino)
		require.NoError(t, err)
		after, err := fs.SetAttr(ino, slowfs.AttrChanges{})
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(before, after))
	})

	t.Run("truncate directory", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		dir := createDir(t, fs, slowfs.RootIno, "d")
		_, err := fs.SetAttr(dir, slowfs.AttrChanges{Size: util.Pointer(uint64(0))})
		assert.ErrorIs(t, err, slowfs.ErrIsDirectory)
	})

	t.Run("size beyond addressable range", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		ino := createFile(t, fs, slowfs.RootIno, "f")
		_, err := fs.Write(ino, 0, []byte("keep"))
		require.NoError(t, err)

		_, err = fs.SetAttr(ino, slowfs.AttrChanges{Size: util.Pointer(uint64(1) << 63)})
		assert.ErrorIs(t, err, slowfs.ErrInvalidArgument)
		data, err := fs.Read(ino, 0, 16)
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), data)
	})

	t.Run("unknown inode", func(t *testing.T) {
		t.Parallel()
		fs := NewFS(createTestConfig())
		_, err := fs.SetAttr(404, slowfs.AttrChanges{Uid: util.Pointer(uint32(1))})
		assert.ErrorIs(t, err, slowfs.ErrNotFound)
	})
}

func TestStatFs(t *testing.T) {
	t.Parallel()

	fs := NewFS(createTestConfig())
	empty, err := fs.StatFs()
	require.NoError(t, err)

	want := fuse.StatfsOut{
		Blocks:  0,
		Bfree:   1024,
		Bavail:  1024,
		Files:   1,
		Ffree:   100,
		Bsize:   512,
		NameLen: 255,
		Frsize:  512,
	}
	if diff := cmp.Diff(want, empty, cmpopts.IgnoreUnexported(fuse.StatfsOut{})); diff != "" {
		t.Errorf("StatFs() on empty store mismatch (-want +got):\n%s", diff)
	}

	ino := createFile(t, fs, slowfs.RootIno, "grow")
	prev := empty.Blocks
	for _, size := range []int{100, 512, 4096, 600_000} {
		_, err := fs.Write(ino, int64(size-1), []byte{1})
		require.NoError(t, err)
		st, err := fs.StatFs()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.Blocks, prev, "blocks never shrink as data grows")
		assert.Equal(t, uint64(size/512), st.Blocks)
		assert.Equal(t, uint64(2), st.Files)
		assert.Equal(t, max(st.Blocks, 1024), st.Bfree)
		prev = st.Blocks
	}
}
