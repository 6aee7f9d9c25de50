package filesystem

import (
	"fmt"
	"math"
	"syscall"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/faults"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const maxNameLen = 255

// GetAttr returns a snapshot of ino's attributes
func (fs *FileSystem) GetAttr(ino uint64) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpGetAttr, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)

	ctx, err := fs.lockEntry(ino, false)
	if err != nil {
		return attr, err
	}
	defer ctx.Close()
	return ctx.Attr(), nil
}

// SetAttr applies the set fields of changes. Type bits of the mode never change.
// Any change stamps ctime, and a size change stamps mtime, unless the request carries
// explicit values for them.
func (fs *FileSystem) SetAttr(ino uint64, changes slowfs.AttrChanges) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpSetAttr, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)

	ctx, err := fs.lockEntry(ino, true)
	if err != nil {
		return attr, err
	}
	defer ctx.Close()
	e := ctx.Entry()

	if changes.Size != nil {
		if e.IsDir() {
			return attr, fmt.Errorf("truncate inode %d: %w", ino, slowfs.ErrIsDirectory)
		}
		if *changes.Size > math.MaxInt {
			return attr, fmt.Errorf("truncate inode %d to %d: %w", ino, *changes.Size, slowfs.ErrInvalidArgument)
		}
		e.resizeLocked(int(*changes.Size))
		ev.Size = int(*changes.Size)
	}
	if changes.IsEmpty() {
		return ctx.Attr(), nil
	}

	now := fs.now()
	ctx.UpdateAttr(func(a *fuse.Attr) {
		if changes.Mode != nil {
			a.Mode = a.Mode&syscall.S_IFMT | *changes.Mode&permMask
		}
		if changes.Uid != nil {
			a.Uid = *changes.Uid
		}
		if changes.Gid != nil {
			a.Gid = *changes.Gid
		}
		if changes.Rdev != nil {
			a.Rdev = *changes.Rdev
		}

		mtime, ctime := changes.Mtime, changes.Ctime
		if mtime == nil && changes.Size != nil {
			mtime = &now
		}
		if ctime == nil {
			ctime = &now
		}
		a.SetTimes(changes.Atime, mtime, ctime)
	})
	return ctx.Attr(), nil
}

// Read returns up to length bytes at offset. Reads past the end return an empty slice.
func (fs *FileSystem) Read(ino uint64, offset int64, length int) (data []byte, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpRead, Ino: ino, Offset: offset, Size: length}
	defer fs.emit(&ev, time.Now(), &err)

	if offset < 0 {
		return nil, fmt.Errorf("read offset %d: %w", offset, slowfs.ErrInvalidArgument)
	}
	ctx, err := fs.lockEntry(ino, false)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	if ctx.Entry().IsDir() {
		return nil, fmt.Errorf("read inode %d: %w", ino, slowfs.ErrIsDirectory)
	}
	data = ctx.Entry().readAtLocked(int(offset), length)
	ev.Size = len(data)
	return data, nil
}

// Write stores data at offset, zero-filling any gap past the current end, and returns the
// number of bytes written. The write fault runs first without any lock held, so a stalled
// write only delays its own caller.
func (fs *FileSystem) Write(ino uint64, offset int64, data []byte) (int, error) {
	return fs.write(ino, offset, data, fs.fault)
}

func (fs *FileSystem) write(ino uint64, offset int64, data []byte, fault faults.WriteFault) (n int, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpWrite, Ino: ino, Offset: offset, Size: len(data)}
	defer fs.emit(&ev, time.Now(), &err)

	if offset < 0 || offset > math.MaxInt-int64(len(data)) {
		return 0, fmt.Errorf("write offset %d: %w", offset, slowfs.ErrInvalidArgument)
	}
	e, err := fs.table.Get(ino)
	if err != nil {
		return 0, err
	}
	if e.IsDir() {
		return 0, fmt.Errorf("write inode %d: %w", ino, slowfs.ErrIsDirectory)
	}

	fault.BeforeWrite(ino, offset, len(data))

	// the entry may have been purged while the fault ran
	ctx, err := fs.lockEntry(ino, true)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()
	n = ctx.Entry().writeAtLocked(int(offset), data)
	ctx.Entry().touchLocked(fs.now(), true)
	return n, nil
}

// StatFs reports capacity derived from the bytes and inodes currently held. The store has
// no real limit, so the free figures never drop below the configured minimums.
func (fs *FileSystem) StatFs() (out fuse.StatfsOut, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpStatFs}
	defer fs.emit(&ev, time.Now(), &err)

	var total uint64
	var files uint64
	fs.table.Range(func(e *Entry) bool {
		total += uint64(e.Size())
		files++
		return true
	})

	bsize := uint64(fs.cfg.BlockSize)
	if bsize == 0 {
		bsize = statBlock
	}
	blocks := total / bsize
	out = fuse.StatfsOut{
		Blocks:  blocks,
		Bfree:   max(blocks, fs.cfg.MinFreeBlocks),
		Files:   files,
		Ffree:   max(files, fs.cfg.MinFreeFiles),
		Bsize:   uint32(bsize),
		NameLen: maxNameLen,
		Frsize:  uint32(bsize),
	}
	out.Bavail = out.Bfree
	return out, nil
}
