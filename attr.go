package slowfs

import (
	"iter"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// Caller identifies the process issuing a request. Owner of new entries comes from here.
type Caller struct {
	Uid uint32
	Gid uint32
	Pid uint32
}

// AttrChanges carries the optional fields of a setattr request. Nil fields are left untouched.
type AttrChanges struct {
	// Size truncates or zero-extends the file buffer
	Size *uint64
	// Mode replaces the permission bits; the object type bits never change
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Rdev  *uint32
	Atime *time.Time
	Mtime *time.Time
	Ctime *time.Time
}

// IsEmpty reports whether no field is set.
func (c AttrChanges) IsEmpty() bool {
	return c.Size == nil && c.Mode == nil && c.Uid == nil && c.Gid == nil && c.Rdev == nil &&
		c.Atime == nil && c.Mtime == nil && c.Ctime == nil
}

// DirEntry is one item produced by a directory listing.
type DirEntry struct {
	Name string
	Attr fuse.Attr
	// Next is the cursor to pass to ReadDir to resume after this entry
	Next uint64
}

// DirStream is a lazy, finite directory listing. It is not restartable; call ReadDir again
// with the last seen cursor to continue.
type DirStream = iter.Seq[DirEntry]
