// Package slowfs contains the core domain types and interfaces for the slowfs filesystem:
// a RAM-resident tree that can be mounted through FUSE and told to write slowly.
package slowfs

import "github.com/hanwen/go-fuse/v2/fuse"

// RootIno is the reserved inode number of the root directory. Root is its own parent.
const RootIno = fuse.FUSE_ROOT_ID

// Operations is the contract the transport bridge drives. Every call is synchronous and
// returns either a result or one of the errors in errors.go.
type Operations interface {
	Lookup(parent uint64, name string) (fuse.Attr, error)
	GetAttr(ino uint64) (fuse.Attr, error)
	ReadDir(ino uint64, cursor uint64) (DirStream, error)
	StatFs() (fuse.StatfsOut, error)

	Open(ino uint64) error
	// Create makes a regular file and opens one handle on it
	Create(parent uint64, name string, mode uint32, caller Caller) (fuse.Attr, error)
	Read(ino uint64, offset int64, length int) ([]byte, error)
	Write(ino uint64, offset int64, data []byte) (int, error)
	SetAttr(ino uint64, changes AttrChanges) (fuse.Attr, error)
	Release(ino uint64) error

	Rename(oldParent uint64, oldName string, newParent uint64, newName string) error
	// RenameNoReplace fails with ErrNameExists rather than replace an existing destination
	RenameNoReplace(oldParent uint64, oldName string, newParent uint64, newName string) error
	Unlink(parent uint64, name string) error
	Rmdir(parent uint64, name string) error
	Mkdir(parent uint64, name string, mode uint32, caller Caller) (fuse.Attr, error)

	// Access never denies; no permission enforcement happens in the store.
	Access(ino uint64, mask uint32, caller Caller) error

	Symlink(parent uint64, name string, target string, caller Caller) (fuse.Attr, error)
	Link(ino uint64, newParent uint64, newName string) (fuse.Attr, error)
	Mknod(parent uint64, name string, mode uint32, rdev uint32, caller Caller) (fuse.Attr, error)
	Readlink(ino uint64) ([]byte, error)
}

// Unsupported can be embedded by an [Operations] implementation to reject the object types
// the store does not model. Each method fails with [ErrNotSupported].
type Unsupported struct{}

func (Unsupported) Symlink(uint64, string, string, Caller) (fuse.Attr, error) {
	return fuse.Attr{}, ErrNotSupported
}

func (Unsupported) Link(uint64, uint64, string) (fuse.Attr, error) {
	return fuse.Attr{}, ErrNotSupported
}

func (Unsupported) Mknod(uint64, string, uint32, uint32, Caller) (fuse.Attr, error) {
	return fuse.Attr{}, ErrNotSupported
}

func (Unsupported) Readlink(uint64) ([]byte, error) {
	return nil, ErrNotSupported
}
