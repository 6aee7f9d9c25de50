package filesystem

import (
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// Kind is the object type of an Entry, fixed at creation
type Kind uint8

const (
	KindOther Kind = iota // placeholder for object types the store does not model
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// KindOf classifies mode by its S_IFMT bits
func KindOf(mode uint32) Kind {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return KindDir
	case syscall.S_IFREG:
		return KindFile
	default:
		return KindOther
	}
}

const (
	permMask  = 0o7777
	statBlock = 512 // st_blocks unit
	blksize   = 4096
)

// Entry is the in-memory record of one inode: its metadata plus its content, children for
// directories or a byte buffer for regular files.
type Entry struct {
	ino  uint64
	kind Kind

	// Tree fields, guarded by FileSystem.mu
	name     string
	parent   uint64
	seq      uint64   // attach sequence inside parent; doubles as the readdir cursor
	children []*Entry // ordered by seq; directories only
	lastSeq  uint64   // last seq handed to a child

	mu     sync.RWMutex // protects the fields below
	attr   fuse.Attr    // Size and Blocks are derived from data on snapshot
	data   []byte       // regular files only
	purged bool         // set once the entry left the inode table
}

func newEntry(ino uint64, name string, parent uint64, mode uint32, owner fuse.Owner, now time.Time) *Entry {
	e := &Entry{
		ino:    ino,
		kind:   KindOf(mode),
		name:   name,
		parent: parent,
		attr: fuse.Attr{
			Ino:     ino,
			Mode:    mode,
			Nlink:   1,
			Owner:   owner,
			Blksize: blksize, // preferred size for fs ops
		},
	}
	e.attr.SetTimes(&now, &now, &now)
	return e
}

// Ino returns the immutable inode number
func (e *Entry) Ino() uint64 {
	return e.ino
}

func (e *Entry) Kind() Kind {
	return e.kind
}

func (e *Entry) IsDir() bool {
	return e.kind == KindDir
}

// CopyAttr returns a thread-safe snapshot of the entry's attributes
func (e *Entry) CopyAttr() fuse.Attr {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrLocked()
}

// attrLocked snapshots attributes. Caller must hold e.mu.
func (e *Entry) attrLocked() fuse.Attr {
	attr := e.attr
	attr.Size = uint64(len(e.data))
	attr.Blocks = (attr.Size + statBlock - 1) / statBlock
	return attr
}

// Size returns the current length of the data buffer
func (e *Entry) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.data)
}

// LinkCount returns Nlink
func (e *Entry) LinkCount() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attr.Nlink
}

// dropLink decrements Nlink, never below zero, and returns the new count
func (e *Entry) dropLink(now time.Time) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attr.Nlink > 0 {
		e.attr.Nlink--
	}
	e.attr.SetTimes(nil, nil, &now)
	return e.attr.Nlink
}

// touch stamps ctime, and mtime too when modified is set
func (e *Entry) touch(now time.Time, modified bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked(now, modified)
}

func (e *Entry) touchLocked(now time.Time, modified bool) {
	if modified {
		e.attr.SetTimes(nil, &now, &now)
		return
	}
	e.attr.SetTimes(nil, nil, &now)
}

// markPurged drops the buffer of an entry that left the inode table
func (e *Entry) markPurged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.purged = true
	e.data = nil
}

// resizeLocked truncates or zero-extends data to n bytes. Caller must hold e.mu.
func (e *Entry) resizeLocked(n int) {
	old := len(e.data)
	switch {
	case n == 0:
		e.data = nil
	case n <= old:
		e.data = e.data[:n]
	default:
		// capacity may still hold bytes from an earlier truncate
		e.data = slices.Grow(e.data, n-old)[:n]
		clear(e.data[old:])
	}
}

// writeAtLocked copies p at off, zero-filling any gap past the old end. Caller must hold e.mu.
func (e *Entry) writeAtLocked(off int, p []byte) int {
	if end := off + len(p); end > len(e.data) {
		e.resizeLocked(end)
	}
	return copy(e.data[off:], p)
}

// readAtLocked returns a copy of up to n bytes at off, clipped to the buffer.
// Caller must hold e.mu.
func (e *Entry) readAtLocked(off int, n int) []byte {
	if off >= len(e.data) || n <= 0 {
		return []byte{}
	}
	end := off + min(n, len(e.data)-off)
	return slices.Clone(e.data[off:end])
}

/* Tree helpers; caller must hold FileSystem.mu */

// childLocked finds a child by name with a linear scan
func (e *Entry) childLocked(name string) (*Entry, bool) {
	for _, child := range e.children {
		if child.name == name {
			return child, true
		}
	}
	return nil, false
}

// attachLocked appends child, stamps it with the next sequence and points it back at e
func (e *Entry) attachLocked(child *Entry) {
	e.lastSeq++
	child.seq = e.lastSeq
	child.parent = e.ino
	e.children = append(e.children, child)
}

// detachLocked removes child by identity, keeping the order of the rest
func (e *Entry) detachLocked(child *Entry) bool {
	i := slices.Index(e.children, child)
	if i < 0 {
		return false
	}
	e.children = slices.Delete(e.children, i, i+1)
	return true
}

// childrenAfterLocked returns the children whose seq is greater than cursor
func (e *Entry) childrenAfterLocked(cursor uint64) []*Entry {
	i, _ := slices.BinarySearchFunc(e.children, cursor+1, func(c *Entry, target uint64) int {
		switch {
		case c.seq < target:
			return -1
		case c.seq > target:
			return 1
		}
		return 0
	})
	return e.children[i:]
}
