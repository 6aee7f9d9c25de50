package filesystem

import (
	"fmt"
	"sync/atomic"

	"github.com/brettbedarf/slowfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// InodeTable owns every Entry keyed by inode number. It is the single source of truth for
// existence: anything not in the table does not exist, whatever references linger.
type InodeTable struct {
	entries *xsync.Map[uint64, *Entry]
	lastIno atomic.Uint64 // last inode number handed out; numbers are never reused
}

// NewInodeTable creates a table holding root. Allocation continues after root's number.
func NewInodeTable(root *Entry) *InodeTable {
	t := &InodeTable{entries: xsync.NewMap[uint64, *Entry]()}
	t.entries.Store(root.ino, root)
	t.lastIno.Store(root.ino)
	return t
}

// Allocate returns a fresh inode number
func (t *InodeTable) Allocate() uint64 {
	return t.lastIno.Add(1)
}

// Get resolves an inode number
func (t *InodeTable) Get(ino uint64) (*Entry, error) {
	if e, ok := t.entries.Load(ino); ok {
		return e, nil
	}
	return nil, fmt.Errorf("inode %d: %w", ino, slowfs.ErrNotFound)
}

func (t *InodeTable) Insert(e *Entry) {
	t.entries.Store(e.ino, e)
}

// Remove drops ino. Only call once the entry has no links and no open handles.
func (t *InodeTable) Remove(ino uint64) {
	t.entries.Delete(ino)
}

func (t *InodeTable) Len() int {
	return t.entries.Size()
}

// Range calls fn for every entry until fn returns false
func (t *InodeTable) Range(fn func(e *Entry) bool) {
	t.entries.Range(func(_ uint64, e *Entry) bool {
		return fn(e)
	})
}
