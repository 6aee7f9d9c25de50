package filesystem

import (
	"fmt"

	"github.com/brettbedarf/slowfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// EntryContext wraps a locked [Entry] (plus any upstream locks such as the tree lock).
// Calling EntryContext.Close() unwinds all unlocking/cleanup callbacks in reverse order.
// Do NOT invoke any locking methods on the raw Entry while this context is active.
//
// NOTE: EntryContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type EntryContext struct {
	entry    *Entry
	closeFns []func()
	writable bool
}

// lockEntry resolves ino and locks the entry for reading, or writing when write is set.
// Entries purged between the table lookup and the lock are reported as not found.
func (fs *FileSystem) lockEntry(ino uint64, write bool) (*EntryContext, error) {
	e, err := fs.table.Get(ino)
	if err != nil {
		return nil, err
	}
	ctx := &EntryContext{entry: e, writable: write}
	if write {
		e.mu.Lock()
		ctx.AddClose(e.mu.Unlock)
	} else {
		e.mu.RLock()
		ctx.AddClose(e.mu.RUnlock)
	}
	if e.purged {
		ctx.Close()
		return nil, fmt.Errorf("inode %d: %w", ino, slowfs.ErrNotFound)
	}
	return ctx, nil
}

func (ctx *EntryContext) Entry() *Entry {
	return ctx.entry
}

// Attr returns a snapshot of the attributes under the held lock
func (ctx *EntryContext) Attr() fuse.Attr {
	return ctx.entry.attrLocked()
}

// UpdateAttr runs fn against the live attributes. Panics on a read-only context.
func (ctx *EntryContext) UpdateAttr(fn func(attr *fuse.Attr)) {
	if !ctx.writable {
		panic("UpdateAttr on read-locked EntryContext")
	}
	fn(&ctx.entry.attr)
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *EntryContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil; it is a no-op in that case,
// so you can `defer ctx.Close()` unconditionally.
//
// Example:
//
//	ctx, err := fs.lockEntry(ino, false)
//	defer ctx.Close()
func (ctx *EntryContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
