package filesystem

import (
	"fmt"
	"syscall"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// dirLocked resolves ino and requires it to be a directory. Caller must hold fs.mu.
func (fs *FileSystem) dirLocked(ino uint64) (*Entry, error) {
	dir, err := fs.table.Get(ino)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("inode %d: %w", ino, slowfs.ErrNotDirectory)
	}
	return dir, nil
}

// lookupLocked resolves one path segment inside dir. Caller must hold fs.mu.
func (fs *FileSystem) lookupLocked(dir *Entry, name string) (*Entry, error) {
	switch name {
	case ".":
		return dir, nil
	case "..":
		// root is its own parent
		return fs.table.Get(dir.parent)
	}
	if child, ok := dir.childLocked(name); ok {
		return child, nil
	}
	return nil, fmt.Errorf("%q in inode %d: %w", name, dir.ino, slowfs.ErrNotFound)
}

// Lookup resolves name inside parent and returns its attributes
func (fs *FileSystem) Lookup(parent uint64, name string) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpLookup, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	dir, err := fs.dirLocked(parent)
	if err != nil {
		return attr, err
	}
	e, err := fs.lookupLocked(dir, name)
	if err != nil {
		return attr, err
	}
	ev.Ino = e.ino
	return e.CopyAttr(), nil
}

type dirSnapshot struct {
	name  string
	seq   uint64
	entry *Entry
}

// ReadDir lists the children of ino that were attached after cursor. The set of names is
// fixed when ReadDir returns; attributes are read as the stream is consumed. Children
// purged in between are skipped.
func (fs *FileSystem) ReadDir(ino uint64, cursor uint64) (stream slowfs.DirStream, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpReadDir, Ino: ino, Offset: int64(cursor)}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.RLock()
	dir, err := fs.dirLocked(ino)
	if err != nil {
		fs.mu.RUnlock()
		return nil, err
	}
	after := dir.childrenAfterLocked(cursor)
	snap := make([]dirSnapshot, len(after))
	for i, child := range after {
		snap[i] = dirSnapshot{name: child.name, seq: child.seq, entry: child}
	}
	fs.mu.RUnlock()
	ev.Size = len(snap)

	return func(yield func(slowfs.DirEntry) bool) {
		for _, s := range snap {
			s.entry.mu.RLock()
			purged := s.entry.purged
			attr := s.entry.attrLocked()
			s.entry.mu.RUnlock()
			if purged {
				continue
			}
			if !yield(slowfs.DirEntry{Name: s.name, Attr: attr, Next: s.seq}) {
				return
			}
		}
	}, nil
}

// Create makes an empty regular file and opens one handle on it
func (fs *FileSystem) Create(parent uint64, name string, mode uint32, caller slowfs.Caller) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpCreate, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)

	if kind := mode & syscall.S_IFMT; kind != 0 && kind != syscall.S_IFREG {
		return attr, fmt.Errorf("create %q with mode %o: %w", name, mode, slowfs.ErrNotSupported)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.newChildLocked(parent, name, syscall.S_IFREG|mode&permMask, caller)
	if err != nil {
		return attr, err
	}
	fs.handles.Open(e.ino)
	ev.Ino = e.ino
	return e.CopyAttr(), nil
}

// Mkdir makes an empty directory
func (fs *FileSystem) Mkdir(parent uint64, name string, mode uint32, caller slowfs.Caller) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpMkdir, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.newChildLocked(parent, name, syscall.S_IFDIR|mode&permMask, caller)
	if err != nil {
		return attr, err
	}
	ev.Ino = e.ino
	return e.CopyAttr(), nil
}

// newChildLocked allocates, registers and attaches a new entry. Caller must hold fs.mu
// exclusively.
func (fs *FileSystem) newChildLocked(parent uint64, name string, mode uint32, caller slowfs.Caller) (*Entry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	dir, err := fs.dirLocked(parent)
	if err != nil {
		return nil, err
	}
	if _, exists := dir.childLocked(name); exists {
		return nil, fmt.Errorf("%q in inode %d: %w", name, parent, slowfs.ErrNameExists)
	}

	now := fs.now()
	owner := fuse.Owner{Uid: caller.Uid, Gid: caller.Gid}
	e := newEntry(fs.table.Allocate(), name, parent, mode, owner, now)
	fs.table.Insert(e)
	dir.attachLocked(e)
	dir.touch(now, true)

	fs.logger.Debug().Uint64("ino", e.ino).Uint64("parent", parent).Str("name", name).
		Str("kind", e.kind.String()).Msg("Entry created")
	return e, nil
}

// Unlink removes a non-directory name from parent
func (fs *FileSystem) Unlink(parent uint64, name string) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpUnlink, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, e, err := fs.childForRemovalLocked(parent, name)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return fmt.Errorf("unlink %q: %w", name, slowfs.ErrIsDirectory)
	}
	ev.Ino = e.ino
	fs.removeLinkLocked(dir, e)
	return nil
}

// Rmdir removes an empty directory from parent
func (fs *FileSystem) Rmdir(parent uint64, name string) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpRmdir, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, e, err := fs.childForRemovalLocked(parent, name)
	if err != nil {
		return err
	}
	if !e.IsDir() {
		return fmt.Errorf("rmdir %q: %w", name, slowfs.ErrNotDirectory)
	}
	if len(e.children) > 0 {
		return fmt.Errorf("rmdir %q: %w", name, slowfs.ErrDirectoryNotEmpty)
	}
	ev.Ino = e.ino
	fs.removeLinkLocked(dir, e)
	return nil
}

// childForRemovalLocked resolves a real child (never "." or "..") of parent
func (fs *FileSystem) childForRemovalLocked(parent uint64, name string) (*Entry, *Entry, error) {
	if err := validName(name); err != nil {
		return nil, nil, err
	}
	dir, err := fs.dirLocked(parent)
	if err != nil {
		return nil, nil, err
	}
	e, err := fs.lookupLocked(dir, name)
	if err != nil {
		return nil, nil, err
	}
	return dir, e, nil
}

// removeLinkLocked detaches e from dir, drops its link and purges it if nothing holds it.
// Caller must hold fs.mu exclusively.
func (fs *FileSystem) removeLinkLocked(dir *Entry, e *Entry) {
	now := fs.now()
	dir.detachLocked(e)
	dir.touch(now, true)
	e.dropLink(now)
	fs.purgeIfOrphanedLocked(e)
}

// Rename moves oldName in oldParent to newName in newParent, replacing whatever was there.
// Concurrent lookups see either the old or the new tree, never something in between.
func (fs *FileSystem) Rename(oldParent uint64, oldName string, newParent uint64, newName string) error {
	return fs.rename(oldParent, oldName, newParent, newName, false)
}

// RenameNoReplace is Rename that fails with ErrNameExists instead of replacing an
// existing destination. The check and the move happen under one tree lock.
func (fs *FileSystem) RenameNoReplace(oldParent uint64, oldName string, newParent uint64, newName string) error {
	return fs.rename(oldParent, oldName, newParent, newName, true)
}

func (fs *FileSystem) rename(oldParent uint64, oldName string, newParent uint64, newName string, noReplace bool) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpRename, Parent: oldParent, Name: oldName}
	defer fs.emit(&ev, time.Now(), &err)

	if err := validName(newName); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	srcDir, src, err := fs.childForRemovalLocked(oldParent, oldName)
	if err != nil {
		return err
	}
	ev.Ino = src.ino
	dstDir, err := fs.dirLocked(newParent)
	if err != nil {
		return err
	}

	dst, exists := dstDir.childLocked(newName)
	if exists {
		if dst == src {
			return nil
		}
		switch {
		case noReplace:
			return fmt.Errorf("rename over %q: %w", newName, slowfs.ErrNameExists)
		case dst.IsDir() && len(dst.children) > 0:
			return fmt.Errorf("rename over %q: %w", newName, slowfs.ErrDirectoryNotEmpty)
		case src.IsDir() && !dst.IsDir():
			return fmt.Errorf("rename %q over %q: %w", oldName, newName, slowfs.ErrNotDirectory)
		case !src.IsDir() && dst.IsDir():
			return fmt.Errorf("rename %q over %q: %w", oldName, newName, slowfs.ErrIsDirectory)
		}
	}
	if src.IsDir() && fs.isAncestorLocked(src, dstDir) {
		return fmt.Errorf("rename %q into its own subtree: %w", oldName, slowfs.ErrInvalidArgument)
	}

	now := fs.now()
	srcDir.detachLocked(src)
	if exists {
		dstDir.detachLocked(dst)
		dst.dropLink(now)
		fs.purgeIfOrphanedLocked(dst)
	}
	src.name = newName
	dstDir.attachLocked(src)
	src.touch(now, false)
	srcDir.touch(now, true)
	if dstDir != srcDir {
		dstDir.touch(now, true)
	}
	return nil
}

// isAncestorLocked reports whether anc is e or lies on the path from e up to the root
func (fs *FileSystem) isAncestorLocked(anc *Entry, e *Entry) bool {
	for {
		if e == anc {
			return true
		}
		if e.ino == slowfs.RootIno {
			return false
		}
		parent, err := fs.table.Get(e.parent)
		if err != nil {
			return false
		}
		e = parent
	}
}
