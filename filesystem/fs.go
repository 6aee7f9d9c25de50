package filesystem

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/faults"
	"github.com/brettbedarf/slowfs/internal/util"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
)

// FileSystem is the engine behind the mount. It owns the inode table, the directory tree
// and the open-handle registry; nothing outlives it.
//
// Locking: mu guards tree structure (children, names, parents, link-count transitions and
// purge decisions). Each Entry's own lock guards its attributes and data. Always take mu
// before any entry lock.
type FileSystem struct {
	slowfs.Unsupported

	cfg      *config.Config
	id       string
	mu       sync.RWMutex
	root     *Entry
	table    *InodeTable
	handles  *HandleRegistry
	fault    faults.WriteFault
	observer slowfs.Observer
	now      func() time.Time
	logger   zerolog.Logger
}

var _ slowfs.Operations = (*FileSystem)(nil)

// Option customizes a FileSystem at construction
type Option func(fs *FileSystem)

// WithWriteFault installs the hook that runs before every write
func WithWriteFault(f faults.WriteFault) Option {
	if f == nil {
		f = faults.None{}
	}
	return func(fs *FileSystem) { fs.fault = f }
}

// WithObserver replaces the default logging observer
func WithObserver(o slowfs.Observer) Option {
	return func(fs *FileSystem) { fs.observer = o }
}

// WithClock sets the time source for entry timestamps
func WithClock(now func() time.Time) Option {
	return func(fs *FileSystem) { fs.now = now }
}

// NewFS creates an empty filesystem holding only the root directory.
// A nil cfg uses the defaults.
func NewFS(cfg *config.Config, opts ...Option) *FileSystem {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	fs := &FileSystem{
		cfg:     cfg,
		id:      uuid.New().String(),
		handles: NewHandleRegistry(),
		fault:   faults.None{},
		now:     time.Now,
	}
	fs.logger = util.GetLogger("FS").With().Str("fs", fs.id).Logger()
	fs.observer = NewLogObserver(util.GetLogger("FS.Op"))
	for _, opt := range opts {
		opt(fs)
	}

	owner := fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	rootMode := uint32(syscall.S_IFDIR) | cfg.RootPerms&permMask
	fs.root = newEntry(slowfs.RootIno, "", slowfs.RootIno, rootMode, owner, fs.now())
	fs.table = NewInodeTable(fs.root)

	fs.logger.Debug().Uint32("rootMode", rootMode).Msg("Filesystem created")
	return fs
}

// ID returns the instance id stamped on every emitted event
func (fs *FileSystem) ID() string {
	return fs.id
}

// Config returns the configuration the filesystem was built with
func (fs *FileSystem) Config() *config.Config {
	return fs.cfg
}

// Open records an open handle on ino
func (fs *FileSystem) Open(ino uint64) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpOpen, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)

	// shared tree lock keeps purge decisions, which need it exclusively, out
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if _, err := fs.table.Get(ino); err != nil {
		return err
	}
	fs.handles.Open(ino)
	return nil
}

// Release drops one open handle on ino and purges the entry if it was the last
// thing keeping an unlinked inode alive.
func (fs *FileSystem) Release(ino uint64) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpRelease, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	remaining, ok := fs.handles.Release(ino)
	if !ok {
		return fmt.Errorf("release inode %d without open handle: %w", ino, slowfs.ErrNotFound)
	}
	if remaining > 0 {
		return nil
	}
	if e, err := fs.table.Get(ino); err == nil {
		fs.purgeIfOrphanedLocked(e)
	}
	return nil
}

// Access always grants; the store enforces no permissions.
func (fs *FileSystem) Access(ino uint64, mask uint32, caller slowfs.Caller) (err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpAccess, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)

	_, err = fs.table.Get(ino)
	return err
}

func (fs *FileSystem) Symlink(parent uint64, name string, target string, caller slowfs.Caller) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpSymlink, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)
	return fs.Unsupported.Symlink(parent, name, target, caller)
}

func (fs *FileSystem) Link(ino uint64, newParent uint64, newName string) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpLink, Ino: ino, Parent: newParent, Name: newName}
	defer fs.emit(&ev, time.Now(), &err)
	return fs.Unsupported.Link(ino, newParent, newName)
}

func (fs *FileSystem) Mknod(parent uint64, name string, mode uint32, rdev uint32, caller slowfs.Caller) (attr fuse.Attr, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpMknod, Parent: parent, Name: name}
	defer fs.emit(&ev, time.Now(), &err)
	return fs.Unsupported.Mknod(parent, name, mode, rdev, caller)
}

func (fs *FileSystem) Readlink(ino uint64) (target []byte, err error) {
	ev := slowfs.OpEvent{Op: slowfs.OpReadlink, Ino: ino}
	defer fs.emit(&ev, time.Now(), &err)
	return fs.Unsupported.Readlink(ino)
}

// OpenHandles returns the number of open handles on ino
func (fs *FileSystem) OpenHandles(ino uint64) int64 {
	return fs.handles.Count(ino)
}

// purgeIfOrphanedLocked removes e from the table once it has neither directory links nor
// open handles. Caller must hold fs.mu exclusively.
func (fs *FileSystem) purgeIfOrphanedLocked(e *Entry) {
	if e.LinkCount() > 0 || fs.handles.IsOpen(e.ino) {
		return
	}
	fs.table.Remove(e.ino)
	e.markPurged()
	fs.observer.Observe(slowfs.OpEvent{FsID: fs.id, Op: slowfs.OpPurge, Ino: e.ino})
}

// emit sends the event for one finished operation. Meant to be deferred right after ev is
// built so Duration covers the whole call.
func (fs *FileSystem) emit(ev *slowfs.OpEvent, start time.Time, err *error) {
	ev.FsID = fs.id
	ev.Duration = time.Since(start)
	ev.Err = *err
	fs.observer.Observe(*ev)
}

// validName rejects names that can never be directory entries
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return fmt.Errorf("name %q: %w", name, slowfs.ErrInvalidArgument)
	}
	return nil
}
