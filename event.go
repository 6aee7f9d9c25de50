package slowfs

import "time"

// OpKind names an engine operation in observability events.
type OpKind string

const (
	OpLookup   OpKind = "lookup"
	OpGetAttr  OpKind = "getattr"
	OpReadDir  OpKind = "readdir"
	OpStatFs   OpKind = "statfs"
	OpOpen     OpKind = "open"
	OpCreate   OpKind = "create"
	OpRead     OpKind = "read"
	OpWrite    OpKind = "write"
	OpSetAttr  OpKind = "setattr"
	OpRelease  OpKind = "release"
	OpRename   OpKind = "rename"
	OpUnlink   OpKind = "unlink"
	OpRmdir    OpKind = "rmdir"
	OpMkdir    OpKind = "mkdir"
	OpAccess   OpKind = "access"
	OpSymlink  OpKind = "symlink"
	OpLink     OpKind = "link"
	OpMknod    OpKind = "mknod"
	OpReadlink OpKind = "readlink"
	// OpPurge is emitted when an entry leaves the inode table
	OpPurge OpKind = "purge"
)

// OpEvent is the single structured record emitted per engine operation.
type OpEvent struct {
	FsID     string // id of the emitting filesystem instance
	Op       OpKind
	Ino      uint64 // target inode; 0 if the operation failed before resolving one
	Parent   uint64 // parent directory for name-based operations
	Name     string
	Offset   int64
	Size     int // bytes requested/transferred for read and write
	Duration time.Duration
	Err      error
}

// Observer receives OpEvents. The engine emits them and never inspects what the observer
// does with them. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(ev OpEvent)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(ev OpEvent)

func (f ObserverFunc) Observe(ev OpEvent) { f(ev) }
