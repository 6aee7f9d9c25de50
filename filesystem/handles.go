package filesystem

import "github.com/puzpuzpuz/xsync/v4"

// HandleRegistry counts open descriptors per inode. An inode with no record has no open
// handles; records are dropped as soon as their count reaches zero.
type HandleRegistry struct {
	open *xsync.Map[uint64, int64]
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{open: xsync.NewMap[uint64, int64]()}
}

// Open records one more handle on ino and returns the new count
func (r *HandleRegistry) Open(ino uint64) int64 {
	var count int64
	r.open.Compute(ino, func(old int64, _ bool) (int64, xsync.ComputeOp) {
		count = old + 1
		return count, xsync.UpdateOp
	})
	return count
}

// Release drops one handle on ino and returns the remaining count.
// ok is false if ino had no open handle.
func (r *HandleRegistry) Release(ino uint64) (remaining int64, ok bool) {
	r.open.Compute(ino, func(old int64, loaded bool) (int64, xsync.ComputeOp) {
		if !loaded {
			return 0, xsync.CancelOp
		}
		ok = true
		remaining = old - 1
		if remaining <= 0 {
			remaining = 0
			return 0, xsync.DeleteOp
		}
		return remaining, xsync.UpdateOp
	})
	return remaining, ok
}

// Count returns the number of open handles on ino
func (r *HandleRegistry) Count(ino uint64) int64 {
	count, _ := r.open.Load(ino)
	return count
}

func (r *HandleRegistry) IsOpen(ino uint64) bool {
	_, ok := r.open.Load(ino)
	return ok
}
