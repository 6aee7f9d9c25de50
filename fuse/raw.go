// Package fuse adapts slowfs.Operations to the raw FUSE wire protocol served by go-fuse.
package fuse

import (
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// FuseRaw implements the low-level FUSE wire protocol.
// It serves as protocol adapter between FUSE and the slowfs engine; inode numbers are
// used unchanged as FUSE node ids and file handles.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs           slowfs.Operations
	server       *fuse.Server
	attrTimeout  time.Duration
	entryTimeout time.Duration
	directIO     bool
	logger       zerolog.Logger
}

func NewFuseRaw(fs slowfs.Operations, cfg *config.Config) *FuseRaw {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		attrTimeout:   cfg.AttrTimeoutDuration(),
		entryTimeout:  cfg.EntryTimeoutDuration(),
		directIO:      cfg.DirectIO,
		logger:        util.GetLogger("Fuse"),
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	r.logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	r.logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "slowfs"
}

// status maps an engine error onto the kernel status, logging failures
func (r *FuseRaw) status(op string, err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	st := fuse.Status(slowfs.Errno(err))
	r.logger.Debug().Err(err).Str("op", op).Str("status", st.String()).Msg("Request failed")
	return st
}

func (r *FuseRaw) fillEntry(attr fuse.Attr, out *fuse.EntryOut) {
	out.NodeId = attr.Ino
	out.Generation = 0
	out.Attr = attr
	out.SetEntryTimeout(r.entryTimeout)
	out.SetAttrTimeout(r.attrTimeout)
}

func callerOf(h *fuse.InHeader) slowfs.Caller {
	return slowfs.Caller{Uid: h.Caller.Uid, Gid: h.Caller.Gid, Pid: h.Caller.Pid}
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	attr, err := r.fs.Lookup(header.NodeId, name)
	if err != nil {
		return r.status("lookup", err)
	}
	r.fillEntry(attr, out)
	return fuse.OK
}

// Forget is a no-op: entry lifetime is owned by the engine, not by kernel lookup counts.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	attr, err := r.fs.GetAttr(input.NodeId)
	if err != nil {
		return r.status("getattr", err)
	}
	out.Attr = attr
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	attr, err := r.fs.SetAttr(input.NodeId, attrChanges(input, time.Now()))
	if err != nil {
		return r.status("setattr", err)
	}
	out.Attr = attr
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

// attrChanges converts the valid fields of a setattr request
func attrChanges(in *fuse.SetAttrIn, now time.Time) slowfs.AttrChanges {
	var c slowfs.AttrChanges
	if mode, ok := in.GetMode(); ok {
		c.Mode = &mode
	}
	if uid, ok := in.GetUID(); ok {
		c.Uid = &uid
	}
	if gid, ok := in.GetGID(); ok {
		c.Gid = &gid
	}
	if size, ok := in.GetSize(); ok {
		c.Size = &size
	}
	c.Atime = setTime(in.Valid, fuse.FATTR_ATIME, fuse.FATTR_ATIME_NOW, in.Atime, in.Atimensec, now)
	c.Mtime = setTime(in.Valid, fuse.FATTR_MTIME, fuse.FATTR_MTIME_NOW, in.Mtime, in.Mtimensec, now)
	c.Ctime = setTime(in.Valid, fuse.FATTR_CTIME, 0, in.Ctime, in.Ctimensec, now)
	return c
}

func setTime(valid, setBit, nowBit uint32, sec uint64, nsec uint32, now time.Time) *time.Time {
	switch {
	case nowBit != 0 && valid&nowBit != 0:
		return &now
	case valid&setBit != 0:
		t := time.Unix(int64(sec), int64(nsec))
		return &t
	}
	return nil
}

func (r *FuseRaw) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	attr, err := r.fs.Mknod(input.NodeId, name, input.Mode&^input.Umask, input.Rdev, callerOf(&input.InHeader))
	if err != nil {
		return r.status("mknod", err)
	}
	r.fillEntry(attr, out)
	return fuse.OK
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	attr, err := r.fs.Mkdir(input.NodeId, name, input.Mode&^input.Umask, callerOf(&input.InHeader))
	if err != nil {
		return r.status("mkdir", err)
	}
	r.fillEntry(attr, out)
	return fuse.OK
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return r.status("unlink", r.fs.Unlink(header.NodeId, name))
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return r.status("rmdir", r.fs.Rmdir(header.NodeId, name))
}

// Rename supports plain renames and RENAME_NOREPLACE; RENAME_EXCHANGE and whiteouts are
// rejected with EINVAL.
func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	switch input.Flags {
	case 0:
		return r.status("rename", r.fs.Rename(input.NodeId, oldName, input.Newdir, newName))
	case unix.RENAME_NOREPLACE:
		return r.status("rename", r.fs.RenameNoReplace(input.NodeId, oldName, input.Newdir, newName))
	default:
		return fuse.EINVAL
	}
}

func (r *FuseRaw) Link(cancel <-chan struct{}, input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	attr, err := r.fs.Link(input.Oldnodeid, input.NodeId, filename)
	if err != nil {
		return r.status("link", err)
	}
	r.fillEntry(attr, out)
	return fuse.OK
}

func (r *FuseRaw) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	attr, err := r.fs.Symlink(header.NodeId, linkName, pointedTo, callerOf(header))
	if err != nil {
		return r.status("symlink", err)
	}
	r.fillEntry(attr, out)
	return fuse.OK
}

func (r *FuseRaw) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	target, err := r.fs.Readlink(header.NodeId)
	return target, r.status("readlink", err)
}

// Access called when the kernel wants to know if the user has permission to access the node.
// If the 'default_permissions' mount option is given, this method is not called.
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return r.status("access", r.fs.Access(input.NodeId, input.Mask, callerOf(&input.InHeader)))
}

func (r *FuseRaw) openFlags() uint32 {
	if r.directIO {
		return fuse.FOPEN_DIRECT_IO
	}
	return 0
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	attr, err := r.fs.Create(input.NodeId, name, input.Mode&^input.Umask, callerOf(&input.InHeader))
	if err != nil {
		return r.status("create", err)
	}
	r.fillEntry(attr, &out.EntryOut)
	out.Fh = attr.Ino
	out.OpenFlags = r.openFlags()
	return fuse.OK
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if err := r.fs.Open(input.NodeId); err != nil {
		return r.status("open", err)
	}
	out.Fh = input.NodeId
	out.OpenFlags = r.openFlags()
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	data, err := r.fs.Read(input.NodeId, int64(input.Offset), int(input.Size))
	if err != nil {
		return nil, r.status("read", err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	n, err := r.fs.Write(input.NodeId, int64(input.Offset), data)
	if err != nil {
		return 0, r.status("write", err)
	}
	return uint32(n), fuse.OK
}

// Release has no reply; failures are only logged.
func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.status("release", r.fs.Release(input.NodeId))
}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if _, err := r.fs.GetAttr(input.NodeId); err != nil {
		return r.status("opendir", err)
	}
	out.Fh = input.NodeId
	return fuse.OK
}

func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	stream, err := r.fs.ReadDir(input.NodeId, input.Offset)
	if err != nil {
		return r.status("readdir", err)
	}
	fillDir(stream, func(de slowfs.DirEntry) bool {
		return out.AddDirEntry(dirEntry(de))
	})
	return fuse.OK
}

func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	stream, err := r.fs.ReadDir(input.NodeId, input.Offset)
	if err != nil {
		return r.status("readdirplus", err)
	}
	fillDir(stream, func(de slowfs.DirEntry) bool {
		entry := out.AddDirLookupEntry(dirEntry(de))
		if entry == nil {
			return false
		}
		r.fillEntry(de.Attr, entry)
		return true
	})
	return fuse.OK
}

// fillDir feeds stream to add until add reports the reply buffer is full.
// Returns the number of entries added.
func fillDir(stream slowfs.DirStream, add func(de slowfs.DirEntry) bool) int {
	n := 0
	for de := range stream {
		if !add(de) {
			break
		}
		n++
	}
	return n
}

func dirEntry(de slowfs.DirEntry) fuse.DirEntry {
	return fuse.DirEntry{
		Mode: de.Attr.Mode,
		Name: de.Name,
		Ino:  de.Attr.Ino,
		Off:  de.Next,
	}
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {}

func (r *FuseRaw) FsyncDir(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	st, err := r.fs.StatFs()
	if err != nil {
		return r.status("statfs", err)
	}
	*out = st
	return fuse.OK
}

var _ fuse.RawFileSystem = (*FuseRaw)(nil)
