package filesystem

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/faults"
	"github.com/brettbedarf/slowfs/internal/util"
)

const (
	defaultDirPerms  = 0o755
	defaultFilePerms = 0o644
)

// AddDirNode creates every missing directory along req.Path, starting at the root, and
// returns the inode of the leaf. Like `mkdir -p`, an existing leaf is not an error.
func (fs *FileSystem) AddDirNode(req *slowfs.DirCreateRequest) (uint64, error) {
	logger := util.GetLogger("FS.AddDirNode")

	perms := req.Perms
	if perms == 0 {
		perms = defaultDirPerms
	}
	caller := slowfs.Caller{Uid: req.OwnerUID, Gid: req.OwnerGID}

	cur := uint64(slowfs.RootIno)
	newCnt := 0
	for _, name := range splitPath(req.Path) {
		attr, err := fs.Lookup(cur, name)
		switch {
		case err == nil:
			if KindOf(attr.Mode) != KindDir {
				return 0, fmt.Errorf("%s: %q: %w", req.Path, name, slowfs.ErrNotDirectory)
			}
			cur = attr.Ino
			continue
		case !errors.Is(err, slowfs.ErrNotFound):
			return 0, err
		}
		attr, err = fs.Mkdir(cur, name, perms, caller)
		if err != nil {
			return 0, err
		}
		cur = attr.Ino
		newCnt++
	}
	if newCnt > 0 {
		logger.Info().Str("path", req.Path).Msg(fmt.Sprintf("Created %d new dir(s)", newCnt))
	}
	return cur, nil
}

// AddFileNode adds a regular file at req.Path with the content of req.Source, creating any
// missing parent directories. It fails if something already exists at the path.
func (fs *FileSystem) AddFileNode(ctx context.Context, req *slowfs.FileCreateRequest) (uint64, error) {
	logger := util.GetLogger("FS.AddFileNode")

	dirPath, name := path.Split(strings.Trim(req.Path, "/"))
	if name == "" {
		return 0, fmt.Errorf("file path %q: %w", req.Path, slowfs.ErrInvalidArgument)
	}

	parent := uint64(slowfs.RootIno)
	if dirPath != "" {
		// implicit parents share the file's owner but get directory perms
		dirReq := slowfs.DirCreateRequest{NodeRequest: req.NodeRequest}
		dirReq.Path = dirPath
		dirReq.Perms = 0
		ino, err := fs.AddDirNode(&dirReq)
		if err != nil {
			logger.Error().Err(err).Str("path", dirPath).Msg("Failed to create file's ancestor directory(s)")
			return 0, err
		}
		parent = ino
	}

	var content []byte
	if req.Source != nil {
		var err error
		if content, err = req.Source.Content(ctx); err != nil {
			logger.Error().Err(err).Str("path", req.Path).Msg("Failed to load file content")
			return 0, err
		}
	}

	perms := req.Perms
	if perms == 0 {
		perms = defaultFilePerms
	}
	attr, err := fs.Create(parent, name, perms, slowfs.Caller{Uid: req.OwnerUID, Gid: req.OwnerGID})
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create file")
		return 0, err
	}
	ino := attr.Ino
	// Create opened a handle; release it whatever happens below
	defer func() {
		if err := fs.Release(ino); err != nil {
			logger.Warn().Err(err).Uint64("ino", ino).Msg("Failed to release seed handle")
		}
	}()

	// seeding is not client traffic, so the write fault is skipped
	if len(content) > 0 {
		if _, err := fs.write(ino, 0, content, faults.None{}); err != nil {
			return 0, err
		}
	}

	changes := slowfs.AttrChanges{}
	if !req.Atime.IsZero() {
		changes.Atime = util.Pointer(req.Atime)
	}
	if !req.Mtime.IsZero() {
		changes.Mtime = util.Pointer(req.Mtime)
	}
	if !changes.IsEmpty() {
		if _, err := fs.SetAttr(ino, changes); err != nil {
			return 0, err
		}
	}

	logger.Debug().Str("path", req.Path).Uint64("ino", ino).Int("size", len(content)).Msg("Added new file node")
	return ino, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}
