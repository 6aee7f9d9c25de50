// Package server mounts a slowfs filesystem through go-fuse.
package server

import (
	"context"
	"errors"

	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/faults"
	"github.com/brettbedarf/slowfs/filesystem"
	sfuse "github.com/brettbedarf/slowfs/fuse"
	"github.com/brettbedarf/slowfs/internal/util"
	"github.com/brettbedarf/slowfs/requests"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// SlowFs contains the engine state and operations with abstractions
// over the underlying FUSE wire protocol implementation
type SlowFs struct {
	*filesystem.FileSystem
	cfg    *config.Config
	fault  faults.WriteFault
	server *fuse.Server
}

// New creates a SlowFs instance given your config, with the write fault the config
// describes.
func New(cfg *config.Config) *SlowFs {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return NewWithFault(cfg, faults.FromConfig(cfg))
}

// NewWithFault creates a SlowFs instance that runs fault before every client write.
func NewWithFault(cfg *config.Config, fault faults.WriteFault) *SlowFs {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &SlowFs{
		FileSystem: filesystem.NewFS(cfg, filesystem.WithWriteFault(fault)),
		cfg:        cfg,
		fault:      fault,
	}
}

// Fault returns the installed write fault
func (fs *SlowFs) Fault() faults.WriteFault {
	return fs.fault
}

// Seed adds the parsed seed nodes, directories first. Failed nodes are logged and skipped;
// the counts of added nodes are returned.
func (fs *SlowFs) Seed(ctx context.Context, nodes *requests.Nodes) (dirs int, files int) {
	logger := util.GetLogger("Server.Seed")

	for _, req := range nodes.Dirs {
		if _, err := fs.AddDirNode(req); err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Msg("Failed to add directory request")
			continue
		}
		dirs++
	}
	for _, req := range nodes.Files {
		if _, err := fs.AddFileNode(ctx, req); err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Msg("Failed to add file request")
			continue
		}
		files++
	}
	logger.Info().Int("directories", dirs).Int("files", files).Msg("Added new nodes to filesystem")
	return dirs, files
}

// Serve mounts and serves the filesystem at the given mountPoint.
// It returns once the mount is ready; serving continues in the background.
func (fs *SlowFs) Serve(mountPoint string) error {
	if fs.server != nil {
		return errors.New("already mounted")
	}
	raw := sfuse.NewFuseRaw(fs.FileSystem, fs.cfg)
	opts := fs.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:       opts.Name,
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		MaxWrite:   fs.cfg.MaxWrite,
		Debug:      opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
		Logger:     util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

func (fs *SlowFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the filesystem is unmounted
func (fs *SlowFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (fs *SlowFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}
