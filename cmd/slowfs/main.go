// slowfs mounts an in-memory filesystem whose writes can be made to stall, for testing how
// programs behave on slow or hanging storage.
//
// Usage:
//
//	slowfs [flags] MOUNTPOINT
//
// By default every write stalls for 30s while a file named slow_write exists in the
// working directory; `touch slow_write` and `rm slow_write` switch it on and off.
// With --signals, SIGUSR1 enables and SIGUSR2 disables slow writes instead.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/slowfs/adapters"
	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/faults"
	"github.com/brettbedarf/slowfs/internal/util"
	"github.com/brettbedarf/slowfs/requests"
	"github.com/brettbedarf/slowfs/server"
	"github.com/spf13/pflag"
)

type options struct {
	verbose        int
	configPath     string
	nodesDef       string
	umount         bool
	allowOther     bool
	slowWriteFile  string
	slowWriteDelay time.Duration
	signals        bool
}

func main() {
	var opts options
	flagSet := newFlagSet(&opts, pflag.ExitOnError)
	_ = flagSet.Parse(os.Args[1:])

	logLvl := util.VerbosityLevel(opts.verbose)
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		logger.Fatal().Err(err).Str("config", opts.configPath).Msg("Failed to load config")
	}
	if flagSet.Changed("verbose") || opts.configPath == "" {
		cfg.LogLvl = logLvl
	}
	util.InitializeLogger(cfg.LogLvl)

	mnt := flagSet.Arg(0)
	logger.Info().Int("verbose", opts.verbose).Str("nodes", opts.nodesDef).Str("mnt", mnt).Msg("slowfs server initializing")
	if mnt == "" {
		flagSet.Usage()
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if opts.umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	var fs *server.SlowFs
	var toggle *faults.Toggle
	if opts.signals {
		toggle = &faults.Toggle{Delay: cfg.SlowWriteDelay}
		fs = server.NewWithFault(cfg, toggle)
	} else {
		fs = server.New(cfg)
	}
	logger.Info().Str("fault", fmt.Sprintf("%T", fs.Fault())).Dur("delay", cfg.SlowWriteDelay).
		Str("sentinel", cfg.SlowWriteFile).Str("fs", fs.ID()).Msg("Write fault configured")

	if opts.nodesDef != "" {
		reg := adapters.NewRegistry()
		adapters.RegisterBuiltins(reg)
		nodes, err := requests.LoadNodesFile(opts.nodesDef, reg)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", opts.nodesDef).Msg("Failed to load nodes file")
		}
		fs.Seed(context.Background(), nodes)
	}

	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range signalChan {
		switch sig {
		case syscall.SIGUSR1, syscall.SIGUSR2:
			if toggle == nil {
				logger.Warn().Str("signal", sig.String()).Msg("Ignoring signal; start with --signals to toggle slow writes")
				continue
			}
			if sig == syscall.SIGUSR1 {
				toggle.Enable()
			} else {
				toggle.Disable()
			}
			logger.Info().Bool("slow", toggle.Enabled()).Msg("Slow writes toggled")
			continue
		}

		logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")
		if err := fs.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
			os.Exit(1)
		}
		logger.Info().Msg("Filesystem unmounted successfully")
		return
	}
}

// newFlagSet defines the command line flags, binding them to opts
func newFlagSet(opts *options, errorHandling pflag.ErrorHandling) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("slowfs", errorHandling)
	flagSet.IntVarP(&opts.verbose, "verbose", "v", 3, "Log verbosity level between 1 (error) and 5 (trace)")
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or JSON config file")
	flagSet.StringVarP(&opts.nodesDef, "nodes", "n", "", "Path to a YAML or JSON nodes def file to seed the filesystem with")
	flagSet.BoolVarP(&opts.umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flagSet.BoolVar(&opts.allowOther, "allow-other", false, "Let other users access the mount")
	flagSet.StringVar(&opts.slowWriteFile, "slow-write-file", config.DefaultSlowWriteFile,
		"Writes stall while this file exists; empty stalls every write")
	flagSet.DurationVar(&opts.slowWriteDelay, "slow-write-delay", config.DefaultSlowWriteDelay,
		"How long a slowed write stalls; 0 disables slow writes")
	flagSet.BoolVar(&opts.signals, "signals", false, "Toggle slow writes with SIGUSR1 (on) and SIGUSR2 (off)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slowfs [flags] MOUNTPOINT\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	return flagSet
}

// loadConfig merges the config file, if any, with flags the user set explicitly.
// Flags win over the file.
func loadConfig(flagSet *pflag.FlagSet, opts *options) (*config.Config, error) {
	override := &config.ConfigOverride{}
	if opts.configPath != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if flagSet.Changed("allow-other") {
		override.AllowOther = &opts.allowOther
	}
	if flagSet.Changed("slow-write-file") {
		override.SlowWriteFile = &opts.slowWriteFile
	}
	if flagSet.Changed("slow-write-delay") {
		override.SlowWriteDelay = util.Pointer(config.Duration(opts.slowWriteDelay))
	}
	return config.NewConfig(override), nil
}
