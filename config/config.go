package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/slowfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// CLI verbosity values accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "slowfs"
	DefaultName   = "slowfs"
	DefaultLogLvl = util.InfoLevel

	// DefaultMaxWrite is the maximum write size per FUSE request
	DefaultMaxWrite = 1 * MB

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO bypasses the page cache so every read and write reaches the store
	DefaultDirectIO = true

	// DefaultRootPerms is rwxrwxr-x
	DefaultRootPerms = 0o775

	// DefaultBlockSize is the statfs fragment size in bytes
	DefaultBlockSize = 512

	// DefaultMinFreeBlocks is the floor reported for free blocks
	DefaultMinFreeBlocks = 1024

	// DefaultMinFreeFiles is the floor reported for free inodes
	DefaultMinFreeFiles = 100

	// DefaultSlowWriteFile is the sentinel whose presence slows every write down
	DefaultSlowWriteFile = "slow_write"

	// DefaultSlowWriteDelay is how long a slowed write stalls before committing
	DefaultSlowWriteDelay = 30 * time.Second
)

// Config contains runtime configuration values for the filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	RootPerms     uint32 // Permission bits of the root directory (Default 0775)
	BlockSize     uint32 // statfs block size in bytes (Default 512)
	MinFreeBlocks uint64 // Free blocks never reported below this (Default 1024)
	MinFreeFiles  uint64 // Free inodes never reported below this (Default 100)

	// Writes stall for SlowWriteDelay while SlowWriteFile exists. An empty SlowWriteFile
	// slows every write; a zero SlowWriteDelay disables slow writes entirely.
	SlowWriteFile  string
	SlowWriteDelay time.Duration

	// NOTE: Low-level FUSE config (strongly recommend defaults unless you really know what you're doing):

	MaxWrite     int     // Maximum write size per FUSE request (Default 1MB)
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Whether to bypass the kernel page cache (Default true)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName     *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name       *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug      *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	AllowOther *bool   `yaml:"allow_other,omitempty" json:"allow_other,omitempty"`
	// LogLvl is a CLI-style verbosity between 1 (error) and 5 (trace)
	LogLvl *int `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	RootPerms      *uint32        `yaml:"root_perms,omitempty" json:"root_perms,omitempty"`
	BlockSize      *uint32        `yaml:"block_size,omitempty" json:"block_size,omitempty"`
	MinFreeBlocks  *uint64        `yaml:"min_free_blocks,omitempty" json:"min_free_blocks,omitempty"`
	MinFreeFiles   *uint64        `yaml:"min_free_files,omitempty" json:"min_free_files,omitempty"`
	SlowWriteFile  *string        `yaml:"slow_write_file,omitempty" json:"slow_write_file,omitempty"`
	SlowWriteDelay *Duration      `yaml:"slow_write_delay,omitempty" json:"slow_write_delay,omitempty"`

	MaxWrite     *int     `yaml:"max_write,omitempty" json:"max_write,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO     *bool    `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:         DefaultLogLvl,
		RootPerms:      DefaultRootPerms,
		BlockSize:      DefaultBlockSize,
		MinFreeBlocks:  DefaultMinFreeBlocks,
		MinFreeFiles:   DefaultMinFreeFiles,
		SlowWriteFile:  DefaultSlowWriteFile,
		SlowWriteDelay: DefaultSlowWriteDelay,
		MaxWrite:       DefaultMaxWrite,
		AttrTimeout:    DefaultAttrTimeout,
		EntryTimeout:   DefaultEntryTimeout,
		DirectIO:       DefaultDirectIO,
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// AttrTimeoutDuration returns AttrTimeout as a time.Duration
func (c *Config) AttrTimeoutDuration() time.Duration {
	return time.Duration(c.AttrTimeout * float64(time.Second))
}

// EntryTimeoutDuration returns EntryTimeout as a time.Duration
func (c *Config) EntryTimeoutDuration() time.Duration {
	return time.Duration(c.EntryTimeout * float64(time.Second))
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.AllowOther != nil {
		c.AllowOther = *override.AllowOther
	}
	if override.LogLvl != nil {
		c.LogLvl = util.VerbosityLevel(*override.LogLvl)
	}
	if override.RootPerms != nil {
		c.RootPerms = *override.RootPerms
	}
	if override.BlockSize != nil {
		c.BlockSize = *override.BlockSize
	}
	if override.MinFreeBlocks != nil {
		c.MinFreeBlocks = *override.MinFreeBlocks
	}
	if override.MinFreeFiles != nil {
		c.MinFreeFiles = *override.MinFreeFiles
	}
	if override.SlowWriteFile != nil {
		c.SlowWriteFile = *override.SlowWriteFile
	}
	if override.SlowWriteDelay != nil {
		c.SlowWriteDelay = time.Duration(*override.SlowWriteDelay)
	}
	if override.MaxWrite != nil {
		c.MaxWrite = *override.MaxWrite
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
