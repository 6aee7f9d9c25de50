// Package faults provides write fault-injection hooks used to make the store behave like a
// slow or stalling storage device.
package faults

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/slowfs/config"
	"github.com/brettbedarf/slowfs/internal/util"
)

// WriteFault runs before every write is applied. It may block for as long as it likes;
// the engine holds no locks while it runs and there is no way to cancel it.
type WriteFault interface {
	BeforeWrite(ino uint64, offset int64, size int)
}

// SleepFunc pauses the calling goroutine. Tests swap in a fake.
type SleepFunc func(d time.Duration)

// None never delays.
type None struct{}

func (None) BeforeWrite(uint64, int64, int) {}

// Fixed delays every write by Delay.
type Fixed struct {
	Delay time.Duration
	Sleep SleepFunc
}

func (f *Fixed) BeforeWrite(ino uint64, offset int64, size int) {
	stall(f.Sleep, f.Delay, ino, offset, size)
}

// Sentinel delays writes only while a file exists at Path. Relative paths resolve against
// the working directory at the time of each write, so a harness can flip slowness on and
// off with touch/rm without talking to the process.
type Sentinel struct {
	Path  string
	Delay time.Duration
	Sleep SleepFunc
}

func (s *Sentinel) Active() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

func (s *Sentinel) BeforeWrite(ino uint64, offset int64, size int) {
	if !s.Active() {
		return
	}
	stall(s.Sleep, s.Delay, ino, offset, size)
}

// Toggle delays writes while enabled. It starts disabled.
type Toggle struct {
	Delay   time.Duration
	Sleep   SleepFunc
	enabled atomic.Bool
}

func (t *Toggle) Enable()       { t.enabled.Store(true) }
func (t *Toggle) Disable()      { t.enabled.Store(false) }
func (t *Toggle) Enabled() bool { return t.enabled.Load() }

func (t *Toggle) BeforeWrite(ino uint64, offset int64, size int) {
	if !t.enabled.Load() {
		return
	}
	stall(t.Sleep, t.Delay, ino, offset, size)
}

// FromConfig builds the fault described by cfg. A zero SlowWriteDelay disables slow writes;
// otherwise writes are slowed while SlowWriteFile exists, or always when it is empty.
func FromConfig(cfg *config.Config) WriteFault {
	switch {
	case cfg.SlowWriteDelay <= 0:
		return None{}
	case cfg.SlowWriteFile == "":
		return &Fixed{Delay: cfg.SlowWriteDelay}
	default:
		return &Sentinel{Path: cfg.SlowWriteFile, Delay: cfg.SlowWriteDelay}
	}
}

func stall(sleep SleepFunc, d time.Duration, ino uint64, offset int64, size int) {
	if d <= 0 {
		return
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := util.GetLogger("Faults.SlowWrite")
	logger.Info().Uint64("ino", ino).Int64("offset", offset).Int("size", size).
		Dur("delay", d).Msg("Stalling write")
	sleep(d)
	logger.Info().Uint64("ino", ino).Msg("Write stall finished")
}
