package filesystem

import (
	"github.com/brettbedarf/slowfs"
	"github.com/rs/zerolog"
)

// LogObserver writes every OpEvent as one structured log line. Successful operations log
// at trace, failed ones at debug since ENOENT lookups are routine kernel traffic.
type LogObserver struct {
	logger zerolog.Logger
}

func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(ev slowfs.OpEvent) {
	var e *zerolog.Event
	if ev.Err != nil {
		e = o.logger.Debug().Err(ev.Err)
	} else {
		e = o.logger.Trace()
	}
	e = e.Str("fs", ev.FsID).Str("op", string(ev.Op)).Uint64("ino", ev.Ino)
	if ev.Parent != 0 {
		e = e.Uint64("parent", ev.Parent)
	}
	if ev.Name != "" {
		e = e.Str("name", ev.Name)
	}
	if ev.Op == slowfs.OpRead || ev.Op == slowfs.OpWrite {
		e = e.Int64("offset", ev.Offset).Int("size", ev.Size)
	}
	e.Dur("took", ev.Duration).Msg(string(ev.Op))
}
