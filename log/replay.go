package log

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Replay re-emits a native library's log payload through logger, tagged
// with the library name. Payloads that are not a wire envelope are logged
// verbatim at info level.
func Replay(ctx context.Context, logger *slog.Logger, library string, payload []byte) {
	if logger == nil {
		logger = slog.Default()
	}

	msg, err := DecodeMessage(payload)
	if err != nil {
		logger.InfoContext(ctx, strings.TrimSpace(string(payload)), "library", library)
		return
	}

	level := ParseLevel(msg.Level, slog.LevelInfo)
	if !logger.Enabled(ctx, level) {
		return
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	record := slog.NewRecord(ts, level, msg.Message, 0)
	record.AddAttrs(slog.String("library", library))
	for _, a := range msg.Attrs {
		record.AddAttrs(a.Attr())
	}
	_ = logger.Handler().Handle(ctx, record)
}

// ParseLevel parses a level name such as "warn" or "DEBUG+2", returning
// fallback when name is not a level.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fallback
	}
	return level
}
