package loading

import (
	"context"
	"log/slog"

	"github.com/nfrund/questy/internal/quest"
)

// LoaderLogger provides centralized logging for quest loaders
type LoaderLogger struct {
	baseFields []slog.Attr
}

// NewLoaderLogger creates a new loader logger with base fields
func NewLoaderLogger() *LoaderLogger {
	return &LoaderLogger{
		baseFields: []slog.Attr{
			slog.String("component", "quest_loader"),
		},
	}
}

// LogFailure logs a skipped quest file with its error context
func (ll *LoaderLogger) LogFailure(err *LoadError) {
	fields := make([]slog.Attr, 0, len(ll.baseFields)+6)
	fields = append(fields, ll.baseFields...)
	fields = append(fields,
		slog.String("format", err.Format),
		slog.String("path", err.Path),
		slog.String("error_kind", string(err.Kind)),
		slog.String("error_message", err.Message),
		slog.String("event_type", "quest_load_failed"),
	)
	if err.Cause != nil {
		fields = append(fields, slog.String("cause", err.Cause.Error()))
	}

	slog.LogAttrs(context.TODO(), slog.LevelWarn, "Skipping quest file", fields...)
}

// LogLoaded logs a quest that was loaded successfully
func (ll *LoaderLogger) LogLoaded(q *quest.Quest) {
	fields := make([]slog.Attr, 0, len(ll.baseFields)+5)
	fields = append(fields, ll.baseFields...)
	fields = append(fields,
		slog.String("format", q.Format),
		slog.String("path", q.Source),
		slog.String("quest", q.Name),
		slog.Int("objectives", len(q.Objectives)),
		slog.String("event_type", "quest_loaded"),
	)

	slog.LogAttrs(context.TODO(), slog.LevelDebug, "Loaded quest", fields...)
}

// LogScan logs the summary of one directory scan
func (ll *LoaderLogger) LogScan(r *Report) {
	fields := make([]slog.Attr, 0, len(ll.baseFields)+6)
	fields = append(fields, ll.baseFields...)
	fields = append(fields,
		slog.String("format", r.Format),
		slog.String("dir", r.Dir),
		slog.Int("loaded", r.Quests.Len()),
		slog.Int("failed", len(r.Failures)),
		slog.Duration("duration", r.Duration),
		slog.String("event_type", "quest_scan"),
	)

	level := slog.LevelInfo
	if len(r.Failures) > 0 {
		level = slog.LevelWarn
	}
	slog.LogAttrs(context.TODO(), level, "Quest directory scanned", fields...)
}

// LogSystem logs loader-level events that are not tied to a single quest
func (ll *LoaderLogger) LogSystem(format, message string, args ...any) {
	logger := slog.Default().With("component", "quest_loader", "format", format, "event_type", "quest_system")
	logger.Debug(message, args...)
}

// Global loader logger instance
var loaderLogger = NewLoaderLogger()

// LogFailure logs a skipped quest file
func LogFailure(err *LoadError) {
	loaderLogger.LogFailure(err)
}

// LogLoaded logs a loaded quest
func LogLoaded(q *quest.Quest) {
	loaderLogger.LogLoaded(q)
}

// LogScan logs a scan summary
func LogScan(r *Report) {
	loaderLogger.LogScan(r)
}

// LogSystem logs a loader-level event
func LogSystem(format, message string, args ...any) {
	loaderLogger.LogSystem(format, message, args...)
}
