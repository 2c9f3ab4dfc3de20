package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new enhanced logger
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AggregationLogger logs attendance aggregation details
func (l *Logger) AggregationLogger(operation, from, to string, records int, duration time.Duration, cacheHit bool) {
	l.Info("Aggregation Completed",
		"operation", operation,
		"from", from,
		"to", to,
		"records", records,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// StoreLogger logs storage operation details
func (l *Logger) StoreLogger(mode, operation string, duration time.Duration, err error) {
	if err != nil {
		l.Error("Store Operation Failed",
			"mode", mode,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return
	}

	l.Debug("Store Operation",
		"mode", mode,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}

// ImportLogger logs snapshot import results
func (l *Logger) ImportLogger(people, eventTypes, sessions, records int, duration time.Duration) {
	l.Info("Import Completed",
		"people", people,
		"event_types", eventTypes,
		"sessions", sessions,
		"records", records,
		"duration_ms", duration.Milliseconds(),
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	short := key
	if len(short) > 8 {
		short = short[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key", short,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	l.Logger = slog.New(handler)
}

var startTime = time.Now()
