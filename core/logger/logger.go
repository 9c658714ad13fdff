package logger

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logClosers []io.Closer
	levelVar   slog.LevelVar

	// L is the base logger shared by components that do not carry a context.
	L *slog.Logger

	// DB logs database-related events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// SEED logs reference data seeding.
	SEED *slog.Logger
	// BILLING logs entitlement lifecycle activity.
	BILLING *slog.Logger
	// TASKS logs task workflow activity.
	TASKS *slog.Logger
	// RECONCILE logs background reconciliation cycles.
	RECONCILE *slog.Logger
	// NOTIFY logs outbound notification delivery.
	NOTIFY *slog.Logger
)

// Config is the subset of logging configuration the logger needs.
type Config struct {
	Level   string
	Format  string
	Profile string
	Dir     string
	File    string
}

// Init configures the global structured logger. It may be called only once.
func Init(cfg Config) error {
	var initErr error
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg.Level))

		writers := []io.Writer{os.Stdout}
		if w, closer, err := openLogFile(cfg.Dir, cfg.File); err == nil && w != nil {
			writers = append(writers, w)
			logClosers = append(logClosers, closer)
		}
		out := io.MultiWriter(writers...)

		opts := &slog.HandlerOptions{Level: &levelVar, ReplaceAttr: roundDurations}
		var handler slog.Handler
		if selectFormat(cfg) == "text" {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}

		L = slog.New(handler)
		slog.SetDefault(L)
		wireComponents()
	})
	return initErr
}

func wireComponents() {
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	SEED = L.With("component", "db.seed")
	BILLING = L.With("component", "billing")
	TASKS = L.With("component", "tasks")
	RECONCILE = L.With("component", "reconcile")
	NOTIFY = L.With("component", "notify")
}

// Shutdown closes opened log sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true
	var lastErr error
	for _, c := range logClosers {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	base := L
	if base == nil {
		base = slog.Default()
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return base
	}
	return base.With("component", trimmed)
}

// Event logs with component scope and a mandatory event attribute.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := FromContext(ctx)
	if logg == nil {
		logg = Component(component)
	} else if strings.TrimSpace(component) != "" {
		logg = logg.With("component", component)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	if rid := RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// RoundMS rounds a duration to whole milliseconds for stable log output.
func RoundMS(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

func roundDurations(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		a.Value = slog.DurationValue(a.Value.Duration().Round(time.Millisecond))
	}
	return a
}

func selectLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func selectFormat(cfg Config) string {
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "kv", "text", "pretty":
		return "text"
	case "json":
		return "json"
	}
	// Prefer human-friendly format when profile indicates debug/dev mode.
	if strings.EqualFold(cfg.Profile, "debug") || strings.EqualFold(cfg.Profile, "dev") {
		return "text"
	}
	return "json"
}

func openLogFile(dir, file string) (io.Writer, io.Closer, error) {
	dir = strings.TrimSpace(dir)
	file = strings.TrimSpace(file)
	if dir == "" || file == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return nil, nil, err
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return nil, nil, err
	}
	return f, f, nil
}
