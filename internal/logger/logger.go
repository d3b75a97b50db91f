// Package logger is the process-wide structured logger. Records about a
// container carry its id, schema version and store path, either passed as
// fields or taken from the LogContext bound to the context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	format             = "text"
	useColor bool
)

func init() {
	useColor = isTerminal(os.Stdout)
	rebuild()
}

// rebuild swaps in a handler for the current output and format. Callers
// hold mu, except init.
func rebuild() {
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
		return
	}
	slogger = slog.New(newContainerTextHandler(output, level, useColor))
}

// Init applies cfg. Empty fields keep their current value and unknown
// levels or formats are ignored.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "":
	case "stdout":
		output, useColor = os.Stdout, isTerminal(os.Stdout)
	case "stderr":
		output, useColor = os.Stderr, isTerminal(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		output, useColor = f, false
	}

	if l, ok := parseLevel(cfg.Level); ok {
		level.Set(l)
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "json" {
		format = f
	}

	rebuild()
	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

func getLogger() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

func enabled(l slog.Level) bool {
	return l >= level.Level()
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	if !enabled(slog.LevelDebug) {
		return
	}
	getLogger().Debug(msg, args...)
}

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) {
	if !enabled(slog.LevelWarn) {
		return
	}
	getLogger().Warn(msg, args...)
}

// Error logs at error level with structured fields
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// DebugCtx logs at debug level with the container fields bound to ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with the container fields bound to ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with the container fields bound to ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with the container fields bound to ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelError, msg, args)
}

func logCtx(ctx context.Context, l slog.Level, msg string, args []any) {
	if !enabled(l) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	getLogger().Log(ctx, l, msg, withContextFields(ctx, args)...)
}

// withContextFields prepends the LogContext fields that args does not
// already set.
func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	explicit := make(map[string]struct{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			explicit[k] = struct{}{}
		}
	}

	ctxArgs := lc.args()
	out := make([]any, 0, len(ctxArgs)+len(args))
	for i := 0; i+1 < len(ctxArgs); i += 2 {
		if _, dup := explicit[ctxArgs[i].(string)]; dup {
			continue
		}
		out = append(out, ctxArgs[i], ctxArgs[i+1])
	}
	return append(out, args...)
}

// StoreLogf logs a printf-style line emitted by the storage engine of the
// store at storePath.
func StoreLogf(l slog.Level, storePath, msgFormat string, args ...any) {
	if !enabled(l) {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(msgFormat, args...), "\n")
	getLogger().Log(context.Background(), l, msg, KeyStorePath, storePath)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
