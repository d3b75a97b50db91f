package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// containerTextHandler writes one line per record with the container the
// record is about pulled out of the attribute list:
//
//	[2026-01-02 15:04:05] [INFO] [container 12 v3] Container loaded block_count=4 store=/vol/hdds/container.db
//
// The tag carries container_id and schema_version, store_path always comes
// last, and every other attribute keeps its order. The first occurrence of a
// lifted key wins.
type containerTextHandler struct {
	level    slog.Leveler
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string
	useColor bool
}

func newContainerTextHandler(w io.Writer, level slog.Leveler, useColor bool) *containerTextHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &containerTextHandler{
		level:    level,
		w:        w,
		mu:       &sync.Mutex{},
		useColor: useColor,
	}
}

func (h *containerTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// recordLine collects the pieces of one output line.
type recordLine struct {
	containerID string
	schema      string
	storePath   string
	rest        []slog.Attr
}

func (l *recordLine) add(a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	switch a.Key {
	case KeyContainerID:
		if l.containerID == "" {
			l.containerID = formatValue(a.Value)
		}
	case KeySchemaVersion:
		if l.schema == "" {
			l.schema = strings.TrimPrefix(formatValue(a.Value), "v")
		}
	case KeyStorePath:
		if l.storePath == "" {
			l.storePath = formatValue(a.Value)
		}
	default:
		l.rest = append(l.rest, a)
	}
}

func (h *containerTextHandler) Handle(_ context.Context, r slog.Record) error {
	var line recordLine
	for _, a := range h.attrs {
		line.add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		line.add(a)
		return true
	})

	var buf []byte
	buf = fmt.Appendf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), h.formatLevel(r.Level))
	buf = h.appendTag(buf, line.containerID, line.schema)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, a := range line.rest {
		buf = h.appendAttr(buf, a)
	}
	if line.storePath != "" {
		buf = h.appendColored(buf, colorGray, " store="+line.storePath)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	_, err := h.w.Write(buf)
	h.mu.Unlock()
	return err
}

// appendTag renders "[container 12 v3]", "[container 12]" or "[v3]".
func (h *containerTextHandler) appendTag(buf []byte, containerID, schema string) []byte {
	var tag string
	switch {
	case containerID != "" && schema != "":
		tag = "container " + containerID + " v" + schema
	case containerID != "":
		tag = "container " + containerID
	case schema != "":
		tag = "v" + schema
	default:
		return buf
	}
	buf = append(buf, " ["...)
	buf = h.appendColored(buf, colorBlue, tag)
	return append(buf, ']')
}

func (h *containerTextHandler) formatLevel(level slog.Level) string {
	var levelStr, color string
	switch {
	case level < slog.LevelInfo:
		levelStr, color = "DEBUG", colorGray
	case level < slog.LevelWarn:
		levelStr, color = "INFO", colorGreen
	case level < slog.LevelError:
		levelStr, color = "WARN", colorYellow
	default:
		levelStr, color = "ERROR", colorRed
	}
	if h.useColor {
		return color + levelStr + colorReset
	}
	return levelStr
}

func (h *containerTextHandler) appendAttr(buf []byte, a slog.Attr) []byte {
	val := formatValue(a.Value)
	buf = append(buf, ' ')
	buf = h.appendColored(buf, colorCyan, a.Key)
	buf = append(buf, '=')
	if a.Key == KeyError {
		return h.appendColored(buf, colorRed, val)
	}
	return append(buf, val...)
}

func (h *containerTextHandler) appendColored(buf []byte, color, s string) []byte {
	if !h.useColor {
		return append(buf, s...)
	}
	buf = append(buf, color...)
	buf = append(buf, s...)
	return append(buf, colorReset...)
}

// formatValue formats a slog.Value for text output. Strings with spaces are
// quoted so that values stay separable.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\n\"") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprintf("%v", v.Any())
	default:
		return v.String()
	}
}

func (h *containerTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *containerTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}
