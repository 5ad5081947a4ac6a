// Package monitor implements the logging and terminal-printing ambient
// stack (spec §9 "Logging"). CustomHandler is carried over from genesis's
// pkg/monitor/logger.go almost unchanged — the [TIME] [LEVEL] line format
// and debug-id context extraction have no spec-driven reason to change, only
// the context key (llm_debug_dir -> conversation debug dir, spec's
// DEBUG_CONTEXT toggle) and banner text differ.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type debugIDKey struct{}

// WithDebugID attaches a per-turn debug identifier to ctx; CustomHandler
// prints it alongside every log line emitted under that context, mirroring
// the DEBUG_CONTEXT=1 / DEBUG_EMBEDDINGS=1 diagnostics switches (spec §6).
func WithDebugID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, debugIDKey{}, id)
}

// CustomHandler implements slog.Handler, rendering "[time] [level] [id] msg
// attrs..." lines to w.
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

// NewCustomHandler builds a handler writing to w at the given level.
func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	debugID := ""
	if ctx != nil {
		if v, ok := ctx.Value(debugIDKey{}).(string); ok {
			debugID = v
		}
	}

	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)
	if debugID != "" {
		fmt.Fprintf(buf, " [%s]", debugID)
	}
	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")
	h.w.Write(buf.Bytes())
	return nil
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{w: h.w, opts: h.opts, attrs: append(h.attrs, attrs...)}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler { return h }

// SetupSlog installs CustomHandler as the global slog default at levelStr,
// honoring DEBUG_CONTEXT=1 by forcing debug level regardless of the
// requested level (spec §6 environment variables).
func SetupSlog(levelStr string) {
	level := parseLevel(levelStr)
	if os.Getenv("DEBUG_CONTEXT") == "1" || os.Getenv("DEBUG_EMBEDDINGS") == "1" {
		level = slog.LevelDebug
	}
	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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
