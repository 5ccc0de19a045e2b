package tabcsv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// warner emits each distinct warning text at most once per Output.
type warner struct {
	logger   *slog.Logger
	warned   map[string]struct{}
	disabled bool
	metrics  *Metrics
}

func newWarner(logger *slog.Logger) *warner {
	return &warner{
		logger: logger,
		warned: make(map[string]struct{}),
	}
}

// warn logs msg unless it was seen before or warnings are disabled. The
// record's source is the frame skip levels above warn, which lets the log
// line point at the code that called Output.Write.
func (w *warner) warn(msg string, skip int) {
	_, seen := w.warned[msg]
	w.warned[msg] = struct{}{}
	if seen || w.disabled {
		return
	}

	ctx := context.Background()
	if !w.logger.Enabled(ctx, slog.LevelWarn) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(skip+1, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelWarn, msg, pcs[0])
	r.AddAttrs(slog.String("category", "csv_output"))
	_ = w.logger.Handler().Handle(ctx, r)

	w.metrics.warningEmitted()
}

func (w *warner) messages() []string {
	out := make([]string, 0, len(w.warned))
	for m := range w.warned {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ConsoleOptions configures a ConsoleHandler.
type ConsoleOptions struct {
	// Level is the minimum level written. Default is slog.LevelInfo.
	Level slog.Leveler
	// NoColor disables ANSI colors.
	NoColor bool
	// ForceColor enables ANSI colors even when the writer is not a terminal.
	// With neither option set, colors are used only for terminals.
	ForceColor bool
}

// ConsoleHandler is a slog.Handler for terminals. Each record is one line
// of the form "file.go:42: WARN: message key=value", with the level and
// message colored by severity. It is the default handler of an Output.
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	colors map[slog.Level]*color.Color
	attrs  []slog.Attr
	group  string
}

// NewConsoleHandler creates a ConsoleHandler writing to w.
func NewConsoleHandler(w io.Writer, opts *ConsoleOptions) *ConsoleHandler {
	if opts == nil {
		opts = &ConsoleOptions{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	colors := map[slog.Level]*color.Color{
		slog.LevelDebug: color.New(color.Faint),
		slog.LevelInfo:  color.New(color.Reset),
		slog.LevelWarn:  color.New(color.FgYellow),
		slog.LevelError: color.New(color.FgRed, color.Bold),
	}
	enabled := opts.ForceColor || (!opts.NoColor && isTerminal(w))
	for _, c := range colors {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level, colors: colors}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			fmt.Fprintf(&buf, "%s:%d: ", filepath.Base(frame.File), frame.Line)
		}
	}
	c := h.colorFor(r.Level)
	buf.WriteString(c.Sprintf("%s: %s", r.Level, r.Message))

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h2.group != "" {
		h2.group += "."
	}
	h2.group += name
	return &h2
}

func (h *ConsoleHandler) colorFor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return h.colors[slog.LevelError]
	case level >= slog.LevelWarn:
		return h.colors[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return h.colors[slog.LevelInfo]
	default:
		return h.colors[slog.LevelDebug]
	}
}

// isTerminal reports whether w is a terminal that accepts colors.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(buf, " %s=%v", key, a.Value.Resolve())
}
