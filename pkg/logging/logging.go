// Package logging configures log/slog for the adapter and its CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorRed    = "\033[91m"
	colorYellow = "\033[93m"
	colorBlue   = "\033[94m"
	colorCyan   = "\033[96m"
	colorDim    = "\033[2m"
)

// ComponentKey is the attribute that names the emitting component.
// ConsoleHandler prints it right after the message instead of as key=value.
const ComponentKey = "component"

// ConsoleHandler writes one line per record:
//
//	15:04:05.000 INF message component key=value ...
//
// Colors are used only when the writer is a terminal.
type ConsoleHandler struct {
	opts     slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	useColor bool

	component string
	attrs     []slog.Attr
	groups    []string
}

// NewConsoleHandler returns a handler writing to w.
func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{
		w:        w,
		mu:       &sync.Mutex{},
		useColor: isTerminal(w),
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetUseColor overrides terminal detection.
func (h *ConsoleHandler) SetUseColor(useColor bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useColor = useColor
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey {
			component = a.Value.String()
		}
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	buf.WriteString(h.paint(colorGray, r.Time.Format("15:04:05.000")))
	buf.WriteByte(' ')
	buf.WriteString(h.paint(levelColor(r.Level), levelTag(r.Level)))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	if component != "" {
		buf.WriteByte(' ')
		buf.WriteString(h.paint(colorDim, component))
	}

	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != ComponentKey {
			h.writeAttr(&buf, a)
		}
		return true
	})
	buf.WriteByte('\n')

	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *ConsoleHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	if h.opts.ReplaceAttr != nil {
		a = h.opts.ReplaceAttr(h.groups, a)
	}
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			g.Key = a.Key + "." + g.Key
			h.writeAttr(buf, g)
		}
		return
	}

	buf.WriteByte(' ')
	for _, g := range h.groups {
		buf.WriteString(g)
		buf.WriteByte('.')
	}
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprintf("%+v", v.Any())
	default:
		return v.String()
	}
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == ComponentKey && len(h.groups) == 0 {
			clone.component = a.Value.String()
			continue
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *ConsoleHandler) paint(color, text string) string {
	if !h.useColor {
		return text
	}
	return color + text + colorReset
}

func levelTag(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DBG"
	case level < slog.LevelWarn:
		return "INF"
	case level < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

func levelColor(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return colorCyan
	case level < slog.LevelWarn:
		return colorBlue
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

// ParseLevel accepts debug, info, warn and error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New returns a console logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewConsoleHandler(w, &slog.HandlerOptions{Level: level}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Component tags a logger with the emitting component.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = Nop()
	}
	return l.With(ComponentKey, name)
}
