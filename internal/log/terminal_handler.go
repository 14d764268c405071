package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// statusColours colour the value of a status attribute.
var statusColours = map[string]string{
	"started":   ansiCyan,
	"completed": ansiGreen,
	"cancelled": ansiYellow,
	"error":     ansiRed,
}

// TerminalHandler writes one line per record:
//
//	15:04:05.000 INF [github.com/psf/requests] analysis completed files=120 status=completed
//
// The bracketed prefix holds the repository and batch tags of the context.
// Colour is only emitted when the writer is a terminal.
type TerminalHandler struct {
	writer io.Writer
	level  slog.Leveler
	colour bool
	// prefix holds the rendered WithAttrs attributes.
	prefix []byte
	groups string
	mu     *sync.Mutex
}

func newTerminalHandler(w io.Writer, opts *slog.HandlerOptions) *TerminalHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &TerminalHandler{
		writer: w,
		level:  level,
		colour: isTerminal(w),
		mu:     &sync.Mutex{},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (h *TerminalHandler) style(buf *bytes.Buffer, code, s string) {
	if !h.colour || code == "" {
		buf.WriteString(s)
		return
	}
	buf.WriteString(code)
	buf.WriteString(s)
	buf.WriteString(ansiReset)
}

// Enabled implements slog.Handler.
func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var tags []string
	var attrs bytes.Buffer
	r.Attrs(func(a slog.Attr) bool {
		if h.groups == "" && (a.Key == RepositoryAttr || a.Key == BatchIDAttr) {
			tags = append(tags, a.Value.String())
			return true
		}
		h.appendAttr(&attrs, h.groups, a)
		return true
	})

	buf := bytes.NewBuffer(make([]byte, 0, 256))
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.style(buf, ansiDim, ts.Format("15:04:05.000"))
	buf.WriteByte(' ')
	colour, label := levelStyle(r.Level)
	h.style(buf, colour, label)
	buf.WriteByte(' ')
	if len(tags) > 0 {
		h.style(buf, ansiDim, "["+strings.Join(tags, " ")+"]")
		buf.WriteByte(' ')
	}
	h.style(buf, ansiBold, r.Message)
	buf.Write(h.prefix)
	buf.Write(attrs.Bytes())
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// WithAttrs implements slog.Handler. The attributes are rendered once.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	buf := bytes.NewBuffer(bytes.Clone(h.prefix))
	for _, a := range attrs {
		h.appendAttr(buf, h.groups, a)
	}
	clone := *h
	clone.prefix = buf.Bytes()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = joinKey(h.groups, name)
	return &clone
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return ansiCyan, "DBG"
	case level < slog.LevelWarn:
		return ansiGreen, "INF"
	case level < slog.LevelError:
		return ansiYellow, "WRN"
	default:
		return ansiRed, "ERR"
	}
}

func (h *TerminalHandler) appendAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			group = joinKey(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(buf, group, ga)
		}
		return
	}

	buf.WriteByte(' ')
	h.style(buf, ansiDim, joinKey(group, a.Key)+"=")
	value := formatAttrValue(a.Value)
	if a.Key == "status" {
		h.style(buf, statusColours[value], value)
		return
	}
	buf.WriteString(value)
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func formatAttrValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return v.String()
	}
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\n\"\\=") {
		return strconv.Quote(s)
	}
	return s
}
