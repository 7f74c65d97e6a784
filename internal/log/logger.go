/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides the process-wide slog logger. Records go to a console
// handler (human readable or JSON) and optionally to a rotating JSON file.
// Attributes stored in a context with ContextWith are added to every record
// logged with that context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"annotator/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - ANN_LOG_LEVEL=debug|info|warn|error
//   - ANN_LOG_FORMAT=console|json
//   - ANN_LOG_FILE=<path> (enables file logging with rotation)
//   - ANN_LOG_SOURCE=true|false (include source)
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string
	Rotate    Rotation
	// Console receives console output; nil means stderr.
	Console io.Writer
}

// Rotation limits the log file. Zero fields take the defaults.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var DefaultRotation = Rotation{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28, Compress: true}

func (r Rotation) orDefault() Rotation {
	if r == (Rotation{}) {
		return DefaultRotation
	}
	d := DefaultRotation
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = d.MaxSizeMB
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = d.MaxBackups
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = d.MaxAgeDays
	}
	return r
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	closer  io.Closer
	// level is shared by all handlers so SetLevel applies without re-init.
	level = new(slog.LevelVar)
)

// L returns the application logger, initializing it from env on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init installs a new logger and makes it slog's default. A log file opened
// by a previous Init is closed.
func Init(opts Options) {
	level.Set(parseLevel(opts.Level))
	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, hopts)
	} else {
		console = &consoleHandler{w: out, level: level, source: opts.AddSource, mu: new(sync.Mutex)}
	}
	h := console
	var file *lj.Logger
	if p := strings.TrimSpace(opts.File); p != "" {
		rot := opts.Rotate.orDefault()
		file = &lj.Logger{Filename: p, MaxSize: rot.MaxSizeMB, MaxBackups: rot.MaxBackups, MaxAge: rot.MaxAgeDays, Compress: rot.Compress}
		h = fanout{console, slog.NewJSONHandler(file, hopts)}
	}

	logger := slog.New(contextHandler{next: h}).With(
		slog.String("app", "annotator"),
		slog.String("ver", version.Version),
		slog.Time("ts_init", time.Now()),
	)

	mu.Lock()
	prev := closer
	current = logger
	closer = nil
	if file != nil {
		closer = file
	}
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("ANN_LOG_LEVEL", "info"),
		Format:    getenv("ANN_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("ANN_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("ANN_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithSession tags a logger with a journal session id.
func WithSession(l *slog.Logger, id int64) *slog.Logger { return l.With(slog.Int64("session", id)) }

type ctxKey struct{}

// ContextWith returns a context whose records carry attrs in addition to
// any attributes ctx already carries.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	all := make([]slog.Attr, 0, len(prev)+len(attrs))
	all = append(all, prev...)
	all = append(all, attrs...)
	return context.WithValue(ctx, ctxKey{}, all)
}

func fromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	return attrs
}

// SetLevel changes the minimum level of the installed handlers.
func SetLevel(s string) { level.Set(parseLevel(s)) }

// Discard returns a logger that drops everything; used by hosts that embed
// the engine without wanting console output.
func Discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// contextHandler adds the attributes stored by ContextWith.
type contextHandler struct{ next slog.Handler }

func (h contextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := fromContext(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// fanout sends every record to each handler that wants it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// consoleHandler writes one line per record:
//
//	15:04:05.000 WRN [engine] message key=value ...
//
// The component attribute becomes the bracketed prefix; the static app, ver
// and ts_init attributes are left to the JSON outputs.
type consoleHandler struct {
	w         io.Writer
	level     slog.Leveler
	source    bool
	component string
	attrs     []slog.Attr
	prefix    string
	mu        *sync.Mutex
}

var hiddenKeys = map[string]bool{"app": true, "ver": true, "ts_init": true}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	if h.level == nil {
		return l >= slog.LevelInfo
	}
	return l >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	b.WriteString(t.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	if h.component != "" {
		b.WriteString(" [")
		b.WriteString(h.component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	if h.source && r.PC != 0 {
		fr, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if fr.File != "" {
			b.WriteString(" src=")
			b.WriteString(filepath.Base(fr.File))
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(fr.Line))
		}
	}
	b.WriteByte('\n')
	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		switch {
		case h.prefix == "" && a.Key == "component":
			n.component = a.Value.String()
		case h.prefix == "" && hiddenKeys[a.Key]:
		default:
			a.Key = h.prefix + a.Key
			n.attrs = append(n.attrs, a)
		}
	}
	return &n
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	n.prefix = h.prefix + name + "."
	return &n
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, g := range v.Group() {
			writeAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(valueString(v))
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	}
	return "ERR"
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}
