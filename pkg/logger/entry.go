package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogEntry is one line of JSON log output.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// entryHandler writes LogEntry lines. Group names become dotted key
// prefixes and credential values are redacted as fields are collected.
type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	mu        *sync.Mutex

	prefix    string
	component string
	fields    map[string]any
}

func newEntryHandler(writer io.Writer, s settings) *entryHandler {
	return &entryHandler{
		level:     s.level,
		addSource: s.addSource,
		writer:    writer,
		mu:        &sync.Mutex{},
	}
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Component: h.component,
		Message:   record.Message,
	}

	fields := make(map[string]any, len(h.fields)+record.NumAttrs())
	for key, value := range h.fields {
		fields[key] = value
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.collect(fields, &entry.Component, h.prefix, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

// collect flattens attr into fields. A top-level "component" string fills
// the entry's component instead.
func (h *entryHandler) collect(fields map[string]any, component *string, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if attr.Key == "" && value.Kind() != slog.KindGroup {
		return
	}

	key := prefix + attr.Key
	switch {
	case isSecret(attr.Key):
		fields[key] = redacted
	case value.Kind() == slog.KindGroup:
		inner := prefix
		if attr.Key != "" {
			inner = key + "."
		}
		for _, item := range value.Group() {
			h.collect(fields, component, inner, item)
		}
	case key == "component" && value.Kind() == slog.KindString:
		*component = value.String()
	case value.Kind() == slog.KindDuration:
		fields[key] = value.Duration().String()
	case value.Kind() == slog.KindTime:
		fields[key] = value.Time().UTC().Format(time.RFC3339Nano)
	default:
		fields[key] = value.Any()
	}
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = make(map[string]any, len(h.fields)+len(attrs))
	for key, value := range h.fields {
		next.fields[key] = value
	}
	for _, attr := range attrs {
		h.collect(next.fields, &next.component, h.prefix, attr)
	}
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
