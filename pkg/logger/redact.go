package logger

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach log output.
var secretKeys = map[string]struct{}{
	"token":         {},
	"session_token": {},
	"cookie":        {},
	"cookies":       {},
	"xoxc":          {},
	"xoxc_token":    {},
	"xoxd":          {},
	"xoxd_token":    {},
}

func isSecret(key string) bool {
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

// redactingHandler masks credentials before records reach a handler that
// does not redact on its own.
type redactingHandler struct {
	next slog.Handler
}

func (h redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redact(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, redact(attr))
	}
	return redactingHandler{next: h.next.WithAttrs(clean)}
}

func (h redactingHandler) WithGroup(name string) slog.Handler {
	return redactingHandler{next: h.next.WithGroup(name)}
}

func redact(attr slog.Attr) slog.Attr {
	if isSecret(attr.Key) {
		return slog.String(attr.Key, redacted)
	}

	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return slog.Attr{Key: attr.Key, Value: value}
	}

	group := value.Group()
	clean := make([]slog.Attr, 0, len(group))
	for _, item := range group {
		clean = append(clean, redact(item))
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(clean...)}
}
