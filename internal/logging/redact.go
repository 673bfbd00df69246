package logging

import (
	"context"
	"log/slog"
	"strings"
)

// MaskPhone keeps the first and last two digits.
// "0612345678" → "06******78"
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// MaskEmail masks the local part of an address.
// "fatima.alami@example.com" → "fa***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// MaskKey masks the values of a duplicate key string such as
// "beneficiary|42|telephone=0612345678". The kind and campaign stay readable.
func MaskKey(key string) string {
	parts := strings.Split(key, "|")
	for i, p := range parts {
		field, value, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		parts[i] = field + "=" + maskField(field, value)
	}
	return strings.Join(parts, "|")
}

func maskField(field, value string) string {
	switch field {
	case "telephone", "phone":
		return MaskPhone(value)
	case "email":
		return MaskEmail(value)
	}
	r := []rune(value)
	if len(r) <= 2 {
		return "***"
	}
	return string(r[:2]) + "***"
}

// redactHandler masks personal data attributes before passing records on.
type redactHandler struct {
	next slog.Handler
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(masked)}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, len(group))
		for i, g := range group {
			masked[i] = redactAttr(g)
		}
		return slog.Group(a.Key, masked...)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}
	switch a.Key {
	case "phone", "telephone":
		return slog.String(a.Key, MaskPhone(a.Value.String()))
	case "email":
		return slog.String(a.Key, MaskEmail(a.Value.String()))
	case "key", "dedup_key":
		return slog.String(a.Key, MaskKey(a.Value.String()))
	}
	return a
}
