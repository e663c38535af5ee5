// Package privacylog keeps wallet secrets and linkable identifiers out of logs.
// Secret-bearing keys are replaced by a marker; addresses and output ids are
// replaced by a per-process fingerprint so records can still be correlated.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type action int

const (
	keep action = iota
	redact
	fingerprint
)

var (
	bootNonce = randomNonce()

	// Matched as substrings of the lower-cased key.
	secretKeyParts = []string{
		"mnemonic", "seed", "password", "passphrase", "secret",
		"token", "jwt", "authorization", "auth",
	}
	// Matched exactly against the lower-cased key.
	linkableKeys = map[string]struct{}{
		"address":       {},
		"addresses":     {},
		"output":        {},
		"output_id":     {},
		"tx_id":         {},
		"block_id":      {},
		"snapshot_path": {},
	}
)

func classify(key string) action {
	lower := strings.ToLower(strings.TrimSpace(key))
	if _, ok := linkableKeys[lower]; ok {
		return fingerprint
	}
	for _, part := range secretKeyParts {
		if strings.Contains(lower, part) {
			return redact
		}
	}
	return keep
}

// NewLogger builds the process logger: a JSON or text slog handler behind the sanitizer.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(WrapHandler(base))
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = SanitizeAttr(attr)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the key rules to attr, descending into groups.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch classify(attr.Key) {
	case redact:
		return slog.String(attr.Key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKey(attr.Key), FingerprintID(render(value)))
	}
	if value.Kind() != slog.KindGroup {
		return slog.Attr{Key: attr.Key, Value: value}
	}
	members := value.Group()
	clean := make([]slog.Attr, len(members))
	for i, member := range members {
		clean[i] = SanitizeAttr(member)
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(clean...)}
}

// SanitizeArgs applies the key rules to alternating key/value logger arguments.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case slog.Attr:
			out = append(out, SanitizeAttr(v))
		case string:
			if i+1 >= len(args) {
				out = append(out, v)
				continue
			}
			i++
			attr := SanitizeAttr(slog.Any(v, args[i]))
			out = append(out, attr.Key, attr.Value.Any())
		default:
			out = append(out, v)
		}
	}
	return out
}

// FingerprintID hashes value with a nonce chosen at process start. Equal
// inputs match within one process and never across restarts.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func render(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000000000Z")
	case slog.KindAny:
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
