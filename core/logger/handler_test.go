package logger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUser(ctx, "messenger", "1000042")

	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUser(ctx, "telegram", "33")

	log := slog.New(handler).With("component", "forms.submit")
	LogEvent(ctx, log, slog.LevelError, "submit.fail",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "HTTP_5XX"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	if !strings.Contains(line, `"user_id":"33"`) || !strings.Contains(line, `"transport":"telegram"`) {
		t.Fatalf("expected context user fields, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"forms.submit"`, `"event":"submit.fail"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	rawRID := "123:456:789"
	ctx := WithRID(context.Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	rawRID := "12:34:56"
	ctx := WithRID(context.Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano to be present in JSON output, got %s", line)
	}
}

func TestStructuredHandlerDropsEmptyAndRenamesDurations(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	log := slog.New(handler).With("component", "forms")
	LogEvent(context.Background(), log, slog.LevelDebug, "catalog.load",
		slog.String("status", "OK"),
		slog.String("form_id", ""),
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("fetch_duration", 3*time.Millisecond),
		slog.String("outcome", "bogus"),
	)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	for _, want := range []string{"status=ok", "duration_ms=2", "fetch_duration_ms=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
	for _, unwanted := range []string{"form_id=", "outcome="} {
		if strings.Contains(line, unwanted) {
			t.Fatalf("unexpected %q in %s", unwanted, line)
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("ask\x00 me\u200b please", 6); got != "ask me" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("anything", 0); got != "" {
		t.Fatalf("SanitizeLimit with zero max = %q", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestLineWriterKeepsHealthySinks(t *testing.T) {
	buf := &bytes.Buffer{}
	lw := newLineWriter([]io.Writer{failingWriter{}, buf}, 16)
	for _, line := range []string{"first line\n", "second line\n"} {
		if err := lw.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := lw.Close(); err == nil {
		t.Fatal("expected the failing sink error from Close")
	}
	if got := buf.String(); got != "first line\nsecond line\n" {
		t.Fatalf("healthy sink got %q", got)
	}
}

func TestRatioSampler(t *testing.T) {
	tests := []struct {
		spec     string
		num, den int
		allowed  int
	}{
		{spec: "", num: 0, den: 0, allowed: 100},
		{spec: "1/4", num: 1, den: 4, allowed: 25},
		{spec: "10", num: 1, den: 10, allowed: 10},
		{spec: "20%", num: 20, den: 100, allowed: 20},
		{spec: "junk", num: 0, den: 0, allowed: 100},
	}
	for _, tt := range tests {
		num, den := parseRatioSpec(tt.spec)
		if num != tt.num || den != tt.den {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", tt.spec, num, den, tt.num, tt.den)
		}
		s := newRatioSampler(num, den)
		allowed := 0
		for i := 0; i < 100; i++ {
			if s.Allow() {
				allowed++
			}
		}
		if allowed != tt.allowed {
			t.Fatalf("spec %q allowed %d of 100, want %d", tt.spec, allowed, tt.allowed)
		}
	}
}
