package logger

import (
	"log/slog"
	"slices"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/formrelay/core/config"
)

func TestResolveSettingsDefaults(t *testing.T) {
	s := resolveSettings(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.profile != "prod" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.sampleNum != 1 || s.sampleDen != 50 {
		t.Fatalf("sample = %d/%d", s.sampleNum, s.sampleDen)
	}
	if !slices.Equal(s.keyOrder, defaultKeyOrder) {
		t.Fatalf("key order = %v", s.keyOrder)
	}
}

func TestResolveSettingsFromConfig(t *testing.T) {
	tests := []struct {
		name  string
		lc    coreconfig.LoggingConfig
		check func(t *testing.T, s settings)
	}{
		{
			name: "dev profile prefers kv",
			lc:   coreconfig.LoggingConfig{Profile: "Dev"},
			check: func(t *testing.T, s settings) {
				if s.format != formatKV || s.profile != "dev" {
					t.Fatalf("got %+v", s)
				}
			},
		},
		{
			name: "explicit json wins over profile",
			lc:   coreconfig.LoggingConfig{Profile: "debug", Format: "JSON"},
			check: func(t *testing.T, s settings) {
				if s.format != formatJSON {
					t.Fatalf("format = %s", s.format)
				}
			},
		},
		{
			name: "levels",
			lc:   coreconfig.LoggingConfig{Level: "warning"},
			check: func(t *testing.T, s settings) {
				if s.level != slog.LevelWarn {
					t.Fatalf("level = %v", s.level)
				}
			},
		},
		{
			name: "custom key order",
			lc:   coreconfig.LoggingConfig{KeysOrder: " ts , event,,level "},
			check: func(t *testing.T, s settings) {
				if !slices.Equal(s.keyOrder, []string{"ts", "event", "level"}) {
					t.Fatalf("key order = %v", s.keyOrder)
				}
			},
		},
		{
			name: "sampling disabled",
			lc:   coreconfig.LoggingConfig{DebugSample: "off"},
			check: func(t *testing.T, s settings) {
				if s.sampleNum != 0 || s.sampleDen != 0 {
					t.Fatalf("sample = %d/%d", s.sampleNum, s.sampleDen)
				}
			},
		},
		{
			name: "sampling ratio",
			lc:   coreconfig.LoggingConfig{DebugSample: "3/10", Level: "debug"},
			check: func(t *testing.T, s settings) {
				if s.sampleNum != 3 || s.sampleDen != 10 || s.level != slog.LevelDebug {
					t.Fatalf("got %+v", s)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, resolveSettings(&coreconfig.Config{Logging: tt.lc}))
		})
	}
}

func TestPreview(t *testing.T) {
	ids := []string{"a", "b", "c"}
	if got, more := Preview(ids, 2); got != "a, b" || more != 1 {
		t.Fatalf("Preview(2) = %q, %d", got, more)
	}
	if got, more := Preview(ids, 10); got != "a, b, c" || more != 0 {
		t.Fatalf("Preview(10) = %q, %d", got, more)
	}
	if got, more := Preview(ids, 0); got != "" || more != 3 {
		t.Fatalf("Preview(0) = %q, %d", got, more)
	}
	if RoundMS(-time.Second) != 0 || RoundMS(1500*time.Microsecond) != 2*time.Millisecond {
		t.Fatal("RoundMS rounding")
	}
}
