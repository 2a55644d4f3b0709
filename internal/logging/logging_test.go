package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Options{Level: "warn", Format: "json", Out: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()
	l.Info().Msg("hidden")
	l.Warn().Str("k", "v").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected json warn line, got %s", out)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(Options{Out: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("console format should not be json: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("missing message: %s", buf.String())
	}
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "foundationsd.log")
	var buf bytes.Buffer
	l, c, err := New(Options{Format: "json", File: path, MaxSizeMB: 1, Out: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Error().Msg("to-file")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to-file") || !strings.Contains(buf.String(), "to-file") {
		t.Fatalf("line missing: file=%q out=%q", b, buf.String())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"DEBUG": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
	}
}
