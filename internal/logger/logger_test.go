package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesJSONFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bot.log")
	cfg := DefaultConfig()
	cfg.LogFile = logFile
	cfg.Compress = false

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithComponent("scanner").Info("Candidate found", zap.String("token", "So11"))
	l.Debug("hidden at info level")
	_ = l.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	for _, want := range []string{`"msg":"Candidate found"`, `"component":"scanner"`, `"token":"So11"`, `"level":"INFO"`} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %s:\n%s", want, content)
		}
	}
	if strings.Contains(content, "hidden at info level") {
		t.Error("debug entry written at info level")
	}
}

func TestTrackPerformance(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	end := TrackPerformance(base, "cycle")
	end()

	entries := logs.FilterMessage("Operation completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "cycle" {
		t.Errorf("operation = %v, want cycle", fields["operation"])
	}
	if id, _ := fields["correlation_id"].(string); len(id) != 36 {
		t.Errorf("unexpected correlation id %q", id)
	}
	if _, ok := fields["duration"]; !ok {
		t.Error("duration field missing")
	}
}

func TestPrettyEncoder(t *testing.T) {
	buf, err := PrettyEncoder().EncodeEntry(zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Message:    "Position check failed",
		LoggerName: "loop",
	}, []zapcore.Field{zap.String("id", "p1")})
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	line := buf.String()
	for _, want := range []string{ColorYellow + "[WARN]" + ColorReset, "loop", "Position check failed", `"id": "p1"`} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %s", want, line)
		}
	}
}

func TestWithWallet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithWallet(zap.New(core), "W1").Info("Balance checked")

	if got := logs.All()[0].ContextMap()["wallet"]; got != "W1" {
		t.Errorf("wallet = %v, want W1", got)
	}
}
