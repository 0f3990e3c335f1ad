package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatterd.log")
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	logger, err := New(path, "main", level)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello", zap.String("peer", "b"))
	logger.Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"workspace":"main"`) {
		t.Errorf("log file = %q, want hello entry with workspace field", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}

	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("visible")
	_ = logger.Sync()
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "visible") {
		t.Error("debug entry missing after level change")
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zapcore.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("bogus"); got != zapcore.InfoLevel {
		t.Errorf("ParseLevel(bogus) = %v, want info", got)
	}
}
