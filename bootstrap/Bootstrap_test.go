package bootstrap

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/rlrunner/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, test := range tests {
		got, err := ParseLevel(test.in)
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
		} else if got != test.want {
			t.Errorf("%q: got %v, want %v", test.in, got, test.want)
		}
	}

	if _, err := ParseLevel("loud"); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got error %v, want %v", err, config.ErrInvalid)
	}
}

func TestInitialize(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("RLRUNNER_BOOTSTRAP_TEST=1\n"),
		0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RLRUNNER_BOOTSTRAP_TEST", "")
	os.Unsetenv("RLRUNNER_BOOTSTRAP_TEST")

	var out bytes.Buffer
	rt, err := Initialize(Options{
		LogLevel:  "warn",
		LogFormat: JSONFormat,
		LogOutput: &out,
		EnvFiles:  []string{filepath.Join(dir, "missing.env"), envFile},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Shutdown()

	if rt.EnvFile != envFile || os.Getenv("RLRUNNER_BOOTSTRAP_TEST") != "1" {
		t.Errorf("environment file %q was not loaded", envFile)
	}

	slog.Info("hidden")
	slog.Warn("shown", "key", "value")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %v log lines, want 1: %q", len(lines), out.String())
	}
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatal(err)
	}
	if record["msg"] != "shown" || record["key"] != "value" {
		t.Errorf("unexpected record %v", record)
	}
}

func TestInitializeInvalid(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	_, err := Initialize(Options{LogFormat: "xml", EnvFiles: []string{}})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got error %v, want %v", err, config.ErrInvalid)
	}
}

func TestShutdownTwice(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	rt, err := Initialize(Options{LogOutput: &bytes.Buffer{},
		EnvFiles: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	rt.Shutdown()
	rt.Shutdown()
}
