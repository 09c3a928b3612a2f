package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestComponentSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "debug", Output: &buf})

	log.Component("txbuilder").Info("selection complete", "inputs", 2)

	out := buf.String()
	for _, want := range []string{"txbuilder", "selection complete", "inputs=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestComponentKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "warn", Output: &buf})

	log.Component("backend").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	log.Component("backend").Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warning not logged: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("nothing to see")
	log.With("k", "v").Warn("still nothing")
}

func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "dashsend.log")

	f, err := OpenRotatingFile(path, 1024, 3)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}

	log := New(&Config{Level: "info", Output: f})
	log.Info("coins fetched", "count", 3)
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "coins fetched") {
		t.Errorf("log file missing entry: %q", data)
	}
}
