package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"nonsense", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN, false)
	l.SetOutput(&buf)

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, true)
	l.SetOutput(&buf)

	l.WithField("task", "loop").Info("trial recorded", map[string]interface{}{"run": 2})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "trial recorded" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["task"] != "loop" {
		t.Errorf("task field = %v", entry["task"])
	}
	if entry["run"] != float64(2) {
		t.Errorf("run field = %v", entry["run"])
	}
}

func TestLogger_Fatal(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	orig := exit
	exit = func(c int) { code = c }
	defer func() { exit = orig }()

	l := NewLogger(INFO, false)
	l.SetOutput(&buf)
	l.Fatal("giving up")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "level=FATAL") {
		t.Errorf("expected FATAL level in output: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing to see")
	if l.WithField("a", 1) == nil {
		t.Fatal("WithField returned nil")
	}
}

func TestGenerateLogrotateConfig(t *testing.T) {
	cfg := GenerateLogrotateConfig("rrfloop", "")

	for _, want := range []string{"/var/log/rrfloop/rrfloop/*.log", "copytruncate", "su root root"} {
		if !strings.Contains(cfg, want) {
			t.Errorf("logrotate config missing %q:\n%s", want, cfg)
		}
	}
	if !strings.Contains(GenerateLogrotateConfig("rrfloop", "lab"), "su lab lab") {
		t.Error("owner not applied")
	}
}
