package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestZeroLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", Fields{"service": "authapi"})
	l.Info("authapi.create.ok", Fields{"sub": "abc", "err": errors.New("boom")})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "authapi.create.ok" {
		t.Fatalf("message = %v", entry["message"])
	}
	if entry["level"] != "info" || entry["service"] != "authapi" || entry["sub"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["err"] != "boom" {
		t.Fatalf("error field = %v, want boom", entry["err"])
	}
}

func TestZeroLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", nil)
	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("entries below warn should be dropped: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn entry missing: %s", buf.String())
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "loud", nil)
	l.Debug("hidden", nil)
	l.Info("shown", nil)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestZeroLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", Fields{"app": "distro"}).With(Fields{"canaryFile": "c.yaml"})
	l.Info("canary.ok", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["app"] != "distro" || entry["canaryFile"] != "c.yaml" {
		t.Fatalf("child logger lost fields: %v", entry)
	}
}
