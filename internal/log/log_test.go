package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("bad record %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestLevelsFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Warn)
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info leaked past warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestRecordShape(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Debug)
	l.Info("build done", "course", "cs101", "tokens", 480)
	rec := lastRecord(t, &buf)
	if rec["msg"] != "build done" || rec["level"] != "info" {
		t.Fatalf("record: %v", rec)
	}
	if rec["course"] != "cs101" || rec["tokens"] != float64(480) {
		t.Fatalf("kv fields lost: %v", rec)
	}
	if rec["ts"] == nil {
		t.Fatal("timestamp missing")
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Debug).With(map[string]string{"component": "router"})
	l.Debug("decision")
	rec := lastRecord(t, &buf)
	if rec["component"] != "router" {
		t.Fatalf("child fields missing: %v", rec)
	}
}

func TestSecretsMasked(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Debug)
	l.Info("client init", "api_key", "sk-abcdefghijklmnop", "plain", "visible")
	rec := lastRecord(t, &buf)
	key := rec["api_key"].(string)
	if strings.Contains(key, "abcdefghijkl") {
		t.Fatalf("secret not masked: %s", key)
	}
	if rec["plain"] != "visible" {
		t.Fatalf("non-secret mangled: %v", rec["plain"])
	}
}
