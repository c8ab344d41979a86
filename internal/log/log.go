package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{Debug: "debug", Info: "info", Warn: "warn", Error: "error"}
var nameToLevel = map[string]Level{"debug": Debug, "info": Info, "warn": Warn, "error": Error}

// Logger writes one JSON record per line. Safe for concurrent use.
type Logger struct {
	out    io.Writer
	level  Level
	fields map[string]string
	mu     sync.Mutex
}

func New() *Logger {
	lvl := Info
	if v := strings.ToLower(os.Getenv("COURSERAG_LOG_LEVEL")); v != "" {
		if l, ok := nameToLevel[v]; ok {
			lvl = l
		}
	}
	return &Logger{out: os.Stderr, level: lvl, fields: make(map[string]string)}
}

// NewWriter returns a logger bound to w, for tests.
func NewWriter(w io.Writer, lvl Level) *Logger {
	return &Logger{out: w, level: lvl, fields: make(map[string]string)}
}

// With returns a child logger carrying extra fields on every record.
func (l *Logger) With(kv map[string]string) *Logger {
	child := &Logger{out: l.out, level: l.level, fields: make(map[string]string, len(l.fields)+len(kv))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range kv {
		child.fields[k] = v
	}
	return child
}

func (l *Logger) write(level Level, msg string, kv map[string]any) {
	if level < l.level {
		return
	}
	rec := make(map[string]any, 4+len(l.fields)+len(kv))
	rec["ts"] = time.Now().Format(time.RFC3339)
	rec["level"] = levelNames[level]
	rec["msg"] = msg
	for k, v := range l.fields {
		rec[k] = v
	}
	for k, v := range kv {
		rec[k] = v
	}
	maskSecrets(rec)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, _ := json.Marshal(rec)
	_, _ = l.out.Write(append(b, '\n'))
}

func (l *Logger) Debug(msg string, kv ...any) { l.write(Debug, msg, toMap(kv...)) }
func (l *Logger) Info(msg string, kv ...any)  { l.write(Info, msg, toMap(kv...)) }
func (l *Logger) Warn(msg string, kv ...any)  { l.write(Warn, msg, toMap(kv...)) }
func (l *Logger) Error(msg string, kv ...any) { l.write(Error, msg, toMap(kv...)) }

func toMap(kv ...any) map[string]any {
	m := make(map[string]any)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

// maskSecrets redacts likely secret values in-place before emission.
func maskSecrets(m map[string]any) {
	secretKeys := []string{"key", "token", "secret", "password", "authorization", "api_key", "apikey", "bearer"}
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lowerK := strings.ToLower(k)
		for _, p := range secretKeys {
			if strings.Contains(lowerK, p) {
				m[k] = redact(s)
				break
			}
		}
		if strings.HasPrefix(s, "sk-") {
			m[k] = redact(s)
		}
	}
}

func redact(s string) string {
	n := len(s)
	if n <= 8 {
		return "***"
	}
	return fmt.Sprintf("%s***%s", s[:4], s[n-4:])
}
