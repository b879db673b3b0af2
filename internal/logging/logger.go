// Package logging provides the leveled stdout logger used across the
// pipeline. Errors additionally go to stderr so batch output stays
// greppable when stdout is redirected.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a minimum-severity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values fall back
// to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped leveled lines. Safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
	errw  io.Writer
}

// New returns a logger writing to stdout/stderr at the given threshold.
func New(level Level) *Logger {
	return &Logger{level: level, out: os.Stdout, errw: os.Stderr}
}

// NewWithWriters is used by tests to capture output.
func NewWithWriters(level Level, out, errw io.Writer) *Logger {
	return &Logger{level: level, out: out, errw: errw}
}

func (l *Logger) line(lv Level, tag, format string, args ...interface{}) {
	if lv < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := ts + " [" + tag + "] " + fmt.Sprintf(format, args...) + "\n"
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.out
	if lv == LevelError {
		w = l.errw
	}
	_, _ = io.WriteString(w, msg)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.line(LevelDebug, "DEBUG", format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.line(LevelInfo, "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.line(LevelWarn, "WARN", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.line(LevelError, "ERROR", format, args...)
}
