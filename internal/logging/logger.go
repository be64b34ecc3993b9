package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/priscilla100/goose-llm/internal/config"
)

// Level represents the severity of a log message.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]Level{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// Logger writes leveled application logs. A nil *Logger discards everything.
type Logger struct {
	level  Level
	slog   *slog.Logger
	closer io.Closer
}

// NewLogger creates a logger writing to daily files under home/config.DirName/logs.
func NewLogger(home string, level string) (*Logger, error) {
	dir := filepath.Join(home, config.DirName, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	out := &dailyFile{dir: dir, timeNow: time.Now}
	l := newLogger(out, parseLevel(level))
	l.closer = out
	return l, nil
}

// NewWriterLogger creates a logger writing text records to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	return newLogger(w, parseLevel(level))
}

func newLogger(w io.Writer, level Level) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{level: level, slog: slog.New(handler)}
}

// LevelEnabled reports whether the provided level should be emitted.
func (l *Logger) LevelEnabled(level Level) bool {
	return l != nil && level >= l.level
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

// Info logs msg with structured key/value attributes.
func (l *Logger) Info(msg string, args ...any) {
	if !l.LevelEnabled(LevelInfo) {
		return
	}
	l.slog.Info(msg, args...)
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.LevelEnabled(level) {
		return
	}
	message := strings.TrimSpace(fmt.Sprintf(format, args...))
	l.slog.Log(context.Background(), level, message)
}

// Close releases the underlying log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func parseLevel(value string) Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return lvl
	}
	return LevelInfo
}

// dailyFile is an io.Writer that switches to a new file when the date changes.
type dailyFile struct {
	dir         string
	timeNow     func() time.Time
	mu          sync.Mutex
	currentDate string
	file        *os.File
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	date := d.timeNow().Format("2006-01-02")
	if err := d.ensureFile(date); err != nil {
		return 0, err
	}
	return d.file.Write(p)
}

func (d *dailyFile) ensureFile(date string) error {
	if d.file != nil && d.currentDate == date {
		return nil
	}
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}

	path := filepath.Join(d.dir, fmt.Sprintf("application-goose-%s.log", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	d.file = file
	d.currentDate = date
	return nil
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
