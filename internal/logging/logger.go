package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Every package in this repository depends on this interface rather than a
// concrete logger, so tests can inject Nop() and the CLI can swap sinks.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
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

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	rootInstance *root
	rootOnce     sync.Once
)

// root is the process-wide sink shared by all component loggers. It writes
// timestamped lines to relay-debug.log in RELAY_LOG_DIR (or the working
// directory) and mirrors warn/error to stderr.
type root struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	level  Level
}

func getRoot() *root {
	rootOnce.Do(func() {
		rootInstance = newRoot(LevelDebug)
	})
	return rootInstance
}

func newRoot(level Level) *root {
	r := &root{level: level}

	dir := os.Getenv("RELAY_LOG_DIR")
	if dir == "" {
		dir = "."
	}
	logPath := filepath.Join(dir, "relay-debug.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Failed to open log file %s: %v", logPath, err)
		return r
	}
	r.file = file
	r.logger = log.New(file, "", 0) // formatted below
	return r
}

// SetLevel sets the minimum level emitted by all component loggers.
func SetLevel(level Level) {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

// componentLogger scopes the shared root sink to a named component.
type componentLogger struct {
	root      *root
	component string
}

// NewComponentLogger returns the default application logger scoped to a
// component name, e.g. "Orchestrator" or "CleanupScheduler".
func NewComponentLogger(component string) Logger {
	return &componentLogger{root: getRoot(), component: component}
}

func (c *componentLogger) log(level Level, format string, args ...any) {
	r := c.root
	r.mu.Lock()
	defer r.mu.Unlock()
	if level < r.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	msg := fmt.Sprintf(format, args...)
	prefix := ""
	if c.component != "" {
		prefix = "[" + c.component + "] "
	}
	entry := fmt.Sprintf("%s %-5s %s:%d %s%s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		levelNames[level], file, line, prefix, msg)

	if r.logger != nil {
		r.logger.Println(entry)
	}
	if level >= LevelWarn {
		fmt.Fprintln(os.Stderr, entry)
	}
}

func (c *componentLogger) Debug(format string, args ...any) {
	c.log(LevelDebug, format, args...)
}

func (c *componentLogger) Info(format string, args ...any) {
	c.log(LevelInfo, format, args...)
}

func (c *componentLogger) Warn(format string, args ...any) {
	c.log(LevelWarn, format, args...)
}

func (c *componentLogger) Error(format string, args ...any) {
	c.log(LevelError, format, args...)
}
