package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel atomic.Int32
	levelOnce    sync.Once
)

// ParseLevel maps a LOG_LEVEL value to a level. Unknown values map to info.
func ParseLevel(s string) LogLevel {
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

func initLevel() {
	levelOnce.Do(func() {
		switch strings.ToLower(os.Getenv("DEBUG")) {
		case "1", "true", "yes", "on":
			currentLevel.Store(int32(LevelDebug))
			return
		}
		currentLevel.Store(int32(ParseLevel(os.Getenv("LOG_LEVEL"))))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return LogLevel(currentLevel.Load())
}

// SetLevel overrides the level read from the environment.
func SetLevel(l LogLevel) {
	initLevel()
	currentLevel.Store(int32(l))
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// EnableFile tees all log output to {dir}/{name}_{YYYYMMDD}.log in addition
// to stderr. The returned closer restores stderr-only output.
func EnableFile(dir, name string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return &fileCloser{f: f}, nil
}

type fileCloser struct {
	once sync.Once
	f    *os.File
}

func (c *fileCloser) Close() error {
	var err error
	c.once.Do(func() {
		log.SetOutput(os.Stderr)
		err = c.f.Close()
	})
	return err
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
