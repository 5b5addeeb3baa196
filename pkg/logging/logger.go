package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger provides leveled, component-tagged logging for pagekeeper components.
// File-backed loggers write to a run-specific file in ~/.pagekeeper/logs/.
//
// All log methods (Debugf, Infof, Warnf, Errorf) write unconditionally.
// There is no log level filtering.
type Logger struct {
	runID     string
	component string
	sink      *sink
	logPath   string
}

// sink is the shared destination of a logger and all loggers derived from it.
type sink struct {
	mu        sync.Mutex
	logger    *log.Logger
	file      *os.File
	closeOnce sync.Once
}

var (
	// Global run ID for the current process
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error
)

// getRunID returns or creates the run ID for this process
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".pagekeeper", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a new file-backed logger for a specific component.
// The logger writes to ~/.pagekeeper/logs/<run-id>-pagekeeper.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-pagekeeper.log", id))

	// Append mode: several components share the same file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		sink:      &sink{logger: log.New(file, "", 0), file: file},
		logPath:   logPath,
	}, nil
}

// New creates a logger that writes to w. The caller owns w.
func New(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		sink:      &sink{logger: log.New(w, "", 0)},
	}
}

// Discard returns a logger that drops everything it is given.
func Discard(component string) *Logger {
	return New(component, io.Discard)
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		runID:     getRunID(),
		component: component,
		sink:      &sink{logger: logger},
	}
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// With returns a logger for another component that shares this logger's destination.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		runID:     l.runID,
		component: component,
		sink:      l.sink,
		logPath:   l.logPath,
	}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}
	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.logger.Println(entry)
}

// Printf logs a formatted message at INFO level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// Writer returns an io.Writer that writes to this logger's file, or stderr.
func (l *Logger) Writer() io.Writer {
	if l.sink != nil && l.sink.file != nil {
		return l.sink.file
	}
	return os.Stderr
}

// Component returns the component tag of this logger
func (l *Logger) Component() string {
	return l.component
}

// RunID returns the run ID shared by all loggers in this process
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty when not file-backed
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	var err error
	l.sink.closeOnce.Do(func() {
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}

// GetRunID returns the current global run ID
func GetRunID() string {
	return getRunID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
