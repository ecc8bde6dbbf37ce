package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"frserver/internal/config"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	return &Logger{
		infoLog:    newLevelLogger(config.LogDirectory, "info.log", os.Stdout, "ℹ️  INFO    "),
		warningLog: newLevelLogger(config.LogDirectory, "warning.log", os.Stdout, "⚠️  WARNING "),
		errorLog:   newLevelLogger(config.LogDirectory, "error.log", os.Stderr, "❌ ERROR   "),
	}
}

// newLevelLogger opens the level's log file and builds a logger writing to both
// the file and the console stream.
func newLevelLogger(dir, filename string, console io.Writer, prefix string) *log.Logger {
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return log.New(io.MultiWriter(console, file), prefix, log.Ldate|log.Ltime)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}
