/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PivotLLM/DeepResearch/global"
)

// exit is replaced in tests
var exit = os.Exit

var levelRank = map[string]int{
	global.LogLevelDebug: 0,
	global.LogLevelInfo:  1,
	global.LogLevelWarn:  2,
	global.LogLevelError: 3,
	global.LogLevelFatal: 4,
}

// Logger writes leveled lines as "YYYY-MM-DD HH:MM:SS [LEVEL] [pid] message".
// A nil *Logger is valid and discards everything.
type Logger struct {
	logger  *log.Logger
	minRank int
	pid     int
	logFile *os.File

	// console receives fatal messages when lines go to a file, so the reason
	// for an exit is visible to whoever started the process
	console io.Writer
}

// New creates a logger appending to logPath. An empty path logs to stderr,
// which an MCP client over stdio treats as the server's log channel.
func New(logPath string) (*Logger, error) {
	if logPath == "" {
		return NewWithWriter(os.Stderr), nil
	}

	if strings.HasPrefix(logPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			logPath = filepath.Join(home, logPath[2:])
		}
	}
	if err := global.EnsureDir(filepath.Dir(logPath)); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	l := NewWithWriter(logFile)
	l.logFile = logFile
	l.console = os.Stderr
	return l, nil
}

// NewWithWriter creates a logger that writes to w
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		logger:  log.New(w, "", 0),
		minRank: levelRank[global.LogLevelInfo],
		pid:     os.Getpid(),
	}
}

// Sync flushes the log file
func (l *Logger) Sync() error {
	if l != nil && l.logFile != nil {
		return l.logFile.Sync()
	}
	return nil
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l != nil && l.logFile != nil {
		_ = l.logFile.Sync()
		return l.logFile.Close()
	}
	return nil
}

// SetLevel sets the minimum level; unknown names behave as INFO
func (l *Logger) SetLevel(level string) {
	if l == nil || level == "" {
		return
	}
	rank, ok := levelRank[strings.ToUpper(level)]
	if !ok {
		rank = levelRank[global.LogLevelInfo]
	}
	l.minRank = rank
}

func (l *Logger) log(level, message string) {
	if l == nil || levelRank[level] < l.minRank {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Println(fmt.Sprintf("%s [%s] [%d] %s", timestamp, level, l.pid, message))
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(global.LogLevelDebug, message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(global.LogLevelInfo, message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(global.LogLevelWarn, message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.log(global.LogLevelError, message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Fatal logs the message, closes the log file and exits with status 1.
// Only fatal messages are repeated on the console.
func (l *Logger) Fatal(message string) {
	l.log(global.LogLevelFatal, message)
	_ = l.Close()
	switch {
	case l == nil:
		_, _ = fmt.Fprintln(os.Stderr, message)
	case l.console != nil:
		_, _ = fmt.Fprintln(l.console, message)
	}
	exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.Fatal(fmt.Sprintf(format, args...))
}
