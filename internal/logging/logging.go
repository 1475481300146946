// Package logging is a small leveled logger shared by every workbench
// component. It writes to stdout; the serve command lowers the threshold
// to debug when verbose mode is on.
package logging

import (
	"log"
	"os"
	"sync/atomic"
)

// Level controls which messages are emitted. Messages below the current
// level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	current atomic.Int32
	logger  = log.New(os.Stdout, "", log.LstdFlags)
)

func init() {
	current.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level that will be logged.
func SetLevel(l Level) {
	current.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= current.Load()
}

// Debug logs a debug message.
func Debug(v ...any) {
	if enabled(LevelDebug) {
		logger.Println(v...)
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		logger.Printf(format, v...)
	}
}

// Info logs an info message.
func Info(v ...any) {
	if enabled(LevelInfo) {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message.
func Warn(v ...any) {
	if enabled(LevelWarn) {
		logger.Println(v...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		logger.Printf(format, v...)
	}
}

// Error logs an error message.
func Error(v ...any) {
	if enabled(LevelError) {
		logger.Println(v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if enabled(LevelError) {
		logger.Printf(format, v...)
	}
}
