// Package logger provides the leveled logging wrapper used across the
// wallet service. The codebase does not pull in a structured-logging
// library, so this stays a thin wrapper around the standard library
// logger, matching the shape every service in this repo expects.
package logger

import (
	"fmt"
	"log"
	"os"
)

// Logger is a leveled logger tagged with the name of the owning component.
type Logger struct {
	name string
	std  *log.Logger
}

// New returns a Logger that prefixes every line with name.
func New(name string) *Logger {
	return &Logger{
		name: name,
		std:  log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *Logger) output(level, msg string) {
	l.std.Printf("[%s] %s %s", level, l.name, msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.output("INFO", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.output("WARN", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.output("ERROR", fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if os.Getenv("WALLET_DEBUG") == "" {
		return
	}
	l.output("DEBUG", fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.output("FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) Info(msg string)  { l.output("INFO", msg) }
func (l *Logger) Warn(msg string)  { l.output("WARN", msg) }
func (l *Logger) Error(msg string) { l.output("ERROR", msg) }
