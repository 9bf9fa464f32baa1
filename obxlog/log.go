// Copyright (C) 2024 The obx Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package obxlog wraps the standard library's log.Logger with the level
// gating spec.md's log.level configuration option expects (trace, debug,
// info, warn, error, off). It intentionally does not introduce a
// third-party logging façade, matching the teacher's own cmd/* binaries,
// which log directly through the standard library.
package obxlog

import (
	"io"
	"log"
	"os"
)

// Level is a logging verbosity level, ordered from most to least verbose.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// ParseLevel parses the log.level config values from spec.md §6.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelOff
	}
}

// Logger is a leveled, component-scoped logger backed by log.Logger.
type Logger struct {
	level     Level
	component string
	out       *log.Logger
}

// New creates a root Logger writing to w at the given level. Passing a nil
// w defaults to os.Stderr.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		level: level,
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// With returns a Logger scoped to component, sharing the parent's level
// and output.
func (l *Logger) With(component string) *Logger {
	return &Logger{level: l.level, component: component, out: l.out}
}

func (l *Logger) log(level Level, prefix, format string, args []any) {
	if level < l.level {
		return
	}
	if l.component != "" {
		l.out.Printf("["+prefix+"] "+l.component+": "+format, args...)
		return
	}
	l.out.Printf("["+prefix+"] "+format, args...)
}

func (l *Logger) Tracef(format string, args ...any) { l.log(LevelTrace, "trace", format, args) }
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, "debug", format, args) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, "info", format, args) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, "warn", format, args) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, "error", format, args) }

// Nop returns a Logger that discards everything, for tests and
// in-memory-only use.
func Nop() *Logger {
	return New(io.Discard, LevelOff)
}
