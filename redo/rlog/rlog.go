/*
Copyright (C) 2025-2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package rlog is a small leveled logger in the teacher's informal
// fmt-diagnostics idiom (storage/storage.go's PrintMemUsage,
// storage/persistence-files.go's bare fmt.Println on recoverable paths).
// No structured logging library appears anywhere in the retrieved example
// pack, so this wraps the standard library logger instead of inventing a
// dependency the corpus never reaches for — see DESIGN.md.
package rlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "?"
	}
}

var threshold atomic.Int32

func init() {
	threshold.Store(int32(LevelInfo))
}

// SetLevel adjusts the minimum level that gets printed.
func SetLevel(l Level) { threshold.Store(int32(l)) }

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// Errorf logs at ERROR with an optional numeric error code, matching
// spec.md §7's "one log line per incident at WARNING or ERROR, plus an
// error code from a fixed numeric space".
func Errorf(code int, format string, args ...any) {
	logAt(LevelError, code, format, args...)
}

func Warnf(code int, format string, args ...any) {
	logAt(LevelWarning, code, format, args...)
}

func Infof(format string, args ...any) {
	logAt(LevelInfo, 0, format, args...)
}

func Debugf(format string, args ...any) {
	logAt(LevelDebug, 0, format, args...)
}

func logAt(l Level, code int, format string, args ...any) {
	if int32(l) > threshold.Load() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if code != 0 {
		std.Printf("[%s %d] %s", l, code, msg)
	} else {
		std.Printf("[%s] %s", l, msg)
	}
}
