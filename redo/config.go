/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

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
package redo

import (
	"fmt"

	units "github.com/docker/go-units"
)

// DumpLevel selects the diagnostic dump verbosity (spec.md §6).
type DumpLevel int

const (
	DumpNone DumpLevel = iota
	DumpSummary
	DumpFull
)

// Config carries every flag spec.md §6 enumerates. The core respects these
// even though formatting/transport-only flags are otherwise out of scope.
type Config struct {
	MemoryMinMB                int
	MemoryMaxMB                int
	MemoryChunksWriteBufferMax int
	FlushBufferBytes           int64
	MaxMessageMB               int
	OnErrorContinue            bool
	Schemaless                 bool
	TrackDDL                   bool
	ShowIncompleteTransactions bool
	DumpRedoLog                DumpLevel
}

// DefaultConfig mirrors the teacher's habit of a fully-populated zero
// value (storage/settings.go's `Settings SettingsT = SettingsT{...}`).
var DefaultConfig = Config{
	MemoryMinMB:                128,
	MemoryMaxMB:                1024,
	MemoryChunksWriteBufferMax: 4096,
	FlushBufferBytes:           4 << 20,
	MaxMessageMB:               100,
	OnErrorContinue:            false,
	Schemaless:                 false,
	TrackDDL:                   true,
	ShowIncompleteTransactions: false,
	DumpRedoLog:                DumpNone,
}

// ParseSizeMB parses a human size string ("512mb", "1g", "2097152") into
// megabytes, the way ops tooling in the pack typically accepts size
// configuration strings instead of requiring pre-converted integers.
func ParseSizeMB(s string) (int, error) {
	bytes, err := units.RAMInSBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int(bytes / (1024 * 1024)), nil
}

// Get returns the named setting's current value, mirroring
// storage/settings.go's ChangeSettings(name) get-by-name form.
func (c *Config) Get(name string) (any, error) {
	switch name {
	case "memory-min-mb":
		return c.MemoryMinMB, nil
	case "memory-max-mb":
		return c.MemoryMaxMB, nil
	case "memory-chunks-write-buffer-max":
		return c.MemoryChunksWriteBufferMax, nil
	case "flush-buffer":
		return c.FlushBufferBytes, nil
	case "max-message-mb":
		return c.MaxMessageMB, nil
	case "flags.on-error-continue":
		return c.OnErrorContinue, nil
	case "flags.schemaless":
		return c.Schemaless, nil
	case "flags.track-ddl":
		return c.TrackDDL, nil
	case "flags.show-incomplete-transactions":
		return c.ShowIncompleteTransactions, nil
	case "dump-redo-log":
		return int(c.DumpRedoLog), nil
	default:
		return nil, fmt.Errorf("unknown setting: %s", name)
	}
}

// Set mutates the named setting, mirroring ChangeSettings(name, value).
func (c *Config) Set(name string, value any) error {
	switch name {
	case "memory-min-mb":
		c.MemoryMinMB = value.(int)
	case "memory-max-mb":
		c.MemoryMaxMB = value.(int)
	case "memory-chunks-write-buffer-max":
		c.MemoryChunksWriteBufferMax = value.(int)
	case "flush-buffer":
		c.FlushBufferBytes = value.(int64)
	case "max-message-mb":
		c.MaxMessageMB = value.(int)
	case "flags.on-error-continue":
		c.OnErrorContinue = value.(bool)
	case "flags.schemaless":
		c.Schemaless = value.(bool)
	case "flags.track-ddl":
		c.TrackDDL = value.(bool)
	case "flags.show-incomplete-transactions":
		c.ShowIncompleteTransactions = value.(bool)
	case "dump-redo-log":
		c.DumpRedoLog = DumpLevel(value.(int))
	default:
		return fmt.Errorf("unknown setting: %s", name)
	}
	return nil
}
