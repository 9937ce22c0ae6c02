/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

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

import "fmt"

// ErrorCode is a fixed numeric space (50000-70099), preserved from the
// original taxonomy so downstream dashboards keep working across a rewrite.
type ErrorCode int

const (
	ErrBadMagic            ErrorCode = 50001
	ErrBadBlockNumber       ErrorCode = 50002
	ErrChecksumMismatch     ErrorCode = 50003
	ErrRecordTooBig         ErrorCode = 50010
	ErrFieldTooShort        ErrorCode = 50101
	ErrFieldCountMismatch   ErrorCode = 50102
	ErrVectorLengthExceeded ErrorCode = 50103
	ErrPairingMismatch      ErrorCode = 50200
	ErrRollbackNoMatch      ErrorCode = 50201
	ErrLobMissingPage       ErrorCode = 60005
	ErrLobSizeMismatch      ErrorCode = 60007
	ErrLobIncomplete        ErrorCode = 60008
	ErrSchemaMissing        ErrorCode = 60100
	ErrMessageSplit         ErrorCode = 60015
	ErrResourceExhausted    ErrorCode = 70000
	ErrInvariantViolation   ErrorCode = 70099
)

// Severity classifies how an error propagates through the parser loop.
type Severity uint8

const (
	SeverityFatal Severity = iota
	SeverityWarning
	SeverityRecoverable
)

// DecoderError is the common shape of every error kind in spec.md §7.
type DecoderError struct {
	Code     ErrorCode
	Severity Severity
	Kind     string
	Offset   int64 // byte offset into the current record/file, if known
	Msg      string
	Err      error
}

func (e *DecoderError) Error() string {
	if e.Offset != 0 {
		return fmt.Sprintf("%s(%d) at offset %d: %s", e.Kind, e.Code, e.Offset, e.Msg)
	}
	return fmt.Sprintf("%s(%d): %s", e.Kind, e.Code, e.Msg)
}

func (e *DecoderError) Unwrap() error { return e.Err }

func newErr(kind string, code ErrorCode, sev Severity, offset int64, msg string, err error) *DecoderError {
	return &DecoderError{Code: code, Severity: sev, Kind: kind, Offset: offset, Msg: msg, Err: err}
}

// FramingError: fatal per-file. Bad magic, bad block number, checksum
// mismatch beyond retry cap, too-big record. The current log file is
// abandoned and the reader advances to the next sequence.
func FramingError(code ErrorCode, offset int64, msg string, err error) *DecoderError {
	return newErr("FramingError", code, SeverityFatal, offset, msg, err)
}

// DecodeError: recoverable. Too-short field, inconsistent field count.
// When Config.OnErrorContinue is set the offending vector is skipped.
func NewDecodeError(code ErrorCode, offset int64, msg string) *DecoderError {
	return newErr("DecodeError", code, SeverityRecoverable, offset, msg, nil)
}

// PairingError: warning. Rollback marker with no matching entry.
func PairingErr(offset int64, msg string) *DecoderError {
	return newErr("PairingError", ErrRollbackNoMatch, SeverityWarning, offset, msg, nil)
}

// LobErr: warning. Missing LOB page at emit time.
func LobErr(code ErrorCode, msg string) *DecoderError {
	return newErr("LobError", code, SeverityWarning, 0, msg, nil)
}

// IncompleteTxnErr: warning. A commit marker named an xid the Checkpoint
// Coordinator never saw begin — routine when the decoder starts reading
// mid-transaction; fatal-looking only if it happens for most transactions.
func IncompleteTxnErr(xid Xid, scn Scn) *DecoderError {
	return newErr("IncompleteTxn", ErrPairingMismatch, SeverityWarning, 0,
		fmt.Sprintf("commit at %s for xid %s with no tracked begin, dropping", scn, xid), nil)
}

// SchemaMissingErr: warning or skip, governed by Config.Schemaless.
func SchemaMissingErr(obj uint32) *DecoderError {
	return newErr("SchemaMissing", ErrSchemaMissing, SeverityWarning, 0, fmt.Sprintf("unknown object id %d", obj), nil)
}

// ResourceExhaustedErr: fatal. Memory pool cannot allocate.
func ResourceExhaustedErr(msg string) *DecoderError {
	return newErr("ResourceExhausted", ErrResourceExhausted, SeverityFatal, 0, msg, nil)
}

// InvariantViolation: fatal internal assertion failure. Mirrors the
// teacher's habit of panicking on corrupted internal state
// (storage/storage-int.go: "tried to build StorageInt outside of range").
type InvariantViolation struct {
	*DecoderError
}

func NewInvariantViolation(msg string) *InvariantViolation {
	return &InvariantViolation{newErr("InvariantViolation", ErrInvariantViolation, SeverityFatal, 0, msg, nil)}
}

// Panic raises the invariant violation as a panic, for the cases where the
// teacher itself would panic rather than propagate an error value.
func (v *InvariantViolation) Panic() {
	panic(v)
}

// ErrorCounters tracks how many times each recoverable/warning kind has
// fired, so operators get one aggregate number instead of a flood of
// identical log lines under sustained corruption.
type ErrorCounters struct {
	DecodeErrors     uint64
	PairingErrors    uint64
	LobWarnings      uint64
	SchemaMissing    uint64
	MessageSplits    uint64
	BlockCleanouts   uint64 // supplemental feature #1, see SPEC_FULL.md §10
}

// Record increments the right counter for err's kind. Returns true if the
// error is fatal and the caller must stop.
func (c *ErrorCounters) Record(err *DecoderError) bool {
	switch err.Kind {
	case "DecodeError":
		c.DecodeErrors++
	case "PairingError":
		c.PairingErrors++
	case "LobError":
		c.LobWarnings++
	case "SchemaMissing":
		c.SchemaMissing++
	}
	if err.Code == ErrMessageSplit {
		c.MessageSplits++
	}
	return err.Severity == SeverityFatal
}
