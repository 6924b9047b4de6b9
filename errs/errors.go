// Package errs defines the sentinel errors shared by all covtool packages.
//
// Callers match failures with errors.Is; every package wraps these sentinels
// with fmt.Errorf("%w: ...") to attach the offending detail.
package errs

import (
	"errors"
	"fmt"
)

// Trace model errors
var (
	// ErrMalformedTrace reports a violated trace model invariant.
	ErrMalformedTrace = errors.New("malformed trace")
	// ErrModuleNotFound reports a module id or path absent from the module table.
	ErrModuleNotFound = errors.New("module not found")
	// ErrAddressOverflow reports an address computation that wraps around 64 bits.
	ErrAddressOverflow = errors.New("address overflow")
	// ErrModuleIDOverflow reports a module id that does not fit the 16-bit BB entry field.
	ErrModuleIDOverflow = errors.New("module id exceeds 16 bits")
	// ErrTooManyModules reports a merged module table larger than 16-bit ids can address.
	ErrTooManyModules = errors.New("too many modules")
)

// Codec errors
var (
	ErrTruncatedBinary         = errors.New("truncated binary section")
	ErrUnknownHeaderLine       = errors.New("unknown header line")
	ErrCountMismatch           = errors.New("hit count table count does not match bb table count")
	ErrDanglingModuleReference = errors.New("basic block references unknown module")
	ErrInvalidCompression      = errors.New("invalid compression type")
)

// Canonicalizer and set-algebra errors
var (
	ErrHashCollision = errors.New("module identity hash collision")
	ErrNoInputs      = errors.New("no input traces")
)

// Editor and lifter errors
var (
	ErrOffsetOutOfRange      = errors.New("offset out of range")
	ErrUnresolvedAddress     = errors.New("unresolved address")
	ErrMixedHitCountPresence = errors.New("mixed hit count presence")
	ErrMalformedLine         = errors.New("malformed line")
)

// Section names used by SectionError.
const (
	SectionHeader      = "header"
	SectionModuleTable = "module table"
	SectionBBTable     = "bb table"
	SectionHitTable    = "hit count table"
)

// SectionError identifies the file section a structural codec failure came from.
type SectionError struct {
	Section string
	Line    int // 1-based text line, 0 when the failure is inside binary data
	Err     error
}

func (e *SectionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d): %v", e.Section, e.Line, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}
