package crate

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrDestinationExists is returned by Write when the destination
	// path already exists and overwrite was not requested. The file
	// system is left untouched.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrWrite is returned for any I/O failure during serialization.
	// The destination path is guaranteed untouched; only the temporary
	// file is discarded.
	ErrWrite = errors.New("write failed")

	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrCountMismatch      = errors.New("record count does not match header")
)

// ValidationError provides detailed information about header validation
// failures.
type ValidationError struct {
	Type    string // Kind of failure (e.g. "out_of_bounds", "invalid_name").
	Record  string // Record name involved, if any.
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("%s: record %q: %s", e.Type, e.Record, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
