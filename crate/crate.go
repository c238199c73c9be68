// Package crate exports reading and writing of the crate container
// format: a single file holding every tensor extracted from a model.
//
// Example usage:
//
//	if err := crate.Write("model.crate", records, false); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := crate.Open("model.crate")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	for _, name := range r.Names() {
//	    fmt.Println(name)
//	}
package crate

import (
	"github.com/tensorcrate/tensorcrate/internal/crate"
	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// Container errors.
var (
	// ErrDestinationExists is returned when the output path is already
	// occupied and overwrite was not requested.
	ErrDestinationExists = crate.ErrDestinationExists

	// ErrWrite wraps any failure while producing the container.
	ErrWrite = crate.ErrWrite
)

// Header is the container's JSON header.
type Header = crate.Header

// RecordMeta describes one record in the header.
type RecordMeta = crate.RecordMeta

// Reader reads a crate file.
type Reader = crate.Reader

// Write serializes records to path in their given order. The write is
// atomic: the container appears under its final name complete or not
// at all.
func Write(path string, records []tensor.Record, overwrite bool) error {
	return crate.Write(path, records, overwrite)
}

// Open opens and validates a crate file.
func Open(path string) (*Reader, error) {
	return crate.Open(path)
}
