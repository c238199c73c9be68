// Package crate implements the unified on-disk tensor container format.
//
// Layout (all integers little-endian):
//
//	[4 bytes]  magic "TCRT"
//	[4 bytes]  format version (uint32)
//	[4 bytes]  record count (uint32)
//	[8 bytes]  header size (uint64)
//	[header]   JSON header (RecordMeta entries, offsets relative to data)
//	[padding]  zeros to the next 64-byte boundary
//	[data]     record buffers, in header order
//
// The header carries name, dtype, shape, offset and size for every
// record, so a crate round-trips through the tensor.Record model
// without any external schema.
package crate

import (
	"time"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// Format constants.
const (
	MagicBytes    = "TCRT"
	FormatVersion = 1
	DataAlignment = 64 // Record data starts on a 64-byte boundary.
)

// fixedHeaderSize is magic + version + record count + header size.
const fixedHeaderSize = 4 + 4 + 4 + 8

// Header is the JSON header of a crate file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ToolVersion   string            `json:"tool_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Records       []RecordMeta      `json:"records"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RecordMeta describes one tensor record in the crate.
type RecordMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // Bytes from the start of the data section.
	Size   int64  `json:"size"`
}

// padding returns the number of zero bytes needed after pos to reach
// the next DataAlignment boundary.
func padding(pos int64) int64 {
	return (DataAlignment - (pos % DataAlignment)) % DataAlignment
}

// dtypeToString converts tensor.DataType to its serialized name.
func dtypeToString(dt tensor.DataType) string {
	return dt.String()
}

// stringToDtype converts a serialized name back to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	return tensor.ParseDataType(s)
}
