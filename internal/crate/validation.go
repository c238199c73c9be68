package crate

import (
	"fmt"
	"strings"
)

// Validation limits for resource protection when reading untrusted files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxRecordCount   = 100_000
	MaxRecordNameLen = 4096
)

// validateRecordName rejects names that could be abused when a consumer
// maps record names onto the file system.
func validateRecordName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty name"}
	}
	if len(name) > MaxRecordNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Record:  name[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxRecordNameLen),
		}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{Type: "invalid_name", Record: name, Details: "contains null byte"}
	}
	return nil
}

// validateHeader checks record metadata against the data section size.
// Records must appear in strictly sequential, non-overlapping order;
// the writer always produces them that way.
func validateHeader(h *Header, dataSize int64) error {
	if len(h.Records) > MaxRecordCount {
		return &ValidationError{
			Type:    "too_many_records",
			Details: fmt.Sprintf("got %d, max %d", len(h.Records), MaxRecordCount),
		}
	}

	var expected int64
	for _, m := range h.Records {
		if err := validateRecordName(m.Name); err != nil {
			return err
		}
		if m.Offset < 0 || m.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Record:  m.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", m.Offset, m.Size),
			}
		}
		if m.Offset != expected {
			return &ValidationError{
				Type:    "offset_gap",
				Record:  m.Name,
				Details: fmt.Sprintf("offset %d, expected %d", m.Offset, expected),
			}
		}
		if m.Offset+m.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Record:  m.Name,
				Details: fmt.Sprintf("offset %d + size %d > data size %d", m.Offset, m.Size, dataSize),
			}
		}
		expected = m.Offset + m.Size
	}

	return nil
}
