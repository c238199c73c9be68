package tensor

import "fmt"

// Record is a named, typed, shaped buffer of tensor data. It is the
// common currency every extractor produces and the crate writer
// consumes: extractors normalize source-framework types and byte order
// into a Record, so downstream code never sees format peculiarities.
//
// Data is contiguous, row-major, little-endian.
type Record struct {
	Name  string
	Shape Shape
	DType DataType
	Data  []byte
}

// NewRecord creates a Record and validates it.
func NewRecord(name string, shape Shape, dtype DataType, data []byte) (Record, error) {
	r := Record{Name: name, Shape: shape.Clone(), DType: dtype, Data: data}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// NumElements returns the total number of elements.
func (r Record) NumElements() int {
	return r.Shape.NumElements()
}

// ByteSize returns the expected data size in bytes.
func (r Record) ByteSize() int {
	return r.NumElements() * r.DType.Size()
}

// Validate checks the record invariant: the buffer length must exactly
// match product(shape) x sizeof(dtype). A mismatch is an error, never a
// silent truncation.
func (r Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("record has empty name")
	}
	if err := r.Shape.Validate(); err != nil {
		return fmt.Errorf("record %q: %w", r.Name, err)
	}
	if want, got := r.ByteSize(), len(r.Data); want != got {
		return fmt.Errorf("record %q: data is %d bytes, shape %v with dtype %s requires %d",
			r.Name, got, r.Shape, r.DType, want)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)
	return Record{Name: r.Name, Shape: r.Shape.Clone(), DType: r.DType, Data: data}
}
