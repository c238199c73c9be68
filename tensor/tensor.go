// Package tensor exports the tensor record data model: named,
// dtype-tagged, shape-tagged byte buffers that flow from the format
// extractors into the crate container.
//
// Example usage:
//
//	rec, err := tensor.NewRecord("fc.weight", tensor.Shape{128, 64}, tensor.Float32, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %v %s (%d bytes)\n", rec.Name, rec.Shape, rec.DType, rec.ByteSize())
package tensor

import (
	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Supported element types.
const (
	Float16  = tensor.Float16
	BFloat16 = tensor.BFloat16
	Float32  = tensor.Float32
	Float64  = tensor.Float64
	Int8     = tensor.Int8
	Int16    = tensor.Int16
	Int32    = tensor.Int32
	Int64    = tensor.Int64
	Uint8    = tensor.Uint8
	Bool     = tensor.Bool
)

// Shape is a tensor's dimension list. An empty shape is a scalar.
type Shape = tensor.Shape

// Record is one named tensor: shape, element type and raw
// little-endian data.
type Record = tensor.Record

// NewRecord builds a validated record. The buffer length must match
// the shape and dtype exactly.
func NewRecord(name string, shape Shape, dtype DataType, data []byte) (Record, error) {
	return tensor.NewRecord(name, shape, dtype, data)
}

// ParseDataType resolves a dtype from its serialized name, such as
// "float32".
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
