package tfgraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// errUnusable marks tensors whose wire encoding decoded cleanly but
// whose value cannot be materialized: an unhandled dtype, no stored
// values, or data that does not match the declared shape. Such consts
// are skipped rather than failing the whole graph.
var errUnusable = errors.New("tensor not extractable")

// dtypeSize returns the element size in bytes, or 0 for types the
// walker does not handle.
func dtypeSize(dtype int) int {
	switch dtype {
	case DtFloat, DtInt32:
		return 4
	case DtDouble, DtInt64:
		return 8
	case DtHalf, DtBFloat16, DtInt16:
		return 2
	case DtUint8, DtInt8, DtBool:
		return 1
	}
	return 0
}

// parseTensorProto decodes a TensorProto. Element data comes from
// tensor_content when present; otherwise it is packed from the typed
// value lists, repeating the last value to fill the shape the way
// TensorFlow broadcasts short lists.
func parseTensorProto(buf []byte) (Const, error) {
	c := Const{}
	var floats []float32
	var doubles []float64
	var ints []int32
	var int64s []int64

	rest := buf
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return Const{}, protowire.ParseError(n)
		}
		rest = rest[n:]

		switch {
		case num == tensorDType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return Const{}, protowire.ParseError(n)
			}
			c.DType = int(v) //nolint:gosec // G115: enum values are small.
			rest = rest[n:]

		case num == tensorShape && typ == protowire.BytesType:
			val, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return Const{}, protowire.ParseError(n)
			}
			dims, err := parseShape(val)
			if err != nil {
				return Const{}, err
			}
			c.Dims = dims
			rest = rest[n:]

		case num == tensorContent && typ == protowire.BytesType:
			val, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return Const{}, protowire.ParseError(n)
			}
			c.Content = append([]byte(nil), val...)
			rest = rest[n:]

		case num == tensorFloatVal:
			var err error
			floats, rest, err = consumeFloats(floats, typ, rest)
			if err != nil {
				return Const{}, err
			}

		case num == tensorDoubleVal:
			var err error
			doubles, rest, err = consumeDoubles(doubles, typ, rest)
			if err != nil {
				return Const{}, err
			}

		case num == tensorIntVal:
			var err error
			ints, rest, err = consumeVarints(ints, typ, rest, func(v uint64) int32 {
				return int32(v) //nolint:gosec // G115: int_val carries int32 values.
			})
			if err != nil {
				return Const{}, err
			}

		case num == tensorInt64Val:
			var err error
			int64s, rest, err = consumeVarints(int64s, typ, rest, func(v uint64) int64 {
				return int64(v) //nolint:gosec // G115: int64_val carries int64 values.
			})
			if err != nil {
				return Const{}, err
			}

		default:
			n = protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return Const{}, protowire.ParseError(n)
			}
			rest = rest[n:]
		}
	}

	if dtypeSize(c.DType) == 0 {
		return Const{}, fmt.Errorf("%w: unsupported dtype %d", errUnusable, c.DType)
	}

	if len(c.Content) == 0 {
		content, err := packValues(c, floats, doubles, ints, int64s)
		if err != nil {
			return Const{}, fmt.Errorf("%w: %w", errUnusable, err)
		}
		c.Content = content
	}

	elems := 1
	for _, d := range c.Dims {
		elems *= d
	}
	want := elems * dtypeSize(c.DType)
	if len(c.Content) != want {
		return Const{}, fmt.Errorf("%w: data is %d bytes, shape %v needs %d", errUnusable, len(c.Content), c.Dims, want)
	}
	return c, nil
}

func parseShape(buf []byte) ([]int, error) {
	dims := []int{}
	err := eachField(buf, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num != shapeDim || typ != protowire.BytesType {
			return nil
		}
		size := uint64(0)
		err := eachField(val, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == dimSize && typ == protowire.VarintType {
				v, n := protowire.ConsumeVarint(val)
				if n < 0 {
					return protowire.ParseError(n)
				}
				size = v
			}
			return nil
		})
		if err != nil {
			return err
		}
		if int64(size) < 0 { //nolint:gosec // G115: negative means unknown dim.
			return fmt.Errorf("%w: shape has unknown dimension", errUnusable)
		}
		dims = append(dims, int(size))
		return nil
	})
	return dims, err
}

// consumeFloats reads one float_val field, packed or not.
func consumeFloats(out []float32, typ protowire.Type, rest []byte) ([]float32, []byte, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		return append(out, math.Float32frombits(v)), rest[n:], nil
	case protowire.BytesType:
		val, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		for len(val) > 0 {
			v, m := protowire.ConsumeFixed32(val)
			if m < 0 {
				return nil, nil, protowire.ParseError(m)
			}
			out = append(out, math.Float32frombits(v))
			val = val[m:]
		}
		return out, rest[n:], nil
	default:
		return nil, nil, fmt.Errorf("unexpected wire type %d for float_val", typ)
	}
}

func consumeDoubles(out []float64, typ protowire.Type, rest []byte) ([]float64, []byte, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		return append(out, math.Float64frombits(v)), rest[n:], nil
	case protowire.BytesType:
		val, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		for len(val) > 0 {
			v, m := protowire.ConsumeFixed64(val)
			if m < 0 {
				return nil, nil, protowire.ParseError(m)
			}
			out = append(out, math.Float64frombits(v))
			val = val[m:]
		}
		return out, rest[n:], nil
	default:
		return nil, nil, fmt.Errorf("unexpected wire type %d for double_val", typ)
	}
}

func consumeVarints[T int32 | int64](out []T, typ protowire.Type, rest []byte, conv func(uint64) T) ([]T, []byte, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		return append(out, conv(v)), rest[n:], nil
	case protowire.BytesType:
		val, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		for len(val) > 0 {
			v, m := protowire.ConsumeVarint(val)
			if m < 0 {
				return nil, nil, protowire.ParseError(m)
			}
			out = append(out, conv(v))
			val = val[m:]
		}
		return out, rest[n:], nil
	default:
		return nil, nil, fmt.Errorf("unexpected wire type %d for repeated varint", typ)
	}
}

// packValues encodes the typed value lists as little-endian element
// bytes matching the declared dtype and shape.
func packValues(c Const, floats []float32, doubles []float64, ints []int32, int64s []int64) ([]byte, error) {
	elems := 1
	for _, d := range c.Dims {
		elems *= d
	}

	switch c.DType {
	case DtFloat:
		vals, err := fill(floats, elems)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, elems*4)
		for _, v := range vals {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
		return out, nil

	case DtDouble:
		vals, err := fill(doubles, elems)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, elems*8)
		for _, v := range vals {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
		return out, nil

	case DtInt32:
		vals, err := fill(ints, elems)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, elems*4)
		for _, v := range vals {
			out = binary.LittleEndian.AppendUint32(out, uint32(v)) //nolint:gosec // G115: two's complement round-trip.
		}
		return out, nil

	case DtInt64:
		vals, err := fill(int64s, elems)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, elems*8)
		for _, v := range vals {
			out = binary.LittleEndian.AppendUint64(out, uint64(v)) //nolint:gosec // G115: two's complement round-trip.
		}
		return out, nil

	case DtInt16, DtInt8, DtUint8, DtBool:
		vals, err := fill(ints, elems)
		if err != nil {
			return nil, err
		}
		size := dtypeSize(c.DType)
		out := make([]byte, 0, elems*size)
		for _, v := range vals {
			switch size {
			case 2:
				out = binary.LittleEndian.AppendUint16(out, uint16(v)) //nolint:gosec // G115: two's complement round-trip.
			default:
				out = append(out, byte(v))
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("tensor dtype %d has no inline values", c.DType)
}

// fill extends vals to n elements by repeating the last value, matching
// TensorFlow's short value list semantics.
func fill[T any](vals []T, n int) ([]T, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("tensor has no data")
	}
	if len(vals) >= n {
		return vals[:n], nil
	}
	out := make([]T, n)
	copy(out, vals)
	for i := len(vals); i < n; i++ {
		out[i] = vals[len(vals)-1]
	}
	return out, nil
}
