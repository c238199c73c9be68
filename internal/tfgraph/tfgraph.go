// Package tfgraph extracts constant tensors from serialized TensorFlow
// graphs. It decodes the protobuf wire format directly with
// google.golang.org/protobuf/encoding/protowire instead of carrying the
// generated TensorFlow bindings: only a handful of field numbers matter
// for weight extraction, and they are stable across TF releases.
//
// Both bare GraphDef files and SavedModel files (which nest GraphDefs
// inside MetaGraphDefs) are recognized.
package tfgraph

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// TensorFlow DataType enum values used by the subset.
const (
	DtFloat    = 1
	DtDouble   = 2
	DtInt32    = 3
	DtUint8    = 4
	DtInt16    = 5
	DtInt8     = 6
	DtInt64    = 9
	DtBool     = 10
	DtBFloat16 = 14
	DtHalf     = 19
)

// Field numbers of the messages the walker touches.
const (
	savedModelSchemaVersion = 1 // SavedModel.saved_model_schema_version (varint)
	savedModelMetaGraphs    = 2 // SavedModel.meta_graphs
	metaGraphGraphDef       = 2 // MetaGraphDef.graph_def
	graphDefNode            = 1 // GraphDef.node
	nodeDefName             = 1 // NodeDef.name
	nodeDefOp               = 2 // NodeDef.op
	nodeDefAttr             = 5 // NodeDef.attr (map<string, AttrValue>)
	attrEntryKey            = 1
	attrEntryValue          = 2
	attrValueTensor         = 8 // AttrValue.tensor
	tensorDType             = 1 // TensorProto.dtype (varint)
	tensorShape             = 2 // TensorProto.tensor_shape
	tensorContent           = 4 // TensorProto.tensor_content
	tensorFloatVal          = 5
	tensorDoubleVal         = 6
	tensorIntVal            = 7
	tensorInt64Val          = 10
	shapeDim                = 2 // TensorShapeProto.dim
	dimSize                 = 1 // TensorShapeProto.Dim.size (varint)
)

// Const is a constant tensor lifted from a Const node's value attribute.
// Content holds the element bytes in little-endian order, as TensorFlow
// stores them in tensor_content.
type Const struct {
	Name    string
	DType   int
	Dims    []int
	Content []byte
}

// Graph is the result of walking a serialized graph: the constant
// tensors plus enough counts to report what was skipped.
type Graph struct {
	Consts     []Const
	NodeCount  int
	ConstCount int // Const nodes seen, including ones without usable values.
}

// Parse decodes a serialized GraphDef or SavedModel. The two are told
// apart by field 1: a varint there is SavedModel's schema version, a
// length-delimited value is a GraphDef node. A message with neither but
// with a field 2 submessage is taken for a SavedModel, since a GraphDef
// carrying only a function library holds no weights anyway.
func Parse(buf []byte) (*Graph, error) {
	var sawNode, sawSchemaVersion, sawField2 bool

	rest := buf
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("parse graph: %w", protowire.ParseError(n))
		}
		rest = rest[n:]
		switch {
		case num == savedModelSchemaVersion && typ == protowire.VarintType:
			sawSchemaVersion = true
		case num == graphDefNode && typ == protowire.BytesType:
			sawNode = true
		case num == savedModelMetaGraphs && typ == protowire.BytesType:
			sawField2 = true
		}
		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return nil, fmt.Errorf("parse graph: %w", protowire.ParseError(n))
		}
		rest = rest[n:]
	}

	switch {
	case sawSchemaVersion:
		return parseSavedModel(buf)
	case sawNode:
		return parseGraphDef(buf)
	case sawField2:
		return parseSavedModel(buf)
	default:
		return nil, fmt.Errorf("parse graph: no recognizable fields")
	}
}

func parseSavedModel(buf []byte) (*Graph, error) {
	g := &Graph{}
	err := eachField(buf, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num != savedModelMetaGraphs || typ != protowire.BytesType {
			return nil
		}
		return eachField(val, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num != metaGraphGraphDef || typ != protowire.BytesType {
				return nil
			}
			return walkGraphDef(val, g)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("parse saved model: %w", err)
	}
	if g.NodeCount == 0 {
		return nil, fmt.Errorf("parse saved model: no graph definition found")
	}
	return g, nil
}

func parseGraphDef(buf []byte) (*Graph, error) {
	g := &Graph{}
	if err := walkGraphDef(buf, g); err != nil {
		return nil, fmt.Errorf("parse graph def: %w", err)
	}
	if g.NodeCount == 0 {
		return nil, fmt.Errorf("parse graph def: no nodes found")
	}
	return g, nil
}

func walkGraphDef(buf []byte, g *Graph) error {
	return eachField(buf, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num != graphDefNode || typ != protowire.BytesType {
			return nil
		}
		g.NodeCount++
		return walkNode(val, g)
	})
}

func walkNode(buf []byte, g *Graph) error {
	var name, op string
	var attrs [][]byte

	err := eachField(buf, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case nodeDefName:
			name = string(val)
		case nodeDefOp:
			op = string(val)
		case nodeDefAttr:
			attrs = append(attrs, val)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("node %q: %w", name, err)
	}

	if op != "Const" {
		return nil
	}
	g.ConstCount++

	for _, entry := range attrs {
		c, ok, err := constFromAttrEntry(entry)
		switch {
		case errors.Is(err, errUnusable):
			// Frozen graphs routinely carry consts the record model has
			// no home for (DT_STRING asset paths, empty tensors). Leave
			// them counted but unextracted.
			return nil
		case err != nil:
			return fmt.Errorf("node %q: %w", name, err)
		case ok:
			c.Name = name
			g.Consts = append(g.Consts, c)
			return nil
		}
	}
	return nil
}

// constFromAttrEntry decodes one attr map entry and, when the entry is
// the "value" tensor attribute, returns the tensor.
func constFromAttrEntry(buf []byte) (Const, bool, error) {
	var key string
	var value []byte

	err := eachField(buf, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case attrEntryKey:
			key = string(val)
		case attrEntryValue:
			value = val
		}
		return nil
	})
	if err != nil {
		return Const{}, false, err
	}
	if key != "value" || value == nil {
		return Const{}, false, nil
	}

	var tensor []byte
	err = eachField(value, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == attrValueTensor && typ == protowire.BytesType {
			tensor = val
		}
		return nil
	})
	if err != nil || tensor == nil {
		return Const{}, false, err
	}

	c, err := parseTensorProto(tensor)
	if err != nil {
		return Const{}, false, err
	}
	return c, true, nil
}

// eachField walks every top-level field of a message. Length-delimited
// fields are handed to fn with their body, other wire types with their
// raw encoding (decode with protowire.ConsumeVarint etc.).
func eachField(buf []byte, fn func(num protowire.Number, typ protowire.Type, val []byte) error) error {
	rest := buf
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return protowire.ParseError(n)
		}
		rest = rest[n:]

		if typ == protowire.BytesType {
			val, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, val); err != nil {
				return err
			}
			rest = rest[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := fn(num, typ, rest[:n]); err != nil {
			return err
		}
		rest = rest[n:]
	}
	return nil
}
