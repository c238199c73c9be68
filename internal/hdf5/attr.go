package hdf5

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// pad8 rounds n up to the next multiple of 8.
func pad8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// parseStringAttribute decodes an attribute message whose value is a
// string or an array of strings. Attributes of any other datatype are
// ignored (name "" is returned); Keras only needs layer_names and
// weight_names, which are string arrays.
func (f *File) parseStringAttribute(off, size uint64) (string, []string, error) {
	b, err := f.at(off, size)
	if err != nil {
		return "", nil, err
	}
	if len(b) < 8 {
		return "", nil, fmt.Errorf("truncated attribute message")
	}

	version := b[0]
	nameSize := uint64(binary.LittleEndian.Uint16(b[2:4]))
	dtSize := uint64(binary.LittleEndian.Uint16(b[4:6]))
	dsSize := uint64(binary.LittleEndian.Uint16(b[6:8]))

	var nameOff, dtOff, dsOff, dataOff uint64
	switch version {
	case 1:
		// Name, datatype and dataspace are each padded to 8 bytes.
		nameOff = 8
		dtOff = nameOff + pad8(nameSize)
		dsOff = dtOff + pad8(dtSize)
		dataOff = dsOff + pad8(dsSize)
	case 2, 3:
		if b[1]&0x03 != 0 {
			return "", nil, nil // Shared datatype/dataspace: ignore.
		}
		nameOff = 8
		if version == 3 {
			nameOff = 9 // Extra name character-set byte.
		}
		dtOff = nameOff + nameSize
		dsOff = dtOff + dtSize
		dataOff = dsOff + dsSize
	default:
		return "", nil, fmt.Errorf("unsupported attribute version %d", version)
	}

	if dataOff > uint64(len(b)) {
		return "", nil, fmt.Errorf("truncated attribute body")
	}

	name := string(bytes.TrimRight(b[nameOff:min(nameOff+nameSize, uint64(len(b)))], "\x00"))

	dt, err := f.parseDatatype(off + dtOff)
	if err != nil {
		return "", nil, err
	}

	count, err := f.attrElementCount(off + dsOff)
	if err != nil {
		return "", nil, err
	}

	data := b[dataOff:]
	switch {
	case dt.class == classString:
		vals, err := fixedStrings(data, int(dt.size), count)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		return name, vals, nil
	case dt.class == classVarLen && dt.bits[0]&0x0F == 1:
		vals, err := f.varLenStrings(data, count)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		return name, vals, nil
	default:
		return "", nil, nil // Non-string attribute: ignore.
	}
}

// attrElementCount parses the attribute's dataspace and returns the
// total element count (1 for scalar dataspaces).
func (f *File) attrElementCount(off uint64) (int, error) {
	dims, err := f.parseDataspace(off)
	if err != nil {
		return 0, err
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n, nil
}

// fixedStrings splits count fixed-size NUL-padded strings.
func fixedStrings(data []byte, size, count int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid string size %d", size)
	}
	if len(data) < size*count {
		return nil, fmt.Errorf("string array data truncated")
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		el := data[i*size : (i+1)*size]
		out[i] = string(bytes.TrimRight(el, "\x00"))
	}
	return out, nil
}

// varLenStrings resolves count variable-length string elements through
// the global heap. Each element is 16 bytes: length, collection
// address, object index.
func (f *File) varLenStrings(data []byte, count int) ([]string, error) {
	if len(data) < 16*count {
		return nil, fmt.Errorf("vlen string array data truncated")
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		el := data[i*16 : (i+1)*16]
		length := uint64(binary.LittleEndian.Uint32(el[0:4]))
		collection := binary.LittleEndian.Uint64(el[4:12])
		index := binary.LittleEndian.Uint32(el[12:16])

		obj, err := f.globalHeapObject(collection, index)
		if err != nil {
			return nil, err
		}
		if uint64(len(obj)) < length {
			return nil, fmt.Errorf("vlen string shorter than declared length")
		}
		out[i] = string(obj[:length])
	}
	return out, nil
}

// globalHeapObject finds object index within the GCOL collection at
// addr.
func (f *File) globalHeapObject(addr uint64, index uint32) ([]byte, error) {
	hdr, err := f.at(addr, 16)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "GCOL" {
		return nil, fmt.Errorf("bad global heap signature at %d", addr)
	}
	collSize := binary.LittleEndian.Uint64(hdr[8:16])
	end := addr + collSize

	pos := addr + 16
	for pos+16 <= end {
		obj, err := f.at(pos, 16)
		if err != nil {
			return nil, err
		}
		objIndex := binary.LittleEndian.Uint16(obj[0:2])
		objSize := binary.LittleEndian.Uint64(obj[8:16])
		if objIndex == 0 {
			break // Free space terminates the object list.
		}
		if uint32(objIndex) == index {
			return f.at(pos+16, objSize)
		}
		pos += 16 + pad8(objSize)
	}
	return nil, fmt.Errorf("global heap object %d not found in collection at %d", index, addr)
}
