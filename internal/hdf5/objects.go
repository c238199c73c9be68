package hdf5

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header message types used by the subset.
const (
	msgNil          = 0x0000
	msgDataspace    = 0x0001
	msgDatatype     = 0x0003
	msgLayout       = 0x0008
	msgAttribute    = 0x000C
	msgContinuation = 0x0010
	msgSymbolTable  = 0x0011
)

// message is a resolved header message: its type and the offset/length
// of its body within the file buffer.
type message struct {
	typ  uint16
	off  uint64
	size uint64
}

// parseObjectHeader walks a version-1 object header, following
// continuation blocks, and returns all messages.
func (f *File) parseObjectHeader(addr uint64) ([]message, error) {
	prefix, err := f.at(addr, 16)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", addr, err)
	}
	if prefix[0] != 1 {
		return nil, fmt.Errorf("unsupported object header version %d at %d", prefix[0], addr)
	}
	total := int(binary.LittleEndian.Uint16(prefix[2:4]))
	blockSize := uint64(binary.LittleEndian.Uint32(prefix[8:12]))

	type block struct{ off, size uint64 }
	blocks := []block{{addr + 16, blockSize}}
	var msgs []message

	for len(blocks) > 0 && len(msgs) < total {
		b := blocks[0]
		blocks = blocks[1:]

		pos, end := b.off, b.off+b.size
		for pos+8 <= end && len(msgs) < total {
			hdr, err := f.at(pos, 8)
			if err != nil {
				return nil, err
			}
			typ := binary.LittleEndian.Uint16(hdr[0:2])
			size := uint64(binary.LittleEndian.Uint16(hdr[2:4]))
			body := pos + 8
			if body+size > end {
				return nil, fmt.Errorf("object header message at %d overruns block", pos)
			}

			switch typ {
			case msgNil:
				// Skip.
			case msgContinuation:
				cont, err := f.at(body, 16)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, block{
					binary.LittleEndian.Uint64(cont[0:8]),
					binary.LittleEndian.Uint64(cont[8:16]),
				})
				msgs = append(msgs, message{typ, body, size})
			default:
				msgs = append(msgs, message{typ, body, size})
			}

			pos = body + size
		}
	}

	return msgs, nil
}

// parseGroup builds a Group from the object header at addr.
func (f *File) parseGroup(name string, addr uint64, visited map[uint64]bool) (*Group, error) {
	if visited[addr] {
		return nil, fmt.Errorf("group cycle at address %d", addr)
	}
	visited[addr] = true

	msgs, err := f.parseObjectHeader(addr)
	if err != nil {
		return nil, err
	}

	g := &Group{Name: name, attrs: map[string][]string{}}
	var btreeAddr, heapAddr uint64 = undefAddr, undefAddr

	for _, m := range msgs {
		switch m.typ {
		case msgSymbolTable:
			b, err := f.at(m.off, 16)
			if err != nil {
				return nil, err
			}
			btreeAddr = binary.LittleEndian.Uint64(b[0:8])
			heapAddr = binary.LittleEndian.Uint64(b[8:16])
		case msgAttribute:
			key, vals, err := f.parseStringAttribute(m.off, m.size)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", name, err)
			}
			if key != "" {
				g.attrs[key] = vals
			}
		}
	}

	if btreeAddr == undefAddr {
		return g, nil // Empty group.
	}

	heapData, err := f.localHeapData(heapAddr)
	if err != nil {
		return nil, fmt.Errorf("group %q heap: %w", name, err)
	}

	entries, err := f.walkGroupBTree(btreeAddr)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", name, err)
	}

	for _, e := range entries {
		childName, err := heapString(heapData, e.nameOff)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", name, err)
		}
		if err := f.parseChild(g, childName, e.hdrAddr, visited); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// parseChild classifies and parses the object at hdrAddr, appending it
// to parent. An object with a symbol table message is a group; one with
// datatype and layout messages is a dataset.
func (f *File) parseChild(parent *Group, name string, hdrAddr uint64, visited map[uint64]bool) error {
	msgs, err := f.parseObjectHeader(hdrAddr)
	if err != nil {
		return fmt.Errorf("child %q: %w", name, err)
	}

	isGroup := false
	for _, m := range msgs {
		if m.typ == msgSymbolTable {
			isGroup = true
			break
		}
	}

	if isGroup {
		child, err := f.parseGroup(name, hdrAddr, visited)
		if err != nil {
			return err
		}
		parent.groups = append(parent.groups, child)
		return nil
	}

	ds, err := f.parseDataset(name, msgs)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	parent.datasets = append(parent.datasets, ds)
	return nil
}

// parseDataset builds a Dataset from its already-parsed messages.
func (f *File) parseDataset(name string, msgs []message) (*Dataset, error) {
	ds := &Dataset{Name: name, file: f, dataOff: undefAddr}
	var haveType, haveSpace, haveLayout bool

	for _, m := range msgs {
		switch m.typ {
		case msgDataspace:
			dims, err := f.parseDataspace(m.off)
			if err != nil {
				return nil, err
			}
			ds.Dims = dims
			haveSpace = true
		case msgDatatype:
			dt, err := f.parseDatatype(m.off)
			if err != nil {
				return nil, err
			}
			switch dt.class {
			case classFixedPoint:
				ds.Class = ClassInt
				ds.Signed = dt.bits[0]&0x08 != 0
			case classFloat:
				ds.Class = ClassFloat
			case classString:
				ds.Class = ClassString
			default:
				return nil, fmt.Errorf("unsupported datatype class %d", dt.class)
			}
			ds.TypeSize = int(dt.size)
			ds.BigEnd = dt.bits[0]&0x01 != 0
			haveType = true
		case msgLayout:
			b, err := f.at(m.off, m.size)
			if err != nil {
				return nil, err
			}
			if len(b) < 2 || b[0] != 3 {
				return nil, fmt.Errorf("unsupported data layout version")
			}
			if b[1] != 1 {
				return nil, fmt.Errorf("unsupported data layout class %d (only contiguous)", b[1])
			}
			if len(b) < 18 {
				return nil, fmt.Errorf("truncated contiguous layout message")
			}
			ds.dataOff = binary.LittleEndian.Uint64(b[2:10])
			ds.dataLen = binary.LittleEndian.Uint64(b[10:18])
			haveLayout = true
		}
	}

	if !haveType || !haveSpace || !haveLayout {
		return nil, fmt.Errorf("missing datatype, dataspace or layout message")
	}
	return ds, nil
}

// parseDataspace parses a simple dataspace message and returns its
// dimensions.
func (f *File) parseDataspace(off uint64) ([]int, error) {
	hdr, err := f.at(off, 8)
	if err != nil {
		return nil, err
	}
	version := hdr[0]
	rank := int(hdr[1])
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("unsupported dataspace version %d", version)
	}

	dimsOff := off + 8
	if version == 2 {
		dimsOff = off + 4
	}
	dims := make([]int, rank)
	for i := 0; i < rank; i++ {
		d, err := f.u64(dimsOff + uint64(i)*8)
		if err != nil {
			return nil, err
		}
		dims[i] = int(d) //nolint:gosec // G115: dims of real files fit in int.
	}
	return dims, nil
}

// datatype is a decoded datatype message.
type datatype struct {
	class   int
	size    uint32
	bits    [3]byte
	baseOff uint64 // Offset of the base datatype for vlen types.
}

// parseDatatype decodes the fixed 8-byte datatype prefix.
func (f *File) parseDatatype(off uint64) (datatype, error) {
	b, err := f.at(off, 8)
	if err != nil {
		return datatype{}, err
	}
	dt := datatype{
		class: int(b[0] & 0x0F),
		size:  binary.LittleEndian.Uint32(b[4:8]),
	}
	copy(dt.bits[:], b[1:4])
	if dt.class == classVarLen {
		dt.baseOff = off + 8
	}
	return dt, nil
}

// symbolEntry is one entry of a symbol node.
type symbolEntry struct {
	nameOff uint64
	hdrAddr uint64
}

// walkGroupBTree walks a v1 group B-tree and returns symbol entries in
// stored (name-sorted) order.
func (f *File) walkGroupBTree(addr uint64) ([]symbolEntry, error) {
	hdr, err := f.at(addr, 24)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "TREE" {
		return nil, fmt.Errorf("bad B-tree signature at %d", addr)
	}
	level := hdr[5]
	used := int(binary.LittleEndian.Uint16(hdr[6:8]))

	var entries []symbolEntry
	for i := 0; i < used; i++ {
		// Children alternate with keys: key0 child0 key1 child1 ... keyN.
		childAddr, err := f.u64(addr + 24 + 8 + uint64(i)*16)
		if err != nil {
			return nil, err
		}
		if level > 0 {
			sub, err := f.walkGroupBTree(childAddr)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
			continue
		}
		sub, err := f.parseSymbolNode(childAddr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sub...)
	}
	return entries, nil
}

// parseSymbolNode parses a SNOD block.
func (f *File) parseSymbolNode(addr uint64) ([]symbolEntry, error) {
	hdr, err := f.at(addr, 8)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "SNOD" {
		return nil, fmt.Errorf("bad symbol node signature at %d", addr)
	}
	n := int(binary.LittleEndian.Uint16(hdr[6:8]))

	entries := make([]symbolEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := f.at(addr+8+uint64(i)*40, 40)
		if err != nil {
			return nil, err
		}
		entries = append(entries, symbolEntry{
			nameOff: binary.LittleEndian.Uint64(e[0:8]),
			hdrAddr: binary.LittleEndian.Uint64(e[8:16]),
		})
	}
	return entries, nil
}

// localHeapData returns the data segment of a local heap.
func (f *File) localHeapData(addr uint64) ([]byte, error) {
	hdr, err := f.at(addr, 32)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "HEAP" {
		return nil, fmt.Errorf("bad local heap signature at %d", addr)
	}
	segSize := binary.LittleEndian.Uint64(hdr[8:16])
	segAddr := binary.LittleEndian.Uint64(hdr[24:32])
	return f.at(segAddr, segSize)
}

// heapString reads a NUL-terminated string at off within heap data.
func heapString(heap []byte, off uint64) (string, error) {
	if off >= uint64(len(heap)) {
		return "", fmt.Errorf("heap offset %d out of bounds", off)
	}
	end := bytes.IndexByte(heap[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated heap string at %d", off)
	}
	return string(heap[off : off+uint64(end)]), nil
}
