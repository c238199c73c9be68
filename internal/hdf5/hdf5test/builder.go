// Package hdf5test builds minimal HDF5 files for tests. It emits
// exactly the subset the hdf5 package reads: a version-0 superblock,
// version-1 object headers, symbol-table groups, contiguous datasets
// and fixed-size string-array attributes.
package hdf5test

import (
	"encoding/binary"
	"os"
	"sort"
)

// Kind is the scalar class of a dataset.
type Kind int

// Dataset scalar kinds.
const (
	Int Kind = iota
	Float
)

// Group describes a group to build. Children are written in
// name-sorted order, matching HDF5 symbol tables. Attrs become
// fixed-size string arrays, VlenAttrs variable-length ones backed by a
// global heap collection, the way h5py writes them.
type Group struct {
	Attrs     map[string][]string
	VlenAttrs map[string][]string
	Groups    map[string]*Group
	Datasets  map[string]*Dataset
}

// Dataset describes a dataset to build. Raw must hold
// product(Dims) x Size little-endian bytes.
type Dataset struct {
	Dims   []int
	Kind   Kind
	Size   int // Bytes per element.
	Signed bool
	Raw    []byte
}

// WriteFile builds the file and writes it to path.
func WriteFile(path string, root *Group) error {
	return os.WriteFile(path, Bytes(root), 0o644)
}

// Bytes builds the file in memory.
func Bytes(root *Group) []byte {
	b := &builder{}
	b.superblock()
	rootAddr := b.group(root)
	// Patch the root object header address and the end-of-file address
	// into the superblock.
	binary.LittleEndian.PutUint64(b.buf[64:72], rootAddr)
	binary.LittleEndian.PutUint64(b.buf[40:48], uint64(len(b.buf)))
	return b.buf
}

const undef = ^uint64(0)

type builder struct {
	buf []byte
}

func (b *builder) addr() uint64 { return uint64(len(b.buf)) }

func (b *builder) bytes(p []byte) { b.buf = append(b.buf, p...) }

func (b *builder) u8(v uint8) { b.buf = append(b.buf, v) }

func (b *builder) u16(v uint16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
}

func (b *builder) u32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

func (b *builder) u64(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

func (b *builder) zeros(n int) { b.bytes(make([]byte, n)) }

func pad8(n int) int { return (n + 7) &^ 7 }

// superblock writes the fixed version-0 superblock with a placeholder
// root entry; the root header address is patched in afterwards.
func (b *builder) superblock() {
	b.bytes([]byte("\x89HDF\r\n\x1a\n"))
	b.u8(0)        // Superblock version.
	b.u8(0)        // Free space version.
	b.u8(0)        // Root group version.
	b.u8(0)        // Reserved.
	b.u8(0)        // Shared header version.
	b.u8(8)        // Size of offsets.
	b.u8(8)        // Size of lengths.
	b.u8(0)        // Reserved.
	b.u16(4)       // Group leaf node k.
	b.u16(16)      // Group internal node k.
	b.u32(0)       // File consistency flags.
	b.u64(0)       // Base address.
	b.u64(undef)   // Free space address.
	b.u64(0)       // End-of-file address (patched later).
	b.u64(undef)   // Driver info address.
	b.u64(0)       // Root entry: link name offset.
	b.u64(0)       // Root entry: object header address (patched later).
	b.u32(0)       // Root entry: cache type.
	b.u32(0)       // Root entry: reserved.
	b.zeros(16)    // Root entry: scratch.
}

// message appends one object header message to msgs.
type message struct {
	typ  uint16
	body []byte
}

// objectHeader writes a version-1 object header and returns its address.
func (b *builder) objectHeader(msgs []message) uint64 {
	addr := b.addr()
	total := 0
	for _, m := range msgs {
		total += 8 + pad8(len(m.body))
	}
	b.u8(1) // Version.
	b.u8(0)
	b.u16(uint16(len(msgs))) //nolint:gosec // G115: test fixtures are small.
	b.u32(1)                 // Reference count.
	b.u32(uint32(total))     //nolint:gosec // G115: test fixtures are small.
	b.zeros(4)               // Prefix padding to 8 bytes.
	for _, m := range msgs {
		padded := pad8(len(m.body))
		b.u16(m.typ)
		b.u16(uint16(padded)) //nolint:gosec // G115: test fixtures are small.
		b.zeros(4)            // Flags + reserved.
		b.bytes(m.body)
		b.zeros(padded - len(m.body))
	}
	return addr
}

// dataset writes the raw data blob and the dataset object header.
func (b *builder) dataset(ds *Dataset) uint64 {
	dataAddr := b.addr()
	b.bytes(ds.Raw)

	// Dataspace v1.
	space := make([]byte, 8+len(ds.Dims)*8)
	space[0] = 1
	space[1] = byte(len(ds.Dims))
	for i, d := range ds.Dims {
		binary.LittleEndian.PutUint64(space[8+i*8:], uint64(d)) //nolint:gosec // G115: test dims are positive.
	}

	// Datatype prefix (class and size are all the reader needs).
	dt := make([]byte, 8)
	switch ds.Kind {
	case Float:
		dt[0] = 0x11 // Version 1, class 1 (float).
	default:
		dt[0] = 0x10 // Version 1, class 0 (fixed-point).
		if ds.Signed {
			dt[1] = 0x08
		}
	}
	binary.LittleEndian.PutUint32(dt[4:8], uint32(ds.Size)) //nolint:gosec // G115: element sizes are tiny.

	// Data layout v3, contiguous.
	layout := make([]byte, 18)
	layout[0] = 3
	layout[1] = 1
	binary.LittleEndian.PutUint64(layout[2:10], dataAddr)
	binary.LittleEndian.PutUint64(layout[10:18], uint64(len(ds.Raw)))

	return b.objectHeader([]message{
		{0x0001, space},
		{0x0003, dt},
		{0x0008, layout},
	})
}

// group recursively writes children, the group's symbol table
// structures, and its object header.
func (b *builder) group(g *Group) uint64 {
	type entry struct {
		name string
		addr uint64
	}

	names := make([]string, 0, len(g.Groups)+len(g.Datasets))
	for name := range g.Groups {
		names = append(names, name)
	}
	for name := range g.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]entry, 0, len(names))
	for _, name := range names {
		if child, ok := g.Groups[name]; ok {
			entries = append(entries, entry{name, b.group(child)})
		} else {
			entries = append(entries, entry{name, b.dataset(g.Datasets[name])})
		}
	}

	msgs := []message{}

	if len(entries) > 0 {
		// Local heap: NUL-terminated names. Offset 0 stays empty so no
		// real name sits at the reserved first byte.
		heapData := []byte{0}
		nameOffs := make([]uint64, len(entries))
		for i, e := range entries {
			nameOffs[i] = uint64(len(heapData))
			heapData = append(heapData, e.name...)
			heapData = append(heapData, 0)
		}
		heapData = append(heapData, make([]byte, pad8(len(heapData))-len(heapData))...)
		heapSegAddr := b.addr()
		b.bytes(heapData)

		heapAddr := b.addr()
		b.bytes([]byte("HEAP"))
		b.u8(0)
		b.zeros(3)
		b.u64(uint64(len(heapData)))
		b.u64(undef)
		b.u64(heapSegAddr)

		snodAddr := b.addr()
		b.bytes([]byte("SNOD"))
		b.u8(1)
		b.u8(0)
		b.u16(uint16(len(entries))) //nolint:gosec // G115: test fixtures are small.
		for i, e := range entries {
			b.u64(nameOffs[i])
			b.u64(e.addr)
			b.u32(0)
			b.u32(0)
			b.zeros(16)
		}

		btreeAddr := b.addr()
		b.bytes([]byte("TREE"))
		b.u8(0) // Node type: group.
		b.u8(0) // Level: leaf.
		b.u16(1)
		b.u64(undef)
		b.u64(undef)
		b.u64(0)        // Key 0.
		b.u64(snodAddr) // Child 0.
		b.u64(0)        // Key 1.

		stab := make([]byte, 16)
		binary.LittleEndian.PutUint64(stab[0:8], btreeAddr)
		binary.LittleEndian.PutUint64(stab[8:16], heapAddr)
		msgs = append(msgs, message{0x0011, stab})
	} else {
		stab := make([]byte, 16)
		binary.LittleEndian.PutUint64(stab[0:8], undef)
		binary.LittleEndian.PutUint64(stab[8:16], undef)
		msgs = append(msgs, message{0x0011, stab})
	}

	attrNames := make([]string, 0, len(g.Attrs))
	for name := range g.Attrs {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)
	for _, name := range attrNames {
		msgs = append(msgs, stringAttr(name, g.Attrs[name]))
	}

	vlenNames := make([]string, 0, len(g.VlenAttrs))
	for name := range g.VlenAttrs {
		vlenNames = append(vlenNames, name)
	}
	sort.Strings(vlenNames)
	for _, name := range vlenNames {
		msgs = append(msgs, b.vlenStringAttr(name, g.VlenAttrs[name]))
	}

	return b.objectHeader(msgs)
}

// vlenStringAttr writes a global heap collection for the values and
// builds a version-1 attribute message whose elements reference it.
func (b *builder) vlenStringAttr(name string, values []string) message {
	// Collection size: 16-byte header, one 16-byte-headed padded
	// object per value, and a terminating free-space object header.
	collSize := uint64(16)
	for _, v := range values {
		collSize += 16 + uint64(pad8(len(v)))
	}
	collSize += 16

	collAddr := b.addr()
	b.bytes([]byte("GCOL"))
	b.u8(1)
	b.zeros(3)
	b.u64(collSize)
	for i, v := range values {
		b.u16(uint16(i + 1)) //nolint:gosec // G115: test fixtures are small.
		b.u16(1)             // Reference count.
		b.u32(0)
		b.u64(uint64(len(v)))
		b.bytes([]byte(v))
		b.zeros(pad8(len(v)) - len(v))
	}
	b.zeros(16) // Free-space object (index 0) terminates the list.

	nameBytes := append([]byte(name), 0)

	dt := make([]byte, 8)
	dt[0] = 0x19 // Version 1, class 9 (variable-length).
	dt[1] = 0x01 // Base type: string.
	binary.LittleEndian.PutUint32(dt[4:8], 16)

	space := make([]byte, 16)
	space[0] = 1
	space[1] = 1
	binary.LittleEndian.PutUint64(space[8:16], uint64(len(values)))

	body := make([]byte, 0, 64)
	body = append(body, 1, 0)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(nameBytes))) //nolint:gosec // G115: short names.
	body = binary.LittleEndian.AppendUint16(body, uint16(len(dt)))        //nolint:gosec // G115
	body = binary.LittleEndian.AppendUint16(body, uint16(len(space)))     //nolint:gosec // G115
	body = append(body, nameBytes...)
	body = append(body, make([]byte, pad8(len(nameBytes))-len(nameBytes))...)
	body = append(body, dt...)
	body = append(body, space...)
	for i, v := range values {
		body = binary.LittleEndian.AppendUint32(body, uint32(len(v))) //nolint:gosec // G115: short strings.
		body = binary.LittleEndian.AppendUint64(body, collAddr)
		body = binary.LittleEndian.AppendUint32(body, uint32(i+1)) //nolint:gosec // G115: test fixtures are small.
	}

	return message{0x000C, body}
}

// stringAttr builds a version-1 attribute message holding a fixed-size
// string array.
func stringAttr(name string, values []string) message {
	elemSize := 1
	for _, v := range values {
		if len(v)+1 > elemSize {
			elemSize = len(v) + 1
		}
	}

	nameBytes := append([]byte(name), 0)

	dt := make([]byte, 8)
	dt[0] = 0x13 // Version 1, class 3 (string).
	binary.LittleEndian.PutUint32(dt[4:8], uint32(elemSize)) //nolint:gosec // G115: test strings are short.

	space := make([]byte, 16)
	space[0] = 1
	space[1] = 1
	binary.LittleEndian.PutUint64(space[8:16], uint64(len(values)))

	body := make([]byte, 0, 64)
	body = append(body, 1, 0) // Version, reserved.
	body = binary.LittleEndian.AppendUint16(body, uint16(len(nameBytes))) //nolint:gosec // G115: short names.
	body = binary.LittleEndian.AppendUint16(body, uint16(len(dt)))        //nolint:gosec // G115
	body = binary.LittleEndian.AppendUint16(body, uint16(len(space)))     //nolint:gosec // G115

	body = append(body, nameBytes...)
	body = append(body, make([]byte, pad8(len(nameBytes))-len(nameBytes))...)
	body = append(body, dt...) // Already 8-byte aligned.
	body = append(body, space...)
	for _, v := range values {
		el := make([]byte, elemSize)
		copy(el, v)
		body = append(body, el...)
	}

	return message{0x000C, body}
}
