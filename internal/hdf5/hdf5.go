// Package hdf5 implements a minimal read-only parser for the subset of
// HDF5 that Keras weight files use: version-0 superblocks, version-1
// object headers, symbol-table groups, contiguous dataset layout, and
// fixed-length or variable-length string attributes.
//
// It is not a general HDF5 implementation. Anything outside the subset
// (chunked layout, fractal heaps, filters) is reported as an error by
// the parser rather than misread.
package hdf5

import (
	"encoding/binary"
	"fmt"
	"os"
)

// File format constants.
const (
	signature = "\x89HDF\r\n\x1a\n"

	// undefAddr marks an unset address field.
	undefAddr = ^uint64(0)
)

// Datatype classes used by the subset.
const (
	classFixedPoint = 0
	classFloat      = 1
	classString     = 3
	classVarLen     = 9
)

// TypeClass identifies the scalar class of a dataset.
type TypeClass int

// Dataset scalar classes.
const (
	ClassInt TypeClass = iota
	ClassFloat
	ClassString
)

// File is a parsed HDF5 file.
type File struct {
	buf  []byte
	root *Group
}

// Group is a named collection of child groups and datasets. Children
// appear in stored (symbol-table) order, which HDF5 keeps sorted by
// name; creation order is preserved separately in attributes by
// writers that need it (Keras does).
type Group struct {
	Name     string
	groups   []*Group
	datasets []*Dataset
	attrs    map[string][]string
}

// Dataset is a named n-dimensional array with contiguous storage.
type Dataset struct {
	Name     string
	Dims     []int
	Class    TypeClass
	TypeSize int       // Bytes per element.
	Signed   bool      // Fixed-point only.
	BigEnd   bool      // True when stored big-endian.
	dataOff  uint64
	dataLen  uint64
	file     *File
}

// Open reads and parses an HDF5 file.
func Open(path string) (*File, error) {
	//nolint:gosec // G304: path comes from the caller.
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(buf)
}

// Parse parses an in-memory HDF5 file.
func Parse(buf []byte) (*File, error) {
	f := &File{buf: buf}
	if err := f.parseSuperblock(); err != nil {
		return nil, err
	}
	return f, nil
}

// Root returns the root group.
func (f *File) Root() *Group {
	return f.root
}

// Group returns the child group with the given name, or nil.
func (g *Group) Group(name string) *Group {
	for _, c := range g.groups {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Groups returns child groups in stored order.
func (g *Group) Groups() []*Group {
	return g.groups
}

// Dataset returns the child dataset with the given name, or nil.
func (g *Group) Dataset(name string) *Dataset {
	for _, d := range g.datasets {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Datasets returns child datasets in stored order.
func (g *Group) Datasets() []*Dataset {
	return g.datasets
}

// StringListAttr returns a string-array attribute of the group.
func (g *Group) StringListAttr(name string) ([]string, bool) {
	v, ok := g.attrs[name]
	return v, ok
}

// NumElements returns the total element count of the dataset.
func (d *Dataset) NumElements() int {
	n := 1
	for _, dim := range d.Dims {
		n *= dim
	}
	return n
}

// Read returns the dataset's raw storage bytes. Unallocated storage
// reads as zeros.
func (d *Dataset) Read() ([]byte, error) {
	size := uint64(d.NumElements()) * uint64(d.TypeSize) //nolint:gosec // G115: dims validated at parse time.
	if d.dataOff == undefAddr {
		return make([]byte, size), nil
	}
	if d.dataLen < size {
		return nil, fmt.Errorf("dataset %q: storage is %d bytes, need %d", d.Name, d.dataLen, size)
	}
	end := d.dataOff + size
	if end > uint64(len(d.file.buf)) || end < d.dataOff {
		return nil, fmt.Errorf("dataset %q: storage at %d+%d out of bounds", d.Name, d.dataOff, size)
	}
	out := make([]byte, size)
	copy(out, d.file.buf[d.dataOff:end])
	return out, nil
}

// at bounds-checks and returns n bytes starting at off.
func (f *File) at(off, n uint64) ([]byte, error) {
	end := off + n
	if end > uint64(len(f.buf)) || end < off {
		return nil, fmt.Errorf("read of %d bytes at offset %d out of bounds (file is %d bytes)", n, off, len(f.buf))
	}
	return f.buf[off:end], nil
}

func (f *File) u16(off uint64) (uint16, error) {
	b, err := f.at(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (f *File) u32(off uint64) (uint32, error) {
	b, err := f.at(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (f *File) u64(off uint64) (uint64, error) {
	b, err := f.at(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// parseSuperblock parses the version-0 superblock and walks the root
// group.
func (f *File) parseSuperblock() error {
	head, err := f.at(0, 24)
	if err != nil {
		return fmt.Errorf("superblock: %w", err)
	}
	if string(head[:8]) != signature {
		return fmt.Errorf("not an HDF5 file (bad signature)")
	}
	if head[8] != 0 {
		return fmt.Errorf("unsupported superblock version %d", head[8])
	}
	offSize, lenSize := head[13], head[14]
	if offSize != 8 || lenSize != 8 {
		return fmt.Errorf("unsupported offset/length sizes %d/%d", offSize, lenSize)
	}

	// Fixed-size v0 superblock: 24 bytes of versions and sizes, four
	// 8-byte addresses, then the root symbol table entry.
	const rootEntryOff = 24 + 4*8
	rootHdrAddr, err := f.u64(rootEntryOff + 8)
	if err != nil {
		return fmt.Errorf("superblock root entry: %w", err)
	}

	root, err := f.parseGroup("/", rootHdrAddr, map[uint64]bool{})
	if err != nil {
		return fmt.Errorf("root group: %w", err)
	}
	f.root = root
	return nil
}
