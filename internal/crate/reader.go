package crate

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// Reader reads crate files.
type Reader struct {
	file        *os.File
	header      Header
	recordCount uint32
	dataOffset  int64
	dataSize    int64
	closed      bool
}

// Open opens a crate file and parses its header.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: path comes from the caller.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open crate: %w", err)
	}

	r := &Reader{file: file}
	if err := r.parseHeader(); err != nil {
		_ = file.Close() // Best effort close on error.
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat crate: %w", err)
	}
	r.dataSize = stat.Size() - r.dataOffset

	if err := validateHeader(&r.header, r.dataSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validate crate header: %w", err)
	}

	return r, nil
}

func (r *Reader) parseHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return fmt.Errorf("%w: got %q", ErrInvalidMagic, string(magic))
	}

	var version uint32
	if err := binary.Read(r.file, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	if err := binary.Read(r.file, binary.LittleEndian, &r.recordCount); err != nil {
		return fmt.Errorf("read record count: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(r.file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("parse header JSON: %w", err)
	}

	if uint32(len(r.header.Records)) != r.recordCount {
		return fmt.Errorf("%w: fixed header says %d, JSON header has %d",
			ErrCountMismatch, r.recordCount, len(r.header.Records))
	}

	//nolint:gosec // G115: header size already bounded by MaxHeaderSize.
	pos := int64(fixedHeaderSize) + int64(headerSize)
	r.dataOffset = pos + padding(pos)

	return nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// RecordCount returns the number of records in the crate.
func (r *Reader) RecordCount() int {
	return len(r.header.Records)
}

// Names returns record names in container order.
func (r *Reader) Names() []string {
	names := make([]string, len(r.header.Records))
	for i, m := range r.header.Records {
		names[i] = m.Name
	}
	return names
}

// readRecord materializes the i-th record.
func (r *Reader) readRecord(i int) (tensor.Record, error) {
	m := r.header.Records[i]

	dtype, ok := stringToDtype(m.DType)
	if !ok {
		return tensor.Record{}, fmt.Errorf("record %q: unsupported dtype %q", m.Name, m.DType)
	}

	if _, err := r.file.Seek(r.dataOffset+m.Offset, io.SeekStart); err != nil {
		return tensor.Record{}, fmt.Errorf("seek to record %q: %w", m.Name, err)
	}
	data := make([]byte, m.Size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return tensor.Record{}, fmt.Errorf("read record %q: %w", m.Name, err)
	}

	rec := tensor.Record{
		Name:  m.Name,
		Shape: tensor.Shape(m.Shape),
		DType: dtype,
		Data:  data,
	}
	if err := rec.Validate(); err != nil {
		return tensor.Record{}, err
	}
	return rec, nil
}

// Records reads every record in container order.
func (r *Reader) Records() ([]tensor.Record, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	records := make([]tensor.Record, 0, len(r.header.Records))
	for i := range r.header.Records {
		rec, err := r.readRecord(i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
