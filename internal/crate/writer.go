package crate

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

const toolVersion = "0.1.0"

// Write serializes records to a crate file at path.
//
// When path already exists and overwrite is false, Write fails with
// ErrDestinationExists without touching the file system. Otherwise the
// crate is assembled in a temporary file next to path and moved into
// place with a single atomic rename, so a failure mid-write never
// leaves a truncated container at the destination.
//
// Record order in the container equals the order of records. Duplicate
// names are passed through as-is.
func Write(path string, records []tensor.Record, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	// The temporary file lives in the destination directory so the
	// final rename never crosses file systems.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-"+uuid.NewString())
	//nolint:gosec // G304: destination path comes from the caller.
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create temporary file: %w", ErrWrite, err)
	}

	if err := writeCrate(file, records); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: sync: %w", ErrWrite, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: close: %w", ErrWrite, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename into place: %w", ErrWrite, err)
	}

	return nil
}

// writeCrate writes the full crate layout to w.
func writeCrate(w io.Writer, records []tensor.Record) error {
	header := Header{
		FormatVersion: FormatVersion,
		ToolVersion:   toolVersion,
		CreatedAt:     time.Now().UTC(),
		Records:       make([]RecordMeta, 0, len(records)),
	}

	var offset int64
	for _, rec := range records {
		size := int64(len(rec.Data))
		header.Records = append(header.Records, RecordMeta{
			Name:   rec.Name,
			DType:  dtypeToString(rec.DType),
			Shape:  []int(rec.Shape),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("%w: marshal header: %w", ErrWrite, err)
	}

	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("%w: write magic: %w", ErrWrite, err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("%w: write version: %w", ErrWrite, err)
	}
	//nolint:gosec // G115: record count bounded by MaxRecordCount.
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(records))); err != nil {
		return fmt.Errorf("%w: write record count: %w", ErrWrite, err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("%w: write header size: %w", ErrWrite, err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrWrite, err)
	}

	pos := int64(fixedHeaderSize) + int64(len(headerJSON))
	if pad := padding(pos); pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("%w: write padding: %w", ErrWrite, err)
		}
	}

	for _, rec := range records {
		if _, err := bw.Write(rec.Data); err != nil {
			return fmt.Errorf("%w: write record %q: %w", ErrWrite, rec.Name, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrWrite, err)
	}

	return nil
}
