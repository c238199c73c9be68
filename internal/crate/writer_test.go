package crate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

func testRecords() []tensor.Record {
	return []tensor.Record{
		{
			Name:  "layer1.weight",
			Shape: tensor.Shape{2, 3},
			DType: tensor.Float32,
			Data:  []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24},
		},
		{
			Name:  "layer1.bias",
			Shape: tensor.Shape{3},
			DType: tensor.Int64,
			Data:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	want := testRecords()

	if err := Write(path, want, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if r.RecordCount() != len(want) {
		t.Fatalf("RecordCount = %d, want %d", r.RecordCount(), len(want))
	}

	got, err := r.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}

	for i := range want {
		if got[i].Name != want[i].Name {
			t.Errorf("record %d: name %q, want %q (order must be preserved)", i, got[i].Name, want[i].Name)
		}
		if !got[i].Shape.Equal(want[i].Shape) {
			t.Errorf("record %d: shape %v, want %v", i, got[i].Shape, want[i].Shape)
		}
		if got[i].DType != want[i].DType {
			t.Errorf("record %d: dtype %v, want %v", i, got[i].DType, want[i].DType)
		}
		if !bytes.Equal(got[i].Data, want[i].Data) {
			t.Errorf("record %d: data differs", i)
		}
	}
}

func TestWriteRefusesExistingDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	original := []byte("precious bytes")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}

	err := Write(path, testRecords(), false)
	if !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("err = %v, want ErrDestinationExists", err)
	}

	// The existing file must be byte-for-byte unchanged.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, original) {
		t.Error("existing destination was modified")
	}
}

func TestWriteOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, testRecords(), true); err != nil {
		t.Fatalf("Write with overwrite failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open after overwrite failed: %v", err)
	}
	defer r.Close()
	if r.RecordCount() != 2 {
		t.Errorf("RecordCount = %d, want 2", r.RecordCount())
	}
}

func TestWriteFailureLeavesNoDestination(t *testing.T) {
	// A destination inside a missing directory makes temp-file creation
	// fail, simulating an I/O failure during the temporary phase.
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "model.tcrt")

	err := Write(path, testRecords(), false)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("destination exists after failed write")
	}

	// No temporary debris either.
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("leftover files after failed write: %v", entries)
	}
}

func TestWriteRejectsInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	bad := []tensor.Record{{
		Name:  "w",
		Shape: tensor.Shape{4},
		DType: tensor.Float32,
		Data:  []byte{1, 2, 3}, // 3 bytes instead of 16.
	}}

	err := Write(path, bad, false)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("destination exists after rejected write")
	}
}

func TestWritePassesDuplicateNamesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	records := []tensor.Record{
		{Name: "w", Shape: tensor.Shape{1}, DType: tensor.Uint8, Data: []byte{1}},
		{Name: "w", Shape: tensor.Shape{1}, DType: tensor.Uint8, Data: []byte{2}},
	}

	if err := Write(path, records, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Data[0] != 1 || got[1].Data[0] != 2 {
		t.Error("duplicate names were deduplicated or reordered")
	}
}

func TestWriteEmptySequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tcrt")
	if err := Write(path, nil, false); err != nil {
		t.Fatalf("Write of empty sequence failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.RecordCount() != 0 {
		t.Errorf("RecordCount = %d, want 0", r.RecordCount())
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.tcrt")
	if err := os.WriteFile(path, []byte("NOPE0000000000000000"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestOpenRejectsCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	if err := Write(path, testRecords(), false); err != nil {
		t.Fatal(err)
	}

	// Corrupt the fixed-header record count.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(raw[8:12], 99)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, ErrCountMismatch) {
		t.Errorf("err = %v, want ErrCountMismatch", err)
	}
}

func TestDataSectionAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tcrt")
	if err := Write(path, testRecords(), false); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.dataOffset%DataAlignment != 0 {
		t.Errorf("data offset %d not aligned to %d", r.dataOffset, DataAlignment)
	}
}
