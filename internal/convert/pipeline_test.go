package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/crate"
	"github.com/tensorcrate/tensorcrate/internal/extract"
	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// fakeExtractor serves canned records or a canned error.
type fakeExtractor struct {
	records []tensor.Record
	err     error
}

func (f *fakeExtractor) Format() string { return "fake" }

func (f *fakeExtractor) Extract(string) ([]tensor.Record, error) {
	return f.records, f.err
}

func testRecords(t *testing.T) []tensor.Record {
	t.Helper()
	r1, err := tensor.NewRecord("a.weight", tensor.Shape{2}, tensor.Float32, make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := tensor.NewRecord("a.bias", tensor.Shape{1}, tensor.Float32, make([]byte, 4))
	if err != nil {
		t.Fatal(err)
	}
	return []tensor.Record{r1, r2}
}

func registryWith(e extract.Extractor) *extract.Registry {
	r := extract.NewRegistry(zap.NewNop())
	r.Register(".fake", e)
	return r
}

func TestPipelineConvert(t *testing.T) {
	records := testRecords(t)
	p := New(registryWith(&fakeExtractor{records: records}), zap.NewNop())

	if p.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", p.State())
	}
	if p.ID() == "" {
		t.Fatal("pipeline has no conversion id")
	}

	dir := t.TempDir()
	output := filepath.Join(dir, "model.crate")
	res, err := p.Convert(filepath.Join(dir, "model.fake"), output, false)
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	if p.State() != StateDone {
		t.Errorf("state = %s, want done", p.State())
	}
	if res.Records != 2 || res.Format != "fake" {
		t.Errorf("result = %+v, want 2 fake records", res)
	}
	if res.Bytes != 12 {
		t.Errorf("payload bytes = %d, want 12", res.Bytes)
	}

	r, err := crate.Open(output)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer r.Close()
	names := r.Names()
	if len(names) != 2 || names[0] != "a.weight" || names[1] != "a.bias" {
		t.Errorf("crate names = %v, want [a.weight a.bias]", names)
	}
}

func TestPipelineSingleUse(t *testing.T) {
	p := New(registryWith(&fakeExtractor{records: testRecords(t)}), zap.NewNop())

	dir := t.TempDir()
	if _, err := p.Convert(filepath.Join(dir, "m.fake"), filepath.Join(dir, "m.crate"), false); err != nil {
		t.Fatalf("first Convert() error: %v", err)
	}
	if _, err := p.Convert(filepath.Join(dir, "m.fake"), filepath.Join(dir, "m2.crate"), false); err == nil {
		t.Error("second Convert() succeeded, want error")
	}
}

func TestPipelineUnsupportedFormat(t *testing.T) {
	p := New(extract.NewRegistry(zap.NewNop()), zap.NewNop())

	dir := t.TempDir()
	_, err := p.Convert(filepath.Join(dir, "model.xyz"), filepath.Join(dir, "out.crate"), false)
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %s, want failed", p.State())
	}
}

func TestPipelineExtractionErrorPropagates(t *testing.T) {
	cause := fmt.Errorf("%w: bad checkpoint", extract.ErrLoad)
	p := New(registryWith(&fakeExtractor{err: cause}), zap.NewNop())

	dir := t.TempDir()
	_, err := p.Convert(filepath.Join(dir, "m.fake"), filepath.Join(dir, "m.crate"), false)
	if !errors.Is(err, extract.ErrLoad) {
		t.Errorf("error = %v, want ErrLoad", err)
	}
	if err != cause {
		t.Errorf("error was rewrapped: %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %s, want failed", p.State())
	}
}

func TestPipelineDestinationExists(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "model.crate")
	if err := os.WriteFile(output, []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(registryWith(&fakeExtractor{records: testRecords(t)}), zap.NewNop())
	_, err := p.Convert(filepath.Join(dir, "m.fake"), output, false)
	if !errors.Is(err, crate.ErrDestinationExists) {
		t.Errorf("error = %v, want ErrDestinationExists", err)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %s, want failed", p.State())
	}

	// The occupant is untouched.
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "occupied" {
		t.Errorf("destination was modified: %q, %v", data, err)
	}
}

func TestPipelineOverwrite(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "model.crate")
	if err := os.WriteFile(output, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(registryWith(&fakeExtractor{records: testRecords(t)}), zap.NewNop())
	if _, err := p.Convert(filepath.Join(dir, "m.fake"), output, true); err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	r, err := crate.Open(output)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer r.Close()
	if r.RecordCount() != 2 {
		t.Errorf("record count = %d, want 2", r.RecordCount())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateResolving, "resolving"},
		{StateExtracting, "extracting"},
		{StateWriting, "writing"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
