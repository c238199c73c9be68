package cli

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tensorcrate/tensorcrate/internal/crate"
)

// chdir changes the working directory for the test, restoring it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeGraphFixture writes a one-constant frozen graph.
func writeGraphFixture(t *testing.T, dir string) string {
	t.Helper()

	bytesField := func(buf []byte, num protowire.Number, val []byte) []byte {
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		return protowire.AppendBytes(buf, val)
	}

	content := make([]byte, 0, 8)
	content = binary.LittleEndian.AppendUint32(content, math.Float32bits(1))
	content = binary.LittleEndian.AppendUint32(content, math.Float32bits(2))

	var shape []byte
	var dim []byte
	dim = protowire.AppendTag(dim, 1, protowire.VarintType)
	dim = protowire.AppendVarint(dim, 2)
	shape = bytesField(shape, 2, dim)

	var proto []byte
	proto = protowire.AppendTag(proto, 1, protowire.VarintType)
	proto = protowire.AppendVarint(proto, 1) // DT_FLOAT
	proto = bytesField(proto, 2, shape)
	proto = bytesField(proto, 4, content)

	var attrValue []byte
	attrValue = bytesField(attrValue, 8, proto)
	var entry []byte
	entry = bytesField(entry, 1, []byte("value"))
	entry = bytesField(entry, 2, attrValue)
	var node []byte
	node = bytesField(node, 1, []byte("weights"))
	node = bytesField(node, 2, []byte("Const"))
	node = bytesField(node, 5, entry)

	path := filepath.Join(dir, "frozen.pb")
	if err := os.WriteFile(path, bytesField(nil, 1, node), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(out, "tensorcrate v") {
		t.Errorf("version output = %q", out)
	}
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)

	out, err := runCommand(t, "convert", input)
	if err != nil {
		t.Fatalf("convert error: %v", err)
	}
	if !strings.Contains(out, "1 records") {
		t.Errorf("convert output = %q, want record count", out)
	}

	output := filepath.Join(dir, "frozen.crate")
	r, err := crate.Open(output)
	if err != nil {
		t.Fatalf("Open(%s) error: %v", output, err)
	}
	defer r.Close()
	if names := r.Names(); len(names) != 1 || names[0] != "weights" {
		t.Errorf("crate names = %v, want [weights]", names)
	}
}

func TestConvertCommandDest(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)
	dest := filepath.Join(dir, "custom-name.crate")

	if _, err := runCommand(t, "convert", "--dest", dest, input); err != nil {
		t.Fatalf("convert error: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination missing: %v", err)
	}
}

func TestConvertCommandDestMultipleInputs(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)

	if _, err := runCommand(t, "convert", "--dest", "x.crate", input, input); err == nil {
		t.Error("convert --dest with two inputs succeeded, want error")
	}
}

func TestConvertCommandRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)
	output := filepath.Join(dir, "frozen.crate")
	if err := os.WriteFile(output, []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The collision is caught before any pipeline runs and the occupant
	// is left untouched.
	_, err := runCommand(t, "convert", input)
	if !errors.Is(err, crate.ErrDestinationExists) {
		t.Errorf("error = %v, want ErrDestinationExists", err)
	}
	occupant, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(occupant) != "occupied" {
		t.Errorf("existing destination was modified: %q", occupant)
	}

	if _, err := runCommand(t, "convert", "--overwrite", input); err != nil {
		t.Errorf("convert --overwrite error: %v", err)
	}
}

func TestConvertCommandMissingInput(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	_, err := runCommand(t, "convert", filepath.Join(dir, "absent.pth"))
	if err == nil || !strings.Contains(err.Error(), "absent.pth") {
		t.Errorf("error = %v, want one naming the missing input", err)
	}
	if entries, readErr := os.ReadDir(dir); readErr != nil || len(entries) != 0 {
		t.Errorf("entries = %v after rejected run, want none", entries)
	}
}

func TestConvertCommandUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runCommand(t, "convert", input)
	if err == nil || !strings.Contains(err.Error(), "unsupported model format") {
		t.Errorf("error = %v, want unsupported model format", err)
	}
}

func TestConvertCommandOutputDir(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := runCommand(t, "convert", "-o", outDir, input); err != nil {
		t.Fatalf("convert error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "frozen.crate")); err != nil {
		t.Errorf("output missing in --output-dir: %v", err)
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	input := writeGraphFixture(t, dir)
	if _, err := runCommand(t, "convert", input); err != nil {
		t.Fatal(err)
	}

	out, err := runCommand(t, "inspect", "--verify", filepath.Join(dir, "frozen.crate"))
	if err != nil {
		t.Fatalf("inspect error: %v", err)
	}
	for _, want := range []string{"weights", "float32", "1 records verified"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestTreeCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "model.pth"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCommand(t, "tree", dir)
	if err != nil {
		t.Fatalf("tree error: %v", err)
	}
	if !strings.Contains(out, "model.pth") {
		t.Errorf("tree output = %q", out)
	}

	report := filepath.Join(dir, "structure.txt")
	if _, err := runCommand(t, "tree", dir, "--out", report); err != nil {
		t.Fatalf("tree --out error: %v", err)
	}
	written, err := os.ReadFile(report)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(written), "model.pth") {
		t.Errorf("tree file output = %q", written)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, dir, want string
	}{
		{"models/net.pth", "", filepath.Join("models", "net.crate")},
		{"net.h5", "out", filepath.Join("out", "net.crate")},
		{"/abs/graph.pb", "", filepath.Join("/abs", "graph.crate")},
	}
	for _, tt := range tests {
		if got := outputPath(tt.input, tt.dir); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.input, tt.dir, got, tt.want)
		}
	}
}
