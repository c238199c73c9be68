package hdf5

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tensorcrate/tensorcrate/internal/hdf5/hdf5test"
)

func float32Bytes(vals ...float32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestParseNestedGroups(t *testing.T) {
	root := &hdf5test.Group{
		Attrs: map[string][]string{
			"layer_names": {"dense", "output"},
		},
		Groups: map[string]*hdf5test.Group{
			"dense": {
				Datasets: map[string]*hdf5test.Dataset{
					"kernel:0": {
						Dims: []int{2, 3},
						Kind: hdf5test.Float,
						Size: 4,
						Raw:  float32Bytes(1, 2, 3, 4, 5, 6),
					},
					"bias:0": {
						Dims:   []int{3},
						Kind:   hdf5test.Int,
						Size:   8,
						Signed: true,
						Raw:    make([]byte, 24),
					},
				},
			},
			"output": {},
		},
	}

	f, err := Parse(hdf5test.Bytes(root))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	g := f.Root().Group("dense")
	if g == nil {
		t.Fatal("group dense not found")
	}

	kernel := g.Dataset("kernel:0")
	if kernel == nil {
		t.Fatal("dataset kernel:0 not found")
	}
	if !reflect.DeepEqual(kernel.Dims, []int{2, 3}) {
		t.Errorf("kernel dims = %v, want [2 3]", kernel.Dims)
	}
	if kernel.Class != ClassFloat || kernel.TypeSize != 4 {
		t.Errorf("kernel type = class %d size %d, want float size 4", kernel.Class, kernel.TypeSize)
	}
	if kernel.NumElements() != 6 {
		t.Errorf("kernel NumElements() = %d, want 6", kernel.NumElements())
	}
	data, err := kernel.Read()
	if err != nil {
		t.Fatalf("kernel Read() error: %v", err)
	}
	if !reflect.DeepEqual(data, float32Bytes(1, 2, 3, 4, 5, 6)) {
		t.Errorf("kernel data mismatch: %v", data)
	}

	bias := g.Dataset("bias:0")
	if bias == nil {
		t.Fatal("dataset bias:0 not found")
	}
	if bias.Class != ClassInt || !bias.Signed || bias.TypeSize != 8 {
		t.Errorf("bias type = class %d signed %v size %d, want signed int size 8", bias.Class, bias.Signed, bias.TypeSize)
	}

	if f.Root().Group("output") == nil {
		t.Error("empty group output not found")
	}

	// Symbol-table order is name-sorted.
	var names []string
	for _, d := range g.Datasets() {
		names = append(names, d.Name)
	}
	if !reflect.DeepEqual(names, []string{"bias:0", "kernel:0"}) {
		t.Errorf("stored dataset order = %v, want name-sorted", names)
	}
}

func TestStringListAttr(t *testing.T) {
	tests := []struct {
		name string
		root *hdf5test.Group
	}{
		{
			name: "fixed size strings",
			root: &hdf5test.Group{
				Attrs: map[string][]string{"layer_names": {"conv1", "dense_2"}},
			},
		},
		{
			name: "variable length strings",
			root: &hdf5test.Group{
				VlenAttrs: map[string][]string{"layer_names": {"conv1", "dense_2"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(hdf5test.Bytes(tt.root))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			got, ok := f.Root().StringListAttr("layer_names")
			if !ok {
				t.Fatal("attribute layer_names not found")
			}
			if !reflect.DeepEqual(got, []string{"conv1", "dense_2"}) {
				t.Errorf("layer_names = %v, want [conv1 dense_2]", got)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	valid := hdf5test.Bytes(&hdf5test.Group{})

	badVersion := append([]byte(nil), valid...)
	badVersion[8] = 2

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"bad signature", []byte("not an hdf5 file, definitely")},
		{"truncated", valid[:20]},
		{"unsupported superblock version", badVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.buf); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.h5")
	root := &hdf5test.Group{
		Groups: map[string]*hdf5test.Group{"model_weights": {}},
	}
	if err := hdf5test.WriteFile(path, root); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if f.Root().Group("model_weights") == nil {
		t.Error("group model_weights not found")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.h5")); err == nil {
		t.Error("Open() succeeded, want error")
	}
}
