package extract

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// TorchExtractor reads PyTorch checkpoint files (.pth, .pt). It
// unpickles the file, expects a state dict at the root, and keeps the
// tensor entries in their stored order. Non-tensor entries (optimizer
// state, step counters, nested config) are skipped with a warning, the
// record name being the state dict key.
type TorchExtractor struct {
	logger *zap.Logger
}

// NewTorchExtractor returns an extractor for PyTorch checkpoints.
func NewTorchExtractor(logger *zap.Logger) *TorchExtractor {
	return &TorchExtractor{logger: logger}
}

// Format implements Extractor.
func (e *TorchExtractor) Format() string { return "pytorch" }

// Extract implements Extractor.
func (e *TorchExtractor) Extract(path string) ([]tensor.Record, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	records, err := e.recordsFromStateDict(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return records, nil
}

// recordsFromStateDict walks the unpickled root object. PyTorch state
// dicts arrive as ordered dicts; plain checkpoint dicts keep insertion
// order too.
func (e *TorchExtractor) recordsFromStateDict(obj interface{}) ([]tensor.Record, error) {
	switch d := obj.(type) {
	case *types.OrderedDict:
		records := make([]tensor.Record, 0, len(d.Map))
		for el := d.List.Front(); el != nil; el = el.Next() {
			entry, ok := el.Value.(*types.OrderedDictEntry)
			if !ok {
				return nil, fmt.Errorf("unexpected ordered dict entry type %T", el.Value)
			}
			records = e.appendEntry(records, entry.Key, entry.Value)
		}
		return records, nil

	case *types.Dict:
		records := make([]tensor.Record, 0, d.Len())
		for _, entry := range *d {
			records = e.appendEntry(records, entry.Key, entry.Value)
		}
		return records, nil

	default:
		return nil, fmt.Errorf("checkpoint root is %T, not a state dict", obj)
	}
}

// appendEntry converts one state dict entry, skipping anything that is
// not a tensor.
func (e *TorchExtractor) appendEntry(records []tensor.Record, key, value interface{}) []tensor.Record {
	name := fmt.Sprintf("%v", key)

	t, ok := value.(*pytorch.Tensor)
	if !ok {
		e.logger.Debug("skipping non-tensor state dict entry",
			zap.String("key", name),
			zap.String("type", fmt.Sprintf("%T", value)))
		return records
	}

	rec, err := torchRecord(name, t)
	if err != nil {
		e.logger.Warn("skipping unreadable tensor",
			zap.String("key", name),
			zap.Error(err))
		return records
	}
	return append(records, rec)
}

// torchRecord materializes one tensor from its storage, honoring
// storage offset and strides, and encodes the elements little-endian.
func torchRecord(name string, t *pytorch.Tensor) (tensor.Record, error) {
	dtype, elemAppend, storageLen, err := storageCodec(t.Source)
	if err != nil {
		return tensor.Record{}, fmt.Errorf("tensor %q: %w", name, err)
	}

	shape := tensor.Shape(append([]int(nil), t.Size...))
	n := shape.NumElements()
	data := make([]byte, 0, n*dtype.Size())

	idx := make([]int, len(t.Size))
	base := int(t.StorageOffset)
	for c := 0; c < n; c++ {
		off := base
		for d, i := range idx {
			off += i * t.Stride[d]
		}
		if off < 0 || off >= storageLen {
			return tensor.Record{}, fmt.Errorf("tensor %q: storage index %d out of range (storage holds %d)", name, off, storageLen)
		}
		data = elemAppend(data, off)

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}

	return tensor.NewRecord(name, shape, dtype, data)
}

// storageCodec maps a pytorch storage to the record dtype plus an
// element encoder. Half storages arrive from gopickle already widened
// to float32, so they are narrowed back on the way out.
func storageCodec(src pytorch.StorageInterface) (tensor.DataType, func([]byte, int) []byte, int, error) {
	switch s := src.(type) {
	case *pytorch.FloatStorage:
		return tensor.Float32, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint32(b, math.Float32bits(s.Data[i]))
		}, len(s.Data), nil
	case *pytorch.DoubleStorage:
		return tensor.Float64, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Data[i]))
		}, len(s.Data), nil
	case *pytorch.HalfStorage:
		return tensor.Float16, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint16(b, float16.Fromfloat32(s.Data[i]).Bits())
		}, len(s.Data), nil
	case *pytorch.ByteStorage:
		return tensor.Uint8, func(b []byte, i int) []byte {
			return append(b, s.Data[i])
		}, len(s.Data), nil
	case *pytorch.CharStorage:
		return tensor.Int8, func(b []byte, i int) []byte {
			return append(b, byte(s.Data[i]))
		}, len(s.Data), nil
	case *pytorch.ShortStorage:
		return tensor.Int16, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint16(b, uint16(s.Data[i])) //nolint:gosec // G115: two's complement round-trip.
		}, len(s.Data), nil
	case *pytorch.IntStorage:
		return tensor.Int32, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint32(b, uint32(s.Data[i])) //nolint:gosec // G115: two's complement round-trip.
		}, len(s.Data), nil
	case *pytorch.LongStorage:
		return tensor.Int64, func(b []byte, i int) []byte {
			return binary.LittleEndian.AppendUint64(b, uint64(s.Data[i])) //nolint:gosec // G115: two's complement round-trip.
		}, len(s.Data), nil
	case *pytorch.BoolStorage:
		return tensor.Bool, func(b []byte, i int) []byte {
			if s.Data[i] {
				return append(b, 1)
			}
			return append(b, 0)
		}, len(s.Data), nil
	default:
		return 0, nil, 0, fmt.Errorf("unsupported storage type %T", src)
	}
}
