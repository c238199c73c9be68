package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/hdf5"
	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// KerasExtractor reads Keras HDF5 weight files (.h5). Records come out
// in model declaration order when the file carries the layer_names and
// weight_names attributes Keras writes; otherwise the stored
// (name-sorted) order is used, which is still deterministic.
type KerasExtractor struct {
	logger *zap.Logger
}

// NewKerasExtractor returns an extractor for Keras weight files.
func NewKerasExtractor(logger *zap.Logger) *KerasExtractor {
	return &KerasExtractor{logger: logger}
}

// Format implements Extractor.
func (e *KerasExtractor) Format() string { return "keras" }

// Extract implements Extractor.
func (e *KerasExtractor) Extract(path string) ([]tensor.Record, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	// Full model files nest weights under model_weights; weights-only
	// files put the layer groups at the root.
	weights := f.Root().Group("model_weights")
	if weights == nil {
		weights = f.Root()
	}

	records, err := e.layerRecords(weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return records, nil
}

// layerRecords walks the layer groups in declaration order.
func (e *KerasExtractor) layerRecords(weights *hdf5.Group) ([]tensor.Record, error) {
	var layers []*hdf5.Group
	if names, ok := weights.StringListAttr("layer_names"); ok {
		for _, name := range names {
			g := weights.Group(name)
			if g == nil {
				e.logger.Warn("layer listed in layer_names has no group", zap.String("layer", name))
				continue
			}
			layers = append(layers, g)
		}
	} else {
		layers = weights.Groups()
	}

	var records []tensor.Record
	for _, layer := range layers {
		recs, err := e.layerWeights(layer)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", layer.Name, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

// layerWeights resolves one layer's weight datasets, preferring the
// weight_names attribute for ordering.
func (e *KerasExtractor) layerWeights(layer *hdf5.Group) ([]tensor.Record, error) {
	if names, ok := layer.StringListAttr("weight_names"); ok {
		records := make([]tensor.Record, 0, len(names))
		for _, name := range names {
			ds := resolveDataset(layer, name)
			if ds == nil {
				e.logger.Warn("weight listed in weight_names has no dataset",
					zap.String("layer", layer.Name),
					zap.String("weight", name))
				continue
			}
			rec, err := e.datasetRecord(name, ds)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				records = append(records, *rec)
			}
		}
		return records, nil
	}

	var records []tensor.Record
	var walk func(g *hdf5.Group, prefix string) error
	walk = func(g *hdf5.Group, prefix string) error {
		for _, ds := range g.Datasets() {
			rec, err := e.datasetRecord(prefix+ds.Name, ds)
			if err != nil {
				return err
			}
			if rec != nil {
				records = append(records, *rec)
			}
		}
		for _, child := range g.Groups() {
			if err := walk(child, prefix+child.Name+"/"); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(layer, ""); err != nil {
		return nil, err
	}
	return records, nil
}

// resolveDataset follows a slash-separated weight path below the layer
// group.
func resolveDataset(layer *hdf5.Group, path string) *hdf5.Dataset {
	parts := strings.Split(path, "/")
	g := layer
	for _, part := range parts[:len(parts)-1] {
		g = g.Group(part)
		if g == nil {
			return nil
		}
	}
	return g.Dataset(parts[len(parts)-1])
}

// datasetRecord converts one dataset, normalizing big-endian storage to
// little-endian. Non-numeric datasets are skipped. A nil record with a
// nil error means skipped.
func (e *KerasExtractor) datasetRecord(name string, ds *hdf5.Dataset) (*tensor.Record, error) {
	dtype, ok := kerasDType(ds)
	if !ok {
		e.logger.Debug("skipping dataset with non-numeric type",
			zap.String("dataset", name),
			zap.Int("class", int(ds.Class)),
			zap.Int("size", ds.TypeSize))
		return nil, nil
	}

	data, err := ds.Read()
	if err != nil {
		return nil, err
	}
	if ds.BigEnd {
		swapToLittleEndian(data, ds.TypeSize)
	}

	shape := make(tensor.Shape, len(ds.Dims))
	copy(shape, ds.Dims)
	if len(shape) == 0 {
		shape = tensor.Shape{} // Scalar dataset.
	}

	rec, err := tensor.NewRecord(name, shape, dtype, data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// kerasDType maps an HDF5 datatype to a record dtype.
func kerasDType(ds *hdf5.Dataset) (tensor.DataType, bool) {
	switch ds.Class {
	case hdf5.ClassFloat:
		switch ds.TypeSize {
		case 2:
			return tensor.Float16, true
		case 4:
			return tensor.Float32, true
		case 8:
			return tensor.Float64, true
		}
	case hdf5.ClassInt:
		switch {
		case ds.TypeSize == 1 && ds.Signed:
			return tensor.Int8, true
		case ds.TypeSize == 1:
			return tensor.Uint8, true
		case ds.TypeSize == 2 && ds.Signed:
			return tensor.Int16, true
		case ds.TypeSize == 4 && ds.Signed:
			return tensor.Int32, true
		case ds.TypeSize == 8 && ds.Signed:
			return tensor.Int64, true
		}
	}
	return 0, false
}

// swapToLittleEndian reverses each size-byte element in place.
func swapToLittleEndian(data []byte, size int) {
	if size <= 1 {
		return
	}
	for i := 0; i+size <= len(data); i += size {
		for a, b := i, i+size-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}
