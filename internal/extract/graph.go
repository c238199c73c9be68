package extract

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
	"github.com/tensorcrate/tensorcrate/internal/tfgraph"
)

// GraphExtractor reads serialized TensorFlow graphs (.pb), both bare
// GraphDefs and SavedModels, and lifts the constant tensors out of
// their Const nodes. Graphs that keep weights in external variable
// checkpoints rather than frozen constants yield an empty record list;
// that is reported as a warning, not an error.
type GraphExtractor struct {
	logger *zap.Logger
}

// NewGraphExtractor returns an extractor for TensorFlow graph files.
func NewGraphExtractor(logger *zap.Logger) *GraphExtractor {
	return &GraphExtractor{logger: logger}
}

// Format implements Extractor.
func (e *GraphExtractor) Format() string { return "tensorflow" }

// Extract implements Extractor.
func (e *GraphExtractor) Extract(path string) ([]tensor.Record, error) {
	buf, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the caller.
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	g, err := tfgraph.Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedSubformat, path, err)
	}

	if skipped := g.ConstCount - len(g.Consts); skipped > 0 {
		e.logger.Warn("skipped constants without extractable values",
			zap.String("path", path),
			zap.Int("count", skipped))
	}

	records := make([]tensor.Record, 0, len(g.Consts))
	for _, c := range g.Consts {
		dtype, ok := graphDType(c.DType)
		if !ok {
			e.logger.Warn("skipping constant with unsupported dtype",
				zap.String("node", c.Name),
				zap.Int("dtype", c.DType))
			continue
		}
		rec, err := tensor.NewRecord(c.Name, tensor.Shape(c.Dims), dtype, c.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: node %q: %w", ErrLoad, path, c.Name, err)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		e.logger.Warn("graph holds no constant tensors; weights likely live in a variables checkpoint",
			zap.String("path", path),
			zap.Int("nodes", g.NodeCount))
	}
	return records, nil
}

// graphDType maps a TensorFlow DataType enum value to a record dtype.
func graphDType(dtype int) (tensor.DataType, bool) {
	switch dtype {
	case tfgraph.DtFloat:
		return tensor.Float32, true
	case tfgraph.DtDouble:
		return tensor.Float64, true
	case tfgraph.DtHalf:
		return tensor.Float16, true
	case tfgraph.DtBFloat16:
		return tensor.BFloat16, true
	case tfgraph.DtInt8:
		return tensor.Int8, true
	case tfgraph.DtInt16:
		return tensor.Int16, true
	case tfgraph.DtInt32:
		return tensor.Int32, true
	case tfgraph.DtInt64:
		return tensor.Int64, true
	case tfgraph.DtUint8:
		return tensor.Uint8, true
	case tfgraph.DtBool:
		return tensor.Bool, true
	}
	return 0, false
}
