// Package extract turns trained model files into flat lists of named
// tensor records. Each supported source format has its own Extractor;
// the Registry maps file suffixes to extractors and refuses anything it
// does not know.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/tensor"
)

// Extractor reads one source format and returns its tensors in a
// deterministic order.
type Extractor interface {
	// Format is a short human-readable format name for logs and
	// reports.
	Format() string

	// Extract loads the file at path and returns its tensor records.
	Extract(path string) ([]tensor.Record, error)
}

// Registry maps lowercased file suffixes to extractors.
type Registry struct {
	byExt  map[string]Extractor
	logger *zap.Logger
}

// NewRegistry returns a registry with the built-in extractors
// registered: PyTorch (.pth, .pt), Keras (.h5) and TensorFlow graphs
// (.pb).
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		byExt:  map[string]Extractor{},
		logger: logger,
	}
	torch := NewTorchExtractor(logger)
	r.Register(".pth", torch)
	r.Register(".pt", torch)
	r.Register(".h5", NewKerasExtractor(logger))
	r.Register(".pb", NewGraphExtractor(logger))
	return r
}

// Register maps a file suffix to an extractor, replacing any previous
// mapping. The suffix must include the leading dot.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Resolve returns the extractor for the path's suffix. The match is
// case-insensitive. Unknown suffixes fail with ErrUnsupportedFormat;
// there is no content sniffing fallback.
func (r *Registry) Resolve(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, fmt.Errorf("%w: %q has no file suffix (supported: %s)",
			ErrUnsupportedFormat, path, strings.Join(r.Suffixes(), ", "))
	}
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, ext, strings.Join(r.Suffixes(), ", "))
	}
	return e, nil
}

// Suffixes returns the registered suffixes in sorted order.
func (r *Registry) Suffixes() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
