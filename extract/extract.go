// Package extract exports the format extractors and their registry.
//
// Example usage:
//
//	registry := extract.NewRegistry(logger)
//	extractor, err := registry.Resolve("model.pth")
//	if err != nil {
//	    log.Fatal(err) // Unknown suffix.
//	}
//	records, err := extractor.Extract("model.pth")
package extract

import (
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/extract"
)

// Extraction errors, matchable with errors.Is.
var (
	ErrUnsupportedFormat    = extract.ErrUnsupportedFormat
	ErrLoad                 = extract.ErrLoad
	ErrUnsupportedSubformat = extract.ErrUnsupportedSubformat
)

// Extractor reads one source format.
type Extractor = extract.Extractor

// Registry maps file suffixes to extractors.
type Registry = extract.Registry

// NewRegistry returns a registry with the built-in extractors for
// PyTorch (.pth, .pt), Keras (.h5) and TensorFlow graphs (.pb).
func NewRegistry(logger *zap.Logger) *Registry {
	return extract.NewRegistry(logger)
}
