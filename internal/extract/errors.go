package extract

import "errors"

// Extraction errors. Extractors wrap the underlying cause so callers
// can match the category with errors.Is while keeping the root cause in
// the chain.
var (
	// ErrUnsupportedFormat marks an input whose suffix maps to no
	// registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported model format")

	// ErrLoad marks an input that matched a format but could not be
	// read or decoded.
	ErrLoad = errors.New("model load failed")

	// ErrUnsupportedSubformat marks an input whose container was read
	// but whose inner layout is not one the extractor understands.
	ErrUnsupportedSubformat = errors.New("unsupported model subformat")
)
