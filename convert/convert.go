// Package convert exports the one-shot conversion pipeline.
//
// Example usage:
//
//	registry := extract.NewRegistry(logger)
//	p := convert.New(registry, logger)
//	res, err := p.Convert("model.pth", "model.crate", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("wrote %d records in %s\n", res.Records, res.Duration)
package convert

import (
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/convert"
	"github.com/tensorcrate/tensorcrate/internal/extract"
)

// State is the pipeline lifecycle state.
type State = convert.State

// Pipeline states.
const (
	StateIdle       = convert.StateIdle
	StateResolving  = convert.StateResolving
	StateExtracting = convert.StateExtracting
	StateWriting    = convert.StateWriting
	StateDone       = convert.StateDone
	StateFailed     = convert.StateFailed
)

// Result summarizes a finished conversion.
type Result = convert.Result

// Pipeline converts one model file into a crate container.
type Pipeline = convert.Pipeline

// New returns an idle single-use pipeline.
func New(registry *extract.Registry, logger *zap.Logger) *Pipeline {
	return convert.New(registry, logger)
}
