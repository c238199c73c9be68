// Package convert wires extraction and container writing into a
// one-shot pipeline. A Pipeline converts exactly one input file; batch
// runs construct one pipeline per input.
package convert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/crate"
	"github.com/tensorcrate/tensorcrate/internal/extract"
)

// State is the pipeline's lifecycle position. Transitions run strictly
// forward: Idle, Resolving, Extracting, Writing, then Done or Failed.
type State int

// Pipeline states.
const (
	StateIdle State = iota
	StateResolving
	StateExtracting
	StateWriting
	StateDone
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateExtracting:
		return "extracting"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result summarizes a finished conversion.
type Result struct {
	ID       string
	Input    string
	Output   string
	Format   string
	Records  int
	Bytes    int64
	Duration time.Duration
}

// Pipeline converts one model file into a crate container. It is
// single-use: Convert may be called once; afterwards the pipeline stays
// in its terminal state.
type Pipeline struct {
	registry *extract.Registry
	logger   *zap.Logger
	id       string

	mu    sync.Mutex
	state State
}

// New returns an idle pipeline with a fresh conversion id.
func New(registry *extract.Registry, logger *zap.Logger) *Pipeline {
	id := uuid.NewString()
	return &Pipeline{
		registry: registry,
		logger:   logger.With(zap.String("conversion_id", id)),
		id:       id,
		state:    StateIdle,
	}
}

// ID returns the pipeline's conversion id.
func (p *Pipeline) ID() string { return p.id }

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	p.logger.Debug("pipeline state change",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// Convert runs the full conversion. Extraction and write errors are
// returned as they are, so callers can classify them with errors.Is
// against the extract and crate sentinel errors.
func (p *Pipeline) Convert(input, output string, overwrite bool) (*Result, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		state := p.state
		p.mu.Unlock()
		return nil, fmt.Errorf("pipeline already used (state %s)", state)
	}
	p.state = StateResolving
	p.mu.Unlock()

	start := time.Now()
	p.logger.Info("conversion started",
		zap.String("input", input),
		zap.String("output", output),
		zap.Bool("overwrite", overwrite))

	extractor, err := p.registry.Resolve(input)
	if err != nil {
		return nil, p.fail(err)
	}

	p.transition(StateExtracting)
	records, err := extractor.Extract(input)
	if err != nil {
		return nil, p.fail(err)
	}
	var payload int64
	for _, r := range records {
		payload += int64(r.ByteSize())
	}
	p.logger.Info("extraction finished",
		zap.String("format", extractor.Format()),
		zap.Int("records", len(records)),
		zap.Int64("payload_bytes", payload))

	p.transition(StateWriting)
	if err := crate.Write(output, records, overwrite); err != nil {
		return nil, p.fail(err)
	}

	p.transition(StateDone)
	res := &Result{
		ID:       p.id,
		Input:    input,
		Output:   output,
		Format:   extractor.Format(),
		Records:  len(records),
		Bytes:    payload,
		Duration: time.Since(start),
	}
	p.logger.Info("conversion finished",
		zap.Int("records", res.Records),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// fail moves to the terminal Failed state and passes the error through
// untouched.
func (p *Pipeline) fail(err error) error {
	p.transition(StateFailed)
	p.logger.Error("conversion failed", zap.Error(err))
	return err
}
