package convert_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/convert"
	"github.com/tensorcrate/tensorcrate/crate"
	"github.com/tensorcrate/tensorcrate/extract"
	"github.com/tensorcrate/tensorcrate/tensor"
)

type stubExtractor struct{}

func (stubExtractor) Format() string { return "stub" }

func (stubExtractor) Extract(string) ([]tensor.Record, error) {
	rec, err := tensor.NewRecord("w", tensor.Shape{2}, tensor.Float32, make([]byte, 8))
	if err != nil {
		return nil, err
	}
	return []tensor.Record{rec}, nil
}

func TestPipelineThroughPublicAPI(t *testing.T) {
	registry := extract.NewRegistry(zap.NewNop())
	registry.Register(".stub", stubExtractor{})

	dir := t.TempDir()
	output := filepath.Join(dir, "out.crate")

	p := convert.New(registry, zap.NewNop())
	assert.Equal(t, convert.StateIdle, p.State())

	res, err := p.Convert(filepath.Join(dir, "model.stub"), output, false)
	require.NoError(t, err)
	assert.Equal(t, convert.StateDone, p.State())
	assert.Equal(t, 1, res.Records)

	r, err := crate.Open(output)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"w"}, r.Names())
}

func TestPipelineFailsClosedOnUnknownSuffix(t *testing.T) {
	p := convert.New(extract.NewRegistry(zap.NewNop()), zap.NewNop())

	dir := t.TempDir()
	_, err := p.Convert(filepath.Join(dir, "model.bin"), filepath.Join(dir, "out.crate"), false)
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
	assert.Equal(t, convert.StateFailed, p.State())
}
