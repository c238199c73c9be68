package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tensorcrate/tensorcrate/internal/convert"
	"github.com/tensorcrate/tensorcrate/internal/crate"
	"github.com/tensorcrate/tensorcrate/internal/extract"
)

func newConvertCmd(a *app) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "convert INPUT...",
		Short: "Convert model files into crate containers",
		Long: `Convert one or more model files. Each input becomes one container,
named after the input with a .crate suffix, either next to the input or
under --output-dir. With a single input, --dest names the exact output
path instead.

Inputs are converted concurrently, up to --jobs at a time. A failed
input does not undo containers already written for other inputs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest != "" && len(args) != 1 {
				return fmt.Errorf("--dest requires exactly one input, got %d", len(args))
			}
			return a.runConvert(cmd, args, dest)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "exact destination path (single input only)")
	return cmd
}

func (a *app) runConvert(cmd *cobra.Command, inputs []string, dest string) error {
	// Pre-flight before any pipeline runs: every input must exist and,
	// unless overwriting, no destination may be occupied.
	outputs := make([]string, len(inputs))
	for i, input := range inputs {
		if _, err := os.Stat(input); err != nil {
			return fmt.Errorf("input %s: %w", input, err)
		}
		outputs[i] = dest
		if outputs[i] == "" {
			outputs[i] = outputPath(input, a.cfg.OutputDir)
		}
		if !a.cfg.Overwrite {
			if _, err := os.Stat(outputs[i]); err == nil {
				return fmt.Errorf("%s: %w: %s", input, crate.ErrDestinationExists, outputs[i])
			}
		}
	}

	registry := extract.NewRegistry(a.logger)

	var g errgroup.Group
	g.SetLimit(a.cfg.Jobs)
	results := make([]*convert.Result, len(inputs))

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			p := convert.New(registry, a.logger)
			res, err := p.Convert(input, outputs[i], a.cfg.Overwrite)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s  (%d records, %d bytes, %s)\n",
			res.Input, res.Output, res.Records, res.Bytes, res.Duration.Round(time.Millisecond))
	}
	if err != nil {
		a.logger.Error("conversion batch failed", zap.Error(err))
		return err
	}
	return nil
}

// outputPath derives the container path for an input: the input's base
// name with a .crate suffix, placed in dir when given and next to the
// input otherwise.
func outputPath(input, dir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".crate"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base)
}
