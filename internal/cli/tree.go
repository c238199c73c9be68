package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tensorcrate/tensorcrate/internal/report"
)

func newTreeCmd() *cobra.Command {
	opts := report.TreeOptions{IgnoreDirs: report.DefaultIgnoreDirs}
	var outFile string

	cmd := &cobra.Command{
		Use:   "tree [DIR]",
		Short: "Show the file tree of a model directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			out, err := report.Tree(root, opts)
			if err != nil {
				return err
			}
			if outFile != "" {
				return os.WriteFile(outFile, []byte(out+"\n"), 0o644) //nolint:gosec
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.ShowTimes, "times", false, "show modification times")
	cmd.Flags().IntVar(&opts.MaxDepth, "depth", 0, "limit recursion depth (0 = unlimited)")
	cmd.Flags().StringSliceVar(&opts.IgnoreExts, "ignore-ext", nil, "file suffixes to omit (e.g. .log)")
	cmd.Flags().StringSliceVar(&opts.IgnoreDirs, "ignore-dir", report.DefaultIgnoreDirs, "directory names to skip")
	cmd.Flags().StringVar(&outFile, "out", "", "write the tree to a file instead of stdout")
	return cmd
}
