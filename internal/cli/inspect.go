package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tensorcrate/tensorcrate/internal/crate"
	"github.com/tensorcrate/tensorcrate/internal/report"
)

func newInspectCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "inspect CRATE...",
		Short: "List the contents of crate containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.inspectOne(cmd, path, verify); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "read every record and check it against its metadata")
	return cmd
}

func (a *app) inspectOne(cmd *cobra.Command, path string, verify bool) error {
	r, err := crate.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	fmt.Fprintln(cmd.OutOrStdout(), report.CrateSummary(path, r.Header()))
	fmt.Fprintln(cmd.OutOrStdout(), report.CrateTable(r.Header()))

	if verify {
		if _, err := r.Records(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records verified\n", r.RecordCount())
	}
	return nil
}
