package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tensorcrate v%s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", GitCommit)
		},
	}
}
