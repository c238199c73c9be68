// Package cli provides the tensorcrate command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tensorcrate/tensorcrate/internal/cli/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// app carries the resolved configuration and logger into command runs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "tensorcrate",
		Short: "Convert trained model weights into crate containers",
		Long: `tensorcrate extracts named tensors from trained model files
(PyTorch .pth/.pt, Keras .h5, TensorFlow .pb) and packs them into a
single self-describing container.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tensorcrate.yaml)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file, with rotation")
	rootCmd.PersistentFlags().StringP("output-dir", "o", "", "directory for converted containers (default: next to each input)")
	rootCmd.PersistentFlags().Bool("overwrite", false, "replace existing destination files")
	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "max conversions in flight (default: number of CPUs)")

	rootCmd.AddCommand(newConvertCmd(a))
	rootCmd.AddCommand(newInspectCmd(a))
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
