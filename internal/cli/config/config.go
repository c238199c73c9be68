// Package config loads CLI configuration. Precedence, highest to
// lowest: flags, TENSORCRATE_ environment variables, the YAML config
// file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultLogLevel = "info"
)

// Config is the resolved tool configuration.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFile   string `koanf:"log_file"`
	OutputDir string `koanf:"output_dir"`
	Overwrite bool   `koanf:"overwrite"`
	Jobs      int    `koanf:"jobs"`
}

// findConfigFile picks the config file: the explicit path when given,
// otherwise tensorcrate.yaml or tensorcrate.yml in the working
// directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"tensorcrate.yaml", "tensorcrate.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load resolves the configuration. flags may be nil; only flags the
// user actually set participate.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"log_level":  DefaultLogLevel,
		"log_file":   "",
		"output_dir": "",
		"overwrite":  false,
		"jobs":       runtime.NumCPU(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("TENSORCRATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TENSORCRATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("jobs must be at least 1, got %d", cfg.Jobs)
	}
	return &cfg, nil
}
