// Package config loads the CLI configuration from file, environment
// variables, and flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	intconfig "github.com/fieldscope-labs/fieldscope/internal/config"
	"github.com/spf13/pflag"
)

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *intconfig.Config
)

// findConfigFile finds the config file to use.
// Priority: explicit path > fieldscope.yaml > fieldscope.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("fieldscope.yaml"); err == nil {
		return "fieldscope.yaml"
	}
	if _, err := os.Stat("fieldscope.yml"); err == nil {
		return "fieldscope.yml"
	}
	return ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*intconfig.Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"warehouse.type":    intconfig.DefaultWarehouseType,
		"warehouse.port":    intconfig.DefaultWarehousePort,
		"staging.driver":    intconfig.DefaultStagingDriver,
		"staging.path":      intconfig.DefaultStagingPath,
		"report.output_dir": intconfig.DefaultOutputDir,
		"products":          intconfig.DefaultProducts(),
		"verbose":           false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (FIELDSCOPE_ prefix)
	// Transform: FIELDSCOPE_WAREHOUSE__HOST -> warehouse.host
	// (double underscore separates nesting levels; single underscores
	// survive so FIELDSCOPE_REPORT__OUTPUT_DIR maps to report.output_dir)
	if err := k.Load(env.Provider("FIELDSCOPE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "FIELDSCOPE_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			switch f.Name {
			case "staging":
				return "staging.path", posflag.FlagVal(flags, f)
			case "output-dir":
				return "report.output_dir", posflag.FlagVal(flags, f)
			case "verbose":
				return "verbose", posflag.FlagVal(flags, f)
			}
			return "", nil
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg intconfig.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Credentials may reference environment variables: ${WAREHOUSE_PASSWORD}
	cfg.Warehouse.Password = os.ExpandEnv(cfg.Warehouse.Password)
	cfg.Warehouse.User = os.ExpandEnv(cfg.Warehouse.User)

	intconfig.ApplyDefaults(&cfg)
	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path of the config file loaded last, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the most recently loaded config.
func GetCurrentConfig() *intconfig.Config {
	return currentConfig
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}
