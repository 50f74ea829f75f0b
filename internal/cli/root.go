// Package cli provides the command-line interface for fieldscope.
package cli

import (
	"fmt"
	"os"

	"github.com/fieldscope-labs/fieldscope/internal/cli/commands"
	"github.com/fieldscope-labs/fieldscope/internal/cli/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldscope",
		Short: "Fieldscope - On-Prem Consumption Reporting",
		Long: `Fieldscope builds consumption reports for on-prem product lines.

It extracts installations, accounts, opportunities, subscriptions, CTAs,
and support activity from the analytical warehouse, stages them locally,
derives per-installation metrics, and writes one workbook per product
line.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cfg.Verbose)
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
On-Prem Consumption Reporting
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fieldscope.yaml)")
	rootCmd.PersistentFlags().String("staging", "", "Path to the staging database")
	rootCmd.PersistentFlags().String("output-dir", "", "Directory for generated workbooks")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewExtractCommand())
	rootCmd.AddCommand(commands.NewDeriveCommand())
	rootCmd.AddCommand(commands.NewSummarizeCommand())
	rootCmd.AddCommand(commands.NewReportCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
