package commands

import (
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full reporting pipeline",
		Long: `Execute every pipeline stage in order: reset the staging schema,
extract the working set from the warehouse, derive per-installation
metrics, then build summaries and write one workbook per product line.`,
		Example: `  # Full run with ./fieldscope.yaml
  fieldscope run

  # Full run against a different staging database
  fieldscope run --staging /tmp/onprem.db --output-dir ./reports`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return cc.Engine.Run(cmd.Context())
		},
	}
}
