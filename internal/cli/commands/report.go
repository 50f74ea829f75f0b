package commands

import (
	"fmt"

	"github.com/fieldscope-labs/fieldscope/internal/report"
	"github.com/spf13/cobra"
)

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	var product string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the workbook for the current summary tables",
		Long: `Render the summary tables into a spreadsheet workbook. The tables
must have been built for the same product line beforehand (see
"fieldscope summarize").`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if product == "" {
				if len(cfg.Products) == 0 {
					return fmt.Errorf("no product lines configured")
				}
				product = cfg.Products[0]
			}

			path, err := report.NewWriter(store, cfg.Report.OutputDir, logger).Write(cmd.Context(), product)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product line to report on")
	return cmd
}
