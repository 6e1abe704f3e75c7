package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"itc-reconciliation-service/internal/parsers"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		file         string
		returnPeriod string
		sheet        string
	)

	cmd := &cobra.Command{
		Use:   "import-returns",
		Short: "Load a GSTR-2B download into the return dataset",
		Long: `import-returns reads a GSTR-2B file (CSV, or the XLSX downloaded from the GST
portal) and upserts every record into the return dataset, keyed by invoice
number and supplier GSTIN. Rows without either key are reported and skipped.

Examples:
  itcrecon import-returns --file GSTR2B_042024.xlsx
  itcrecon import-returns --file gstr2b.csv --return-period 042024`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFileExists(file, "GSTR-2B file"); err != nil {
				return err
			}

			config := opts.cfg.ReturnParserConfig()
			if returnPeriod != "" {
				config.ReturnPeriod = returnPeriod
			}
			if sheet != "" {
				config.Sheets = []string{sheet}
			}

			parser, err := parsers.NewReturnParser(config, opts.log)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			records, stats, err := parser.ParseReturns(ctx, file)
			if err != nil {
				return err
			}
			if len(records) == 0 && stats.HasErrors() {
				printSampleErrors(opts, stats)
				return parseFailure(file, stats)
			}

			app, err := opts.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			imported, err := app.returns.Upsert(ctx, records)
			if err != nil {
				return err
			}
			total, err := app.returns.Count(ctx)
			if err != nil {
				return err
			}

			opts.log.WithFields(logger.Fields{
				"file":     file,
				"imported": imported,
				"skipped":  stats.ErrorCount,
				"total":    total,
			}).Info("GSTR-2B import completed")

			fmt.Fprintf(opts.stdout, "Imported %d GSTR-2B records from %s (%d rows skipped, %d records in dataset)\n",
				imported, file, stats.ErrorCount, total)
			printSampleErrors(opts, stats)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the GSTR-2B CSV or XLSX file (required)")
	cmd.Flags().StringVar(&returnPeriod, "return-period", "", "return period (MMYYYY) for rows that carry none")
	cmd.Flags().StringVar(&sheet, "sheet", "", "workbook sheet to read (default B2B, then the first sheet)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func printSampleErrors(opts *rootOptions, stats *parsers.ParseStats) {
	for _, e := range stats.GetSampleErrors(5) {
		fmt.Fprintf(opts.stderr, "  skipped: %s\n", e)
	}
}

// parseFailure reports an input file with no usable rows
func parseFailure(file string, stats *parsers.ParseStats) error {
	return errors.ParseError(errors.CodeInvalidFormat, file, 0, "", "", fmt.Errorf("%s", stats.String())).
		WithSuggestion("Check the column headers and the sample errors above")
}
