package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var (
		outputFormat   string
		outputFile     string
		includeMatched bool
		showProgress   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile every stored invoice against GSTR-2B",
		Long: `reconcile looks every stored invoice up in the GSTR-2B dataset, classifies it
as matched, partial or unmatched, replaces the transaction view with the
result and reports the summary, the invoices needing attention and the
amount discrepancies.

A lookup failure aborts the run and leaves the previous transaction view in
place.

Examples:
  itcrecon reconcile
  itcrecon reconcile --output-format xlsx --output-file reconciliation.xlsx
  itcrecon reconcile --output-format csv --include-matched`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showProgress {
				opts.cfg.Reconcile.ProgressReporting = true
			}
			if includeMatched {
				opts.cfg.Report.IncludeMatched = true
			}

			app, err := opts.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signalContext()
			defer cancel()

			result, err := app.service.Reconcile(ctx)
			if err != nil {
				return err
			}

			if err := opts.writeReport(outputFormat, outputFile, result); err != nil {
				return err
			}

			if opts.verbose {
				fmt.Fprintf(opts.stderr, "\nReconciled %d invoices: %d matched, %d partial, %d unmatched (%.1f%% match rate)\n",
					result.Summary.TotalInvoices, result.Summary.Matched, result.Summary.Partial,
					result.Summary.Unmatched, result.Summary.MatchRate())
				fmt.Fprintf(opts.stderr, "Processing time: %v\n", result.Summary.ProcessingDuration)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output-format", "o", "", "output format: console, json, csv, xlsx")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "output file path (default: stdout)")
	cmd.Flags().BoolVar(&includeMatched, "include-matched", false, "list matched invoices as well")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "log progress during the run")

	return cmd
}
