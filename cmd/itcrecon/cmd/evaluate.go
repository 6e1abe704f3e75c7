package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"itc-reconciliation-service/internal/parsers"
	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		file         string
		outputFormat string
		outputFile   string
		noChecks     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Decide ITC eligibility for every invoice in a register",
		Long: `evaluate registers each invoice of a CSV or XLSX invoice register and decides
whether its input tax credit is eligible, based on whether the supplier
reported it in GSTR-2B. A RETURN_FILED compliance check is recorded for every
determination.

An ineligible invoice is a result, not an error. Invoices that were rejected
(missing fields, duplicates) or that could not be evaluated (database or
lookup failures) are reported with their reason and make the command exit
non-zero.

Examples:
  itcrecon evaluate --file invoices.csv
  itcrecon evaluate --file invoices.xlsx --output-format json --output-file verdicts.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFileExists(file, "invoice register"); err != nil {
				return err
			}

			parser, err := parsers.NewInvoiceParser(opts.cfg.InvoiceParserConfig(), opts.log)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			invoices, stats, err := parser.ParseInvoices(ctx, file)
			if err != nil {
				return err
			}
			if len(invoices) == 0 && stats.HasErrors() {
				printSampleErrors(opts, stats)
				return parseFailure(file, stats)
			}
			printSampleErrors(opts, stats)

			if noChecks {
				opts.cfg.Reconcile.RecordChecks = false
			}

			app, err := opts.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			outcomes := app.service.EvaluateBatch(ctx, invoices)
			if err := opts.writeReport(outputFormat, outputFile, outcomes); err != nil {
				return err
			}

			summary := reconciler.SummarizeOutcomes(outcomes)
			opts.log.WithFields(logger.Fields{
				"total":      summary.Total,
				"eligible":   summary.Eligible,
				"ineligible": summary.Ineligible,
				"rejected":   summary.Rejected,
				"failed":     summary.Failed,
			}).Info("Eligibility evaluation completed")

			return outcomeErrors(outcomes)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the invoice register CSV or XLSX file (required)")
	cmd.Flags().StringVarP(&outputFormat, "output-format", "o", "", "output format: console, json, csv, xlsx")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "output file path (default: stdout)")
	cmd.Flags().BoolVar(&noChecks, "no-checks", false, "do not record compliance checks")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// outcomeErrors collects rejected and failed evaluations. Ineligible
// verdicts are not errors.
func outcomeErrors(outcomes []*reconciler.EvaluationOutcome) error {
	var errs []*errors.ReconcilerError
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		errs = append(errs, errors.WrapIfNeeded(o.Err, errors.CategoryInternal, errors.CodeUnexpectedError,
			fmt.Sprintf("evaluation of line %d failed", o.Line)))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.NewErrorSummary(errs)
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, "", nil).
			WithSuggestion(fmt.Sprintf("Pass the %s with --file", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileNotFound, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}
